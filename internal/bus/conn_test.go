package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/appetiteclub/liveboard/internal/session"
)

func TestManagerDefaults(t *testing.T) {
	m := NewManager(Options{URL: "nats://localhost:4222"}, nil)

	if m.opts.ReconnectDelay <= 0 {
		t.Error("reconnect delay default missing")
	}
	if m.opts.HeartbeatInterval <= 0 {
		t.Error("heartbeat interval default missing")
	}
	if m.opts.HeartbeatMisses <= 0 {
		t.Error("heartbeat miss threshold default missing")
	}
	if m.opts.RetryCeiling <= 0 {
		t.Error("retry ceiling default missing")
	}
	if got := m.Status(); got != StatusDisconnected {
		t.Errorf("initial status = %q, want %q", got, StatusDisconnected)
	}
}

func TestManagerConnectRequiresValidSession(t *testing.T) {
	m := NewManager(Options{URL: "nats://localhost:4222"}, nil)

	tests := []struct {
		name string
		sess *session.Session
	}{
		{"nilSession", nil},
		{"emptySession", &session.Session{}},
		{"expiredSession", &session.Session{ID: "s-1", ExpiresAt: time.Now().Add(-time.Minute)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Connect(context.Background(), tt.sess)
			if !errors.Is(err, ErrNoSession) {
				t.Errorf("Connect() error = %v, want ErrNoSession", err)
			}
		})
	}
}

func TestManagerSubscribeWhileDisconnected(t *testing.T) {
	m := NewManager(Options{URL: "nats://localhost:4222"}, nil)

	_, err := m.Subscribe("announcements", func(string, []byte) {})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestManagerHealthStartsLive(t *testing.T) {
	m := NewManager(Options{URL: "nats://localhost:4222"}, nil)

	h := m.Health()
	if h.Status != StatusDisconnected {
		t.Errorf("status = %q, want %q", h.Status, StatusDisconnected)
	}
	// The passive indicator only drops after the retry ceiling.
	if !h.Live {
		t.Error("live updates should start available")
	}
}

func TestManagerFailureCeilingRaisesIndicator(t *testing.T) {
	m := NewManager(Options{URL: "nats://localhost:4222", RetryCeiling: 3}, nil)

	for i := 1; i <= 2; i++ {
		m.noteFailure(i, errors.New("dial refused"))
	}
	if h := m.Health(); !h.Live {
		t.Error("indicator must not drop before the ceiling")
	}

	m.noteFailure(3, errors.New("dial refused"))
	if h := m.Health(); h.Live {
		t.Error("indicator should drop once the ceiling is exceeded")
	}

	// A successful connect clears it.
	m.setStatus(StatusConnected, nil)
	if h := m.Health(); !h.Live {
		t.Error("indicator should clear on successful connect")
	}
}

func TestHoldHeartbeatsMissThresholdForcesReconnect(t *testing.T) {
	m := NewManager(Options{HeartbeatInterval: 2 * time.Millisecond, HeartbeatMisses: 2}, nil)
	flushErr := errors.New("flush timeout")
	p := &fakeProber{connected: true, flushErrs: []error{flushErr, flushErr}}

	done := make(chan struct{})
	go func() {
		m.holdHeartbeats(context.Background(), staffSession(session.RoleKitchen), p)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("miss threshold did not drop the link")
	}
	if got := p.probeCount(); got != 2 {
		t.Errorf("probes = %d, want exactly the threshold", got)
	}
}

func TestHoldHeartbeatsMissBelowThresholdHolds(t *testing.T) {
	m := NewManager(Options{HeartbeatInterval: 2 * time.Millisecond, HeartbeatMisses: 3}, nil)
	flushErr := errors.New("flush timeout")
	// Two misses, then clean probes.
	p := &fakeProber{connected: true, flushErrs: []error{flushErr, flushErr}}

	start := time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.holdHeartbeats(ctx, staffSession(session.RoleKitchen), p)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && p.probeCount() < 5 {
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case <-done:
		t.Fatal("link dropped below the miss threshold")
	default:
	}
	if h := m.Health(); !h.LastHeartbeat.After(start) {
		t.Error("clean probe did not record a heartbeat")
	}

	cancel()
	<-done
}

func TestHoldHeartbeatsSuccessResetsMissCount(t *testing.T) {
	m := NewManager(Options{HeartbeatInterval: 2 * time.Millisecond, HeartbeatMisses: 2}, nil)
	flushErr := errors.New("flush timeout")
	// Misses interleaved with successes never accumulate to the threshold.
	p := &fakeProber{connected: true, flushErrs: []error{flushErr, nil, flushErr, nil, flushErr}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.holdHeartbeats(ctx, staffSession(session.RoleKitchen), p)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && p.probeCount() < 6 {
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case <-done:
		t.Fatal("interleaved misses must not drop the link")
	default:
	}

	cancel()
	<-done
}

func TestHoldHeartbeatsDeadLinkReturns(t *testing.T) {
	m := NewManager(Options{HeartbeatInterval: 2 * time.Millisecond}, nil)
	p := &fakeProber{connected: false}

	done := make(chan struct{})
	go func() {
		m.holdHeartbeats(context.Background(), staffSession(session.RoleKitchen), p)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dead link did not drop")
	}
	if got := p.probeCount(); got != 0 {
		t.Errorf("probes = %d, want none on a dead link", got)
	}
}

func TestHoldHeartbeatsSessionExpiryDropsLink(t *testing.T) {
	m := NewManager(Options{HeartbeatInterval: 2 * time.Millisecond}, nil)
	p := &fakeProber{connected: true}
	sess := staffSession(session.RoleKitchen)
	sess.ExpiresAt = time.Now().Add(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		m.holdHeartbeats(context.Background(), sess, p)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expired session did not drop the link")
	}
}

func TestRunEndsWhenSessionExpires(t *testing.T) {
	m := NewManager(Options{URL: "nats://localhost:4222"}, nil)
	sess := staffSession(session.RoleKitchen)
	sess.ExpiresAt = time.Now().Add(-time.Minute)

	done := make(chan struct{})
	go func() {
		m.run(context.Background(), sess)
		close(done)
	}()

	// The loop must end before ever dialing.
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connection loop survived session expiry")
	}
	if got := m.Status(); got != StatusDisconnected {
		t.Errorf("status = %q, want %q", got, StatusDisconnected)
	}
}

func TestManagerDisconnectWithoutConnect(t *testing.T) {
	m := NewManager(Options{URL: "nats://localhost:4222"}, nil)

	// Must be a safe no-op.
	m.Disconnect()

	if got := m.Status(); got != StatusDisconnected {
		t.Errorf("status = %q, want %q", got, StatusDisconnected)
	}
}
