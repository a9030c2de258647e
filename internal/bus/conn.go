package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/appetiteclub/liveboard/internal/session"
)

// Connection status values.
const (
	StatusDisconnected = "DISCONNECTED"
	StatusConnecting   = "CONNECTING"
	StatusConnected    = "CONNECTED"
)

var ErrNoSession = errors.New("no valid session")
var ErrNotConnected = errors.New("bus not connected")

const flushTimeout = 2 * time.Second

// Unsubscriber detaches one bus subscription.
type Unsubscriber interface {
	Unsubscribe() error
}

// Conn is the slice of the live connection the topic router drives.
type Conn interface {
	Subscribe(topic string, handler func(topic string, data []byte)) (Unsubscriber, error)
}

// prober is the slice of the live connection the heartbeat loop drives.
// *nats.Conn satisfies it.
type prober interface {
	IsConnected() bool
	FlushTimeout(timeout time.Duration) error
}

// Health is the passive connectivity snapshot exposed to surfaces. Live is
// lowered only after the reconnect ceiling is exceeded; it is an indicator,
// never a hard failure.
type Health struct {
	Status        string    `json:"status"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`
	Live          bool      `json:"live_updates_available"`
}

// Options configures the connection manager. The reconnect delay is constant
// rather than exponential: the feed is latency-sensitive and a missed window
// costs more than a few extra dials.
type Options struct {
	URL               string
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
	HeartbeatMisses   int
	RetryCeiling      int
}

// Manager owns the one long-lived bus connection for a session. It dials,
// probes heartbeats, reconnects with a fixed delay, and tells the router to
// re-issue subscriptions when CONNECTED is regained.
type Manager struct {
	opts   Options
	logger *zap.SugaredLogger

	mu            sync.RWMutex
	conn          *nats.Conn
	status        string
	lastHeartbeat time.Time
	unavailable   bool
	sess          *session.Session
	cancel        context.CancelFunc
	done          chan struct{}

	onConnected func()
}

// NewManager creates a disconnected manager. Zero option fields get
// conservative defaults.
func NewManager(opts Options, logger *zap.SugaredLogger) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 10 * time.Second
	}
	if opts.HeartbeatMisses <= 0 {
		opts.HeartbeatMisses = 3
	}
	if opts.RetryCeiling <= 0 {
		opts.RetryCeiling = 10
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{
		opts:   opts,
		logger: logger,
		status: StatusDisconnected,
	}
}

// SetOnConnected registers the hook invoked each time the link comes up,
// including after reconnects. The topic router uses it to re-attach
// subscriptions transparently.
func (m *Manager) SetOnConnected(fn func()) {
	m.mu.Lock()
	m.onConnected = fn
	m.mu.Unlock()
}

// Connect starts the connection loop for the given session. Handshake
// failures are silent: status goes DISCONNECTED and a retry is scheduled.
// Returns ErrNoSession when no valid session exists.
func (m *Manager) Connect(ctx context.Context, sess *session.Session) error {
	if !sess.Valid() {
		return ErrNoSession
	}

	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return errors.New("already connected")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.sess = sess
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.run(runCtx, sess)
	}()
	return nil
}

// Disconnect tears the link down cleanly. Subscriptions die with the
// connection; the router clears its attachments on the next connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.sess = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// run dials in a loop with a constant delay, holding the connection through
// heartbeat probes until it dies, then dialing again.
func (m *Manager) run(ctx context.Context, sess *session.Session) {
	defer m.setStatus(StatusDisconnected, nil)

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// The connection lives only as long as the session does.
		if !sess.Valid() {
			m.logger.Infow("session no longer valid, ending connection loop", "user_id", sess.UserID)
			return
		}

		m.setStatus(StatusConnecting, nil)

		conn, err := nats.Connect(m.opts.URL,
			nats.Name("liveboard/"+sess.UserID),
			nats.Token(sess.Token),
			nats.Timeout(5*time.Second),
			nats.NoReconnect(),
		)
		if err != nil {
			failures++
			m.noteFailure(failures, err)
			m.setStatus(StatusDisconnected, nil)

			select {
			case <-ctx.Done():
				return
			case <-time.After(m.opts.ReconnectDelay):
			}
			continue
		}

		failures = 0
		m.setStatus(StatusConnected, conn)
		m.logger.Infow("bus connected", "url", m.opts.URL, "user_id", sess.UserID)

		m.mu.RLock()
		onConnected := m.onConnected
		m.mu.RUnlock()
		if onConnected != nil {
			onConnected()
		}

		m.holdHeartbeats(ctx, sess, conn)
		conn.Close()
		m.setStatus(StatusDisconnected, nil)

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.opts.ReconnectDelay):
		}
	}
}

// holdHeartbeats probes the link at the heartbeat interval and returns once
// the miss threshold is crossed, the session expires, or the context ends.
func (m *Manager) holdHeartbeats(ctx context.Context, sess *session.Session, conn prober) {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()

	misses := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !sess.Valid() {
				m.logger.Infow("session expired, dropping bus link", "user_id", sess.UserID)
				return
			}
			if !conn.IsConnected() {
				m.logger.Infow("bus link lost, forcing reconnect")
				return
			}
			if err := conn.FlushTimeout(flushTimeout); err != nil {
				misses++
				m.logger.Infow("heartbeat missed", "misses", misses, "error", err)
				if misses >= m.opts.HeartbeatMisses {
					m.logger.Infow("heartbeat threshold exceeded, forcing reconnect")
					return
				}
				continue
			}
			misses = 0
			m.mu.Lock()
			m.lastHeartbeat = time.Now()
			m.mu.Unlock()
		}
	}
}

func (m *Manager) noteFailure(failures int, err error) {
	m.logger.Infow("bus connect failed", "attempt", failures, "error", err)

	if failures >= m.opts.RetryCeiling {
		m.mu.Lock()
		raise := !m.unavailable
		m.unavailable = true
		m.mu.Unlock()
		if raise {
			m.logger.Warnw("live updates unavailable", "failed_attempts", failures)
		}
	}
}

func (m *Manager) setStatus(status string, conn *nats.Conn) {
	m.mu.Lock()
	m.status = status
	m.conn = conn
	if status == StatusConnected {
		m.lastHeartbeat = time.Now()
		m.unavailable = false
	}
	m.mu.Unlock()
}

// Health returns the current connectivity snapshot.
func (m *Manager) Health() Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Health{
		Status:        m.status,
		LastHeartbeat: m.lastHeartbeat,
		Live:          !m.unavailable,
	}
}

// Status returns the current connection status.
func (m *Manager) Status() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Subscribe attaches a handler to a topic on the live connection. Returns
// ErrNotConnected while the link is down; the router retries on the next
// connected callback.
func (m *Manager) Subscribe(topic string, handler func(topic string, data []byte)) (Unsubscriber, error) {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		return nil, ErrNotConnected
	}

	sub, err := conn.Subscribe(topic, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}
