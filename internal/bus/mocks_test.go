package bus

import (
	"sync"
	"time"
)

// fakeConn implements Conn for router tests and records attachments.
type fakeConn struct {
	mu       sync.Mutex
	failWith error
	handlers map[string][]func(topic string, data []byte)
	attaches int
	detaches int
}

func newFakeConn() *fakeConn {
	return &fakeConn{handlers: make(map[string][]func(topic string, data []byte))}
}

func (c *fakeConn) Subscribe(topic string, handler func(topic string, data []byte)) (Unsubscriber, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failWith != nil {
		return nil, c.failWith
	}

	c.handlers[topic] = append(c.handlers[topic], handler)
	c.attaches++
	return &fakeSub{conn: c, topic: topic}, nil
}

// push delivers a frame to every live handler on the topic.
func (c *fakeConn) push(topic string, data []byte) {
	c.mu.Lock()
	handlers := append([]func(string, []byte){}, c.handlers[topic]...)
	c.mu.Unlock()

	for _, h := range handlers {
		h(topic, data)
	}
}

func (c *fakeConn) attachCount(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[topic])
}

// fakeProber scripts the heartbeat probe outcomes the manager sees on a held
// link. flushErrs is consumed in order; once exhausted, probes succeed.
type fakeProber struct {
	mu        sync.Mutex
	connected bool
	flushErrs []error
	probes    int
}

func (p *fakeProber) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakeProber) FlushTimeout(time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.probes++
	if len(p.flushErrs) == 0 {
		return nil
	}
	err := p.flushErrs[0]
	p.flushErrs = p.flushErrs[1:]
	return err
}

func (p *fakeProber) probeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes
}

type fakeSub struct {
	conn  *fakeConn
	topic string
}

func (s *fakeSub) Unsubscribe() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	handlers := s.conn.handlers[s.topic]
	if len(handlers) > 0 {
		s.conn.handlers[s.topic] = handlers[:len(handlers)-1]
	}
	s.conn.detaches++
	return nil
}
