package notify

import (
	"sync"

	"go.uber.org/zap"
)

// Consumer receives every normalized event. Consumers must not block.
type Consumer func(Event)

// Center is the single ingestion point for inbound bus frames. It normalizes
// payloads, appends to the bounded event log, dispatches the audible alert
// for alertable kinds exactly once per event, and forwards the typed event to
// every registered consumer. Keeping the alert here, rather than in the
// consumers, is what makes "once per event, not once per surface" hold.
type Center struct {
	mu        sync.RWMutex
	consumers []Consumer

	log     *EventLog
	alerter Alerter
	logger  *zap.SugaredLogger
}

// NewCenter creates a notification center with the given log and alerter.
func NewCenter(log *EventLog, alerter Alerter, logger *zap.SugaredLogger) *Center {
	if log == nil {
		log = NewEventLog(0)
	}
	if alerter == nil {
		alerter = NoopAlerter{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Center{log: log, alerter: alerter, logger: logger}
}

// AddConsumer registers a consumer for all future events.
func (c *Center) AddConsumer(fn Consumer) {
	c.mu.Lock()
	c.consumers = append(c.consumers, fn)
	c.mu.Unlock()
}

// Ingest normalizes one raw frame and fans it out. Malformed payloads come
// through as KindUnknown; they are logged and forwarded but drive nothing.
func (c *Center) Ingest(topic string, payload []byte) Event {
	evt := Normalize(topic, payload)
	c.log.Append(evt)

	if evt.Kind == KindUnknown {
		c.logger.Debugw("unrecognized bus payload", "topic", topic, "bytes", len(payload))
	}

	// Ingest runs on the bus subscription callback; a sound player holding
	// the clip open must not stall frame delivery.
	if Alertable(evt.Kind) {
		go func() {
			if err := c.alerter.Alert(evt); err != nil {
				c.logger.Errorw("alert dispatch failed", "kind", evt.Kind, "error", err)
			}
		}()
	}

	c.mu.RLock()
	consumers := make([]Consumer, len(c.consumers))
	copy(consumers, c.consumers)
	c.mu.RUnlock()

	for _, fn := range consumers {
		fn(evt)
	}
	return evt
}

// Log exposes the bounded event log for surfaces (badges, toasts).
func (c *Center) Log() *EventLog {
	return c.log
}
