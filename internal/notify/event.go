package notify

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

// Event kinds. Unrecognized payloads are tagged KindUnknown and stay inert
// for board state, but are still logged for visibility.
const (
	KindNewOrder           = "NEW_ORDER"
	KindRefreshOrders      = "REFRESH_ORDERS"
	KindAnnouncement       = "ANNOUNCEMENT"
	KindOwnerAlert         = "OWNER_ALERT"
	KindOrderStatusChanged = "ORDER_STATUS_CHANGED"
	KindUnknown            = "UNKNOWN"
)

// Event is the one internal shape every inbound bus frame is normalized
// into. Immutable once created.
type Event struct {
	Kind        string          `json:"kind"`
	OrderID     string          `json:"order_id,omitempty"`
	Message     string          `json:"message,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	SourceTopic string          `json:"source_topic"`
	ReceivedAt  time.Time       `json:"received_at"`
}

// typedPayload covers the `{type, ...}` frame shape used by most producers.
type typedPayload struct {
	Type    string `json:"type"`
	OrderID string `json:"order_id"`
	Message string `json:"message"`
}

// statusPayload covers the bare `{status, orderId}` shape pushed by the
// order service on status changes.
type statusPayload struct {
	Status  string `json:"status"`
	OrderID string `json:"orderId"`
}

// Normalize converts a raw bus frame into an Event. It tolerates the three
// known payload shapes — `{type, ...}`, `{status, orderId}` and freeform
// broadcast text — and defaults everything else to KindUnknown. It never
// returns an error; malformed input must not be able to crash a consumer.
func Normalize(topic string, payload []byte) Event {
	evt := Event{
		Kind:        KindUnknown,
		Payload:     append(json.RawMessage(nil), payload...),
		SourceTopic: topic,
		ReceivedAt:  time.Now(),
	}

	var typed typedPayload
	if err := json.Unmarshal(payload, &typed); err == nil && typed.Type != "" {
		evt.Kind = kindForType(typed.Type)
		evt.OrderID = typed.OrderID
		evt.Message = typed.Message
		return evt
	}

	var status statusPayload
	if err := json.Unmarshal(payload, &status); err == nil && status.Status != "" && status.OrderID != "" {
		evt.Kind = KindOrderStatusChanged
		evt.OrderID = status.OrderID
		evt.Message = status.Status
		return evt
	}

	// Freeform broadcast text on an announcement or alert channel.
	if text := strings.TrimSpace(string(payload)); text != "" && utf8.ValidString(text) && !strings.HasPrefix(text, "{") {
		switch {
		case strings.HasPrefix(topic, "announcements"):
			evt.Kind = KindAnnouncement
		case strings.Contains(topic, ".alerts"):
			evt.Kind = KindOwnerAlert
		default:
			return evt
		}
		evt.Message = text
	}

	return evt
}

func kindForType(t string) string {
	switch strings.ToLower(t) {
	case "new_order", "order_created":
		return KindNewOrder
	case "refresh_orders", "refresh":
		return KindRefreshOrders
	case "announcement", "broadcast":
		return KindAnnouncement
	case "owner_alert", "order_alert":
		return KindOwnerAlert
	case "order_status_changed", "status_changed":
		return KindOrderStatusChanged
	}
	return KindUnknown
}

// Alertable reports whether the event kind triggers the audible alert.
func Alertable(kind string) bool {
	return kind == KindNewOrder || kind == KindOwnerAlert
}
