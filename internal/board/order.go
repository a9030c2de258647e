package board

import (
	"time"
)

// Status codes for the order board (match the order service status enum).
// The board only ever moves an order forward through this sequence.
const (
	StatusPending   = "pending"
	StatusPreparing = "preparing"
	StatusReady     = "ready"
	StatusCompleted = "completed"
)

// StatusOrder is the forward sequence of board columns, in display order.
var StatusOrder = []string{StatusPending, StatusPreparing, StatusReady, StatusCompleted}

// Order type codes.
const (
	TypeDineIn   = "dine_in"
	TypeTakeaway = "takeaway"
)

// OrderItem is a single line of an order as returned by the order service.
type OrderItem struct {
	MenuItemID string  `json:"menu_item_id"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	Notes      string  `json:"notes,omitempty"`
}

// Order mirrors the order JSON returned by the order service. The canonical
// copy lives server-side; the board holds a projection refreshed by poll and
// patched only through the board's own entry points.
type Order struct {
	ID            string      `json:"id"`
	DisplayNumber string      `json:"display_number"`
	Status        string      `json:"status"`
	Type          string      `json:"type"`
	TableNumber   string      `json:"table_number,omitempty"`
	Items         []OrderItem `json:"items"`
	Total         float64     `json:"total"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// NextStatus returns the immediate successor of a status, or "" when the
// status is terminal or unknown.
func NextStatus(status string) string {
	for i, s := range StatusOrder {
		if s == status && i+1 < len(StatusOrder) {
			return StatusOrder[i+1]
		}
	}
	return ""
}

// ValidStatus reports whether the code is one of the four board statuses.
func ValidStatus(status string) bool {
	for _, s := range StatusOrder {
		if s == status {
			return true
		}
	}
	return false
}

// StatusLabel returns the display name used by board columns.
func StatusLabel(status string) string {
	switch status {
	case StatusPending:
		return "Pending"
	case StatusPreparing:
		return "In Preparation"
	case StatusReady:
		return "Ready"
	case StatusCompleted:
		return "Completed"
	}
	return status
}

// PendingTransition tracks an optimistic status change awaiting confirmation
// from the order service. At most one exists per order at a time.
type PendingTransition struct {
	OrderID     string    `json:"order_id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	RequestedAt time.Time `json:"requested_at"`
}

// TransitionNotice is the user-visible record of a failed transition, tied to
// the specific order so a surface can render a toast against its card.
type TransitionNotice struct {
	OrderID       string    `json:"order_id"`
	DisplayNumber string    `json:"display_number"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}
