package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/appetiteclub/liveboard/internal/board"
)

// demoOrderService serves a small seeded order set from memory so the board
// can be exercised without the real order service. Status updates behave
// like the real API, including rejecting backward moves.
type demoOrderService struct {
	mu     sync.Mutex
	orders map[string]*board.Order
}

func newDemoOrderService() *demoOrderService {
	svc := &demoOrderService{orders: make(map[string]*board.Order)}

	now := time.Now()
	seeds := []struct {
		number string
		status string
		typ    string
		table  string
		item   string
		price  float64
	}{
		{"101", board.StatusPending, board.TypeDineIn, "4", "Margherita", 12.50},
		{"102", board.StatusPending, board.TypeTakeaway, "", "Carbonara", 14.00},
		{"103", board.StatusPreparing, board.TypeDineIn, "7", "Risotto", 16.00},
		{"104", board.StatusReady, board.TypeTakeaway, "", "Tiramisu", 6.50},
	}

	for i, s := range seeds {
		o := &board.Order{
			ID:            uuid.New().String(),
			DisplayNumber: s.number,
			Status:        s.status,
			Type:          s.typ,
			TableNumber:   s.table,
			Items: []board.OrderItem{
				{MenuItemID: uuid.New().String(), Name: s.item, Quantity: 1, UnitPrice: s.price},
			},
			Total:     s.price,
			CreatedAt: now.Add(-time.Duration(len(seeds)-i) * time.Minute),
			UpdatedAt: now.Add(-time.Duration(len(seeds)-i) * time.Minute),
		}
		svc.orders[o.ID] = o
	}

	return svc
}

func (s *demoOrderService) ActiveOrders(ctx context.Context) ([]board.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]board.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if o.Status == board.StatusCompleted {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (s *demoOrderService) UpdateStatus(ctx context.Context, orderID, status string) (*board.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	if board.NextStatus(o.Status) != status {
		return nil, fmt.Errorf("cannot move order %s from %s to %s", o.DisplayNumber, o.Status, status)
	}

	o.Status = status
	o.UpdatedAt = time.Now()
	out := *o
	return &out, nil
}
