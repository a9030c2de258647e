package board

import (
	"context"
	"errors"
	"sync"
)

// MockOrderService implements OrderService for testing.
type MockOrderService struct {
	mu sync.Mutex

	ActiveOrdersFunc func(ctx context.Context) ([]Order, error)
	UpdateStatusFunc func(ctx context.Context, orderID, status string) (*Order, error)

	updateCalls []updateCall
}

type updateCall struct {
	OrderID string
	Status  string
}

func (m *MockOrderService) ActiveOrders(ctx context.Context) ([]Order, error) {
	if m.ActiveOrdersFunc != nil {
		return m.ActiveOrdersFunc(ctx)
	}
	return nil, nil
}

func (m *MockOrderService) UpdateStatus(ctx context.Context, orderID, status string) (*Order, error) {
	m.mu.Lock()
	m.updateCalls = append(m.updateCalls, updateCall{OrderID: orderID, Status: status})
	m.mu.Unlock()

	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, orderID, status)
	}
	return nil, errors.New("not implemented")
}

func (m *MockOrderService) UpdateCalls() []updateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]updateCall, len(m.updateCalls))
	copy(out, m.updateCalls)
	return out
}
