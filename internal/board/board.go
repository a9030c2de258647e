package board

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/appetiteclub/liveboard/internal/notify"
)

// Guard errors returned by RequestTransition.
var (
	ErrUnknownOrder      = errors.New("order not on the board")
	ErrTransitionPending = errors.New("a transition is already pending for this order")
	ErrInvalidTransition = errors.New("not the immediate successor of the current status")
)

const maxNotices = 20

// OrderService is the slice of the external order API the board consumes.
// Transport and business failures are treated identically: the transition
// failed and the optimistic status is rolled back.
type OrderService interface {
	ActiveOrders(ctx context.Context) ([]Order, error)
	UpdateStatus(ctx context.Context, orderID, status string) (*Order, error)
}

type watcher struct {
	orderID string // empty means every order
	fn      func(Order)
}

// Board maintains the shared order projection and is the only place order
// state is mutated. Surfaces read derived views and request transitions;
// snapshots and bus events flow in through Ingest*.
type Board struct {
	mu      sync.RWMutex
	orders  map[string]*Order
	pending map[string]*PendingTransition
	notices []TransitionNotice

	// issuance time of the request that produced the currently applied
	// snapshot; responses issued earlier are discarded to avoid flicker
	lastIssuedAt time.Time

	watchers map[string]watcher

	svc    OrderService
	logger *zap.SugaredLogger
}

// New creates an empty board backed by the given order service.
func New(svc OrderService, logger *zap.SugaredLogger) *Board {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Board{
		orders:   make(map[string]*Order),
		pending:  make(map[string]*PendingTransition),
		watchers: make(map[string]watcher),
		svc:      svc,
		logger:   logger,
	}
}

// Refresh fetches the authoritative active-order set and ingests it. Both the
// polling fallback and push-triggered refreshes go through here, so the
// snapshot precedence rules apply uniformly.
func (b *Board) Refresh(ctx context.Context) error {
	issuedAt := time.Now()

	orders, err := b.svc.ActiveOrders(ctx)
	if err != nil {
		return fmt.Errorf("fetch active orders: %w", err)
	}

	b.IngestSnapshot(orders, issuedAt)
	return nil
}

// IngestSnapshot replaces the projection with the given authoritative
// snapshot. issuedAt is the time the producing request was issued; a snapshot
// issued before the currently applied one is discarded. Orders with an
// outstanding pending transition keep their optimistic status unless the
// snapshot is newer than the request, in which case the snapshot wins and the
// pending record is considered resolved. Returns false when discarded.
func (b *Board) IngestSnapshot(orders []Order, issuedAt time.Time) bool {
	b.mu.Lock()

	if issuedAt.Before(b.lastIssuedAt) {
		b.mu.Unlock()
		b.logger.Debugw("discarding stale snapshot",
			"issued_at", issuedAt, "applied_issued_at", b.lastIssuedAt)
		return false
	}

	next := make(map[string]*Order, len(orders))
	var changed []Order

	for i := range orders {
		o := orders[i]

		if pt, ok := b.pending[o.ID]; ok {
			if o.UpdatedAt.After(pt.RequestedAt) {
				// Server state is newer than the optimistic request;
				// the snapshot wins and the transition is resolved.
				delete(b.pending, o.ID)
			} else {
				o.Status = pt.To
			}
		}

		prev, existed := b.orders[o.ID]
		if !existed || prev.Status != o.Status || !prev.UpdatedAt.Equal(o.UpdatedAt) {
			changed = append(changed, o)
		}
		next[o.ID] = &o
	}

	// Orders that left the active set resolve their pending transitions;
	// a later service rollback for them becomes a no-op.
	for id := range b.pending {
		if _, ok := next[id]; !ok {
			delete(b.pending, id)
		}
	}

	b.orders = next
	b.lastIssuedAt = issuedAt

	targets := b.collectWatchersLocked(changed)
	b.mu.Unlock()

	b.fire(targets, changed)
	return true
}

// IngestEvent reacts to a normalized bus event. Order-related kinds are
// treated as refresh signals, not payloads of truth: the re-fetch goes
// through the same path as the polling fallback, which bounds staleness to a
// round trip instead of the poll interval. Other kinds are inert here.
func (b *Board) IngestEvent(ctx context.Context, evt notify.Event) {
	switch evt.Kind {
	case notify.KindNewOrder, notify.KindRefreshOrders, notify.KindOrderStatusChanged:
	default:
		return
	}

	go func() {
		if err := b.Refresh(context.WithoutCancel(ctx)); err != nil {
			b.logger.Errorw("push-triggered refresh failed", "kind", evt.Kind, "error", err)
		}
	}()
}

// RequestTransition applies an optimistic status change and persists it
// through the order service. It is rejected when another transition is
// pending for the order or when to is not the immediate successor of the
// current status. On service failure the previous status is restored and a
// notice is recorded. The service call is never cancelled by the caller's
// context going away; its outcome is always applied to the projection.
func (b *Board) RequestTransition(ctx context.Context, orderID, to string) error {
	b.mu.Lock()

	o, ok := b.orders[orderID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	if _, exists := b.pending[orderID]; exists {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTransitionPending, orderID)
	}
	if NextStatus(o.Status) != to {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}

	now := time.Now()
	pt := &PendingTransition{OrderID: orderID, From: o.Status, To: to, RequestedAt: now}
	b.pending[orderID] = pt

	o.Status = to
	o.UpdatedAt = now
	optimistic := *o

	targets := b.collectWatchersLocked([]Order{optimistic})
	b.mu.Unlock()

	b.fire(targets, []Order{optimistic})

	updated, err := b.svc.UpdateStatus(context.WithoutCancel(ctx), orderID, to)
	if err != nil {
		b.rollback(pt, err)
		return fmt.Errorf("update order %s status: %w", orderID, err)
	}

	b.confirm(pt, updated)
	return nil
}

// confirm discards the pending record after a successful service call; the
// displayed status is already correct.
func (b *Board) confirm(pt *PendingTransition, updated *Order) {
	b.mu.Lock()

	if cur, ok := b.pending[pt.OrderID]; !ok || cur != pt {
		// Already resolved by a newer snapshot.
		b.mu.Unlock()
		return
	}
	delete(b.pending, pt.OrderID)

	var changed []Order
	if updated != nil {
		if o, ok := b.orders[pt.OrderID]; ok && updated.UpdatedAt.After(o.UpdatedAt) {
			o.UpdatedAt = updated.UpdatedAt
			changed = append(changed, *o)
		}
	}

	targets := b.collectWatchersLocked(changed)
	b.mu.Unlock()

	b.fire(targets, changed)
}

// rollback restores the pre-transition status and records the user-visible
// failure notice. No-op when the transition was already resolved by a newer
// snapshot or the order left the board.
func (b *Board) rollback(pt *PendingTransition, cause error) {
	b.mu.Lock()

	if cur, ok := b.pending[pt.OrderID]; !ok || cur != pt {
		b.mu.Unlock()
		return
	}
	delete(b.pending, pt.OrderID)

	var changed []Order
	display := pt.OrderID
	if o, ok := b.orders[pt.OrderID]; ok && o.Status == pt.To {
		o.Status = pt.From
		o.UpdatedAt = time.Now()
		display = o.DisplayNumber
		changed = append(changed, *o)
	}

	notice := TransitionNotice{
		OrderID:       pt.OrderID,
		DisplayNumber: display,
		From:          pt.From,
		To:            pt.To,
		Reason:        cause.Error(),
		OccurredAt:    time.Now(),
	}
	b.notices = append([]TransitionNotice{notice}, b.notices...)
	if len(b.notices) > maxNotices {
		b.notices = b.notices[:maxNotices]
	}

	targets := b.collectWatchersLocked(changed)
	b.mu.Unlock()

	b.logger.Infow("transition rolled back",
		"order_id", pt.OrderID, "from", pt.From, "to", pt.To, "error", cause)

	b.fire(targets, changed)
}

// Get returns a copy of a single order from the projection.
func (b *Board) Get(orderID string) (Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	o, ok := b.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// OrdersByStatus partitions the projection into the four status buckets,
// each sorted oldest first for column rendering. Every bucket is present
// even when empty.
func (b *Board) OrdersByStatus() map[string][]Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	buckets := make(map[string][]Order, len(StatusOrder))
	for _, s := range StatusOrder {
		buckets[s] = []Order{}
	}

	for _, o := range b.orders {
		if _, ok := buckets[o.Status]; !ok {
			// Unknown status from the service; keep it off the board
			// rather than invent a column.
			continue
		}
		buckets[o.Status] = append(buckets[o.Status], *o)
	}

	for s := range buckets {
		sort.Slice(buckets[s], func(i, j int) bool {
			return buckets[s][i].CreatedAt.Before(buckets[s][j].CreatedAt)
		})
	}
	return buckets
}

// RecentActivity returns the n most recently updated orders regardless of
// status, most recent first.
func (b *Board) RecentActivity(n int) []Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	all := make([]Order, 0, len(b.orders))
	for _, o := range b.orders {
		all = append(all, *o)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})

	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// Pending returns the pending transition for an order, if any.
func (b *Board) Pending(orderID string) (PendingTransition, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pt, ok := b.pending[orderID]
	if !ok {
		return PendingTransition{}, false
	}
	return *pt, true
}

// Notices returns the recorded transition failures, most recent first.
func (b *Board) Notices() []TransitionNotice {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]TransitionNotice, len(b.notices))
	copy(out, b.notices)
	return out
}

// WatchOrder registers fn to be called whenever the given order changes on
// the board (status change, snapshot update, rollback). An empty orderID
// watches every order. Returns a handle for Unwatch.
func (b *Board) WatchOrder(orderID string, fn func(Order)) string {
	handle := uuid.New().String()

	b.mu.Lock()
	b.watchers[handle] = watcher{orderID: orderID, fn: fn}
	b.mu.Unlock()

	return handle
}

// Unwatch removes a watcher registered with WatchOrder.
func (b *Board) Unwatch(handle string) {
	b.mu.Lock()
	delete(b.watchers, handle)
	b.mu.Unlock()
}

// collectWatchersLocked snapshots the watcher set relevant for the changed
// orders. Callbacks are invoked after the lock is released.
func (b *Board) collectWatchersLocked(changed []Order) []watcher {
	if len(changed) == 0 || len(b.watchers) == 0 {
		return nil
	}
	out := make([]watcher, 0, len(b.watchers))
	for _, w := range b.watchers {
		out = append(out, w)
	}
	return out
}

func (b *Board) fire(targets []watcher, changed []Order) {
	for _, o := range changed {
		for _, w := range targets {
			if w.orderID == "" || w.orderID == o.ID {
				w.fn(o)
			}
		}
	}
}
