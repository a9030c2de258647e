package bus

import (
	"testing"
	"time"

	"github.com/appetiteclub/liveboard/internal/session"
)

func staffSession(role string) *session.Session {
	return &session.Session{
		ID:           "s-1",
		UserID:       "u-1",
		Role:         role,
		RestaurantID: "r-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func TestRouterTopicForEntitlement(t *testing.T) {
	tests := []struct {
		name      string
		role      string
		kind      string
		scope     string
		wantTopic string
		wantOK    bool
	}{
		{
			name: "ownInbox",
			role: session.RoleWaiter, kind: KindUserInbox, scope: "",
			wantTopic: "user.u-1.inbox", wantOK: true,
		},
		{
			name: "someoneElsesInboxDenied",
			role: session.RoleWaiter, kind: KindUserInbox, scope: "u-2",
			wantOK: false,
		},
		{
			name: "staffOrderFeed",
			role: session.RoleKitchen, kind: KindRestaurantOrders, scope: "r-1",
			wantTopic: "restaurant.r-1.orders", wantOK: true,
		},
		{
			name: "customerOrderFeedDenied",
			role: session.RoleCustomer, kind: KindRestaurantOrders, scope: "r-1",
			wantOK: false,
		},
		{
			name: "announcementsOpenToAll",
			role: session.RoleCustomer, kind: KindAnnouncements, scope: "",
			wantTopic: "announcements", wantOK: true,
		},
		{
			name: "ownerAlertsForOwner",
			role: session.RoleOwner, kind: KindOwnerAlerts, scope: "",
			wantTopic: "role.owner.alerts", wantOK: true,
		},
		{
			name: "ownerAlertsDeniedForManager",
			role: session.RoleManager, kind: KindOwnerAlerts, scope: "",
			wantOK: false,
		},
		{
			name: "unknownKind",
			role: session.RoleOwner, kind: "bogus", scope: "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(newFakeConn(), staffSession(tt.role), nil)

			topic, ok := r.topicFor(tt.kind, tt.scope)
			if ok != tt.wantOK {
				t.Fatalf("topicFor(%q, %q) ok = %v, want %v", tt.kind, tt.scope, ok, tt.wantOK)
			}
			if ok && topic != tt.wantTopic {
				t.Errorf("topic = %q, want %q", topic, tt.wantTopic)
			}
		})
	}
}

func TestRouterUnentitledSubscribeIsNoop(t *testing.T) {
	conn := newFakeConn()
	r := NewRouter(conn, staffSession(session.RoleCustomer), nil)

	delivered := 0
	handle := r.Subscribe(KindRestaurantOrders, "r-1", "board", func(string, []byte) {
		delivered++
	})

	conn.push("restaurant.r-1.orders", []byte(`{"type":"new_order"}`))

	if delivered != 0 {
		t.Errorf("delivered = %d, want 0 for unentitled subscription", delivered)
	}
	if conn.attaches != 0 {
		t.Errorf("bus attaches = %d, want 0", conn.attaches)
	}

	// The inert handle is still accepted.
	r.Unsubscribe(handle)
}

func TestRouterIdempotentSubscription(t *testing.T) {
	conn := newFakeConn()
	r := NewRouter(conn, staffSession(session.RoleKitchen), nil)

	delivered := 0
	h1 := r.Subscribe(KindRestaurantOrders, "r-1", "kanban", func(string, []byte) {
		delivered++
	})
	h2 := r.Subscribe(KindRestaurantOrders, "r-1", "kanban", func(string, []byte) {
		delivered++
	})

	if h1 != h2 {
		t.Errorf("duplicate (kind, scope, owner) should return the same handle")
	}

	conn.push("restaurant.r-1.orders", []byte(`{"type":"new_order"}`))

	if delivered != 1 {
		t.Errorf("delivered = %d, want exactly one copy per frame", delivered)
	}
}

func TestRouterDistinctOwnersEachGetACopy(t *testing.T) {
	conn := newFakeConn()
	r := NewRouter(conn, staffSession(session.RoleKitchen), nil)

	var kanban, dashboard int
	r.Subscribe(KindRestaurantOrders, "r-1", "kanban", func(string, []byte) { kanban++ })
	r.Subscribe(KindRestaurantOrders, "r-1", "dashboard", func(string, []byte) { dashboard++ })

	// Still only one bus-level subscription for the shared topic.
	if got := conn.attachCount("restaurant.r-1.orders"); got != 1 {
		t.Errorf("bus subscriptions = %d, want 1 shared attachment", got)
	}

	conn.push("restaurant.r-1.orders", []byte(`{"type":"refresh_orders"}`))

	if kanban != 1 || dashboard != 1 {
		t.Errorf("deliveries = kanban %d, dashboard %d, want 1 each", kanban, dashboard)
	}
}

func TestRouterUnsubscribeDetaches(t *testing.T) {
	conn := newFakeConn()
	r := NewRouter(conn, staffSession(session.RoleKitchen), nil)

	delivered := 0
	h := r.Subscribe(KindRestaurantOrders, "r-1", "kanban", func(string, []byte) { delivered++ })
	keep := r.Subscribe(KindRestaurantOrders, "r-1", "dashboard", func(string, []byte) {})

	// Topic still needed by the second owner: no detach yet.
	r.Unsubscribe(h)
	if conn.detaches != 0 {
		t.Errorf("detaches = %d, want 0 while another owner remains", conn.detaches)
	}

	conn.push("restaurant.r-1.orders", []byte(`x`))
	if delivered != 0 {
		t.Error("unsubscribed handler must not receive frames")
	}

	r.Unsubscribe(keep)
	if conn.detaches != 1 {
		t.Errorf("detaches = %d, want topic released once unused", conn.detaches)
	}
}

func TestRouterReattachAfterReconnect(t *testing.T) {
	conn := newFakeConn()
	conn.failWith = ErrNotConnected

	r := NewRouter(conn, staffSession(session.RoleKitchen), nil)

	delivered := 0
	r.Subscribe(KindRestaurantOrders, "r-1", "kanban", func(string, []byte) { delivered++ })
	r.Subscribe(KindAnnouncements, "", "kanban", func(string, []byte) {})

	// Nothing attached while the link is down.
	if conn.attaches != 0 {
		t.Fatalf("attaches = %d, want 0 while disconnected", conn.attaches)
	}

	// Link comes up: the manager invokes Reattach and every desired topic
	// is re-issued without surfaces re-declaring interest.
	conn.mu.Lock()
	conn.failWith = nil
	conn.mu.Unlock()
	r.Reattach()

	if conn.attaches != 2 {
		t.Fatalf("attaches = %d, want both desired topics issued", conn.attaches)
	}

	conn.push("restaurant.r-1.orders", []byte(`{"type":"new_order"}`))
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1 after reattach", delivered)
	}
}
