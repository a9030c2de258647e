package bus

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/appetiteclub/liveboard/internal/session"
)

// Topic kinds a surface can declare interest in.
const (
	KindUserInbox        = "user_inbox"        // scoped by user identity
	KindRestaurantOrders = "restaurant_orders" // scoped by restaurant id, staff only
	KindAnnouncements    = "announcements"     // unscoped, public
	KindOwnerAlerts      = "owner_alerts"      // owner role only
)

// Handler receives raw frames for one subscription.
type Handler func(topic string, data []byte)

// Handle identifies a registration for Unsubscribe. Unentitled registrations
// return an inert handle: Unsubscribe accepts it, nothing is ever delivered.
type Handle string

type registration struct {
	key     string
	topic   string
	handler Handler
}

// Router maps logical interests to concrete bus topics and keeps the desired
// subscription set across reconnect windows: when the manager regains
// CONNECTED it calls Reattach and every desired topic is re-issued without
// surfaces re-declaring interest.
type Router struct {
	bus    Conn
	sess   *session.Session
	logger *zap.SugaredLogger

	mu       sync.Mutex
	desired  map[Handle]*registration
	byKey    map[string]Handle       // (kind, scope, owner) dedupe
	attached map[string]Unsubscriber // one live bus subscription per topic
}

// NewRouter creates a router for the given session's entitlements.
func NewRouter(bus Conn, sess *session.Session, logger *zap.SugaredLogger) *Router {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Router{
		bus:      bus,
		sess:     sess,
		logger:   logger,
		desired:  make(map[Handle]*registration),
		byKey:    make(map[string]Handle),
		attached: make(map[string]Unsubscriber),
	}
}

// Subscribe declares interest in a topic kind. owner names the interest
// group (typically the mounting surface) so a duplicate (kind, scope)
// registration from the same owner yields exactly one delivered copy per
// frame. Subscribing to a channel the session's role is not entitled to is a
// no-op: an inert handle comes back, no error, no escalation.
func (r *Router) Subscribe(kind, scopeID, owner string, handler Handler) Handle {
	topic, ok := r.topicFor(kind, scopeID)
	if !ok {
		r.logger.Debugw("subscription not entitled, ignoring",
			"kind", kind, "scope", scopeID, "role", r.sess.Role)
		return Handle(uuid.New().String())
	}

	key := kind + "|" + scopeID + "|" + owner

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byKey[key]; ok {
		return existing
	}

	handle := Handle(uuid.New().String())
	r.desired[handle] = &registration{key: key, topic: topic, handler: handler}
	r.byKey[key] = handle

	r.attachLocked(topic)
	return handle
}

// Unsubscribe removes a registration. When no registration needs the topic
// anymore the bus subscription is detached too.
func (r *Router) Unsubscribe(handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.desired[handle]
	if !ok {
		return
	}
	delete(r.desired, handle)
	delete(r.byKey, reg.key)

	for _, other := range r.desired {
		if other.topic == reg.topic {
			return
		}
	}
	if sub, ok := r.attached[reg.topic]; ok {
		if err := sub.Unsubscribe(); err != nil {
			r.logger.Debugw("unsubscribe failed", "topic", reg.topic, "error", err)
		}
		delete(r.attached, reg.topic)
	}
}

// Reattach re-issues every desired topic on the (fresh) connection. Called
// by the connection manager whenever CONNECTED is regained; previous
// attachments died with the old connection.
func (r *Router) Reattach() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attached = make(map[string]Unsubscriber)
	for _, reg := range r.desired {
		r.attachLocked(reg.topic)
	}
}

// attachLocked ensures one live bus subscription exists for the topic.
// ErrNotConnected is not an error here: the manager's connected callback
// triggers Reattach and the topic is issued then.
func (r *Router) attachLocked(topic string) {
	if _, ok := r.attached[topic]; ok {
		return
	}

	sub, err := r.bus.Subscribe(topic, r.dispatch)
	if err != nil {
		if err != ErrNotConnected {
			r.logger.Errorw("topic attach failed", "topic", topic, "error", err)
		}
		return
	}
	r.attached[topic] = sub
}

// dispatch fans a frame out to every registration interested in its topic.
func (r *Router) dispatch(topic string, data []byte) {
	r.mu.Lock()
	var handlers []Handler
	for _, reg := range r.desired {
		if reg.topic == topic {
			handlers = append(handlers, reg.handler)
		}
	}
	r.mu.Unlock()

	for _, h := range handlers {
		h(topic, data)
	}
}

// topicFor resolves a kind and scope to a concrete topic, enforcing role
// entitlement. Returns false when the session may not subscribe.
func (r *Router) topicFor(kind, scopeID string) (string, bool) {
	switch kind {
	case KindUserInbox:
		if scopeID == "" {
			scopeID = r.sess.UserID
		}
		if scopeID != r.sess.UserID {
			return "", false
		}
		return fmt.Sprintf("user.%s.inbox", scopeID), true

	case KindRestaurantOrders:
		if !r.sess.IsStaff() {
			return "", false
		}
		if scopeID == "" {
			scopeID = r.sess.RestaurantID
		}
		return fmt.Sprintf("restaurant.%s.orders", scopeID), true

	case KindAnnouncements:
		return "announcements", true

	case KindOwnerAlerts:
		if r.sess.Role != session.RoleOwner {
			return "", false
		}
		return fmt.Sprintf("role.%s.alerts", session.RoleOwner), true
	}

	return "", false
}
