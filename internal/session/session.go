package session

import (
	"errors"
	"sync"
	"time"
)

// Role codes used for topic entitlement.
const (
	RoleOwner    = "owner"
	RoleManager  = "manager"
	RoleKitchen  = "kitchen"
	RoleWaiter   = "waiter"
	RoleCustomer = "customer"
)

var ErrNotFound = errors.New("session not found")
var ErrExpired = errors.New("session expired")

// Session is the authenticated identity the sync core reads. It is owned by
// the surrounding app: created at login, destroyed at logout. The bus
// connection is torn down when it disappears.
type Session struct {
	ID           string
	UserID       string
	Email        string
	Name         string
	Role         string
	RestaurantID string
	Token        string // bearer credential attached at bus handshake
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// IsStaff reports whether the session's role may subscribe to the
// restaurant-wide order feed.
func (s *Session) IsStaff() bool {
	switch s.Role {
	case RoleOwner, RoleManager, RoleKitchen, RoleWaiter:
		return true
	}
	return false
}

// Valid reports whether the session exists and has not expired.
func (s *Session) Valid() bool {
	return s != nil && s.ID != "" && time.Now().Before(s.ExpiresAt)
}

// Store keeps sessions in memory with a TTL. Expired entries are swept by a
// background goroutine.
type Store struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	ttl      time.Duration
}

func NewStore(ttl time.Duration) *Store {
	store := &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}

	go store.cleanup()

	return store
}

func (s *Store) Save(session *Session) error {
	if session == nil {
		return errors.New("session is nil")
	}

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = session.CreatedAt.Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = session
	return nil
}

func (s *Store) Get(sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	if time.Now().After(session.ExpiresAt) {
		return nil, ErrExpired
	}

	return session, nil
}

func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
}

func (s *Store) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		now := time.Now()
		for id, session := range s.sessions {
			if now.After(session.ExpiresAt) {
				delete(s.sessions, id)
			}
		}
		s.mu.Unlock()
	}
}
