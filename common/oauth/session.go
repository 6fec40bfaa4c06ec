package oauth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is the authorization state of one (issuer, user) pair
type State string

const (
	// StateUnauthenticated means no flow has been started
	StateUnauthenticated State = "unauthenticated"
	// StateAwaitingCallback means a login URL was issued and the user has
	// not completed the external consent yet (or the callback arrived but
	// the code has not been exchanged)
	StateAwaitingCallback State = "awaiting_callback"
	// StateAuthenticated means an access token is held
	StateAuthenticated State = "authenticated"
	// StateDenied is terminal: the user declined or the issuer was disabled
	StateDenied State = "denied"
)

// Session is the persisted credential state for one (issuer, user) pair
type Session struct {
	IssuerID int64 `json:"issuerid"`
	UserID   int64 `json:"userid"`
	State    State `json:"state"`

	// CSRF token embedded in the authorize redirect, verified on callback
	CSRFToken string `json:"csrftoken,omitempty"`

	// Authorization code received on callback, cleared once exchanged
	PendingCode string `json:"pendingcode,omitempty"`

	// Scope requested when the flow was started
	Scope string `json:"scope,omitempty"`

	AccessToken  string    `json:"accesstoken,omitempty"`
	RefreshToken string    `json:"refreshtoken,omitempty"`
	ExpiresAt    time.Time `json:"expiresat,omitempty"`
}

// TokenExpired reports whether the held access token is past its expiry
func (s *Session) TokenExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// SessionStore persists OAuth sessions keyed by (issuer, user).
// Get returns (nil, nil) when no session exists.
type SessionStore interface {
	Get(ctx context.Context, issuerID, userID int64) (*Session, error)
	Put(ctx context.Context, session *Session) error
	Delete(ctx context.Context, issuerID, userID int64) error
}

// MemoryStore is an in-process session store for tests and single-node
// development setups
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates a new in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

// Get retrieves a session, (nil, nil) when absent
func (m *MemoryStore) Get(ctx context.Context, issuerID, userID int64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[sessionKey(issuerID, userID)]
	if !ok {
		return nil, nil
	}
	copied := *sess
	return &copied, nil
}

// Put stores a session
func (m *MemoryStore) Put(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *session
	m.sessions[sessionKey(session.IssuerID, session.UserID)] = &copied
	return nil
}

// Delete removes a session
func (m *MemoryStore) Delete(ctx context.Context, issuerID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, sessionKey(issuerID, userID))
	return nil
}

func sessionKey(issuerID, userID int64) string {
	return fmt.Sprintf("oauth:sess:%d:%d", issuerID, userID)
}
