// Package session implements the password-gated admin session.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// CookieName carries the session id.
const CookieName = "farm_session"

// DefaultTTL is how long an admin stays signed in.
const DefaultTTL = 12 * time.Hour

// ErrInvalidPassword is returned by Login on a mismatch.
var ErrInvalidPassword = errors.New("invalid password")

// Store keeps session ids server-side.
type Store interface {
	Create(ctx context.Context, id string, ttl time.Duration) error
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// Manager issues and checks admin sessions.
type Manager struct {
	store        Store
	passwordHash []byte
	ttl          time.Duration
	secureCookie bool
}

// HashPassword returns a bcrypt hash for a plain admin password.
func HashPassword(password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("admin password is empty")
	}
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// NewManager returns a Manager checking logins against passwordHash (bcrypt).
func NewManager(store Store, passwordHash []byte, ttl time.Duration, secureCookie bool) (*Manager, error) {
	if _, err := bcrypt.Cost(passwordHash); err != nil {
		return nil, fmt.Errorf("admin password hash: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, passwordHash: passwordHash, ttl: ttl, secureCookie: secureCookie}, nil
}

// Login verifies password and, on success, creates a session and sets its cookie.
func (m *Manager) Login(ctx context.Context, w http.ResponseWriter, password string) error {
	if bcrypt.CompareHashAndPassword(m.passwordHash, []byte(password)) != nil {
		return ErrInvalidPassword
	}
	id := uuid.New().String()
	if err := m.store.Create(ctx, id, m.ttl); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Logout drops the session, if any, and clears the cookie.
func (m *Manager) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var err error
	if c, cerr := r.Cookie(CookieName); cerr == nil && c.Value != "" {
		err = m.store.Delete(ctx, c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return err
}

// Authenticated reports whether r carries a live admin session.
// Store errors count as not authenticated.
func (m *Manager) Authenticated(r *http.Request) bool {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return false
	}
	ok, err := m.store.Exists(r.Context(), c.Value)
	return err == nil && ok
}

// MemoryStore is a process-local Store. Sessions do not survive restarts.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]time.Time
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]time.Time), now: time.Now}
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, id string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.sessions {
		if now.After(exp) {
			delete(s.sessions, k)
		}
	}
	s.sessions[id] = now.Add(ttl)
	return nil
}

// Exists implements Store. Expired sessions are removed on access.
func (s *MemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.sessions[id]
	if !ok {
		return false, nil
	}
	if s.now().After(exp) {
		delete(s.sessions, id)
		return false, nil
	}
	return true, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
