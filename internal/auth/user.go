package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/segmentio/ksuid"
)

// ErrUserNotFound is returned by store lookups when no user matches.
var ErrUserNotFound = errors.New("user not found")

// User is a local principal. PasswordHash is empty for users that only ever
// authenticated through a federated provider.
type User struct {
	ID           string
	Identifier   string
	PasswordHash []byte
	DisplayName  string
	Email        string
	Disabled     bool
}

// UserStore is the user-lookup collaborator. Implementations must be safe
// for concurrent use.
type UserStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	FindByProviderSubject(ctx context.Context, provider, subject string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	LinkProviderSubject(ctx context.Context, userID, provider, subject string) error
}

// MemoryUserStore is an in-memory UserStore for development and tests.
// Production deployments plug in their own store.
type MemoryUserStore struct {
	mu        sync.RWMutex
	byID      map[string]*User
	byIdent   map[string]string // identifier -> user ID
	byEmail   map[string]string // lowercased email -> user ID
	bySubject map[string]string // provider + "\x00" + subject -> user ID
}

// NewMemoryUserStore returns an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:      make(map[string]*User),
		byIdent:   make(map[string]string),
		byEmail:   make(map[string]string),
		bySubject: make(map[string]string),
	}
}

func subjectKey(provider, subject string) string {
	return provider + "\x00" + subject
}

func (s *MemoryUserStore) FindByIdentifier(_ context.Context, identifier string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdent[identifier]
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.copyOf(id)
}

func (s *MemoryUserStore) FindByProviderSubject(_ context.Context, provider, subject string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySubject[subjectKey(provider, subject)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.copyOf(id)
}

func (s *MemoryUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.copyOf(id)
}

// Create stores a new user. A missing ID is filled with a fresh ksuid.
func (s *MemoryUserStore) Create(_ context.Context, u *User) error {
	if u.Identifier == "" {
		return errors.New("identifier is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byIdent[u.Identifier]; exists {
		return fmt.Errorf("identifier %q already exists", u.Identifier)
	}
	if u.ID == "" {
		u.ID = ksuid.New().String()
	}

	stored := *u
	s.byID[stored.ID] = &stored
	s.byIdent[stored.Identifier] = stored.ID
	if stored.Email != "" {
		s.byEmail[strings.ToLower(stored.Email)] = stored.ID
	}
	return nil
}

func (s *MemoryUserStore) LinkProviderSubject(_ context.Context, userID, provider, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[userID]; !ok {
		return ErrUserNotFound
	}
	key := subjectKey(provider, subject)
	if existing, ok := s.bySubject[key]; ok && existing != userID {
		return fmt.Errorf("subject already linked to another user")
	}
	s.bySubject[key] = userID
	return nil
}

// copyOf returns a copy so callers cannot mutate stored state. Caller must
// hold at least a read lock.
func (s *MemoryUserStore) copyOf(id string) (*User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}
