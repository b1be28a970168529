// Package credstore persists the single active session token.
//
// The token lives in one named slot; an empty slot is the unauthenticated
// signal. Callers read the store before every request instead of caching
// the token, so a login or logout from another process is honored on the
// next call.
package credstore

import (
	"errors"
	"sync"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned when the slot is empty.
var ErrNoToken = errors.New("no session token stored")

// Store holds at most one token.
type Store interface {
	// Get returns the stored token or ErrNoToken.
	Get() (string, error)
	// Set replaces the stored token.
	Set(token string) error
	// Clear empties the slot. Clearing an empty slot is not an error.
	Clear() error
}

// MemoryStore is a volatile Store for tests and one-shot sessions.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore returns an empty store, or one seeded with token if non-empty.
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (s *MemoryStore) Get() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

func (s *MemoryStore) Set(token string) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

// TokenSource adapts a Store to oauth2.TokenSource. Every call reads the
// store; nothing is cached.
func TokenSource(s Store) oauth2.TokenSource {
	return storeSource{s}
}

type storeSource struct {
	store Store
}

func (s storeSource) Token() (*oauth2.Token, error) {
	tok, err := s.store.Get()
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}, nil
}
