// Package session holds the per-client authentication state: whether the client is
// signed in, and as whom.
package session

import (
	"errors"
	"sync"

	"sessiongate/internal/identity"
)

// ErrInconsistentState is returned when a transaction would commit an authenticated
// flag that disagrees with the presence of a user.
var ErrInconsistentState = errors.New("session: authenticated flag and user disagree")

// Snapshot is a point-in-time copy of the store.
type Snapshot struct {
	Authenticated bool           `json:"isAuthenticated"`
	User          *identity.User `json:"user"`
	Version       uint64         `json:"-"`
}

// Store is the single source of truth for one client's session state.
// The zero value is not usable; call NewStore.
type Store struct {
	mu            sync.RWMutex
	authenticated bool
	user          *identity.User
	version       uint64
}

// NewStore returns a cleared store.
func NewStore() *Store {
	return &Store{}
}

// Tx stages writes that Update commits together.
type Tx struct {
	authenticated bool
	user          *identity.User
}

// SetAuthenticated stages the authenticated flag.
func (tx *Tx) SetAuthenticated(value bool) {
	tx.authenticated = value
}

// SetUser stages the current user. It does not touch the authenticated flag.
func (tx *Tx) SetUser(user *identity.User) {
	tx.user = user.Clone()
}

// Update runs fn against the current state and commits the staged writes atomically.
// Readers never observe a partially applied transaction.
func (s *Store) Update(fn func(tx *Tx)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{authenticated: s.authenticated, user: s.user}
	fn(tx)

	if tx.authenticated != (tx.user != nil) {
		return ErrInconsistentState
	}

	s.authenticated = tx.authenticated
	s.user = tx.user
	s.version++
	return nil
}

// Authenticate records user as the signed-in principal.
func (s *Store) Authenticate(user *identity.User) {
	if user == nil {
		s.Clear()
		return
	}
	_ = s.Update(func(tx *Tx) {
		tx.SetAuthenticated(true)
		tx.SetUser(user)
	})
}

// Clear resets the store to the signed-out state.
func (s *Store) Clear() {
	_ = s.Update(func(tx *Tx) {
		tx.SetAuthenticated(false)
		tx.SetUser(nil)
	})
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Authenticated: s.authenticated,
		User:          s.user.Clone(),
		Version:       s.version,
	}
}

// Version counts committed writes.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
