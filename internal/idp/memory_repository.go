package idp

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sessiongate/internal/identity"
)

// InMemoryRepository stores accounts, sessions and recoveries in process memory,
// ideal for local development or tests.
type InMemoryRepository struct {
	mu         sync.RWMutex
	accounts   map[uuid.UUID]Account
	sessions   map[string]Session
	recoveries map[string]Recovery
	now        func() time.Time
}

// NewInMemoryRepository constructs a repository seeded with optional accounts.
func NewInMemoryRepository(initial ...Account) *InMemoryRepository {
	accounts := make(map[uuid.UUID]Account, len(initial))
	for _, a := range initial {
		accounts[a.ID] = a
	}
	return &InMemoryRepository{
		accounts:   accounts,
		sessions:   make(map[string]Session),
		recoveries: make(map[string]Recovery),
		now:        time.Now,
	}
}

// FindAccountByID returns the account with id.
func (r *InMemoryRepository) FindAccountByID(_ context.Context, id uuid.UUID) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

// FindAccountByEmail returns the account registered with email.
func (r *InMemoryRepository) FindAccountByEmail(_ context.Context, email string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts {
		if strings.EqualFold(account.Email, email) {
			a := account
			return &a, nil
		}
	}
	return nil, nil
}

// FindAccountByOAuth returns the account linked to the federated identity.
func (r *InMemoryRepository) FindAccountByOAuth(_ context.Context, provider, providerID string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts {
		if account.OAuthProvider == provider && account.OAuthProviderID == providerID {
			a := account
			return &a, nil
		}
	}
	return nil, nil
}

// CreateAccount stores a new account, rejecting duplicate emails.
func (r *InMemoryRepository) CreateAccount(_ context.Context, account Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.accounts {
		if strings.EqualFold(existing.Email, account.Email) {
			return Account{}, identity.ErrEmailTaken
		}
	}
	r.accounts[account.ID] = account
	return account, nil
}

// UpdateAccountLogin records a sign-in and refreshes the display name.
func (r *InMemoryRepository) UpdateAccountLogin(_ context.Context, id uuid.UUID, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil
	}
	now := r.now().UTC()
	if displayName != "" {
		account.DisplayName = displayName
	}
	account.LastSignInAt = &now
	account.UpdatedAt = now
	r.accounts[id] = account
	return nil
}

// UpdatePasswordHash replaces the stored password hash.
func (r *InMemoryRepository) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil
	}
	account.PasswordHash = hash
	account.UpdatedAt = r.now().UTC()
	r.accounts[id] = account
	return nil
}

// CreateRecovery stores a recovery grant.
func (r *InMemoryRepository) CreateRecovery(_ context.Context, recovery Recovery, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.recoveries[tokenHash] = recovery
	return nil
}

// ConsumeRecovery removes and returns the recovery grant for tokenHash.
func (r *InMemoryRepository) ConsumeRecovery(_ context.Context, tokenHash string) (*Recovery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recovery, ok := r.recoveries[tokenHash]
	if !ok {
		return nil, nil
	}
	delete(r.recoveries, tokenHash)
	return &recovery, nil
}

// CreateSession stores a session under its token hash.
func (r *InMemoryRepository) CreateSession(_ context.Context, session Session, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[tokenHash] = session
	return nil
}

// FindSessionByTokenHash returns the session stored under tokenHash.
func (r *InMemoryRepository) FindSessionByTokenHash(_ context.Context, tokenHash string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[tokenHash]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

// DeleteSessionByTokenHash removes a session.
func (r *InMemoryRepository) DeleteSessionByTokenHash(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, tokenHash)
	return nil
}

// DeleteExpiredSessions removes all expired sessions.
func (r *InMemoryRepository) DeleteExpiredSessions(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var removed int64
	for hash, session := range r.sessions {
		if now.After(session.ExpiresAt) {
			delete(r.sessions, hash)
			removed++
		}
	}
	return removed, nil
}

// InMemoryProfileStore implements identity.ProfileStore in process memory.
type InMemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]identity.User
}

// NewInMemoryProfileStore constructs a profile store seeded with optional profiles.
func NewInMemoryProfileStore(initial ...identity.User) *InMemoryProfileStore {
	profiles := make(map[uuid.UUID]identity.User, len(initial))
	for _, p := range initial {
		profiles[p.ID] = p
	}
	return &InMemoryProfileStore{profiles: profiles}
}

// FindProfile returns the profile for id.
func (s *InMemoryProfileStore) FindProfile(_ context.Context, id uuid.UUID) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[id]
	if !ok {
		return nil, identity.ErrProfileNotFound
	}
	return profile.Clone(), nil
}

// CreateProfile stores a new profile.
func (s *InMemoryProfileStore) CreateProfile(_ context.Context, user identity.User) (identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[user.ID]; ok {
		return identity.User{}, identity.ErrEmailTaken
	}
	s.profiles[user.ID] = *user.Clone()
	return user, nil
}

// UpdateProfile replaces an existing profile.
func (s *InMemoryProfileStore) UpdateProfile(_ context.Context, user identity.User) (identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[user.ID]; !ok {
		return identity.User{}, identity.ErrProfileNotFound
	}
	s.profiles[user.ID] = *user.Clone()
	return user, nil
}

// EmailExists reports whether any profile uses email.
func (s *InMemoryProfileStore) EmailExists(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.profiles {
		if strings.EqualFold(p.Email, email) {
			return true, nil
		}
	}
	return false, nil
}
