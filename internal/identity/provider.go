package identity

import (
	"context"

	"github.com/google/uuid"
)

// AuthProvider is the remote identity provider as seen by the service.
// GetUser returns nil, nil when the token does not belong to an active session.
type AuthProvider interface {
	GetUser(ctx context.Context, token string) (*Principal, error)
	SignInWithPassword(ctx context.Context, email, password string) (*ProviderSession, error)
	SignInWithGoogle(ctx context.Context, claims GoogleClaims) (*ProviderSession, error)
	SignUp(ctx context.Context, input SignUpInput) (*Principal, error)
	SignOut(ctx context.Context, token string) error
	ResetPasswordForEmail(ctx context.Context, email string) error
	RedeemRecovery(ctx context.Context, recoveryToken string) (*ProviderSession, error)
	UpdatePassword(ctx context.Context, token, newPassword string) error
}

// ProfileStore persists profile records keyed by the principal ID.
// FindProfile returns ErrProfileNotFound when no record exists.
type ProfileStore interface {
	FindProfile(ctx context.Context, id uuid.UUID) (*User, error)
	CreateProfile(ctx context.Context, user User) (User, error)
	UpdateProfile(ctx context.Context, user User) (User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

// StoreClearer is the part of the session store that sign-out needs.
type StoreClearer interface {
	Clear()
}
