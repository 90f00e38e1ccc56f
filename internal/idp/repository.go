package idp

import (
	"context"

	"github.com/google/uuid"
)

// AccountRepository persists accounts and recovery grants.
// Finders return nil, nil when nothing matches.
type AccountRepository interface {
	FindAccountByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)
	FindAccountByOAuth(ctx context.Context, provider, providerID string) (*Account, error)
	CreateAccount(ctx context.Context, account Account) (Account, error)
	UpdateAccountLogin(ctx context.Context, id uuid.UUID, displayName string) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error

	CreateRecovery(ctx context.Context, recovery Recovery, tokenHash string) error
	ConsumeRecovery(ctx context.Context, tokenHash string) (*Recovery, error)
}

// SessionRepository persists provider sessions by token hash.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session, tokenHash string) error
	FindSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}
