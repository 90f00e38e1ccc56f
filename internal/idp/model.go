package idp

import (
	"time"

	"github.com/google/uuid"
)

// Account is a provider-side identity: credentials and federation links.
type Account struct {
	ID              uuid.UUID
	Email           string
	PasswordHash    string
	DisplayName     string
	OAuthProvider   string
	OAuthProviderID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastSignInAt    *time.Time
}

// Session is a provider-issued session. Only the SHA-256 of its token is stored.
type Session struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"accountId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	UserAgent string    `json:"userAgent"`
	IPAddress string    `json:"ipAddress"`
}

// Recovery is a single-use password recovery grant.
type Recovery struct {
	AccountID uuid.UUID
	ExpiresAt time.Time
	CreatedAt time.Time
}
