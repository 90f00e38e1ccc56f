package identity

import (
	"time"

	"github.com/google/uuid"
)

// Status reports whether a user is currently active.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Theme is the visual theme stored in a user's preferences.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Preferences holds per-user presentation settings.
type Preferences struct {
	Theme  Theme  `json:"theme"`
	Locale string `json:"locale"`
}

// User is the authenticated principal merged with its profile record.
type User struct {
	ID          uuid.UUID   `json:"id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"displayName"`
	AvatarURL   string      `json:"avatarUrl,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	BirthDate   *time.Time  `json:"birthDate,omitempty"`
	Status      Status      `json:"status"`
	LastSeenAt  *time.Time  `json:"lastSeenAt,omitempty"`
	Preferences Preferences `json:"preferences"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Clone returns a deep copy so callers can hand users across goroutines safely.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.BirthDate != nil {
		birth := *u.BirthDate
		out.BirthDate = &birth
	}
	if u.LastSeenAt != nil {
		seen := *u.LastSeenAt
		out.LastSeenAt = &seen
	}
	return &out
}

// Principal is what the provider knows about a signed-in identity, before profiles are joined.
type Principal struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
}

// ProviderSession is a provider-issued proof of authentication.
type ProviderSession struct {
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	Principal Principal `json:"-"`
}

// Credentials carries a password sign-in attempt.
type Credentials struct {
	Email    string
	Password string
}

// SignUpInput carries a new account registration.
type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
}

// GoogleClaims contains the relevant claims from a verified Google ID token.
type GoogleClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// ProfileUpdate lists the mutable profile fields. Nil pointers are left unchanged.
type ProfileUpdate struct {
	DisplayName *string
	AvatarURL   *string
	Phone       *string
	BirthDate   **time.Time
	Status      *Status
	Preferences *Preferences
}

// SignInResult is returned by successful sign-ins.
type SignInResult struct {
	Session ProviderSession
	User    *User
}
