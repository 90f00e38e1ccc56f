// Package identity is the single point of contact with the identity provider.
// It turns provider responses into Verification results and sentinel errors.
package identity

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

// ProfilePolicy decides what happens when a principal has no profile record.
type ProfilePolicy string

const (
	// ProfilePolicyProvision creates a default profile on first access, for every entry point.
	ProfilePolicyProvision ProfilePolicy = "provision"
	// ProfilePolicyStrict fails with ErrProfileNotFound, for every entry point.
	ProfilePolicyStrict ProfilePolicy = "strict"
)

const (
	defaultLocale     = "pt-BR"
	minPasswordLength = 6
	maxDisplayName    = 120
)

// Service provides session verification and account operations.
type Service struct {
	auth      AuthProvider
	profiles  ProfileStore
	logger    *slog.Logger
	defaults  Preferences
	policy    ProfilePolicy
	now       func() time.Time
	sanitizer *bluemonday.Policy
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the diagnostics logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDefaultPreferences overrides the preferences given to provisioned profiles.
func WithDefaultPreferences(prefs Preferences) Option {
	return func(s *Service) {
		if prefs.Theme != "" {
			s.defaults.Theme = prefs.Theme
		}
		if prefs.Locale != "" {
			s.defaults.Locale = prefs.Locale
		}
	}
}

// WithProfilePolicy selects the missing-profile policy.
func WithProfilePolicy(policy ProfilePolicy) Option {
	return func(s *Service) {
		if policy == ProfilePolicyStrict || policy == ProfilePolicyProvision {
			s.policy = policy
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service backed by the given provider and profile store.
func NewService(auth AuthProvider, profiles ProfileStore, opts ...Option) *Service {
	s := &Service{
		auth:      auth,
		profiles:  profiles,
		logger:    slog.Default(),
		defaults:  Preferences{Theme: ThemeLight, Locale: defaultLocale},
		policy:    ProfilePolicyProvision,
		now:       time.Now,
		sanitizer: bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy reports the configured missing-profile policy.
func (s *Service) Policy() ProfilePolicy {
	return s.policy
}

// GetCurrentUser resolves the user behind a provider session token.
// A missing session is Anonymous, never an error.
func (s *Service) GetCurrentUser(ctx context.Context, token string) Verification {
	if strings.TrimSpace(token) == "" {
		return Anonymous()
	}

	principal, err := s.auth.GetUser(ctx, token)
	if err != nil {
		return Failed(providerError("get user", err))
	}
	if principal == nil {
		return Anonymous()
	}

	user, err := s.loadProfile(ctx, *principal)
	if err != nil {
		return Failed(err)
	}
	return Authenticated(user)
}

// SignIn authenticates with email and password and loads the associated profile.
func (s *Service) SignIn(ctx context.Context, creds Credentials) (*SignInResult, error) {
	email := normalizeEmail(creds.Email)
	if email == "" || creds.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	session, err := s.auth.SignInWithPassword(ctx, email, creds.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, fmt.Errorf("sign in: %w", err)
		}
		return nil, providerError("sign in", err)
	}

	return s.completeSignIn(ctx, session)
}

// SignInWithGoogle signs in through a verified Google identity.
func (s *Service) SignInWithGoogle(ctx context.Context, claims GoogleClaims) (*SignInResult, error) {
	if claims.Sub == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: google subject and email are required", ErrValidation)
	}

	session, err := s.auth.SignInWithGoogle(ctx, claims)
	if err != nil {
		return nil, providerError("sign in with google", err)
	}

	return s.completeSignIn(ctx, session)
}

// SignOut invalidates the provider session and then clears the caller's store.
// Signing out without a session is a no-op that still leaves the store cleared.
func (s *Service) SignOut(ctx context.Context, token string, store StoreClearer) error {
	if strings.TrimSpace(token) != "" {
		if err := s.auth.SignOut(ctx, token); err != nil {
			s.logger.Error("sign out failed", "error", err)
			return providerError("sign out", err)
		}
	}

	if store != nil {
		store.Clear()
	}
	return nil
}

// SignUp registers a new account and creates its profile.
func (s *Service) SignUp(ctx context.Context, input SignUpInput) (*User, error) {
	input.Email = normalizeEmail(input.Email)
	if err := validateEmail(input.Email); err != nil {
		return nil, err
	}
	if len(input.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must have at least %d characters", ErrValidation, minPasswordLength)
	}
	input.DisplayName = s.cleanText(input.DisplayName)

	principal, err := s.auth.SignUp(ctx, input)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, fmt.Errorf("sign up: %w", err)
		}
		return nil, providerError("sign up", err)
	}

	return s.provisionProfile(ctx, *principal)
}

// ResetPassword asks the provider to issue a recovery token for the email.
// Unknown emails are not reported, to avoid account enumeration.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := s.auth.ResetPasswordForEmail(ctx, email); err != nil {
		return providerError("reset password", err)
	}
	return nil
}

// RecoverSession exchanges a recovery token for a fresh session.
func (s *Service) RecoverSession(ctx context.Context, recoveryToken string) (*SignInResult, error) {
	if strings.TrimSpace(recoveryToken) == "" {
		return nil, fmt.Errorf("%w: recovery token is required", ErrValidation)
	}

	session, err := s.auth.RedeemRecovery(ctx, recoveryToken)
	if err != nil {
		if errors.Is(err, ErrRecoveryInvalid) {
			return nil, fmt.Errorf("recover session: %w", err)
		}
		return nil, providerError("recover session", err)
	}

	return s.completeSignIn(ctx, session)
}

// UpdatePassword changes the password of the account behind token.
func (s *Service) UpdatePassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("update password: %w", ErrNotAuthenticated)
	}
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must have at least %d characters", ErrValidation, minPasswordLength)
	}
	if err := s.auth.UpdatePassword(ctx, token, newPassword); err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			return fmt.Errorf("update password: %w", err)
		}
		return providerError("update password", err)
	}
	return nil
}

// GetProfile returns the stored profile for id.
func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := s.profiles.FindProfile(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, fmt.Errorf("get profile %s: %w", id, err)
		}
		return nil, providerError("get profile", err)
	}
	return user, nil
}

// UpdateProfile applies the mutable fields in update. ID, email and creation time never change.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (*User, error) {
	current, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if update.DisplayName != nil {
		name := s.cleanText(*update.DisplayName)
		if name == "" {
			return nil, fmt.Errorf("%w: display name is required", ErrValidation)
		}
		next.DisplayName = name
	}
	if update.AvatarURL != nil {
		next.AvatarURL = strings.TrimSpace(*update.AvatarURL)
	}
	if update.Phone != nil {
		next.Phone = s.cleanText(*update.Phone)
	}
	if update.BirthDate != nil {
		next.BirthDate = *update.BirthDate
	}
	if update.Status != nil {
		switch *update.Status {
		case StatusOnline, StatusOffline:
			next.Status = *update.Status
		default:
			return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, *update.Status)
		}
	}
	if update.Preferences != nil {
		prefs := *update.Preferences
		if prefs.Theme != ThemeLight && prefs.Theme != ThemeDark {
			return nil, fmt.Errorf("%w: invalid theme %q", ErrValidation, prefs.Theme)
		}
		prefs.Locale = strings.TrimSpace(prefs.Locale)
		if prefs.Locale == "" {
			prefs.Locale = s.defaults.Locale
		}
		next.Preferences = prefs
	}
	next.UpdatedAt = s.advance(current.UpdatedAt)

	saved, err := s.profiles.UpdateProfile(ctx, *next)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, fmt.Errorf("update profile %s: %w", id, err)
		}
		return nil, providerError("update profile", err)
	}
	return &saved, nil
}

// EmailExists reports whether a profile already uses email.
func (s *Service) EmailExists(ctx context.Context, email string) (bool, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return false, err
	}
	exists, err := s.profiles.EmailExists(ctx, email)
	if err != nil {
		return false, providerError("email exists", err)
	}
	return exists, nil
}

func (s *Service) completeSignIn(ctx context.Context, session *ProviderSession) (*SignInResult, error) {
	user, err := s.loadProfile(ctx, session.Principal)
	if err != nil {
		// Do not leave a provider session behind that the app cannot use.
		if signOutErr := s.auth.SignOut(ctx, session.Token); signOutErr != nil {
			s.logger.Warn("revoke session after failed sign in", "error", signOutErr)
		}
		return nil, err
	}

	now := s.now().UTC()
	user.Status = StatusOnline
	user.LastSeenAt = &now
	user.UpdatedAt = s.advance(user.UpdatedAt)
	if saved, err := s.profiles.UpdateProfile(ctx, *user); err != nil {
		s.logger.Warn("record presence failed", "user_id", user.ID, "error", err)
	} else {
		user = &saved
	}

	return &SignInResult{Session: *session, User: user}, nil
}

func (s *Service) loadProfile(ctx context.Context, principal Principal) (*User, error) {
	profile, err := s.profiles.FindProfile(ctx, principal.ID)
	switch {
	case err == nil:
	case errors.Is(err, ErrProfileNotFound):
		if s.policy == ProfilePolicyStrict {
			return nil, fmt.Errorf("load profile %s: %w", principal.ID, ErrProfileNotFound)
		}
		return s.provisionProfile(ctx, principal)
	default:
		return nil, providerError("find profile", err)
	}

	user := profile.Clone()
	user.ID = principal.ID
	user.Email = principal.Email
	if user.DisplayName == "" {
		user.DisplayName = s.defaultDisplayName(principal)
	}
	if user.Status == "" {
		user.Status = StatusOnline
	}
	if user.Preferences.Theme == "" {
		user.Preferences.Theme = s.defaults.Theme
	}
	if user.Preferences.Locale == "" {
		user.Preferences.Locale = s.defaults.Locale
	}
	return user, nil
}

func (s *Service) provisionProfile(ctx context.Context, principal Principal) (*User, error) {
	now := s.now().UTC()
	profile := User{
		ID:          principal.ID,
		Email:       principal.Email,
		DisplayName: s.defaultDisplayName(principal),
		Status:      StatusOnline,
		Preferences: s.defaults,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := s.profiles.CreateProfile(ctx, profile)
	if err != nil {
		// A concurrent verification may have provisioned the same principal first.
		if existing, findErr := s.profiles.FindProfile(ctx, principal.ID); findErr == nil {
			return existing, nil
		}
		return nil, providerError("provision profile", err)
	}

	s.logger.Info("provisioned default profile", "user_id", principal.ID)
	return &created, nil
}

func (s *Service) defaultDisplayName(principal Principal) string {
	if name := s.cleanText(principal.DisplayName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(principal.Email, "@")
	return local
}

// cleanText strips markup from user-supplied text and bounds its length.
func (s *Service) cleanText(value string) string {
	cleaned := html.UnescapeString(s.sanitizer.Sanitize(value))
	cleaned = strings.TrimSpace(cleaned)
	if runes := []rune(cleaned); len(runes) > maxDisplayName {
		cleaned = string(runes[:maxDisplayName])
	}
	return cleaned
}

// advance returns a timestamp that is never before prev.
func (s *Service) advance(prev time.Time) time.Time {
	now := s.now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}

func providerError(op string, err error) error {
	if errors.Is(err, ErrProviderUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrProviderUnavailable, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email", ErrValidation)
	}
	return nil
}
