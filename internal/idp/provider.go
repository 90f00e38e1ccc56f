// Package idp is the identity provider backend: accounts, provider sessions,
// password recovery and Google federation. The session gate only sees it through
// identity.AuthProvider.
package idp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"sessiongate/internal/identity"
)

const (
	defaultSessionTTL  = 12 * time.Hour
	defaultRecoveryTTL = time.Hour
	googleProvider     = "google"
)

// Provider implements identity.AuthProvider on top of the account and session repositories.
type Provider struct {
	accounts    AccountRepository
	sessions    SessionRepository
	sessionTTL  time.Duration
	recoveryTTL time.Duration
	notifier    RecoveryNotifier
	logger      *slog.Logger
	now         func() time.Time
	hashCost    int
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithRecoveryNotifier sets where recovery tokens are delivered.
func WithRecoveryNotifier(n RecoveryNotifier) ProviderOption {
	return func(p *Provider) {
		p.notifier = n
	}
}

// WithProviderLogger sets the logger.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProviderClock replaces time.Now.
func WithProviderClock(now func() time.Time) ProviderOption {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) ProviderOption {
	return func(p *Provider) {
		p.hashCost = cost
	}
}

// NewProvider creates a new Provider.
func NewProvider(accounts AccountRepository, sessions SessionRepository, sessionTTL time.Duration, opts ...ProviderOption) *Provider {
	if sessionTTL == 0 {
		sessionTTL = defaultSessionTTL
	}
	p := &Provider{
		accounts:    accounts,
		sessions:    sessions,
		sessionTTL:  sessionTTL,
		recoveryTTL: defaultRecoveryTTL,
		logger:      slog.Default(),
		now:         time.Now,
		hashCost:    bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetUser returns the principal behind token, or nil when the session is unknown or expired.
func (p *Provider) GetUser(ctx context.Context, token string) (*identity.Principal, error) {
	if token == "" {
		return nil, nil
	}

	tokenHash := hashToken(token)
	session, err := p.sessions.FindSessionByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	if p.now().After(session.ExpiresAt) {
		_ = p.sessions.DeleteSessionByTokenHash(ctx, tokenHash)
		return nil, nil
	}

	account, err := p.accounts.FindAccountByID(ctx, session.AccountID)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		return nil, nil
	}

	return principalOf(account), nil
}

// SignInWithPassword checks the password and issues a session.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*identity.ProviderSession, error) {
	account, err := p.accounts.FindAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account == nil || account.PasswordHash == "" {
		return nil, identity.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, identity.ErrInvalidCredentials
	}

	if err := p.accounts.UpdateAccountLogin(ctx, account.ID, account.DisplayName); err != nil {
		return nil, fmt.Errorf("update account login: %w", err)
	}

	return p.createSession(ctx, account)
}

// SignInWithGoogle finds or creates the account linked to a verified Google identity
// and issues a session.
func (p *Provider) SignInWithGoogle(ctx context.Context, claims identity.GoogleClaims) (*identity.ProviderSession, error) {
	existing, err := p.accounts.FindAccountByOAuth(ctx, googleProvider, claims.Sub)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}

	if existing == nil {
		existing, err = p.accounts.FindAccountByEmail(ctx, normalizeEmail(claims.Email))
		if err != nil {
			return nil, fmt.Errorf("find account: %w", err)
		}
	}

	if existing != nil {
		if err := p.accounts.UpdateAccountLogin(ctx, existing.ID, claims.Name); err != nil {
			return nil, fmt.Errorf("update account login: %w", err)
		}
		if claims.Name != "" {
			existing.DisplayName = claims.Name
		}
		return p.createSession(ctx, existing)
	}

	now := p.now().UTC()
	created, err := p.accounts.CreateAccount(ctx, Account{
		ID:              uuid.New(),
		Email:           normalizeEmail(claims.Email),
		DisplayName:     claims.Name,
		OAuthProvider:   googleProvider,
		OAuthProviderID: claims.Sub,
		CreatedAt:       now,
		UpdatedAt:       now,
		LastSignInAt:    &now,
	})
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	return p.createSession(ctx, &created)
}

// SignUp registers a password account.
func (p *Provider) SignUp(ctx context.Context, input identity.SignUpInput) (*identity.Principal, error) {
	email := normalizeEmail(input.Email)
	existing, err := p.accounts.FindAccountByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if existing != nil {
		return nil, identity.ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), p.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := p.now().UTC()
	account, err := p.accounts.CreateAccount(ctx, Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  input.DisplayName,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	return principalOf(&account), nil
}

// SignOut removes the session behind token. Unknown tokens are ignored.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return p.sessions.DeleteSessionByTokenHash(ctx, hashToken(token))
}

// ResetPasswordForEmail issues a recovery token. Unknown emails succeed silently.
func (p *Provider) ResetPasswordForEmail(ctx context.Context, email string) error {
	account, err := p.accounts.FindAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		p.logger.Debug("password recovery for unknown email")
		return nil
	}

	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("generate recovery token: %w", err)
	}

	now := p.now().UTC()
	recovery := Recovery{AccountID: account.ID, ExpiresAt: now.Add(p.recoveryTTL), CreatedAt: now}
	if err := p.accounts.CreateRecovery(ctx, recovery, hashToken(token)); err != nil {
		return fmt.Errorf("create recovery: %w", err)
	}

	if p.notifier == nil {
		return nil
	}
	if err := p.notifier.SendRecovery(ctx, account.Email, token); err != nil {
		return fmt.Errorf("send recovery: %w", err)
	}
	return nil
}

// RedeemRecovery consumes a recovery token and issues a session for its account.
func (p *Provider) RedeemRecovery(ctx context.Context, recoveryToken string) (*identity.ProviderSession, error) {
	recovery, err := p.accounts.ConsumeRecovery(ctx, hashToken(recoveryToken))
	if err != nil {
		return nil, fmt.Errorf("consume recovery: %w", err)
	}
	if recovery == nil || p.now().After(recovery.ExpiresAt) {
		return nil, identity.ErrRecoveryInvalid
	}

	account, err := p.accounts.FindAccountByID(ctx, recovery.AccountID)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		return nil, identity.ErrRecoveryInvalid
	}

	return p.createSession(ctx, account)
}

// UpdatePassword sets a new password for the account behind token.
func (p *Provider) UpdatePassword(ctx context.Context, token, newPassword string) error {
	principal, err := p.GetUser(ctx, token)
	if err != nil {
		return err
	}
	if principal == nil {
		return identity.ErrNotAuthenticated
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), p.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := p.accounts.UpdatePasswordHash(ctx, principal.ID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// CleanupExpiredSessions removes all expired sessions.
func (p *Provider) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	return p.sessions.DeleteExpiredSessions(ctx)
}

func (p *Provider) createSession(ctx context.Context, account *Account) (*identity.ProviderSession, error) {
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	info := clientInfoFrom(ctx)
	now := p.now().UTC()
	session := Session{
		ID:        uuid.New(),
		AccountID: account.ID,
		ExpiresAt: now.Add(p.sessionTTL),
		CreatedAt: now,
		UserAgent: truncateString(info.UserAgent, 512),
		IPAddress: truncateString(info.IPAddress, 45),
	}

	if err := p.sessions.CreateSession(ctx, session, hashToken(token)); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &identity.ProviderSession{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		Principal: *principalOf(account),
	}, nil
}

type clientInfoKey struct{}

// ClientInfo describes the client a session is issued to.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

// WithClientInfo attaches client metadata that new sessions record.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, info)
}

func clientInfoFrom(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(clientInfoKey{}).(ClientInfo)
	return info
}

func principalOf(account *Account) *identity.Principal {
	return &identity.Principal{
		ID:          account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
	}
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// hashToken returns the SHA-256 hash of the token as a hex string.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// truncateString truncates a string to the given max length.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
