package idp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sessiongate/internal/identity"
)

type notifierStub struct {
	email string
	token string
	err   error
}

func (n *notifierStub) SendRecovery(_ context.Context, email, token string) error {
	n.email = email
	n.token = token
	return n.err
}

func newTestProvider(t *testing.T, now *time.Time, opts ...ProviderOption) (*Provider, *InMemoryRepository) {
	t.Helper()

	repo := NewInMemoryRepository()
	clock := func() time.Time { return *now }
	repo.now = clock
	base := []ProviderOption{
		WithProviderLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithProviderClock(clock),
		WithHashCost(bcrypt.MinCost),
	}
	return NewProvider(repo, repo, time.Hour, append(base, opts...)...), repo
}

func signUp(t *testing.T, p *Provider, email, password string) *identity.Principal {
	t.Helper()

	principal, err := p.SignUp(context.Background(), identity.SignUpInput{Email: email, Password: password, DisplayName: "Ana"})
	if err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}
	return principal
}

func TestSignUpThenSignInWithPassword(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	provider, _ := newTestProvider(t, &now)
	principal := signUp(t, provider, "A@B.com", "secret1")

	if principal.Email != "a@b.com" {
		t.Fatalf("expected normalized email, got %q", principal.Email)
	}

	session, err := provider.SignInWithPassword(context.Background(), "a@b.com", "secret1")
	if err != nil {
		t.Fatalf("SignInWithPassword returned error: %v", err)
	}
	if session.Token == "" {
		t.Fatal("expected a session token")
	}
	if !session.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected expiry %v, got %v", now.Add(time.Hour), session.ExpiresAt)
	}

	got, err := provider.GetUser(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("GetUser returned error: %v", err)
	}
	if got == nil || got.ID != principal.ID {
		t.Fatalf("expected principal %v, got %+v", principal.ID, got)
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	now := time.Now()
	provider, _ := newTestProvider(t, &now)
	signUp(t, provider, "a@b.com", "secret1")

	_, err := provider.SignUp(context.Background(), identity.SignUpInput{Email: "A@b.com", Password: "other12"})
	if !errors.Is(err, identity.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignInWithPasswordRejectsBadCredentials(t *testing.T) {
	now := time.Now()
	provider, _ := newTestProvider(t, &now)
	signUp(t, provider, "a@b.com", "secret1")

	if _, err := provider.SignInWithPassword(context.Background(), "a@b.com", "wrong"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := provider.SignInWithPassword(context.Background(), "nobody@b.com", "secret1"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestGetUserUnknownTokenIsNoSession(t *testing.T) {
	now := time.Now()
	provider, _ := newTestProvider(t, &now)

	for _, token := range []string{"", "not-a-token"} {
		principal, err := provider.GetUser(context.Background(), token)
		if err != nil {
			t.Fatalf("GetUser(%q) returned error: %v", token, err)
		}
		if principal != nil {
			t.Fatalf("GetUser(%q) expected nil principal, got %+v", token, principal)
		}
	}
}

func TestGetUserExpiredSessionIsDeleted(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	provider, repo := newTestProvider(t, &now)
	signUp(t, provider, "a@b.com", "secret1")

	session, err := provider.SignInWithPassword(context.Background(), "a@b.com", "secret1")
	if err != nil {
		t.Fatalf("SignInWithPassword returned error: %v", err)
	}

	now = now.Add(2 * time.Hour)
	principal, err := provider.GetUser(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("GetUser returned error: %v", err)
	}
	if principal != nil {
		t.Fatalf("expected expired session to yield no principal, got %+v", principal)
	}
	if stored, _ := repo.FindSessionByTokenHash(context.Background(), hashToken(session.Token)); stored != nil {
		t.Fatal("expected expired session to be deleted")
	}
}

func TestSignOutRevokesSession(t *testing.T) {
	now := time.Now()
	provider, _ := newTestProvider(t, &now)
	signUp(t, provider, "a@b.com", "secret1")

	session, err := provider.SignInWithPassword(context.Background(), "a@b.com", "secret1")
	if err != nil {
		t.Fatalf("SignInWithPassword returned error: %v", err)
	}
	if err := provider.SignOut(context.Background(), session.Token); err != nil {
		t.Fatalf("SignOut returned error: %v", err)
	}
	if err := provider.SignOut(context.Background(), session.Token); err != nil {
		t.Fatalf("second SignOut returned error: %v", err)
	}

	principal, _ := provider.GetUser(context.Background(), session.Token)
	if principal != nil {
		t.Fatal("expected revoked session to yield no principal")
	}
}

func TestCreateSessionRecordsClientInfo(t *testing.T) {
	now := time.Now()
	provider, repo := newTestProvider(t, &now)
	signUp(t, provider, "a@b.com", "secret1")

	ctx := WithClientInfo(context.Background(), ClientInfo{UserAgent: "test-agent", IPAddress: "203.0.113.7"})
	session, err := provider.SignInWithPassword(ctx, "a@b.com", "secret1")
	if err != nil {
		t.Fatalf("SignInWithPassword returned error: %v", err)
	}

	stored, _ := repo.FindSessionByTokenHash(context.Background(), hashToken(session.Token))
	if stored == nil {
		t.Fatal("expected stored session")
	}
	if stored.UserAgent != "test-agent" || stored.IPAddress != "203.0.113.7" {
		t.Fatalf("expected client info recorded, got %+v", stored)
	}
}

func TestPasswordRecoveryFlow(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	notifier := &notifierStub{}
	provider, _ := newTestProvider(t, &now, WithRecoveryNotifier(notifier))
	principal := signUp(t, provider, "a@b.com", "secret1")

	if err := provider.ResetPasswordForEmail(context.Background(), "a@b.com"); err != nil {
		t.Fatalf("ResetPasswordForEmail returned error: %v", err)
	}
	if notifier.email != "a@b.com" || notifier.token == "" {
		t.Fatalf("expected recovery notification, got %+v", notifier)
	}

	session, err := provider.RedeemRecovery(context.Background(), notifier.token)
	if err != nil {
		t.Fatalf("RedeemRecovery returned error: %v", err)
	}
	if session.Principal.ID != principal.ID {
		t.Fatalf("expected session for %v, got %v", principal.ID, session.Principal.ID)
	}

	if _, err := provider.RedeemRecovery(context.Background(), notifier.token); !errors.Is(err, identity.ErrRecoveryInvalid) {
		t.Fatalf("expected second redemption to fail with ErrRecoveryInvalid, got %v", err)
	}

	if err := provider.UpdatePassword(context.Background(), session.Token, "newpass1"); err != nil {
		t.Fatalf("UpdatePassword returned error: %v", err)
	}
	if _, err := provider.SignInWithPassword(context.Background(), "a@b.com", "newpass1"); err != nil {
		t.Fatalf("expected sign-in with new password, got %v", err)
	}
}

func TestRedeemRecoveryExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	notifier := &notifierStub{}
	provider, _ := newTestProvider(t, &now, WithRecoveryNotifier(notifier))
	signUp(t, provider, "a@b.com", "secret1")

	if err := provider.ResetPasswordForEmail(context.Background(), "a@b.com"); err != nil {
		t.Fatalf("ResetPasswordForEmail returned error: %v", err)
	}
	now = now.Add(2 * time.Hour)

	if _, err := provider.RedeemRecovery(context.Background(), notifier.token); !errors.Is(err, identity.ErrRecoveryInvalid) {
		t.Fatalf("expected ErrRecoveryInvalid, got %v", err)
	}
}

func TestResetPasswordUnknownEmailIsSilent(t *testing.T) {
	now := time.Now()
	notifier := &notifierStub{}
	provider, _ := newTestProvider(t, &now, WithRecoveryNotifier(notifier))

	if err := provider.ResetPasswordForEmail(context.Background(), "ghost@b.com"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if notifier.token != "" {
		t.Fatal("expected no notification for unknown email")
	}
}

func TestUpdatePasswordRequiresSession(t *testing.T) {
	now := time.Now()
	provider, _ := newTestProvider(t, &now)

	if err := provider.UpdatePassword(context.Background(), "missing", "newpass1"); !errors.Is(err, identity.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestSignInWithGoogleCreatesThenReusesAccount(t *testing.T) {
	now := time.Now()
	provider, _ := newTestProvider(t, &now)
	claims := identity.GoogleClaims{Sub: "g-123", Email: "G@Example.com", EmailVerified: true, Name: "Gabi"}

	first, err := provider.SignInWithGoogle(context.Background(), claims)
	if err != nil {
		t.Fatalf("SignInWithGoogle returned error: %v", err)
	}
	if first.Principal.Email != "g@example.com" || first.Principal.DisplayName != "Gabi" {
		t.Fatalf("unexpected principal %+v", first.Principal)
	}

	second, err := provider.SignInWithGoogle(context.Background(), claims)
	if err != nil {
		t.Fatalf("SignInWithGoogle returned error: %v", err)
	}
	if second.Principal.ID != first.Principal.ID {
		t.Fatal("expected the same account on repeat sign-in")
	}
	if second.Token == first.Token {
		t.Fatal("expected a fresh session token")
	}
}

func TestSignInWithGoogleLinksExistingEmail(t *testing.T) {
	now := time.Now()
	provider, _ := newTestProvider(t, &now)
	principal := signUp(t, provider, "a@b.com", "secret1")

	session, err := provider.SignInWithGoogle(context.Background(), identity.GoogleClaims{Sub: "g-1", Email: "a@b.com", EmailVerified: true})
	if err != nil {
		t.Fatalf("SignInWithGoogle returned error: %v", err)
	}
	if session.Principal.ID != principal.ID {
		t.Fatalf("expected existing account %v, got %v", principal.ID, session.Principal.ID)
	}
	if session.Principal.DisplayName != "Ana" {
		t.Fatalf("expected display name kept when claims carry none, got %q", session.Principal.DisplayName)
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	provider, _ := newTestProvider(t, &now)
	signUp(t, provider, "a@b.com", "secret1")

	for i := 0; i < 2; i++ {
		if _, err := provider.SignInWithPassword(context.Background(), "a@b.com", "secret1"); err != nil {
			t.Fatalf("SignInWithPassword returned error: %v", err)
		}
	}

	now = now.Add(2 * time.Hour)
	removed, err := provider.CleanupExpiredSessions(context.Background())
	if err != nil {
		t.Fatalf("CleanupExpiredSessions returned error: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 sessions removed, got %d", removed)
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("abcdef", 3); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if got := truncateString("ab", 3); got != "ab" {
		t.Fatalf("expected ab, got %q", got)
	}
}
