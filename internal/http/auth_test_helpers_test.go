package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sessiongate/internal/config"
	"sessiongate/internal/identity"
	"sessiongate/internal/idp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	return config.Config{
		Environment:    "development",
		AllowedOrigins: []string{"http://localhost:4200"},
		SignInPerMin:   100,
		FrontendURL:    "http://frontend.test",
		SessionTTL:     time.Hour,
		ClientIdleTTL:  time.Hour,
	}
}

// testStack is the full identity stack over in-memory repositories.
type testStack struct {
	provider *idp.Provider
	accounts *idp.InMemoryRepository
	profiles *idp.InMemoryProfileStore
	identity *identity.Service
	clients  *ClientRegistry
}

func newTestStack(t *testing.T, opts ...identity.Option) *testStack {
	t.Helper()
	return buildTestStack(nil, opts...)
}

// newTestStackWithNotifier wires a provider that delivers recovery tokens to notifier.
func newTestStackWithNotifier(t *testing.T, notifier idp.RecoveryNotifier, opts ...identity.Option) *testStack {
	t.Helper()
	return buildTestStack(notifier, opts...)
}

func buildTestStack(notifier idp.RecoveryNotifier, opts ...identity.Option) *testStack {
	repo := idp.NewInMemoryRepository()
	profiles := idp.NewInMemoryProfileStore()
	providerOpts := []idp.ProviderOption{
		idp.WithHashCost(bcrypt.MinCost),
		idp.WithProviderLogger(testLogger()),
	}
	if notifier != nil {
		providerOpts = append(providerOpts, idp.WithRecoveryNotifier(notifier))
	}
	provider := idp.NewProvider(repo, repo, time.Hour, providerOpts...)
	svc := identity.NewService(provider, profiles, append([]identity.Option{identity.WithLogger(testLogger())}, opts...)...)

	return &testStack{
		provider: provider,
		accounts: repo,
		profiles: profiles,
		identity: svc,
		clients:  NewClientRegistry(svc, time.Hour, testLogger()),
	}
}

func (s *testStack) router(t *testing.T, deps ...func(*Dependencies)) http.Handler {
	t.Helper()

	d := Dependencies{Identity: s.identity, Clients: s.clients}
	for _, fn := range deps {
		fn(&d)
	}
	return NewRouter(testConfig(), d, testLogger())
}

// signUp registers an account and returns a live session token for it.
func (s *testStack) signUp(t *testing.T, email, password string) string {
	t.Helper()

	ctx := context.Background()
	if _, err := s.identity.SignUp(ctx, identity.SignUpInput{Email: email, Password: password, DisplayName: "Ana"}); err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}
	result, err := s.identity.SignIn(ctx, identity.Credentials{Email: email, Password: password})
	if err != nil {
		t.Fatalf("SignIn returned error: %v", err)
	}
	return result.Session.Token
}

// authProviderStub scripts identity provider failures. Unset funcs behave like an
// empty provider.
type authProviderStub struct {
	getUser func(ctx context.Context, token string) (*identity.Principal, error)
	signOut func(ctx context.Context, token string) error
}

func (s *authProviderStub) GetUser(ctx context.Context, token string) (*identity.Principal, error) {
	if s.getUser != nil {
		return s.getUser(ctx, token)
	}
	return nil, nil
}

func (s *authProviderStub) SignInWithPassword(context.Context, string, string) (*identity.ProviderSession, error) {
	return nil, identity.ErrInvalidCredentials
}

func (s *authProviderStub) SignInWithGoogle(context.Context, identity.GoogleClaims) (*identity.ProviderSession, error) {
	return nil, identity.ErrProviderUnavailable
}

func (s *authProviderStub) SignUp(context.Context, identity.SignUpInput) (*identity.Principal, error) {
	return nil, identity.ErrProviderUnavailable
}

func (s *authProviderStub) SignOut(ctx context.Context, token string) error {
	if s.signOut != nil {
		return s.signOut(ctx, token)
	}
	return nil
}

func (s *authProviderStub) ResetPasswordForEmail(context.Context, string) error {
	return nil
}

func (s *authProviderStub) RedeemRecovery(context.Context, string) (*identity.ProviderSession, error) {
	return nil, identity.ErrRecoveryInvalid
}

func (s *authProviderStub) UpdatePassword(context.Context, string, string) error {
	return nil
}

// captureNotifier keeps the last recovery token instead of sending it.
type captureNotifier struct {
	email string
	token string
}

func (n *captureNotifier) SendRecovery(_ context.Context, email, token string) error {
	n.email = email
	n.token = token
	return nil
}

// browser keeps cookies across requests against a handler, like a real browser would.
type browser struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func newBrowser(t *testing.T, handler http.Handler) *browser {
	return &browser{t: t, handler: handler, cookies: make(map[string]*http.Cookie)}
}

func (b *browser) do(method, target, body string) *httptest.ResponseRecorder {
	b.t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) setSession(token string) {
	b.cookies[sessionCookieName] = &http.Cookie{Name: sessionCookieName, Value: token}
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
