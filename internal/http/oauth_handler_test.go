package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"

	"sessiongate/internal/identity"
	"sessiongate/internal/idp"
)

// encodeOAuthState creates a base64-encoded JSON state payload for testing
func encodeOAuthState(state, redirectTo string) string {
	payload := oauthStatePayload{State: state, RedirectTo: redirectTo}
	data, _ := json.Marshal(payload)
	return base64.RawURLEncoding.EncodeToString(data)
}

type fakeGoogle struct {
	authURLBase    string
	lastState      string
	exchangeClaims identity.GoogleClaims
	exchangeErr    error
	allowEmail     bool
}

func (f *fakeGoogle) AuthURL(state string) string {
	f.lastState = state
	if f.authURLBase == "" {
		f.authURLBase = "https://accounts.google.com/auth?state="
	}
	return f.authURLBase + state
}

func (f *fakeGoogle) Exchange(ctx context.Context, code string) (identity.GoogleClaims, error) {
	if f.exchangeErr != nil {
		return identity.GoogleClaims{}, f.exchangeErr
	}
	return f.exchangeClaims, nil
}

func (f *fakeGoogle) IsEmailAllowed(email string) bool {
	return f.allowEmail
}

type signInRecorderStub struct {
	outcomes []string
}

func (s *signInRecorderStub) RecordSignIn(method, outcome string) {
	s.outcomes = append(s.outcomes, method+":"+outcome)
}

func newOAuthTestHandler(t *testing.T, google *fakeGoogle, recorder SignInRecorder) *OAuthHandler {
	t.Helper()
	stack := newTestStack(t)
	return NewOAuthHandler(google, stack.identity, recorder, "http://frontend.test/", "development", testLogger())
}

func callbackRequest(state, redirectTo, query string) *http.Request {
	encoded := encodeOAuthState(state, redirectTo)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?state="+url.QueryEscape(encoded)+query, nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookieName, Value: state})
	return req
}

func validClaims() identity.GoogleClaims {
	return identity.GoogleClaims{Sub: "sub-1", Email: "user@example.com", EmailVerified: true, Name: "User"}
}

func TestOAuthInitiateGoogleSetsStateCookieAndRedirects(t *testing.T) {
	google := &fakeGoogle{allowEmail: true}
	handler := newOAuthTestHandler(t, google, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google?redirectTo=/settings", nil)
	rec := httptest.NewRecorder()

	handler.InitiateGoogle(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected status 307, got %d", rec.Code)
	}
	stateCookie := findCookie(rec, oauthStateCookieName)
	if stateCookie == nil || stateCookie.Value == "" {
		t.Fatal("expected state cookie to be set")
	}

	statePayload, ok := decodeOAuthState(google.lastState)
	if !ok {
		t.Fatalf("failed to decode state %q", google.lastState)
	}
	if statePayload.State != stateCookie.Value {
		t.Fatalf("expected state to match cookie value %q, got %q", stateCookie.Value, statePayload.State)
	}
	if statePayload.RedirectTo != "/settings" {
		t.Fatalf("expected redirectTo to be /settings, got %q", statePayload.RedirectTo)
	}

	if location := rec.Header().Get("Location"); location != google.authURLBase+google.lastState {
		t.Fatalf("expected redirect to %q, got %q", google.authURLBase+google.lastState, location)
	}
}

func TestOAuthInitiateGoogleDropsUnsafeIntent(t *testing.T) {
	google := &fakeGoogle{}
	handler := newOAuthTestHandler(t, google, nil)

	rec := httptest.NewRecorder()
	handler.InitiateGoogle(rec, httptest.NewRequest(http.MethodGet, "/api/auth/google?redirectTo=//evil.test", nil))

	payload, ok := decodeOAuthState(google.lastState)
	if !ok {
		t.Fatal("expected decodable state")
	}
	if payload.RedirectTo != "" {
		t.Fatalf("expected unsafe intent to be dropped, got %q", payload.RedirectTo)
	}
}

func TestOAuthCallbackRejectsMissingStateCookie(t *testing.T) {
	handler := newOAuthTestHandler(t, &fakeGoogle{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?state=abc", nil)
	rec := httptest.NewRecorder()

	handler.CallbackGoogle(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected status 307, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Location"), "http://frontend.test/login?error=invalid_request") {
		t.Fatalf("expected invalid_request redirect, got %q", rec.Header().Get("Location"))
	}
}

func TestOAuthCallbackRejectsStateMismatch(t *testing.T) {
	handler := newOAuthTestHandler(t, &fakeGoogle{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?state="+encodeOAuthState("one", "")+"&code=x", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookieName, Value: "two"})
	rec := httptest.NewRecorder()

	handler.CallbackGoogle(rec, req)

	if !strings.Contains(rec.Header().Get("Location"), "error=invalid_request") {
		t.Fatalf("expected invalid_request redirect, got %q", rec.Header().Get("Location"))
	}
}

func TestOAuthCallbackErrorsKeepIntent(t *testing.T) {
	tests := []struct {
		name      string
		google    *fakeGoogle
		query     string
		wantError string
	}{
		{name: "provider error", google: &fakeGoogle{}, query: "&error=access_denied", wantError: "access_denied"},
		{name: "missing code", google: &fakeGoogle{}, query: "", wantError: "invalid_request"},
		{name: "exchange failure", google: &fakeGoogle{exchangeErr: errors.New("boom")}, query: "&code=1", wantError: "exchange_error"},
		{name: "unverified email", google: &fakeGoogle{exchangeErr: idp.ErrEmailNotVerified}, query: "&code=1", wantError: "email_not_verified"},
		{name: "not allowed", google: &fakeGoogle{exchangeClaims: validClaims()}, query: "&code=1", wantError: "access_denied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newOAuthTestHandler(t, tt.google, nil)
			rec := httptest.NewRecorder()

			handler.CallbackGoogle(rec, callbackRequest("state123", "/profile", tt.query))

			location, err := url.Parse(rec.Header().Get("Location"))
			if err != nil {
				t.Fatalf("invalid redirect location: %v", err)
			}
			if location.Path != "/login" {
				t.Fatalf("expected redirect to /login, got %q", location.Path)
			}
			if got := location.Query().Get("error"); got != tt.wantError {
				t.Fatalf("expected error %q, got %q", tt.wantError, got)
			}
			if got := location.Query().Get("redirectTo"); got != "/profile" {
				t.Fatalf("expected intent /profile to survive, got %q", got)
			}
			if findCookie(rec, sessionCookieName) != nil {
				t.Fatal("expected no session cookie on failure")
			}
		})
	}
}

func TestOAuthCallbackSuccessRedirectsToFrontend(t *testing.T) {
	google := &fakeGoogle{exchangeClaims: validClaims(), allowEmail: true}
	recorder := &signInRecorderStub{}
	handler := newOAuthTestHandler(t, google, recorder)
	rec := httptest.NewRecorder()

	handler.CallbackGoogle(rec, callbackRequest("state123", "/settings", "&code=123"))

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected status 307, got %d", rec.Code)
	}
	if location := rec.Header().Get("Location"); location != "http://frontend.test/settings" {
		t.Fatalf("expected redirect to frontend intent, got %q", location)
	}
	if c := findCookie(rec, sessionCookieName); c == nil || c.Value == "" {
		t.Fatal("expected session cookie to be set")
	}
	if c := findCookie(rec, oauthStateCookieName); c == nil || c.MaxAge != -1 {
		t.Fatal("expected state cookie to be cleared")
	}
	if len(recorder.outcomes) != 1 || recorder.outcomes[0] != "google:success" {
		t.Fatalf("expected google:success, got %v", recorder.outcomes)
	}
}

func TestOAuthCallbackSanitizesRedirectTo(t *testing.T) {
	google := &fakeGoogle{exchangeClaims: validClaims(), allowEmail: true}
	handler := newOAuthTestHandler(t, google, nil)
	rec := httptest.NewRecorder()

	handler.CallbackGoogle(rec, callbackRequest("state123", "https://evil.test", "&code=123"))

	if location := rec.Header().Get("Location"); location != "http://frontend.test/" {
		t.Fatalf("expected redirect to root, got %q", location)
	}
}

func TestDecodeOAuthStateRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "%%%", base64.RawURLEncoding.EncodeToString([]byte(`{"r":"/x"}`))} {
		if _, ok := decodeOAuthState(raw); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestOAuthCallbackReplacesStoredUser(t *testing.T) {
	stack := newTestStack(t)
	google := &fakeGoogle{exchangeClaims: validClaims(), allowEmail: true}
	handler := NewOAuthHandler(google, stack.identity, nil, "http://frontend.test", "development", testLogger())
	client, _ := stack.clients.Resolve("")
	client.Store().Authenticate(&identity.User{ID: uuid.New(), Email: "old@example.com"})

	rec := httptest.NewRecorder()
	handler.CallbackGoogle(rec, withClient(callbackRequest("state123", "/settings", "&code=123"), client))

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected status 307, got %d", rec.Code)
	}
	snap := client.Store().Snapshot()
	if !snap.Authenticated || snap.User == nil || snap.User.Email != "user@example.com" {
		t.Fatalf("expected store to hold the google user, got %+v", snap)
	}
}
