package http

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"sessiongate/internal/gate"
	"sessiongate/internal/identity"
	"sessiongate/internal/idp"
)

// oauthStatePayload holds the CSRF state and the navigation intent to resume.
type oauthStatePayload struct {
	State      string `json:"s"`
	RedirectTo string `json:"r,omitempty"`
}

// GoogleFederation is the part of idp.GoogleFederation the handler needs.
type GoogleFederation interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (identity.GoogleClaims, error)
	IsEmailAllowed(email string) bool
}

// OAuthHandler handles the Google sign-in round trip.
type OAuthHandler struct {
	google      GoogleFederation
	identity    *identity.Service
	recorder    SignInRecorder
	cookies     cookieFactory
	logger      *slog.Logger
	frontendURL string
}

// NewOAuthHandler creates a new OAuthHandler.
func NewOAuthHandler(google GoogleFederation, identitySvc *identity.Service, recorder SignInRecorder, frontendURL, env string, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		google:      google,
		identity:    identitySvc,
		recorder:    recorder,
		cookies:     newCookieFactory(env),
		logger:      logger,
		frontendURL: strings.TrimSuffix(frontendURL, "/"),
	}
}

// InitiateGoogle handles GET /api/auth/google and sends the browser to Google's consent screen.
func (h *OAuthHandler) InitiateGoogle(w http.ResponseWriter, r *http.Request) {
	state, err := idp.GenerateState()
	if err != nil {
		h.logger.Error("failed to generate state", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, h.cookies.oauthState(state))

	payload := oauthStatePayload{State: state}
	if intent := gate.IntentFromQuery(r.URL.Query(), gate.DefaultEntryPoint); !intent.Empty() {
		payload.RedirectTo = intent.From
	}

	// base64 JSON avoids delimiter issues inside the state parameter.
	stateJSON, _ := json.Marshal(payload)
	fullState := base64.RawURLEncoding.EncodeToString(stateJSON)

	http.Redirect(w, r, h.google.AuthURL(fullState), http.StatusTemporaryRedirect)
}

// CallbackGoogle handles GET /api/auth/google/callback: it checks state, exchanges the
// code, signs the identity in and resumes the stored intent.
func (h *OAuthHandler) CallbackGoogle(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookieName)
	if err != nil {
		h.logger.Warn("oauth callback: missing state cookie")
		h.redirectWithError(w, r, "invalid_request", "Session expired. Please try again.", "")
		return
	}

	statePayload, ok := decodeOAuthState(r.URL.Query().Get("state"))
	if !ok || subtle.ConstantTimeCompare([]byte(statePayload.State), []byte(stateCookie.Value)) != 1 {
		h.logger.Warn("oauth callback: invalid state")
		h.redirectWithError(w, r, "invalid_request", "Invalid state. Please try again.", "")
		return
	}
	intent := gate.NewIntent(statePayload.RedirectTo, gate.DefaultEntryPoint)

	http.SetCookie(w, h.cookies.clearOAuthState())

	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		h.logger.Warn("oauth callback: provider error", "error", errParam)
		h.redirectWithError(w, r, errParam, query.Get("error_description"), intent.From)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.redirectWithError(w, r, "invalid_request", "Missing authorization code.", intent.From)
		return
	}

	claims, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		if errors.Is(err, idp.ErrEmailNotVerified) {
			h.logger.Warn("oauth callback: email not verified")
			h.redirectWithError(w, r, "email_not_verified", "Please verify your Google email address.", intent.From)
			return
		}
		h.logger.Error("oauth callback: exchange failed", "error", err)
		h.redirectWithError(w, r, "exchange_error", "Failed to complete authentication.", intent.From)
		return
	}

	if !h.google.IsEmailAllowed(claims.Email) {
		h.logger.Warn("oauth callback: email not allowed", "email", claims.Email)
		h.record("rejected")
		h.redirectWithError(w, r, "access_denied", "Your account is not authorized to access this application.", intent.From)
		return
	}

	result, err := h.identity.SignInWithGoogle(withClientInfo(r), claims)
	if err != nil {
		h.logger.Error("oauth callback: sign-in failed", "error", err)
		h.record(outcomeOf(err))
		h.redirectWithError(w, r, "internal_error", "Failed to sign in.", intent.From)
		return
	}
	h.record("success")

	http.SetCookie(w, h.cookies.session(result.Session.Token, result.Session.ExpiresAt))
	adoptSession(r, result.Session.Token, intent.ResumeTarget("/"))
	h.logger.Info("oauth sign-in successful", "user_id", result.User.ID)

	http.Redirect(w, r, h.frontendURL+intent.ResumeTarget("/"), http.StatusTemporaryRedirect)
}

func decodeOAuthState(raw string) (oauthStatePayload, bool) {
	stateBytes, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return oauthStatePayload{}, false
	}
	var payload oauthStatePayload
	if err := json.Unmarshal(stateBytes, &payload); err != nil || payload.State == "" {
		return oauthStatePayload{}, false
	}
	return payload, true
}

// redirectWithError sends the browser back to the entry point with error details,
// keeping the original intent so a retry still resumes it.
func (h *OAuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, code, message, redirectTo string) {
	values := url.Values{"error": {code}}
	if message != "" {
		values.Set("message", message)
	}
	if redirectTo != "" {
		values.Set(gate.IntentParam, redirectTo)
	}
	http.Redirect(w, r, h.frontendURL+gate.DefaultEntryPoint+"?"+values.Encode(), http.StatusTemporaryRedirect)
}

func (h *OAuthHandler) record(outcome string) {
	if h.recorder != nil {
		h.recorder.RecordSignIn("google", outcome)
	}
}
