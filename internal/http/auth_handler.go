package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"sessiongate/internal/gate"
	"sessiongate/internal/identity"
	"sessiongate/internal/idp"
)

// SignInRecorder counts sign-in attempts.
type SignInRecorder interface {
	RecordSignIn(method, outcome string)
}

// AuthHandler exposes the credential endpoints under /api/auth.
type AuthHandler struct {
	identity *identity.Service
	limiter  *signInLimiter
	recorder SignInRecorder
	cookies  cookieFactory
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. perMinute bounds sign-in attempts per client IP.
func NewAuthHandler(identitySvc *identity.Service, perMinute int, recorder SignInRecorder, env string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		identity: identitySvc,
		limiter:  newSignInLimiter(perMinute),
		recorder: recorder,
		cookies:  newCookieFactory(env),
		logger:   logger,
	}
}

type signInRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

type signInResponse struct {
	User       *identity.User `json:"user"`
	RedirectTo string         `json:"redirectTo"`
}

// SignIn handles POST /api/auth/sign-in.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(clientIPFromRequest(r)) {
		h.record("password", "throttled")
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "too many sign-in attempts")
		return
	}

	var req signInRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}

	result, err := h.identity.SignIn(withClientInfo(r), identity.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		h.record("password", outcomeOf(err))
		writeIdentityError(w, err, h.logger)
		return
	}
	h.record("password", "success")

	http.SetCookie(w, h.cookies.session(result.Session.Token, result.Session.ExpiresAt))
	intent := gate.NewIntent(req.RedirectTo, gate.DefaultEntryPoint)
	adoptSession(r, result.Session.Token, intent.ResumeTarget("/"))
	writeJSON(w, http.StatusOK, signInResponse{User: result.User, RedirectTo: intent.ResumeTarget("/")})
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// SignUp handles POST /api/auth/sign-up. The new account still has to sign in.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}

	user, err := h.identity.SignUp(r.Context(), identity.SignUpInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeIdentityError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

type emailRequest struct {
	Email string `json:"email"`
}

// ResetPassword handles POST /api/auth/reset-password. It answers 202 whether or
// not the address is registered.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}

	if err := h.identity.ResetPassword(r.Context(), req.Email); err != nil {
		writeIdentityError(w, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

type recoverRequest struct {
	Token string `json:"token"`
}

// Recover handles POST /api/auth/recover: it redeems a recovery token for a session
// and points the browser at the password form.
func (h *AuthHandler) Recover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}

	result, err := h.identity.RecoverSession(withClientInfo(r), strings.TrimSpace(req.Token))
	if err != nil {
		h.record("recovery", outcomeOf(err))
		writeIdentityError(w, err, h.logger)
		return
	}
	h.record("recovery", "success")

	http.SetCookie(w, h.cookies.session(result.Session.Token, result.Session.ExpiresAt))
	adoptSession(r, result.Session.Token, "/profile")
	writeJSON(w, http.StatusOK, signInResponse{User: result.User, RedirectTo: "/profile"})
}

// EmailExists handles GET /api/auth/email-exists?email=...
func (h *AuthHandler) EmailExists(w http.ResponseWriter, r *http.Request) {
	exists, err := h.identity.EmailExists(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		writeIdentityError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (h *AuthHandler) record(method, outcome string) {
	if h.recorder != nil {
		h.recorder.RecordSignIn(method, outcome)
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrRecoveryInvalid):
		return "rejected"
	case errors.Is(err, identity.ErrValidation):
		return "invalid"
	case errors.Is(err, identity.ErrProfileNotFound):
		return "no_profile"
	default:
		return "error"
	}
}

func withClientInfo(r *http.Request) context.Context {
	return idp.WithClientInfo(r.Context(), idp.ClientInfo{
		UserAgent: r.UserAgent(),
		IPAddress: clientIPFromRequest(r),
	})
}
