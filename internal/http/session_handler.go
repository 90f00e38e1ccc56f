package http

import (
	"log/slog"
	"net/http"

	"sessiongate/internal/identity"
)

// SessionHandler reports and ends the browser's session.
type SessionHandler struct {
	identity *identity.Service
	cookies  cookieFactory
	logger   *slog.Logger
}

// NewSessionHandler returns a handler backed by the identity service.
func NewSessionHandler(identitySvc *identity.Service, env string, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{identity: identitySvc, cookies: newCookieFactory(env), logger: logger}
}

type sessionStatusResponse struct {
	IsAuthenticated bool           `json:"isAuthenticated"`
	IsLoading       bool           `json:"isLoading"`
	User            *identity.User `json:"user"`
}

// Status returns the client's session store snapshot and whether a verification is pending.
// It never contacts the provider; only gate mounts do.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	client := ClientFromContext(r.Context())
	if client == nil {
		writeJSON(w, http.StatusOK, sessionStatusResponse{})
		return
	}

	snapshot := client.Store().Snapshot()
	writeJSON(w, http.StatusOK, sessionStatusResponse{
		IsAuthenticated: snapshot.Authenticated,
		IsLoading:       client.Gate().Verifying(),
		User:            snapshot.User,
	})
}

// SignOut invalidates the provider session, clears the client's store and drops the cookie.
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	var store identity.StoreClearer
	if client := ClientFromContext(r.Context()); client != nil {
		store = client.Store()
	}

	if err := h.identity.SignOut(r.Context(), sessionToken(r), store); err != nil {
		writeIdentityError(w, err, h.logger)
		return
	}

	http.SetCookie(w, h.cookies.clearSession())
	w.WriteHeader(http.StatusNoContent)
}

// adoptSession mounts the client's gate with a freshly issued token, so the store
// describes the new principal and any older in-flight mount becomes stale.
func adoptSession(r *http.Request, token, path string) {
	if client := ClientFromContext(r.Context()); client != nil {
		client.Gate().Guard(r.Context(), token, path)
	}
}
