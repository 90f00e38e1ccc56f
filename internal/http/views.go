package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sessiongate/internal/gate"
	"sessiongate/internal/identity"
)

// ViewHandler serves the public entry pages and the protected views.
type ViewHandler struct {
	identity      *identity.Service
	googleEnabled bool
	logger        *slog.Logger
}

// NewViewHandler creates a ViewHandler.
func NewViewHandler(identitySvc *identity.Service, googleEnabled bool, logger *slog.Logger) *ViewHandler {
	return &ViewHandler{identity: identitySvc, googleEnabled: googleEnabled, logger: logger}
}

type loginView struct {
	View          string `json:"view"`
	RedirectTo    string `json:"redirectTo,omitempty"`
	Error         string `json:"error,omitempty"`
	Message       string `json:"message,omitempty"`
	GoogleEnabled bool   `json:"googleEnabled"`
}

// Login handles GET /login, the public entry point. It echoes the intent only when it
// is a safe relative path.
func (h *ViewHandler) Login(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	intent := gate.IntentFromQuery(query, gate.DefaultEntryPoint)
	writeJSON(w, http.StatusOK, loginView{
		View:          "login",
		RedirectTo:    intent.From,
		Error:         query.Get("error"),
		Message:       query.Get("message"),
		GoogleEnabled: h.googleEnabled,
	})
}

// RecoverPassword handles GET /recover-password, the landing page of recovery links.
func (h *ViewHandler) RecoverPassword(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"view":     "recover-password",
		"hasToken": r.URL.Query().Get("token") != "",
	})
}

// Home handles GET /.
func (h *ViewHandler) Home(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"view": "home", "user": UserFromContext(r.Context())})
}

// Profile handles GET /profile with a fresh read of the profile record.
func (h *ViewHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	profile, err := h.identity.GetProfile(r.Context(), user.ID)
	if err != nil {
		writeIdentityError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"view": "profile", "user": profile})
}

type profileUpdateRequest struct {
	DisplayName *string               `json:"displayName,omitempty"`
	AvatarURL   *string               `json:"avatarUrl,omitempty"`
	Phone       *string               `json:"phone,omitempty"`
	BirthDate   *string               `json:"birthDate,omitempty"`
	Status      *identity.Status      `json:"status,omitempty"`
	Preferences *identity.Preferences `json:"preferences,omitempty"`
}

// UpdateProfile handles PUT /profile. An empty birthDate clears it.
func (h *ViewHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileUpdateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}

	update := identity.ProfileUpdate{
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		Phone:       req.Phone,
		Status:      req.Status,
		Preferences: req.Preferences,
	}
	if req.BirthDate != nil {
		birth, err := parseBirthDate(*req.BirthDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "birthDate must be YYYY-MM-DD")
			return
		}
		update.BirthDate = &birth
	}

	user := UserFromContext(r.Context())
	updated, err := h.identity.UpdateProfile(r.Context(), user.ID, update)
	if err != nil {
		writeIdentityError(w, err, h.logger)
		return
	}
	if client := ClientFromContext(r.Context()); client != nil {
		client.Store().Authenticate(updated)
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": updated})
}

type passwordUpdateRequest struct {
	Password string `json:"password"`
}

// UpdatePassword handles PUT /profile/password.
func (h *ViewHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordUpdateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}

	if err := h.identity.UpdatePassword(r.Context(), sessionToken(r), req.Password); err != nil {
		writeIdentityError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Settings handles GET /settings.
func (h *ViewHandler) Settings(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"view": "settings", "preferences": user.Preferences})
}

// Help handles GET /help.
func (h *ViewHandler) Help(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"view": "help"})
}

func parseBirthDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
