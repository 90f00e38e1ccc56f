package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"sessiongate/internal/identity"
)

const maxJSONBodyBytes int64 = 64 << 10

var errPayloadTooLarge = errors.New("payload too large")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	limited := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() {
		_ = limited.Close()
	}()

	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w (max %d bytes)", errPayloadTooLarge, maxErr.Limit)
		}
		return err
	}
	return nil
}

func writeJSONError(w http.ResponseWriter, err error) {
	if errors.Is(err, errPayloadTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	// Generic message so JSON parser details are not leaked.
	writeError(w, http.StatusBadRequest, "invalid request body")
}

// writeIdentityError maps identity sentinels onto HTTP statuses.
func writeIdentityError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, identity.ErrNotAuthenticated):
		unauthorized(w)
	case errors.Is(err, identity.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, identity.ErrProfileNotFound):
		writeError(w, http.StatusConflict, "profile not found")
	case errors.Is(err, identity.ErrRecoveryInvalid):
		writeError(w, http.StatusBadRequest, "recovery link is invalid or expired")
	case errors.Is(err, identity.ErrValidation):
		writeError(w, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, identity.ErrProviderUnavailable):
		logger.Warn("identity provider unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "identity provider unavailable")
	default:
		logger.Error("identity error", "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
	}
}

// validationMessage strips the sentinel prefix so only the field problem is returned.
func validationMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, identity.ErrValidation.Error()+": "); i >= 0 {
		return msg[i+len(identity.ErrValidation.Error())+2:]
	}
	return msg
}

func unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "authentication required")
}

// clientIPFromRequest returns the host part of RemoteAddr, which chi's RealIP
// middleware has already resolved from forwarding headers.
func clientIPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
