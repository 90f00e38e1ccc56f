package http

import (
	"net/http"
	"strings"
	"time"
)

const (
	sessionCookieName    = "sg_session"
	clientCookieName     = "sg_client"
	oauthStateCookieName = "sg_oauth_state"

	clientCookieTTL     = 30 * 24 * time.Hour
	oauthStateCookieTTL = 10 * time.Minute
)

// cookieFactory builds the service's cookies: HttpOnly, SameSite=Lax, Secure outside development.
type cookieFactory struct {
	secure bool
	now    func() time.Time
}

func newCookieFactory(environment string) cookieFactory {
	return cookieFactory{secure: !strings.EqualFold(environment, "development"), now: time.Now}
}

func (f cookieFactory) session(token string, expiresAt time.Time) *http.Cookie {
	maxAge := int(expiresAt.Sub(f.now()).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   f.secure,
		MaxAge:   maxAge,
		Expires:  expiresAt,
	}
}

func (f cookieFactory) clearSession() *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   f.secure,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	}
}

func (f cookieFactory) client(id string) *http.Cookie {
	return &http.Cookie{
		Name:     clientCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   f.secure,
		MaxAge:   int(clientCookieTTL.Seconds()),
	}
}

func (f cookieFactory) oauthState(state string) *http.Cookie {
	return &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    state,
		Path:     "/api/auth",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   f.secure,
		MaxAge:   int(oauthStateCookieTTL.Seconds()),
	}
}

func (f cookieFactory) clearOAuthState() *http.Cookie {
	return &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    "",
		Path:     "/api/auth",
		HttpOnly: true,
		Secure:   f.secure,
		MaxAge:   -1,
	}
}

func sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
