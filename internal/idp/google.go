package idp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"sessiongate/internal/identity"
)

const googleIssuer = "https://accounts.google.com"

// ErrEmailNotVerified is returned when Google reports an unverified address.
var ErrEmailNotVerified = errors.New("google email not verified")

// GoogleFederation exchanges Google authorization codes for verified identity claims.
type GoogleFederation struct {
	config   *oauth2.Config
	verifier *oidc.IDTokenVerifier
	allow    allowlist
}

// GoogleConfig holds the OAuth client registration.
type GoogleConfig struct {
	ClientID       string
	ClientSecret   string
	RedirectURL    string
	AllowedDomains []string
	AllowedEmails  []string
}

// NewGoogleFederation discovers Google's OIDC configuration and builds a federation client.
func NewGoogleFederation(ctx context.Context, cfg GoogleConfig) (*GoogleFederation, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}

	return &GoogleFederation{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		allow:    newAllowlist(cfg.AllowedDomains, cfg.AllowedEmails),
	}, nil
}

// AuthURL returns the consent URL carrying state.
func (g *GoogleFederation) AuthURL(state string) string {
	return g.config.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// Exchange trades an authorization code for verified claims.
func (g *GoogleFederation) Exchange(ctx context.Context, code string) (identity.GoogleClaims, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return identity.GoogleClaims{}, fmt.Errorf("token exchange: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return identity.GoogleClaims{}, errors.New("no id_token in response")
	}

	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return identity.GoogleClaims{}, fmt.Errorf("verify id_token: %w", err)
	}

	var claims identity.GoogleClaims
	if err := idToken.Claims(&claims); err != nil {
		return identity.GoogleClaims{}, fmt.Errorf("parse claims: %w", err)
	}
	if !claims.EmailVerified {
		return identity.GoogleClaims{}, ErrEmailNotVerified
	}

	return claims, nil
}

// IsEmailAllowed reports whether email passes the configured allowlists.
func (g *GoogleFederation) IsEmailAllowed(email string) bool {
	return g.allow.permits(email)
}

// allowlist restricts federated sign-in to listed emails or domains.
// An empty allowlist permits everyone.
type allowlist struct {
	domains map[string]struct{}
	emails  map[string]struct{}
}

func newAllowlist(domains, emails []string) allowlist {
	return allowlist{domains: toSet(domains), emails: toSet(emails)}
}

func (a allowlist) permits(email string) bool {
	if len(a.domains) == 0 && len(a.emails) == 0 {
		return true
	}

	email = normalizeEmail(email)
	if _, ok := a.emails[email]; ok {
		return true
	}

	_, domain, found := strings.Cut(email, "@")
	if !found {
		return false
	}
	_, ok := a.domains[domain]
	return ok
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// GenerateState returns a random OAuth state value.
func GenerateState() (string, error) {
	return generateToken()
}
