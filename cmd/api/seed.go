package main

import (
	"context"
	"errors"
	"log/slog"

	"sessiongate/internal/identity"
)

type demoAccount struct {
	email       string
	password    string
	displayName string
	theme       identity.Theme
}

var demoAccounts = []demoAccount{
	{email: "ana@example.com", password: "demo1234", displayName: "Ana Souza", theme: identity.ThemeLight},
	{email: "bruno@example.com", password: "demo1234", displayName: "Bruno Lima", theme: identity.ThemeDark},
	{email: "carla@example.com", password: "demo1234", displayName: "Carla Mendes", theme: identity.ThemeLight},
}

// seedDemoAccounts registers a few accounts so the in-memory store is usable right away.
func seedDemoAccounts(ctx context.Context, svc *identity.Service, logger *slog.Logger) {
	for _, demo := range demoAccounts {
		user, err := svc.SignUp(ctx, identity.SignUpInput{
			Email:       demo.email,
			Password:    demo.password,
			DisplayName: demo.displayName,
		})
		if err != nil {
			if !errors.Is(err, identity.ErrEmailTaken) {
				logger.Warn("failed to seed demo account", "email", demo.email, "error", err)
			}
			continue
		}

		if demo.theme != user.Preferences.Theme {
			prefs := user.Preferences
			prefs.Theme = demo.theme
			if _, err := svc.UpdateProfile(ctx, user.ID, identity.ProfileUpdate{Preferences: &prefs}); err != nil {
				logger.Warn("failed to set demo preferences", "email", demo.email, "error", err)
			}
		}
	}
	logger.Info("seeded demo accounts", "count", len(demoAccounts), "password", "demo1234")
}
