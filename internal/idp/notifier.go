package idp

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
)

// RecoveryNotifier delivers password recovery tokens to account owners.
type RecoveryNotifier interface {
	SendRecovery(ctx context.Context, email, token string) error
}

// LogNotifier writes recovery links to the log. Meant for local development.
type LogNotifier struct {
	logger  *slog.Logger
	baseURL string
}

// NewLogNotifier creates a LogNotifier that builds links against baseURL.
func NewLogNotifier(logger *slog.Logger, baseURL string) *LogNotifier {
	return &LogNotifier{logger: logger, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// SendRecovery logs the recovery link.
func (n *LogNotifier) SendRecovery(_ context.Context, email, token string) error {
	link := n.baseURL + "/recover-password?" + url.Values{"token": {token}}.Encode()
	n.logger.Info("password recovery requested", "email", email, "link", link)
	return nil
}
