package migrate

import (
	"fmt"
	"log/slog"
	"strings"
)

// gooseSlogLogger routes goose output through slog. Fatalf is only reached by
// goose's non-context helpers, which Apply does not use, so it logs instead of exiting.
type gooseSlogLogger struct {
	logger *slog.Logger
}

func (l gooseSlogLogger) Printf(format string, v ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "goose")
}

func (l gooseSlogLogger) Fatalf(format string, v ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "goose")
}
