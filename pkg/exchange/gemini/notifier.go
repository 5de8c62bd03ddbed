package gemini

import (
	"github.com/rs/zerolog"

	"gemsync/pkg/core"
)

// LogNotifier forwards user-facing notifications to a logger.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements core.Notifier.
func (n *LogNotifier) Notify(severity core.Severity, message string) {
	ev := n.logger.Warn()
	if severity == core.SeverityError {
		ev = n.logger.Error()
	}
	ev.Str("severity", severity.String()).Msg(message)
}
