// Package notify is the user-facing notification seam. Implementations must
// be fire-and-forget: Notify never blocks and never returns an error.
package notify

import "log/slog"

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Notifier interface {
	Notify(title, description string, severity Severity)
}

// LogNotifier routes notifications to structured logs. It is the default sink
// for headless runs; UIs supply their own Notifier.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log.With("component", "notifier")}
}

func (n *LogNotifier) Notify(title, description string, severity Severity) {
	switch severity {
	case SeverityError:
		n.log.Error(title, "description", description)
	case SeverityWarning:
		n.log.Warn(title, "description", description)
	default:
		n.log.Info(title, "description", description)
	}
}

// Func adapts a plain function to the Notifier interface.
type Func func(title, description string, severity Severity)

func (f Func) Notify(title, description string, severity Severity) {
	f(title, description, severity)
}
