// -----------------------------------------------------------------------
// Log Notifier - Headless notification surface backed by the logger
// -----------------------------------------------------------------------

package notify

import (
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/GSejas/mermaid-export-pro/internal/interfaces"
)

// LogNotifier routes notifications to the log. With no interactive user
// present, the first button is treated as the accepted default action.
type LogNotifier struct {
	logger arbor.ILogger
}

func NewLogNotifier(logger arbor.ILogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(level interfaces.NotifyLevel, message string, buttons ...string) string {
	event := n.logger.Info()
	switch level {
	case interfaces.NotifyWarning:
		event = n.logger.Warn()
	case interfaces.NotifyError:
		event = n.logger.Error()
	}

	if len(buttons) > 0 {
		event = event.Str("actions", strings.Join(buttons, ", ")).Str("selected", buttons[0])
	}
	event.Msg(message)

	if len(buttons) > 0 {
		return buttons[0]
	}
	return ""
}

var _ interfaces.Notifier = (*LogNotifier)(nil)
