package interfaces

// NotifyLevel grades a user-facing notification.
type NotifyLevel string

const (
	NotifyInfo    NotifyLevel = "info"
	NotifyWarning NotifyLevel = "warning"
	NotifyError   NotifyLevel = "error"
)

// Notifier is the user-notification surface. Implementations show a
// non-blocking message with optional action buttons and return the label
// of the clicked button, or "" when dismissed.
type Notifier interface {
	Notify(level NotifyLevel, message string, buttons ...string) string
}
