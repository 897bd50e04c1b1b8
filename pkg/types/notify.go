package types

// NoticeLevel classifies a message sent to a Notifier.
type NoticeLevel string

// Notice levels.
const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notifier receives short user-facing messages from the storage components,
// such as a completed automatic backup or a collection that failed to load.
type Notifier interface {
	Notify(level NoticeLevel, message string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(level NoticeLevel, message string)

// Notify calls f(level, message).
func (f NotifierFunc) Notify(level NoticeLevel, message string) {
	f(level, message)
}

// NopNotifier discards every message.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(NoticeLevel, string) {}
