package session

import "github.com/rs/zerolog"

// NoticeKind classifies a user-facing notification.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
	NoticeInfo    NoticeKind = "info"
)

// Notifier is the user-facing notification surface. The UI supplies a
// toast/banner implementation; LogNotifier is the headless default.
type Notifier interface {
	Notify(kind NoticeKind, title, detail string)
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(kind NoticeKind, title, detail string) {
	ev := n.Logger.Info()
	if kind == NoticeError {
		ev = n.Logger.Warn()
	}
	ev.Str("kind", string(kind)).Str("title", title).Msg(detail)
}
