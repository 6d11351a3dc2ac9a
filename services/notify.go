package services

import (
	"sync"

	"socialclient/logger"

	"go.uber.org/zap"
)

type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

const maxNoticeLength = 100

// Notice is a user-visible message produced at an operation boundary.
type Notice struct {
	Kind    NoticeKind `json:"notify_type"`
	Message string     `json:"message"`
}

type Notifier interface {
	Notify(n Notice)
}

type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

func newNotice(kind NoticeKind, message string) Notice {
	if len(kind) == 0 {
		kind = NoticeInfo
	}
	if len(message) > maxNoticeLength {
		message = message[:maxNoticeLength] + "..."
	}
	return Notice{Kind: kind, Message: message}
}

func notify(n Notifier, kind NoticeKind, message string) {
	if n == nil || len(message) == 0 {
		return
	}
	n.Notify(newNotice(kind, message))
}

// LogNotifier writes notices to the process logger.
type LogNotifier struct{}

func (LogNotifier) Notify(n Notice) {
	if n.Kind == NoticeError {
		logger.Log.Warn("notice", zap.String("kind", string(n.Kind)), zap.String("message", n.Message))
		return
	}
	logger.Log.Info("notice", zap.String("kind", string(n.Kind)), zap.String("message", n.Message))
}

// MultiNotifier fans a notice out to every notifier.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(n Notice) {
	for _, x := range m {
		if x != nil {
			x.Notify(n)
		}
	}
}

// NoticeRecorder keeps notices in memory.
type NoticeRecorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *NoticeRecorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *NoticeRecorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Count returns how many notices of the given kind were recorded.
func (r *NoticeRecorder) Count(kind NoticeKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.notices {
		if x.Kind == kind {
			n++
		}
	}
	return n
}

func (r *NoticeRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = nil
}
