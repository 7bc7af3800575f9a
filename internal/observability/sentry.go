package observability

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	auth "github.com/goliatone/go-forum-auth"
)

func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// Capturer is the subset of the sentry hub we report to
type Capturer interface {
	CaptureMessage(message string) *sentry.EventID
}

// SentryLogger forwards Error level lines to sentry on top of the wrapped logger
type SentryLogger struct {
	auth.Logger
	hub Capturer
}

// NewSentryLogger wraps next. A nil hub uses the current sentry hub.
func NewSentryLogger(next auth.Logger, hub Capturer) *SentryLogger {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentryLogger{Logger: next, hub: hub}
}

func (l *SentryLogger) Error(format string, args ...any) {
	l.Logger.Error(format, args...)
	l.hub.CaptureMessage(fmt.Sprintf(format, args...))
}
