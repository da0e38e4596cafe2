package audit

import (
	"os"

	"github.com/sirupsen/logrus"
)

// ForwardingLogger mirrors every sealed audit record to a secondary,
// human-grepable sink independent of the primary segment files, so an
// operator tailing logs doesn't need the hash-chain reader to see what
// happened. It uses logrus rather than the engine's primary zerolog
// logger deliberately: this is the legacy/secondary path, kept
// structurally distinct from internal/logging so a bug in one sink
// can't silently take down the other.
type ForwardingLogger struct {
	log *logrus.Logger
}

// NewForwardingLogger builds a JSON-formatted logrus logger writing to
// stderr, matching the "secondary sink" role described for the audit
// writer task.
func NewForwardingLogger() *ForwardingLogger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(os.Stderr)
	return &ForwardingLogger{log: l}
}

// Forward emits one line carrying the sealed record's kind, level, and
// ID. It never sees the unredacted payload: by the time Sink.Append
// calls this, Data/Meta have already been through Redact.
func (f *ForwardingLogger) Forward(kind, level, recordID string) {
	entry := f.log.WithFields(logrus.Fields{
		"kind":      kind,
		"record_id": recordID,
	})
	switch level {
	case "critical", "emergency":
		entry.Error("audit record")
	case "danger":
		entry.Warn("audit record")
	case "warn":
		entry.Warn("audit record")
	default:
		entry.Info("audit record")
	}
}
