package diagnostics

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSink writes diagnostics to a logrus logger: errors at error level,
// warnings at warn level.
type LogSink struct {
	Logger logrus.FieldLogger
}

var _ Sink = LogSink{}

func (l LogSink) Report(_ context.Context, d Diagnostic) {
	if l.Logger == nil {
		return
	}
	entry := l.Logger.WithFields(logrus.Fields{
		"diagnostic_id": d.ID,
		"execution_id":  d.ExecutionID,
		"source":        d.Source,
		"subject":       d.Subject,
	})
	if d.Err != nil {
		entry = entry.WithError(d.Err)
	}
	switch d.Severity {
	case SeverityWarning:
		entry.Warn("diagnostic reported")
	default:
		entry.Error("diagnostic reported")
	}
}
