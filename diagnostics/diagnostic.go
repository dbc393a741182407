// Package diagnostics collects errors and warnings that must be recorded
// without aborting the surrounding job: step timeouts and interruptions,
// per-category resource copy failures, non-fatal deserialization failures.
package diagnostics

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a single reported condition.
type Diagnostic struct {
	ID          string
	ExecutionID string
	// Source names the component that raised it, e.g. "controller" or "resource".
	Source string
	// Subject is what the condition is about: a step name, a category, a file.
	Subject  string
	Severity Severity
	Err      error
	Time     time.Time
}

// Message returns the error text, empty when no error is attached.
func (d Diagnostic) Message() string {
	if d.Err == nil {
		return ""
	}
	return d.Err.Error()
}

// Sink receives diagnostics. Implementations must be safe for concurrent use
// and must not block for long: reporting happens on the step's hot path.
type Sink interface {
	Report(ctx context.Context, d Diagnostic)
}

// Error builds an error diagnostic, picking the execution id from ctx.
func Error(ctx context.Context, source, subject string, err error) Diagnostic {
	return newDiagnostic(ctx, SeverityError, source, subject, err)
}

// Warning builds a warning diagnostic, picking the execution id from ctx.
func Warning(ctx context.Context, source, subject string, err error) Diagnostic {
	return newDiagnostic(ctx, SeverityWarning, source, subject, err)
}

func newDiagnostic(ctx context.Context, severity Severity, source, subject string, err error) Diagnostic {
	return Diagnostic{
		ID:          ulid.Make().String(),
		ExecutionID: ExecutionID(ctx),
		Source:      source,
		Subject:     subject,
		Severity:    severity,
		Err:         err,
		Time:        time.Now().UTC(),
	}
}

type executionIDKeyT struct{}

var executionIDKey executionIDKeyT

// WithExecutionID attaches an execution id, so diagnostics reported further
// down the call chain can be correlated with the step invocation.
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey, id)
}

// ExecutionID returns the id attached by WithExecutionID, or "".
func ExecutionID(ctx context.Context) string {
	if id, ok := ctx.Value(executionIDKey).(string); ok {
		return id
	}
	return ""
}

// Discard drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Report(context.Context, Diagnostic) {}

// Multi fans out to multiple sinks, skipping nil entries.
type Multi []Sink

func (m Multi) Report(ctx context.Context, d Diagnostic) {
	for _, s := range m {
		if s != nil {
			s.Report(ctx, d)
		}
	}
}
