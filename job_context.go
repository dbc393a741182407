package asyncstep

import (
	"sync"
	"sync/atomic"
)

// JobContext is the view of the surrounding job the controller polls at
// every check. It is never pushed.
type JobContext interface {
	// IsStopping reports that the whole job is being stopped.
	IsStopping() bool
	// IsStepTerminateRequested reports that this step alone was told to
	// terminate, e.g. because its container is shutting down.
	IsStepTerminateRequested() bool
}

// TerminateReasoner is optionally implemented by a JobContext to explain a
// termination request.
type TerminateReasoner interface {
	TerminateReason() string
}

// JobState is an in-process JobContext, safe for concurrent use.
type JobState struct {
	stopping  atomic.Bool
	terminate atomic.Bool

	mu     sync.Mutex
	reason string
}

var _ JobContext = &JobState{}

func NewJobState() *JobState {
	return &JobState{}
}

// RequestStop marks the job as stopping.
func (js *JobState) RequestStop() {
	js.stopping.Store(true)
}

// RequestTerminate flags the step for termination. The first reason wins.
func (js *JobState) RequestTerminate(reason string) {
	js.mu.Lock()
	if js.reason == "" {
		js.reason = reason
	}
	js.mu.Unlock()
	js.terminate.Store(true)
}

func (js *JobState) IsStopping() bool {
	return js.stopping.Load()
}

func (js *JobState) IsStepTerminateRequested() bool {
	return js.terminate.Load()
}

func (js *JobState) TerminateReason() string {
	js.mu.Lock()
	defer js.mu.Unlock()
	return js.reason
}
