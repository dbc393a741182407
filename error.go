package asyncstep

import (
	"fmt"
)

type StepErrorCode string

const (
	ErrInvalidConfiguration StepErrorCode = "InvalidConfiguration"

	ErrStepTimedOut StepErrorCode = "StepTimedOut"
	MsgStepTimedOut string        = "step %q did not finish within %s"

	ErrStepInterrupted StepErrorCode = "StepInterrupted"
	MsgStepInterrupted string        = "step %q interrupted while executing: %s"

	ErrWorkerPoolExhausted StepErrorCode = "WorkerPoolExhausted"
	MsgWorkerPoolExhausted string        = "no free worker for step %q, pool capacity %d"

	ErrWorkPanicked StepErrorCode = "WorkPanicked"
)

func (code StepErrorCode) Error() string {
	return string(code)
}

func (code StepErrorCode) WithMessage(msg string) *MessageError {
	return &MessageError{Code: code, Message: msg}
}

type MessageError struct {
	Code    StepErrorCode
	Message string
}

func (me *MessageError) Error() string {
	return me.Code.Error() + ": " + me.Message
}

func (me *MessageError) Unwrap() error {
	return me.Code
}

// WorkError wraps a failure raised by the unit of work, so callers can tell it
// apart from the controller's own conditions.
type WorkError struct {
	StepName string
	Err      error
}

func newWorkError(stepName string, err error) *WorkError {
	return &WorkError{StepName: stepName, Err: err}
}

func (we *WorkError) Error() string {
	return fmt.Sprintf("step %q failed: %s", we.StepName, we.Err.Error())
}

func (we *WorkError) Unwrap() error {
	return we.Err
}
