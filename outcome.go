package asyncstep

type OutcomeKind string

const (
	OutcomeCompleted   OutcomeKind = "completed"
	OutcomeTimedOut    OutcomeKind = "timed_out"
	OutcomeInterrupted OutcomeKind = "interrupted"
	OutcomeStopped     OutcomeKind = "stopped"
)

// Outcome is the terminal result of one invocation. Exactly one is produced
// per invocation.
type Outcome[T any] struct {
	Kind OutcomeKind

	// Status is the unit of work's return value, set only for OutcomeCompleted.
	Status *T

	// Err is the failure carried by the outcome:
	//   - OutcomeCompleted: *WorkError when the unit of work failed, else nil
	//   - OutcomeTimedOut: *MessageError wrapping ErrStepTimedOut
	//   - OutcomeInterrupted: *MessageError wrapping ErrStepInterrupted
	//   - OutcomeStopped: always nil, a requested stop is not a failure
	Err error

	// Reason explains an interruption.
	Reason string
}

// Succeeded is true for a completed invocation whose unit of work returned no error.
func (o Outcome[T]) Succeeded() bool {
	return o.Kind == OutcomeCompleted && o.Err == nil
}

// Failed is true for any outcome the job should treat as "finished, not
// successful". A stop is neither a success nor a failure.
func (o Outcome[T]) Failed() bool {
	return o.Kind != OutcomeStopped && !o.Succeeded()
}
