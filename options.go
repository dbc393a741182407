package asyncstep

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Azure/go-asyncstep/diagnostics"
)

// DefaultPollInterval is how often the controller checks for termination
// conditions when no interval is configured.
const DefaultPollInterval = time.Second

// ControllerConfig is the immutable configuration of a controller.
type ControllerConfig struct {
	// Timeout is the hard wall-clock deadline for the unit of work. Required.
	Timeout time.Duration
	// PollInterval is the sleep between termination checks.
	PollInterval time.Duration
	// InterruptOnCancel makes cancellation interrupt the worker by cancelling
	// the context handed to the unit of work. When false, a cancelled worker
	// keeps running in the background and its eventual result is dropped.
	InterruptOnCancel bool
}

// Validate reports configuration that must abort startup.
func (c ControllerConfig) Validate() error {
	if c.Timeout <= 0 {
		return ErrInvalidConfiguration.WithMessage(fmt.Sprintf("timeout must be greater than zero, got %s", c.Timeout))
	}
	if c.PollInterval <= 0 {
		return ErrInvalidConfiguration.WithMessage(fmt.Sprintf("poll interval must be greater than zero, got %s", c.PollInterval))
	}
	return nil
}

type ControllerOptions struct {
	StepName          string
	PollInterval      time.Duration
	InterruptOnCancel bool

	// ResetStopFlag clears the stop flag when an invocation returns, so a stop
	// honored by one invocation does not leak into the next one.
	ResetStopFlag bool

	Pool        *WorkerPool
	Diagnostics diagnostics.Sink
	Logger      logrus.FieldLogger
	Metrics     *Metrics
}

type ControllerOptionPreparer func(*ControllerOptions) *ControllerOptions

func defaultControllerOptions() *ControllerOptions {
	silent := logrus.New()
	silent.Out = io.Discard
	return &ControllerOptions{
		StepName:     "step",
		PollInterval: DefaultPollInterval,
		Pool:         defaultPool,
		Diagnostics:  diagnostics.Discard,
		Logger:       silent,
	}
}

func WithStepName(name string) ControllerOptionPreparer {
	return func(options *ControllerOptions) *ControllerOptions {
		options.StepName = name
		return options
	}
}

func WithPollInterval(interval time.Duration) ControllerOptionPreparer {
	return func(options *ControllerOptions) *ControllerOptions {
		options.PollInterval = interval
		return options
	}
}

func WithInterruptOnCancel(interrupt bool) ControllerOptionPreparer {
	return func(options *ControllerOptions) *ControllerOptions {
		options.InterruptOnCancel = interrupt
		return options
	}
}

// WithStopFlagReset opts into clearing the stop flag at the end of every
// invocation. Without it a Stop() arriving after an invocation returned stops
// the next invocation on its first check.
func WithStopFlagReset() ControllerOptionPreparer {
	return func(options *ControllerOptions) *ControllerOptions {
		options.ResetStopFlag = true
		return options
	}
}

// WithWorkerPool sets the pool running the unit of work. Passing nil is a
// configuration error.
func WithWorkerPool(pool *WorkerPool) ControllerOptionPreparer {
	return func(options *ControllerOptions) *ControllerOptions {
		options.Pool = pool
		return options
	}
}

func WithDiagnostics(sink diagnostics.Sink) ControllerOptionPreparer {
	return func(options *ControllerOptions) *ControllerOptions {
		if sink == nil {
			sink = diagnostics.Discard
		}
		options.Diagnostics = sink
		return options
	}
}

func WithLogger(logger logrus.FieldLogger) ControllerOptionPreparer {
	return func(options *ControllerOptions) *ControllerOptions {
		if logger != nil {
			options.Logger = logger
		}
		return options
	}
}

func WithMetrics(metrics *Metrics) ControllerOptionPreparer {
	return func(options *ControllerOptions) *ControllerOptions {
		options.Metrics = metrics
		return options
	}
}
