package asyncstep_test

import (
	"context"
	"time"

	"github.com/Azure/go-asyncstep"
)

type backupStatus struct {
	Copied int
}

func sleepingWork(d time.Duration, copied int) asyncstep.UnitOfWork[backupStatus] {
	return func(ctx context.Context, _ asyncstep.JobContext) (*backupStatus, error) {
		time.Sleep(d)
		return &backupStatus{Copied: copied}, nil
	}
}

func failingWork(d time.Duration, err error) asyncstep.UnitOfWork[backupStatus] {
	return func(ctx context.Context, _ asyncstep.JobContext) (*backupStatus, error) {
		time.Sleep(d)
		return nil, err
	}
}

// interruptibleWork blocks until its context is cancelled.
func interruptibleWork() asyncstep.UnitOfWork[backupStatus] {
	return func(ctx context.Context, _ asyncstep.JobContext) (*backupStatus, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// blockedWork blocks until release is closed, and records whether its
// context had been cancelled by then.
type blockedWork struct {
	release     chan struct{}
	started     chan struct{}
	interrupted chan bool
}

func newBlockedWork() *blockedWork {
	return &blockedWork{
		release:     make(chan struct{}),
		started:     make(chan struct{}, 1),
		interrupted: make(chan bool, 1),
	}
}

func (b *blockedWork) unit(ctx context.Context, _ asyncstep.JobContext) (*backupStatus, error) {
	b.started <- struct{}{}
	<-b.release
	b.interrupted <- ctx.Err() != nil
	return &backupStatus{Copied: 1}, nil
}

// stopAt requests a job stop on js after d.
func stopAt(js *asyncstep.JobState, d time.Duration) {
	go func() {
		time.Sleep(d)
		js.RequestStop()
	}()
}

func terminateAt(js *asyncstep.JobState, d time.Duration, reason string) {
	go func() {
		time.Sleep(d)
		js.RequestTerminate(reason)
	}()
}
