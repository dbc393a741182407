package asyncstep

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

type PoolPolicy string

const (
	// PoolPolicyQueue makes a submitted worker wait for a free slot. A handle
	// cancelled while still queued never runs its unit of work.
	PoolPolicyQueue PoolPolicy = "queue"
	// PoolPolicyReject fails the submission immediately when no slot is free.
	PoolPolicyReject PoolPolicy = "reject"
)

// WorkerPool bounds how many units of work run concurrently, shared across
// controller invocations.
//
// A worker abandoned by soft cancellation keeps its slot until its unit of
// work returns. With capacity 0 (unbounded spawn) nothing limits how many
// abandoned workers pile up under repeated timeouts; give the pool a capacity
// when units of work may hang without honoring their context.
type WorkerPool struct {
	capacity int64
	policy   PoolPolicy
	sem      *semaphore.Weighted

	inFlight atomic.Int64
	orphaned atomic.Int64
}

// defaultPool spawns without limit, one goroutine per invocation.
var defaultPool = &WorkerPool{policy: PoolPolicyQueue}

// NewWorkerPool creates a pool. capacity 0 means unbounded.
func NewWorkerPool(capacity int, policy PoolPolicy) (*WorkerPool, error) {
	if capacity < 0 {
		return nil, ErrInvalidConfiguration.WithMessage(fmt.Sprintf("pool capacity must not be negative, got %d", capacity))
	}
	switch policy {
	case PoolPolicyQueue, PoolPolicyReject:
	case "":
		policy = PoolPolicyQueue
	default:
		return nil, ErrInvalidConfiguration.WithMessage(fmt.Sprintf("unknown pool policy %q", policy))
	}

	p := &WorkerPool{capacity: int64(capacity), policy: policy}
	if capacity > 0 {
		p.sem = semaphore.NewWeighted(int64(capacity))
	}
	return p, nil
}

// Capacity returns the slot count, 0 when unbounded.
func (p *WorkerPool) Capacity() int {
	return int(p.capacity)
}

func (p *WorkerPool) Policy() PoolPolicy {
	return p.policy
}

// InFlight is the number of units of work currently executing.
func (p *WorkerPool) InFlight() int64 {
	return p.inFlight.Load()
}

// Orphaned is the number of workers abandoned by a controller that have not
// returned yet.
func (p *WorkerPool) Orphaned() int64 {
	return p.orphaned.Load()
}

func (p *WorkerPool) tryAcquire() bool {
	if p.sem == nil {
		return true
	}
	return p.sem.TryAcquire(1)
}

func (p *WorkerPool) acquire(ctx context.Context) error {
	if p.sem == nil {
		return nil
	}
	return p.sem.Acquire(ctx, 1)
}

func (p *WorkerPool) release() {
	if p.sem != nil {
		p.sem.Release(1)
	}
}
