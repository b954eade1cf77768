// internal/async/orchestrator.go

// Package async holds the low-level orchestration primitives the intake
// engine builds on: racing a single operation against a timeout, and running
// a batch of operations with per-operation failure isolation.
package async

import (
	"context"
	"sync"
	"time"
)

// Kind classifies how an operation settled. Timeout and failure are distinct
// so callers decide whether a timeout counts as failure.
type Kind int

const (
	Success Kind = iota
	Failed
	TimedOut
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Outcome is the settled result of one operation.
type Outcome[T any] struct {
	Kind  Kind
	Value T
	Err   error
}

// Operation is a cancellable unit of async work.
type Operation[T any] func(ctx context.Context) (T, error)

// RaceWithTimeout runs op and returns its outcome, or a TimedOut outcome if
// op has not settled within timeout. The losing side is abandoned: its
// context is cancelled and its eventual settlement is discarded, so a call
// site can never observe a second resolution or a stale side effect.
func RaceWithTimeout[T any](ctx context.Context, timeout time.Duration, op Operation[T]) Outcome[T] {
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so an abandoned operation settles into the channel and is
	// garbage collected instead of leaking a goroutine.
	done := make(chan Outcome[T], 1)
	go func() {
		v, err := op(opCtx)
		if err != nil {
			var zero T
			done <- Outcome[T]{Kind: Failed, Value: zero, Err: err}
			return
		}
		done <- Outcome[T]{Kind: Success, Value: v}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out
	case <-timer.C:
		var zero T
		return Outcome[T]{Kind: TimedOut, Value: zero, Err: ctx.Err()}
	case <-ctx.Done():
		var zero T
		return Outcome[T]{Kind: TimedOut, Value: zero, Err: ctx.Err()}
	}
}

// RunAllTolerant runs every operation concurrently and waits for all of them.
// Each failure is captured in its own slot; none of N failures cancels or
// aborts the siblings. The result slice preserves input order.
func RunAllTolerant[T any](ctx context.Context, ops ...Operation[T]) []Outcome[T] {
	results := make([]Outcome[T], len(ops))

	var wg sync.WaitGroup
	wg.Add(len(ops))
	for i, op := range ops {
		go func(i int, op Operation[T]) {
			defer wg.Done()
			v, err := op(ctx)
			if err != nil {
				var zero T
				results[i] = Outcome[T]{Kind: Failed, Value: zero, Err: err}
				return
			}
			results[i] = Outcome[T]{Kind: Success, Value: v}
		}(i, op)
	}
	wg.Wait()

	return results
}
