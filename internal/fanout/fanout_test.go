package fanout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestRunExecutesEveryTask(t *testing.T) {
	var count int64
	tasks := make([]func(context.Context) error, 20)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		}
	}
	errs := Run(context.Background(), 5, tasks)
	if len(errs) != 20 {
		t.Fatalf("Run returned %d results, want 20", len(errs))
	}
	if count != 20 {
		t.Fatalf("executed %d tasks, want 20", count)
	}
}

func TestRunCollectsIndividualErrorsWithoutAbortingOthers(t *testing.T) {
	tasks := []func(context.Context) error{
		func(ctx context.Context) error { return errors.New("peer unreachable") },
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return errors.New("peer unreachable") },
	}
	errs := Run(context.Background(), 10, tasks)
	if errs[0] == nil || errs[2] == nil {
		t.Fatal("expected tasks 0 and 2 to report their errors")
	}
	if errs[1] != nil {
		t.Fatalf("task 1 errored unexpectedly: %v", errs[1])
	}
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	var current, maxSeen int64
	tasks := make([]func(context.Context) error, 30)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			n := atomic.AddInt64(&current, 1)
			for {
				old := atomic.LoadInt64(&maxSeen)
				if n <= old || atomic.CompareAndSwapInt64(&maxSeen, old, n) {
					break
				}
			}
			atomic.AddInt64(&current, -1)
			return nil
		}
	}
	Run(context.Background(), 3, tasks)
	if maxSeen > 3 {
		t.Errorf("observed %d concurrent tasks, want <= 3", maxSeen)
	}
}
