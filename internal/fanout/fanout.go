// Package fanout runs a bounded number of concurrent outbound tasks,
// generalizing the manual sync.WaitGroup/error-channel fan-out the teacher
// hand-rolled in pkg/meshstorage/distributed.go's StoreDistributed and
// RetrieveDistributed into a single reusable, capped worker pool backed by
// golang.org/x/sync/errgroup. Used by search scatter-gather, parallel chunk
// fetch, and parallel replica pushes (spec.md §5: worker pool cap ≈ 10).
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit is the worker-pool cap spec.md §5 specifies.
const DefaultLimit = 10

// Run executes every task with at most limit running concurrently. Unlike
// errgroup's own early-cancellation-on-first-error behavior, Run lets every
// task finish and collects all errors: a single unreachable peer during a
// scatter-gather must not abort collection from the others (spec.md §7's
// PeerUnreachable is a partial failure, not a hard stop).
func Run(ctx context.Context, limit int, tasks []func(ctx context.Context) error) []error {
	if limit <= 0 {
		limit = DefaultLimit
	}
	errs := make([]error, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			errs[i] = task(gctx)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
