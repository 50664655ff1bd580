// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

// Package pool runs index-addressed tasks on a bounded set of workers.
// Callers pre-size their output slices; task i writes only slot i.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"latentgc/internal/logging"
)

// Options configure a pool run.
type Options struct {
	// Number of workers; 0 means runtime.NumCPU()
	Workers int
	Logger  *slog.Logger
}

// workers returns the pool size for n tasks.
func (o Options) workers(n int) int {
	w := o.Workers
	if w <= 0 {
		w = runtime.NumCPU()
	}
	if w > n {
		w = n
	}
	return w
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return logging.Discard()
	}
	return o.Logger
}

// Run executes task(ctx, i) for i = 0..n-1. The first error cancels the
// context handed to the remaining tasks and is returned.
func Run(ctx context.Context, n int, opts Options, task func(ctx context.Context, i int) error) error {
	return RunScratch(ctx, n, opts,
		func() struct{} { return struct{}{} },
		nil,
		func(ctx context.Context, i int, _ struct{}) error { return task(ctx, i) })
}

// RunScratch is Run with per-worker scratch state. Each worker calls acquire
// once before its first task and release once after its last. A release
// error is logged and dropped; it never fails the run.
func RunScratch[S any](
	ctx context.Context,
	n int,
	opts Options,
	acquire func() S,
	release func(S) error,
	task func(ctx context.Context, i int, scratch S) error,
) error {
	if n <= 0 {
		return nil
	}
	numWorkers := opts.workers(n)
	logger := opts.logger()

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	// Feed jobs
	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < n; i++ {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// Start workers
	for w := 0; w < numWorkers; w++ {
		worker := w
		g.Go(func() error {
			scratch := acquire()
			if release != nil {
				defer func() {
					if err := release(scratch); err != nil {
						logger.Warn("releasing worker scratch", "worker", worker, "error", err)
					}
				}()
			}
			for i := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := task(gctx, i, scratch); err != nil {
					return fmt.Errorf("task %d: %w", i, err)
				}
			}
			return nil
		})
	}

	return g.Wait()
}
