// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestRunFillsEverySlot(t *testing.T) {
	const n = 100
	out := make([]int, n)
	err := Run(context.Background(), n, Options{Workers: 4}, func(_ context.Context, i int) error {
		out[i] = i * i
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for i, v := range out {
		if v != i*i {
			t.Errorf("slot %d = %d, want %d", i, v, i*i)
		}
	}
}

func TestRunZeroTasks(t *testing.T) {
	called := false
	err := Run(context.Background(), 0, Options{}, func(context.Context, int) error {
		called = true
		return nil
	})
	if err != nil || called {
		t.Errorf("Run(0) = %v, called = %v", err, called)
	}
}

func TestRunReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	var done atomic.Int64
	err := Run(context.Background(), 50, Options{Workers: 1}, func(_ context.Context, i int) error {
		if i == 3 {
			return boom
		}
		done.Add(1)
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped boom", err)
	}
	if got := done.Load(); got != 3 {
		t.Errorf("%d tasks ran before the failure with one worker, want 3", got)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, 10, Options{Workers: 2}, func(context.Context, int) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestRunScratchPerWorker(t *testing.T) {
	var acquired, released atomic.Int64
	const workers = 3
	err := RunScratch(context.Background(), 30, Options{Workers: workers},
		func() *[]int {
			acquired.Add(1)
			buf := make([]int, 0, 8)
			return &buf
		},
		func(*[]int) error {
			released.Add(1)
			return errors.New("release failure is dropped")
		},
		func(_ context.Context, i int, buf *[]int) error {
			*buf = append((*buf)[:0], i)
			return nil
		})
	if err != nil {
		t.Fatalf("RunScratch failed: %v", err)
	}
	if acquired.Load() != workers || released.Load() != workers {
		t.Errorf("acquired %d, released %d, want %d each", acquired.Load(), released.Load(), workers)
	}
}

func TestWorkersCappedByTasks(t *testing.T) {
	if w := (Options{Workers: 16}).workers(3); w != 3 {
		t.Errorf("workers = %d, want 3", w)
	}
	if w := (Options{}).workers(1); w != 1 {
		t.Errorf("workers = %d, want 1", w)
	}
}
