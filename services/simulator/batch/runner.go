// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package batch provides a generic bounded-worker executor with per-item
// timeout and per-item failure isolation.
//
// The runner executes an ordered sequence of work items with at most W
// workers in flight. Each item is bounded individually by the configured
// timeout; a timed-out or failed item is recorded with its error and the
// remaining items continue untouched. There is no retry: a failed item is
// terminal within one Run call.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var batchTracer = otel.Tracer("aleutiansim.batch")

// ErrTaskTimeout marks an item that exceeded the per-item timeout.
var ErrTaskTimeout = errors.New("batch task timed out")

// Defaults applied by Config.normalize.
const (
	// DefaultNumWorkers is the worker count when none is configured.
	DefaultNumWorkers = 1

	// DefaultTimeout is the per-item timeout when none is configured.
	DefaultTimeout = 10 * time.Second
)

// Config bounds a batch run.
type Config struct {
	// NumWorkers is the maximum number of items in flight. Values < 1
	// fall back to DefaultNumWorkers.
	NumWorkers int

	// Timeout bounds each item individually. Zero falls back to
	// DefaultTimeout; negative disables the per-item bound.
	Timeout time.Duration
}

func (c Config) normalize() Config {
	if c.NumWorkers < 1 {
		c.NumWorkers = DefaultNumWorkers
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Record is the outcome of one item.
//
// Index is the position of the originating item in the input sequence, so
// callers can reassociate results positionally regardless of completion
// order. Exactly one of Result or Err is meaningful: Err is nil on
// success, and Result is the zero value on failure.
type Record[R any] struct {
	Index  int
	Result R
	Err    error
}

// Task executes one item. It must honor ctx: the runner cancels the
// item's context on timeout and abandons the call, it cannot preempt a
// task that ignores cancellation.
type Task[I, R any] func(ctx context.Context, item I) (R, error)

// Run executes all items with bounded concurrency.
//
// Description:
//
//	Spawns min(NumWorkers, len(items)) workers over a shared queue. Every
//	item produces exactly one Record; failures and timeouts are isolated
//	to their item and never abort, delay or retry siblings. A panicking
//	task is captured as that item's error. Run returns only after every
//	item has completed, failed or timed out.
//
// Inputs:
//   - ctx: Parent context. Cancelling it fails the items still in flight
//     or queued, it does not make Run return early.
//   - cfg: Worker and timeout bounds.
//   - items: Ordered work items.
//   - task: The function applied to each item.
//
// Outputs:
//   - []Record[R]: One record per item, in completion order.
//
// Thread Safety: Safe for concurrent use.
func Run[I, R any](ctx context.Context, cfg Config, items []I, task Task[I, R]) []Record[R] {
	cfg = cfg.normalize()

	ctx, span := batchTracer.Start(ctx, "batch.Run")
	defer span.End()
	span.SetAttributes(
		attribute.Int("items", len(items)),
		attribute.Int("num_workers", cfg.NumWorkers),
	)

	if len(items) == 0 {
		return nil
	}

	jobs := make(chan int)
	out := make(chan Record[R], len(items))

	workers := cfg.NumWorkers
	if workers > len(items) {
		workers = len(items)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				out <- runOne(ctx, cfg.Timeout, idx, items[idx], task)
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(out)

	records := make([]Record[R], 0, len(items))
	failed := 0
	for rec := range out {
		if rec.Err != nil {
			failed++
		}
		records = append(records, rec)
	}
	span.SetAttributes(attribute.Int("failed", failed))
	return records
}

// runOne executes a single item under its own deadline.
func runOne[I, R any](ctx context.Context, timeout time.Duration, idx int, item I, task Task[I, R]) Record[R] {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, timeout, ErrTaskTimeout)
		defer cancel()
	}

	done := make(chan Record[R], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Record[R]{Index: idx, Err: fmt.Errorf("batch task panicked: %v", r)}
			}
		}()
		result, err := task(ctx, item)
		done <- Record[R]{Index: idx, Result: result, Err: err}
	}()

	select {
	case rec := <-done:
		if rec.Err != nil {
			rec.Result = *new(R)
			rec.Err = fmt.Errorf("item %d: %w", idx, rec.Err)
		}
		return rec
	case <-ctx.Done():
		// The task goroutine is abandoned; its buffered send cannot block.
		return Record[R]{Index: idx, Err: fmt.Errorf("item %d: %w", idx, context.Cause(ctx))}
	}
}
