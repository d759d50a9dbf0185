/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package workqueue provides an in-process work queue with per-key
// coalescing and per-kind rate limiting. Keys take the form
// <kind>/<owner>/<repo>/<number>; at most one task per key runs at a
// time, and duplicate enqueues of a key that is already queued or
// in flight are dropped.
package workqueue

import (
	"context"
	"strings"
	"sync"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Handler is the unit of work associated with a queued key.
type Handler func(ctx context.Context) error

// Option configures a Queue.
type Option func(*Queue)

// WithRateLimit bounds how fast tasks of each kind may start. Each
// kind gets its own limiter with this configuration.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(q *Queue) {
		q.limit = limit
		q.burst = burst
	}
}

// Queue schedules handlers keyed by task identity.
type Queue struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	pending  map[string]Handler
	order    []string
	inflight map[string]struct{}
	limiters map[string]*rate.Limiter

	wake chan struct{}
}

// New constructs an empty queue. Without WithRateLimit, task starts
// are not rate limited.
func New(opts ...Option) *Queue {
	q := &Queue{
		limit:    rate.Inf,
		burst:    1,
		pending:  make(map[string]Handler),
		inflight: make(map[string]struct{}),
		limiters: make(map[string]*rate.Limiter),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Kind extracts the kind prefix of a key, the segment before the
// first slash.
func Kind(key string) string {
	if i := strings.IndexByte(key, '/'); i >= 0 {
		return key[:i]
	}
	return key
}

// Enqueue schedules h under key. If the key is already queued or in
// flight the call coalesces into the existing work and reports false.
func (q *Queue) Enqueue(key string, h Handler) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[key]; ok {
		return false
	}
	if _, ok := q.inflight[key]; ok {
		return false
	}

	q.pending[key] = h
	q.order = append(q.order, key)
	q.signal()
	return true
}

// Len reports how many keys are queued but not yet running.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run processes the queue with the given number of workers until ctx
// is cancelled. Handler errors are logged, not propagated; a failed
// key may be enqueued again by its producer.
func (q *Queue) Run(ctx context.Context, workers int) error {
	eg, ctx := errgroup.WithContext(ctx)
	for range workers {
		eg.Go(func() error {
			return q.worker(ctx)
		})
	}
	return eg.Wait()
}

func (q *Queue) worker(ctx context.Context) error {
	for {
		key, h, ok := q.take()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.wake:
				continue
			}
		}

		if err := q.limiter(Kind(key)).Wait(ctx); err != nil {
			q.finish(key)
			return err
		}

		log := clog.FromContext(ctx).With("key", key)
		if err := h(ctx); err != nil {
			log.With("error", err).Error("Task failed")
		} else {
			log.Info("Task complete")
		}
		q.finish(key)
	}
}

// take pops the oldest pending key and marks it in flight.
func (q *Queue) take() (string, Handler, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.order) == 0 {
		return "", nil, false
	}
	key := q.order[0]
	q.order = q.order[1:]
	h := q.pending[key]
	delete(q.pending, key)
	q.inflight[key] = struct{}{}

	// More work may remain for another sleeping worker.
	if len(q.order) > 0 {
		q.signal()
	}
	return key, h, true
}

func (q *Queue) finish(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, key)
	if len(q.order) > 0 {
		q.signal()
	}
}

func (q *Queue) limiter(kind string) *rate.Limiter {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.limiters[kind]
	if !ok {
		l = rate.NewLimiter(q.limit, q.burst)
		q.limiters[kind] = l
	}
	return l
}

// signal wakes one sleeping worker. Callers hold q.mu.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
