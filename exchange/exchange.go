// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package exchange implements the pending-reply table that correlates a
// directed wave with the reflected wave(s) it eventually receives: install
// an entry when a directed wave with a non-None BounceBacks is sent, feed
// it reflections as they arrive, and drain it on completion or deadline.
package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/starlane-io/starlane/utils/constants"
	"github.com/starlane-io/starlane/utils/metric"
	"github.com/starlane-io/starlane/wave"
)

// AggregateKind distinguishes how a ReflectedAggregate was drained.
type AggregateKind uint8

const (
	// AggregateNone is returned immediately for a directed wave whose
	// BounceBacks is None; no pending entry is ever installed.
	AggregateNone AggregateKind = iota
	// AggregateSingle carries exactly one reflected wave.
	AggregateSingle
	// AggregateMany carries the N reflected waves a BounceBacks Count
	// expected. A Timeout bounce-back never drains as AggregateMany; its
	// collection is delivered as AggregateTimeout at the deadline.
	AggregateMany
	// AggregateTimeout carries whatever was collected before the deadline.
	AggregateTimeout
)

// ReflectedAggregate is what an Awaiter resolves to.
type ReflectedAggregate struct {
	Kind   AggregateKind
	Single *wave.Reflected
	Many   []*wave.Reflected
}

// Awaiter is a single-shot future for one directed wave's reflections.
type Awaiter struct {
	ch <-chan ReflectedAggregate
}

// Wait blocks until the aggregate is ready or ctx is canceled.
func (a *Awaiter) Wait(ctx context.Context) (ReflectedAggregate, error) {
	select {
	case agg := <-a.ch:
		return agg, nil
	case <-ctx.Done():
		return ReflectedAggregate{}, ctx.Err()
	}
}

type pendingEntry struct {
	expected  wave.BounceBacks
	collected []*wave.Reflected
	deadline  time.Time
	timer     *time.Timer
	done      chan ReflectedAggregate
	completed bool
}

// Exchanger holds the pending-reply table for one star.
type Exchanger struct {
	log log.Logger

	mu      sync.Mutex
	pending map[wave.ID]*pendingEntry

	lateReflections metric.Counter
	timeouts        metric.Counter
}

// New builds an Exchanger. registry may be nil, in which case no metrics
// are registered.
func New(logger log.Logger, registry metric.Registry) *Exchanger {
	e := &Exchanger{
		log:     logger,
		pending: make(map[wave.ID]*pendingEntry),
	}
	if registry != nil {
		e.lateReflections = registry.NewCounter("exchange_late_reflections", "reflected waves with no matching pending entry")
		e.timeouts = registry.NewCounter("exchange_timeouts", "directed wave exchanges that drained on deadline expiry")
	}
	return e
}

// Exchange installs a pending entry for directed, keyed by its id, and
// returns an Awaiter that resolves when the expected reflections arrive or
// the deadline (Handling.Wait, defaulting to constants.DefaultHandlingWait)
// expires. If directed.BounceBacks.Kind is BBNone, Exchange installs
// nothing and returns an Awaiter already resolved to AggregateNone.
func (e *Exchanger) Exchange(d *wave.Directed) *Awaiter {
	if d.BounceBacks.Kind == wave.BBNone {
		ch := make(chan ReflectedAggregate, 1)
		ch <- ReflectedAggregate{Kind: AggregateNone}
		return &Awaiter{ch: ch}
	}

	wait := d.Handling.Wait
	if wait <= 0 {
		wait = constants.DefaultHandlingWait
	}

	entry := &pendingEntry{
		expected: d.BounceBacks,
		deadline: time.Now().Add(wait),
		done:     make(chan ReflectedAggregate, 1),
	}

	e.mu.Lock()
	e.pending[d.ID] = entry
	e.mu.Unlock()

	entry.timer = time.AfterFunc(wait, func() {
		e.expire(d.ID)
	})

	return &Awaiter{ch: entry.done}
}

// Reflected delivers r to the pending entry keyed by r.ResponseTo. If the
// expected reflection count is reached, the entry completes and is
// removed. If no pending entry matches (already completed, expired, or a
// Signal that never installed one), the reflection is dropped and counted
// as late.
func (e *Exchanger) Reflected(r *wave.Reflected) {
	e.mu.Lock()
	entry, ok := e.pending[r.ResponseTo]
	if !ok {
		e.mu.Unlock()
		if e.lateReflections != nil {
			e.lateReflections.Inc()
		}
		if e.log != nil {
			e.log.Warn("late reflection", zap.String("response_to", r.ResponseTo.String()))
		}
		return
	}

	entry.collected = append(entry.collected, r)
	satisfied := false
	switch entry.expected.Kind {
	case wave.BBSingle:
		satisfied = len(entry.collected) >= 1
	case wave.BBCount:
		satisfied = len(entry.collected) >= entry.expected.N
	case wave.BBTimeout:
		satisfied = false
	}

	if !satisfied {
		e.mu.Unlock()
		return
	}

	delete(e.pending, r.ResponseTo)
	e.mu.Unlock()

	e.complete(entry)
}

// Cancel removes the pending entry for id without delivering an aggregate,
// as dropping an Awaiter should (spec §5, "Dropping an awaiter removes its
// pending entry").
func (e *Exchanger) Cancel(id wave.ID) {
	e.mu.Lock()
	entry, ok := e.pending[id]
	if ok {
		delete(e.pending, id)
	}
	e.mu.Unlock()
	if ok && entry.timer != nil {
		entry.timer.Stop()
	}
}

func (e *Exchanger) expire(id wave.ID) {
	e.mu.Lock()
	entry, ok := e.pending[id]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.pending, id)
	e.mu.Unlock()

	if e.timeouts != nil {
		e.timeouts.Inc()
	}
	if e.log != nil {
		e.log.Debug("exchange timeout", zap.String("wave_id", id.String()), zap.Int("collected", len(entry.collected)))
	}

	agg := ReflectedAggregate{Kind: AggregateTimeout, Many: entry.collected}
	e.deliver(entry, agg)
}

func (e *Exchanger) complete(entry *pendingEntry) {
	if entry.timer != nil {
		entry.timer.Stop()
	}

	var agg ReflectedAggregate
	switch entry.expected.Kind {
	case wave.BBSingle:
		agg = ReflectedAggregate{Kind: AggregateSingle, Single: entry.collected[0]}
	default:
		agg = ReflectedAggregate{Kind: AggregateMany, Many: entry.collected}
	}
	e.deliver(entry, agg)
}

// deliver guarantees at-most-one completion per entry.
func (e *Exchanger) deliver(entry *pendingEntry, agg ReflectedAggregate) {
	e.mu.Lock()
	if entry.completed {
		e.mu.Unlock()
		return
	}
	entry.completed = true
	e.mu.Unlock()
	entry.done <- agg
}

// Pending reports how many exchanges are currently outstanding (for tests
// and diagnostics).
func (e *Exchanger) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}
