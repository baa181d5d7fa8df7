// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package traversal implements the per-particle layered pipeline a wave
// passes through between the star router (Gravity) and the particle's
// handler (Core): Gravity -> Field -> Shell -> Core inward, and the exact
// reverse path outward for the resulting reflection.
package traversal

import (
	"context"

	"github.com/starlane-io/starlane/fault"
	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/wave"
)

// TraversalInjection is what Gravity hands the engine when a wave enters a
// particle's pipeline, either from the star router or from a local
// re-injection.
type TraversalInjection struct {
	Surface     point.Surface
	Directed    *wave.Directed
	FromGravity bool
}

// FieldPolicy is the Field layer's contract: inspect or rewrite an inbound
// directed wave, or deny it outright. A denial never reaches Shell or
// Core.
type FieldPolicy interface {
	Allow(ctx context.Context, d *wave.Directed) (rewritten *wave.Directed, ok bool, reason string)
}

// ShellState is the Shell layer's contract: per-particle session state,
// request/response correlation, and topic subscriptions. OnInward runs
// before Core; OnOutward runs on the resulting reflection before it
// leaves the particle.
type ShellState interface {
	OnInward(ctx context.Context, d *wave.Directed)
	OnOutward(ctx context.Context, r *wave.Reflected, d *wave.Directed)
}

// Handler is the Core layer's contract: the particle's driver-implemented
// behavior.
type Handler interface {
	Handle(ctx context.Context, d *wave.Directed) (wave.ReflectedCore, error)
}

// AllowAll is a FieldPolicy that never denies, used by particle kinds with
// no access-control requirements.
type AllowAll struct{}

func (AllowAll) Allow(_ context.Context, d *wave.Directed) (*wave.Directed, bool, string) {
	return d, true, ""
}

// NoopShell is a ShellState that records no session state.
type NoopShell struct{}

func (NoopShell) OnInward(context.Context, *wave.Directed)                    {}
func (NoopShell) OnOutward(context.Context, *wave.Reflected, *wave.Directed) {}

// Pipeline binds a single particle's Field, Shell, and Core implementations
// and drives the traversal invariants: every layer on the plan runs
// exactly once and in order; a reflection takes the exact reverse of the
// path its directed wave took.
type Pipeline struct {
	Kind   point.Kind
	Field  FieldPolicy
	Shell  ShellState
	Core   Handler
}

// NewPipeline builds a Pipeline with the given layer implementations. Any
// of field/shell/core may be nil, which is treated as AllowAll/NoopShell/a
// handler that reflects an empty 200 respectively — Kind.TraversalPlan
// still names the layer, it simply becomes a no-op hop (see
// point.Kind.TraversalPlan doc).
func NewPipeline(kind point.Kind, field FieldPolicy, shell ShellState, core Handler) *Pipeline {
	if field == nil {
		field = AllowAll{}
	}
	if shell == nil {
		shell = NoopShell{}
	}
	return &Pipeline{Kind: kind, Field: field, Shell: shell, Core: core}
}

// Traverse pushes injection.Directed through Field, Shell, and Core in
// order, then runs the resulting reflection back out through Shell in
// reverse, and returns it for Gravity to hand to the star router.
func (p *Pipeline) Traverse(ctx context.Context, injection TraversalInjection) *wave.Reflected {
	d := injection.Directed

	reflect := p.reflector(d)

	rewritten, ok, reason := p.Field.Allow(ctx, d)
	if !ok {
		return reflect(injection.Surface, d, wave.StatusError(fault.Status(fault.Auth), reason))
	}
	d = rewritten

	p.Shell.OnInward(ctx, d)

	var core wave.ReflectedCore
	if p.Core == nil {
		core = wave.StatusOK(wave.Empty{})
	} else {
		handled, err := p.Core.Handle(ctx, d)
		if err != nil {
			core = wave.StatusError(fault.Status(fault.Handler), err.Error())
		} else {
			core = handled
		}
	}

	r := reflect(injection.Surface, d, core)
	p.Shell.OnOutward(ctx, r, d)
	return r
}

// reflector picks NewPong for a Ping (single expected reflection) or
// NewEcho for a Ripple recipient. A Signal also gets a Pong here; the
// router discards a Signal's reflection instead of delivering it.
func (p *Pipeline) reflector(d *wave.Directed) func(point.Surface, *wave.Directed, wave.ReflectedCore) *wave.Reflected {
	if d.Kind == wave.Ripple {
		return wave.NewEcho
	}
	return wave.NewPong
}
