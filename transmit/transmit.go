// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transmit implements the transmitter: a preconfigured sender that
// fills in directed-wave defaults and delegates routing to a Router.
package transmit

import (
	"context"
	"fmt"

	"github.com/starlane-io/starlane/exchange"
	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/wave"
)

// SetStrategy controls how a Transmitter fills in one field of an outgoing
// directed wave.
type SetStrategy uint8

const (
	// StrategyNone requires the field to already be set; the transmitter
	// never touches it.
	StrategyNone SetStrategy = iota
	// StrategyOverride always replaces the field with the transmitter's
	// configured value.
	StrategyOverride
	// StrategyFill sets the field only if it is currently the zero value.
	StrategyFill
)

// Router is the minimal surface a Transmitter needs from the star router:
// hand a finished directed or reflected/signal wave to the routing plane.
type Router interface {
	Route(ctx context.Context, d *wave.Directed) error
	RouteReflected(ctx context.Context, r *wave.Reflected) error
}

// Defaults is a transmitter's preconfigured field values and the strategy
// used to apply each one.
type Defaults struct {
	From         point.Surface
	FromStrategy SetStrategy

	Agent         point.Point
	AgentStrategy SetStrategy

	Scope         wave.Scope
	ScopeStrategy SetStrategy

	Handling         wave.Handling
	HandlingStrategy SetStrategy

	Method         string
	MethodStrategy SetStrategy
}

// Transmitter fills in defaults for outgoing waves and delegates routing.
type Transmitter struct {
	defaults  Defaults
	router    Router
	exchanger *exchange.Exchanger
}

// New builds a Transmitter bound to router and exchanger with the given
// defaults.
func New(defaults Defaults, router Router, exchanger *exchange.Exchanger) *Transmitter {
	return &Transmitter{defaults: defaults, router: router, exchanger: exchanger}
}

func (t *Transmitter) applyDirected(d *wave.Directed) error {
	var zeroSurface point.Surface
	if err := applyField(t.defaults.FromStrategy, d.From.Equal(zeroSurface), func() { d.From = t.defaults.From }); err != nil {
		return fmt.Errorf("transmit: from: %w", err)
	}
	var zeroPoint point.Point
	if err := applyField(t.defaults.AgentStrategy, d.Agent.Equal(zeroPoint), func() { d.Agent = t.defaults.Agent }); err != nil {
		return fmt.Errorf("transmit: agent: %w", err)
	}
	if err := applyField(t.defaults.ScopeStrategy, d.Scope == wave.ScopeFull && t.defaults.Scope != wave.ScopeFull, func() { d.Scope = t.defaults.Scope }); err != nil {
		return fmt.Errorf("transmit: scope: %w", err)
	}
	var zeroHandling wave.Handling
	if err := applyField(t.defaults.HandlingStrategy, d.Handling == zeroHandling, func() { d.Handling = t.defaults.Handling }); err != nil {
		return fmt.Errorf("transmit: handling: %w", err)
	}
	if err := applyField(t.defaults.MethodStrategy, d.Core.Method == "", func() { d.Core.Method = t.defaults.Method }); err != nil {
		return fmt.Errorf("transmit: method: %w", err)
	}
	return nil
}

func applyField(strategy SetStrategy, isUnset bool, fill func()) error {
	switch strategy {
	case StrategyNone:
		if isUnset {
			return fmt.Errorf("field required but unset")
		}
	case StrategyOverride:
		fill()
	case StrategyFill:
		if isUnset {
			fill()
		}
	}
	return nil
}

// Direct fills in defaults for d, installs a pending exchange, routes it,
// and waits for the reflection(s) it expects.
func (t *Transmitter) Direct(ctx context.Context, d *wave.Directed) (exchange.ReflectedAggregate, error) {
	if err := t.applyDirected(d); err != nil {
		return exchange.ReflectedAggregate{}, err
	}

	aw := t.exchanger.Exchange(d)
	if err := t.router.Route(ctx, d); err != nil {
		t.exchanger.Cancel(d.ID)
		return exchange.ReflectedAggregate{}, fmt.Errorf("transmit: route: %w", err)
	}

	agg, err := aw.Wait(ctx)
	if err != nil {
		t.exchanger.Cancel(d.ID)
		return exchange.ReflectedAggregate{}, err
	}
	return agg, nil
}

// Route is fire-and-forget delivery of a directed wave, for signals
// (BounceBacks None): no pending exchange is installed. Reflected waves
// go through RouteReflected.
func (t *Transmitter) Route(ctx context.Context, d *wave.Directed) error {
	if err := t.applyDirected(d); err != nil {
		return err
	}
	return t.router.Route(ctx, d)
}

// RouteReflected is fire-and-forget delivery of a reflected wave back to
// its origin.
func (t *Transmitter) RouteReflected(ctx context.Context, r *wave.Reflected) error {
	return t.router.RouteReflected(ctx, r)
}
