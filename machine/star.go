// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package machine assembles a process-scoped collection of stars from a
// MachineTemplate, wires their interchanges and local hyperways, and
// drives the control loop described in spec §4.8 / §6.2.
package machine

import (
	"context"
	"sync"

	"github.com/luxfi/log"

	"github.com/starlane-io/starlane/config"
	"github.com/starlane-io/starlane/exchange"
	"github.com/starlane-io/starlane/interchange"
	"github.com/starlane-io/starlane/metric"
	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/registry"
	"github.com/starlane-io/starlane/router"
	"github.com/starlane-io/starlane/wave"
)

// Status is one star's lifecycle state. The name set mirrors the
// teacher's VM status vocabulary (Unknown/Starting/Bootstrapping/Ready/
// Degraded/Stopping/Stopped) generalized to the fabric's own stages.
type Status uint8

const (
	Unknown Status = iota
	Pending
	Init
	Ready
	Paused
	Resuming
	Panic
	Fatal
	Done
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Init:
		return "Init"
	case Ready:
		return "Ready"
	case Paused:
		return "Paused"
	case Resuming:
		return "Resuming"
	case Panic:
		return "Panic"
	case Fatal:
		return "Fatal"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// Star is one star's hyperstar skeleton: a routing plane, an exchanger,
// a registry handle, the star's interchange, and its lifecycle status.
type Star struct {
	Config      config.StarConfig
	Router      *router.Router
	Exchanger   *exchange.Exchanger
	Registry    registry.Registry
	Interchange *interchange.Interchange
	Metrics     *metric.StarMetrics
	Log         log.Logger

	mu     sync.RWMutex
	status Status
}

// newStar assembles one star's skeleton per spec §4.8 step 2.
func newStar(cfg config.StarConfig, reg registry.Registry, logger log.Logger) *Star {
	sm := metric.NewStarMetrics(cfg.Key, nil)
	ex := exchange.New(logger, sm.Registry())
	ic := interchange.New(interchange.StarKind(cfg.Key), logger)
	st := &Star{
		Config:      cfg,
		Exchanger:   ex,
		Registry:    reg,
		Interchange: ic,
		Metrics:     sm,
		Log:         logger,
		status:      Pending,
	}
	st.Router = router.New(cfg.Key, logger, reg, ex, interchangeSender{ic: ic, metrics: sm})
	for _, adj := range cfg.Adjacents {
		st.Router.AddNeighbor(adj)
	}
	return st
}

// Status reports the star's current lifecycle state.
func (s *Star) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus transitions the star to status.
func (s *Star) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// interchangeSender adapts an *interchange.Interchange's general Route
// method to the router.LinkSender interface Hop delivery needs. Hyperways
// are attached to the interchange with Far set to the neighbor star's own
// gravity surface, the same construction router.Router uses for its own
// self-surface, so Route's far-surface match finds the right hyperway.
type interchangeSender struct {
	ic      *interchange.Interchange
	metrics *metric.StarMetrics
}

func starGravity(key point.StarKey) point.Surface {
	return point.New(point.Star).Push(point.Segment{Type: point.BaseSegment, Value: key.String()}).ToSurface(point.Gravity)
}

func (s interchangeSender) SendHop(ctx context.Context, next point.StarKey, d *wave.Directed) error {
	if err := s.ic.Route(ctx, d, starGravity(next)); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.WaveSent.Inc()
	}
	return nil
}
