// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metric wires utils/metric's prometheus-backed primitives to the
// fabric's own measurements: wave send/receive counts, exchange timeouts,
// traversal latency, and hyperlane backlog, one Registry per star.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/utils/metric"
)

// StarMetrics collects the counters, gauges, and averagers a single star
// reports, all registered under a namespace derived from its StarKey.
type StarMetrics struct {
	registry metric.Registry

	WaveSent         metric.Counter
	WaveReceived     metric.Counter
	TraversalLatency metric.Averager
	HyperlaneBacklog metric.Gauge
}

// NewStarMetrics builds a StarMetrics for star, registering against
// registerer. registerer may be nil, in which case metrics are tracked but
// never scraped (the same contract utils/metric.NewRegistry gives).
func NewStarMetrics(star point.StarKey, registerer prometheus.Registerer) *StarMetrics {
	reg := metric.NewRegistry(starNamespace(star), registerer)
	return &StarMetrics{
		registry:         reg,
		WaveSent:         reg.NewCounter("wave_sent_total", "waves sent by this star"),
		WaveReceived:     reg.NewCounter("wave_received_total", "waves received by this star"),
		TraversalLatency: reg.NewAverager("traversal_latency_ms"),
		HyperlaneBacklog: reg.NewGauge("hyperlane_backlog", "waves queued on this star's hyperlanes"),
	}
}

// Registry exposes the underlying metric.Registry for components that need
// to register metrics this struct doesn't name directly (a new gate, a new
// interchange kind).
func (m *StarMetrics) Registry() metric.Registry { return m.registry }

func starNamespace(star point.StarKey) string {
	return "starlane_" + sanitize(star.Handle)
}

func sanitize(s string) string {
	b := []byte(s)
	for i, c := range b {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			b[i] = '_'
		}
	}
	return string(b)
}
