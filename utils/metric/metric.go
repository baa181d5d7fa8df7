// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metric wraps prometheus client types behind small interfaces so
// callers depend on the shape they need (Averager/Counter/Gauge) instead of
// the prometheus client directly.
package metric

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrMetricNotFound is returned when a metric is not found.
var ErrMetricNotFound = errors.New("metric not found")

// Averager tracks a running average.
type Averager interface {
	Observe(value float64)
	Read() float64
}

// averager implements an average tracker using internal state.
type averager struct {
	mu    sync.RWMutex
	sum   float64
	count int64
}

// NewAverager returns a new Averager.
func NewAverager() Averager {
	return &averager{}
}

func (a *averager) Observe(value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sum += value
	a.count++
}

func (a *averager) Read() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}

// Counter tracks a monotonically increasing count. It wraps a
// prometheus.Counter for scraping while keeping an atomic mirror so Read
// doesn't need to round-trip through the prometheus registry.
type Counter interface {
	Inc()
	Add(delta int64)
	Read() int64
}

type counter struct {
	ctr   prometheus.Counter
	value atomic.Int64
}

func (c *counter) Inc() {
	c.Add(1)
}

func (c *counter) Add(delta int64) {
	c.ctr.Add(float64(delta))
	c.value.Add(delta)
}

func (c *counter) Read() int64 {
	return c.value.Load()
}

// Gauge tracks a value that can go up or down.
type Gauge interface {
	Set(value float64)
	Add(delta float64)
	Read() float64
}

type gauge struct {
	mu    sync.RWMutex
	g     prometheus.Gauge
	value float64
}

func (g *gauge) Set(value float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.g.Set(value)
	g.value = value
}

func (g *gauge) Add(delta float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.g.Add(delta)
	g.value += delta
}

func (g *gauge) Read() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// Registry is a collection of metrics registered against a single
// prometheus.Registerer, scoped under a namespace (typically the star key).
type Registry interface {
	NewCounter(name, help string) Counter
	NewGauge(name, help string) Gauge
	NewAverager(name string) Averager
	GetCounter(name string) (Counter, error)
	GetGauge(name string) (Gauge, error)
	GetAverager(name string) (Averager, error)
}

type registry struct {
	namespace  string
	registerer prometheus.Registerer

	averagers sync.Map // map[string]Averager
	counters  sync.Map // map[string]Counter
	gauges    sync.Map // map[string]Gauge
}

// NewRegistry returns a new Registry that registers metrics under namespace
// against registerer. registerer may be nil, in which case metrics are
// tracked internally but never scraped.
func NewRegistry(namespace string, registerer prometheus.Registerer) Registry {
	return &registry{
		namespace:  namespace,
		registerer: registerer,
	}
}

func (r *registry) NewCounter(name, help string) Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      help,
	})
	if r.registerer != nil {
		_ = r.registerer.Register(c)
	}
	wrapped := &counter{ctr: c}
	r.counters.Store(name, wrapped)
	return wrapped
}

func (r *registry) NewGauge(name, help string) Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      help,
	})
	if r.registerer != nil {
		_ = r.registerer.Register(g)
	}
	wrapped := &gauge{g: g}
	r.gauges.Store(name, wrapped)
	return wrapped
}

func (r *registry) NewAverager(name string) Averager {
	a := &averager{}
	r.averagers.Store(name, a)
	return a
}

func (r *registry) GetCounter(name string) (Counter, error) {
	if v, ok := r.counters.Load(name); ok {
		return v.(Counter), nil
	}
	return nil, ErrMetricNotFound
}

func (r *registry) GetGauge(name string) (Gauge, error) {
	if v, ok := r.gauges.Load(name); ok {
		return v.(Gauge), nil
	}
	return nil, ErrMetricNotFound
}

func (r *registry) GetAverager(name string) (Averager, error) {
	if v, ok := r.averagers.Load(name); ok {
		return v.(Averager), nil
	}
	return nil, ErrMetricNotFound
}
