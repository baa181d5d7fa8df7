// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry defines the registry contract the star router depends
// on (spec §6.3) and an in-memory implementation used by tests and
// single-process machines. Records are globally resolvable by point.
// AssignStar and SetStatus overwrite the stored location or status; no
// ordering between successive writes is enforced, so a write can return a
// particle to an earlier state.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/starlane-io/starlane/fault"
	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/wave"
)

// Registration is what a driver submits to create a new particle record.
type Registration struct {
	Point point.Point
	Kind  point.Kind
}

// Location names the star hosting a particle, and optionally a transport
// star used to relay to it when the host is not directly adjacent.
type Location struct {
	Host      point.StarKey
	Transport *point.StarKey
}

// Record is a particle's full registry entry: identity, status,
// properties, and current location.
type Record struct {
	Stub       wave.Stub
	Status     string
	Properties map[string]string
	Location   Location
}

// Query selects a derived view of a point's record.
type Query uint8

const (
	// QueryAncestry returns the chain of Kinds from the root to p.
	QueryAncestry Query = iota
)

// QueryResult is the answer to a Query.
type QueryResult struct {
	Kinds []point.Kind
}

// Select narrows a pattern-based lookup to particles matching a
// KindSelector, rooted at a point.
type Select struct {
	KindSelector point.KindSelector
}

// Registry is the contract the router and transmitter depend on. It is
// intentionally narrow: persistence, schema, and query-language details
// are a driver concern outside this package's scope.
type Registry interface {
	Register(ctx context.Context, reg Registration) (wave.Stub, error)
	AssignStar(ctx context.Context, p point.Point, star point.StarKey) error
	SetStatus(ctx context.Context, p point.Point, status string) error
	Locate(ctx context.Context, p point.Point) (Record, error)
	Query(ctx context.Context, p point.Point, q Query) (QueryResult, error)
	Select(ctx context.Context, sel Select, at point.Point) ([]wave.Stub, error)
}

// ErrNotFound is wrapped with the offending point and returned by Locate
// when no record exists.
var ErrNotFound = fault.ErrAddressing

type inMemory struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewInMemory returns a Registry backed by a guarded map, suitable for
// tests and single-process machines that do not need durable storage.
func NewInMemory() Registry {
	return &inMemory{records: make(map[string]*Record)}
}

func (r *inMemory) Register(_ context.Context, reg Registration) (wave.Stub, error) {
	stub := wave.Stub{Point: reg.Point, Kind: reg.Kind}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := reg.Point.String()
	if _, exists := r.records[key]; exists {
		return wave.Stub{}, fmt.Errorf("registry: %s already registered: %w", key, fault.ErrAddressing)
	}
	r.records[key] = &Record{Stub: stub, Status: "Pending"}
	return stub, nil
}

func (r *inMemory) AssignStar(_ context.Context, p point.Point, star point.StarKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[p.String()]
	if !ok {
		return fmt.Errorf("registry: %s: %w", p, ErrNotFound)
	}
	rec.Location = Location{Host: star}
	return nil
}

func (r *inMemory) SetStatus(_ context.Context, p point.Point, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[p.String()]
	if !ok {
		return fmt.Errorf("registry: %s: %w", p, ErrNotFound)
	}
	rec.Status = status
	return nil
}

func (r *inMemory) Locate(_ context.Context, p point.Point) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[p.String()]
	if !ok {
		return Record{}, fmt.Errorf("registry: %s: %w", p, ErrNotFound)
	}
	return *rec, nil
}

func (r *inMemory) Query(_ context.Context, p point.Point, q Query) (QueryResult, error) {
	if q != QueryAncestry {
		return QueryResult{}, fmt.Errorf("registry: unsupported query %d", q)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var kinds []point.Kind
	cur := p
	for {
		if rec, ok := r.records[cur.String()]; ok {
			kinds = append([]point.Kind{rec.Stub.Kind}, kinds...)
		}
		parent, hasParent := cur.Parent()
		if !hasParent {
			break
		}
		cur = parent
	}
	return QueryResult{Kinds: kinds}, nil
}

func (r *inMemory) Select(_ context.Context, sel Select, at point.Point) ([]wave.Stub, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stubs []wave.Stub
	for key, rec := range r.records {
		if !at.IsParentOf(rec.Stub.Point) && key != at.String() {
			continue
		}
		if sel.KindSelector.Matches(rec.Stub.Kind) {
			stubs = append(stubs, rec.Stub)
		}
	}
	return stubs, nil
}
