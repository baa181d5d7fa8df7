// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"sort"
	"sync"

	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/utils/sampler"
)

// StarDiscovery is one star's advertised reachability for a set of kinds,
// as learned from a search ripple's Discovery reflections.
type StarDiscovery struct {
	Pair       point.StarPair
	Discoverer point.StarKey
	Hops       int
	Kinds      []point.KindSelector
}

// RoundRobinSelector holds the stars discovered for one KindSelector,
// sorted ascending by Hops. Next rotates only across the minimum-hop
// tier, so n successive calls with n stars at that tier return all n in a
// stable rotation before repeating. Each re-sort randomizes the tier's
// starting position (via sampler.Uniform) rather than always restarting
// at index 0, so two stars that discover the same tier at the same time
// don't both begin their rotation on the same neighbor.
type RoundRobinSelector struct {
	mu      sync.Mutex
	entries []StarDiscovery
	tierPos int
	rng     sampler.Uniform
}

// Add inserts d, keeping entries sorted ascending by Hops. A discoverer
// already recorded at an equal-or-better hop count is left alone rather
// than re-announced; one recorded at a strictly worse hop count is
// replaced, since d improves on it.
func (s *RoundRobinSelector) Add(d StarDiscovery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.entries {
		if existing.Discoverer != d.Discoverer {
			continue
		}
		if d.Hops >= existing.Hops {
			return
		}
		s.entries[i] = d
		s.resort()
		return
	}
	s.entries = append(s.entries, d)
	s.resort()
}

// resort re-sorts entries ascending by Hops and picks a random starting
// position within the new minimum-hop tier.
func (s *RoundRobinSelector) resort() {
	sort.SliceStable(s.entries, func(i, j int) bool { return s.entries[i].Hops < s.entries[j].Hops })

	minHops := s.entries[0].Hops
	tierEnd := 0
	for tierEnd < len(s.entries) && s.entries[tierEnd].Hops == minHops {
		tierEnd++
	}

	s.tierPos = 0
	if s.rng == nil {
		s.rng = sampler.NewUniform()
	}
	if err := s.rng.Initialize(tierEnd); err == nil {
		if idx, ok := s.rng.Sample(1); ok {
			s.tierPos = idx[0]
		}
	}
}

// Next returns the next star in the minimum-hop tier, rotating across
// that tier on each call.
func (s *RoundRobinSelector) Next() (StarDiscovery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return StarDiscovery{}, false
	}
	minHops := s.entries[0].Hops
	tierEnd := 0
	for tierEnd < len(s.entries) && s.entries[tierEnd].Hops == minHops {
		tierEnd++
	}
	pick := s.entries[s.tierPos%tierEnd]
	s.tierPos = (s.tierPos + 1) % tierEnd
	return pick, true
}

// Len reports how many stars are known for this selector, across all
// tiers.
func (s *RoundRobinSelector) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// WrangleTable maps a KindSelector to the stars discovered for it.
type WrangleTable struct {
	mu        sync.Mutex
	selectors map[string]*RoundRobinSelector
}

// NewWrangleTable returns an empty WrangleTable.
func NewWrangleTable() *WrangleTable {
	return &WrangleTable{selectors: make(map[string]*RoundRobinSelector)}
}

// Record adds a discovery under selector's table, creating it if absent.
func (t *WrangleTable) Record(selector point.KindSelector, d StarDiscovery) {
	t.mu.Lock()
	sel, ok := t.selectors[selector.Key()]
	if !ok {
		sel = &RoundRobinSelector{}
		t.selectors[selector.Key()] = sel
	}
	t.mu.Unlock()
	sel.Add(d)
}

// Wrangle returns the next star for selector via round-robin, or false if
// nothing has been discovered for it yet.
func (t *WrangleTable) Wrangle(selector point.KindSelector) (StarDiscovery, bool) {
	t.mu.Lock()
	sel, ok := t.selectors[selector.Key()]
	t.mu.Unlock()
	if !ok {
		return StarDiscovery{}, false
	}
	return sel.Next()
}
