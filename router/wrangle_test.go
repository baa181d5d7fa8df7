// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starlane-io/starlane/point"
)

func TestRoundRobinSelectorRotatesMinHopTier(t *testing.T) {
	sel := &RoundRobinSelector{}
	a := point.StarKey{Constellation: 1, Handle: "a", Index: 0}
	b := point.StarKey{Constellation: 1, Handle: "b", Index: 0}
	c := point.StarKey{Constellation: 1, Handle: "c", Index: 0}
	d2 := point.StarKey{Constellation: 1, Handle: "d", Index: 0}

	sel.Add(StarDiscovery{Pair: point.NewStarPair(a, b), Discoverer: b, Hops: 1})
	sel.Add(StarDiscovery{Pair: point.NewStarPair(a, c), Discoverer: c, Hops: 1})
	sel.Add(StarDiscovery{Pair: point.NewStarPair(a, d2), Discoverer: d2, Hops: 2})

	seen := map[point.StarPair]bool{}
	for i := 0; i < 2; i++ {
		d, ok := sel.Next()
		require.True(t, ok)
		require.Equal(t, 1, d.Hops)
		seen[d.Pair] = true
	}
	require.Len(t, seen, 2)

	// Third call wraps back to the first tier-1 entry rather than falling
	// through to the hops=2 entry.
	d, ok := sel.Next()
	require.True(t, ok)
	require.Equal(t, 1, d.Hops)
}

// TestRoundRobinSelectorSkipsWorseRediscovery confirms a discoverer
// re-announced at a worse hop count than already recorded is dropped, and
// one re-announced at a better hop count replaces the stale entry.
func TestRoundRobinSelectorSkipsWorseRediscovery(t *testing.T) {
	sel := &RoundRobinSelector{}
	a := point.StarKey{Constellation: 1, Handle: "a", Index: 0}
	b := point.StarKey{Constellation: 1, Handle: "b", Index: 0}

	sel.Add(StarDiscovery{Pair: point.NewStarPair(a, b), Discoverer: b, Hops: 1})
	sel.Add(StarDiscovery{Pair: point.NewStarPair(a, b), Discoverer: b, Hops: 3})
	require.Equal(t, 1, sel.Len())
	d, ok := sel.Next()
	require.True(t, ok)
	require.Equal(t, 1, d.Hops)

	sel.Add(StarDiscovery{Pair: point.NewStarPair(a, b), Discoverer: b, Hops: 0})
	require.Equal(t, 1, sel.Len())
	d, ok = sel.Next()
	require.True(t, ok)
	require.Equal(t, 0, d.Hops)
}

func TestWrangleTableUnknownSelector(t *testing.T) {
	table := NewWrangleTable()
	_, ok := table.Wrangle(point.KindSelector{Base: point.App})
	require.False(t, ok)
}
