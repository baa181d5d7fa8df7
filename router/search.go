// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/starlane-io/starlane/exchange"
	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/utils/bag"
	"github.com/starlane-io/starlane/utils/constants"
	"github.com/starlane-io/starlane/wave"
)

const (
	// MethodSearch tags a Ripple to Recipients::Stars carrying a kind
	// search, per spec §4.6.
	MethodSearch = "Router::Search"
	// SearchHeaderBase and SearchHeaderSub carry the point.Base (as its
	// numeric value) and optional Sub tag being searched for.
	SearchHeaderBase = "kind-base"
	SearchHeaderSub  = "kind-sub"
)

func parseStarKey(s string) (point.StarKey, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return point.StarKey{}, fmt.Errorf("router: malformed star key %q", s)
	}
	constellation, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return point.StarKey{}, fmt.Errorf("router: malformed star key %q: %w", s, err)
	}
	index, err := strconv.ParseUint(parts[2], 10, 16)
	if err != nil {
		return point.StarKey{}, fmt.Errorf("router: malformed star key %q: %w", s, err)
	}
	return point.StarKey{Constellation: uint32(constellation), Handle: parts[1], Index: uint16(index)}, nil
}

// parkAndSearch holds d until a search ripple for kind resolves a host for
// p, issuing the ripple itself only if one is not already in flight for
// the same selector (spec §8 scenario 3: "Second Ping to x proceeds
// without a new search").
func (r *Router) parkAndSearch(ctx context.Context, p point.Point, kind point.Kind, d *wave.Directed) error {
	sub := kind.Sub
	selector := point.KindSelector{Base: kind.Base, Sub: &sub}

	r.mu.Lock()
	r.hold[selector.Key()] = append(r.hold[selector.Key()], d)
	alreadySearching := r.searching[selector.Key()]
	if !alreadySearching {
		r.searching[selector.Key()] = true
	}
	r.mu.Unlock()

	if alreadySearching {
		return nil
	}
	return r.issueSearch(ctx, selector)
}

// issueSearch emits a Ripple search to every known neighbor and registers
// a responder that feeds Discoveries into the wrangle table and releases
// any waves parked on this selector.
func (r *Router) issueSearch(ctx context.Context, selector point.KindSelector) error {
	r.mu.RLock()
	neighbors := r.neighbors.List()
	r.mu.RUnlock()

	if len(neighbors) == 0 {
		r.mu.Lock()
		delete(r.searching, selector.Key())
		r.mu.Unlock()
		return nil
	}

	sub := ""
	if selector.Sub != nil {
		sub = *selector.Sub
	}
	d := wave.NewRipple(r.selfGravity(), wave.ToStars(), wave.DirectedCore{
		Method: MethodSearch,
		Headers: map[string]string{
			SearchHeaderBase: strconv.Itoa(int(selector.Base)),
			SearchHeaderSub:  sub,
		},
		Body: wave.List{},
	}, wave.TimeoutBounce())
	d.Handling.Wait = constants.SearchWait

	aw := r.exchanger.Exchange(d)
	go r.awaitDiscoveries(selector, aw)

	for _, n := range neighbors {
		if err := r.forward(ctx, d, n); err != nil {
			r.warn("search ripple forward failed")
		}
	}
	return nil
}

// awaitDiscoveries blocks until the search ripple's timeout bounce-back
// drains (spec §4.6: a forwarder "wrangles across the timeout window"
// before routing on to whichever stars replied), then records every
// Discovery Echo collected against selector and releases any waves parked
// on it. If nothing answered before the deadline, the selector is simply
// marked no-longer-searching so a later request for the same kind tries
// again rather than waiting on a search that will never resolve.
func (r *Router) awaitDiscoveries(selector point.KindSelector, aw *exchange.Awaiter) {
	agg, err := aw.Wait(context.Background())
	if err != nil {
		return
	}

	discovered := false
	tally := bag.New[point.StarKey]()
	for _, reflected := range agg.Many {
		for _, disc := range parseDiscoveryBody(reflected.Core.Body) {
			tally.Add(disc.Star)
			r.ResolveDiscovery(context.Background(), selector, disc.Star, disc.Hops)
			discovered = true
		}
	}
	if mode, count := tally.Mode(); count > 1 {
		r.warn("search ripple: star answered more than once for a single selector", zap.String("star", mode.String()), zap.Int("count", count))
	}

	if !discovered {
		r.mu.Lock()
		delete(r.searching, selector.Key())
		r.mu.Unlock()
	}
}

// discoveryEntry is a single (star, hops) pair carried inside a Discovery
// Echo's "discoveries" list.
type discoveryEntry struct {
	Star point.StarKey
	Hops int
}

// discoveriesBody builds the Discovery Echo body for entries, which may be
// empty when the responder hosts no kind satisfying the search.
func discoveriesBody(entries []discoveryEntry) wave.Map {
	list := make(wave.List, 0, len(entries))
	for _, e := range entries {
		list = append(list, wave.Map{
			"star": wave.Text(e.Star.String()),
			"hops": wave.Text(strconv.Itoa(e.Hops)),
		})
	}
	return wave.Map{"discoveries": list}
}

// parseDiscoveryBody extracts the discoveries list from a Discovery Echo
// body, skipping any malformed entries rather than failing the whole
// reply. A body with no "discoveries" list, or an empty one, yields a nil
// slice: the responder answered but found no match.
func parseDiscoveryBody(body wave.Substance) []discoveryEntry {
	m, ok := body.(wave.Map)
	if !ok {
		return nil
	}
	list, ok := m["discoveries"].(wave.List)
	if !ok {
		return nil
	}
	entries := make([]discoveryEntry, 0, len(list))
	for _, item := range list {
		em, ok := item.(wave.Map)
		if !ok {
			continue
		}
		starText, ok := em["star"].(wave.Text)
		if !ok {
			continue
		}
		hopsText, ok := em["hops"].(wave.Text)
		if !ok {
			continue
		}
		star, err := parseStarKey(string(starText))
		if err != nil {
			continue
		}
		hops, err := strconv.Atoi(string(hopsText))
		if err != nil {
			continue
		}
		entries = append(entries, discoveryEntry{Star: star, Hops: hops})
	}
	return entries
}

// routeSearchRipple forwards a wave addressed to Recipients::Stars to
// every direct neighbor of this star. issueSearch forwards its own search
// ripple directly and does not go through here.
func (r *Router) routeSearchRipple(ctx context.Context, d *wave.Directed) error {
	r.mu.RLock()
	neighbors := r.neighbors.List()
	r.mu.RUnlock()
	for _, n := range neighbors {
		if err := r.forward(ctx, d, n); err != nil {
			return err
		}
	}
	return nil
}

func searchSelector(d *wave.Directed) (point.KindSelector, error) {
	baseVal, err := strconv.Atoi(d.Core.Headers[SearchHeaderBase])
	if err != nil {
		return point.KindSelector{}, fmt.Errorf("router: malformed search headers: %w", err)
	}
	selector := point.KindSelector{Base: point.Base(baseVal)}
	if sub := d.Core.Headers[SearchHeaderSub]; sub != "" {
		selector.Sub = &sub
	}
	return selector, nil
}

// HandleSearch is the responder side: given an inbound search Ripple,
// parse the KindSelector it carries and reply with a Discovery Echo
// carrying this star's match (if matches reports one) or an empty
// discoveries list otherwise. A well-formed search always gets a reply —
// the original search responder always answers status 200, discoveries
// possibly empty, rather than declining silently — so a searcher can tell
// "no one answered yet" (exchange timeout) apart from "this neighbor
// answered and has nothing." Only a malformed search header (selector
// unparseable) yields no reply at all. The Echo's From is this star's own
// gravity surface; routing the reply back to the searcher is the
// caller's job.
func (r *Router) HandleSearch(_ context.Context, d *wave.Directed, matches func(point.KindSelector) (int, bool)) *wave.Reflected {
	selector, err := searchSelector(d)
	if err != nil {
		return nil
	}

	var entries []discoveryEntry
	if hops, ok := matches(selector); ok {
		entries = []discoveryEntry{{Star: r.self, Hops: hops}}
	}
	return wave.NewEcho(r.selfGravity(), d, wave.StatusOK(discoveriesBody(entries)))
}

// matchesLocalKind reports whether this star hosts a particle whose kind
// satisfies selector, directly-hosted particles costing 0 hops.
func (r *Router) matchesLocalKind(selector point.KindSelector) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, lp := range r.particles {
		if selector.Matches(lp.kind) {
			return 0, true
		}
	}
	return 0, false
}

// handleInboundSearch is the receiving side of a search ripple delivered
// by ReceiveHop: reply with a Discovery Echo addressed back to the
// ripple's own origin (d.From, stable across hops, rather than the
// immediate forwarder), listing this star if it hosts a satisfying kind
// and empty otherwise.
//
// Re-forwarding beyond this star's own direct neighbors is not attempted:
// replyAcrossHop can only route a reply back through a next-hop this
// star's adjacents table already knows, and that table only ever learns
// direct neighbors (AddNeighbor) plus whatever AdvertiseRoute records —
// nothing populates routes back to an arbitrary origin two or more hops
// away. A genuine flood would need that route-learning first; see
// DESIGN.md's search ripple fan-out depth note.
func (r *Router) handleInboundSearch(ctx context.Context, d *wave.Directed) error {
	self := r.selfGravity().Point
	if d.Visited(self) {
		return nil
	}
	reflected := r.HandleSearch(ctx, d, r.matchesLocalKind)
	if reflected == nil {
		// Only a malformed search header reaches here; a well-formed
		// search always gets a Discovery Echo, empty or not.
		return nil
	}
	return r.replyAcrossHop(ctx, d.From, reflected)
}

// ResolveDiscovery records a Discovery reflection against selector's
// wrangle table, assigns discoverer as the host for every point parked on
// that selector's search, and releases those waves for re-routing.
func (r *Router) ResolveDiscovery(ctx context.Context, selector point.KindSelector, discoverer point.StarKey, hops int) {
	r.wrangles.Record(selector, StarDiscovery{Pair: point.NewStarPair(r.self, discoverer), Discoverer: discoverer, Hops: hops})

	r.mu.Lock()
	delete(r.searching, selector.Key())
	released := r.hold[selector.Key()]
	delete(r.hold, selector.Key())
	r.mu.Unlock()

	for _, d := range released {
		for _, to := range d.To.Surfaces {
			if err := r.registry.AssignStar(ctx, to.Point, discoverer); err != nil {
				r.warn("wrangle assign failed")
			}
		}
		go func(d *wave.Directed) {
			_ = r.Route(context.Background(), d)
		}(d)
	}
}
