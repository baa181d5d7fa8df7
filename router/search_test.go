// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starlane-io/starlane/exchange"
	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/registry"
	"github.com/starlane-io/starlane/traversal"
	"github.com/starlane-io/starlane/wave"
)

// TestRouterSearchResolvesUnknownHost exercises the full flood-and-reply
// loop between two directly-wired stars: A holds a registered but
// unhosted particle, parks a Ping on it, floods a search ripple to its
// only neighbor B, B answers with a Discovery Echo because it hosts a
// matching kind, and A's exchange resolves that Echo into an assigned
// host, releasing the parked Ping to be delivered on B.
func TestRouterSearchResolvesUnknownHost(t *testing.T) {
	starA := point.StarKey{Constellation: 1, Handle: "a", Index: 0}
	starB := point.StarKey{Constellation: 1, Handle: "b", Index: 0}

	regA := registry.NewInMemory()
	regB := registry.NewInMemory()
	exA := exchange.New(nil, nil)
	exB := exchange.New(nil, nil)

	routerA := New(starA, nil, regA, exA, nil)
	routerB := New(starB, nil, regB, exB, nil)
	routerA.sender = &peerSender{peer: routerB}
	routerB.sender = &peerSender{peer: routerA}
	routerA.AddNeighbor(starB)
	routerB.AddNeighbor(starA)

	betaPoint := particlePoint("beta")
	greet := greetHandler{}
	pipeline := traversal.NewPipeline(point.Kind{Base: point.App}, nil, nil, greet)
	routerB.HostParticle(betaPoint, point.Kind{Base: point.App}, pipeline)

	_, err := regA.Register(context.Background(), registry.Registration{Point: betaPoint, Kind: point.Kind{Base: point.App}})
	require.NoError(t, err)
	// No AssignStar call on regA: the host is unknown, forcing parkAndSearch.

	alphaPoint := particlePoint("alpha")
	from := alphaPoint.ToSurface(point.Core)
	to := betaPoint.ToSurface(point.Core)
	d := wave.NewPing(from, to, wave.DirectedCore{Method: "Ext::Greet", Body: wave.Text("bob")})

	aw := exA.Exchange(d)
	require.NoError(t, routerA.Route(context.Background(), d))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	agg, err := aw.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, exchange.AggregateSingle, agg.Kind)
	require.Equal(t, 200, agg.Single.Core.Status)
	text, err := wave.ToSubstanceRef[wave.Text](agg.Single.Core.Body)
	require.NoError(t, err)
	require.Equal(t, "hi, bob", string(text))

	rec, err := regA.Locate(context.Background(), betaPoint)
	require.NoError(t, err)
	require.True(t, rec.Location.Host.Equal(starB))
}

// TestHandleSearchNoMatchRepliesEmpty confirms a star with no hosted
// particle satisfying the selector still answers, with an empty
// discoveries list rather than fabricating a match or staying silent.
func TestHandleSearchNoMatchRepliesEmpty(t *testing.T) {
	self := point.StarKey{Constellation: 1, Handle: "a", Index: 0}
	r := New(self, nil, registry.NewInMemory(), exchange.New(nil, nil), nil)

	d := wave.NewRipple(r.selfGravity(), wave.ToMany(r.selfGravity()), wave.DirectedCore{
		Method: MethodSearch,
		Headers: map[string]string{
			SearchHeaderBase: "1",
			SearchHeaderSub:  "",
		},
		Body: wave.List{},
	}, wave.TimeoutBounce())

	reflected := r.HandleSearch(context.Background(), d, r.matchesLocalKind)
	require.NotNil(t, reflected)
	require.Equal(t, 200, reflected.Core.Status)
	require.Empty(t, parseDiscoveryBody(reflected.Core.Body))
}

// TestHandleSearchMalformedHeaderReturnsNil confirms an unparseable search
// selector yields no reply at all, distinct from a well-formed search
// that simply finds no match.
func TestHandleSearchMalformedHeaderReturnsNil(t *testing.T) {
	self := point.StarKey{Constellation: 1, Handle: "a", Index: 0}
	r := New(self, nil, registry.NewInMemory(), exchange.New(nil, nil), nil)

	d := wave.NewRipple(r.selfGravity(), wave.ToMany(r.selfGravity()), wave.DirectedCore{
		Method:  MethodSearch,
		Headers: map[string]string{SearchHeaderBase: "not-a-number"},
		Body:    wave.List{},
	}, wave.TimeoutBounce())

	require.Nil(t, r.HandleSearch(context.Background(), d, r.matchesLocalKind))
}
