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

// peerSender delivers Hop waves synchronously to another in-process
// Router, standing in for a local hyperway between two stars.
type peerSender struct {
	peer *Router
}

func (p *peerSender) SendHop(ctx context.Context, _ point.StarKey, d *wave.Directed) error {
	return p.peer.ReceiveHop(ctx, d)
}

func particlePoint(name string) point.Point {
	return point.New(point.This).Push(point.Segment{Type: point.BaseSegment, Value: name})
}

func TestRouterLocalDelivery(t *testing.T) {
	self := point.StarKey{Constellation: 1, Handle: "a", Index: 0}
	reg := registry.NewInMemory()
	ex := exchange.New(nil, nil)
	r := New(self, nil, reg, ex, nil)

	p := particlePoint("less")
	pipeline := traversal.NewPipeline(point.Kind{Base: point.App}, nil, nil, nil)
	r.HostParticle(p, point.Kind{Base: point.App}, pipeline)

	to := p.ToSurface(point.Core)
	d := wave.NewPing(to, to, wave.DirectedCore{Method: "Cmd::Bounce"})
	aw := ex.Exchange(d)
	require.NoError(t, r.Route(context.Background(), d))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	agg, err := aw.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, exchange.AggregateSingle, agg.Kind)
	require.Equal(t, 200, agg.Single.Core.Status)
}

func TestRouterCrossStarPing(t *testing.T) {
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
	require.NoError(t, regA.AssignStar(context.Background(), betaPoint, starB))

	alphaPoint := particlePoint("alpha")
	from := alphaPoint.ToSurface(point.Core)
	to := betaPoint.ToSurface(point.Core)
	d := wave.NewPing(from, to, wave.DirectedCore{Method: "Ext::Greet", Body: wave.Text("alice")})

	aw := exA.Exchange(d)
	require.NoError(t, routerA.Route(context.Background(), d))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	agg, err := aw.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, exchange.AggregateSingle, agg.Kind)
	require.Equal(t, 200, agg.Single.Core.Status)
	text, err := wave.ToSubstanceRef[wave.Text](agg.Single.Core.Body)
	require.NoError(t, err)
	require.Equal(t, "hi, alice", string(text))
}

type greetHandler struct{}

func (greetHandler) Handle(_ context.Context, d *wave.Directed) (wave.ReflectedCore, error) {
	body, err := wave.ToSubstanceRef[wave.Text](d.Core.Body)
	if err != nil {
		return wave.ReflectedCore{}, err
	}
	return wave.StatusOK(wave.Text("hi, " + string(body))), nil
}

func TestRouterUnknownDestinationFails(t *testing.T) {
	self := point.StarKey{Constellation: 1, Handle: "a", Index: 0}
	reg := registry.NewInMemory()
	ex := exchange.New(nil, nil)
	r := New(self, nil, reg, ex, nil)

	to := particlePoint("ghost").ToSurface(point.Core)
	d := wave.NewPing(to, to, wave.DirectedCore{Method: "Cmd"})
	err := r.Route(context.Background(), d)
	require.Error(t, err)
}
