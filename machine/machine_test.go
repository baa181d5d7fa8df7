// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package machine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starlane-io/starlane/config"
	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/registry"
	"github.com/starlane-io/starlane/traversal"
	"github.com/starlane-io/starlane/wave"
)

func starKey(handle string) point.StarKey { return point.StarKey{Handle: handle} }

func particlePoint(name string) point.Point {
	return point.New(point.This).Push(point.Segment{Type: point.BaseSegment, Value: name})
}

type echoHandler struct{}

func (echoHandler) Handle(_ context.Context, d *wave.Directed) (wave.ReflectedCore, error) {
	return wave.StatusOK(d.Core.Body), nil
}

func TestMachineInitReachesReady(t *testing.T) {
	tmpl, err := config.NewBuilder().
		AddStar(config.StarConfig{Key: starKey("alpha")}).
		AddStar(config.StarConfig{Key: starKey("beta")}).
		Wire(starKey("alpha"), starKey("beta")).
		Build()
	require.NoError(t, err)

	m := New(tmpl, nil)
	require.NoError(t, m.Init(context.Background()))
	require.Equal(t, MachineReady, m.Aggregate())

	status, err := m.WaitForReady(context.Background())
	require.NoError(t, err)
	require.Equal(t, MachineReady, status)
}

func TestMachineCrossStarDeliveryOverLocalWire(t *testing.T) {
	tmpl, err := config.NewBuilder().
		AddStar(config.StarConfig{Key: starKey("alpha")}).
		AddStar(config.StarConfig{Key: starKey("beta")}).
		Wire(starKey("alpha"), starKey("beta")).
		Build()
	require.NoError(t, err)

	m := New(tmpl, nil)
	require.NoError(t, m.Init(context.Background()))

	betaStar, ok := m.Star(starKey("beta"))
	require.True(t, ok)
	pipeline := traversal.NewPipeline(point.Kind{Base: point.App}, traversal.AllowAll{}, traversal.NoopShell{}, echoHandler{})
	target := particlePoint("service")
	betaStar.Router.HostParticle(target, point.Kind{Base: point.App}, pipeline)

	_, err = betaStar.Registry.Register(context.Background(), registry.Registration{Point: target, Kind: point.Kind{Base: point.App}})
	require.NoError(t, err)
	require.NoError(t, betaStar.Registry.AssignStar(context.Background(), target, starKey("beta")))

	alphaStar, ok := m.Star(starKey("alpha"))
	require.True(t, ok)
	to := target.ToSurface(point.Core)
	ping := wave.NewPing(particlePoint("caller").ToSurface(point.Core), to, wave.DirectedCore{Method: "Get", Body: wave.Text("hi")})
	awaiter := alphaStar.Exchanger.Exchange(ping)
	require.NoError(t, alphaStar.Router.Route(context.Background(), ping))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	agg, err := awaiter.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, agg.Single)
	require.Equal(t, 200, agg.Single.Core.Status)
}

func TestMachineTerminateUnblocksAwaitTermination(t *testing.T) {
	tmpl, err := config.NewBuilder().AddStar(config.StarConfig{Key: starKey("alpha")}).Build()
	require.NoError(t, err)
	m := New(tmpl, nil)
	require.NoError(t, m.Init(context.Background()))

	done := make(chan error, 1)
	go func() { done <- m.AwaitTermination(context.Background()) }()
	m.Terminate("test shutdown")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitTermination never unblocked")
	}
	require.Equal(t, Done, mustStar(t, m, "alpha").Status())
}

func mustStar(t *testing.T, m *Machine, handle string) *Star {
	t.Helper()
	st, ok := m.Star(starKey(handle))
	require.True(t, ok)
	return st
}
