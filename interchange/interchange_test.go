// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package interchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starlane-io/starlane/point"
)

type fakeEndpoint struct {
	sent []any
	done chan struct{}
}

func newFakeEndpoint() *fakeEndpoint { return &fakeEndpoint{done: make(chan struct{})} }

func (f *fakeEndpoint) Send(_ context.Context, w any) error {
	f.sent = append(f.sent, w)
	return nil
}
func (f *fakeEndpoint) Recv(context.Context) (any, error) { return nil, nil }
func (f *fakeEndpoint) Terminate(string)                  { close(f.done) }
func (f *fakeEndpoint) Done() <-chan struct{}              { return f.done }

func particleSurface(name string) point.Surface {
	return point.New(point.This).Push(point.Segment{Type: point.BaseSegment, Value: name}).ToSurface(point.Shell)
}

func TestKindStringIsStableByTag(t *testing.T) {
	star := point.StarKey{Constellation: 1, Handle: "alpha", Index: 0}
	require.Equal(t, "star:1:alpha:0", StarKind(star).String())
	require.Equal(t, "control:admin", ControlKind("admin").String())
	require.Equal(t, "default-control", DefaultControlKind().String())
}

func TestRouteDeliversToMatchingHyperway(t *testing.T) {
	ic := New(StarKind(point.StarKey{Handle: "alpha"}), nil)
	ep := newFakeEndpoint()
	to := particleSurface("beta")
	ic.Add(Hyperway{Far: to, Endpoint: ep})

	require.NoError(t, ic.Route(context.Background(), "payload", to))
	require.Equal(t, []any{"payload"}, ep.sent)
}

func TestRoutePrefersSingularBinding(t *testing.T) {
	ic := New(DefaultControlKind(), nil)
	general := newFakeEndpoint()
	singular := newFakeEndpoint()
	to := particleSurface("control")
	ic.Add(Hyperway{Far: to, Endpoint: general})
	ic.SingularTo(to, singular)

	require.NoError(t, ic.Route(context.Background(), "cmd", to))
	require.Empty(t, general.sent)
	require.Equal(t, []any{"cmd"}, singular.sent)
}

func TestRouteFailsWithoutBinding(t *testing.T) {
	ic := New(DefaultControlKind(), nil)
	err := ic.Route(context.Background(), "x", particleSurface("nobody"))
	require.Error(t, err)
}

func TestRemoveDropsHyperwayAndSingular(t *testing.T) {
	ic := New(DefaultControlKind(), nil)
	ep := newFakeEndpoint()
	to := particleSurface("beta")
	ic.Add(Hyperway{Far: to, Endpoint: ep})
	ic.SingularTo(to, ep)

	ic.Remove(ep)
	err := ic.Route(context.Background(), "x", to)
	require.Error(t, err)
}

func TestRegistrySelect(t *testing.T) {
	reg := NewRegistry()
	ic := New(ControlKind("admin"), nil)
	reg.Install(ic)

	got, ok := reg.Select(ControlKind("admin"))
	require.True(t, ok)
	require.Same(t, ic, got)

	_, ok = reg.Select(ControlKind("other"))
	require.False(t, ok)
}
