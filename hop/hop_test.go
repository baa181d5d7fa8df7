// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hop

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/wave"
)

func TestWrapUnwrapTransport(t *testing.T) {
	from := point.New(point.This).Push(point.Segment{Type: point.BaseSegment, Value: "a"}).ToSurface(point.Gravity)
	dest := point.StarKey{Constellation: 1, Handle: "nexus", Index: 0}
	inner := []byte{1, 2, 3}

	d := WrapTransport(from, dest, inner)
	require.Equal(t, MethodTransport, d.Core.Method)

	gotDest, gotInner, err := UnwrapTransport(d)
	require.NoError(t, err)
	require.True(t, gotDest.Equal(dest))
	require.Equal(t, inner, gotInner)
}

func TestWrapUnwrapHop(t *testing.T) {
	from := point.New(point.This).Push(point.Segment{Type: point.BaseSegment, Value: "a"}).ToSurface(point.Gravity)
	next := point.StarKey{Constellation: 1, Handle: "jump", Index: 2}
	wire := []byte{9, 8, 7}

	d := WrapHop(from, next, wire)
	gotNext, gotWire, err := UnwrapHop(d)
	require.NoError(t, err)
	require.True(t, gotNext.Equal(next))
	require.Equal(t, wire, gotWire)
}

func TestUnwrapWrongMethod(t *testing.T) {
	from := point.New(point.This).Push(point.Segment{Type: point.BaseSegment, Value: "a"}).ToSurface(point.Gravity)
	to := point.New(point.This).Push(point.Segment{Type: point.BaseSegment, Value: "b"}).ToSurface(point.Core)
	d := wave.NewSignal(from, to, wave.DirectedCore{Method: "Ext::Greet"})

	_, _, err := UnwrapTransport(d)
	require.Error(t, err)
	_, _, err = UnwrapHop(d)
	require.Error(t, err)
}
