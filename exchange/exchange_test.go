// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/wave"
)

func surface(name string) point.Surface {
	return point.New(point.This).Push(point.Segment{Type: point.BaseSegment, Value: name}).ToSurface(point.Core)
}

func TestExchangeNoneReturnsImmediately(t *testing.T) {
	e := New(nil, nil)
	d := wave.NewSignal(surface("a"), surface("b"), wave.DirectedCore{Method: "Cmd"})
	agg, err := e.Exchange(d).Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, AggregateNone, agg.Kind)
	require.Equal(t, 0, e.Pending())
}

func TestExchangeSingleCompletesOnReflection(t *testing.T) {
	e := New(nil, nil)
	d := wave.NewPing(surface("a"), surface("b"), wave.DirectedCore{Method: "Cmd"})
	aw := e.Exchange(d)
	require.Equal(t, 1, e.Pending())

	r := wave.NewPong(surface("b"), d, wave.StatusOK(wave.Empty{}))
	e.Reflected(r)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	agg, err := aw.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, AggregateSingle, agg.Kind)
	require.Equal(t, r.ID, agg.Single.ID)
	require.Equal(t, 0, e.Pending())
}

func TestExchangeCountCompletesAfterN(t *testing.T) {
	e := New(nil, nil)
	d := wave.NewRipple(surface("a"), wave.ToMany(surface("b"), surface("c")), wave.DirectedCore{Method: "Cmd"}, wave.CountBounce(2))
	aw := e.Exchange(d)

	e.Reflected(wave.NewEcho(surface("b"), d, wave.StatusOK(wave.Empty{})))
	require.Equal(t, 1, e.Pending())
	e.Reflected(wave.NewEcho(surface("c"), d, wave.StatusOK(wave.Empty{})))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	agg, err := aw.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, AggregateMany, agg.Kind)
	require.Len(t, agg.Many, 2)
}

func TestExchangeTimeoutDrainsCollected(t *testing.T) {
	e := New(nil, nil)
	d := wave.NewPing(surface("a"), surface("b"), wave.DirectedCore{Method: "Cmd"})
	d.Handling.Wait = 20 * time.Millisecond
	aw := e.Exchange(d)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	agg, err := aw.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, AggregateTimeout, agg.Kind)
	require.Empty(t, agg.Many)
	require.Equal(t, 0, e.Pending())
}

func TestExchangeLateReflectionDropped(t *testing.T) {
	e := New(nil, nil)
	d := wave.NewPing(surface("a"), surface("b"), wave.DirectedCore{Method: "Cmd"})
	d.Handling.Wait = 10 * time.Millisecond
	aw := e.Exchange(d)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := aw.Wait(ctx)
	require.NoError(t, err)

	// Reflection arrives after the entry has already expired; it must be
	// dropped rather than panicking or resurrecting the entry.
	require.NotPanics(t, func() {
		e.Reflected(wave.NewPong(surface("b"), d, wave.StatusOK(wave.Empty{})))
	})
	require.Equal(t, 0, e.Pending())
}

func TestExchangeCancelRemovesEntry(t *testing.T) {
	e := New(nil, nil)
	d := wave.NewPing(surface("a"), surface("b"), wave.DirectedCore{Method: "Cmd"})
	e.Exchange(d)
	require.Equal(t, 1, e.Pending())
	e.Cancel(d.ID)
	require.Equal(t, 0, e.Pending())
}
