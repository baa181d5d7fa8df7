// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package traversal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/wave"
)

type greetHandler struct{}

func (greetHandler) Handle(_ context.Context, d *wave.Directed) (wave.ReflectedCore, error) {
	body, err := wave.ToSubstanceRef[wave.Text](d.Core.Body)
	if err != nil {
		return wave.ReflectedCore{}, err
	}
	return wave.StatusOK(wave.Text("hi, " + string(body))), nil
}

type denyAll struct{ reason string }

func (d denyAll) Allow(_ context.Context, directed *wave.Directed) (*wave.Directed, bool, string) {
	return directed, false, d.reason
}

func surface(name string) point.Surface {
	return point.New(point.This).Push(point.Segment{Type: point.BaseSegment, Value: name}).ToSurface(point.Core)
}

func TestPipelineBounceToSelf(t *testing.T) {
	p := NewPipeline(point.Kind{Base: point.App}, nil, nil, nil)
	d := wave.NewPing(surface("less"), surface("less"), wave.DirectedCore{Method: "Cmd::Bounce"})

	r := p.Traverse(context.Background(), TraversalInjection{Surface: surface("less"), Directed: d, FromGravity: true})
	require.Equal(t, 200, r.Core.Status)
	require.Equal(t, wave.Empty{}, r.Core.Body)
	require.Equal(t, d.ID, r.ResponseTo)
}

func TestPipelineGreetHandler(t *testing.T) {
	p := NewPipeline(point.Kind{Base: point.App}, nil, nil, greetHandler{})
	d := wave.NewPing(surface("alpha"), surface("beta"), wave.DirectedCore{Method: "Ext::Greet", Body: wave.Text("alice")})

	r := p.Traverse(context.Background(), TraversalInjection{Surface: surface("beta"), Directed: d, FromGravity: true})
	require.Equal(t, 200, r.Core.Status)
	text, err := wave.ToSubstanceRef[wave.Text](r.Core.Body)
	require.NoError(t, err)
	require.Equal(t, "hi, alice", string(text))
}

func TestPipelineFieldDenialNeverReachesCore(t *testing.T) {
	p := NewPipeline(point.Kind{Base: point.App}, denyAll{reason: "blocked"}, nil, greetHandler{})
	d := wave.NewPing(surface("alpha"), surface("beta"), wave.DirectedCore{Method: "Ext::Greet", Body: wave.Text("alice")})

	r := p.Traverse(context.Background(), TraversalInjection{Surface: surface("beta"), Directed: d, FromGravity: true})
	require.Equal(t, 403, r.Core.Status)
	errs, err := wave.ToSubstanceRef[wave.Errors](r.Core.Body)
	require.NoError(t, err)
	require.Equal(t, wave.Errors{"blocked"}, errs)
}

func TestPipelineRippleReflectsEcho(t *testing.T) {
	p := NewPipeline(point.Kind{Base: point.App}, nil, nil, nil)
	d := wave.NewRipple(surface("alpha"), wave.ToMany(surface("beta")), wave.DirectedCore{Method: "Cmd"}, wave.CountBounce(1))

	r := p.Traverse(context.Background(), TraversalInjection{Surface: surface("beta"), Directed: d, FromGravity: true})
	require.Equal(t, wave.Echo, r.Kind)
}
