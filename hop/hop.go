// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hop implements the two nested signal envelopes cross-star
// delivery uses: Transport (outer wrapper addressed to the destination
// star, carrying the real inner wave) and Hop (the link-local signal
// addressed to the next star, carrying a transport wave).
package hop

import (
	"fmt"

	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/wave"
)

// MethodTransport and MethodHop tag the DirectedCore.Method of the two
// envelope signals so a receiving star can tell them apart before
// inspecting the body substance.
const (
	MethodTransport = "Hop::Transport"
	MethodHop       = "Hop::Hop"
)

// WrapTransport builds the outer Transport signal addressed to destination,
// carrying inner (already wire-encoded) as its body.
func WrapTransport(from point.Surface, destination point.StarKey, inner []byte) *wave.Directed {
	to := point.New(point.Star).Push(point.Segment{Type: point.BaseSegment, Value: destination.String()}).ToSurface(point.Gravity)
	return wave.NewSignal(from, to, wave.DirectedCore{
		Method: MethodTransport,
		Body:   wave.HyperSubstance{Star: destination, Inner: inner},
	})
}

// UnwrapTransport extracts the destination star and inner wave bytes from a
// Transport signal. It fails if d's method is not MethodTransport or its
// body is not a HyperSubstance.
func UnwrapTransport(d *wave.Directed) (point.StarKey, []byte, error) {
	if d.Core.Method != MethodTransport {
		return point.StarKey{}, nil, fmt.Errorf("hop: not a transport envelope: method %q", d.Core.Method)
	}
	hs, err := wave.ToSubstanceRef[wave.HyperSubstance](d.Core.Body)
	if err != nil {
		return point.StarKey{}, nil, fmt.Errorf("hop: transport envelope: %w", err)
	}
	return hs.Star, hs.Inner, nil
}

// WrapHop builds the link-local Hop signal addressed to next, carrying an
// already wire-encoded transport wave.
func WrapHop(from point.Surface, next point.StarKey, transportWire []byte) *wave.Directed {
	to := point.New(point.Star).Push(point.Segment{Type: point.BaseSegment, Value: next.String()}).ToSurface(point.Gravity)
	return wave.NewSignal(from, to, wave.DirectedCore{
		Method: MethodHop,
		Body:   wave.HyperSubstance{Star: next, Inner: transportWire},
	})
}

// UnwrapHop extracts the next-hop star and the transport wave bytes from a
// Hop signal.
func UnwrapHop(d *wave.Directed) (point.StarKey, []byte, error) {
	if d.Core.Method != MethodHop {
		return point.StarKey{}, nil, fmt.Errorf("hop: not a hop envelope: method %q", d.Core.Method)
	}
	hs, err := wave.ToSubstanceRef[wave.HyperSubstance](d.Core.Body)
	if err != nil {
		return point.StarKey{}, nil, fmt.Errorf("hop: hop envelope: %w", err)
	}
	return hs.Star, hs.Inner, nil
}
