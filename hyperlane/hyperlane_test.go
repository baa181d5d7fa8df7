// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hyperlane

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/wave"
)

func starSurface(handle string) point.Surface {
	p := point.New(point.Star).Push(point.Segment{Type: point.BaseSegment, Value: handle})
	return p.ToSurface(point.Gravity)
}

func TestGreetRoundTrips(t *testing.T) {
	g := Greet{
		Surface:   starSurface("alpha"),
		Agent:     point.New(point.This).Push(point.Segment{Type: point.BaseSegment, Value: "alice"}),
		Hop:       starSurface("alpha"),
		Transport: starSurface("beta"),
	}
	encoded := encodeGreet(g)
	decoded, err := decodeGreet(encoded)
	require.NoError(t, err)
	require.Equal(t, g.Surface.String(), decoded.Surface.String())
	require.Equal(t, g.Agent.String(), decoded.Agent.String())
	require.Equal(t, g.Hop.String(), decoded.Hop.String())
	require.Equal(t, g.Transport.String(), decoded.Transport.String())
}

func TestDecodeGreetRejectsWrongSubstance(t *testing.T) {
	_, err := decodeGreet(wave.Text("not a map"))
	require.Error(t, err)
}

func TestDecodeGreetRejectsMissingField(t *testing.T) {
	m := wave.Map{"surface": wave.Text(starSurface("alpha").String())}
	_, err := decodeGreet(m)
	require.Error(t, err)
}

func TestTCPHandshakeRoundTrip(t *testing.T) {
	gate := NewGate()
	var linked *TCPHyperlane
	var linkedGreet Greet
	done := make(chan struct{})
	gate.Bind("core", AnonymousAuthenticator{}, GreeterFunc(func(_ context.Context, k wave.Knock) (Greet, error) {
		return Greet{Surface: starSurface("beta"), Agent: point.New(point.This).Push(point.Segment{Type: point.BaseSegment, Value: "client"})}, nil
	}), func(hl *TCPHyperlane, g Greet) {
		linked = hl
		linkedGreet = g
		close(done)
	})

	ln, err := Listen("127.0.0.1:0", nil, gate, nil)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Serve(ctx)

	knock := wave.Knock{InterchangeKind: "core", Auth: wave.Empty{}}
	client, greet, err := Dial(ctx, ln.Addr().String(), nil, starSurface("alpha"), knock, nil)
	require.NoError(t, err)
	defer client.Close("test done")

	require.Equal(t, "beta", greet.Surface.Point.Segments[0].Value)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server never linked hyperlane")
	}
	require.NotNil(t, linked)
	require.Equal(t, "client", linkedGreet.Agent.Segments[0].Value)
	linked.Close("test done")
}

func TestTCPHandshakeRejectsUnboundInterchange(t *testing.T) {
	gate := NewGate()
	ln, err := Listen("127.0.0.1:0", nil, gate, nil)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Serve(ctx)

	knock := wave.Knock{InterchangeKind: "unbound"}
	_, _, err = Dial(ctx, ln.Addr().String(), nil, starSurface("alpha"), knock, nil)
	require.Error(t, err)
}

func TestTCPHandshakeRejectsReplayedNonce(t *testing.T) {
	gate := NewGate()
	gate.Bind("core", AnonymousAuthenticator{}, GreeterFunc(func(_ context.Context, k wave.Knock) (Greet, error) {
		return Greet{Surface: starSurface("beta"), Agent: point.New(point.This).Push(point.Segment{Type: point.BaseSegment, Value: "client"})}, nil
	}), func(hl *TCPHyperlane, g Greet) {})

	ln, err := Listen("127.0.0.1:0", nil, gate, nil)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Serve(ctx)

	knock := wave.Knock{InterchangeKind: "core", Auth: wave.Empty{}, Nonce: "fixed-nonce"}
	client, _, err := Dial(ctx, ln.Addr().String(), nil, starSurface("alpha"), knock, nil)
	require.NoError(t, err)
	client.Close("test done")

	_, _, err = Dial(ctx, ln.Addr().String(), nil, starSurface("alpha"), knock, nil)
	require.Error(t, err)
}

func TestWSHandshakeRoundTrip(t *testing.T) {
	gate := NewGate()
	var linked *TCPHyperlane
	var linkedGreet Greet
	done := make(chan struct{})
	gate.Bind("core", AnonymousAuthenticator{}, GreeterFunc(func(_ context.Context, k wave.Knock) (Greet, error) {
		return Greet{Surface: starSurface("beta"), Agent: point.New(point.This).Push(point.Segment{Type: point.BaseSegment, Value: "client"})}, nil
	}), func(hl *TCPHyperlane, g Greet) {
		linked = hl
		linkedGreet = g
		close(done)
	})

	ln, err := ListenWS("127.0.0.1:0", "/", nil, gate, nil)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Serve(ctx)

	knock := wave.Knock{InterchangeKind: "core", Auth: wave.Empty{}}
	url := "ws://" + ln.Addr().String() + "/"
	client, greet, err := DialWS(ctx, url, nil, starSurface("alpha"), knock, nil)
	require.NoError(t, err)
	defer client.Close("test done")

	require.Equal(t, "beta", greet.Surface.Point.Segments[0].Value)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server never linked hyperlane")
	}
	require.NotNil(t, linked)
	require.Equal(t, "client", linkedGreet.Agent.Segments[0].Value)
	linked.Close("test done")
}

func TestEndpointSendRecvAndTerminate(t *testing.T) {
	e := newChanEndpoint(nil, 1)
	ctx := context.Background()

	require.NoError(t, e.Send(ctx, "hello"))
	v, err := e.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "hello", v)

	e.Terminate("shutdown")
	_, err = e.Recv(ctx)
	require.Error(t, err)
	require.Error(t, e.Send(ctx, "too late"))

	// Terminate is idempotent.
	e.Terminate("again")
}
