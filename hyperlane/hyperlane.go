// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hyperlane implements the bi-directional wave channel between two
// endpoints (star<->star or external client<->star): a TCP+TLS transport
// with length-prefixed framing, a version/Ok/Knock handshake, and a
// read/write loop that feeds a local in-process endpoint.
package hyperlane

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/starlane-io/starlane/fault"
	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/wave"
)

// ProtocolVersion is the semver this build's wire protocol negotiates.
// Both sides of a handshake must agree exactly; a mismatch aborts the
// connection (spec §6.1).
const ProtocolVersion = "1.0.0"

// Endpoint is one side of a hyperlane: a duplex wave channel with a
// terminate signal. Near and far endpoints are symmetric; only the
// direction of Send/Recv distinguishes them.
type Endpoint interface {
	Send(ctx context.Context, w any) error
	Recv(ctx context.Context) (any, error)
	Terminate(reason string)
	Done() <-chan struct{}
}

// chanEndpoint is an in-process Endpoint backed by buffered channels, fed
// by a hyperlane's read loop and drained by its write loop.
type chanEndpoint struct {
	log log.Logger

	outbound chan any
	inbound  chan any
	done     chan struct{}
	once     sync.Once
	reason   string
	mu       sync.Mutex
}

func newChanEndpoint(logger log.Logger, bufSize int) *chanEndpoint {
	return &chanEndpoint{
		log:      logger,
		outbound: make(chan any, bufSize),
		inbound:  make(chan any, bufSize),
		done:     make(chan struct{}),
	}
}

// Send enqueues w for the hyperlane's write loop. Backpressure: Send
// suspends (blocks on ctx) once the outbound buffer is full (spec §5,
// "hyperlane send is bounded; when full, the sender suspends").
func (e *chanEndpoint) Send(ctx context.Context, w any) error {
	select {
	case e.outbound <- w:
		return nil
	case <-e.done:
		return fmt.Errorf("hyperlane: %w", fault.ErrTransport)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv blocks for the next wave delivered by the hyperlane's read loop.
func (e *chanEndpoint) Recv(ctx context.Context) (any, error) {
	select {
	case w := <-e.inbound:
		return w, nil
	case <-e.done:
		return nil, fmt.Errorf("hyperlane: terminated (%s): %w", e.reason, fault.ErrTransport)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Terminate closes the endpoint; Done() fires and any blocked Send/Recv
// return fault.ErrTransport. Safe to call more than once.
func (e *chanEndpoint) Terminate(reason string) {
	e.once.Do(func() {
		e.mu.Lock()
		e.reason = reason
		e.mu.Unlock()
		close(e.done)
		if e.log != nil {
			e.log.Debug("hyperlane terminated", zap.String("reason", reason))
		}
	})
}

func (e *chanEndpoint) Done() <-chan struct{} { return e.done }

// LocalPair builds two in-process Endpoints wired directly to each other
// with a forwarding goroutine per direction, no socket involved. Used for
// the local hyperway a Machine opens between two stars it hosts in the
// same process (spec §4.8 step 4).
func LocalPair(ctx context.Context, logger log.Logger) (Endpoint, Endpoint) {
	a := newChanEndpoint(logger, 64)
	b := newChanEndpoint(logger, 64)
	pump := func(from, to *chanEndpoint) {
		for {
			select {
			case w := <-from.outbound:
				select {
				case to.inbound <- w:
				case <-to.done:
					from.Terminate("peer terminated")
					return
				case <-ctx.Done():
					return
				}
			case <-from.done:
				to.Terminate("peer terminated")
				return
			case <-ctx.Done():
				return
			}
		}
	}
	go pump(a, b)
	go pump(b, a)
	return a, b
}

// TCPHyperlane wraps a net.Conn (expected to be TLS-wrapped) in the
// spec's framed wire protocol, after a version/Ok/Knock handshake has
// already completed. It drives an independent read task and write task
// (spec §5, "Hyperlane read and write halves run as independent tasks"),
// each forwarding to/from a chanEndpoint.
type TCPHyperlane struct {
	*chanEndpoint
	conn net.Conn
	log  log.Logger
	wg   sync.WaitGroup
}

// newTCPHyperlane starts the read/write loops over conn and returns the
// Endpoint the caller uses to exchange waves. conn must already be past
// handshake.
func newTCPHyperlane(ctx context.Context, conn net.Conn, logger log.Logger) *TCPHyperlane {
	h := &TCPHyperlane{
		chanEndpoint: newChanEndpoint(logger, 64),
		conn:         conn,
		log:          logger,
	}
	h.wg.Add(2)
	go h.readLoop(ctx)
	go h.writeLoop(ctx)
	return h
}

func (h *TCPHyperlane) readLoop(ctx context.Context) {
	defer h.wg.Done()
	defer h.conn.Close()
	r := bufio.NewReader(h.conn)
	for {
		kind, body, err := wave.ReadFrame(r)
		if err != nil {
			h.Terminate(fmt.Sprintf("read: %v", err))
			return
		}
		if kind != wave.WireWave {
			continue
		}
		decoded, err := wave.Decode(body)
		if err != nil {
			if h.log != nil {
				h.log.Warn("hyperlane: malformed wave frame", zap.Error(err))
			}
			continue
		}
		select {
		case h.inbound <- decoded:
		case <-h.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *TCPHyperlane) writeLoop(ctx context.Context) {
	defer h.wg.Done()
	for {
		select {
		case w := <-h.outbound:
			if err := wave.Send(h.conn, w); err != nil {
				h.Terminate(fmt.Sprintf("write: %v", err))
				return
			}
		case <-h.done:
			return
		case <-ctx.Done():
			h.Terminate("context canceled")
			return
		}
	}
}

// Close terminates the hyperlane and waits for both loops to exit.
func (h *TCPHyperlane) Close(reason string) {
	h.Terminate(reason)
	h.wg.Wait()
}

// Greet is what a validated Knock resolves to: the surfaces a connecting
// client addresses itself by, and the hop/transport surfaces used to
// reach it back across the fabric (spec §4.7).
type Greet struct {
	Surface   point.Surface
	Agent     point.Point
	Hop       point.Surface
	Transport point.Surface
}

func encodeGreet(g Greet) wave.Substance {
	return wave.Map{
		"surface":   wave.Text(g.Surface.String()),
		"agent":     wave.Text(g.Agent.String()),
		"hop":       wave.Text(g.Hop.String()),
		"transport": wave.Text(g.Transport.String()),
	}
}

func decodeGreet(s wave.Substance) (Greet, error) {
	m, err := wave.ToSubstanceRef[wave.Map](s)
	if err != nil {
		return Greet{}, fmt.Errorf("hyperlane: %w", err)
	}
	surface, err := surfaceField(m, "surface")
	if err != nil {
		return Greet{}, err
	}
	agentText, err := textField(m, "agent")
	if err != nil {
		return Greet{}, err
	}
	agent, err := point.Parse(agentText)
	if err != nil {
		return Greet{}, fmt.Errorf("hyperlane: greet agent: %w", err)
	}
	hop, err := surfaceField(m, "hop")
	if err != nil {
		return Greet{}, err
	}
	transport, err := surfaceField(m, "transport")
	if err != nil {
		return Greet{}, err
	}
	return Greet{Surface: surface, Agent: agent, Hop: hop, Transport: transport}, nil
}

func textField(m wave.Map, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", fmt.Errorf("hyperlane: greet missing %q: %w", key, fault.ErrProtocol)
	}
	text, err := wave.ToSubstanceRef[wave.Text](v)
	if err != nil {
		return "", fmt.Errorf("hyperlane: greet %q: %w", key, err)
	}
	return string(text), nil
}

func surfaceField(m wave.Map, key string) (point.Surface, error) {
	text, err := textField(m, key)
	if err != nil {
		return point.Surface{}, err
	}
	s, err := point.ParseSurface(text)
	if err != nil {
		return point.Surface{}, fmt.Errorf("hyperlane: greet %q: %w", key, err)
	}
	return s, nil
}
