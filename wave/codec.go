// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wave

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/utils/constants"
	"github.com/starlane-io/starlane/utils/wrappers"
)

// WireKind tags the frame's payload, letting the hyperlane handshake (§6.1)
// share the same u32-length-prefixed framing as wave delivery.
type WireKind uint8

const (
	WireVersion WireKind = iota
	WireText
	WireWave
)

// WaveKind tags which of the five wave shapes a wave frame holds.
type WaveKind uint8

const (
	WaveKindPing WaveKind = iota
	WaveKindRipple
	WaveKindSignal
	WaveKindPong
	WaveKindEcho
)

// WriteFrame writes a single u32-big-endian-length-prefixed frame: the
// frame's payload is a WireKind tag byte followed by body.
func WriteFrame(w io.Writer, kind WireKind, body []byte) error {
	pack := wrappers.NewPacker(len(body) + 1)
	pack.PackByte(byte(kind))
	pack.PackBytes(body)

	if len(pack.Bytes) > constants.DefaultFrameMax {
		return fmt.Errorf("wave: frame of %d bytes exceeds max %d", len(pack.Bytes), constants.DefaultFrameMax)
	}

	framed := wrappers.NewPacker(4 + len(pack.Bytes))
	framed.PackInt(uint32(len(pack.Bytes)))
	framed.PackBytes(pack.Bytes)
	if _, err := w.Write(framed.Bytes); err != nil {
		return fmt.Errorf("wave: write frame: %w", err)
	}
	return nil
}

// ReadFrame reads a single frame written by WriteFrame.
func ReadFrame(r *bufio.Reader) (WireKind, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, fmt.Errorf("wave: read frame length: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return 0, nil, fmt.Errorf("wave: empty frame")
	}
	if int(length) > constants.DefaultFrameMax {
		return 0, nil, fmt.Errorf("wave: frame of %d bytes exceeds max %d", length, constants.DefaultFrameMax)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("wave: read frame body: %w", err)
	}
	return WireKind(payload[0]), payload[1:], nil
}

// Send encodes directed or reflected onto w as a wave frame.
func Send(w io.Writer, v any) error {
	body, err := Encode(v)
	if err != nil {
		return err
	}
	return WriteFrame(w, WireWave, body)
}

// Encode serializes a *Directed or *Reflected wave into its wire form.
func Encode(v any) ([]byte, error) {
	var b []byte
	switch w := v.(type) {
	case *Directed:
		b = protowire.AppendVarint(b, uint64(directedWaveKind(w.Kind)))
		b = marshalDirected(b, w)
	case *Reflected:
		b = protowire.AppendVarint(b, uint64(reflectedWaveKind(w.Kind)))
		b = marshalReflected(b, w)
	default:
		return nil, fmt.Errorf("wave: cannot encode %T", v)
	}
	return b, nil
}

func directedWaveKind(k DirectedKind) WaveKind {
	switch k {
	case Ping:
		return WaveKindPing
	case Ripple:
		return WaveKindRipple
	default:
		return WaveKindSignal
	}
}

func reflectedWaveKind(k ReflectedKind) WaveKind {
	if k == Pong {
		return WaveKindPong
	}
	return WaveKindEcho
}

// Decode parses a wave frame body produced by Encode, returning either a
// *Directed or *Reflected.
func Decode(b []byte) (any, error) {
	tag, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return nil, fmt.Errorf("wave: malformed wave kind tag: %w", protowire.ParseError(n))
	}
	b = b[n:]
	switch WaveKind(tag) {
	case WaveKindPing, WaveKindRipple, WaveKindSignal:
		d, _, err := unmarshalDirected(b, WaveKind(tag))
		return d, err
	case WaveKindPong, WaveKindEcho:
		r, _, err := unmarshalReflected(b, WaveKind(tag))
		return r, err
	default:
		return nil, fmt.Errorf("wave: unknown wave kind %d", tag)
	}
}

func marshalDirected(b []byte, d *Directed) []byte {
	idBytes := uuidBytes(d.ID)
	b = protowire.AppendBytes(b, idBytes[:])
	b = marshalSurface(b, d.From)
	b = marshalRecipients(b, d.To)
	b = marshalDirectedCore(b, d.Core)
	b = marshalHandling(b, d.Handling)
	b = protowire.AppendVarint(b, uint64(d.Scope))
	b = marshalPoint(b, d.Agent)
	b = protowire.AppendVarint(b, boolToUint(d.Track))
	b = protowire.AppendVarint(b, uint64(len(d.History)))
	for _, p := range d.History {
		b = marshalPoint(b, p)
	}
	b = protowire.AppendVarint(b, uint64(d.Hops))
	b = marshalBounceBacks(b, d.BounceBacks)
	return b
}

func unmarshalDirected(b []byte, kind WaveKind) (*Directed, []byte, error) {
	d := &Directed{}
	switch kind {
	case WaveKindPing:
		d.Kind = Ping
	case WaveKindRipple:
		d.Kind = Ripple
	default:
		d.Kind = Signal
	}

	idBytes, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, nil, fmt.Errorf("wave: malformed directed id: %w", protowire.ParseError(n))
	}
	b = b[n:]
	d.ID = bytesToID(idBytes)

	var err error
	d.From, b, err = unmarshalSurface(b)
	if err != nil {
		return nil, nil, err
	}
	d.To, b, err = unmarshalRecipients(b)
	if err != nil {
		return nil, nil, err
	}
	d.Core, b, err = unmarshalDirectedCore(b)
	if err != nil {
		return nil, nil, err
	}
	d.Handling, b, err = unmarshalHandling(b)
	if err != nil {
		return nil, nil, err
	}
	scope, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return nil, nil, fmt.Errorf("wave: malformed scope: %w", protowire.ParseError(n))
	}
	d.Scope = Scope(scope)
	b = b[n:]

	d.Agent, b, err = unmarshalPoint(b)
	if err != nil {
		return nil, nil, err
	}

	track, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return nil, nil, fmt.Errorf("wave: malformed track flag: %w", protowire.ParseError(n))
	}
	d.Track = track != 0
	b = b[n:]

	count, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return nil, nil, fmt.Errorf("wave: malformed history count: %w", protowire.ParseError(n))
	}
	b = b[n:]
	d.History = make([]point.Point, count)
	for i := range d.History {
		d.History[i], b, err = unmarshalPoint(b)
		if err != nil {
			return nil, nil, err
		}
	}

	hops, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return nil, nil, fmt.Errorf("wave: malformed hops: %w", protowire.ParseError(n))
	}
	d.Hops = int(hops)
	b = b[n:]

	d.BounceBacks, b, err = unmarshalBounceBacks(b)
	if err != nil {
		return nil, nil, err
	}
	return d, b, nil
}

func marshalReflected(b []byte, r *Reflected) []byte {
	idBytes := uuidBytes(r.ID)
	b = protowire.AppendBytes(b, idBytes[:])
	b = marshalSurface(b, r.From)
	respBytes := uuidBytes(r.ResponseTo)
	b = protowire.AppendBytes(b, respBytes[:])
	b = marshalReflectedCore(b, r.Core)
	return b
}

func unmarshalReflected(b []byte, kind WaveKind) (*Reflected, []byte, error) {
	r := &Reflected{}
	if kind == WaveKindPong {
		r.Kind = Pong
	} else {
		r.Kind = Echo
	}

	idBytes, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, nil, fmt.Errorf("wave: malformed reflected id: %w", protowire.ParseError(n))
	}
	b = b[n:]
	r.ID = bytesToID(idBytes)

	var err error
	r.From, b, err = unmarshalSurface(b)
	if err != nil {
		return nil, nil, err
	}

	respBytes, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, nil, fmt.Errorf("wave: malformed response_to: %w", protowire.ParseError(n))
	}
	b = b[n:]
	r.ResponseTo = bytesToID(respBytes)

	r.Core, b, err = unmarshalReflectedCore(b)
	if err != nil {
		return nil, nil, err
	}
	return r, b, nil
}

func marshalDirectedCore(b []byte, c DirectedCore) []byte {
	b = protowire.AppendBytes(b, []byte(c.Method))
	b = protowire.AppendVarint(b, uint64(len(c.Headers)))
	for k, v := range c.Headers {
		b = protowire.AppendBytes(b, []byte(k))
		b = protowire.AppendBytes(b, []byte(v))
	}
	b = marshalSubstance(b, c.Body)
	return b
}

func unmarshalDirectedCore(b []byte) (DirectedCore, []byte, error) {
	var c DirectedCore
	method, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return c, nil, fmt.Errorf("wave: malformed method: %w", protowire.ParseError(n))
	}
	c.Method = string(method)
	b = b[n:]

	count, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return c, nil, fmt.Errorf("wave: malformed headers count: %w", protowire.ParseError(n))
	}
	b = b[n:]
	if count > 0 {
		c.Headers = make(map[string]string, count)
	}
	for i := uint64(0); i < count; i++ {
		k, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return c, nil, fmt.Errorf("wave: malformed header key: %w", protowire.ParseError(n))
		}
		b = b[n:]
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return c, nil, fmt.Errorf("wave: malformed header value: %w", protowire.ParseError(n))
		}
		b = b[n:]
		c.Headers[string(k)] = string(v)
	}

	var err error
	c.Body, b, err = unmarshalSubstance(b)
	return c, b, err
}

func marshalReflectedCore(b []byte, c ReflectedCore) []byte {
	b = protowire.AppendVarint(b, uint64(c.Status))
	b = marshalSubstance(b, c.Body)
	return b
}

func unmarshalReflectedCore(b []byte) (ReflectedCore, []byte, error) {
	var c ReflectedCore
	status, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return c, nil, fmt.Errorf("wave: malformed status: %w", protowire.ParseError(n))
	}
	c.Status = int(status)
	b = b[n:]

	var err error
	c.Body, b, err = unmarshalSubstance(b)
	return c, b, err
}

func marshalHandling(b []byte, h Handling) []byte {
	b = protowire.AppendVarint(b, uint64(h.Kind))
	b = protowire.AppendVarint(b, uint64(h.Priority))
	b = protowire.AppendVarint(b, uint64(h.Retries))
	b = protowire.AppendVarint(b, uint64(h.Wait))
	return b
}

func unmarshalHandling(b []byte) (Handling, []byte, error) {
	var h Handling
	kind, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return h, nil, fmt.Errorf("wave: malformed handling kind: %w", protowire.ParseError(n))
	}
	h.Kind = HandlingKind(kind)
	b = b[n:]

	priority, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return h, nil, fmt.Errorf("wave: malformed priority: %w", protowire.ParseError(n))
	}
	h.Priority = Priority(priority)
	b = b[n:]

	retries, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return h, nil, fmt.Errorf("wave: malformed retries: %w", protowire.ParseError(n))
	}
	h.Retries = int(retries)
	b = b[n:]

	wait, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return h, nil, fmt.Errorf("wave: malformed wait: %w", protowire.ParseError(n))
	}
	h.Wait = timeDuration(wait)
	b = b[n:]
	return h, b, nil
}

func marshalRecipients(b []byte, r Recipients) []byte {
	b = protowire.AppendVarint(b, uint64(r.Kind))
	b = protowire.AppendVarint(b, uint64(len(r.Surfaces)))
	for _, s := range r.Surfaces {
		b = marshalSurface(b, s)
	}
	return b
}

func unmarshalRecipients(b []byte) (Recipients, []byte, error) {
	var r Recipients
	kind, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return r, nil, fmt.Errorf("wave: malformed recipients kind: %w", protowire.ParseError(n))
	}
	r.Kind = RecipientsKind(kind)
	b = b[n:]

	count, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return r, nil, fmt.Errorf("wave: malformed recipients count: %w", protowire.ParseError(n))
	}
	b = b[n:]
	r.Surfaces = make([]point.Surface, count)
	var err error
	for i := range r.Surfaces {
		r.Surfaces[i], b, err = unmarshalSurface(b)
		if err != nil {
			return r, nil, err
		}
	}
	return r, b, nil
}

func marshalBounceBacks(b []byte, bb BounceBacks) []byte {
	b = protowire.AppendVarint(b, uint64(bb.Kind))
	b = protowire.AppendVarint(b, uint64(bb.N))
	return b
}

func unmarshalBounceBacks(b []byte) (BounceBacks, []byte, error) {
	var bb BounceBacks
	kind, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return bb, nil, fmt.Errorf("wave: malformed bounce_backs kind: %w", protowire.ParseError(n))
	}
	bb.Kind = BounceBacksKind(kind)
	b = b[n:]

	count, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return bb, nil, fmt.Errorf("wave: malformed bounce_backs count: %w", protowire.ParseError(n))
	}
	bb.N = int(count)
	b = b[n:]
	return bb, b, nil
}

func marshalPoint(b []byte, p point.Point) []byte {
	b = protowire.AppendVarint(b, uint64(p.Route))
	b = protowire.AppendVarint(b, uint64(len(p.Segments)))
	for _, seg := range p.Segments {
		b = protowire.AppendVarint(b, uint64(seg.Type))
		b = protowire.AppendBytes(b, []byte(seg.Value))
	}
	return b
}

func unmarshalPoint(b []byte) (point.Point, []byte, error) {
	route, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return point.Point{}, nil, fmt.Errorf("wave: malformed route: %w", protowire.ParseError(n))
	}
	b = b[n:]

	count, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return point.Point{}, nil, fmt.Errorf("wave: malformed segment count: %w", protowire.ParseError(n))
	}
	b = b[n:]

	p := point.New(point.Route(route))
	for i := uint64(0); i < count; i++ {
		segType, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return point.Point{}, nil, fmt.Errorf("wave: malformed segment type: %w", protowire.ParseError(n))
		}
		b = b[n:]
		value, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return point.Point{}, nil, fmt.Errorf("wave: malformed segment value: %w", protowire.ParseError(n))
		}
		b = b[n:]
		p = p.Push(point.Segment{Type: point.SegmentType(segType), Value: string(value)})
	}
	return p, b, nil
}

func marshalSurface(b []byte, s point.Surface) []byte {
	b = marshalPoint(b, s.Point)
	b = protowire.AppendVarint(b, uint64(s.Layer))
	b = protowire.AppendBytes(b, []byte(s.Topic))
	return b
}

func unmarshalSurface(b []byte) (point.Surface, []byte, error) {
	p, b, err := unmarshalPoint(b)
	if err != nil {
		return point.Surface{}, nil, err
	}
	layer, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return point.Surface{}, nil, fmt.Errorf("wave: malformed layer: %w", protowire.ParseError(n))
	}
	b = b[n:]
	topic, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return point.Surface{}, nil, fmt.Errorf("wave: malformed topic: %w", protowire.ParseError(n))
	}
	b = b[n:]
	return point.Surface{Point: p, Layer: point.Layer(layer), Topic: string(topic)}, b, nil
}

func uuidBytes(id ID) [16]byte {
	return id
}

func bytesToID(b []byte) ID {
	var id ID
	copy(id[:], b)
	return id
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func timeDuration(v uint64) time.Duration {
	return time.Duration(v)
}
