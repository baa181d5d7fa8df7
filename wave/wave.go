// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wave

import (
	"time"

	"github.com/starlane-io/starlane/point"
)

// DirectedKind distinguishes the three directed wave shapes.
type DirectedKind uint8

const (
	// Ping addresses a single surface and expects at most one reflection.
	Ping DirectedKind = iota
	// Ripple addresses many surfaces (Recipients) and may collect several
	// reflections (Echoes).
	Ripple
	// Signal never reflects.
	Signal
)

func (k DirectedKind) String() string {
	switch k {
	case Ping:
		return "Ping"
	case Ripple:
		return "Ripple"
	case Signal:
		return "Signal"
	default:
		return "Unknown"
	}
}

// ReflectedKind distinguishes the two reflected wave shapes.
type ReflectedKind uint8

const (
	// Pong answers a Ping.
	Pong ReflectedKind = iota
	// Echo answers one recipient of a Ripple.
	Echo
)

func (k ReflectedKind) String() string {
	switch k {
	case Pong:
		return "Pong"
	case Echo:
		return "Echo"
	default:
		return "Unknown"
	}
}

// BounceBacksKind selects how many reflections a directed wave expects.
type BounceBacksKind uint8

const (
	// BBNone expects no reflection; the exchanger never installs a pending
	// entry for it.
	BBNone BounceBacksKind = iota
	// BBSingle expects exactly one reflection.
	BBSingle
	// BBCount expects exactly N reflections.
	BBCount
	// BBTimeout collects whatever arrives until the deadline, then drains.
	BBTimeout
)

// BounceBacks governs the exchanger's pending-entry lifecycle for a
// directed wave. See spec invariant 3.
type BounceBacks struct {
	Kind BounceBacksKind
	N    int
}

// NoBounce expects no reflection.
func NoBounce() BounceBacks { return BounceBacks{Kind: BBNone} }

// SingleBounce expects exactly one reflection.
func SingleBounce() BounceBacks { return BounceBacks{Kind: BBSingle, N: 1} }

// CountBounce expects exactly n reflections.
func CountBounce(n int) BounceBacks { return BounceBacks{Kind: BBCount, N: n} }

// TimeoutBounce collects reflections until the deadline.
func TimeoutBounce() BounceBacks { return BounceBacks{Kind: BBTimeout} }

// HandlingKind distinguishes immediate, best-effort delivery from durable
// delivery that the fabric should retry/persist across transient faults.
type HandlingKind uint8

const (
	Immediate HandlingKind = iota
	Durable
)

// Priority orders a directed wave for admission and backpressure
// decisions. HyperPriority waves bypass saturation drops (spec §5).
type Priority uint8

const (
	Low Priority = iota
	Medium
	High
	HyperPriority
)

// Handling is a directed wave's delivery contract.
type Handling struct {
	Kind     HandlingKind
	Priority Priority
	Retries  int
	Wait     time.Duration
}

// Scope constrains how far a directed wave's effects may propagate.
// ScopeFull permits normal cross-star routing; ScopeNone confines the wave
// to the originating star (used for introspection/debug waves that must
// never leave the process).
type Scope uint8

const (
	ScopeFull Scope = iota
	ScopeNone
)

// RecipientsKind distinguishes how a directed wave's "to" field addresses
// one or more surfaces.
type RecipientsKind uint8

const (
	RecipientsSingle RecipientsKind = iota
	RecipientsMulti
	RecipientsStars
)

// Recipients is the "to" field of a directed wave.
type Recipients struct {
	Kind     RecipientsKind
	Surfaces []point.Surface
}

// To addresses a single surface.
func To(s point.Surface) Recipients {
	return Recipients{Kind: RecipientsSingle, Surfaces: []point.Surface{s}}
}

// ToMany addresses several surfaces with one ripple.
func ToMany(surfaces ...point.Surface) Recipients {
	return Recipients{Kind: RecipientsMulti, Surfaces: surfaces}
}

// ToStars addresses every star in the fabric (used by search ripples).
func ToStars() Recipients {
	return Recipients{Kind: RecipientsStars}
}

// DirectedCore is a directed wave's payload: a method name, headers, and a
// body substance.
type DirectedCore struct {
	Method  string
	Headers map[string]string
	Body    Substance
}

// ReflectedCore is a reflected wave's payload: an HTTP-style status and a
// body substance.
type ReflectedCore struct {
	Status int
	Body   Substance
}

// Directed is a Ping, Ripple, or Signal wave.
type Directed struct {
	ID          ID
	Kind        DirectedKind
	From        point.Surface
	To          Recipients
	Core        DirectedCore
	Handling    Handling
	Scope       Scope
	Agent       point.Point
	Track       bool
	History     []point.Point
	Hops        int
	BounceBacks BounceBacks
}

// NewPing builds a Ping expecting a single reflection by default.
func NewPing(from, to point.Surface, core DirectedCore) *Directed {
	return &Directed{
		ID:          NewID(),
		Kind:        Ping,
		From:        from,
		To:          To(to),
		Core:        core,
		BounceBacks: SingleBounce(),
	}
}

// NewRipple builds a Ripple to the given recipients.
func NewRipple(from point.Surface, to Recipients, core DirectedCore, bounceBacks BounceBacks) *Directed {
	return &Directed{
		ID:          NewID(),
		Kind:        Ripple,
		From:        from,
		To:          to,
		Core:        core,
		BounceBacks: bounceBacks,
	}
}

// NewSignal builds a Signal, which spec invariant 5 forbids from ever
// reflecting.
func NewSignal(from, to point.Surface, core DirectedCore) *Directed {
	return &Directed{
		ID:          NewID(),
		Kind:        Signal,
		From:        from,
		To:          To(to),
		Core:        core,
		BounceBacks: NoBounce(),
	}
}

// Visited reports whether star already appears in the ripple's history.
func (d *Directed) Visited(star point.Point) bool {
	for _, p := range d.History {
		if p.Equal(star) {
			return true
		}
	}
	return false
}

// WithHop returns a copy of d with star appended to history and Hops
// incremented, as a forwarding star does to a ripple before re-emitting it.
// The copy shares no backing array with d's History, so neither mutation
// is visible to the other.
func (d *Directed) WithHop(star point.Point) *Directed {
	next := *d
	history := make([]point.Point, len(d.History)+1)
	copy(history, d.History)
	history[len(d.History)] = star
	next.History = history
	next.Hops = d.Hops + 1
	return &next
}

// Reflected is a Pong or Echo wave.
type Reflected struct {
	ID         ID
	Kind       ReflectedKind
	From       point.Surface
	ResponseTo ID
	Core       ReflectedCore
}

// NewPong builds a Pong answering directed.
func NewPong(from point.Surface, directed *Directed, core ReflectedCore) *Reflected {
	return &Reflected{
		ID:         NewID(),
		Kind:       Pong,
		From:       from,
		ResponseTo: directed.ID,
		Core:       core,
	}
}

// NewEcho builds an Echo answering one recipient of a ripple.
func NewEcho(from point.Surface, directed *Directed, core ReflectedCore) *Reflected {
	return &Reflected{
		ID:         NewID(),
		Kind:       Echo,
		From:       from,
		ResponseTo: directed.ID,
		Core:       core,
	}
}

// StatusOK builds a 200 reflection with the given body.
func StatusOK(body Substance) ReflectedCore {
	return ReflectedCore{Status: 200, Body: body}
}

// StatusError builds an error reflection: status (e.g. 403/404/408/500)
// carrying an Errors substance.
func StatusError(status int, msg string) ReflectedCore {
	return ReflectedCore{Status: status, Body: Errors{msg}}
}
