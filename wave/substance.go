// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wave

import (
	"fmt"

	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/utils/formatting"
)

// Substance is the tagged union every wave body carries. Concrete types in
// this file are the closed set of variants; SubstanceKind identifies which
// one a given wire-encoded Substance holds.
type Substance interface {
	substanceKind() SubstanceKind
}

// SubstanceKind discriminates the concrete Substance variant, and is the
// tag byte written by the wire codec.
type SubstanceKind uint8

const (
	KindEmpty SubstanceKind = iota
	KindBin
	KindText
	KindErrors
	KindMap
	KindList
	KindStub
	KindDetails
	KindHyper
	KindKnock
)

func (k SubstanceKind) String() string {
	switch k {
	case KindEmpty:
		return "Empty"
	case KindBin:
		return "Bin"
	case KindText:
		return "Text"
	case KindErrors:
		return "Errors"
	case KindMap:
		return "Map"
	case KindList:
		return "List"
	case KindStub:
		return "Stub"
	case KindDetails:
		return "Details"
	case KindHyper:
		return "Hyper"
	case KindKnock:
		return "Knock"
	default:
		return "Unknown"
	}
}

// Empty carries no payload.
type Empty struct{}

func (Empty) substanceKind() SubstanceKind { return KindEmpty }

// Bin carries an opaque byte payload.
type Bin []byte

func (Bin) substanceKind() SubstanceKind { return KindBin }

// String renders b as "0x"-prefixed hex, the form a log field or error
// message should use rather than printing the raw bytes.
func (b Bin) String() string {
	s, err := formatting.Encode(formatting.HexC, b)
	if err != nil {
		return ""
	}
	return s
}

// Text carries a UTF-8 string payload.
type Text string

func (Text) substanceKind() SubstanceKind { return KindText }

// Errors carries one or more error messages, used for reflected error
// substances.
type Errors []string

func (Errors) substanceKind() SubstanceKind { return KindErrors }

// Map carries a string-keyed collection of nested substances.
type Map map[string]Substance

func (Map) substanceKind() SubstanceKind { return KindMap }

// List carries an ordered collection of nested substances.
type List []Substance

func (List) substanceKind() SubstanceKind { return KindList }

// Stub is a minimal particle reference: identity without full record
// details.
type Stub struct {
	Point point.Point
	Kind  point.Kind
}

func (Stub) substanceKind() SubstanceKind { return KindStub }

// Details is a particle's full registry record payload as carried on the
// wire (see registry.Record for the richer in-process type).
type Details struct {
	Stub       Stub
	Status     string
	Properties map[string]string
}

func (Details) substanceKind() SubstanceKind { return KindDetails }

// HyperSubstance is the body of a Hop or Transport envelope: the
// destination star and the nested wave bytes (already wire-encoded, so
// forwarding stars can re-wrap without decoding the inner wave).
type HyperSubstance struct {
	// Star is the ultimate destination (Transport) or next hop (Hop).
	Star point.StarKey
	// Inner is the wire-encoded wave this envelope carries.
	Inner []byte
}

func (HyperSubstance) substanceKind() SubstanceKind { return KindHyper }

// Knock is the handshake substance a connecting client presents to an
// interchange's gate. Nonce, when set, identifies this particular knock
// attempt so an accepting listener can reject an immediate replay of the
// same bytes; a caller that leaves it empty gets one generated for it
// (machine.Machine.Knock does this for every dial it issues).
type Knock struct {
	InterchangeKind string
	Auth            Substance
	Remote          *point.Surface
	Nonce           string
}

func (Knock) substanceKind() SubstanceKind { return KindKnock }

// ErrSubstanceType is returned by ToSubstanceRef when the concrete type
// does not match the requested one.
type ErrSubstanceType struct {
	Want SubstanceKind
	Got  SubstanceKind
}

func (e *ErrSubstanceType) Error() string {
	return fmt.Sprintf("wave: expected substance %s, got %s", e.Want, e.Got)
}

// ToSubstanceRef projects s to the concrete type T, or returns
// *ErrSubstanceType if s does not hold a T.
func ToSubstanceRef[T Substance](s Substance) (T, error) {
	if v, ok := s.(T); ok {
		return v, nil
	}
	var zero T
	return zero, &ErrSubstanceType{Want: zero.substanceKind(), Got: s.substanceKind()}
}
