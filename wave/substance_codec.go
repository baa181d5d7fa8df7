// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wave

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/starlane-io/starlane/point"
)

func marshalSubstance(b []byte, s Substance) []byte {
	if s == nil {
		s = Empty{}
	}
	b = protowire.AppendVarint(b, uint64(s.substanceKind()))
	switch v := s.(type) {
	case Empty:
	case Bin:
		b = protowire.AppendBytes(b, v)
	case Text:
		b = protowire.AppendBytes(b, []byte(v))
	case Errors:
		b = protowire.AppendVarint(b, uint64(len(v)))
		for _, e := range v {
			b = protowire.AppendBytes(b, []byte(e))
		}
	case Map:
		b = protowire.AppendVarint(b, uint64(len(v)))
		for k, nested := range v {
			b = protowire.AppendBytes(b, []byte(k))
			b = marshalSubstance(b, nested)
		}
	case List:
		b = protowire.AppendVarint(b, uint64(len(v)))
		for _, nested := range v {
			b = marshalSubstance(b, nested)
		}
	case Stub:
		b = marshalStub(b, v)
	case Details:
		b = marshalStub(b, v.Stub)
		b = protowire.AppendBytes(b, []byte(v.Status))
		b = protowire.AppendVarint(b, uint64(len(v.Properties)))
		for k, val := range v.Properties {
			b = protowire.AppendBytes(b, []byte(k))
			b = protowire.AppendBytes(b, []byte(val))
		}
	case HyperSubstance:
		b = marshalStarKey(b, v.Star)
		b = protowire.AppendBytes(b, v.Inner)
	case Knock:
		b = protowire.AppendBytes(b, []byte(v.InterchangeKind))
		b = marshalSubstance(b, v.Auth)
		if v.Remote == nil {
			b = protowire.AppendVarint(b, 0)
		} else {
			b = protowire.AppendVarint(b, 1)
			b = marshalSurface(b, *v.Remote)
		}
		b = protowire.AppendBytes(b, []byte(v.Nonce))
	default:
		panic(fmt.Sprintf("wave: unencodable substance type %T", s))
	}
	return b
}

func unmarshalSubstance(b []byte) (Substance, []byte, error) {
	kindVal, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return nil, nil, fmt.Errorf("wave: malformed substance kind: %w", protowire.ParseError(n))
	}
	b = b[n:]

	switch SubstanceKind(kindVal) {
	case KindEmpty:
		return Empty{}, b, nil
	case KindBin:
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, nil, fmt.Errorf("wave: malformed bin substance: %w", protowire.ParseError(n))
		}
		out := make(Bin, len(v))
		copy(out, v)
		return out, b[n:], nil
	case KindText:
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, nil, fmt.Errorf("wave: malformed text substance: %w", protowire.ParseError(n))
		}
		return Text(v), b[n:], nil
	case KindErrors:
		count, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, nil, fmt.Errorf("wave: malformed errors count: %w", protowire.ParseError(n))
		}
		b = b[n:]
		errs := make(Errors, count)
		for i := range errs {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, nil, fmt.Errorf("wave: malformed error message: %w", protowire.ParseError(n))
			}
			errs[i] = string(v)
			b = b[n:]
		}
		return errs, b, nil
	case KindMap:
		count, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, nil, fmt.Errorf("wave: malformed map count: %w", protowire.ParseError(n))
		}
		b = b[n:]
		m := make(Map, count)
		for i := uint64(0); i < count; i++ {
			k, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, nil, fmt.Errorf("wave: malformed map key: %w", protowire.ParseError(n))
			}
			b = b[n:]
			var nested Substance
			var err error
			nested, b, err = unmarshalSubstance(b)
			if err != nil {
				return nil, nil, err
			}
			m[string(k)] = nested
		}
		return m, b, nil
	case KindList:
		count, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, nil, fmt.Errorf("wave: malformed list count: %w", protowire.ParseError(n))
		}
		b = b[n:]
		list := make(List, count)
		var err error
		for i := range list {
			list[i], b, err = unmarshalSubstance(b)
			if err != nil {
				return nil, nil, err
			}
		}
		return list, b, nil
	case KindStub:
		stub, rest, err := unmarshalStub(b)
		return stub, rest, err
	case KindDetails:
		stub, rest, err := unmarshalStub(b)
		if err != nil {
			return nil, nil, err
		}
		b = rest
		status, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, nil, fmt.Errorf("wave: malformed details status: %w", protowire.ParseError(n))
		}
		b = b[n:]
		count, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, nil, fmt.Errorf("wave: malformed details properties count: %w", protowire.ParseError(n))
		}
		b = b[n:]
		var props map[string]string
		if count > 0 {
			props = make(map[string]string, count)
		}
		for i := uint64(0); i < count; i++ {
			k, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, nil, fmt.Errorf("wave: malformed details property key: %w", protowire.ParseError(n))
			}
			b = b[n:]
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, nil, fmt.Errorf("wave: malformed details property value: %w", protowire.ParseError(n))
			}
			b = b[n:]
			props[string(k)] = string(v)
		}
		return Details{Stub: stub, Status: string(status), Properties: props}, b, nil
	case KindHyper:
		star, rest, err := unmarshalStarKey(b)
		if err != nil {
			return nil, nil, err
		}
		b = rest
		inner, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, nil, fmt.Errorf("wave: malformed hyper inner: %w", protowire.ParseError(n))
		}
		innerCopy := make([]byte, len(inner))
		copy(innerCopy, inner)
		return HyperSubstance{Star: star, Inner: innerCopy}, b[n:], nil
	case KindKnock:
		ik, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, nil, fmt.Errorf("wave: malformed knock interchange kind: %w", protowire.ParseError(n))
		}
		b = b[n:]
		auth, rest, err := unmarshalSubstance(b)
		if err != nil {
			return nil, nil, err
		}
		b = rest
		has, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, nil, fmt.Errorf("wave: malformed knock remote flag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		var remote *point.Surface
		if has != 0 {
			var s point.Surface
			s, b, err = unmarshalSurface(b)
			if err != nil {
				return nil, nil, err
			}
			remote = &s
		}
		nonce, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, nil, fmt.Errorf("wave: malformed knock nonce: %w", protowire.ParseError(n))
		}
		b = b[n:]
		return Knock{InterchangeKind: string(ik), Auth: auth, Remote: remote, Nonce: string(nonce)}, b, nil
	default:
		return nil, nil, fmt.Errorf("wave: unknown substance kind %d", kindVal)
	}
}

func marshalStub(b []byte, s Stub) []byte {
	b = marshalPoint(b, s.Point)
	b = marshalKind(b, s.Kind)
	return b
}

func unmarshalStub(b []byte) (Stub, []byte, error) {
	p, b, err := unmarshalPoint(b)
	if err != nil {
		return Stub{}, nil, err
	}
	k, b, err := unmarshalKind(b)
	if err != nil {
		return Stub{}, nil, err
	}
	return Stub{Point: p, Kind: k}, b, nil
}

func marshalKind(b []byte, k point.Kind) []byte {
	b = protowire.AppendVarint(b, uint64(k.Base))
	b = protowire.AppendBytes(b, []byte(k.Sub))
	if k.Specific == nil {
		b = protowire.AppendVarint(b, 0)
	} else {
		b = protowire.AppendVarint(b, 1)
		b = protowire.AppendBytes(b, []byte(k.Specific.Provider))
		b = protowire.AppendBytes(b, []byte(k.Specific.Vendor))
		b = protowire.AppendBytes(b, []byte(k.Specific.Product))
		b = protowire.AppendBytes(b, []byte(k.Specific.Variant))
		b = protowire.AppendBytes(b, []byte(k.Specific.Version))
	}
	return b
}

func unmarshalKind(b []byte) (point.Kind, []byte, error) {
	base, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return point.Kind{}, nil, fmt.Errorf("wave: malformed kind base: %w", protowire.ParseError(n))
	}
	b = b[n:]
	sub, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return point.Kind{}, nil, fmt.Errorf("wave: malformed kind sub: %w", protowire.ParseError(n))
	}
	b = b[n:]
	has, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return point.Kind{}, nil, fmt.Errorf("wave: malformed kind specific flag: %w", protowire.ParseError(n))
	}
	b = b[n:]
	k := point.Kind{Base: point.Base(base), Sub: string(sub)}
	if has != 0 {
		specific := &point.Specific{}
		fields := []*string{&specific.Provider, &specific.Vendor, &specific.Product, &specific.Variant, &specific.Version}
		for _, f := range fields {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return point.Kind{}, nil, fmt.Errorf("wave: malformed kind specific field: %w", protowire.ParseError(n))
			}
			*f = string(v)
			b = b[n:]
		}
		k.Specific = specific
	}
	return k, b, nil
}

func marshalStarKey(b []byte, k point.StarKey) []byte {
	b = protowire.AppendVarint(b, uint64(k.Constellation))
	b = protowire.AppendBytes(b, []byte(k.Handle))
	b = protowire.AppendVarint(b, uint64(k.Index))
	return b
}

func unmarshalStarKey(b []byte) (point.StarKey, []byte, error) {
	constellation, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return point.StarKey{}, nil, fmt.Errorf("wave: malformed star constellation: %w", protowire.ParseError(n))
	}
	b = b[n:]
	handle, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return point.StarKey{}, nil, fmt.Errorf("wave: malformed star handle: %w", protowire.ParseError(n))
	}
	b = b[n:]
	index, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return point.StarKey{}, nil, fmt.Errorf("wave: malformed star index: %w", protowire.ParseError(n))
	}
	b = b[n:]
	return point.StarKey{Constellation: uint32(constellation), Handle: string(handle), Index: uint16(index)}, b, nil
}
