// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package interchange implements the many-hyperlane bus at a single star:
// a set of hyperways keyed by far surface, and the gate selection of
// which interchange a given knock's InterchangeKind should join (spec
// §4.7).
package interchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/log"

	"github.com/starlane-io/starlane/fault"
	"github.com/starlane-io/starlane/hyperlane"
	"github.com/starlane-io/starlane/point"
)

// KindTag discriminates the three ways an interchange can be selected.
type KindTag uint8

const (
	// KindStarTag selects the interchange wired for a specific star.
	KindStarTag KindTag = iota
	// KindControlTag selects a control interchange matching a name pattern.
	KindControlTag
	// KindDefaultControlTag selects the fallback control interchange.
	KindDefaultControlTag
)

// Kind identifies which interchange a Gate should route a Knock to.
type Kind struct {
	Tag     KindTag
	Star    point.StarKey
	Pattern string
}

// StarKind selects the interchange wired for star.
func StarKind(star point.StarKey) Kind { return Kind{Tag: KindStarTag, Star: star} }

// ControlKind selects the control interchange matching pattern.
func ControlKind(pattern string) Kind { return Kind{Tag: KindControlTag, Pattern: pattern} }

// DefaultControlKind selects the fallback control interchange.
func DefaultControlKind() Kind { return Kind{Tag: KindDefaultControlTag} }

// String renders Kind as the wire identity carried in wave.Knock's
// InterchangeKind field and used as a Gate binding key.
func (k Kind) String() string {
	switch k.Tag {
	case KindStarTag:
		return fmt.Sprintf("star:%s", k.Star)
	case KindControlTag:
		return fmt.Sprintf("control:%s", k.Pattern)
	default:
		return "default-control"
	}
}

// Hyperway is a bi-directional wave pipe attached to an interchange: an
// endpoint paired with the far surface it delivers to.
type Hyperway struct {
	Far      point.Surface
	Endpoint hyperlane.Endpoint
}

// Interchange is a many-hyperlane bus at a single star.
type Interchange struct {
	kind Kind
	log  log.Logger

	mu        sync.RWMutex
	hyperways []Hyperway
	singular  map[string]hyperlane.Endpoint
}

// New builds an empty Interchange of the given kind.
func New(kind Kind, logger log.Logger) *Interchange {
	return &Interchange{
		kind:     kind,
		log:      logger,
		singular: make(map[string]hyperlane.Endpoint),
	}
}

// Kind reports which Kind this interchange was registered under.
func (ic *Interchange) Kind() Kind { return ic.kind }

// Add attaches hw to the interchange's general hyperway set.
func (ic *Interchange) Add(hw Hyperway) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.hyperways = append(ic.hyperways, hw)
}

// SingularTo designates ep as the sole consumer hyperway for surface,
// used for control channels that must not fan out.
func (ic *Interchange) SingularTo(surface point.Surface, ep hyperlane.Endpoint) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.singular[surface.Point.String()] = ep
}

// Route delivers w to the hyperway whose far surface owns to, preferring
// a singular binding over the general hyperway set.
func (ic *Interchange) Route(ctx context.Context, w any, to point.Surface) error {
	ic.mu.RLock()
	if ep, ok := ic.singular[to.Point.String()]; ok {
		ic.mu.RUnlock()
		return ep.Send(ctx, w)
	}
	for _, hw := range ic.hyperways {
		if hw.Far.Point.Equal(to.Point) {
			ep := hw.Endpoint
			ic.mu.RUnlock()
			return ep.Send(ctx, w)
		}
	}
	ic.mu.RUnlock()
	return fmt.Errorf("interchange: no hyperway bound for %s: %w", to.Point, fault.ErrAddressing)
}

// Remove detaches any hyperway or singular binding whose endpoint matches
// ep, called when a hyperlane terminates.
func (ic *Interchange) Remove(ep hyperlane.Endpoint) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	kept := ic.hyperways[:0]
	for _, hw := range ic.hyperways {
		if hw.Endpoint != ep {
			kept = append(kept, hw)
		}
	}
	ic.hyperways = kept
	for k, v := range ic.singular {
		if v == ep {
			delete(ic.singular, k)
		}
	}
}

// Registry is the set of interchanges a Machine or gate can select among,
// keyed by Kind.
type Registry struct {
	mu           sync.RWMutex
	interchanges map[string]*Interchange
}

// NewRegistry builds an empty interchange Registry.
func NewRegistry() *Registry {
	return &Registry{interchanges: make(map[string]*Interchange)}
}

// Install registers ic under its own Kind.
func (r *Registry) Install(ic *Interchange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interchanges[ic.kind.String()] = ic
}

// Select returns the interchange registered for kind, if any.
func (r *Registry) Select(kind Kind) (*Interchange, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ic, ok := r.interchanges[kind.String()]
	return ic, ok
}
