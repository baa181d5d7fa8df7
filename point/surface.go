// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package point

import (
	"fmt"
	"strings"
)

// Layer is one stage of a particle's traversal pipeline.
type Layer uint8

const (
	// Gravity is the boundary with the star's routing plane.
	Gravity Layer = iota
	// Field enforces policy and access control.
	Field
	// Shell holds per-particle scoped state (sessions, correlation, topics).
	Shell
	// Core is the particle's handler.
	Core
)

func (l Layer) String() string {
	switch l {
	case Gravity:
		return "Gravity"
	case Field:
		return "Field"
	case Shell:
		return "Shell"
	case Core:
		return "Core"
	default:
		return "Unknown"
	}
}

// Surface is the unit of wave addressing: a Point, a Layer within that
// particle's traversal pipeline, and an optional Topic distinguishing
// independent conversations at the Shell layer (e.g. separate
// subscriptions).
type Surface struct {
	Point Point
	Layer Layer
	Topic string
}

// WithTopic returns a copy of s addressed to the given topic.
func (s Surface) WithTopic(topic string) Surface {
	return Surface{Point: s.Point, Layer: s.Layer, Topic: topic}
}

// WithLayer returns a copy of s addressed at a different layer of the same
// particle.
func (s Surface) WithLayer(layer Layer) Surface {
	return Surface{Point: s.Point, Layer: layer, Topic: s.Topic}
}

// Equal reports structural equality.
func (s Surface) Equal(other Surface) bool {
	return s.Point.Equal(other.Point) && s.Layer == other.Layer && s.Topic == other.Topic
}

func (s Surface) String() string {
	if s.Topic == "" {
		return fmt.Sprintf("%s@%s", s.Point, s.Layer)
	}
	return fmt.Sprintf("%s@%s:%s", s.Point, s.Layer, s.Topic)
}

// ParseSurface parses the "point@layer" or "point@layer:topic" form
// produced by String.
func ParseSurface(s string) (Surface, error) {
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return Surface{}, fmt.Errorf("point: malformed surface %q: missing '@'", s)
	}
	p, err := Parse(s[:at])
	if err != nil {
		return Surface{}, fmt.Errorf("point: malformed surface %q: %w", s, err)
	}
	rest := s[at+1:]
	layerPart, topic := rest, ""
	if i := strings.Index(rest, ":"); i >= 0 {
		layerPart, topic = rest[:i], rest[i+1:]
	}
	layer, err := parseLayer(layerPart)
	if err != nil {
		return Surface{}, fmt.Errorf("point: malformed surface %q: %w", s, err)
	}
	return Surface{Point: p, Layer: layer, Topic: topic}, nil
}

func parseLayer(s string) (Layer, error) {
	switch s {
	case "Gravity":
		return Gravity, nil
	case "Field":
		return Field, nil
	case "Shell":
		return Shell, nil
	case "Core":
		return Core, nil
	default:
		return 0, fmt.Errorf("unknown layer %q", s)
	}
}
