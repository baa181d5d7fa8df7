// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package point implements the fabric's hierarchical addressing scheme:
// Point (a path under a Route), Kind (a particle's type), Surface (an
// addressable Point+Layer), and StarKey (a star's identity).
package point

import (
	"errors"
	"fmt"
	"strings"
)

// Route distinguishes where a Point's segments are rooted.
type Route uint8

const (
	// This addresses the local star's own particle tree.
	This Route = iota
	// Remote addresses a particle tree owned by a specific star.
	Remote
	// Domain addresses a particle tree under a registered domain name.
	Domain
	// Star addresses a star itself rather than a particle it hosts.
	Star
)

func (r Route) String() string {
	switch r {
	case This:
		return "this"
	case Remote:
		return "remote"
	case Domain:
		return "domain"
	case Star:
		return "star"
	default:
		return "unknown"
	}
}

// SegmentType classifies a single path segment of a Point.
type SegmentType uint8

const (
	// Space is the root namespace segment (e.g. a constellation name).
	Space SegmentType = iota
	// BaseSegment names a particle directly.
	BaseSegment
	// FilesystemRoot anchors a filesystem-shaped subtree.
	FilesystemRoot
	// File names a leaf file-shaped particle.
	File
	// Dir names a directory-shaped particle.
	Dir
	// Pop is a ".." style upward traversal marker.
	Pop
	// Working is a "." style current-location marker.
	Working
	// Version pins a particle to a specific version segment.
	Version
)

func (t SegmentType) String() string {
	switch t {
	case Space:
		return "space"
	case BaseSegment:
		return "base"
	case FilesystemRoot:
		return "fs-root"
	case File:
		return "file"
	case Dir:
		return "dir"
	case Pop:
		return "pop"
	case Working:
		return "working"
	case Version:
		return "version"
	default:
		return "unknown"
	}
}

// Segment is one element of a Point's path.
type Segment struct {
	Type  SegmentType
	Value string
}

func (s Segment) String() string {
	switch s.Type {
	case FilesystemRoot:
		return ":/"
	case Dir:
		return s.Value + "/"
	case Pop:
		return ".."
	case Working:
		return "."
	default:
		return s.Value
	}
}

// ErrEmptyPoint is returned when an operation requires at least one segment.
var ErrEmptyPoint = errors.New("point: has no segments")

// Point is a hierarchical address: a Route plus an ordered sequence of
// Segments. Two Points compare structurally — equal Route and equal
// Segments in the same order.
type Point struct {
	Route    Route
	Segments []Segment
}

// New returns a Point rooted at route with no segments.
func New(route Route) Point {
	return Point{Route: route}
}

// Push returns a new Point with segment appended. The receiver is left
// unmodified.
func (p Point) Push(segment Segment) Point {
	next := make([]Segment, len(p.Segments)+1)
	copy(next, p.Segments)
	next[len(p.Segments)] = segment
	return Point{Route: p.Route, Segments: next}
}

// Parent returns the Point with its last segment removed. The second
// return value is false if p has no segments.
func (p Point) Parent() (Point, bool) {
	if len(p.Segments) == 0 {
		return Point{}, false
	}
	return Point{Route: p.Route, Segments: p.Segments[:len(p.Segments)-1]}, true
}

// Truncate removes segments from the tail until (and including) the first
// segment of the given type, scanning from the end. It returns false if no
// segment of that type is present.
func (p Point) Truncate(t SegmentType) (Point, bool) {
	for i := len(p.Segments) - 1; i >= 0; i-- {
		if p.Segments[i].Type == t {
			return Point{Route: p.Route, Segments: p.Segments[:i]}, true
		}
	}
	return Point{}, false
}

// LastSegment returns the final segment of p, or false if p is empty.
func (p Point) LastSegment() (Segment, bool) {
	if len(p.Segments) == 0 {
		return Segment{}, false
	}
	return p.Segments[len(p.Segments)-1], true
}

// IsParentOf reports whether p is a strict ancestor of other: same route,
// and other's segments begin with all of p's segments plus at least one
// more.
func (p Point) IsParentOf(other Point) bool {
	if p.Route != other.Route || len(other.Segments) <= len(p.Segments) {
		return false
	}
	for i, seg := range p.Segments {
		if other.Segments[i] != seg {
			return false
		}
	}
	return true
}

// Equal reports structural equality.
func (p Point) Equal(other Point) bool {
	if p.Route != other.Route || len(p.Segments) != len(other.Segments) {
		return false
	}
	for i := range p.Segments {
		if p.Segments[i] != other.Segments[i] {
			return false
		}
	}
	return true
}

// ToSurface projects p into a Surface addressed at the given layer, with
// no topic.
func (p Point) ToSurface(layer Layer) Surface {
	return Surface{Point: p, Layer: layer}
}

// String renders p as "route::seg/seg/seg".
func (p Point) String() string {
	var sb strings.Builder
	sb.WriteString(p.Route.String())
	sb.WriteString("::")
	for i, seg := range p.Segments {
		if i > 0 {
			switch seg.Type {
			case Pop, Working, FilesystemRoot:
			default:
				sb.WriteString("/")
			}
		}
		sb.WriteString(seg.String())
	}
	return sb.String()
}

// Parse parses the "route::seg/seg/seg" form produced by String. It is
// intentionally forgiving of trailing slashes but does not attempt to
// recover the original SegmentType of each element — callers that need
// typed segments should build a Point with Push instead.
func Parse(s string) (Point, error) {
	parts := strings.SplitN(s, "::", 2)
	if len(parts) != 2 {
		return Point{}, fmt.Errorf("point: malformed point %q: missing route separator", s)
	}
	route, err := parseRoute(parts[0])
	if err != nil {
		return Point{}, err
	}
	p := New(route)
	body := strings.Trim(parts[1], "/")
	if body == "" {
		return p, nil
	}
	for _, tok := range strings.Split(body, "/") {
		p = p.Push(Segment{Type: BaseSegment, Value: tok})
	}
	return p, nil
}

func parseRoute(s string) (Route, error) {
	switch s {
	case "this":
		return This, nil
	case "remote":
		return Remote, nil
	case "domain":
		return Domain, nil
	case "star":
		return Star, nil
	default:
		return 0, fmt.Errorf("point: unknown route %q", s)
	}
}
