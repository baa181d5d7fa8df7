// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package point

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPointPushParent(t *testing.T) {
	p := New(This).Push(Segment{Type: BaseSegment, Value: "hyperspace"}).Push(Segment{Type: BaseSegment, Value: "u"}).Push(Segment{Type: BaseSegment, Value: "less"})
	require.Equal(t, 3, len(p.Segments))

	last, ok := p.LastSegment()
	require.True(t, ok)
	require.Equal(t, "less", last.Value)

	parent, ok := p.Parent()
	require.True(t, ok)
	require.Equal(t, 2, len(parent.Segments))
	require.Equal(t, "u", mustLast(t, parent).Value)
}

func mustLast(t *testing.T, p Point) Segment {
	t.Helper()
	s, ok := p.LastSegment()
	require.True(t, ok)
	return s
}

func TestPointParentOfEmpty(t *testing.T) {
	p := New(This)
	_, ok := p.Parent()
	require.False(t, ok)
	_, ok = p.LastSegment()
	require.False(t, ok)
}

func TestPointIsParentOf(t *testing.T) {
	parent := New(This).Push(Segment{Type: BaseSegment, Value: "a"})
	child := parent.Push(Segment{Type: BaseSegment, Value: "b"})
	require.True(t, parent.IsParentOf(child))
	require.False(t, child.IsParentOf(parent))
	require.False(t, parent.IsParentOf(parent))
}

func TestPointTruncate(t *testing.T) {
	p := New(This).
		Push(Segment{Type: BaseSegment, Value: "a"}).
		Push(Segment{Type: Version, Value: "v1"}).
		Push(Segment{Type: BaseSegment, Value: "b"})

	truncated, ok := p.Truncate(Version)
	require.True(t, ok)
	require.Equal(t, 1, len(truncated.Segments))
	require.Equal(t, "a", truncated.Segments[0].Value)

	_, ok = p.Truncate(FilesystemRoot)
	require.False(t, ok)
}

func TestPointStringParseRoundTrip(t *testing.T) {
	p := New(Remote).Push(Segment{Type: BaseSegment, Value: "alpha"}).Push(Segment{Type: BaseSegment, Value: "beta"})
	s := p.String()
	require.Equal(t, "remote::alpha/beta", s)

	parsed, err := Parse(s)
	require.NoError(t, err)
	require.True(t, p.Equal(parsed))
}

func TestPointEqual(t *testing.T) {
	a := New(This).Push(Segment{Type: BaseSegment, Value: "x"})
	b := New(This).Push(Segment{Type: BaseSegment, Value: "x"})
	c := New(This).Push(Segment{Type: BaseSegment, Value: "y"})
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestToSurface(t *testing.T) {
	p := New(This).Push(Segment{Type: BaseSegment, Value: "alpha"})
	s := p.ToSurface(Core)
	require.Equal(t, Core, s.Layer)
	require.True(t, s.Point.Equal(p))
	require.Equal(t, "", s.Topic)
}

func TestKindWrangleable(t *testing.T) {
	require.True(t, Kind{Base: App}.Wrangleable())
	require.False(t, Kind{Base: StarBase}.Wrangleable())
}

func TestKindSelectorMatches(t *testing.T) {
	sub := "Worker"
	selector := KindSelector{Base: Mechtron, Sub: &sub}
	require.True(t, selector.Matches(Kind{Base: Mechtron, Sub: "Worker"}))
	require.False(t, selector.Matches(Kind{Base: Mechtron, Sub: "Other"}))
	require.False(t, selector.Matches(Kind{Base: App, Sub: "Worker"}))
}

func TestSpecificParse(t *testing.T) {
	s, err := ParseSpecific("starlane.io:acme.com:widget:pro:1.2.3")
	require.NoError(t, err)
	require.Equal(t, "widget", s.Product)
	require.Equal(t, "1.2.3", s.Version)

	_, err = ParseSpecific("bad")
	require.Error(t, err)
}
