// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package point

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSurfaceRoundTrips(t *testing.T) {
	s := New(This).Push(Segment{Type: BaseSegment, Value: "beta"}).ToSurface(Core)
	parsed, err := ParseSurface(s.String())
	require.NoError(t, err)
	require.True(t, parsed.Equal(s))
}

func TestParseSurfaceWithTopic(t *testing.T) {
	s := New(This).Push(Segment{Type: BaseSegment, Value: "shell"}).ToSurface(Shell).WithTopic("session-1")
	parsed, err := ParseSurface(s.String())
	require.NoError(t, err)
	require.True(t, parsed.Equal(s))
}

func TestParseSurfaceRejectsMalformed(t *testing.T) {
	_, err := ParseSurface("not-a-surface")
	require.Error(t, err)

	_, err = ParseSurface("this::x@Bogus")
	require.Error(t, err)
}
