// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starlane-io/starlane/point"
)

func TestSnapshotRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	ctx := context.Background()

	s := NewInMemoryWithSnapshot(path)
	p := pt("alpha")
	_, err := s.Register(ctx, Registration{Point: p, Kind: point.Kind{Base: point.App}})
	require.NoError(t, err)
	star := point.StarKey{Handle: "nexus"}
	require.NoError(t, s.AssignStar(ctx, p, star))
	require.NoError(t, s.Snapshot(ctx))

	restored := NewInMemoryWithSnapshot(path)
	require.NoError(t, restored.Restore(ctx))
	rec, err := restored.Locate(ctx, p)
	require.NoError(t, err)
	require.True(t, rec.Location.Host.Equal(star))
}

func TestRestoreOnMissingFileIsNoop(t *testing.T) {
	s := NewInMemoryWithSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, s.Restore(context.Background()))
	_, err := s.Locate(context.Background(), pt("ghost"))
	require.Error(t, err)
}
