// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starlane-io/starlane/config"
	"github.com/starlane-io/starlane/log"
	"github.com/starlane-io/starlane/point"
)

func writeTemplate(t *testing.T, tmpl config.MachineTemplate) string {
	t.Helper()
	data, err := json.Marshal(tmpl)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "machine.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestRunBringsMachineUpAndShutsDownOnCancel(t *testing.T) {
	path := writeTemplate(t, config.MachineTemplate{
		Stars: []config.StarConfig{{Key: point.StarKey{Handle: "alpha"}}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, path, false, log.NewNoOpLogger()) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run never returned after context cancellation")
	}
}

func TestRunFailsOnMissingTemplate(t *testing.T) {
	err := run(context.Background(), filepath.Join(t.TempDir(), "missing.json"), false, log.NewNoOpLogger())
	require.Error(t, err)
}
