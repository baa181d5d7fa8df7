// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starlane-io/starlane/point"
)

func starKey(handle string) point.StarKey { return point.StarKey{Handle: handle} }

func TestBuilderAssemblesTemplate(t *testing.T) {
	tmpl, err := NewBuilder().
		AddStar(StarConfig{Key: starKey("alpha"), ListenAddr: ":7000"}).
		AddStar(StarConfig{Key: starKey("beta"), ListenAddr: ":7001"}).
		Wire(starKey("alpha"), starKey("beta")).
		Build()
	require.NoError(t, err)
	require.Len(t, tmpl.Stars, 2)
	require.Len(t, tmpl.Wires, 1)

	got, ok := tmpl.StarByKey(starKey("alpha"))
	require.True(t, ok)
	require.Equal(t, ":7000", got.ListenAddr)
}

func TestBuilderRejectsDuplicateStar(t *testing.T) {
	_, err := NewBuilder().
		AddStar(StarConfig{Key: starKey("alpha")}).
		AddStar(StarConfig{Key: starKey("alpha")}).
		Build()
	require.Error(t, err)
}

func TestBuilderRejectsWireToUnknownStar(t *testing.T) {
	_, err := NewBuilder().
		AddStar(StarConfig{Key: starKey("alpha")}).
		Wire(starKey("alpha"), starKey("ghost")).
		Build()
	require.Error(t, err)
}

func TestBuilderRejectsEmptyTemplate(t *testing.T) {
	_, err := NewBuilder().Build()
	require.Error(t, err)
}

func TestLoadParsesJSONTemplate(t *testing.T) {
	tmpl := MachineTemplate{
		Stars: []StarConfig{{Key: starKey("alpha"), ListenAddr: ":7000"}},
	}
	data, err := json.Marshal(tmpl)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "machine.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Stars, 1)
	require.Equal(t, "alpha", loaded.Stars[0].Key.Handle)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "machine.json")
	initial := MachineTemplate{Stars: []StarConfig{{Key: starKey("alpha")}}}
	data, err := json.Marshal(initial)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *MachineTemplate, 1)
	go w.Run(ctx, func(t *MachineTemplate) { reloaded <- t })

	updated := MachineTemplate{Stars: []StarConfig{{Key: starKey("alpha")}, {Key: starKey("beta")}}}
	data, err = json.Marshal(updated)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	select {
	case got := <-reloaded:
		require.Len(t, got.Stars, 2)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never observed the rewritten file")
	}
}
