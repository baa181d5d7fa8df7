// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/luxfi/log"
	"go.uber.org/zap"
)

// Load reads and parses a MachineTemplate from a JSON file at path.
func Load(path string) (*MachineTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var t MachineTemplate
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &t, nil
}

// Watcher reloads a MachineTemplate from disk whenever its file changes,
// invoking onChange with the freshly parsed template. Watcher itself
// re-wires nothing; any effect of a change is up to onChange.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	log     log.Logger
}

// NewWatcher starts watching the directory containing path for changes to
// that file.
func NewWatcher(path string, logger log.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	return &Watcher{path: path, watcher: fw, log: logger}, nil
}

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error { return w.watcher.Close() }

// Run blocks, invoking onChange with each successfully reloaded template
// whenever w's file is written, until ctx is canceled.
func (w *Watcher) Run(ctx context.Context, onChange func(*MachineTemplate)) {
	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			t, err := Load(w.path)
			if err != nil {
				if w.log != nil {
					w.log.Warn("config: reload failed", zap.String("path", w.path), zap.Error(err))
				}
				continue
			}
			onChange(t)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Warn("config: watcher error", zap.Error(err))
			}
		}
	}
}
