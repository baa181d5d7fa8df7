// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gofrs/flock"
)

// Snapshotting wraps the in-memory Registry with an optional persisted
// snapshot file, guarded by a file lock so only one process writes it at a
// time (spec §6.3 leaves persistence entirely to the driver; this is the
// one place a single-process machine may want a local file anyway, not a
// schema or query surface).
type Snapshotting struct {
	Registry
	mem  *inMemory
	path string
	lock *flock.Flock
}

// NewInMemoryWithSnapshot returns a Registry whose records can be persisted
// to and restored from a JSON file at path, guarded by path+".lock" so a
// concurrent writer (another process pointed at the same file) cannot
// interleave with Snapshot.
func NewInMemoryWithSnapshot(path string) *Snapshotting {
	mem := &inMemory{records: make(map[string]*Record)}
	return &Snapshotting{
		Registry: mem,
		mem:      mem,
		path:     path,
		lock:     flock.New(path + ".lock"),
	}
}

// Snapshot writes every current record to the snapshot file, holding the
// file lock for the duration so a concurrent Snapshot/Restore from another
// process serializes with this one.
func (s *Snapshotting) Snapshot(ctx context.Context) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("registry: snapshot lock: %w", err)
	}
	defer s.lock.Unlock()

	s.mem.mu.RLock()
	dump := make(map[string]*Record, len(s.mem.records))
	for k, v := range s.mem.records {
		cp := *v
		dump[k] = &cp
	}
	s.mem.mu.RUnlock()

	data, err := json.Marshal(dump)
	if err != nil {
		return fmt.Errorf("registry: snapshot encode: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("registry: snapshot write %s: %w", s.path, err)
	}
	return nil
}

// Restore replaces the in-memory record set with whatever the snapshot
// file at path currently holds. A missing file is not an error; Restore is
// a no-op in that case (first run of a fresh machine).
func (s *Snapshotting) Restore(ctx context.Context) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("registry: restore lock: %w", err)
	}
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("registry: restore read %s: %w", s.path, err)
	}

	var dump map[string]*Record
	if err := json.Unmarshal(data, &dump); err != nil {
		return fmt.Errorf("registry: restore decode: %w", err)
	}

	s.mem.mu.Lock()
	s.mem.records = dump
	s.mem.mu.Unlock()
	return nil
}
