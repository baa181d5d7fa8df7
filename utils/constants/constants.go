// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package constants holds fabric-wide constants shared across packages
// that would otherwise need to import one another just for a handful of
// values.
package constants

import "time"

// Constellation identifiers distinguish independently-addressed fabrics
// sharing the same process, analogous to a network ID.
const (
	DefaultConstellation uint32 = 1
	LocalConstellation   uint32 = 12345
)

// ConstellationName maps a constellation ID to a human-readable name.
var ConstellationName = map[uint32]string{
	DefaultConstellation: "default",
	LocalConstellation:   "local",
}

// NameOf returns the name of the constellation for the given ID, or
// "unknown" if it was never registered.
func NameOf(constellationID uint32) string {
	if name, ok := ConstellationName[constellationID]; ok {
		return name
	}
	return "unknown"
}

// DefaultHandlingWait is the base exchange timeout used when a directed
// wave's Handling does not specify one.
const DefaultHandlingWait = 15 * time.Second

// SearchWait bounds how long a star's flood search ripple collects
// Discovery replies before its exchange drains, substantially shorter
// than DefaultHandlingWait since a search crossing a handful of direct
// neighbors should resolve far sooner than an ordinary request deadline.
const SearchWait = 750 * time.Millisecond

// DefaultFrameMax bounds a single wire frame's declared length, guarding
// the hyperlane reader against a hostile or corrupt length prefix.
const DefaultFrameMax = 16 << 20 // 16 MiB
