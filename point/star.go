// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package point

import "fmt"

// Role is a star's behavioral role within the fabric.
type Role uint8

const (
	Central Role = iota
	Super
	Nexus
	Maelstrom
	Scribe
	Jump
	Fold
	Machine
)

var roleNames = [...]string{"Central", "Super", "Nexus", "Maelstrom", "Scribe", "Jump", "Fold", "Machine"}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return "Unknown"
}

// StarKey identifies a single star within a constellation: the
// constellation it belongs to, a human-assigned handle, and an index
// disambiguating multiple stars sharing a handle (e.g. a replicated
// Nexus).
type StarKey struct {
	Constellation uint32
	Handle        string
	Index         uint16
}

func (k StarKey) String() string {
	return fmt.Sprintf("%d:%s:%d", k.Constellation, k.Handle, k.Index)
}

// Compare gives StarKey a total order: Constellation, then Handle, then
// Index. It returns <0, 0, or >0 the way bytes.Compare does.
func (k StarKey) Compare(other StarKey) int {
	if k.Constellation != other.Constellation {
		return int(k.Constellation) - int(other.Constellation)
	}
	if k.Handle != other.Handle {
		if k.Handle < other.Handle {
			return -1
		}
		return 1
	}
	return int(k.Index) - int(other.Index)
}

// Equal reports whether two keys identify the same star.
func (k StarKey) Equal(other StarKey) bool {
	return k.Compare(other) == 0
}

// StarPair is an unordered pair of distinct stars, normalized so that
// Low <= High under StarKey.Compare. Any two StarKeys produce exactly one
// StarPair regardless of argument order, making it safe to use as a map
// key for per-link state (e.g. hyperlane backpressure counters).
type StarPair struct {
	Low  StarKey
	High StarKey
}

// NewStarPair builds the normalized pair for a and b.
func NewStarPair(a, b StarKey) StarPair {
	if a.Compare(b) <= 0 {
		return StarPair{Low: a, High: b}
	}
	return StarPair{Low: b, High: a}
}

func (p StarPair) String() string {
	return fmt.Sprintf("%s<->%s", p.Low, p.High)
}
