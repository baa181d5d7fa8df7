// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wave defines the fabric's message model: directed and reflected
// waves, the Substance payload union they carry, and the wire codec that
// serializes them across a hyperlane.
package wave

import (
	"fmt"

	"github.com/google/uuid"
)

// ID uniquely identifies a single wave. Reflected waves carry their own ID
// plus the ID of the directed wave they answer (ResponseTo).
type ID uuid.UUID

// NewID returns a fresh random wave ID.
func NewID() ID {
	return ID(uuid.New())
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero value (never assigned).
func (id ID) IsZero() bool {
	return id == ID{}
}

// ParseID parses the canonical string form of an ID.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("wave: invalid id %q: %w", s, err)
	}
	return ID(u), nil
}
