// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the static description of a machine: the stars it
// runs and how they are wired together, plus a fluent Builder in the
// teacher's error-accumulating style (spec §4.8 step 1, "Read a
// MachineTemplate listing stars with their kinds and connect/receive
// wiring").
package config

import (
	"fmt"

	"github.com/starlane-io/starlane/point"
)

// TLSConfig names the certificate/key pair a star's TCP hyperlane
// listener presents, and the CA bundle it trusts from peers. TLS is
// mandatory on every wire hyperlane (spec §6.1).
type TLSConfig struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// StarConfig describes one star within a MachineTemplate.
type StarConfig struct {
	Key        point.StarKey
	Role       point.Role
	ListenAddr string
	TLS        TLSConfig
	// Adjacents lists the stars this one is directly wired to; Router
	// treats each as reachable in a single hop (spec §4.6).
	Adjacents []point.StarKey
}

// Wire is one local hyperway a Machine opens at startup between two of
// its own stars (spec §4.8 step 4).
type Wire struct {
	A, B point.StarKey
}

// MachineTemplate is the static description a Machine assembles itself
// from: every star it hosts and the local wires between them.
type MachineTemplate struct {
	Stars []StarConfig
	Wires []Wire
}

// StarByKey returns the StarConfig for key, if present.
func (t *MachineTemplate) StarByKey(key point.StarKey) (StarConfig, bool) {
	for _, s := range t.Stars {
		if s.Key.Equal(key) {
			return s, true
		}
	}
	return StarConfig{}, false
}

// Builder assembles a MachineTemplate fluently, accumulating the first
// validation error encountered and refusing further mutation once set.
type Builder struct {
	template *MachineTemplate
	keys     map[point.StarKey]bool
	err      error
}

// NewBuilder starts an empty MachineTemplate build.
func NewBuilder() *Builder {
	return &Builder{
		template: &MachineTemplate{},
		keys:     make(map[point.StarKey]bool),
	}
}

// AddStar registers cfg as one of the machine's stars.
func (b *Builder) AddStar(cfg StarConfig) *Builder {
	if b.err != nil {
		return b
	}
	if b.keys[cfg.Key] {
		b.err = fmt.Errorf("config: duplicate star key %s", cfg.Key)
		return b
	}
	b.keys[cfg.Key] = true
	b.template.Stars = append(b.template.Stars, cfg)
	return b
}

// Wire opens a local hyperway between stars a and b at startup; both must
// already have been added via AddStar.
func (b *Builder) Wire(a, b2 point.StarKey) *Builder {
	if b.err != nil {
		return b
	}
	if !b.keys[a] {
		b.err = fmt.Errorf("config: wire references unknown star %s", a)
		return b
	}
	if !b.keys[b2] {
		b.err = fmt.Errorf("config: wire references unknown star %s", b2)
		return b
	}
	b.template.Wires = append(b.template.Wires, Wire{A: a, B: b2})
	return b
}

// Build finalizes the template, or returns the first error encountered.
func (b *Builder) Build() (*MachineTemplate, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.template.Stars) == 0 {
		return nil, fmt.Errorf("config: machine template has no stars")
	}
	return b.template, nil
}
