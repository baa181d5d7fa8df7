// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package point

import (
	"fmt"
	"strings"
)

// Base is the closed enum of well-known particle categories.
type Base uint8

const (
	// StarBase identifies a particle that is itself a star.
	StarBase Base = iota
	// SpaceBase is the top-level namespace particle.
	SpaceBase
	// App is a user-deployed application particle.
	App
	// Mechtron is a driver-hosted compute particle.
	Mechtron
	// Control is a particle used for control-plane traffic (e.g. Machine).
	Control
	// FileSystem is a filesystem-shaped particle.
	FileSystem
	// File is a single file particle.
	FileBase
	// Database is a database-shaped particle.
	Database
	// Repo is an artifact repository particle.
	Repo
	// UserBase is an end-user identity particle.
	UserBase
)

var baseNames = map[Base]string{
	StarBase:   "Star",
	SpaceBase:  "Space",
	App:        "App",
	Mechtron:   "Mechtron",
	Control:    "Control",
	FileSystem: "FileSystem",
	FileBase:   "File",
	Database:   "Database",
	Repo:       "Repo",
	UserBase:   "User",
}

func (b Base) String() string {
	if name, ok := baseNames[b]; ok {
		return name
	}
	return "Unknown"
}

// wrangleableBases lists the particle categories the router is allowed to
// provision onto an arbitrary star via a wrangle (as opposed to particles
// that always live where their parent lives, e.g. File under FileSystem).
var wrangleableBases = map[Base]bool{
	App:      true,
	Mechtron: true,
	Database: true,
	Repo:     true,
}

// Specific pins a Kind to a concrete provider implementation:
// provider.domain : vendor.domain : product : variant : semver.
type Specific struct {
	Provider string
	Vendor   string
	Product  string
	Variant  string
	Version  string
}

func (s *Specific) String() string {
	if s == nil {
		return ""
	}
	return strings.Join([]string{s.Provider, s.Vendor, s.Product, s.Variant, s.Version}, ":")
}

// ParseSpecific parses the "provider.domain:vendor.domain:product:variant:semver" form.
func ParseSpecific(s string) (*Specific, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 {
		return nil, fmt.Errorf("point: malformed specific %q: want 5 colon-separated fields, got %d", s, len(parts))
	}
	return &Specific{
		Provider: parts[0],
		Vendor:   parts[1],
		Product:  parts[2],
		Variant:  parts[3],
		Version:  parts[4],
	}, nil
}

// Kind is a particle's type: a required Base, an optional CamelCase Sub
// tag, and an optional Specific pinning a concrete provider.
type Kind struct {
	Base     Base
	Sub      string
	Specific *Specific
}

// Wrangleable reports whether particles of this Kind may be placed on an
// arbitrary star via the router's wrangle mechanism rather than always
// co-located with a parent.
func (k Kind) Wrangleable() bool {
	return wrangleableBases[k.Base]
}

// TraversalPlan returns the ordered layers a wave must visit for a
// particle of this Kind. Every Kind in the fabric traverses the full
// Gravity->Field->Shell->Core pipeline; Kind is retained as the extension
// point a driver-specific plan would customize (e.g. a Control particle
// that has no Shell-level session state still passes through it as a
// no-op, preserving the "never skip a layer" invariant).
func (k Kind) TraversalPlan() []Layer {
	return []Layer{Gravity, Field, Shell, Core}
}

func (k Kind) String() string {
	s := k.Base.String()
	if k.Sub != "" {
		s += "<" + k.Sub + ">"
	}
	if k.Specific != nil {
		s += "(" + k.Specific.String() + ")"
	}
	return s
}

// Equal reports whether two Kinds describe the same type.
func (k Kind) Equal(other Kind) bool {
	if k.Base != other.Base || k.Sub != other.Sub {
		return false
	}
	if (k.Specific == nil) != (other.Specific == nil) {
		return false
	}
	if k.Specific == nil {
		return true
	}
	return *k.Specific == *other.Specific
}

// KindSelector matches a set of Kinds for wrangle-table lookups: a Base is
// always required, Sub/Specific are optional narrowing filters.
type KindSelector struct {
	Base     Base
	Sub      *string
	Specific *Specific
}

// Matches reports whether kind satisfies the selector.
func (ks KindSelector) Matches(kind Kind) bool {
	if ks.Base != kind.Base {
		return false
	}
	if ks.Sub != nil && *ks.Sub != kind.Sub {
		return false
	}
	if ks.Specific != nil {
		if kind.Specific == nil || *ks.Specific != *kind.Specific {
			return false
		}
	}
	return true
}

// Key returns a comparable string usable as a map key for this selector.
func (ks KindSelector) Key() string {
	sub := ""
	if ks.Sub != nil {
		sub = *ks.Sub
	}
	spec := ""
	if ks.Specific != nil {
		spec = ks.Specific.String()
	}
	return ks.Base.String() + "|" + sub + "|" + spec
}
