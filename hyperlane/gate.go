// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hyperlane

import (
	"context"
	"fmt"
	"sync"

	"github.com/starlane-io/starlane/fault"
	"github.com/starlane-io/starlane/wave"
)

// binding pairs the authenticator/greeter a Gate delegates to for one
// InterchangeKind, plus the callback invoked once a hyperlane is live.
type binding struct {
	auth    Authenticator
	greeter Greeter
	onLink  func(*TCPHyperlane, Greet)
}

// Gate is the accepting side's knock validator: it dispatches an inbound
// Knock to the Authenticator/Greeter registered for its InterchangeKind,
// and on success hands the resulting live hyperlane off to that
// interchange's callback (spec §4.7). A Gate may back many concurrent
// handshakes; it carries no per-connection state.
type Gate struct {
	mu       sync.RWMutex
	bindings map[string]binding
}

// NewGate builds an empty Gate; call Bind for each InterchangeKind it
// should accept knocks for.
func NewGate() *Gate {
	return &Gate{bindings: make(map[string]binding)}
}

// Bind registers the authenticator/greeter pair and post-accept callback
// for knocks presenting interchangeKind.
func (g *Gate) Bind(interchangeKind string, auth Authenticator, greeter Greeter, onLink func(*TCPHyperlane, Greet)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bindings[interchangeKind] = binding{auth: auth, greeter: greeter, onLink: onLink}
}

// knock validates an inbound Knock against its bound authenticator and,
// on success, returns the Greet its bound greeter produced plus the
// interchange kind it was bound under, so the caller can dispatch the
// resulting hyperlane once the handshake finishes.
func (g *Gate) knock(ctx context.Context, k wave.Knock) (Greet, string, error) {
	g.mu.RLock()
	b, ok := g.bindings[k.InterchangeKind]
	g.mu.RUnlock()
	if !ok {
		return Greet{}, "", fmt.Errorf("hyperlane: no interchange bound for kind %q: %w", k.InterchangeKind, fault.ErrAuth)
	}
	if err := b.auth.Authenticate(ctx, k); err != nil {
		return Greet{}, "", fmt.Errorf("hyperlane: %w", fault.ErrAuth)
	}
	greet, err := b.greeter.Greet(ctx, k)
	if err != nil {
		return Greet{}, "", fmt.Errorf("hyperlane: greet: %w", err)
	}
	return greet, k.InterchangeKind, nil
}

// dispatch hands a newly-live hyperlane to the interchange bound under
// interchangeKind.
func (g *Gate) dispatch(interchangeKind string, hl *TCPHyperlane, greet Greet) {
	g.mu.RLock()
	b, ok := g.bindings[interchangeKind]
	g.mu.RUnlock()
	if ok && b.onLink != nil {
		b.onLink(hl, greet)
	}
}
