// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package router implements the per-star routing decision: local
// delivery, adjacent forwarding via Hop/Transport envelopes, or search
// ripple when a destination's host star is unknown.
package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/starlane-io/starlane/exchange"
	"github.com/starlane-io/starlane/fault"
	"github.com/starlane-io/starlane/hop"
	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/registry"
	"github.com/starlane-io/starlane/traversal"
	"github.com/starlane-io/starlane/utils/set"
	"github.com/starlane-io/starlane/wave"
)

// LinkSender delivers a Hop-wrapped wave to an adjacent star. Concrete
// implementations live in the hyperlane/interchange packages; Router only
// depends on this narrow interface to stay decoupled from transport.
type LinkSender interface {
	SendHop(ctx context.Context, next point.StarKey, d *wave.Directed) error
}

type localParticle struct {
	kind     point.Kind
	pipeline *traversal.Pipeline
}

// Router is one star's routing plane.
type Router struct {
	self      point.StarKey
	log       log.Logger
	registry  registry.Registry
	exchanger *exchange.Exchanger
	sender    LinkSender
	wrangles  *WrangleTable

	mu         sync.RWMutex
	particles  map[string]localParticle
	adjacents  map[point.StarKey]point.StarKey // destination star -> known next hop
	neighbors  set.Set[point.StarKey]          // directly-wired stars
	hold       map[string][]*wave.Directed     // selector key -> waves parked on its in-flight search
	searching  map[string]bool                 // selector key -> search already issued
}

// New builds a Router for self, bound to registry r, exchanger ex, and
// sender for off-star delivery.
func New(self point.StarKey, logger log.Logger, r registry.Registry, ex *exchange.Exchanger, sender LinkSender) *Router {
	return &Router{
		self:      self,
		log:       logger,
		registry:  r,
		exchanger: ex,
		sender:    sender,
		wrangles:  NewWrangleTable(),
		particles: make(map[string]localParticle),
		adjacents: make(map[point.StarKey]point.StarKey),
		neighbors: set.NewSet[point.StarKey](0),
		hold:      make(map[string][]*wave.Directed),
		searching: make(map[string]bool),
	}
}

// HostParticle registers a local particle's pipeline so inbound waves
// addressed to p are delivered to it directly instead of consulting the
// registry.
func (r *Router) HostParticle(p point.Point, kind point.Kind, pipeline *traversal.Pipeline) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.particles[p.String()] = localParticle{kind: kind, pipeline: pipeline}
}

// AddNeighbor records star as directly wired to this one, reachable in a
// single hop.
func (r *Router) AddNeighbor(star point.StarKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.neighbors.Add(star)
	if _, known := r.adjacents[star]; !known {
		r.adjacents[star] = star
	}
}

// AdvertiseRoute records that destination is reachable via next (a
// neighbor), replacing any route already known for destination. Routes
// carry no cost, so a cheaper route is not preferred over a costlier one.
func (r *Router) AdvertiseRoute(destination, next point.StarKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adjacents[destination] = next
}

func (r *Router) localPipeline(p point.Point) (localParticle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lp, ok := r.particles[p.String()]
	return lp, ok
}

func (r *Router) nextHop(destination point.StarKey) (point.StarKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	next, ok := r.adjacents[destination]
	return next, ok
}

func (r *Router) selfGravity() point.Surface {
	return point.New(point.Star).Push(point.Segment{Type: point.BaseSegment, Value: r.self.String()}).ToSurface(point.Gravity)
}

// Route is the router's main entry for an outbound or inbound directed
// wave that still needs a delivery decision.
func (r *Router) Route(ctx context.Context, d *wave.Directed) error {
	if d.To.Kind == wave.RecipientsStars {
		return r.routeSearchRipple(ctx, d)
	}
	for _, to := range d.To.Surfaces {
		if err := r.routeOne(ctx, d, to); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) routeOne(ctx context.Context, d *wave.Directed, to point.Surface) error {
	if to.Point.Route == point.Star {
		return r.routeToStar(ctx, d, to)
	}

	if lp, ok := r.localPipeline(to.Point); ok {
		reflected := lp.pipeline.Traverse(ctx, traversal.TraversalInjection{Surface: to, Directed: d, FromGravity: true})
		return r.deliverReflected(ctx, d, reflected)
	}

	rec, err := r.registry.Locate(ctx, to.Point)
	if err != nil {
		return fmt.Errorf("router: %s: %w", to.Point, fault.ErrAddressing)
	}

	var zeroStar point.StarKey
	if rec.Location.Host.Equal(zeroStar) {
		return r.parkAndSearch(ctx, to.Point, rec.Stub.Kind, d)
	}
	if rec.Location.Host.Equal(r.self) {
		return fault.WrapInternal(fmt.Errorf("%s has no hosted pipeline", to.Point), "router: located on self")
	}
	return r.forward(ctx, d, rec.Location.Host)
}

func (r *Router) routeToStar(ctx context.Context, d *wave.Directed, to point.Surface) error {
	seg, ok := to.Point.LastSegment()
	if !ok {
		return fmt.Errorf("router: empty star point: %w", fault.ErrAddressing)
	}
	// Star points are rendered by StarKey.String(); destinations addressed
	// directly to this star are delivered to the local control surface
	// rather than consulting the registry.
	if seg.Value == r.self.String() {
		if lp, ok := r.localPipeline(to.Point); ok {
			reflected := lp.pipeline.Traverse(ctx, traversal.TraversalInjection{Surface: to, Directed: d, FromGravity: true})
			return r.deliverReflected(ctx, d, reflected)
		}
		return nil
	}
	dest, err := parseStarKey(seg.Value)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	return r.forward(ctx, d, dest)
}

func (r *Router) forward(ctx context.Context, d *wave.Directed, destination point.StarKey) error {
	if d.Scope == wave.ScopeNone {
		return fmt.Errorf("router: wave %s is scoped to this star: %w", d.ID, fault.ErrAddressing)
	}
	wire, err := wave.Encode(d)
	if err != nil {
		return fmt.Errorf("router: encode inner wave: %w", err)
	}
	return r.sendEnvelope(ctx, wire, destination)
}

// rewrapHop re-wraps an already-encoded transport wave in a fresh Hop
// addressed to the next adjacent star toward destination, without
// rebuilding the transport itself (spec §4.4: forwarders re-wrap the same
// transport, they do not reconstruct it).
func (r *Router) rewrapHop(ctx context.Context, transportWire []byte, destination point.StarKey) error {
	next, ok := r.nextHop(destination)
	if !ok {
		return fmt.Errorf("router: no route to star %s: %w", destination, fault.ErrAddressing)
	}
	hopWave := hop.WrapHop(r.selfGravity(), next, transportWire)
	return r.sender.SendHop(ctx, next, hopWave)
}

// sendEnvelope wraps an already wire-encoded wave (directed or reflected)
// in a Transport addressed to destination, then a Hop addressed to the
// known next adjacent star toward it.
func (r *Router) sendEnvelope(ctx context.Context, wire []byte, destination point.StarKey) error {
	next, ok := r.nextHop(destination)
	if !ok {
		return fmt.Errorf("router: no route to star %s: %w", destination, fault.ErrAddressing)
	}
	transport := hop.WrapTransport(r.selfGravity(), destination, wire)
	hopWire, err := wave.Encode(transport)
	if err != nil {
		return fmt.Errorf("router: encode transport: %w", err)
	}
	hopWave := hop.WrapHop(r.selfGravity(), next, hopWire)
	return r.sender.SendHop(ctx, next, hopWave)
}

// ReceiveHop is called by the hyperlane/interchange layer when a Hop wave
// arrives from an adjacent star. It unwraps the transport and either
// delivers locally or re-wraps and forwards toward the ultimate
// destination.
func (r *Router) ReceiveHop(ctx context.Context, hopWave *wave.Directed) error {
	_, transportWire, err := hop.UnwrapHop(hopWave)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	decoded, err := wave.Decode(transportWire)
	if err != nil {
		return fmt.Errorf("router: decode transport: %w", err)
	}
	transport, ok := decoded.(*wave.Directed)
	if !ok {
		return fmt.Errorf("router: transport payload is not directed: %w", fault.ErrProtocol)
	}
	destination, innerWire, err := hop.UnwrapTransport(transport)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}

	if !destination.Equal(r.self) {
		return r.rewrapHop(ctx, transportWire, destination)
	}

	innerAny, err := wave.Decode(innerWire)
	if err != nil {
		return fmt.Errorf("router: decode inner wave: %w", err)
	}
	switch inner := innerAny.(type) {
	case *wave.Directed:
		if inner.Core.Method == MethodSearch {
			return r.handleInboundSearch(ctx, inner)
		}
		for _, to := range inner.To.Surfaces {
			if lp, ok := r.localPipeline(to.Point); ok {
				reflected := lp.pipeline.Traverse(ctx, traversal.TraversalInjection{Surface: to, Directed: inner, FromGravity: true})
				if inner.Kind == wave.Signal {
					return nil
				}
				return r.replyAcrossHop(ctx, transport.From, reflected)
			}
		}
		return fmt.Errorf("router: no local particle for %s: %w", inner.To, fault.ErrAddressing)
	case *wave.Reflected:
		r.exchanger.Reflected(inner)
		return nil
	default:
		return fmt.Errorf("router: unexpected inner wave type %T", innerAny)
	}
}

// replyAcrossHop wraps reflected as a Transport/Hop pair addressed back to
// the star that originated the inbound transport envelope.
func (r *Router) replyAcrossHop(ctx context.Context, origin point.Surface, reflected *wave.Reflected) error {
	originStar, err := parseStarKey(lastSegmentValue(origin.Point))
	if err != nil {
		return fmt.Errorf("router: reply origin: %w", err)
	}
	wire, err := wave.Encode(reflected)
	if err != nil {
		return fmt.Errorf("router: encode reflected: %w", err)
	}
	return r.sendEnvelope(ctx, wire, originStar)
}

// deliverReflected completes a local exchange directly, without going
// back out over any hyperlane, since directed and its reflection both
// live on this star. The reflection of a Signal is discarded.
func (r *Router) deliverReflected(_ context.Context, d *wave.Directed, reflected *wave.Reflected) error {
	if d.Kind == wave.Signal {
		return nil
	}
	r.exchanger.Reflected(reflected)
	return nil
}

// RouteReflected hands a reflected wave produced locally (e.g. by a
// driver emitting an unsolicited Echo) to this star's exchanger. It does
// not forward the wave to another star, so a reflection answering a
// directed wave from a remote origin is dropped there as late.
func (r *Router) RouteReflected(ctx context.Context, reflected *wave.Reflected) error {
	r.exchanger.Reflected(reflected)
	return nil
}

func lastSegmentValue(p point.Point) string {
	seg, ok := p.LastSegment()
	if !ok {
		return ""
	}
	return seg.Value
}

func (r *Router) warn(msg string, fields ...zap.Field) {
	if r.log != nil {
		r.log.Warn(msg, fields...)
	}
}
