// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package machine

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/log"
	"golang.org/x/sync/errgroup"

	"github.com/starlane-io/starlane/config"
	"github.com/starlane-io/starlane/fault"
	"github.com/starlane-io/starlane/hyperlane"
	"github.com/starlane-io/starlane/interchange"
	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/registry"
	"github.com/starlane-io/starlane/utils/wrappers"
	"github.com/starlane-io/starlane/wave"
)

// MachineStatus is the machine-wide aggregate of its stars' individual statuses.
type MachineStatus uint8

const (
	MachinePending MachineStatus = iota
	MachineInit
	MachineReady
	MachinePanic
	MachineFatal
)

func (s MachineStatus) String() string {
	switch s {
	case MachineInit:
		return "Init"
	case MachineReady:
		return "Ready"
	case MachinePanic:
		return "Panic"
	case MachineFatal:
		return "Fatal"
	default:
		return "Pending"
	}
}

// closer is the common shutdown surface of hyperlane.Listener and
// hyperlane.WSListener, letting Machine track both TCP and WebSocket
// gates in one slice.
type closer interface {
	Close() error
}

// Machine is a process-scoped collection of stars, their interchanges,
// and the local hyperways wiring them together (spec §4.8).
type Machine struct {
	template *config.MachineTemplate
	registry registry.Registry
	log      log.Logger

	mu       sync.RWMutex
	stars    map[point.StarKey]*Star
	gate     *hyperlane.Gate
	gateless *interchange.Registry
	services map[string]point.StarKey
	listeners []closer

	cancel context.CancelFunc
	done   chan struct{}
}

// New assembles a Machine's per-star skeletons from template, but does
// not yet wire local hyperways or start listeners — call Init for that.
func New(template *config.MachineTemplate, logger log.Logger) *Machine {
	reg := registry.NewInMemory()
	m := &Machine{
		template:  template,
		registry:  reg,
		log:       logger,
		stars:     make(map[point.StarKey]*Star),
		gate:      hyperlane.NewGate(),
		gateless:  interchange.NewRegistry(),
		services:  make(map[string]point.StarKey),
		done:      make(chan struct{}),
	}
	for _, sc := range template.Stars {
		st := newStar(sc, reg, logger)
		m.stars[sc.Key] = st
		m.gateless.Install(st.Interchange)
	}
	return m
}

// Star returns the assembled Star for key, if the machine hosts it.
func (m *Machine) Star(key point.StarKey) (*Star, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.stars[key]
	return st, ok
}

// Init brings every star from Pending to Ready, opening the local
// hyperways the template wires between co-hosted stars (spec §4.8 steps
// 2-4). Stars start concurrently and Init waits for all of them; a failure
// marks every star Panic. Wiring then attempts every wire the template
// names rather than stopping at the first bad one, aggregating every
// failure so a template with several broken wires reports all of them
// instead of hiding the rest behind the first.
func (m *Machine) Init(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	g, _ := errgroup.WithContext(ctx)
	for _, st := range m.stars {
		st := st
		g.Go(func() error {
			st.SetStatus(Init)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.markPanic()
		return fault.WrapInternal(err, "machine: star init failed")
	}

	var wireErrs wrappers.Errs
	for _, w := range m.template.Wires {
		if err := m.wireLocal(ctx, w.A, w.B); err != nil {
			wireErrs.Add(err)
		}
	}
	if wireErrs.Errored() {
		m.markPanic()
		return fault.WrapInternal(wireErrs.Err(), "machine: wiring failed")
	}

	m.mu.RLock()
	stars := make([]*Star, 0, len(m.stars))
	for _, st := range m.stars {
		stars = append(stars, st)
	}
	m.mu.RUnlock()
	for _, st := range stars {
		st.SetStatus(Ready)
	}
	return nil
}

// wireLocal opens a local hyperway between stars a and b, attaching a
// Hyperway to each side's interchange with Far set to the other's
// gravity surface.
func (m *Machine) wireLocal(ctx context.Context, a, b point.StarKey) error {
	starA, ok := m.Star(a)
	if !ok {
		return fmt.Errorf("machine: wire references unhosted star %s: %w", a, fault.ErrAddressing)
	}
	starB, ok := m.Star(b)
	if !ok {
		return fmt.Errorf("machine: wire references unhosted star %s: %w", b, fault.ErrAddressing)
	}
	epA, epB := hyperlane.LocalPair(ctx, m.log)
	starA.Interchange.Add(interchange.Hyperway{Far: starGravity(b), Endpoint: epA})
	starB.Interchange.Add(interchange.Hyperway{Far: starGravity(a), Endpoint: epB})
	starA.Router.AddNeighbor(b)
	starB.Router.AddNeighbor(a)
	go pumpHopReceiver(ctx, epA, starA)
	go pumpHopReceiver(ctx, epB, starB)
	return nil
}

// pumpHopReceiver drains hyperway-delivered waves into star's router as
// inbound Hop frames, the in-process analog of a TCPHyperlane's read loop
// feeding Router.ReceiveHop.
func pumpHopReceiver(ctx context.Context, ep hyperlane.Endpoint, star *Star) {
	for {
		v, err := ep.Recv(ctx)
		if err != nil {
			return
		}
		d, ok := v.(*wave.Directed)
		if !ok {
			continue
		}
		if star.Metrics != nil {
			star.Metrics.WaveReceived.Inc()
		}
		if err := star.Router.ReceiveHop(ctx, d); err != nil && star.Log != nil {
			star.Log.Warn("machine: hop delivery failed")
		}
	}
}

func (m *Machine) markPanic() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, st := range m.stars {
		st.SetStatus(Panic)
	}
}

// Aggregate reports the machine-wide status per spec §4.8: Ready once
// every star is Ready, Panic/Fatal if any star is, else Init or Pending.
func (m *Machine) Aggregate() MachineStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.stars) == 0 {
		return MachinePending
	}
	allReady := true
	anyInit := false
	for _, st := range m.stars {
		switch st.Status() {
		case Fatal:
			return MachineFatal
		case Panic:
			return MachinePanic
		case Ready, Done:
		default:
			allReady = false
		}
		if st.Status() == Init || st.Status() == Pending {
			anyInit = true
		}
	}
	if allReady {
		return MachineReady
	}
	if anyInit {
		return MachineInit
	}
	return MachinePending
}

// WaitForReady blocks until Aggregate reports Ready, Panic, or Fatal, or
// ctx is canceled.
func (m *Machine) WaitForReady(ctx context.Context) (MachineStatus, error) {
	for {
		switch s := m.Aggregate(); s {
		case MachineReady, MachinePanic, MachineFatal:
			return s, nil
		}
		select {
		case <-ctx.Done():
			return m.Aggregate(), ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Terminate cancels every star's routing task and closes any listeners,
// which in turn drops endpoints and signals peers (spec §5).
func (m *Machine) Terminate(reason string) {
	m.mu.Lock()
	for _, st := range m.stars {
		st.SetStatus(Done)
	}
	listeners := m.listeners
	m.mu.Unlock()
	for _, ln := range listeners {
		ln.Close()
	}
	if m.cancel != nil {
		m.cancel()
	}
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

// AwaitTermination blocks until Terminate has been called or ctx is
// canceled.
func (m *Machine) AwaitTermination(ctx context.Context) error {
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddGate starts a TCP+TLS listener at listenAddr, binding knocks
// presenting kind to auth/greeter; accepted hyperlanes are attached to
// the interchange registered under kind.
func (m *Machine) AddGate(listenAddr string, tlsConf *tls.Config, kind interchange.Kind, auth hyperlane.Authenticator, greeter hyperlane.Greeter) error {
	ic, ok := m.gateless.Select(kind)
	if !ok {
		return fmt.Errorf("machine: no interchange registered for %s: %w", kind, fault.ErrAddressing)
	}
	m.gate.Bind(kind.String(), auth, greeter, func(hl *hyperlane.TCPHyperlane, greet hyperlane.Greet) {
		ic.Add(interchange.Hyperway{Far: greet.Surface, Endpoint: hl})
	})
	ln, err := hyperlane.Listen(listenAddr, tlsConf, m.gate, m.log)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, ln)
	m.mu.Unlock()
	go ln.Serve(context.Background())
	return nil
}

// AddGateWS is AddGate's WebSocket-transport counterpart, for deployments
// where only HTTP-upgradable traffic reaches a star (e.g. behind a
// load balancer that won't forward raw TCP). It runs the identical
// handshake and binds into the same Gate and interchange as AddGate.
func (m *Machine) AddGateWS(listenAddr, path string, tlsConf *tls.Config, kind interchange.Kind, auth hyperlane.Authenticator, greeter hyperlane.Greeter) error {
	ic, ok := m.gateless.Select(kind)
	if !ok {
		return fmt.Errorf("machine: no interchange registered for %s: %w", kind, fault.ErrAddressing)
	}
	m.gate.Bind(kind.String(), auth, greeter, func(hl *hyperlane.TCPHyperlane, greet hyperlane.Greet) {
		ic.Add(interchange.Hyperway{Far: greet.Surface, Endpoint: hl})
	})
	ln, err := hyperlane.ListenWS(listenAddr, path, tlsConf, m.gate, m.log)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, ln)
	m.mu.Unlock()
	go func() {
		if err := ln.Serve(context.Background()); err != nil && m.log != nil {
			m.log.Warn("machine: ws gate serve exited")
		}
	}()
	return nil
}

// Knock dials addr and joins the remote gate's interchange under
// knock.InterchangeKind,
// attaching the resulting hyperlane to the local star's own interchange
// so replies route back through it.
func (m *Machine) Knock(ctx context.Context, star point.StarKey, addr string, tlsConf *tls.Config, self point.Surface, knock wave.Knock) (hyperlane.Greet, error) {
	st, ok := m.Star(star)
	if !ok {
		return hyperlane.Greet{}, fmt.Errorf("machine: unhosted star %s: %w", star, fault.ErrAddressing)
	}
	if knock.Nonce == "" {
		knock.Nonce = wave.NewID().String()
	}
	hl, greet, err := hyperlane.Dial(ctx, addr, tlsConf, self, knock, m.log)
	if err != nil {
		return hyperlane.Greet{}, err
	}
	st.Interchange.Add(interchange.Hyperway{Far: greet.Surface, Endpoint: hl})
	return greet, nil
}

// RegisterService names star as the host for a machine-local service,
// addressable later via SelectService.
func (m *Machine) RegisterService(name string, star point.StarKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[name] = star
}

// SelectService returns the star hosting the named service.
func (m *Machine) SelectService(name string) (point.StarKey, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.services[name]
	return k, ok
}

// SelectKind returns every star the machine hosts with the given role.
func (m *Machine) SelectKind(role point.Role) []point.StarKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []point.StarKey
	for key, st := range m.stars {
		if st.Config.Role == role {
			keys = append(keys, key)
		}
	}
	return keys
}

// EndpointFactory returns a constructor attaching new Endpoints to star's
// interchange, used by gates that need to hand off freshly accepted
// hyperlanes once a knock has been validated.
func (m *Machine) EndpointFactory(star point.StarKey) (func(hyperlane.Endpoint, point.Surface), bool) {
	st, ok := m.Star(star)
	if !ok {
		return nil, false
	}
	return func(ep hyperlane.Endpoint, far point.Surface) {
		st.Interchange.Add(interchange.Hyperway{Far: far, Endpoint: ep})
	}, true
}
