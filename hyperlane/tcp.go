// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hyperlane

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/starlane-io/starlane/fault"
	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/utils/linked"
	"github.com/starlane-io/starlane/wave"
)

// knockReplayWindow bounds how many recent Knock nonces a Listener keeps
// to reject immediate replays; the oldest nonce is evicted once the
// window fills.
const knockReplayWindow = 4096

// Authenticator validates the credentials carried in a Knock's Auth
// substance. Concrete implementations live with the machine/config
// packages; the zero-value AnonymousAuthenticator accepts everything.
type Authenticator interface {
	Authenticate(ctx context.Context, knock wave.Knock) error
}

// AnonymousAuthenticator accepts every Knock unconditionally.
type AnonymousAuthenticator struct{}

func (AnonymousAuthenticator) Authenticate(context.Context, wave.Knock) error { return nil }

// Greeter produces the Greet a gate returns to a knocking client once its
// Knock has authenticated, describing how the fabric now addresses it.
type Greeter interface {
	Greet(ctx context.Context, knock wave.Knock) (Greet, error)
}

// GreeterFunc adapts a plain function to a Greeter.
type GreeterFunc func(ctx context.Context, knock wave.Knock) (Greet, error)

func (f GreeterFunc) Greet(ctx context.Context, knock wave.Knock) (Greet, error) {
	return f(ctx, knock)
}

// Dial opens a TCP+TLS connection to addr, runs the connecting side of
// the handshake (spec §6.1: version exchange, Ok, then a Ping carrying
// knock as its body), and returns the resulting Endpoint plus the Greet
// the remote gate replied with.
func Dial(ctx context.Context, addr string, tlsConf *tls.Config, self point.Surface, knock wave.Knock, logger log.Logger) (*TCPHyperlane, Greet, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, Greet{}, fmt.Errorf("hyperlane: dial %s: %w", addr, fault.ErrTransport)
	}
	var tconn net.Conn = raw
	if tlsConf != nil {
		tconn = tls.Client(raw, tlsConf)
	}

	greet, err := connectHandshake(tconn, self, knock)
	if err != nil {
		tconn.Close()
		return nil, Greet{}, err
	}
	return newTCPHyperlane(ctx, tconn, logger), greet, nil
}

// connectHandshake runs the full connecting-side sequence over conn:
// version frame exchange and comparison, "Ok" text frames both ways, a
// Ping carrying knock, and finally reading back the Pong carrying Greet.
func connectHandshake(conn net.Conn, self point.Surface, knock wave.Knock) (Greet, error) {
	r := bufio.NewReader(conn)

	if err := wave.WriteFrame(conn, wave.WireVersion, []byte(ProtocolVersion)); err != nil {
		return Greet{}, fmt.Errorf("hyperlane: send version: %w", err)
	}
	kind, body, err := wave.ReadFrame(r)
	if err != nil {
		return Greet{}, fmt.Errorf("hyperlane: read version: %w", err)
	}
	if kind != wave.WireVersion {
		return Greet{}, fmt.Errorf("hyperlane: expected version frame, got %v: %w", kind, fault.ErrProtocol)
	}
	if string(body) != ProtocolVersion {
		return Greet{}, fmt.Errorf("hyperlane: version mismatch: local %s remote %s: %w", ProtocolVersion, body, fault.ErrProtocol)
	}

	if err := exchangeOk(conn, r); err != nil {
		return Greet{}, err
	}

	knockWave := wave.NewPing(self, point.Surface{}, wave.DirectedCore{Method: "Knock", Body: knock})
	if err := wave.Send(conn, knockWave); err != nil {
		return Greet{}, fmt.Errorf("hyperlane: send knock: %w", err)
	}

	kind, body, err = wave.ReadFrame(r)
	if err != nil {
		return Greet{}, fmt.Errorf("hyperlane: read greet: %w", err)
	}
	if kind != wave.WireWave {
		return Greet{}, fmt.Errorf("hyperlane: expected wave frame for greet: %w", fault.ErrProtocol)
	}
	decoded, err := wave.Decode(body)
	if err != nil {
		return Greet{}, fmt.Errorf("hyperlane: decode greet reply: %w", err)
	}
	reflected, ok := decoded.(*wave.Reflected)
	if !ok {
		return Greet{}, fmt.Errorf("hyperlane: greet reply is not reflected: %w", fault.ErrProtocol)
	}
	if reflected.Core.Status != 200 {
		return Greet{}, fmt.Errorf("hyperlane: knock rejected, status %d: %w", reflected.Core.Status, fault.ErrAuth)
	}
	return decodeGreet(reflected.Core.Body)
}

// exchangeOk writes an "Ok" text frame and expects one back, in either
// order-independent fashion (spec §6.1 step 4: "Both sides send Ok").
func exchangeOk(w net.Conn, r *bufio.Reader) error {
	if err := wave.WriteFrame(w, wave.WireText, []byte("Ok")); err != nil {
		return fmt.Errorf("hyperlane: send ok: %w", err)
	}
	kind, body, err := wave.ReadFrame(r)
	if err != nil {
		return fmt.Errorf("hyperlane: read ok: %w", err)
	}
	if kind != wave.WireText || string(body) != "Ok" {
		return fmt.Errorf("hyperlane: expected Ok text frame: %w", fault.ErrProtocol)
	}
	return nil
}

// replayGuard is a bounded, insertion-ordered set of recently-seen Knock
// nonces, shared by every hyperlane transport's accepting side (TCP and
// WebSocket alike) so an immediate replay of a captured handshake is
// rejected rather than re-authenticated.
type replayGuard struct {
	mu   sync.Mutex
	seen *linked.Hashmap[string, struct{}]
}

func newReplayGuard() *replayGuard {
	return &replayGuard{seen: linked.NewHashmap[string, struct{}]()}
}

// replayed reports whether nonce was already recorded within the replay
// window, recording it if not. A caller that never populated Knock.Nonce
// passes an empty nonce, which is never treated as a replay.
func (g *replayGuard) replayed(nonce string) bool {
	if nonce == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen.Get(nonce); ok {
		return true
	}
	g.seen.Put(nonce, struct{}{})
	for g.seen.Len() > knockReplayWindow {
		oldest, _, ok := g.seen.OldestEntry()
		if !ok {
			break
		}
		g.seen.Delete(oldest)
	}
	return false
}

// Listener accepts TCP+TLS connections and runs the accepting side of the
// handshake against a Gate for each one. It keeps a bounded, per-listener
// window of recently-seen Knock nonces so an immediate replay of a
// captured handshake is rejected rather than re-authenticated.
type Listener struct {
	ln      net.Listener
	tlsConf *tls.Config
	gate    *Gate
	log     log.Logger
	guard   *replayGuard
}

// Listen binds addr and returns a Listener serving conn accepts through
// gate. If tlsConf is non-nil, accepted connections are TLS-wrapped.
func Listen(addr string, tlsConf *tls.Config, gate *Gate, logger log.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("hyperlane: listen %s: %w", addr, fault.ErrTransport)
	}
	return &Listener{ln: ln, tlsConf: tlsConf, gate: gate, log: logger, guard: newReplayGuard()}, nil
}

// Addr reports the bound local address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Serve accepts connections until ctx is canceled or the listener closes,
// handshaking each one and handing the resulting hyperlane to the
// interchange callback l.gate has bound for the knock's kind.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()
	for {
		raw, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("hyperlane: accept: %w", fault.ErrTransport)
			}
		}
		go l.handle(ctx, raw)
	}
}

func (l *Listener) handle(ctx context.Context, raw net.Conn) {
	conn := raw
	if l.tlsConf != nil {
		conn = tls.Server(raw, l.tlsConf)
	}
	hl, greet, interchangeKind, err := acceptHandshake(ctx, conn, l.gate, l.guard, l.log)
	if err != nil {
		if l.log != nil {
			l.log.Warn("hyperlane: handshake failed", zap.Error(err))
		}
		conn.Close()
		return
	}
	l.gate.dispatch(interchangeKind, hl, greet)
}

// acceptHandshake runs the accepting side of the handshake: read version,
// reply version, exchange Ok, read the Knock-bearing Ping, reject an
// immediate replay of its nonce (via guard), validate and greet via gate,
// reply with a Pong carrying Greet, then hand back a live hyperlane
// muxing wave frames plus the Greet and interchange kind the knock bound
// to. conn need only implement net.Conn; both the TCP and WebSocket
// listeners adapt their transport to that interface and share this one
// handshake implementation.
func acceptHandshake(ctx context.Context, conn net.Conn, gate *Gate, guard *replayGuard, logger log.Logger) (*TCPHyperlane, Greet, string, error) {
	r := bufio.NewReader(conn)

	kind, body, err := wave.ReadFrame(r)
	if err != nil {
		return nil, Greet{}, "", fmt.Errorf("hyperlane: read version: %w", err)
	}
	if kind != wave.WireVersion {
		return nil, Greet{}, "", fmt.Errorf("hyperlane: expected version frame: %w", fault.ErrProtocol)
	}
	remoteVersion := string(body)
	if err := wave.WriteFrame(conn, wave.WireVersion, []byte(ProtocolVersion)); err != nil {
		return nil, Greet{}, "", fmt.Errorf("hyperlane: send version: %w", err)
	}
	if remoteVersion != ProtocolVersion {
		return nil, Greet{}, "", fmt.Errorf("hyperlane: version mismatch: local %s remote %s: %w", ProtocolVersion, remoteVersion, fault.ErrProtocol)
	}

	if err := exchangeOk(conn, r); err != nil {
		return nil, Greet{}, "", err
	}

	kind, body, err = wave.ReadFrame(r)
	if err != nil {
		return nil, Greet{}, "", fmt.Errorf("hyperlane: read knock: %w", err)
	}
	if kind != wave.WireWave {
		return nil, Greet{}, "", fmt.Errorf("hyperlane: expected wave frame for knock: %w", fault.ErrProtocol)
	}
	decoded, err := wave.Decode(body)
	if err != nil {
		return nil, Greet{}, "", fmt.Errorf("hyperlane: decode knock: %w", err)
	}
	directed, ok := decoded.(*wave.Directed)
	if !ok || directed.Core.Method != "Knock" {
		return nil, Greet{}, "", fmt.Errorf("hyperlane: expected knock ping: %w", fault.ErrProtocol)
	}
	knock, err := wave.ToSubstanceRef[wave.Knock](directed.Core.Body)
	if err != nil {
		return nil, Greet{}, "", fmt.Errorf("hyperlane: knock body: %w", err)
	}

	if guard.replayed(knock.Nonce) {
		replayErr := fmt.Errorf("hyperlane: replayed knock nonce: %w", fault.ErrAuth)
		reject := wave.NewPong(point.Surface{}, directed, wave.ReflectedCore{Status: fault.Status(fault.Auth), Body: wave.Text(replayErr.Error())})
		_ = wave.Send(conn, reject)
		return nil, Greet{}, "", replayErr
	}

	greet, interchangeKind, authErr := gate.knock(ctx, knock)
	if authErr != nil {
		reject := wave.NewPong(point.Surface{}, directed, wave.ReflectedCore{Status: fault.Status(fault.Auth), Body: wave.Text(authErr.Error())})
		_ = wave.Send(conn, reject)
		return nil, Greet{}, "", fmt.Errorf("hyperlane: knock rejected: %w", authErr)
	}

	pong := wave.NewPong(point.Surface{}, directed, wave.ReflectedCore{Status: 200, Body: encodeGreet(greet)})
	if err := wave.Send(conn, pong); err != nil {
		return nil, Greet{}, "", fmt.Errorf("hyperlane: send greet: %w", err)
	}

	return newTCPHyperlane(ctx, conn, logger), greet, interchangeKind, nil
}
