// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hyperlane

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/starlane-io/starlane/fault"
	"github.com/starlane-io/starlane/point"
	"github.com/starlane-io/starlane/wave"
)

// wsConn adapts a *websocket.Conn to net.Conn, letting the version/Ok/
// Knock handshake and the frame codec both run unmodified over a
// WebSocket transport: each WriteFrame call becomes exactly one binary
// WebSocket message, and Read drains the current message before asking
// for the next one, the same way a TCP stream would hand back whatever
// bytes are currently available.
type wsConn struct {
	*websocket.Conn
	reader io.Reader
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{Conn: c}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			_, r, err := c.NextReader()
			if err != nil {
				return 0, fmt.Errorf("hyperlane: ws read: %w", err)
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, fmt.Errorf("hyperlane: ws write: %w", err)
	}
	return len(p), nil
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.Conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.Conn.SetWriteDeadline(t)
}

// DialWS opens a WebSocket connection to urlStr (ws:// or wss://) and runs
// the same connecting-side handshake Dial runs over raw TCP, for
// deployments where only HTTP-upgradable traffic reaches a star (spec
// §6.1's handshake sequence is transport-agnostic; only the underlying
// byte pipe differs).
func DialWS(ctx context.Context, urlStr string, tlsConf *tls.Config, self point.Surface, knock wave.Knock, logger log.Logger) (*TCPHyperlane, Greet, error) {
	dialer := websocket.Dialer{TLSClientConfig: tlsConf, HandshakeTimeout: 10 * time.Second}
	raw, _, err := dialer.DialContext(ctx, urlStr, nil)
	if err != nil {
		return nil, Greet{}, fmt.Errorf("hyperlane: ws dial %s: %w", urlStr, fault.ErrTransport)
	}
	conn := newWSConn(raw)

	greet, err := connectHandshake(conn, self, knock)
	if err != nil {
		conn.Close()
		return nil, Greet{}, err
	}
	return newTCPHyperlane(ctx, conn, logger), greet, nil
}

// WSListener accepts hyperlane connections over an HTTP WebSocket upgrade
// instead of a raw TCP dial, for deployments that only forward ws/wss
// (e.g. behind a load balancer that speaks HTTP). It runs the identical
// handshake and frame codec as Listener via the shared acceptHandshake,
// and shares its replay-window guard type.
type WSListener struct {
	ln       net.Listener
	gate     *Gate
	log      log.Logger
	guard    *replayGuard
	upgrader websocket.Upgrader
	server   *http.Server
}

// ListenWS binds addr and returns a WSListener upgrading every request on
// path to a WebSocket and handshaking it against gate. tlsConf, if
// non-nil, is used for Serve's TLS variant.
func ListenWS(addr, path string, tlsConf *tls.Config, gate *Gate, logger log.Logger) (*WSListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("hyperlane: ws listen %s: %w", addr, fault.ErrTransport)
	}
	l := &WSListener{
		ln:    ln,
		gate:  gate,
		log:   logger,
		guard: newReplayGuard(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, l.upgrade)
	l.server = &http.Server{Handler: mux, TLSConfig: tlsConf}
	return l, nil
}

// Addr reports the bound local address.
func (l *WSListener) Addr() net.Addr { return l.ln.Addr() }

// Serve runs the HTTP server over the already-bound listener until ctx is
// canceled, upgrading and handshaking every incoming connection. If
// tlsConf was supplied to ListenWS, ServeTLS is used with certificates
// taken from it.
func (l *WSListener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = l.server.Close()
	}()
	var err error
	if l.server.TLSConfig != nil {
		err = l.server.ServeTLS(l.ln, "", "")
	} else {
		err = l.server.Serve(l.ln)
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("hyperlane: ws serve: %w", fault.ErrTransport)
	}
	return nil
}

// Close stops the HTTP server immediately.
func (l *WSListener) Close() error { return l.server.Close() }

func (l *WSListener) upgrade(w http.ResponseWriter, r *http.Request) {
	raw, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := newWSConn(raw)
	hl, greet, interchangeKind, err := acceptHandshake(r.Context(), conn, l.gate, l.guard, l.log)
	if err != nil {
		if l.log != nil {
			l.log.Warn("hyperlane: ws handshake failed", zap.Error(err))
		}
		conn.Close()
		return
	}
	l.gate.dispatch(interchangeKind, hl, greet)
}

var _ net.Conn = (*wsConn)(nil)
