// Package transport owns the port-43 listener: one query per connection,
// a single line in, a text response out, then close.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/opennic/whoisd/internal/whois/common/log"
	"github.com/opennic/whoisd/internal/whois/services/responder"
)

// maxQueryBytes bounds the query line. Domain names are short; anything
// longer is a misbehaving client.
const maxQueryBytes = 256

// TCPTransport implements the historical WHOIS wire convention: plaintext
// TCP, the client sends one domain line, the server writes the full response
// and closes. It handles socket lifecycle and line framing while delegating
// all query logic to the service layer.
type TCPTransport struct {
	addr         string
	logger       log.Logger
	readTimeout  time.Duration
	writeTimeout time.Duration
	guard        *AcceptGuard

	ln net.Listener

	// Synchronization for graceful shutdown
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
}

// TCPOpts configures the transport.
type TCPOpts struct {
	// ReadTimeout bounds the wait for the client's query line; a stalled
	// read closes the connection without touching quota state.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing the response back.
	WriteTimeout time.Duration

	// Guard, when non-nil, is consulted per accepted connection before any
	// handler work; refused connections are closed immediately.
	Guard *AcceptGuard
}

// NewTCPTransport creates a TCP transport for the given address.
func NewTCPTransport(addr string, logger log.Logger, opts TCPOpts) *TCPTransport {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &TCPTransport{
		addr:         addr,
		logger:       logger,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
		guard:        opts.Guard,
		stopCh:       make(chan struct{}),
	}
}

// Start binds the listening socket and launches the accept loop. A bind
// failure (port taken, permission denied) is returned to the caller so
// startup can fail with a clear diagnostic.
func (t *TCPTransport) Start(ctx context.Context, handler responder.QueryResponder) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("TCP transport already running")
	}

	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to bind TCP socket on %s: %w", t.addr, err)
	}

	t.ln = ln
	t.running = true

	t.logger.Info(map[string]any{
		"transport": "tcp",
		"address":   t.addr,
	}, "WHOIS transport started")

	go t.acceptLoop(ctx, handler)

	return nil
}

// Stop gracefully shuts down the transport.
func (t *TCPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}

	close(t.stopCh)

	var closeErr error
	if t.ln != nil {
		closeErr = t.ln.Close()
	}
	t.running = false

	t.logger.Info(map[string]any{
		"transport": "tcp",
		"address":   t.addr,
	}, "WHOIS transport stopped")

	return closeErr
}

// Address returns the network address the transport is bound to. After
// Start it reflects the actual listener address, so a ":0" configuration
// reports the assigned port.
func (t *TCPTransport) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.ln != nil {
		return t.ln.Addr().String()
	}
	return t.addr
}

// acceptLoop serves connections until the listener closes. A failure on one
// connection never affects another or the loop's ability to accept.
func (t *TCPTransport) acceptLoop(ctx context.Context, handler responder.QueryResponder) {
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			select {
			case <-t.stopCh:
				return
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.logger.Warn(map[string]any{
				"error": err.Error(),
			}, "Failed to accept connection")
			continue
		}

		if t.guard != nil && !t.guard.Allow(hostOf(conn.RemoteAddr())) {
			t.logger.Debug(map[string]any{
				"client": conn.RemoteAddr().String(),
			}, "Connection refused by accept guard")
			_ = conn.Close()
			continue
		}

		go t.handleConn(ctx, conn, handler)
	}
}

// handleConn runs one connection end to end: read the query line, invoke the
// handler, close. Panics are contained so a bad query cannot take the
// process down.
func (t *TCPTransport) handleConn(ctx context.Context, conn net.Conn, handler responder.QueryResponder) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error(map[string]any{
				"client": conn.RemoteAddr().String(),
				"panic":  fmt.Sprintf("%v", r),
			}, "Recovered panic in connection handler")
		}
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(t.readTimeout))

	query, err := readQueryLine(conn)
	if err != nil {
		t.logger.Warn(map[string]any{
			"client": conn.RemoteAddr().String(),
			"error":  err.Error(),
		}, "Failed to read query line")
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))

	if err := handler.HandleQuery(ctx, query, conn.RemoteAddr(), conn); err != nil {
		t.logger.Warn(map[string]any{
			"client": conn.RemoteAddr().String(),
			"error":  err.Error(),
		}, "Failed to write response")
	}
}

// readQueryLine reads the single query line a WHOIS client sends. EOF after
// some bytes is accepted (clients that close the write side without a
// newline), an overlong line or an empty query is not.
func readQueryLine(conn net.Conn) (string, error) {
	br := bufio.NewReaderSize(conn, maxQueryBytes)
	line, err := br.ReadSlice('\n')
	switch {
	case errors.Is(err, bufio.ErrBufferFull):
		return "", fmt.Errorf("query line exceeds %d bytes", maxQueryBytes)
	case err != nil && len(line) == 0:
		return "", fmt.Errorf("read query line: %w", err)
	}

	query := strings.TrimSpace(strings.TrimRight(string(line), "\r\n"))
	if query == "" {
		return "", fmt.Errorf("empty query line")
	}
	return query, nil
}

// hostOf strips the port from a peer address.
func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr.String()); err == nil {
		return host
	}
	return addr.String()
}
