// Package relay is a minimal WebSocket server built directly on TCP. It
// accepts extension connections, performs the upgrade handshake and emits
// every JSON text or binary message it reassembles.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/gaspardpetit/nfrx-browser/core/logx"
	"github.com/gaspardpetit/nfrx-browser/internal/metrics"
	"github.com/gaspardpetit/nfrx-browser/internal/wsframe"
)

var (
	// ErrUnknownConnection is returned when sending to an id that is not tracked.
	ErrUnknownConnection = errors.New("relay: unknown connection")
	// ErrNotReady is returned when sending before the handshake completed.
	ErrNotReady = errors.New("relay: connection not ready")
	// ErrNoPort is returned by Start when every port in the range failed to bind.
	ErrNoPort = errors.New("relay: no port available")
	// ErrServerClosed is returned by Listen after Stop.
	ErrServerClosed = errors.New("relay: server closed")
)

const (
	closeProtocolError = 1002
	closeTooBig        = 1009
	closeGoingAway     = 1001
	writeTimeout       = 5 * time.Second
)

// MessageHandler receives one decoded JSON message and the id of the
// connection it arrived on.
type MessageHandler func(msg json.RawMessage, connID string)

// Options tune a Server. The zero value listens on 127.0.0.1 with a 16 MiB frame cap.
type Options struct {
	Host           string
	MaxPayload     uint64
	MaxHeaderBytes int
}

// Server tracks all live connections and fans inbound messages out to handlers.
type Server struct {
	opts Options

	mu        sync.Mutex
	ln        net.Listener
	conns     map[string]*conn
	seq       uint64
	closed    bool
	onMessage []MessageHandler
	onConnect []func(connID string)
	onDisconn []func(connID string)
	wg        sync.WaitGroup
}

type conn struct {
	id     string
	nc     net.Conn
	remote string

	wmu sync.Mutex

	// guarded by Server.mu
	ready     bool
	readySeq  uint64
	connected time.Time
}

// ConnInfo describes a tracked connection.
type ConnInfo struct {
	ID          string    `json:"id"`
	Remote      string    `json:"remote"`
	Ready       bool      `json:"ready"`
	ConnectedAt time.Time `json:"connected_at"`
}

// New constructs a Server. Handlers should be registered before Listen.
func New(opts Options) *Server {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.MaxPayload == 0 {
		opts.MaxPayload = 16 << 20
	}
	return &Server{opts: opts, conns: map[string]*conn{}}
}

// OnMessage registers h for every parsed inbound message across all connections.
func (s *Server) OnMessage(h MessageHandler) {
	s.mu.Lock()
	s.onMessage = append(s.onMessage, h)
	s.mu.Unlock()
}

// OnConnect registers h to run once a connection completes its handshake.
func (s *Server) OnConnect(h func(connID string)) {
	s.mu.Lock()
	s.onConnect = append(s.onConnect, h)
	s.mu.Unlock()
}

// OnDisconnect registers h to run when a handshaken connection goes away.
func (s *Server) OnDisconnect(h func(connID string)) {
	s.mu.Lock()
	s.onDisconn = append(s.onDisconn, h)
	s.mu.Unlock()
}

// Listen binds the given port and starts accepting in the background.
// Port 0 picks a free port; see Port.
func (s *Server) Listen(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	if s.ln != nil {
		return fmt.Errorf("relay: already listening on %s", s.ln.Addr())
	}
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("relay: listen %s: %w", addr, err)
	}
	s.ln = ln
	s.wg.Add(1)
	go s.acceptLoop(ln)
	logx.Log.Info().Str("component", "relay").Str("addr", ln.Addr().String()).Msg("websocket relay listening")
	return nil
}

// Start tries attempts consecutive ports from basePort and returns the bound one.
// Failing every port is fatal for the caller.
func (s *Server) Start(basePort, attempts int) (int, error) {
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		port := basePort + i
		err := s.Listen(port)
		if err == nil {
			return s.Port(), nil
		}
		if errors.Is(err, ErrServerClosed) {
			return 0, err
		}
		last = err
		logx.Log.Warn().Str("component", "relay").Int("port", port).Err(err).Msg("port unavailable, trying next")
	}
	return 0, fmt.Errorf("%w in %d-%d: %w", ErrNoPort, basePort, basePort+attempts-1, last)
}

// Port returns the bound TCP port, or 0 before Listen.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return 0
	}
	if a, ok := s.ln.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logx.Log.Warn().Str("component", "relay").Err(err).Msg("accept failed")
			time.Sleep(10 * time.Millisecond)
			continue
		}
		c := &conn{id: uuid.NewString(), nc: nc, remote: nc.RemoteAddr().String(), connected: time.Now()}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = nc.Close()
			return
		}
		s.conns[c.id] = c
		s.wg.Add(1)
		s.mu.Unlock()
		logx.Log.Debug().Str("component", "relay").Str("conn_id", c.id).Str("remote", c.remote).Msg("tcp connection accepted")
		go s.serve(c)
	}
}

// serve owns all per-connection parsing state; nothing else touches it.
func (s *Server) serve(c *conn) {
	defer s.wg.Done()
	defer s.drop(c)

	neg := wsframe.Negotiator{MaxHeaderBytes: s.opts.MaxHeaderBytes}
	framer := wsframe.NewFramer(s.opts.MaxPayload)
	asm := wsframe.Assembler{MaxMessage: int(s.opts.MaxPayload)}
	buf := make([]byte, 32<<10)

	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if !neg.Done() {
				if !s.handshake(c, &neg, chunk) {
					return
				}
				continue
			}
			frames, ferr := framer.Feed(chunk)
			for _, f := range frames {
				if !s.dispatch(c, &asm, f) {
					return
				}
			}
			if ferr != nil {
				s.protocolError(c, ferr)
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				logx.Log.Debug().Str("component", "relay").Str("conn_id", c.id).Msg("connection closed by peer")
			} else {
				logx.Log.Warn().Str("component", "relay").Str("conn_id", c.id).Err(err).Msg("socket error")
			}
			return
		}
	}
}

func (s *Server) handshake(c *conn, neg *wsframe.Negotiator, chunk []byte) bool {
	resp, err := neg.Feed(chunk)
	if err != nil {
		metrics.RecordHandshake(false)
		logx.Log.Warn().Str("component", "relay").Str("conn_id", c.id).Str("remote", c.remote).Err(err).Msg("handshake rejected")
		return false
	}
	if resp == nil {
		return true
	}
	if err := c.write(resp); err != nil {
		logx.Log.Warn().Str("component", "relay").Str("conn_id", c.id).Err(err).Msg("handshake write failed")
		return false
	}
	if d := neg.Discarded(); d > 0 {
		logx.Log.Warn().Str("component", "relay").Str("conn_id", c.id).Int("bytes", d).Msg("discarded bytes sent before handshake response")
	}
	s.mu.Lock()
	s.seq++
	c.ready = true
	c.readySeq = s.seq
	count := s.readyCountLocked()
	handlers := append([]func(string){}, s.onConnect...)
	s.mu.Unlock()

	metrics.RecordHandshake(true)
	metrics.SetConnections(count)
	logx.Log.Info().Str("component", "relay").Str("conn_id", c.id).Str("remote", c.remote).
		Str("origin", neg.Header("Origin")).Int("connections", count).Msg("extension connected")
	for _, h := range handlers {
		h(c.id)
	}
	return true
}

// dispatch handles one frame and reports whether the connection stays open.
func (s *Server) dispatch(c *conn, asm *wsframe.Assembler, f wsframe.Frame) bool {
	metrics.RecordFrame("in", f.Opcode.String())
	if !f.Masked {
		logx.Log.Debug().Str("component", "relay").Str("conn_id", c.id).Str("opcode", f.Opcode.String()).Msg("unmasked client frame")
	}
	switch f.Opcode {
	case wsframe.OpText, wsframe.OpBinary, wsframe.OpContinuation:
		msg, done, err := asm.Push(f)
		if err != nil {
			s.protocolError(c, err)
			return false
		}
		if done {
			s.emit(c, msg.Data)
		}
		return true
	case wsframe.OpClose:
		code, reason := wsframe.ParseClose(f.Payload)
		logx.Log.Debug().Str("component", "relay").Str("conn_id", c.id).Int("code", int(code)).Str("reason", reason).Msg("close frame received")
		_ = c.writeFrame(wsframe.OpClose, wsframe.ClosePayload(code, ""))
		return false
	case wsframe.OpPing:
		if err := c.writeFrame(wsframe.OpPong, f.Payload); err != nil {
			logx.Log.Warn().Str("component", "relay").Str("conn_id", c.id).Err(err).Msg("pong write failed")
			return false
		}
		return true
	case wsframe.OpPong:
		logx.Log.Trace().Str("component", "relay").Str("conn_id", c.id).Msg("pong received")
		return true
	default:
		logx.Log.Warn().Str("component", "relay").Str("conn_id", c.id).Int("opcode", int(f.Opcode)).Msg("ignoring frame with unknown opcode")
		return true
	}
}

func (s *Server) emit(c *conn, data []byte) {
	if !utf8.Valid(data) || !json.Valid(data) {
		logx.Log.Warn().Str("component", "relay").Str("conn_id", c.id).Int("bytes", len(data)).Str("error_code", "MCP_SCHEMA_ERROR").Msg("dropping non-JSON message")
		return
	}
	s.mu.Lock()
	handlers := append([]MessageHandler{}, s.onMessage...)
	s.mu.Unlock()
	for _, h := range handlers {
		h(json.RawMessage(data), c.id)
	}
}

func (s *Server) protocolError(c *conn, err error) {
	metrics.RecordProtocolError()
	code := uint16(closeProtocolError)
	errCode := "MCP_SCHEMA_ERROR"
	if errors.Is(err, wsframe.ErrFrameTooLarge) {
		code = closeTooBig
		errCode = "MCP_LIMIT_EXCEEDED"
	}
	logx.Log.Warn().Str("component", "relay").Str("conn_id", c.id).Str("error_code", errCode).Err(err).Msg("protocol error, closing connection")
	_ = c.writeFrame(wsframe.OpClose, wsframe.ClosePayload(code, "protocol error"))
}

func (s *Server) drop(c *conn) {
	_ = c.nc.Close()
	s.mu.Lock()
	_, tracked := s.conns[c.id]
	delete(s.conns, c.id)
	wasReady := c.ready
	c.ready = false
	count := s.readyCountLocked()
	handlers := append([]func(string){}, s.onDisconn...)
	s.mu.Unlock()
	if !tracked || !wasReady {
		return
	}
	metrics.SetConnections(count)
	logx.Log.Info().Str("component", "relay").Str("conn_id", c.id).Int("connections", count).Msg("extension disconnected")
	for _, h := range handlers {
		h(c.id)
	}
}

// SendMessage serializes msg as JSON and writes it as one text frame.
// []byte and json.RawMessage values are sent as-is.
func (s *Server) SendMessage(connID string, msg any) error {
	var data []byte
	switch v := msg.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		b, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("relay: marshal: %w", err)
		}
		data = b
	}
	s.mu.Lock()
	c := s.conns[connID]
	ready := c != nil && c.ready
	s.mu.Unlock()
	if c == nil {
		logx.Log.Warn().Str("component", "relay").Str("conn_id", connID).Msg("send to unknown connection")
		return ErrUnknownConnection
	}
	if !ready {
		logx.Log.Warn().Str("component", "relay").Str("conn_id", connID).Msg("send before handshake completed")
		return ErrNotReady
	}
	return c.writeFrame(wsframe.OpText, data)
}

// Broadcast sends msg to every ready connection and returns how many succeeded.
func (s *Server) Broadcast(msg any) int {
	sent := 0
	for _, info := range s.Connections() {
		if !info.Ready {
			continue
		}
		if err := s.SendMessage(info.ID, msg); err == nil {
			sent++
		}
	}
	return sent
}

// Primary returns the most recently connected ready connection.
func (s *Server) Primary() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *conn
	for _, c := range s.conns {
		if c.ready && (best == nil || c.readySeq > best.readySeq) {
			best = c
		}
	}
	if best == nil {
		return "", false
	}
	return best.id, true
}

// IsConnected reports whether connID is tracked and handshaken.
func (s *Server) IsConnected(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conns[connID]
	return c != nil && c.ready
}

// ConnectionCount returns the number of connections with a completed handshake.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyCountLocked()
}

func (s *Server) readyCountLocked() int {
	n := 0
	for _, c := range s.conns {
		if c.ready {
			n++
		}
	}
	return n
}

// Connections returns a snapshot of tracked connections.
func (s *Server) Connections() []ConnInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConnInfo, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, ConnInfo{ID: c.id, Remote: c.remote, Ready: c.ready, ConnectedAt: c.connected})
	}
	return out
}

// Stop closes every connection and the listener, then waits for the
// per-connection goroutines to exit.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ln := s.ln
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range conns {
		_ = c.writeFrame(wsframe.OpClose, wsframe.ClosePayload(closeGoingAway, "shutdown"))
		_ = c.nc.Close()
	}
	s.wg.Wait()
	logx.Log.Info().Str("component", "relay").Msg("websocket relay stopped")
}

func (c *conn) writeFrame(op wsframe.Opcode, payload []byte) error {
	if err := c.write(wsframe.Encode(payload, op, true)); err != nil {
		return err
	}
	metrics.RecordFrame("out", op.String())
	return nil
}

func (c *conn) write(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.nc.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := c.nc.Write(b)
	return err
}
