// Package mcpbroker correlates JSON-RPC requests from the stdio host with
// responses from the browser extension and queues requests while no
// extension is connected.
package mcpbroker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gaspardpetit/nfrx-browser/core/logx"
	"github.com/gaspardpetit/nfrx-browser/internal/inflight"
	"github.com/gaspardpetit/nfrx-browser/internal/mcpwire"
	"github.com/gaspardpetit/nfrx-browser/internal/metrics"
	"github.com/gaspardpetit/nfrx-browser/internal/tools"
)

// DefaultTimeout bounds how long a forwarded request waits for its response.
const DefaultTimeout = 30 * time.Second

var (
	// ErrTimeout means no response arrived before the deadline.
	ErrTimeout = errors.New("mcpbroker: request timed out")
	// ErrDisconnected means the extension connection closed first.
	ErrDisconnected = errors.New("mcpbroker: extension disconnected")
	// ErrNotConnected means there is no extension to send to.
	ErrNotConnected = errors.New("mcpbroker: extension not connected")
	// ErrDuplicateID means a request with the same id is already pending.
	ErrDuplicateID = errors.New("mcpbroker: duplicate request id")
	// ErrBrokerClosed means the broker is shutting down.
	ErrBrokerClosed = errors.New("mcpbroker: closed")
)

// Transport delivers messages to extension connections.
// *relay.Server satisfies it.
type Transport interface {
	Primary() (string, bool)
	SendMessage(connID string, msg any) error
}

// Status tags the outcome of Forward.
type Status int

const (
	// StatusResponse means the extension answered.
	StatusResponse Status = iota
	// StatusQueued means the request waits in the outbound queue.
	StatusQueued
)

func (s Status) String() string {
	if s == StatusQueued {
		return "queued"
	}
	return "response"
}

// Reply is the result of forwarding one request.
type Reply struct {
	Status    Status
	Response  *mcpwire.Response
	QueueSize int
}

// Options configures a Broker.
type Options struct {
	Timeout   time.Duration
	QueueSize int
	// Local answers methods without contacting the extension.
	Local tools.Table
	// Emit writes one line to the stdio host.
	Emit func(line []byte)
}

type outcome struct {
	resp *mcpwire.Response
	err  error
}

type pendingRequest struct {
	key    string
	id     json.RawMessage
	method string
	connID string
	start  time.Time
	timer  *time.Timer
	done   chan outcome
}

func (p *pendingRequest) settle(o outcome) {
	select {
	case p.done <- o:
	default:
	}
}

// Broker owns the pending request table and the outbound queue.
type Broker struct {
	transport Transport
	opts      Options
	queue     *OutboundQueue
	inflight  inflight.Counter

	mu       sync.Mutex
	pending  map[string]*pendingRequest
	closed   bool
	flushing bool
}

// New constructs a Broker sending through t.
func New(t Transport, opts Options) *Broker {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Local == nil {
		opts.Local = tools.NewRegistry()
	}
	if opts.Emit == nil {
		opts.Emit = func([]byte) {}
	}
	return &Broker{
		transport: t,
		opts:      opts,
		queue:     NewOutboundQueue(opts.QueueSize),
		pending:   map[string]*pendingRequest{},
	}
}

// Queue exposes the outbound queue.
func (b *Broker) Queue() *OutboundQueue { return b.queue }

// Pending returns the number of requests awaiting a response.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Forward sends req to the primary extension connection and waits for the
// matching response. With no connection the request is queued and Forward
// returns StatusQueued immediately. Cancelling ctx stops the wait but the
// pending entry remains until it is answered or times out.
func (b *Broker) Forward(ctx context.Context, req *mcpwire.Request) (Reply, error) {
	p, queued, err := b.dispatch(req)
	if err != nil {
		return Reply{}, err
	}
	if queued {
		return Reply{Status: StatusQueued, QueueSize: b.queue.Len()}, nil
	}
	return b.wait(ctx, p)
}

func (b *Broker) wait(ctx context.Context, p *pendingRequest) (Reply, error) {
	select {
	case o := <-p.done:
		if o.err != nil {
			return Reply{}, o.err
		}
		return Reply{Status: StatusResponse, Response: o.resp}, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// dispatch sends req or queues it. A send failure queues the request.
// While older requests wait in the queue, req goes behind them so the
// extension sees requests in submission order.
func (b *Broker) dispatch(req *mcpwire.Request) (*pendingRequest, bool, error) {
	connID, ok := b.transport.Primary()
	if !ok {
		b.enqueue(req)
		return nil, true, nil
	}
	b.mu.Lock()
	if b.flushing {
		b.enqueue(req)
		b.mu.Unlock()
		return nil, true, nil
	}
	backlog := b.queue.Len() > 0
	b.mu.Unlock()
	if backlog {
		b.enqueue(req)
		b.Flush()
		return nil, true, nil
	}
	p, err := b.register(req, connID)
	if err != nil {
		return nil, false, err
	}
	if err := b.transport.SendMessage(connID, req.Raw()); err != nil {
		b.remove(p)
		logx.Log.Warn().Str("component", "broker").Str("conn_id", connID).Str("method", req.Method).Err(err).Msg("send failed; queueing")
		b.enqueue(req)
		return nil, true, nil
	}
	logx.Log.Debug().Str("component", "broker").Str("conn_id", connID).Str("id", mcpwire.IDString(req.ID)).Str("method", req.Method).Msg("request forwarded")
	return p, false, nil
}

func (b *Broker) enqueue(req *mcpwire.Request) {
	dropped, evicted := b.queue.Add(req)
	if evicted {
		metrics.RecordQueueDrop()
		logx.Log.Warn().Str("component", "broker").Str("id", mcpwire.IDString(dropped.Request.ID)).Str("method", dropped.Request.Method).Msg("outbound queue full; dropped oldest")
	}
	metrics.SetQueueDepth(b.queue.Len())
	metrics.RecordRequest(req.Method, metrics.OutcomeQueued, 0)
	logx.Log.Info().Str("component", "broker").Str("id", mcpwire.IDString(req.ID)).Str("method", req.Method).Int("queue_size", b.queue.Len()).Str("error_code", "MCP_PROVIDER_UNAVAILABLE").Msg("extension not connected; request queued")
}

func (b *Broker) register(req *mcpwire.Request, connID string) (*pendingRequest, error) {
	key := mcpwire.IDKey(req.ID)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	if _, exists := b.pending[key]; exists {
		return nil, ErrDuplicateID
	}
	p := &pendingRequest{
		key:    key,
		id:     req.ID,
		method: req.Method,
		connID: connID,
		start:  time.Now(),
		done:   make(chan outcome, 1),
	}
	p.timer = time.AfterFunc(b.opts.Timeout, func() { b.expire(p) })
	b.pending[key] = p
	metrics.SetPending(len(b.pending))
	return p, nil
}

// take removes p if it is still the pending entry for its key.
func (b *Broker) take(p *pendingRequest) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending[p.key] != p {
		return false
	}
	delete(b.pending, p.key)
	metrics.SetPending(len(b.pending))
	return true
}

func (b *Broker) remove(p *pendingRequest) {
	if b.take(p) {
		p.timer.Stop()
	}
}

func (b *Broker) expire(p *pendingRequest) {
	if !b.take(p) {
		return
	}
	metrics.RecordRequest(p.method, metrics.OutcomeTimeout, time.Since(p.start))
	logx.Log.Warn().Str("component", "broker").Str("conn_id", p.connID).Str("id", mcpwire.IDString(p.id)).Str("method", p.method).Str("error_code", "MCP_TIMEOUT").Msg("request timed out")
	p.settle(outcome{err: ErrTimeout})
}

// HandleMessage processes one message from an extension connection.
func (b *Broker) HandleMessage(msg json.RawMessage, connID string) {
	env, err := mcpwire.Parse(msg)
	if err != nil {
		logx.Log.Warn().Str("component", "broker").Str("conn_id", connID).Str("error_code", "MCP_SCHEMA_ERROR").Err(err).Msg("dropping invalid message from extension")
		return
	}
	switch m := env.(type) {
	case *mcpwire.Response:
		b.resolve(m, connID)
	case *mcpwire.Request:
		logx.Log.Debug().Str("component", "broker").Str("conn_id", connID).Str("method", m.Method).Msg("rejecting extension-originated request")
		out := mcpwire.EncodeError(m.ID, mcpwire.CodeMethodNotFound, "Method not found: "+m.Method, nil)
		if err := b.transport.SendMessage(connID, json.RawMessage(out)); err != nil {
			logx.Log.Debug().Str("component", "broker").Str("conn_id", connID).Err(err).Msg("reply to extension failed")
		}
	case *mcpwire.Notification:
		logx.Log.Debug().Str("component", "broker").Str("conn_id", connID).Str("method", m.Method).Msg("extension notification")
	}
}

func (b *Broker) resolve(resp *mcpwire.Response, connID string) {
	key := mcpwire.IDKey(resp.ID)
	b.mu.Lock()
	p := b.pending[key]
	if p != nil {
		delete(b.pending, key)
		metrics.SetPending(len(b.pending))
	}
	b.mu.Unlock()
	if p == nil {
		logx.Log.Debug().Str("component", "broker").Str("conn_id", connID).Str("id", mcpwire.IDString(resp.ID)).Msg("dropping unmatched response")
		return
	}
	p.timer.Stop()
	outcomeLabel := metrics.OutcomeResult
	if resp.Error != nil {
		outcomeLabel = metrics.OutcomeError
		logx.Log.Debug().Str("component", "broker").Str("conn_id", connID).Str("id", mcpwire.IDString(resp.ID)).
			Int("code", resp.Error.Code).Str("error_code", "MCP_UPSTREAM_ERROR").Msg(resp.Error.Message)
	}
	metrics.RecordRequest(p.method, outcomeLabel, time.Since(p.start))
	p.settle(outcome{resp: resp})
}

// HandleConnect replays the outbound queue to the newly ready connection.
// Responses to replayed requests are emitted to the stdio host.
func (b *Broker) HandleConnect(connID string) {
	logx.Log.Info().Str("component", "broker").Str("conn_id", connID).Int("queued", b.queue.Len()).Msg("extension connected")
	sent, requeued := b.Flush()
	if sent+requeued > 0 {
		logx.Log.Info().Str("component", "broker").Int("sent", sent).Int("requeued", requeued).Msg("outbound queue replayed")
	}
}

// Flush sends every queued request in FIFO order. Requests queued while
// the flush runs are sent after the ones before them. Requests that fail
// to send are appended to the back of the queue after the pass. Waiting
// for replies happens off the caller's goroutine. A Flush that starts
// while another is running returns immediately; the running one picks up
// whatever is queued.
func (b *Broker) Flush() (sent, requeued int) {
	b.mu.Lock()
	if b.flushing {
		b.mu.Unlock()
		return 0, 0
	}
	b.flushing = true
	b.mu.Unlock()
	var failed []QueuedRequest
	for {
		b.mu.Lock()
		items := b.queue.Take()
		if len(items) == 0 {
			b.flushing = false
			b.mu.Unlock()
			break
		}
		b.mu.Unlock()
		s, f := b.replay(items)
		sent += s
		failed = append(failed, f...)
	}
	if len(failed) > 0 {
		if n := b.queue.Requeue(failed); n > 0 {
			for i := 0; i < n; i++ {
				metrics.RecordQueueDrop()
			}
		}
	}
	metrics.SetQueueDepth(b.queue.Len())
	return sent, len(failed)
}

func (b *Broker) replay(items []QueuedRequest) (sent int, failed []QueuedRequest) {
	for _, it := range items {
		connID, ok := b.transport.Primary()
		if !ok {
			failed = append(failed, it)
			metrics.RecordReplay(false)
			continue
		}
		p, err := b.register(it.Request, connID)
		if err != nil {
			metrics.RecordReplay(false)
			b.emitError(it.Request.ID, err)
			continue
		}
		if err := b.transport.SendMessage(connID, it.Request.Raw()); err != nil {
			b.remove(p)
			failed = append(failed, it)
			metrics.RecordReplay(false)
			logx.Log.Warn().Str("component", "broker").Str("conn_id", connID).Str("id", mcpwire.IDString(it.Request.ID)).Err(err).Msg("replay send failed")
			continue
		}
		sent++
		metrics.RecordReplay(true)
		b.inflight.Inc()
		go b.awaitReplay(p)
	}
	return sent, failed
}

func (b *Broker) awaitReplay(p *pendingRequest) {
	defer b.inflight.Dec()
	o := <-p.done
	if o.err != nil {
		b.emitError(p.id, o.err)
		return
	}
	b.opts.Emit(o.resp.Raw())
}

// HandleDisconnect rejects the requests pending on connID.
func (b *Broker) HandleDisconnect(connID string) {
	b.mu.Lock()
	var lost []*pendingRequest
	for key, p := range b.pending {
		if p.connID == connID {
			lost = append(lost, p)
			delete(b.pending, key)
		}
	}
	metrics.SetPending(len(b.pending))
	b.mu.Unlock()
	for _, p := range lost {
		p.timer.Stop()
		metrics.RecordRequest(p.method, metrics.OutcomeDisconnected, time.Since(p.start))
		p.settle(outcome{err: ErrDisconnected})
	}
	logx.Log.Info().Str("component", "broker").Str("conn_id", connID).Int("rejected", len(lost)).Msg("extension disconnected")
}

// Close rejects every pending request and refuses new ones.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	lost := make([]*pendingRequest, 0, len(b.pending))
	for key, p := range b.pending {
		lost = append(lost, p)
		delete(b.pending, key)
	}
	metrics.SetPending(0)
	b.mu.Unlock()
	for _, p := range lost {
		p.timer.Stop()
		p.settle(outcome{err: ErrBrokerClosed})
	}
}

// Drain waits for in-flight stdio requests to finish or ctx to end.
func (b *Broker) Drain(ctx context.Context) bool {
	return b.inflight.WaitForZero(ctx)
}

// Inflight returns the number of requests still being answered.
func (b *Broker) Inflight() int64 { return b.inflight.Load() }
