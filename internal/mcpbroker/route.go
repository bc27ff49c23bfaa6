package mcpbroker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gaspardpetit/nfrx-browser/core/logx"
	"github.com/gaspardpetit/nfrx-browser/internal/mcpwire"
	"github.com/gaspardpetit/nfrx-browser/internal/metrics"
)

// WaitingMessage is returned to the host while requests sit in the queue.
const WaitingMessage = "Waiting for Chrome Extension to connect..."

const waitingHint = "Make sure the Chrome extension is installed and the browser is open. The request will be sent once the extension connects."

// HandleLine processes one line from the stdio host. Local methods are
// answered before HandleLine returns; forwarded requests are answered
// from a separate goroutine so later lines are not held up.
func (b *Broker) HandleLine(ctx context.Context, line []byte) {
	env, err := mcpwire.Parse(line)
	if err != nil {
		var inv *mcpwire.InvalidError
		switch {
		case errors.As(err, &inv):
			logx.Log.Warn().Str("component", "stdio").Str("error_code", "MCP_SCHEMA_ERROR").Str("reason", inv.Reason).Msg("invalid request")
			b.opts.Emit(mcpwire.EncodeError(inv.ID, mcpwire.CodeInvalidRequest, "Invalid Request", nil))
		default:
			logx.Log.Warn().Str("component", "stdio").Str("error_code", "MCP_SCHEMA_ERROR").Err(err).Msg("parse error")
			b.opts.Emit(mcpwire.EncodeError(nil, mcpwire.CodeParseError, "Parse error", nil))
		}
		return
	}
	switch m := env.(type) {
	case *mcpwire.Notification:
		b.handleNotification(m)
	case *mcpwire.Response:
		b.passUp(m.Raw(), "response")
	case *mcpwire.Request:
		if b.opts.Local.Has(m.Method) {
			b.answerLocal(ctx, m)
			return
		}
		b.forward(ctx, m)
	}
}

// ServeLine is HandleLine for a stdio serve loop whose context ends at
// shutdown. Forwarded requests outlive that context so Drain can wait for
// them; Close rejects whatever is still pending.
func (b *Broker) ServeLine(ctx context.Context, line []byte) {
	b.HandleLine(context.WithoutCancel(ctx), line)
}

func (b *Broker) handleNotification(n *mcpwire.Notification) {
	if mcpwire.IsNotification(n.Method) {
		logx.Log.Debug().Str("component", "stdio").Str("method", n.Method).Msg("notification acknowledged")
		return
	}
	b.passUp(n.Raw(), n.Method)
}

// passUp forwards a message that expects no reply, dropping it when no
// extension is connected.
func (b *Broker) passUp(raw json.RawMessage, what string) {
	connID, ok := b.transport.Primary()
	if !ok {
		logx.Log.Debug().Str("component", "stdio").Str("what", what).Msg("no extension; dropping message")
		return
	}
	if err := b.transport.SendMessage(connID, raw); err != nil {
		logx.Log.Warn().Str("component", "stdio").Str("conn_id", connID).Err(err).Msg("forward failed")
	}
}

func (b *Broker) answerLocal(ctx context.Context, req *mcpwire.Request) {
	res, err := b.opts.Local.Execute(ctx, req.Method, req.Params)
	if err != nil {
		metrics.RecordRequest(req.Method, metrics.OutcomeLocal, 0)
		b.emitError(req.ID, err)
		return
	}
	out, err := mcpwire.EncodeResult(req.ID, res)
	if err != nil {
		b.emitError(req.ID, err)
		return
	}
	metrics.RecordRequest(req.Method, metrics.OutcomeLocal, 0)
	b.opts.Emit(out)
}

// forward sends or queues req in line order and answers it from a
// goroutine once the extension replies.
func (b *Broker) forward(ctx context.Context, req *mcpwire.Request) {
	p, queued, err := b.dispatch(req)
	if err != nil {
		b.emitError(req.ID, err)
		return
	}
	if queued {
		b.opts.Emit(mcpwire.EncodeError(req.ID, mcpwire.CodeInternalError, WaitingMessage, map[string]any{
			"queued":    true,
			"queueSize": b.queue.Len(),
			"hint":      waitingHint,
			"mcp":       "MCP_PROVIDER_UNAVAILABLE",
		}))
		return
	}
	b.inflight.Inc()
	go func() {
		defer b.inflight.Dec()
		reply, err := b.wait(ctx, p)
		if err != nil {
			b.emitError(req.ID, err)
			return
		}
		b.opts.Emit(reply.Response.Raw())
	}()
}

// emitError writes the host-facing error shape for err.
func (b *Broker) emitError(id json.RawMessage, err error) {
	b.opts.Emit(ErrorLine(id, err, b.opts.Timeout))
}

// ErrorLine renders err as a JSON-RPC error response for the host.
func ErrorLine(id json.RawMessage, err error, timeout time.Duration) []byte {
	var rpcErr *mcpwire.Error
	switch {
	case errors.As(err, &rpcErr):
		return mcpwire.EncodeError(id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
	case errors.Is(err, ErrTimeout):
		return mcpwire.EncodeError(id, mcpwire.CodeInternalError, "Request timed out", map[string]any{
			"timeoutMs": timeout.Milliseconds(),
			"mcp":       "MCP_TIMEOUT",
		})
	case errors.Is(err, ErrDisconnected):
		return mcpwire.EncodeError(id, mcpwire.CodeInternalError, "Extension disconnected", map[string]any{"mcp": "MCP_PROVIDER_UNAVAILABLE"})
	case errors.Is(err, ErrDuplicateID):
		return mcpwire.EncodeError(id, mcpwire.CodeInvalidRequest, "Duplicate request id", nil)
	case errors.Is(err, ErrBrokerClosed):
		return mcpwire.EncodeError(id, mcpwire.CodeInternalError, "Bridge shutting down", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return mcpwire.EncodeError(id, mcpwire.CodeInternalError, "Request cancelled", nil)
	default:
		return mcpwire.EncodeError(id, mcpwire.CodeInternalError, "Failed to communicate with extension: "+err.Error(), nil)
	}
}
