// Package extclient is the extension side of the bridge: it dials the relay,
// answers tool calls from a dispatch table and reconnects when dropped.
package extclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/gaspardpetit/nfrx-browser/core/logx"
	"github.com/gaspardpetit/nfrx-browser/core/reconnect"
	"github.com/gaspardpetit/nfrx-browser/internal/mcpwire"
	"github.com/gaspardpetit/nfrx-browser/internal/tools"
)

var (
	// ErrNotConnected means no session is open.
	ErrNotConnected = errors.New("extclient: not connected")
	// ErrDisconnected means the session closed while a request was pending.
	ErrDisconnected = errors.New("extclient: disconnected")
	// ErrTimeout means the bridge did not answer in time.
	ErrTimeout = errors.New("extclient: request timed out")
)

// Options configures a Client.
type Options struct {
	URL string
	// Table answers requests from the bridge.
	Table tools.Table
	// Policy controls reconnects. The zero value retries forever on the default schedule.
	Policy         reconnect.Policy
	PingInterval   time.Duration
	RequestTimeout time.Duration
	// MaxMessageBytes limits inbound messages; zero keeps the library default.
	MaxMessageBytes int64
	OnConnect       func()
	OnDisconnect    func(err error)
}

type result struct {
	resp *mcpwire.Response
	err  error
}

// Client maintains one WebSocket session to the bridge at a time.
type Client struct {
	opts   Options
	nextID atomic.Int64

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan result
}

// New returns a Client; call Run to connect.
func New(opts Options) *Client {
	if opts.Table == nil {
		opts.Table = tools.NewRegistry()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Client{opts: opts, pending: map[string]chan result{}}
}

// Connected reports whether a session is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Run connects and serves until ctx is done or the policy gives up.
func (c *Client) Run(ctx context.Context) error {
	return c.opts.Policy.Run(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			logx.Log.Info().Str("component", "extclient").Int("attempt", attempt).Str("url", c.opts.URL).Msg("reconnecting")
		}
		return c.session(ctx)
	})
}

func (c *Client) session(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, c.opts.URL, nil)
	cancel()
	if err != nil {
		logx.Log.Debug().Str("component", "extclient").Str("url", c.opts.URL).Err(err).Msg("dial failed")
		return err
	}
	if c.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(c.opts.MaxMessageBytes)
	}
	sessCtx, stop := context.WithCancel(ctx)
	defer stop()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	logx.Log.Info().Str("component", "extclient").Str("url", c.opts.URL).Msg("connected to bridge")
	if c.opts.OnConnect != nil {
		c.opts.OnConnect()
	}
	if c.opts.PingInterval > 0 {
		go c.pingLoop(sessCtx, conn)
	}

	readErr := c.readLoop(sessCtx, conn)

	c.mu.Lock()
	c.conn = nil
	lost := c.pending
	c.pending = map[string]chan result{}
	c.mu.Unlock()
	for _, ch := range lost {
		ch <- result{err: ErrDisconnected}
	}
	_ = conn.Close(websocket.StatusNormalClosure, "closing")
	if c.opts.OnDisconnect != nil {
		c.opts.OnDisconnect(readErr)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logx.Log.Warn().Str("component", "extclient").Err(readErr).Msg("connection lost")
	return fmt.Errorf("%w: %v", reconnect.ErrConnectionLost, readErr)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		env, err := mcpwire.Parse(data)
		if err != nil {
			logx.Log.Warn().Str("component", "extclient").Str("error_code", "MCP_SCHEMA_ERROR").Err(err).Msg("dropping invalid message")
			continue
		}
		switch m := env.(type) {
		case *mcpwire.Request:
			go c.answer(ctx, conn, m)
		case *mcpwire.Response:
			c.resolve(m)
		case *mcpwire.Notification:
			logx.Log.Debug().Str("component", "extclient").Str("method", m.Method).Msg("notification")
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, c.opts.PingInterval)
			err := conn.Ping(pctx)
			cancel()
			if err != nil && ctx.Err() == nil {
				logx.Log.Warn().Str("component", "extclient").Err(err).Msg("ping failed; closing")
				_ = conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

// answer runs one request from the bridge and writes the response.
func (c *Client) answer(ctx context.Context, conn *websocket.Conn, req *mcpwire.Request) {
	res, err := c.opts.Table.Execute(ctx, req.Method, req.Params)
	var out []byte
	if err != nil {
		var rpcErr *mcpwire.Error
		if errors.As(err, &rpcErr) {
			out = mcpwire.EncodeError(req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		} else {
			out = mcpwire.EncodeError(req.ID, mcpwire.CodeInternalError, err.Error(), nil)
		}
		logx.Log.Debug().Str("component", "extclient").Str("method", req.Method).Err(err).Msg("request failed")
	} else if out, err = mcpwire.EncodeResult(req.ID, res); err != nil {
		out = mcpwire.EncodeError(req.ID, mcpwire.CodeInternalError, "encode result: "+err.Error(), nil)
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, out); err != nil {
		logx.Log.Debug().Str("component", "extclient").Err(err).Msg("write response failed")
	}
}

func (c *Client) resolve(resp *mcpwire.Response) {
	key := mcpwire.IDKey(resp.ID)
	c.mu.Lock()
	ch := c.pending[key]
	delete(c.pending, key)
	c.mu.Unlock()
	if ch == nil {
		logx.Log.Debug().Str("component", "extclient").Str("id", mcpwire.IDString(resp.ID)).Msg("dropping unmatched response")
		return
	}
	ch <- result{resp: resp}
}

// Request sends a request to the bridge and waits for the matching response.
func (c *Client) Request(ctx context.Context, method string, params any) (*mcpwire.Response, error) {
	id := json.RawMessage(strconv.FormatInt(c.nextID.Add(1), 10))
	b, err := mcpwire.EncodeRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	key := mcpwire.IDKey(id)
	ch := make(chan result, 1)
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending[key] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		forget()
		return nil, err
	}
	timer := time.NewTimer(c.opts.RequestTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.resp, r.err
	case <-timer.C:
		forget()
		return nil, ErrTimeout
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	}
}

// Notify sends a notification to the bridge.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	b, err := mcpwire.EncodeNotification(method, params)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}
