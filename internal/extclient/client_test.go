package extclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/gaspardpetit/nfrx-browser/core/reconnect"
	"github.com/gaspardpetit/nfrx-browser/internal/mcpbroker"
	"github.com/gaspardpetit/nfrx-browser/internal/mcpwire"
	"github.com/gaspardpetit/nfrx-browser/internal/relay"
	"github.com/gaspardpetit/nfrx-browser/internal/tools"
)

type bridge struct {
	relay  *relay.Server
	broker *mcpbroker.Broker
	out    chan []byte
}

func startBridge(t *testing.T) *bridge {
	t.Helper()
	s := relay.New(relay.Options{})
	out := make(chan []byte, 16)
	b := mcpbroker.New(s, mcpbroker.Options{
		Timeout: 2 * time.Second,
		Emit:    func(line []byte) { out <- append([]byte(nil), line...) },
	})
	s.OnMessage(b.HandleMessage)
	s.OnConnect(b.HandleConnect)
	s.OnDisconnect(b.HandleDisconnect)
	if err := s.Listen(0); err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(s.Stop)
	return &bridge{relay: s, broker: b, out: out}
}

func (b *bridge) url() string { return fmt.Sprintf("ws://127.0.0.1:%d", b.relay.Port()) }

func (b *bridge) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case line := <-b.out:
		var m map[string]any
		if err := json.Unmarshal(line, &m); err != nil {
			t.Fatalf("invalid line %q: %v", line, err)
		}
		return m
	case <-time.After(3 * time.Second):
		t.Fatalf("no line from bridge")
	}
	return nil
}

func startClient(t *testing.T, url string, opts Options) (*Client, chan error) {
	t.Helper()
	opts.URL = url
	if opts.Table == nil {
		opts.Table = tools.NewExtension("probe", "test", tools.ProbeToolSet("c1"))
	}
	c := New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	})
	return c, done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func toolText(t *testing.T, m map[string]any) string {
	t.Helper()
	res, ok := m["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected result in %v", m)
	}
	content := res["content"].([]any)
	return content[0].(map[string]any)["text"].(string)
}

func TestEndToEndToolCall(t *testing.T) {
	br := startBridge(t)
	c, _ := startClient(t, br.url(), Options{})
	waitFor(t, "connection", func() bool { return br.relay.ConnectionCount() == 1 && c.Connected() })

	br.broker.HandleLine(context.Background(), []byte(`{"jsonrpc":"2.0","id":"42","method":"tools/call","params":{"name":"browser_echo","arguments":{"text":"hi"}}}`))
	m := br.next(t)
	if m["id"] != "42" {
		t.Fatalf("wrong id %v", m["id"])
	}
	if got := toolText(t, m); got != "hi" {
		t.Fatalf("echo = %q", got)
	}

	br.broker.HandleLine(context.Background(), []byte(`{"jsonrpc":"2.0","id":43,"method":"tools/call","params":{"name":"nope"}}`))
	m = br.next(t)
	e, ok := m["error"].(map[string]any)
	if !ok || int(e["code"].(float64)) != mcpwire.CodeInvalidParams {
		t.Fatalf("expected invalid params got %v", m)
	}
}

func TestQueuedRequestReplayedOnConnect(t *testing.T) {
	br := startBridge(t)
	br.broker.HandleLine(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"browser_ping"}}`))
	m := br.next(t)
	e := m["error"].(map[string]any)
	if e["message"] != mcpbroker.WaitingMessage {
		t.Fatalf("expected queued reply got %v", m)
	}

	startClient(t, br.url(), Options{})
	m = br.next(t)
	if m["id"].(float64) != 1 || toolText(t, m) != "pong" {
		t.Fatalf("unexpected replayed response %v", m)
	}
	if br.broker.Queue().Len() != 0 {
		t.Fatalf("queue not drained")
	}
}

func TestClientRequestGetsMethodNotFound(t *testing.T) {
	br := startBridge(t)
	c, _ := startClient(t, br.url(), Options{RequestTimeout: time.Second})
	waitFor(t, "connection", c.Connected)
	resp, err := c.Request(context.Background(), "sampling/createMessage", map[string]any{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != mcpwire.CodeMethodNotFound {
		t.Fatalf("expected method not found got %+v", resp)
	}
	if err := c.Notify(context.Background(), "notifications/message", map[string]string{"level": "info"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
}

func TestRequestWithoutConnection(t *testing.T) {
	c := New(Options{URL: "ws://127.0.0.1:1"})
	if _, err := c.Request(context.Background(), "ping", nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected not connected got %v", err)
	}
	if err := c.Notify(context.Background(), "x", nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected not connected got %v", err)
	}
}

func TestDisconnectCallbackAndGiveUp(t *testing.T) {
	br := startBridge(t)
	disconnected := make(chan struct{}, 1)
	_, done := startClient(t, br.url(), Options{
		Policy: reconnect.Policy{Delay: 10 * time.Millisecond, MaxAttempts: 2},
		OnDisconnect: func(error) {
			select {
			case disconnected <- struct{}{}:
			default:
			}
		},
	})
	waitFor(t, "connection", func() bool { return br.relay.ConnectionCount() == 1 })
	br.relay.Stop()

	select {
	case <-disconnected:
	case <-time.After(3 * time.Second):
		t.Fatalf("disconnect callback not called")
	}
	select {
	case err := <-done:
		if !errors.Is(err, reconnect.ErrGaveUp) {
			t.Fatalf("expected give up got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("client did not give up")
	}
}

func TestDialFailureCountsAsAttempt(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	c := New(Options{URL: "ws://" + addr, Policy: reconnect.Policy{Delay: time.Millisecond, MaxAttempts: 3}})
	err = c.Run(context.Background())
	if !errors.Is(err, reconnect.ErrGaveUp) {
		t.Fatalf("expected give up got %v", err)
	}
}
