package wsframe

import (
	"errors"
	"strings"
	"testing"
)

const sampleRequest = "GET /chat HTTP/1.1\r\n" +
	"Host: 127.0.0.1:8765\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"Sec-WebSocket-Version: 13\r\n\r\n"

func TestAcceptKeyRFCExample(t *testing.T) {
	if got := AcceptKey("dGhlIHNhbXBsZSBub25jZQ=="); got != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Fatalf("accept key %q", got)
	}
}

func TestParseHandshake(t *testing.T) {
	h := ParseHandshake("GET / HTTP/1.1\r\nHost: x\r\nX-Dup: a\r\nx-dup: b\r\nSec-WebSocket-Key:  k== ")
	if h["host"] != "x" {
		t.Fatalf("host %q", h["host"])
	}
	if h["x-dup"] != "a, b" {
		t.Fatalf("dup header %q", h["x-dup"])
	}
	if h["sec-websocket-key"] != "k==" {
		t.Fatalf("key %q", h["sec-websocket-key"])
	}
	if _, ok := h["get / http/1.1"]; ok {
		t.Fatalf("request line parsed as header")
	}
}

func TestHandshakeResponse(t *testing.T) {
	resp := string(HandshakeResponse("abc"))
	if !strings.HasPrefix(resp, "HTTP/1.1 101 Switching Protocols\r\n") {
		t.Fatalf("status line %q", resp)
	}
	if !strings.Contains(resp, "Sec-WebSocket-Accept: abc\r\n") || !strings.HasSuffix(resp, "\r\n\r\n") {
		t.Fatalf("unexpected response %q", resp)
	}
}

func TestNegotiatorByteAtATime(t *testing.T) {
	var n Negotiator
	var responses int
	var resp []byte
	for i := 0; i < len(sampleRequest); i++ {
		out, err := n.Feed([]byte{sampleRequest[i]})
		if err != nil {
			t.Fatalf("byte %d: %v", i, err)
		}
		if out != nil {
			responses++
			resp = out
		}
	}
	if responses != 1 || !n.Done() {
		t.Fatalf("expected one response, got %d done=%v", responses, n.Done())
	}
	if !strings.Contains(string(resp), "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=") {
		t.Fatalf("response missing accept key: %q", resp)
	}
	if n.Header("Host") != "127.0.0.1:8765" {
		t.Fatalf("host header %q", n.Header("Host"))
	}
}

func TestNegotiatorDiscardsPipelinedBytes(t *testing.T) {
	var n Negotiator
	out, err := n.Feed(append([]byte(sampleRequest), EncodeText("early")...))
	if err != nil || out == nil {
		t.Fatalf("expected response, got %v", err)
	}
	if n.Discarded() != len(EncodeText("early")) {
		t.Fatalf("discarded %d", n.Discarded())
	}
	if out, err := n.Feed([]byte("more")); out != nil || err != nil {
		t.Fatalf("feed after done: %q %v", out, err)
	}
}

func TestNegotiatorMissingKey(t *testing.T) {
	var n Negotiator
	_, err := n.Feed([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	if !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey got %v", err)
	}
	if n.Done() {
		t.Fatalf("negotiator done after missing key")
	}
}

func TestNegotiatorHeaderLimit(t *testing.T) {
	n := Negotiator{MaxHeaderBytes: 32}
	_, err := n.Feed([]byte(strings.Repeat("x", 40)))
	if !errors.Is(err, ErrHeaderTooLarge) {
		t.Fatalf("expected ErrHeaderTooLarge got %v", err)
	}
}
