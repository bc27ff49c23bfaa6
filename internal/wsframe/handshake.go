package wsframe

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"
)

// GUID is the fixed value appended to the client key (RFC 6455 section 1.3).
const GUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// DefaultMaxHeaderBytes bounds the handshake header block a client may send.
const DefaultMaxHeaderBytes = 16 << 10

var headerTerminator = []byte("\r\n\r\n")

// ParseHandshake splits an HTTP request head on CRLF and returns its headers
// keyed by lower-cased name. The request line and lines without a colon are
// skipped, and a missing trailing blank line is tolerated. Repeated headers
// are joined with ", ".
func ParseHandshake(text string) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(text, "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || strings.ContainsAny(name, " \t") {
			continue
		}
		value = strings.TrimSpace(value)
		if prev, dup := headers[name]; dup {
			value = prev + ", " + value
		}
		headers[name] = value
	}
	return headers
}

// AcceptKey computes Sec-WebSocket-Accept for a client key.
func AcceptKey(clientKey string) string {
	sum := sha1.Sum([]byte(clientKey + GUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// HandshakeResponse renders the 101 response, terminated by a blank line.
func HandshakeResponse(acceptKey string) []byte {
	return []byte(fmt.Sprintf("HTTP/1.1 101 Switching Protocols\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Accept: %s\r\n\r\n", acceptKey))
}

// Negotiator accumulates handshake bytes until the header block is complete.
// It is owned by a single connection and is not safe for concurrent use.
type Negotiator struct {
	// MaxHeaderBytes caps the buffered header block. Zero uses DefaultMaxHeaderBytes.
	MaxHeaderBytes int

	buf       []byte
	done      bool
	headers   map[string]string
	discarded int
}

// Feed appends chunk and, once the blank line arrives, returns the 101 response
// to write back. While headers are still incomplete it returns nil, nil.
// ErrMissingKey and ErrHeaderTooLarge are terminal: the caller closes the socket
// without writing anything.
func (n *Negotiator) Feed(chunk []byte) ([]byte, error) {
	if n.done {
		return nil, nil
	}
	n.buf = append(n.buf, chunk...)
	end := bytes.Index(n.buf, headerTerminator)
	limit := n.MaxHeaderBytes
	if limit <= 0 {
		limit = DefaultMaxHeaderBytes
	}
	if end < 0 {
		if len(n.buf) > limit {
			return nil, ErrHeaderTooLarge
		}
		return nil, nil
	}
	if end > limit {
		return nil, ErrHeaderTooLarge
	}
	n.headers = ParseHandshake(string(n.buf[:end]))
	key := n.headers["sec-websocket-key"]
	if key == "" {
		return nil, ErrMissingKey
	}
	// Bytes pipelined after the header block are dropped with the buffer.
	n.discarded = len(n.buf) - end - len(headerTerminator)
	n.buf = nil
	n.done = true
	return HandshakeResponse(AcceptKey(key)), nil
}

// Done reports whether the 101 response has been produced.
func (n *Negotiator) Done() bool { return n.done }

// Header returns a parsed header value once the handshake is done.
func (n *Negotiator) Header(name string) string {
	return n.headers[strings.ToLower(name)]
}

// Discarded is the number of bytes that followed the header block and were dropped.
func (n *Negotiator) Discarded() int { return n.discarded }
