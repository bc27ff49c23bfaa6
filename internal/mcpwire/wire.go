// Package mcpwire models JSON-RPC 2.0 envelopes as a tagged union and
// validates them at the transport boundary.
package mcpwire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Version is the only accepted jsonrpc value.
const Version = mcp.JSONRPC_VERSION

// Standard JSON-RPC error codes.
const (
	CodeParseError     = mcp.PARSE_ERROR
	CodeInvalidRequest = mcp.INVALID_REQUEST
	CodeMethodNotFound = mcp.METHOD_NOT_FOUND
	CodeInvalidParams  = mcp.INVALID_PARAMS
	CodeInternalError  = mcp.INTERNAL_ERROR
)

var (
	// ErrParse means the bytes are not JSON.
	ErrParse = errors.New("mcpwire: parse error")
	// ErrInvalid means the JSON is not a JSON-RPC 2.0 envelope.
	ErrInvalid = errors.New("mcpwire: invalid envelope")
)

// Envelope is one of *Request, *Notification or *Response.
type Envelope interface {
	// Raw returns the bytes the envelope was parsed from.
	Raw() json.RawMessage
	envelope()
}

// Request is a call that expects a response.
type Request struct {
	ID     json.RawMessage
	Method string
	Params json.RawMessage
	raw    json.RawMessage
}

// Notification is a call with no id; it never gets a response.
type Notification struct {
	Method string
	Params json.RawMessage
	raw    json.RawMessage
}

// Response carries exactly one of Result or Error.
type Response struct {
	ID     json.RawMessage
	Result json.RawMessage
	Error  *Error
	raw    json.RawMessage
}

func (r *Request) Raw() json.RawMessage      { return r.raw }
func (n *Notification) Raw() json.RawMessage { return n.raw }
func (r *Response) Raw() json.RawMessage     { return r.raw }

func (*Request) envelope()      {}
func (*Notification) envelope() {}
func (*Response) envelope()     {}

// Error is the JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// InvalidError reports a structurally invalid envelope together with the id,
// when one could be read, so the caller can still address its -32600 reply.
type InvalidError struct {
	ID     json.RawMessage
	Reason string
}

func (e *InvalidError) Error() string { return "mcpwire: invalid envelope: " + e.Reason }

func (e *InvalidError) Unwrap() error { return ErrInvalid }

// Parse decodes and classifies one JSON-RPC message.
func Parse(data []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	raw := append(json.RawMessage(nil), bytes.TrimSpace(data)...)

	id, hasID := fields["id"]
	if hasID && !validID(id) {
		return nil, &InvalidError{Reason: "id must be a string, number or null"}
	}
	if !hasID {
		id = nil
	}
	invalid := func(reason string) error {
		return &InvalidError{ID: id, Reason: reason}
	}

	var version string
	if v, ok := fields["jsonrpc"]; !ok || json.Unmarshal(v, &version) != nil || version != Version {
		return nil, invalid(`jsonrpc must be "2.0"`)
	}

	if m, ok := fields["method"]; ok {
		var method string
		if err := json.Unmarshal(m, &method); err != nil || method == "" {
			return nil, invalid("method must be a non-empty string")
		}
		params := fields["params"]
		if len(params) > 0 && params[0] != '{' && params[0] != '[' && !isNull(params) {
			return nil, invalid("params must be an object or array")
		}
		if !hasID {
			return &Notification{Method: method, Params: params, raw: raw}, nil
		}
		return &Request{ID: id, Method: method, Params: params, raw: raw}, nil
	}

	result, hasResult := fields["result"]
	errRaw, hasError := fields["error"]
	switch {
	case hasResult && hasError:
		return nil, invalid("response has both result and error")
	case hasResult:
		if !hasID {
			return nil, invalid("response without id")
		}
		return &Response{ID: id, Result: result, raw: raw}, nil
	case hasError:
		if !hasID {
			return nil, invalid("response without id")
		}
		var e Error
		if err := json.Unmarshal(errRaw, &e); err != nil {
			return nil, invalid("malformed error object")
		}
		return &Response{ID: id, Error: &e, raw: raw}, nil
	}
	return nil, invalid("neither method nor result/error present")
}

func validID(id json.RawMessage) bool {
	if len(id) == 0 {
		return false
	}
	switch id[0] {
	case '"':
		var s string
		return json.Unmarshal(id, &s) == nil
	case 'n':
		return isNull(id)
	default:
		var n json.Number
		return json.Unmarshal(id, &n) == nil
	}
}

func isNull(b json.RawMessage) bool {
	return string(bytes.TrimSpace(b)) == "null"
}

// IDKey returns a canonical map key for an id. String and number ids never
// collide: "1" and 1 produce different keys. Numbers are keyed by value, so
// 1, 1.0 and 1e0 share a key.
func IDKey(id json.RawMessage) string {
	if t := bytes.TrimSpace(id); len(t) > 0 && (t[0] == '-' || (t[0] >= '0' && t[0] <= '9')) {
		var n json.Number
		if json.Unmarshal(t, &n) == nil {
			return numberKey(n)
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, id); err != nil {
		return string(id)
	}
	return buf.String()
}

func numberKey(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	f, err := n.Float64()
	if err != nil {
		return n.String()
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// IDString renders an id for logs, without quotes for string ids.
func IDString(id json.RawMessage) string {
	var s string
	if json.Unmarshal(id, &s) == nil {
		return s
	}
	if len(id) == 0 {
		return "null"
	}
	return strings.TrimSpace(string(id))
}

// StringID encodes s as a JSON string id.
func StringID(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// IsNotification reports whether method belongs to the notifications/ namespace.
func IsNotification(method string) bool {
	return strings.HasPrefix(method, "notifications/")
}
