package mcpwire

import "encoding/json"

type outbound struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

var nullID = json.RawMessage("null")

func orNull(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return nullID
	}
	return id
}

// EncodeRequest renders a request envelope.
func EncodeRequest(id json.RawMessage, method string, params any) ([]byte, error) {
	var p json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		p = b
	}
	return json.Marshal(outbound{JSONRPC: Version, ID: orNull(id), Method: method, Params: p})
}

// EncodeResult renders a success response. A nil result is sent as {}.
func EncodeResult(id json.RawMessage, result any) ([]byte, error) {
	if result == nil {
		result = struct{}{}
	}
	return json.Marshal(outbound{JSONRPC: Version, ID: orNull(id), Result: result})
}

// EncodeError renders an error response; a missing id is sent as null.
func EncodeError(id json.RawMessage, code int, message string, data any) []byte {
	b, err := json.Marshal(outbound{JSONRPC: Version, ID: orNull(id), Error: &Error{Code: code, Message: message, Data: data}})
	if err != nil {
		b, _ = json.Marshal(outbound{JSONRPC: Version, ID: orNull(id), Error: &Error{Code: code, Message: message}})
	}
	return b
}

// EncodeNotification renders a notification envelope, which has no id.
func EncodeNotification(method string, params any) ([]byte, error) {
	var p json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		p = b
	}
	return json.Marshal(outbound{JSONRPC: Version, Method: method, Params: p})
}
