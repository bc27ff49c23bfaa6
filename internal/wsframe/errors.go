package wsframe

import (
	"errors"
	"fmt"
)

var (
	// ErrIncomplete means the buffer does not yet hold a whole frame. It is not terminal.
	ErrIncomplete = errors.New("wsframe: incomplete frame")
	// ErrFrameTooLarge covers 64-bit lengths with non-zero high 32 bits and lengths above the configured limit.
	ErrFrameTooLarge = errors.New("wsframe: frame too large")
	// ErrReservedBits is returned when RSV1-3 are set without a negotiated extension.
	ErrReservedBits = errors.New("wsframe: reserved bits set")
	// ErrInvalidControl is returned for fragmented control frames or control payloads over 125 bytes.
	ErrInvalidControl = errors.New("wsframe: invalid control frame")
	// ErrUnexpectedContinuation is a continuation frame with no message in progress.
	ErrUnexpectedContinuation = errors.New("wsframe: continuation without initial frame")
	// ErrInterleavedMessage is a new data frame while a fragmented message is in progress.
	ErrInterleavedMessage = errors.New("wsframe: data frame inside fragmented message")

	// ErrMissingKey is a handshake without Sec-WebSocket-Key.
	ErrMissingKey = errors.New("wsframe: missing Sec-WebSocket-Key")
	// ErrHeaderTooLarge is a handshake header block over the negotiator limit.
	ErrHeaderTooLarge = errors.New("wsframe: handshake header too large")
)

// FrameError ties a decoding failure to the frame's opcode.
type FrameError struct {
	Op  Opcode
	Err error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%s frame (0x%x): %v", e.Op, byte(e.Op), e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }
