// Package wsframe implements the server side of RFC 6455: frame encoding,
// the HTTP upgrade handshake and per-connection stream reassembly.
package wsframe

import (
	"encoding/binary"
	"math"
)

const (
	// MaxControlPayload is the largest payload a control frame may carry.
	MaxControlPayload = 125
	// MaxHeaderSize is the longest possible frame header: 2 + 8 + 4.
	MaxHeaderSize = 14

	len16 = 126
	len64 = 127
)

// Frame is one decoded WebSocket frame. Payload is always unmasked.
type Frame struct {
	Fin     bool
	Rsv     byte // RSV1..RSV3 as the low three bits
	Opcode  Opcode
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// Header holds the fixed fields of a frame, decoded without touching the payload.
type Header struct {
	Fin        bool
	Rsv        byte
	Opcode     Opcode
	Masked     bool
	MaskKey    [4]byte
	PayloadLen uint64
	// HeaderLen counts the base, extended length and masking key bytes.
	HeaderLen int
}

// WireSize is the total number of bytes the frame occupies on the wire.
func (h Header) WireSize() uint64 {
	return uint64(h.HeaderLen) + h.PayloadLen
}

// ParseHeader decodes the header at the front of buf. It returns ErrIncomplete
// when buf is shorter than the header itself.
//
// Only the low 32 bits of a 64-bit extended length are honoured; a non-zero
// high half yields ErrFrameTooLarge rather than a truncated length.
func ParseHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < 2 {
		return h, ErrIncomplete
	}
	b0, b1 := buf[0], buf[1]
	h.Fin = b0&0x80 != 0
	h.Rsv = (b0 >> 4) & 0x7
	h.Opcode = Opcode(b0 & 0x0F)
	h.Masked = b1&0x80 != 0

	off := 2
	switch n := b1 & 0x7F; n {
	case len16:
		if len(buf) < off+2 {
			return h, ErrIncomplete
		}
		h.PayloadLen = uint64(binary.BigEndian.Uint16(buf[off:]))
		off += 2
	case len64:
		if len(buf) < off+8 {
			return h, ErrIncomplete
		}
		if binary.BigEndian.Uint32(buf[off:]) != 0 {
			return h, &FrameError{Op: h.Opcode, Err: ErrFrameTooLarge}
		}
		h.PayloadLen = uint64(binary.BigEndian.Uint32(buf[off+4:]))
		off += 8
	default:
		h.PayloadLen = uint64(n)
	}
	if h.Masked {
		if len(buf) < off+4 {
			return h, ErrIncomplete
		}
		copy(h.MaskKey[:], buf[off:off+4])
		off += 4
	}
	h.HeaderLen = off

	if h.Rsv != 0 {
		return h, &FrameError{Op: h.Opcode, Err: ErrReservedBits}
	}
	if h.Opcode.IsControl() && (!h.Fin || h.PayloadLen > MaxControlPayload) {
		return h, &FrameError{Op: h.Opcode, Err: ErrInvalidControl}
	}
	return h, nil
}

// Decode reads one frame from the front of buf and returns it with the number
// of bytes it consumed. Trailing bytes belong to later frames and are left alone.
func Decode(buf []byte) (Frame, int, error) {
	h, err := ParseHeader(buf)
	if err != nil {
		return Frame{}, 0, err
	}
	size := h.WireSize()
	if uint64(len(buf)) < size {
		return Frame{}, 0, ErrIncomplete
	}
	return decodeBody(h, buf), int(size), nil
}

func decodeBody(h Header, buf []byte) Frame {
	payload := make([]byte, h.PayloadLen)
	copy(payload, buf[h.HeaderLen:h.WireSize()])
	if h.Masked {
		maskBytes(payload, h.MaskKey, 0)
	}
	return Frame{
		Fin:     h.Fin,
		Rsv:     h.Rsv,
		Opcode:  h.Opcode,
		Masked:  h.Masked,
		MaskKey: h.MaskKey,
		Payload: payload,
	}
}

// Encode builds an unmasked server frame using the shortest length encoding.
func Encode(payload []byte, op Opcode, fin bool) []byte {
	out := appendHeader(make([]byte, 0, MaxHeaderSize+len(payload)), op, fin, false, len(payload))
	return append(out, payload...)
}

// EncodeText encodes s as a single final text frame.
func EncodeText(s string) []byte {
	return Encode([]byte(s), OpText, true)
}

// EncodeMasked builds a masked frame as a client would send it.
func EncodeMasked(payload []byte, op Opcode, fin bool, key [4]byte) []byte {
	out := appendHeader(make([]byte, 0, MaxHeaderSize+len(payload)), op, fin, true, len(payload))
	out = append(out, key[:]...)
	start := len(out)
	out = append(out, payload...)
	maskBytes(out[start:], key, 0)
	return out
}

func appendHeader(dst []byte, op Opcode, fin, masked bool, n int) []byte {
	b0 := byte(op) & 0x0F
	if fin {
		b0 |= 0x80
	}
	var mask byte
	if masked {
		mask = 0x80
	}
	switch {
	case n <= MaxControlPayload:
		return append(dst, b0, mask|byte(n))
	case n <= math.MaxUint16:
		dst = append(dst, b0, mask|len16)
		return binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, b0, mask|len64)
		return binary.BigEndian.AppendUint64(dst, uint64(n))
	}
}

// Unmask returns payload XORed with key, the key cycling every four bytes.
// Applying it twice with the same key yields the original bytes.
func Unmask(payload []byte, key [4]byte) []byte {
	out := make([]byte, len(payload))
	copy(out, payload)
	maskBytes(out, key, 0)
	return out
}

func maskBytes(b []byte, key [4]byte, pos int) int {
	for i := range b {
		b[i] ^= key[(pos+i)&3]
	}
	return (pos + len(b)) & 3
}

// ClosePayload builds the body of a close frame. A zero code yields an empty body.
func ClosePayload(code uint16, reason string) []byte {
	if code == 0 {
		return nil
	}
	if len(reason) > MaxControlPayload-2 {
		reason = reason[:MaxControlPayload-2]
	}
	b := binary.BigEndian.AppendUint16(make([]byte, 0, 2+len(reason)), code)
	return append(b, reason...)
}

// ParseClose extracts the status code and reason from a close frame body.
// An empty body reports code 0.
func ParseClose(payload []byte) (uint16, string) {
	if len(payload) < 2 {
		return 0, ""
	}
	return binary.BigEndian.Uint16(payload), string(payload[2:])
}
