package wsframe

import (
	"errors"
	"fmt"
)

// Framer turns a stream of arbitrary chunks into whole frames. It owns the
// connection's receive buffer: bytes are appended on Feed and removed only
// once a complete frame has been decoded from the front.
type Framer struct {
	// MaxPayload rejects frames whose declared payload exceeds it. Zero means no limit
	// beyond the 32-bit length field.
	MaxPayload uint64

	buf []byte
}

// NewFramer returns a Framer with the given payload limit.
func NewFramer(maxPayload uint64) *Framer {
	return &Framer{MaxPayload: maxPayload}
}

// Feed appends chunk and returns every frame now complete, in wire order.
// A partial trailing frame stays buffered. A non-nil error is terminal for
// the connection; frames decoded before the error are still returned.
func (f *Framer) Feed(chunk []byte) ([]Frame, error) {
	f.buf = append(f.buf, chunk...)
	var (
		frames []Frame
		off    int
	)
	for off < len(f.buf) {
		h, err := ParseHeader(f.buf[off:])
		if errors.Is(err, ErrIncomplete) {
			break
		}
		if err != nil {
			f.compact(off)
			return frames, err
		}
		if f.MaxPayload > 0 && h.PayloadLen > f.MaxPayload {
			f.compact(off)
			return frames, &FrameError{Op: h.Opcode, Err: fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, h.PayloadLen)}
		}
		size := h.WireSize()
		if uint64(len(f.buf)-off) < size {
			break
		}
		frames = append(frames, decodeBody(h, f.buf[off:]))
		off += int(size)
	}
	f.compact(off)
	return frames, nil
}

func (f *Framer) compact(off int) {
	if off == 0 {
		return
	}
	f.buf = append(f.buf[:0], f.buf[off:]...)
}

// Buffered returns the number of bytes held for an incomplete frame.
func (f *Framer) Buffered() int { return len(f.buf) }
