package wsframe

import "fmt"

// Message is one logical data message, possibly spanning several frames.
type Message struct {
	Opcode Opcode
	Data   []byte
}

// Assembler joins fragmented data frames. Control frames must be handled by
// the caller and never reach Push.
type Assembler struct {
	// MaxMessage caps the assembled size. Zero means unlimited.
	MaxMessage int

	op     Opcode
	buf    []byte
	active bool
}

// Push adds a data frame. It returns complete=true with the message once the
// final fragment arrives.
func (a *Assembler) Push(f Frame) (msg Message, complete bool, err error) {
	switch f.Opcode {
	case OpContinuation:
		if !a.active {
			return Message{}, false, &FrameError{Op: f.Opcode, Err: ErrUnexpectedContinuation}
		}
		if err := a.grow(f); err != nil {
			return Message{}, false, err
		}
		a.buf = append(a.buf, f.Payload...)
		if !f.Fin {
			return Message{}, false, nil
		}
		msg = Message{Opcode: a.op, Data: a.buf}
		a.reset()
		return msg, true, nil
	case OpText, OpBinary:
		if a.active {
			return Message{}, false, &FrameError{Op: f.Opcode, Err: ErrInterleavedMessage}
		}
		if f.Fin {
			return Message{Opcode: f.Opcode, Data: f.Payload}, true, nil
		}
		a.active = true
		a.op = f.Opcode
		if err := a.grow(f); err != nil {
			return Message{}, false, err
		}
		a.buf = append(a.buf[:0], f.Payload...)
		return Message{}, false, nil
	default:
		return Message{}, false, &FrameError{Op: f.Opcode, Err: fmt.Errorf("not a data frame")}
	}
}

func (a *Assembler) grow(f Frame) error {
	if a.MaxMessage > 0 && len(a.buf)+len(f.Payload) > a.MaxMessage {
		a.reset()
		return &FrameError{Op: f.Opcode, Err: ErrFrameTooLarge}
	}
	return nil
}

func (a *Assembler) reset() {
	a.active = false
	a.op = 0
	a.buf = nil
}

// Pending reports whether a fragmented message is in progress.
func (a *Assembler) Pending() bool { return a.active }
