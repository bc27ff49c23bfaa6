package wsframe

import (
	"errors"
	"testing"
)

func TestAssemblerFragments(t *testing.T) {
	var a Assembler
	steps := []Frame{
		{Opcode: OpText, Payload: []byte(`{"jsonrpc":`)},
		{Opcode: OpContinuation, Payload: []byte(`"2.0",`)},
		{Opcode: OpContinuation, Fin: true, Payload: []byte(`"id":1}`)},
	}
	for i, f := range steps {
		msg, done, err := a.Push(f)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if done != (i == len(steps)-1) {
			t.Fatalf("step %d: complete=%v", i, done)
		}
		if done {
			if msg.Opcode != OpText || string(msg.Data) != `{"jsonrpc":"2.0","id":1}` {
				t.Fatalf("assembled %q op=%s", msg.Data, msg.Opcode)
			}
		}
	}
	if a.Pending() {
		t.Fatalf("assembler still pending")
	}
}

func TestAssemblerUnfragmented(t *testing.T) {
	var a Assembler
	msg, done, err := a.Push(Frame{Opcode: OpBinary, Fin: true, Payload: []byte{1}})
	if err != nil || !done || msg.Opcode != OpBinary || len(msg.Data) != 1 {
		t.Fatalf("unexpected %v %v %+v", err, done, msg)
	}
}

func TestAssemblerProtocolErrors(t *testing.T) {
	var a Assembler
	if _, _, err := a.Push(Frame{Opcode: OpContinuation, Fin: true}); !errors.Is(err, ErrUnexpectedContinuation) {
		t.Fatalf("expected ErrUnexpectedContinuation got %v", err)
	}
	if _, _, err := a.Push(Frame{Opcode: OpText, Payload: []byte("a")}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := a.Push(Frame{Opcode: OpText, Fin: true}); !errors.Is(err, ErrInterleavedMessage) {
		t.Fatalf("expected ErrInterleavedMessage got %v", err)
	}
}

func TestAssemblerLimit(t *testing.T) {
	a := Assembler{MaxMessage: 4}
	if _, _, err := a.Push(Frame{Opcode: OpText, Payload: []byte("abc")}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := a.Push(Frame{Opcode: OpContinuation, Fin: true, Payload: []byte("de")}); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge got %v", err)
	}
	if a.Pending() {
		t.Fatalf("assembler should reset after overflow")
	}
}
