// Package stdio carries newline-delimited JSON-RPC between the bridge and
// its host process. Only protocol lines are written to the output stream.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/gaspardpetit/nfrx-browser/core/logx"
	"github.com/gaspardpetit/nfrx-browser/internal/mcpwire"
)

// MaxLineBytes bounds one inbound line.
const MaxLineBytes = 10 << 20

// LineHandler receives one non-empty line without its terminator.
type LineHandler func(ctx context.Context, line []byte)

// Transport reads lines from in and serializes writes to out.
type Transport struct {
	in      io.Reader
	out     io.Writer
	mu      sync.Mutex
	maxLine int
}

// New returns a Transport over in and out.
func New(in io.Reader, out io.Writer) *Transport {
	return &Transport{in: in, out: out, maxLine: MaxLineBytes}
}

// Serve calls h for every line until the input ends or ctx is done.
// A clean end of input returns nil. The line passed to h is a copy.
// A line over the size limit is discarded and answered with an
// invalid request error carrying a null id; reading continues.
func (t *Transport) Serve(ctx context.Context, h LineHandler) error {
	lines := make(chan []byte)
	errCh := make(chan error, 1)
	go func() {
		errCh <- t.read(ctx, lines)
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil {
				logx.Log.Error().Str("component", "stdio").Err(err).Msg("read failed")
			} else {
				logx.Log.Info().Str("component", "stdio").Msg("input closed")
			}
			return err
		case line := <-lines:
			h(ctx, line)
		}
	}
}

func (t *Transport) read(ctx context.Context, lines chan<- []byte) error {
	br := bufio.NewReaderSize(t.in, 64*1024)
	var buf []byte
	dropping := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !dropping {
			buf = append(buf, chunk...)
			if len(bytes.TrimRight(buf, "\r\n")) > t.maxLine {
				dropping = true
				buf = buf[:0]
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if dropping {
			t.rejectOversized()
			dropping = false
		} else if line := bytes.TrimSpace(buf); len(line) > 0 {
			cp := append([]byte(nil), line...)
			select {
			case lines <- cp:
			case <-ctx.Done():
				return nil
			}
		}
		buf = buf[:0]
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (t *Transport) rejectOversized() {
	logx.Log.Warn().Str("component", "stdio").Int("limit_bytes", t.maxLine).Str("error_code", "MCP_LIMIT_EXCEEDED").Msg("dropping oversized line")
	t.Emit(mcpwire.EncodeError(nil, mcpwire.CodeInvalidRequest, "Request too large", map[string]any{
		"limitBytes": t.maxLine,
		"mcp":        "MCP_LIMIT_EXCEEDED",
	}))
}

// WriteLine writes b followed by a newline as one unit.
func (t *Transport) WriteLine(b []byte) error {
	if bytes.IndexByte(b, '\n') >= 0 {
		b = bytes.ReplaceAll(b, []byte("\n"), nil)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	buf := make([]byte, 0, len(b)+1)
	buf = append(buf, b...)
	buf = append(buf, '\n')
	_, err := t.out.Write(buf)
	return err
}

// Emit writes b and logs failures; it suits callbacks without an error return.
func (t *Transport) Emit(b []byte) {
	if err := t.WriteLine(b); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		logx.Log.Warn().Str("component", "stdio").Err(err).Msg("write failed")
	}
}
