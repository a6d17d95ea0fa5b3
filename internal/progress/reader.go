package progress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"pkt.systems/pslog"
)

const readChunkSize = 32 * 1024

// lineBuffer reassembles newline-terminated lines across arbitrary chunk
// boundaries. An unterminated tail is held until its newline arrives.
type lineBuffer struct {
	tail []byte
}

func (b *lineBuffer) push(chunk []byte, fn func(line []byte)) {
	data := chunk
	if len(b.tail) > 0 {
		data = append(b.tail, chunk...)
	}
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSpace(data[:i])
		data = data[i+1:]
		if len(line) > 0 {
			fn(line)
		}
	}
	b.tail = append(b.tail[:0:0], data...)
}

func (b *lineBuffer) pending() int {
	return len(bytes.TrimSpace(b.tail))
}

// Decoder turns stream chunks into events. Malformed lines are logged and
// dropped without affecting the rest of the stream.
type Decoder struct {
	lines   lineBuffer
	log     pslog.Logger
	dropped int
}

func NewDecoder(log pslog.Logger) *Decoder {
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	return &Decoder{log: log}
}

// Feed consumes one chunk and emits every event whose line is now complete.
func (d *Decoder) Feed(chunk []byte, emit func(Event)) {
	d.lines.push(chunk, func(line []byte) {
		ev, ok, err := ParseLine(line)
		if err != nil {
			d.dropped++
			d.log.Warn("progress line dropped", "err", err, "line", preview(line))
			return
		}
		if !ok {
			d.log.Debug("progress line ignored", "line", preview(line))
			return
		}
		emit(ev)
	})
}

// Dropped is the number of malformed lines seen so far.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Pending is the size of the unterminated tail currently buffered.
func (d *Decoder) Pending() int {
	return d.lines.pending()
}

// Read consumes r until it ends, invoking onEvent for each decoded event.
// Once ctx is done no further events are delivered and Read returns nil, so
// a caller that aborts the transport through ctx never sees an error for it.
func Read(ctx context.Context, r io.Reader, onEvent func(Event), log pslog.Logger) error {
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	return NewDecoder(log).Read(ctx, r, onEvent)
}

// Read drains r through the decoder with the same rules as the package
// level Read. Dropped stays readable afterwards.
func (d *Decoder) Read(ctx context.Context, r io.Reader, onEvent func(Event)) error {
	emit := func(ev Event) {
		if ctx.Err() != nil {
			return
		}
		onEvent(ev)
	}
	buf := make([]byte, readChunkSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := r.Read(buf)
		if n > 0 {
			d.Feed(buf[:n], emit)
		}
		if errors.Is(err, io.EOF) {
			if d.Pending() > 0 {
				d.log.Warn("progress stream ended mid-line", "bytes", d.Pending())
			}
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read progress stream: %w", err)
		}
	}
}

// ScanLines calls fn with every complete, non-blank line of r. It stops at
// the first error returned by fn.
func ScanLines(ctx context.Context, r io.Reader, fn func(line []byte) error) error {
	var lines lineBuffer
	var fnErr error
	buf := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			lines.push(buf[:n], func(line []byte) {
				if fnErr == nil {
					fnErr = fn(line)
				}
			})
			if fnErr != nil {
				return fnErr
			}
		}
		if errors.Is(err, io.EOF) {
			if lines.pending() > 0 {
				tail := bytes.TrimSpace(lines.tail)
				return fn(tail)
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func preview(line []byte) string {
	const limit = 120
	if len(line) <= limit {
		return string(line)
	}
	return string(line[:limit]) + "..."
}
