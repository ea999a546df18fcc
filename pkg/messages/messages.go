// Package messages writes the sync output stream: one JSON object per line,
// RECORD messages for data and STATE messages for checkpoints.
package messages

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/crmtap/pkg/catalog"
	"github.com/ajitpratap0/crmtap/pkg/errors"
	"github.com/ajitpratap0/crmtap/pkg/state"
)

// Message types
const (
	TypeRecord = "RECORD"
	TypeState  = "STATE"
)

// RecordEvent is one transformed record bound for a stream.
type RecordEvent struct {
	Stream string
	Record catalog.Record
	// Alias replaces Stream on the wire when set.
	Alias string
}

// OutboundStream returns the stream name written to the wire.
func (e RecordEvent) OutboundStream() string {
	if e.Alias != "" {
		return e.Alias
	}
	return e.Stream
}

// Emitter receives records and checkpoints in emission order.
type Emitter interface {
	WriteRecord(ctx context.Context, event RecordEvent) error
	WriteState(ctx context.Context, s *state.State) error
}

type recordMessage struct {
	Type   string         `json:"type"`
	Stream string         `json:"stream"`
	Record catalog.Record `json:"record"`
}

type stateMessage struct {
	Type  string       `json:"type"`
	Value *state.State `json:"value"`
}

// Writer writes messages as JSON lines. Each message is flushed before the
// write returns so a checkpoint is never buffered behind later output.
type Writer struct {
	mu  sync.Mutex
	buf *bufio.Writer
	enc *json.Encoder
}

// NewWriter creates a Writer on w.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	return &Writer{buf: buf, enc: json.NewEncoder(buf)}
}

// WriteRecord writes a RECORD message.
func (w *Writer) WriteRecord(ctx context.Context, event RecordEvent) error {
	return w.write(ctx, recordMessage{
		Type:   TypeRecord,
		Stream: event.OutboundStream(),
		Record: event.Record,
	})
}

// WriteState writes a STATE message carrying the whole bookmark document.
func (w *Writer) WriteState(ctx context.Context, s *state.State) error {
	return w.write(ctx, stateMessage{Type: TypeState, Value: s})
}

func (w *Writer) write(ctx context.Context, msg any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// Encode appends the newline
	if err := w.enc.Encode(msg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode message")
	}
	if err := w.buf.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write message")
	}
	return nil
}

var _ Emitter = (*Writer)(nil)
