package checkpoint

import (
	"context"

	"github.com/ajitpratap0/crmtap/pkg/messages"
	"github.com/ajitpratap0/crmtap/pkg/state"
)

// RecordingEmitter forwards messages to another emitter and journals every
// state after it has been written downstream.
type RecordingEmitter struct {
	next    messages.Emitter
	journal *Journal
	runID   string
}

// NewRecordingEmitter wraps next, journaling states under runID.
func NewRecordingEmitter(next messages.Emitter, journal *Journal, runID string) *RecordingEmitter {
	return &RecordingEmitter{next: next, journal: journal, runID: runID}
}

// WriteRecord forwards the record.
func (e *RecordingEmitter) WriteRecord(ctx context.Context, event messages.RecordEvent) error {
	return e.next.WriteRecord(ctx, event)
}

// WriteState forwards the state, then journals it.
func (e *RecordingEmitter) WriteState(ctx context.Context, s *state.State) error {
	if err := e.next.WriteState(ctx, s); err != nil {
		return err
	}
	return e.journal.Record(ctx, e.runID, s)
}

var _ messages.Emitter = (*RecordingEmitter)(nil)
