package pipeline

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/crmtap/pkg/catalog"
	"github.com/ajitpratap0/crmtap/pkg/errors"
	"github.com/ajitpratap0/crmtap/pkg/messages"
	"github.com/ajitpratap0/crmtap/pkg/state"
	"github.com/ajitpratap0/crmtap/pkg/transform"
)

const startDate = "2019-01-01T00:00:00Z"

type sliceIterator struct {
	records []catalog.Record
	pos     int
	// err is returned once pos reaches len(records).
	err error
}

type pagedIterator struct {
	*sliceIterator
	pages int
}

func (it *pagedIterator) Pages() int { return it.pages }

func (it *sliceIterator) Next(ctx context.Context) (catalog.Record, error) {
	if it.pos >= len(it.records) {
		if it.err != nil {
			return nil, it.err
		}
		return nil, io.EOF
	}
	r := it.records[it.pos]
	it.pos++
	return r, nil
}

type fakeExtractor struct {
	streams map[string]*sliceIterator
	queried []string
	// bookmarks seen by Query, per stream
	from map[string]any
}

func (f *fakeExtractor) Query(entry catalog.CatalogEntry, st *state.State) (RecordIterator, error) {
	f.queried = append(f.queried, entry.TapStreamID)
	if f.from == nil {
		f.from = map[string]any{}
	}
	if v, ok := st.Bookmark(entry.TapStreamID, entry.Key()); ok {
		f.from[entry.TapStreamID] = v
	}
	it, ok := f.streams[entry.TapStreamID]
	if !ok {
		return &sliceIterator{}, nil
	}
	return it, nil
}

type event struct {
	kind   string
	stream string
	record catalog.Record
	state  *state.State
}

type recordingEmitter struct {
	events []event
}

func (e *recordingEmitter) WriteRecord(_ context.Context, ev messages.RecordEvent) error {
	e.events = append(e.events, event{kind: messages.TypeRecord, stream: ev.OutboundStream(), record: ev.Record})
	return nil
}

func (e *recordingEmitter) WriteState(_ context.Context, s *state.State) error {
	e.events = append(e.events, event{kind: messages.TypeState, state: s.Clone()})
	return nil
}

func (e *recordingEmitter) kinds() []string {
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.kind)
	}
	return out
}

func entry(id, key string, selected bool) catalog.CatalogEntry {
	props := map[string]catalog.PropertySchema{
		"Id":   {Inclusion: catalog.InclusionAutomatic, Type: []string{"string"}},
		"Name": {Inclusion: catalog.InclusionAvailable, Selected: true, Type: []string{"null", "string"}},
	}
	e := catalog.CatalogEntry{
		Stream:      id,
		TapStreamID: id,
		Schema: catalog.SchemaDocument{
			Type:       "object",
			Selected:   selected,
			Properties: props,
		},
	}
	if key != "" {
		props[key] = catalog.PropertySchema{
			Inclusion: catalog.InclusionAutomatic,
			Type:      []string{"null", "string"},
			Format:    "date-time",
		}
		e.ReplicationKey = &key
	}
	return e
}

func newTestOrchestrator(ex Extractor, em messages.Emitter, opts Options) (*Orchestrator, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewOrchestrator(ex, em, opts, zap.New(core)), logs
}

func TestRunEmitsRecordThenCheckpoint(t *testing.T) {
	doc := &catalog.Document{Streams: []catalog.CatalogEntry{entry("Lead", "SystemModstamp", true)}}
	st := state.Build(nil, doc, startDate)

	ex := &fakeExtractor{streams: map[string]*sliceIterator{
		"Lead": {records: []catalog.Record{
			{"Id": "00Q1", "SystemModstamp": "2020-02-01T00:00:00Z", "attributes": map[string]any{"type": "Lead"}},
		}},
	}}
	em := &recordingEmitter{}
	o, _ := newTestOrchestrator(ex, em, Options{})

	summary, err := o.Run(context.Background(), doc, st)
	require.NoError(t, err)
	assert.Equal(t, Summary{Streams: 1, Records: 1}, summary)
	assert.Equal(t, startDate, ex.from["Lead"])

	require.Equal(t, []string{"RECORD", "STATE"}, em.kinds())
	assert.Equal(t, "Lead", em.events[0].stream)
	assert.Equal(t, catalog.Record{"Id": "00Q1", "SystemModstamp": "2020-02-01T00:00:00Z"}, em.events[0].record)

	got, ok := em.events[1].state.Bookmark("Lead", "SystemModstamp")
	require.True(t, ok)
	assert.Equal(t, "2020-02-01T00:00:00Z", got)
}

func TestRunStopsOnStreamFailure(t *testing.T) {
	doc := &catalog.Document{Streams: []catalog.CatalogEntry{
		entry("Contact", "LastModifiedDate", true),
		entry("Account", "SystemModstamp", true),
	}}
	st := state.Build(nil, doc, startDate)

	ex := &fakeExtractor{streams: map[string]*sliceIterator{
		"Contact": {
			records: []catalog.Record{
				{"Id": "003A", "LastModifiedDate": "2020-01-01T00:00:00Z", "Junk": 1},
				{"Id": "003B", "LastModifiedDate": "2020-01-02T00:00:00Z"},
				{"Id": "003C", "LastModifiedDate": "2020-01-03T00:00:00Z"},
			},
			err: errors.New(errors.ErrorTypeConnection, "connection reset"),
		},
		"Account": {records: []catalog.Record{{"Id": "001A", "SystemModstamp": "2020-01-01T00:00:00Z"}}},
	}}
	em := &recordingEmitter{}
	o, logs := newTestOrchestrator(ex, em, Options{})

	summary, err := o.Run(context.Background(), doc, st)
	require.Error(t, err)
	assert.True(t, errors.IsOperational(err))
	assert.Equal(t, int64(3), summary.Records)
	assert.Equal(t, 0, summary.Streams)

	assert.Equal(t, []string{"RECORD", "STATE", "RECORD", "STATE", "RECORD", "STATE"}, em.kinds())
	assert.Equal(t, []string{"Contact"}, ex.queried)

	last, _ := em.events[5].state.Bookmark("Contact", "LastModifiedDate")
	assert.Equal(t, "2020-01-03T00:00:00Z", last)
	account, _ := st.Bookmark("Account", "SystemModstamp")
	assert.Equal(t, startDate, account)

	assert.Equal(t, 1, logs.FilterMessage("stream counter closed").Len())
	assert.Equal(t, 1, logs.FilterMessage("removed fields not in schema or unsupported").Len())
}

func TestRunCheckpointsAfterEveryRecord(t *testing.T) {
	doc := &catalog.Document{Streams: []catalog.CatalogEntry{entry("Opportunity", "SystemModstamp", true)}}
	st := state.Build(nil, doc, startDate)

	stamps := []string{"2021-03-01T00:00:00Z", "2021-03-01T00:00:00Z", "2021-03-02T10:00:00Z"}
	var records []catalog.Record
	for i, s := range stamps {
		records = append(records, catalog.Record{"Id": string(rune('a' + i)), "SystemModstamp": s})
	}
	ex := &fakeExtractor{streams: map[string]*sliceIterator{"Opportunity": {records: records}}}
	em := &recordingEmitter{}
	o, _ := newTestOrchestrator(ex, em, Options{})

	_, err := o.Run(context.Background(), doc, st)
	require.NoError(t, err)

	var checkpoints []any
	for i, ev := range em.events {
		if ev.kind != messages.TypeState {
			continue
		}
		require.Equal(t, messages.TypeRecord, em.events[i-1].kind)
		v, ok := ev.state.Bookmark("Opportunity", "SystemModstamp")
		require.True(t, ok)
		assert.Equal(t, em.events[i-1].record["SystemModstamp"], v)
		checkpoints = append(checkpoints, v)
	}
	assert.Equal(t, []any{stamps[0], stamps[1], stamps[2]}, checkpoints)
}

func TestRunUsesStreamAlias(t *testing.T) {
	e := entry("Account", "SystemModstamp", true)
	e.StreamAlias = "accounts"
	doc := &catalog.Document{Streams: []catalog.CatalogEntry{e}}

	ex := &fakeExtractor{streams: map[string]*sliceIterator{
		"Account": {records: []catalog.Record{{"Id": "001A", "SystemModstamp": "2020-01-01T00:00:00Z"}}},
	}}
	em := &recordingEmitter{}
	o, _ := newTestOrchestrator(ex, em, Options{})

	_, err := o.Run(context.Background(), doc, state.Build(nil, doc, startDate))
	require.NoError(t, err)
	require.Len(t, em.events, 2)
	assert.Equal(t, "accounts", em.events[0].stream)

	_, ok := em.events[1].state.Bookmark("Account", "SystemModstamp")
	assert.True(t, ok)
}

func TestRunLogsPagesFetched(t *testing.T) {
	doc := &catalog.Document{Streams: []catalog.CatalogEntry{entry("Lead", "SystemModstamp", true)}}
	records := &sliceIterator{records: []catalog.Record{{"Id": "00Q1", "SystemModstamp": "2020-01-01T00:00:00Z"}}}
	ex := ExtractorFunc(func(catalog.CatalogEntry, *state.State) (RecordIterator, error) {
		return &pagedIterator{sliceIterator: records, pages: 3}, nil
	})
	o, logs := newTestOrchestrator(ex, &recordingEmitter{}, Options{})

	_, err := o.Run(context.Background(), doc, state.Build(nil, doc, startDate))
	require.NoError(t, err)

	complete := logs.FilterMessage("stream complete").All()
	require.Len(t, complete, 1)
	assert.Equal(t, int64(3), complete[0].ContextMap()["pages"])
	assert.Equal(t, int64(1), complete[0].ContextMap()["records"])
}

func TestRunWithoutReplicationKeyEmitsNoState(t *testing.T) {
	doc := &catalog.Document{Streams: []catalog.CatalogEntry{entry("RecordType", "", true)}}
	ex := &fakeExtractor{streams: map[string]*sliceIterator{
		"RecordType": {records: []catalog.Record{{"Id": "012A"}, {"Id": "012B"}}},
	}}
	em := &recordingEmitter{}
	o, _ := newTestOrchestrator(ex, em, Options{})

	summary, err := o.Run(context.Background(), doc, state.Build(nil, doc, startDate))
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Records)
	assert.Equal(t, []string{"RECORD", "RECORD"}, em.kinds())
}

func TestRunSkipsUnselectedStreams(t *testing.T) {
	doc := &catalog.Document{Streams: []catalog.CatalogEntry{
		entry("Account", "SystemModstamp", false),
		entry("Lead", "SystemModstamp", true),
	}}
	ex := &fakeExtractor{}
	em := &recordingEmitter{}
	o, _ := newTestOrchestrator(ex, em, Options{})

	summary, err := o.Run(context.Background(), doc, state.Build(nil, doc, startDate))
	require.NoError(t, err)
	assert.Equal(t, []string{"Lead"}, ex.queried)
	assert.Equal(t, 1, summary.Streams)
	assert.Empty(t, em.events)
}

func TestRunRejectsRecordWithoutCursorValue(t *testing.T) {
	doc := &catalog.Document{Streams: []catalog.CatalogEntry{entry("Case", "SystemModstamp", true)}}
	ex := &fakeExtractor{streams: map[string]*sliceIterator{
		"Case": {records: []catalog.Record{{"Id": "500A"}}},
	}}
	em := &recordingEmitter{}
	o, _ := newTestOrchestrator(ex, em, Options{})

	_, err := o.Run(context.Background(), doc, state.Build(nil, doc, startDate))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	assert.Equal(t, []string{"RECORD"}, em.kinds())
}

func TestRunReleasesScopesOnPanic(t *testing.T) {
	doc := &catalog.Document{Streams: []catalog.CatalogEntry{entry("Task", "SystemModstamp", true)}}
	ex := &fakeExtractor{streams: map[string]*sliceIterator{
		"Task": {records: []catalog.Record{{"Id": "00T1", "SystemModstamp": "2020-01-01T00:00:00Z"}}},
	}}
	hook := transform.HookFunc(func(catalog.Record, catalog.SchemaDocument) (catalog.Record, error) {
		panic("hook exploded")
	})
	o, logs := newTestOrchestrator(ex, &recordingEmitter{}, Options{Hook: hook})

	assert.Panics(t, func() {
		_, _ = o.Run(context.Background(), doc, state.Build(nil, doc, startDate))
	})
	assert.Equal(t, 1, logs.FilterMessage("stream counter closed").Len())
}

func TestExtractorFunc(t *testing.T) {
	called := false
	var ex Extractor = ExtractorFunc(func(catalog.CatalogEntry, *state.State) (RecordIterator, error) {
		called = true
		return &sliceIterator{}, nil
	})

	it, err := ex.Query(entry("Lead", "", true), state.New())
	require.NoError(t, err)
	_, err = it.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.True(t, called)
}
