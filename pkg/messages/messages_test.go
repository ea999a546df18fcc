package messages

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/crmtap/pkg/catalog"
	"github.com/ajitpratap0/crmtap/pkg/state"
)

func TestWriterEmitsJSONLines(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)
	ctx := context.Background()

	require.NoError(t, w.WriteRecord(ctx, RecordEvent{
		Stream: "Lead",
		Record: catalog.Record{"Id": "00Q1", "SystemModstamp": "2020-02-01T00:00:00Z"},
	}))

	s := state.New()
	s.SetBookmark("Lead", "SystemModstamp", "2020-02-01T00:00:00Z")
	require.NoError(t, w.WriteState(ctx, s))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"type":"RECORD","stream":"Lead","record":{"Id":"00Q1","SystemModstamp":"2020-02-01T00:00:00Z"}}`, lines[0])
	assert.JSONEq(t, `{"type":"STATE","value":{"bookmarks":{"Lead":{"SystemModstamp":"2020-02-01T00:00:00Z"}}}}`, lines[1])
}

func TestWriterUsesAlias(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)

	require.NoError(t, w.WriteRecord(context.Background(), RecordEvent{
		Stream: "Lead",
		Alias:  "sf_lead",
		Record: catalog.Record{"Id": "00Q1"},
	}))

	assert.JSONEq(t, `{"type":"RECORD","stream":"sf_lead","record":{"Id":"00Q1"}}`, out.String())
}

func TestWriterFlushesEachMessage(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)

	require.NoError(t, w.WriteState(context.Background(), state.New()))
	assert.Equal(t, "{\"type\":\"STATE\",\"value\":{\"bookmarks\":{}}}\n", out.String())
}

func TestWriterRespectsCancellation(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.WriteRecord(ctx, RecordEvent{Stream: "Lead", Record: catalog.Record{}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, out.Len())
}
