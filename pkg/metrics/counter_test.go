package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func TestRecordCounterCountsAndFeedsPrometheus(t *testing.T) {
	before := testutil.ToFloat64(RecordsSynced.WithLabelValues("CounterTest"))

	c := NewRecordCounter("CounterTest", 0, zap.NewNop())
	for i := 0; i < 5; i++ {
		c.Increment()
	}
	require.NoError(t, c.Close())

	assert.Equal(t, int64(5), c.Count())
	assert.Equal(t, before+5, testutil.ToFloat64(RecordsSynced.WithLabelValues("CounterTest")))
}

func TestRecordCounterLogsOnInterval(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	c := NewRecordCounter("Lead", time.Minute, zap.New(core))
	c.now = clock.Now
	c.lastLog = clock.Now()

	c.Increment()
	c.Increment()
	assert.Zero(t, logs.FilterMessage("METRIC").Len())

	clock.t = clock.t.Add(61 * time.Second)
	c.Increment()

	progress := logs.FilterMessage("METRIC").All()
	require.Len(t, progress, 1)
	assert.Equal(t, int64(3), progress[0].ContextMap()["value"])
	assert.Equal(t, "record_count", progress[0].ContextMap()["metric"])

	c.Increment()
	require.NoError(t, c.Close())

	progress = logs.FilterMessage("METRIC").All()
	require.Len(t, progress, 2)
	assert.Equal(t, int64(1), progress[1].ContextMap()["value"])
	assert.Equal(t, int64(4), c.Count())
}

func TestRecordCounterCloseIsIdempotent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	c := NewRecordCounter("Contact", 0, zap.New(core))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Equal(t, 1, logs.FilterMessage("stream counter closed").Len())
}

func TestThroughputTracker(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	tr := NewThroughputTracker("Throughput")
	tr.now = clock.Now
	tr.lastReset = clock.Now()

	tr.Increment(50)
	clock.t = clock.t.Add(10 * time.Second)

	assert.InDelta(t, 5.0, tr.GetAndReset(), 0.0001)
	assert.InDelta(t, 5.0, testutil.ToFloat64(Throughput.WithLabelValues("Throughput")), 0.0001)
	assert.Zero(t, tr.GetAndReset())
}
