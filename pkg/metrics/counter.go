package metrics

import (
	"time"

	"go.uber.org/zap"
)

// RecordCounter counts the records of one stream. It logs a progress metric
// line every interval and a final one on Close, in the shape downstream
// tooling parses:
//
//	{"type":"counter","metric":"record_count","value":N,"tags":{"endpoint":"Account"}}
//
// A RecordCounter is not safe for concurrent use; the sync loop owns it.
type RecordCounter struct {
	stream     string
	interval   time.Duration
	logger     *zap.Logger
	throughput *ThroughputTracker
	timer      *Timer

	total    int64
	sinceLog int64
	lastLog  time.Time
	now      func() time.Time
	closed   bool
}

// NewRecordCounter opens a counter scope for stream. A zero interval only
// logs on Close.
func NewRecordCounter(stream string, interval time.Duration, logger *zap.Logger) *RecordCounter {
	c := &RecordCounter{
		stream:     stream,
		interval:   interval,
		logger:     logger.With(zap.String("component", "metrics"), zap.String("stream", stream)),
		throughput: NewThroughputTracker(stream),
		timer:      NewTimer(stream),
		now:        time.Now,
	}
	c.lastLog = c.now()
	return c
}

// Increment counts one record and logs progress when the interval has passed.
func (c *RecordCounter) Increment() {
	c.total++
	c.sinceLog++
	c.throughput.Increment(1)
	RecordsSynced.WithLabelValues(c.stream).Inc()

	if c.interval > 0 && c.now().Sub(c.lastLog) >= c.interval {
		c.emit()
	}
}

// Count returns the records counted so far.
func (c *RecordCounter) Count() int64 {
	return c.total
}

// Close logs the final metric line and the stream's elapsed time. It is
// safe to call more than once.
func (c *RecordCounter) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.emit()
	c.logger.Info("stream counter closed",
		zap.Int64("records", c.total),
		zap.Duration("elapsed", c.timer.Stop()))
	return nil
}

func (c *RecordCounter) emit() {
	c.logger.Info("METRIC",
		zap.String("type", "counter"),
		zap.String("metric", "record_count"),
		zap.Int64("value", c.sinceLog),
		zap.Any("tags", map[string]string{"endpoint": c.stream}),
		zap.Float64("records_per_second", c.throughput.GetAndReset()))
	c.sinceLog = 0
	c.lastLog = c.now()
}
