package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestResourceMonitorUsage(t *testing.T) {
	rm := NewResourceMonitor()
	u := rm.Usage()

	assert.Positive(t, u.GoroutineCount)
	assert.GreaterOrEqual(t, u.CPUPercent, 0.0)
	if rm.process != nil {
		assert.Positive(t, u.MemoryRSS)
		assert.Equal(t, float64(u.MemoryRSS), testutil.ToFloat64(ProcessRSS))
	}
}

func TestResourceMonitorLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	NewResourceMonitor().Log(zap.New(core))

	entries := logs.FilterMessage("resource usage").All()
	if assert.Len(t, entries, 1) {
		assert.Contains(t, entries[0].ContextMap(), "rss_bytes")
	}
}
