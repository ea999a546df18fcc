package observability

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracingExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:        true,
		ServiceName:    "crmtap-test",
		ServiceVersion: "0.0.0",
		Writer:         &buf,
	})
	require.NoError(t, err)

	_, span := StartStreamSpan(context.Background(), "Lead", "SystemModstamp")
	EndSpan(span, fmt.Errorf("boom"))

	require.NoError(t, shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "sync.stream")
	assert.Contains(t, out, "crmtap.stream")
	assert.Contains(t, out, "Lead")
	assert.Contains(t, out, "boom")
}
