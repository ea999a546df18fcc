package transform

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/crmtap/pkg/catalog"
	"github.com/ajitpratap0/crmtap/pkg/errors"
)

func leadSchema() catalog.SchemaDocument {
	return catalog.SchemaDocument{
		Type:     "object",
		Selected: true,
		Properties: map[string]catalog.PropertySchema{
			"Id":             {Inclusion: catalog.InclusionAutomatic, Type: []string{"string"}},
			"SystemModstamp": {Inclusion: catalog.InclusionAutomatic, Type: []string{"string"}, Format: "date-time"},
			"Email":          {Inclusion: catalog.InclusionAvailable, Selected: true, Type: []string{"null", "string"}},
			"Phone":          {Inclusion: catalog.InclusionAvailable, Selected: false, Type: []string{"null", "string"}},
			"NumberOfStaff":  {Inclusion: catalog.InclusionAvailable, Selected: true, Type: []string{"null", "integer"}},
			"AnnualRevenue":  {Inclusion: catalog.InclusionAvailable, Selected: true, Type: []string{"null", "number"}},
			"IsConverted":    {Inclusion: catalog.InclusionAvailable, Selected: true, Type: []string{"boolean"}},
			"Blob__c":        {Inclusion: catalog.InclusionUnsupported, Selected: true, Type: []string{"null", "string"}},
			"Address":        {Inclusion: catalog.InclusionAvailable, Selected: true, Type: []string{"null", "object"}},
			"ConvertedDate":  {Inclusion: catalog.InclusionAvailable, Selected: true, Type: []string{"null", "string"}, Format: "date-time"},
		},
	}
}

func TestTransformSelectsAndCoerces(t *testing.T) {
	tr := New(nil, zap.NewNop())
	defer tr.Close()

	raw := catalog.Record{
		"attributes":     map[string]any{"type": "Lead", "url": "/services/data/v41.0/sobjects/Lead/00Q1"},
		"Id":             "00Q1",
		"SystemModstamp": "2020-02-01T00:00:00.000+0000",
		"Email":          "a@example.com",
		"Phone":          "555-0100",
		"NumberOfStaff":  float64(12),
		"AnnualRevenue":  "1250.50",
		"IsConverted":    "false",
		"Blob__c":        "xyz",
		"Address":        map[string]any{"city": "Paris"},
		"ConvertedDate":  nil,
		"Unknown__c":     1,
	}

	out, err := tr.Transform(raw, leadSchema())
	require.NoError(t, err)

	assert.Equal(t, catalog.Record{
		"Id":             "00Q1",
		"SystemModstamp": "2020-02-01T00:00:00Z",
		"Email":          "a@example.com",
		"NumberOfStaff":  int64(12),
		"AnnualRevenue":  1250.5,
		"IsConverted":    false,
		"Address":        map[string]any{"city": "Paris"},
		"ConvertedDate":  nil,
	}, out)

	assert.Equal(t, []string{"Blob__c", "Unknown__c"}, tr.Dropped())
}

func TestTransformKeepsCanonicalTimestamp(t *testing.T) {
	tr := New(nil, zap.NewNop())
	defer tr.Close()

	out, err := tr.Transform(catalog.Record{"Id": "1", "SystemModstamp": "2020-02-01T00:00:00Z"}, leadSchema())
	require.NoError(t, err)
	assert.Equal(t, "2020-02-01T00:00:00Z", out["SystemModstamp"])
}

func TestTransformUnixMillisDateTime(t *testing.T) {
	tr := New(nil, zap.NewNop())
	defer tr.Close()

	out, err := tr.Transform(catalog.Record{"Id": "1", "SystemModstamp": float64(1580515200000)}, leadSchema())
	require.NoError(t, err)
	assert.Equal(t, "2020-02-01T00:00:00Z", out["SystemModstamp"])
}

func TestTransformCoercionErrors(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value any
	}{
		{"null for non-nullable", "IsConverted", nil},
		{"fractional integer", "NumberOfStaff", 1.5},
		{"text integer", "NumberOfStaff", "many"},
		{"bad timestamp", "SystemModstamp", "last tuesday"},
		{"bad boolean", "IsConverted", "maybe"},
		{"object mismatch", "Address", "Paris"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(nil, zap.NewNop())
			defer tr.Close()

			_, err := tr.Transform(catalog.Record{"Id": "1", tt.field: tt.value}, leadSchema())
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeData))
			assert.True(t, errors.IsOperational(err))
		})
	}
}

func TestTransformRunsHookFirst(t *testing.T) {
	var seen []string
	hook := HookFunc(func(r catalog.Record, _ catalog.SchemaDocument) (catalog.Record, error) {
		seen = append(seen, r["Id"].(string))
		r["Email"] = "hooked@example.com"
		return r, nil
	})

	tr := New(Chain(StripAttributes, hook), zap.NewNop())
	defer tr.Close()

	out, err := tr.Transform(catalog.Record{"Id": "1", "attributes": map[string]any{}}, leadSchema())
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, seen)
	assert.Equal(t, "hooked@example.com", out["Email"])
	assert.Empty(t, tr.Dropped())
}

func TestTransformHookError(t *testing.T) {
	tr := New(HookFunc(func(catalog.Record, catalog.SchemaDocument) (catalog.Record, error) {
		return nil, fmt.Errorf("rejected")
	}), zap.NewNop())
	defer tr.Close()

	_, err := tr.Transform(catalog.Record{"Id": "1"}, leadSchema())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}

func TestStripAttributesKeepsDeclaredProperty(t *testing.T) {
	schema := catalog.SchemaDocument{Properties: map[string]catalog.PropertySchema{
		"attributes":     {Inclusion: catalog.InclusionAvailable, Selected: true, Type: []string{"object"}},
	}}

	out, err := StripAttributes.Apply(catalog.Record{"attributes": map[string]any{"type": "X"}}, schema)
	require.NoError(t, err)
	assert.Contains(t, out, "attributes")
}

func TestCloseLogsDroppedOnce(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tr := New(nil, zap.New(core))

	_, err := tr.Transform(catalog.Record{"Id": "1", "Extra": "x"}, leadSchema())
	require.NoError(t, err)
	_, err = tr.Transform(catalog.Record{"Id": "2", "Extra": "y"}, leadSchema())
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	entries := logs.FilterMessage("removed fields not in schema or unsupported").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["records"])

	_, err = tr.Transform(catalog.Record{"Id": "3"}, leadSchema())
	assert.Error(t, err)
}
