// Package transform turns raw remote records into records shaped by their
// catalog schema: a pluggable pre-hook runs first, then every synced
// property is coerced to its schema type and everything else is dropped.
package transform

import (
	"sort"

	"go.uber.org/zap"

	"github.com/ajitpratap0/crmtap/pkg/catalog"
	"github.com/ajitpratap0/crmtap/pkg/errors"
)

// Transformer is a per-stream scope. Close must be called when the stream
// ends, on success or failure.
type Transformer struct {
	hook    PreHook
	logger  *zap.Logger
	dropped map[string]int
	records int64
	closed  bool
}

// New creates a Transformer. A nil hook means StripAttributes.
func New(hook PreHook, logger *zap.Logger) *Transformer {
	if hook == nil {
		hook = StripAttributes
	}
	return &Transformer{
		hook:    hook,
		logger:  logger.With(zap.String("component", "transformer")),
		dropped: make(map[string]int),
	}
}

// Transform returns a new record holding only the synced properties of
// schema, coerced to their declared types. raw may be modified by the hook.
func (t *Transformer) Transform(raw catalog.Record, schema catalog.SchemaDocument) (catalog.Record, error) {
	if t.closed {
		return nil, errors.New(errors.ErrorTypeInternal, "transformer used after close")
	}

	record, err := t.hook.Apply(raw, schema)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "pre-hook failed")
	}
	t.records++

	out := make(catalog.Record, len(record))
	for name, value := range record {
		prop, known := schema.Properties[name]
		switch {
		case !known || prop.Inclusion == catalog.InclusionUnsupported:
			t.dropped[name]++
			continue
		case !prop.Synced():
			continue
		}

		coerced, err := coerce(value, prop)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to coerce field").
				WithDetail("field", name)
		}
		out[name] = coerced
	}
	return out, nil
}

// Dropped returns the sorted names of fields removed because the schema does
// not declare them or marks them unsupported.
func (t *Transformer) Dropped() []string {
	names := make([]string, 0, len(t.dropped))
	for name := range t.dropped {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close ends the scope and logs the dropped fields once. It is safe to call
// more than once.
func (t *Transformer) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	if dropped := t.Dropped(); len(dropped) > 0 {
		t.logger.Warn("removed fields not in schema or unsupported",
			zap.Strings("fields", dropped),
			zap.Int64("records", t.records))
	}
	return nil
}
