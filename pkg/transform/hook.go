package transform

import "github.com/ajitpratap0/crmtap/pkg/catalog"

// PreHook adjusts a raw record before schema coercion. It runs once per record.
type PreHook interface {
	Apply(record catalog.Record, schema catalog.SchemaDocument) (catalog.Record, error)
}

// HookFunc adapts a function to PreHook.
type HookFunc func(record catalog.Record, schema catalog.SchemaDocument) (catalog.Record, error)

// Apply calls f.
func (f HookFunc) Apply(record catalog.Record, schema catalog.SchemaDocument) (catalog.Record, error) {
	return f(record, schema)
}

// AttributesField is the per-record metadata envelope added by the remote API.
const AttributesField = "attributes"

// StripAttributes removes the attributes envelope unless the schema declares
// a property of that name.
var StripAttributes = HookFunc(func(record catalog.Record, schema catalog.SchemaDocument) (catalog.Record, error) {
	if _, declared := schema.Properties[AttributesField]; declared {
		return record, nil
	}
	delete(record, AttributesField)
	return record, nil
})

// Chain runs hooks in order, feeding each the previous output.
func Chain(hooks ...PreHook) PreHook {
	return HookFunc(func(record catalog.Record, schema catalog.SchemaDocument) (catalog.Record, error) {
		var err error
		for _, h := range hooks {
			if record, err = h.Apply(record, schema); err != nil {
				return nil, err
			}
		}
		return record, nil
	})
}
