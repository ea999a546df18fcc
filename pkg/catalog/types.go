// Package catalog builds and reads the extraction catalog: one selectable
// schema document per remote entity, with the incremental cursor chosen for
// each entity and composite parent fields excluded.
package catalog

// Inclusion is a property's sync eligibility tier.
type Inclusion string

const (
	// InclusionAutomatic properties are always synced
	InclusionAutomatic Inclusion = "automatic"
	// InclusionAvailable properties are synced when selected
	InclusionAvailable Inclusion = "available"
	// InclusionUnsupported properties are never synced
	InclusionUnsupported Inclusion = "unsupported"
)

// PrimaryKey is the name of the primary-key field on every entity.
const PrimaryKey = "Id"

// Field is one field of a remote entity as reported by its metadata.
type Field struct {
	Name     string
	Type     string
	Nullable bool
	// CompositeGroup names the composite field this field is a component of.
	CompositeGroup string
}

// PropertySchema describes a single property of a SchemaDocument.
type PropertySchema struct {
	Inclusion Inclusion `json:"inclusion"`
	Selected  bool      `json:"selected"`
	Type      []string  `json:"type"`
	Format    string    `json:"format,omitempty"`
}

// Nullable reports whether the property accepts null.
func (p PropertySchema) Nullable() bool {
	for _, t := range p.Type {
		if t == "null" {
			return true
		}
	}
	return false
}

// BaseType returns the first non-null schema type.
func (p PropertySchema) BaseType() string {
	for _, t := range p.Type {
		if t != "null" {
			return t
		}
	}
	return ""
}

// Synced reports whether values for this property are emitted.
func (p PropertySchema) Synced() bool {
	switch p.Inclusion {
	case InclusionAutomatic:
		return true
	case InclusionAvailable:
		return p.Selected
	default:
		return false
	}
}

// SchemaDocument is the selectable schema of one entity.
type SchemaDocument struct {
	Type                 string                    `json:"type"`
	AdditionalProperties bool                      `json:"additionalProperties"`
	Selected             bool                      `json:"selected"`
	Properties           map[string]PropertySchema `json:"properties"`
}

// CatalogEntry is one entity's schema and selection record.
type CatalogEntry struct {
	Stream         string         `json:"stream"`
	TapStreamID    string         `json:"tap_stream_id"`
	Schema         SchemaDocument `json:"schema"`
	ReplicationKey *string        `json:"replication_key"`
	StreamAlias    string         `json:"stream_alias,omitempty"`
}

// Key returns the replication key, or "" when the entity has none.
func (e CatalogEntry) Key() string {
	if e.ReplicationKey == nil {
		return ""
	}
	return *e.ReplicationKey
}

// HasReplicationKey reports whether the entity can be synced incrementally.
func (e CatalogEntry) HasReplicationKey() bool {
	return e.ReplicationKey != nil && *e.ReplicationKey != ""
}

// Document is the discovery output: every entity, in discovery order.
type Document struct {
	Streams []CatalogEntry `json:"streams"`
}

// Selected returns the selected entries in catalog order.
func (d *Document) Selected() []CatalogEntry {
	var out []CatalogEntry
	for _, e := range d.Streams {
		if e.Schema.Selected {
			out = append(out, e)
		}
	}
	return out
}

// Record is one entity row, field name to value.
type Record map[string]any
