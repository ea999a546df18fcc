package catalog

import (
	"sort"
	"strings"
)

// LoginHistoryEntity is the only entity allowed to use LoginTime as its cursor.
const LoginHistoryEntity = "LoginHistory"

// replicationKeyPriority is checked in order; the first present field wins.
var replicationKeyPriority = []string{"SystemModstamp", "LastModifiedDate", "CreatedDate"}

// ReplicationKey picks the incremental cursor for an entity from its field
// names. It returns false when the entity is full-refresh only.
func ReplicationKey(entity string, fieldNames []string) (string, bool) {
	present := make(map[string]struct{}, len(fieldNames))
	for _, n := range fieldNames {
		present[n] = struct{}{}
	}

	for _, candidate := range replicationKeyPriority {
		if _, ok := present[candidate]; ok {
			return candidate, true
		}
	}
	if _, ok := present["LoginTime"]; ok && entity == LoginHistoryEntity {
		return "LoginTime", true
	}
	return "", false
}

// BuildSchema converts one entity's fields into a SchemaDocument. It returns
// the chosen replication key (nil when there is none) and the sorted names of
// the composite parents that were excluded from the properties.
//
// The output depends only on the inputs; building twice yields equal documents.
func BuildSchema(entity string, fields []Field) (SchemaDocument, *string, []string) {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}

	var replicationKey *string
	if key, ok := ReplicationKey(entity, names); ok {
		replicationKey = &key
	}

	properties := make(map[string]PropertySchema, len(fields))
	composites := make(map[string]struct{})
	for _, f := range fields {
		properties[f.Name] = propertySchema(f, replicationKey)
		if f.CompositeGroup != "" {
			composites[f.CompositeGroup] = struct{}{}
		}
	}

	if replicationKey != nil {
		p := properties[*replicationKey]
		p.Inclusion = InclusionAutomatic
		properties[*replicationKey] = p
	}

	dropped := make([]string, 0, len(composites))
	for name := range composites {
		// a group naming no field is a no-op
		delete(properties, name)
		dropped = append(dropped, name)
	}
	sort.Strings(dropped)

	return SchemaDocument{
		Type:                 "object",
		AdditionalProperties: false,
		Selected:             false,
		Properties:           properties,
	}, replicationKey, dropped
}

func propertySchema(f Field, replicationKey *string) PropertySchema {
	inclusion := InclusionAvailable
	if f.Name == PrimaryKey {
		inclusion = InclusionAutomatic
	}

	types, format, ok := SchemaType(f.Type, f.Nullable)
	if !ok {
		types, format = nullable("string", f.Nullable), ""
		isKey := f.Name == PrimaryKey || (replicationKey != nil && f.Name == *replicationKey)
		if !isKey {
			inclusion = InclusionUnsupported
		}
	}

	return PropertySchema{
		Inclusion: inclusion,
		Selected:  false,
		Type:      types,
		Format:    format,
	}
}

// SchemaType maps a remote field type to its schema type list and format.
// ok is false for remote types with no mapping.
func SchemaType(remoteType string, isNullable bool) (types []string, format string, ok bool) {
	switch strings.ToLower(remoteType) {
	case "id", "string", "picklist", "textarea", "phone", "url", "reference",
		"multipicklist", "combobox", "encryptedstring", "email", "complexvalue",
		"time", "base64", "byte", "anytype":
		return nullable("string", isNullable), "", true
	case "double", "currency", "percent":
		return nullable("number", isNullable), "", true
	case "int":
		return nullable("integer", isNullable), "", true
	case "boolean":
		return nullable("boolean", isNullable), "", true
	case "datetime", "date":
		return nullable("string", isNullable), "date-time", true
	case "address", "location":
		return nullable("object", isNullable), "", true
	default:
		return nil, "", false
	}
}

func nullable(t string, isNullable bool) []string {
	if isNullable {
		return []string{"null", t}
	}
	return []string{t}
}
