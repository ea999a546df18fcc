package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/crmtap/pkg/catalog"
)

// dateTimeLayouts are tried in order for date-time strings.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// coerce converts value to the property's schema type.
func coerce(value any, prop catalog.PropertySchema) (any, error) {
	if value == nil {
		if prop.Nullable() {
			return nil, nil
		}
		return nil, fmt.Errorf("null value for non-nullable %s", prop.BaseType())
	}

	switch prop.BaseType() {
	case "string":
		if prop.Format == "date-time" {
			return coerceDateTime(value)
		}
		return coerceString(value)
	case "integer":
		return coerceInteger(value)
	case "number":
		return coerceNumber(value)
	case "boolean":
		return coerceBoolean(value)
	case "object":
		if m, ok := value.(map[string]any); ok {
			return m, nil
		}
		return nil, fmt.Errorf("expected object, got %T", value)
	default:
		return value, nil
	}
}

func coerceString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int:
		return strconv.Itoa(v), nil
	case json.Number:
		return v.String(), nil
	default:
		return nil, fmt.Errorf("expected string, got %T", value)
	}
}

// coerceDateTime normalises to RFC 3339 in UTC. Numbers are unix milliseconds.
func coerceDateTime(value any) (any, error) {
	switch v := value.(type) {
	case string:
		for _, layout := range dateTimeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC().Format(time.RFC3339Nano), nil
			}
		}
		return nil, fmt.Errorf("unparsable date-time %q", v)
	case float64:
		return time.UnixMilli(int64(v)).UTC().Format(time.RFC3339Nano), nil
	case int64:
		return time.UnixMilli(v).UTC().Format(time.RFC3339Nano), nil
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), nil
	default:
		return nil, fmt.Errorf("expected date-time, got %T", value)
	}
}

func coerceInteger(value any) (any, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("non-integral value %v", v)
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %q", v)
		}
		return n, nil
	case json.Number:
		return v.Int64()
	default:
		return nil, fmt.Errorf("expected integer, got %T", value)
	}
}

func coerceNumber(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("expected number, got %q", v)
		}
		return f, nil
	case json.Number:
		return v.Float64()
	default:
		return nil, fmt.Errorf("expected number, got %T", value)
	}
}

func coerceBoolean(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("expected boolean, got %q", v)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("expected boolean, got %T", value)
	}
}
