package catalog

import (
	"context"
	"regexp"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ajitpratap0/crmtap/pkg/errors"
)

// MetadataSource reports the extractable entities and their fields.
type MetadataSource interface {
	// ListObjects returns the names of every extractable entity.
	ListObjects(ctx context.Context) ([]string, error)
	// DescribeObject returns the fields of one entity.
	DescribeObject(ctx context.Context, name string) ([]Field, error)
	// RateLimitInfo returns the most recent API usage header value, or "".
	RateLimitInfo() string
}

var apiUsagePattern = regexp.MustCompile(`^api-usage=(\d+)/(\d+)$`)

// ParseAPIUsage parses an "api-usage=<used>/<total>" header value.
func ParseAPIUsage(header string) (used, total int64, ok bool) {
	m := apiUsagePattern.FindStringSubmatch(header)
	if m == nil {
		return 0, 0, false
	}
	used, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	total, err = strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return used, total, true
}

// Assembler runs schema building over every entity of a MetadataSource.
type Assembler struct {
	source MetadataSource
	logger *zap.Logger
}

// NewAssembler creates an Assembler reading from source.
func NewAssembler(source MetadataSource, logger *zap.Logger) *Assembler {
	return &Assembler{
		source: source,
		logger: logger.With(zap.String("component", "catalog")),
	}
}

// Discover describes every entity and returns the discovery document.
func (a *Assembler) Discover(ctx context.Context) (*Document, error) {
	ctx, span := otel.Tracer("crmtap/catalog").Start(ctx, "catalog.discover")
	defer span.End()

	names, err := a.source.ListObjects(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list objects")
		return nil, err
	}

	doc := &Document{Streams: make([]CatalogEntry, 0, len(names))}
	for _, name := range names {
		fields, err := a.source.DescribeObject(ctx, name)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "describe object")
			errType := errors.TypeOf(err, errors.ErrorTypeMetadata)
			return nil, errors.Wrap(err, errType, "failed to describe object").
				WithDetail("object", name)
		}

		a.logQuota()

		schema, key, dropped := BuildSchema(name, fields)
		if len(dropped) > 0 {
			a.logger.Info("not syncing compound fields",
				zap.String("object", name),
				zap.Strings("compound_fields", dropped))
		}

		doc.Streams = append(doc.Streams, CatalogEntry{
			Stream:         name,
			TapStreamID:    name,
			Schema:         schema,
			ReplicationKey: key,
		})
	}

	span.SetAttributes(attribute.Int("catalog.streams", len(doc.Streams)))
	a.logger.Info("discovery complete", zap.Int("streams", len(doc.Streams)))
	return doc, nil
}

func (a *Assembler) logQuota() {
	used, total, ok := ParseAPIUsage(a.source.RateLimitInfo())
	if !ok {
		return
	}
	a.logger.Info("daily API quota",
		zap.Int64("used", used),
		zap.Int64("total", total))
}
