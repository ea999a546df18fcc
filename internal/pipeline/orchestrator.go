// Package pipeline drives a sync run: for every selected stream, in catalog
// order, it pulls raw records from the extractor, transforms and emits each
// one, and checkpoints the bookmark after every record.
//
// The run is strictly sequential. A failure on any stream aborts the run;
// checkpoints already emitted remain the resume point.
package pipeline

import (
	"context"
	stderrors "errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/crmtap/pkg/catalog"
	"github.com/ajitpratap0/crmtap/pkg/errors"
	"github.com/ajitpratap0/crmtap/pkg/logger"
	"github.com/ajitpratap0/crmtap/pkg/messages"
	"github.com/ajitpratap0/crmtap/pkg/metrics"
	"github.com/ajitpratap0/crmtap/pkg/observability"
	"github.com/ajitpratap0/crmtap/pkg/state"
	"github.com/ajitpratap0/crmtap/pkg/transform"
)

// RecordIterator is a finite, pull-driven record sequence. Next returns
// io.EOF when it is exhausted.
type RecordIterator interface {
	Next(ctx context.Context) (catalog.Record, error)
}

// PageCounter is implemented by iterators that fetch records in pages.
type PageCounter interface {
	Pages() int
}

// Extractor opens the record sequence of one catalog entry, starting from
// the bookmark held in st. Records must arrive in non-decreasing cursor order.
type Extractor interface {
	Query(entry catalog.CatalogEntry, st *state.State) (RecordIterator, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(entry catalog.CatalogEntry, st *state.State) (RecordIterator, error)

// Query calls f.
func (f ExtractorFunc) Query(entry catalog.CatalogEntry, st *state.State) (RecordIterator, error) {
	return f(entry, st)
}

// Options tune an Orchestrator.
type Options struct {
	// Hook runs on every raw record before coercion. Nil means
	// transform.StripAttributes.
	Hook transform.PreHook
	// MetricsLogInterval is how often record counters log progress.
	MetricsLogInterval time.Duration
}

// Orchestrator runs the per-stream sync loop.
type Orchestrator struct {
	extractor Extractor
	emitter   messages.Emitter
	opts      Options
	logger    *zap.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(extractor Extractor, emitter messages.Emitter, opts Options, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		extractor: extractor,
		emitter:   emitter,
		opts:      opts,
		logger:    log.With(zap.String("component", "orchestrator")),
	}
}

// Summary reports what a run emitted.
type Summary struct {
	Streams int
	Records int64
}

// Run syncs every selected entry of doc in catalog order. st is updated in
// place after each record and emitted as a checkpoint.
func (o *Orchestrator) Run(ctx context.Context, doc *catalog.Document, st *state.State) (Summary, error) {
	var summary Summary
	for _, entry := range doc.Streams {
		if !entry.Schema.Selected {
			continue
		}

		n, err := o.syncStream(ctx, entry, st)
		summary.Records += n
		if err != nil {
			return summary, err
		}
		summary.Streams++
	}
	return summary, nil
}

// syncStream syncs one entry. The transformer and counter are released on
// every exit path, including a panic.
func (o *Orchestrator) syncStream(ctx context.Context, entry catalog.CatalogEntry, st *state.State) (count int64, err error) {
	ctx = logger.WithStream(ctx, entry.Stream)
	log := o.logger.With(zap.String("stream", entry.Stream))

	ctx, span := observability.StartStreamSpan(ctx, entry.Stream, entry.Key())
	timer := metrics.NewTimer(entry.Stream)
	transformer := transform.New(o.opts.Hook, log)
	counter := metrics.NewRecordCounter(entry.Stream, o.opts.MetricsLogInterval, log)

	defer func() {
		_ = counter.Close()
		_ = transformer.Close()
		count = counter.Count()

		status := "success"
		if err != nil {
			status = "failure"
		}
		metrics.StreamDuration.WithLabelValues(entry.Stream, status).Observe(timer.Stop().Seconds())
		observability.EndSpan(span, err)
	}()

	log.Info("syncing stream", zap.String("replication_key", entry.Key()))

	records, err := o.extractor.Query(entry, st)
	if err != nil {
		return 0, err
	}

	for {
		raw, err := records.Next(ctx)
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}

		counter.Increment()

		record, err := transformer.Transform(raw, entry.Schema)
		if err != nil {
			return 0, err
		}

		if err := o.emitter.WriteRecord(ctx, messages.RecordEvent{
			Stream: entry.Stream,
			Record: record,
			Alias:  entry.StreamAlias,
		}); err != nil {
			return 0, err
		}

		if !entry.HasReplicationKey() {
			continue
		}

		key := entry.Key()
		value, ok := record[key]
		if !ok || value == nil {
			return 0, errors.New(errors.ErrorTypeData, "record has no replication key value").
				WithDetail("stream", entry.Stream).
				WithDetail("replication_key", key)
		}
		st.SetBookmark(entry.TapStreamID, key, value)
		if err := o.emitter.WriteState(ctx, st); err != nil {
			return 0, err
		}
	}

	fields := []zap.Field{zap.Int64("records", counter.Count())}
	if pc, ok := records.(PageCounter); ok {
		fields = append(fields, zap.Int("pages", pc.Pages()))
	}
	log.Info("stream complete", fields...)
	return 0, nil
}
