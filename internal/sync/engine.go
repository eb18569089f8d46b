package sync

import (
	"context"
	"log/slog"

	"github.com/njoerd114/collagesync/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	otelScope        = "collagesync/sync"
	spanSyncCollage  = "sync.collage"
	spanSyncBookmark = "sync.bookmarks"
	spanPush         = "sync.push"
	metricCreated    = "collagesync.collections.created"
	metricUpdated    = "collagesync.collections.updated"
	metricItemsAdded = "collagesync.items.added"
	metricUnmatched  = "collagesync.groups.unmatched"
	metricErrors     = "collagesync.errors"
)

// Engine wraps a Syncer with trace spans and metrics. When telemetry is
// not configured the instruments are no-ops and the wrapper costs
// nothing, so callers always go through the Engine.
type Engine struct {
	syncer *Syncer
	log    *slog.Logger

	// OTel instruments, always non-nil (no-op when telemetry is disabled).
	tracer        trace.Tracer
	cntCreated    metric.Int64Counter
	cntUpdated    metric.Int64Counter
	cntItemsAdded metric.Int64Counter
	cntUnmatched  metric.Int64Counter
	cntErrors     metric.Int64Counter
}

// NewEngine creates an Engine around the given Syncer.
func NewEngine(syncer *Syncer, logger *slog.Logger) *Engine {
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Engine{
		syncer: syncer,
		log:    logger,

		tracer:        tracer,
		cntCreated:    mustCounter(metricCreated, "Number of collections created"),
		cntUpdated:    mustCounter(metricUpdated, "Number of collections updated"),
		cntItemsAdded: mustCounter(metricItemsAdded, "Number of items added to collections"),
		cntUnmatched:  mustCounter(metricUnmatched, "Number of sync passes ending without a library match"),
		cntErrors:     mustCounter(metricErrors, "Number of failed sync passes"),
	}
}

// Syncer returns the wrapped Syncer for operations the Engine does not
// instrument.
func (e *Engine) Syncer() *Syncer { return e.syncer }

// RefreshLibrary delegates to the Syncer.
func (e *Engine) RefreshLibrary(ctx context.Context) (int, error) {
	return e.syncer.RefreshLibrary(ctx)
}

// SyncCollage runs one collage sync pass inside a trace span.
func (e *Engine) SyncCollage(ctx context.Context, collageID int, force bool) Result {
	ctx, span := e.tracer.Start(ctx, spanSyncCollage,
		trace.WithAttributes(attribute.Int("collage.id", collageID)))
	defer span.End()

	result := e.syncer.SyncCollage(ctx, collageID, force)
	e.record(ctx, span, result)
	return result
}

// SyncBookmarks runs one bookmark sync pass inside a trace span.
func (e *Engine) SyncBookmarks(ctx context.Context, force bool) Result {
	ctx, span := e.tracer.Start(ctx, spanSyncBookmark)
	defer span.End()

	result := e.syncer.SyncBookmarks(ctx, force)
	e.record(ctx, span, result)
	return result
}

// SyncAll forces an update pass over every stored grouping of the site.
func (e *Engine) SyncAll(ctx context.Context) ([]Result, error) {
	ctx, span := e.tracer.Start(ctx, "sync.all")
	defer span.End()

	results, err := e.syncer.SyncAll(ctx)
	if err != nil {
		span.RecordError(err)
		e.cntErrors.Add(ctx, 1)
		return nil, err
	}
	for _, r := range results {
		e.record(ctx, span, r)
	}
	span.SetAttributes(attribute.Int("sync.groupings", len(results)))
	return results, nil
}

// PushUpstream pushes one grouping inside a trace span.
func (e *Engine) PushUpstream(ctx context.Context, g model.Grouping) PushResult {
	ctx, span := e.tracer.Start(ctx, spanPush,
		trace.WithAttributes(attribute.Int("collage.id", g.RemoteListID)))
	defer span.End()

	result := e.syncer.PushUpstream(ctx, g)
	if result.Err != nil {
		span.RecordError(result.Err)
		e.cntErrors.Add(ctx, 1)
	}
	span.SetAttributes(
		attribute.Int("push.added", result.Added),
		attribute.Int("push.rejected", result.Rejected),
		attribute.Int("push.duplicated", result.Duplicated),
	)
	return result
}

// PushAll delegates to the Syncer.
func (e *Engine) PushAll(ctx context.Context) ([]PushResult, error) {
	return e.syncer.PushAll(ctx)
}

// record updates counters and span attributes from one Result.
func (e *Engine) record(ctx context.Context, span trace.Span, r Result) {
	switch r.Status {
	case StatusCreated:
		e.cntCreated.Add(ctx, 1)
	case StatusUpdated:
		e.cntUpdated.Add(ctx, 1)
	case StatusNoMatch:
		e.cntUnmatched.Add(ctx, 1)
	case StatusFailed:
		e.cntErrors.Add(ctx, 1)
	}
	if r.ItemsAdded > 0 {
		e.cntItemsAdded.Add(ctx, int64(r.ItemsAdded))
	}
	span.SetAttributes(
		attribute.String("sync.name", r.Name),
		attribute.String("sync.status", r.Status.String()),
		attribute.Int("sync.items_added", r.ItemsAdded),
	)
	if r.Err != nil {
		span.RecordError(r.Err)
	}
}
