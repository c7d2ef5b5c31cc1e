package normcache

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type otelObserver struct {
	tracer   trace.Tracer
	ops      metric.Int64Counter
	duration metric.Float64Histogram
}

// NewOTelObserver records a span per cache step on tracer and op counts and durations
// on meter. Either may be nil.
func NewOTelObserver(tracer trace.Tracer, meter metric.Meter) (Observer, error) {
	o := &otelObserver{tracer: tracer}
	if meter == nil {
		return o, nil
	}
	var err error
	o.ops, err = meter.Int64Counter(
		"normcache.ops",
		metric.WithDescription("Cache steps and coordinator calls"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ops counter: %w", err)
	}
	o.duration, err = meter.Float64Histogram(
		"normcache.duration",
		metric.WithDescription("Cache step duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	return o, nil
}

func (o *otelObserver) OnCacheOp(ctx context.Context, op Op, key Identity, changed bool, err error, dur time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("normcache.op", string(op)),
		attribute.Bool("normcache.changed", changed),
		attribute.Bool("normcache.error", err != nil),
	}
	if o.tracer != nil {
		end := time.Now()
		_, span := o.tracer.Start(ctx, "normcache."+string(op), trace.WithTimestamp(end.Add(-dur)))
		span.SetAttributes(attrs...)
		span.SetAttributes(attribute.String("normcache.identity", string(key)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End(trace.WithTimestamp(end))
	}
	opts := metric.WithAttributes(attrs...)
	if o.ops != nil {
		o.ops.Add(ctx, 1, opts)
	}
	if o.duration != nil {
		o.duration.Record(ctx, float64(dur.Microseconds())/1000, opts)
	}
}
