package netvolstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Instrumenter wraps operations with Prometheus metrics and OpenTelemetry
// tracing. A nil *Instrumenter is safe to use and records nothing;
// NewInstrumenter itself always returns a non-nil one.
type Instrumenter struct {
	tracer trace.Tracer

	opTotal      *prometheus.CounterVec
	opDuration   *prometheus.HistogramVec
	opBytes      *prometheus.HistogramVec
	multipartOps *prometheus.CounterVec
	multipartPts prometheus.Counter
	listItems    prometheus.Histogram
	listTrunc    prometheus.Counter
	batchSize    *prometheus.HistogramVec
	batchFail    *prometheus.CounterVec
}

// NewInstrumenter registers the instrumenter's collectors on reg (a nil reg
// uses prometheus.DefaultRegisterer). Pass nil for tracerProvider to use
// otel.GetTracerProvider().
func NewInstrumenter(reg prometheus.Registerer, tracerProvider trace.TracerProvider) *Instrumenter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}

	i := &Instrumenter{
		tracer: tracerProvider.Tracer("github.com/runpod/netvolstore"),
		opTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netvolstore_operations_total",
			Help: "Total number of storage operations.",
		}, []string{"operation", "status"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "netvolstore_operation_duration_seconds",
			Help:    "Storage operation duration in seconds.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),
		opBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "netvolstore_operation_bytes",
			Help:    "Storage operation data size in bytes.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 12), // 1KiB .. ~4GiB
		}, []string{"operation"}),
		multipartOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netvolstore_multipart_operations_total",
			Help: "Total number of multipart upload operations.",
		}, []string{"operation"}),
		multipartPts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netvolstore_multipart_parts_total",
			Help: "Total number of multipart upload parts uploaded.",
		}),
		listItems: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "netvolstore_list_items",
			Help:    "Number of items returned per list operation.",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 10000},
		}),
		listTrunc: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netvolstore_list_truncated_total",
			Help: "Number of truncated list operations.",
		}),
		batchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "netvolstore_batch_operation_size",
			Help:    "Number of items in a batch/directory-sync operation.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}, []string{"operation"}),
		batchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netvolstore_batch_operation_failures_total",
			Help: "Number of failed items in batch/directory-sync operations.",
		}, []string{"operation"}),
	}

	for _, c := range []prometheus.Collector{
		i.opTotal, i.opDuration, i.opBytes, i.multipartOps, i.multipartPts,
		i.listItems, i.listTrunc, i.batchSize, i.batchFail,
	} {
		// A second Module() in the same process (e.g. in tests) would
		// otherwise panic on duplicate registration.
		if err := reg.Register(c); err != nil {
			if _, dup := err.(prometheus.AlreadyRegisteredError); !dup {
				panic(err)
			}
		}
	}

	return i
}

// TraceOperation wraps fn with a span named "netvolstore.<operation>" and
// records its outcome and duration.
func (i *Instrumenter) TraceOperation(ctx context.Context, operation, key string, fn func(ctx context.Context) error) error {
	if i == nil {
		return fn(ctx)
	}

	ctx, span := i.tracer.Start(ctx, "netvolstore."+operation, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("netvolstore.operation", operation),
			attribute.String("netvolstore.key", key),
		))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	i.opTotal.WithLabelValues(operation, status).Inc()
	i.opDuration.WithLabelValues(operation).Observe(duration)

	return err
}

// RecordOperationSize records the size of data transferred by operation.
func (i *Instrumenter) RecordOperationSize(operation string, size int64) {
	if i == nil {
		return
	}
	i.opBytes.WithLabelValues(operation).Observe(float64(size))
}

// RecordMultipartOperation records a multipart lifecycle event (create,
// resume, complete, abort) and, when partCount > 0, the number of parts
// uploaded in this call.
func (i *Instrumenter) RecordMultipartOperation(operation string, partCount int) {
	if i == nil {
		return
	}
	i.multipartOps.WithLabelValues(operation).Inc()
	if partCount > 0 {
		i.multipartPts.Add(float64(partCount))
	}
}

// RecordListOperation records a list_objects/list_parts/list_volumes page.
func (i *Instrumenter) RecordListOperation(itemCount int, truncated bool) {
	if i == nil {
		return
	}
	i.listItems.Observe(float64(itemCount))
	if truncated {
		i.listTrunc.Inc()
	}
}

// RecordBatchOperation records a directory-sync or batch-delete outcome.
func (i *Instrumenter) RecordBatchOperation(operation string, totalCount, failedCount int) {
	if i == nil {
		return
	}
	i.batchSize.WithLabelValues(operation).Observe(float64(totalCount))
	if failedCount > 0 {
		i.batchFail.WithLabelValues(operation).Add(float64(failedCount))
	}
}
