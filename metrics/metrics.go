// Package metrics carries the ambient OpenTelemetry tracing and
// Prometheus instrumentation used across pylock's subsystems: spans
// around every suspension point named in the resolver's concurrency
// model (network request, subprocess wait, lock acquisition), and
// counters/gauges for the resolver's backtrack count and the
// distribution database's in-flight fetch count.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bootstrap installs the process-wide TracerProvider: AlwaysSample
// when sampleAll is set (useful for a one-off resolve/install run a
// caller wants to fully trace), NeverSample otherwise so Tracer calls
// stay cheap no-ops. There is no exporter wired up here (see the
// go.mod ledger for why the OTLP/Jaeger exporter chain was dropped),
// and Bootstrap returns only the provider's Shutdown func, not the
// provider, so callers cannot attach an exporter to it.
//
// Grounded on the teacher's pkg/tracing.Bootstrap, updated from its
// pre-1.0 OTel SDK API to go.opentelemetry.io/otel/sdk/trace and with
// the Jaeger exporter removed.
func Bootstrap(sampleAll bool) (shutdown func(context.Context) error) {
	sampler := sdktrace.NeverSample()
	if sampleAll {
		sampler = sdktrace.AlwaysSample()
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sampler))
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// Tracer returns the named tracer from the global OpenTelemetry
// provider. Callers needn't set up a provider themselves in tests; the
// default no-op provider makes every span a cheap null object.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// HandleError records err on span, if non-nil, and returns err
// unchanged so it can be used inline in a return statement.
func HandleError(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// StartSpan is a small convenience wrapper that also attaches the
// package name being operated on, since nearly every span pylock
// starts is scoped to one.
func StartSpan(ctx context.Context, tracer trace.Tracer, name, pkg string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("pypi.package", pkg)))
}

var (
	resolverBacktracks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pylock",
		Subsystem: "resolve",
		Name:      "backtracks_total",
		Help:      "Cumulative count of PubGrub conflict-resolution backtracks.",
	}, []string{"root"})

	distdbInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pylock",
		Subsystem: "distdb",
		Name:      "inflight_fetches",
		Help:      "Number of distribution fetches/builds currently in flight.",
	}, []string{"kind"})

	distdbFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pylock",
		Subsystem: "distdb",
		Name:      "fetches_total",
		Help:      "Cumulative count of distribution fetches, by kind and outcome.",
	}, []string{"kind", "outcome"})
)

// RecordBacktrack increments the resolver backtrack counter for root.
func RecordBacktrack(root string) { resolverBacktracks.WithLabelValues(root).Inc() }

// InFlightStarted marks the start of an in-flight fetch/build of the
// given kind ("wheel", "sdist", "build"), returning a func to call when
// it completes with the observed outcome ("ok", "error").
func InFlightStarted(kind string) func(outcome string) {
	distdbInFlight.WithLabelValues(kind).Inc()
	return func(outcome string) {
		distdbInFlight.WithLabelValues(kind).Dec()
		distdbFetches.WithLabelValues(kind, outcome).Inc()
	}
}

// PoolStater is the subset of *pgxpool.Pool's Stat method pylock's
// lockstore/postgres backend exposes for Collector.
type PoolStater interface {
	Stat() PoolStat
}

// PoolStat mirrors the fields of *pgxpool.Stat that are worth
// exporting, so this package doesn't need to import pgxpool directly.
type PoolStat struct {
	AcquireCount         int64
	AcquiredConns        int32
	CanceledAcquireCount int64
	ConstructingConns    int32
	EmptyAcquireCount    int64
	IdleConns            int32
	MaxConns             int32
	TotalConns           int32
}

// Collector is a prometheus.Collector reporting connection-pool
// statistics for a named pool, e.g. the lockstore/postgres connection.
type Collector struct {
	name  string
	stat  func() PoolStat
	descs [8]*prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

var poolLabels = []string{"pool"}

// NewCollector builds a Collector that polls stater on every scrape.
func NewCollector(name string, stater PoolStater) *Collector {
	mk := func(n, help string) *prometheus.Desc {
		return prometheus.NewDesc("pylock_pool_"+n, help, poolLabels, nil)
	}
	return &Collector{
		name: name,
		stat: stater.Stat,
		descs: [8]*prometheus.Desc{
			mk("acquire_count", "Cumulative count of successful acquires from the pool."),
			mk("acquired_conns", "Number of currently acquired connections."),
			mk("canceled_acquire_count", "Cumulative count of acquires canceled by their context."),
			mk("constructing_conns", "Number of connections currently under construction."),
			mk("empty_acquire_count", "Cumulative count of acquires that waited on an empty pool."),
			mk("idle_conns", "Number of currently idle connections."),
			mk("max_conns", "Configured maximum pool size."),
			mk("total_conns", "Total connections currently held by the pool."),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stat()
	vals := [8]float64{
		float64(s.AcquireCount), float64(s.AcquiredConns), float64(s.CanceledAcquireCount),
		float64(s.ConstructingConns), float64(s.EmptyAcquireCount), float64(s.IdleConns),
		float64(s.MaxConns), float64(s.TotalConns),
	}
	kinds := [8]prometheus.ValueType{
		prometheus.CounterValue, prometheus.GaugeValue, prometheus.CounterValue,
		prometheus.GaugeValue, prometheus.CounterValue, prometheus.GaugeValue,
		prometheus.GaugeValue, prometheus.GaugeValue,
	}
	for i, d := range c.descs {
		ch <- prometheus.MustNewConstMetric(d, kinds[i], vals[i], c.name)
	}
}
