package monitoring

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/compozy/storage/engine/infra/dbpool"
	"github.com/compozy/storage/engine/infra/monitoring/metrics"
)

type poolInstruments struct {
	active      metric.Int64ObservableGauge
	ready       metric.Int64ObservableGauge
	acquired    metric.Int64ObservableCounter
	errors      metric.Int64ObservableCounter
	operations  metric.Int64ObservableCounter
	queries     metric.Int64ObservableCounter
	writes      metric.Int64ObservableCounter
	cacheHits   metric.Int64ObservableCounter
	cacheMisses metric.Int64ObservableCounter
	bytes       metric.Int64ObservableCounter
	avgLatency  metric.Float64ObservableGauge
}

func poolMetricName(name string) string {
	return metrics.MetricNameWithSubsystem("pool", name)
}

func newPoolInstruments(meter metric.Meter) (*poolInstruments, error) {
	var (
		in  poolInstruments
		err error
	)
	gauges := []struct {
		dst  *metric.Int64ObservableGauge
		name string
		desc string
	}{
		{&in.active, "connections_active", "Connections currently held by callers"},
		{&in.ready, "ready", "1 when the pool accepts operations"},
	}
	for _, g := range gauges {
		if *g.dst, err = meter.Int64ObservableGauge(poolMetricName(g.name), metric.WithDescription(g.desc)); err != nil {
			return nil, err
		}
	}
	counters := []struct {
		dst  *metric.Int64ObservableCounter
		name string
		desc string
	}{
		{&in.acquired, "connections_acquired_total", "Successful connection acquisitions"},
		{&in.errors, "errors_total", "Failed acquisitions and operations"},
		{&in.operations, "operations_total", "Completed operations"},
		{&in.queries, "queries_total", "Completed read queries"},
		{&in.writes, "writes_total", "Completed writes"},
		{&in.cacheHits, "cache_hits_total", "Cache lookups that found a value"},
		{&in.cacheMisses, "cache_misses_total", "Cache lookups that found nothing"},
		{&in.bytes, "bytes_written_total", "Payload bytes written"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64ObservableCounter(poolMetricName(c.name), metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}
	in.avgLatency, err = meter.Float64ObservableGauge(
		poolMetricName("average_latency_ms"),
		metric.WithDescription("Mean latency per operation class in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (in *poolInstruments) observables() []metric.Observable {
	return []metric.Observable{
		in.active, in.ready, in.acquired, in.errors, in.operations, in.queries,
		in.writes, in.cacheHits, in.cacheMisses, in.bytes, in.avgLatency,
	}
}

func (in *poolInstruments) observe(o metric.Observer, p dbpool.Pool) {
	m := p.Metrics()
	attrs := metric.WithAttributes(attribute.String("backend", string(p.Backend())))
	ready := int64(0)
	if p.State() == dbpool.StateReady {
		ready = 1
	}
	o.ObserveInt64(in.active, m.ActiveConnections(), attrs)
	o.ObserveInt64(in.ready, ready, attrs)
	o.ObserveInt64(in.acquired, int64(m.TotalConnections()), attrs)
	o.ObserveInt64(in.errors, int64(m.ConnectionErrors()), attrs)
	o.ObserveInt64(in.operations, int64(m.OperationCount()), attrs)
	o.ObserveInt64(in.queries, int64(m.QueryCount()), attrs)
	o.ObserveInt64(in.writes, int64(m.WriteCount()), attrs)
	o.ObserveInt64(in.cacheHits, int64(m.CacheHits()), attrs)
	o.ObserveInt64(in.cacheMisses, int64(m.CacheMisses()), attrs)
	o.ObserveInt64(in.bytes, int64(m.BytesWritten()), attrs)
	backend := attribute.String("backend", string(p.Backend()))
	for class, v := range map[string]float64{
		"operation": m.AverageOperationTimeMs(),
		"query":     m.AverageQueryTimeMs(),
		"write":     m.AverageWriteTimeMs(),
	} {
		o.ObserveFloat64(in.avgLatency, v, metric.WithAttributes(backend, attribute.String("class", class)))
	}
}

// registerPoolMetrics observes every pool of reg on each collection.
func registerPoolMetrics(meter metric.Meter, reg *dbpool.Registry) (metric.Registration, error) {
	in, err := newPoolInstruments(meter)
	if err != nil {
		return nil, err
	}
	pools := reg.Pools()
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, p := range pools {
			in.observe(o, p)
		}
		return nil
	}, in.observables()...)
}

type healthInstruments struct {
	checks   metric.Int64Counter
	duration metric.Float64Histogram
}

func newHealthInstruments(meter metric.Meter) (*healthInstruments, error) {
	checks, err := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("health", "checks_total"),
		metric.WithDescription("Pool health checks by outcome"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("health", "check_duration_seconds"),
		metric.WithDescription("Pool health check response time"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.HealthCheckDurationBuckets...),
	)
	if err != nil {
		return nil, err
	}
	return &healthInstruments{checks: checks, duration: duration}, nil
}

func (h *healthInstruments) record(ctx context.Context, report *dbpool.Report) {
	for _, b := range report.Backends {
		attrs := metric.WithAttributes(
			attribute.String("backend", string(b.Backend)),
			attribute.String("healthy", strconv.FormatBool(b.Healthy())),
		)
		h.checks.Add(ctx, 1, attrs)
		if b.Status != nil {
			h.duration.Record(ctx, b.Status.ResponseTime.Seconds(), attrs)
		}
	}
}
