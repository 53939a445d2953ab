package dbpool

import (
	"sync/atomic"
	"time"
)

// Metrics are per-pool counters. All methods are safe for concurrent use; the
// derived rates are computed on read.
type Metrics struct {
	totalConnections  atomic.Uint64
	activeConnections atomic.Int64
	connectionErrors  atomic.Uint64

	operationCount  atomic.Uint64
	operationTimeMs atomic.Uint64

	writeCount  atomic.Uint64
	writeTimeMs atomic.Uint64
	queryCount  atomic.Uint64
	queryTimeMs atomic.Uint64

	cacheHits    atomic.Uint64
	cacheMisses  atomic.Uint64
	bytesWritten atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// latencyMillis converts d to whole milliseconds with a floor of one so that
// sub-millisecond operations still move the averages.
func latencyMillis(d time.Duration) uint64 {
	ms := d.Milliseconds()
	if ms < 1 {
		return 1
	}
	return uint64(ms)
}

// RecordAcquire counts a successful acquisition.
func (m *Metrics) RecordAcquire() {
	m.totalConnections.Add(1)
	m.activeConnections.Add(1)
}

// ReleaseConnection counts a returned connection.
func (m *Metrics) ReleaseConnection() {
	m.activeConnections.Add(-1)
}

func (m *Metrics) IncrementErrors() {
	m.connectionErrors.Add(1)
}

// RecordOperation counts one generic operation.
func (m *Metrics) RecordOperation(d time.Duration) {
	m.operationCount.Add(1)
	m.operationTimeMs.Add(latencyMillis(d))
}

// RecordQuery counts a read or a statement; it is also an operation.
func (m *Metrics) RecordQuery(d time.Duration) {
	ms := latencyMillis(d)
	m.queryCount.Add(1)
	m.queryTimeMs.Add(ms)
	m.operationCount.Add(1)
	m.operationTimeMs.Add(ms)
}

// RecordWrite counts a write of n bytes; it is also an operation.
func (m *Metrics) RecordWrite(d time.Duration, n int) {
	ms := latencyMillis(d)
	m.writeCount.Add(1)
	m.writeTimeMs.Add(ms)
	m.operationCount.Add(1)
	m.operationTimeMs.Add(ms)
	if n > 0 {
		m.bytesWritten.Add(uint64(n))
	}
}

func (m *Metrics) RecordCacheHit()  { m.cacheHits.Add(1) }
func (m *Metrics) RecordCacheMiss() { m.cacheMisses.Add(1) }

func (m *Metrics) TotalConnections() uint64 { return m.totalConnections.Load() }
func (m *Metrics) ActiveConnections() int64 { return m.activeConnections.Load() }
func (m *Metrics) ConnectionErrors() uint64 { return m.connectionErrors.Load() }
func (m *Metrics) OperationCount() uint64   { return m.operationCount.Load() }
func (m *Metrics) WriteCount() uint64       { return m.writeCount.Load() }
func (m *Metrics) QueryCount() uint64       { return m.queryCount.Load() }
func (m *Metrics) CacheHits() uint64        { return m.cacheHits.Load() }
func (m *Metrics) CacheMisses() uint64      { return m.cacheMisses.Load() }
func (m *Metrics) BytesWritten() uint64     { return m.bytesWritten.Load() }

func average(totalMs, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return float64(totalMs) / float64(count)
}

func perSecond(count, totalMs uint64) float64 {
	if totalMs == 0 {
		return 0
	}
	return float64(count) / (float64(totalMs) / 1000)
}

// AverageOperationTimeMs returns the mean latency across all operations.
func (m *Metrics) AverageOperationTimeMs() float64 {
	return average(m.operationTimeMs.Load(), m.operationCount.Load())
}

func (m *Metrics) AverageWriteTimeMs() float64 {
	return average(m.writeTimeMs.Load(), m.writeCount.Load())
}

func (m *Metrics) AverageQueryTimeMs() float64 {
	return average(m.queryTimeMs.Load(), m.queryCount.Load())
}

// HitRatio returns cache hits as a percentage of lookups.
func (m *Metrics) HitRatio() float64 {
	hits := m.cacheHits.Load()
	total := hits + m.cacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// OperationsPerSecond is throughput over the time spent inside operations.
func (m *Metrics) OperationsPerSecond() float64 {
	return perSecond(m.operationCount.Load(), m.operationTimeMs.Load())
}

func (m *Metrics) WritesPerSecond() float64 {
	return perSecond(m.writeCount.Load(), m.writeTimeMs.Load())
}

func (m *Metrics) BytesPerSecond() float64 {
	return perSecond(m.bytesWritten.Load(), m.writeTimeMs.Load())
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	TotalConnections       uint64  `json:"total_connections"`
	ActiveConnections      int64   `json:"active_connections"`
	ConnectionErrors       uint64  `json:"connection_errors"`
	OperationCount         uint64  `json:"operation_count"`
	AverageOperationTimeMs float64 `json:"avg_operation_time_ms"`
	OperationsPerSecond    float64 `json:"operations_per_second"`
	WriteCount             uint64  `json:"write_count,omitempty"`
	AverageWriteTimeMs     float64 `json:"avg_write_time_ms,omitempty"`
	WritesPerSecond        float64 `json:"writes_per_second,omitempty"`
	QueryCount             uint64  `json:"query_count,omitempty"`
	AverageQueryTimeMs     float64 `json:"avg_query_time_ms,omitempty"`
	BytesWritten           uint64  `json:"bytes_written,omitempty"`
	BytesPerSecond         float64 `json:"bytes_per_second,omitempty"`
	CacheHits              uint64  `json:"cache_hits,omitempty"`
	CacheMisses            uint64  `json:"cache_misses,omitempty"`
	HitRatio               float64 `json:"hit_ratio,omitempty"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalConnections:       m.TotalConnections(),
		ActiveConnections:      m.ActiveConnections(),
		ConnectionErrors:       m.ConnectionErrors(),
		OperationCount:         m.OperationCount(),
		AverageOperationTimeMs: m.AverageOperationTimeMs(),
		OperationsPerSecond:    m.OperationsPerSecond(),
		WriteCount:             m.WriteCount(),
		AverageWriteTimeMs:     m.AverageWriteTimeMs(),
		WritesPerSecond:        m.WritesPerSecond(),
		QueryCount:             m.QueryCount(),
		AverageQueryTimeMs:     m.AverageQueryTimeMs(),
		BytesWritten:           m.BytesWritten(),
		BytesPerSecond:         m.BytesPerSecond(),
		CacheHits:              m.CacheHits(),
		CacheMisses:            m.CacheMisses(),
		HitRatio:               m.HitRatio(),
	}
}
