package dbpool

import (
	"time"
)

// ProbeResult is the outcome of one sub-check inside a health check.
type ProbeResult struct {
	Name     string        `json:"name"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// HealthStatus is the uniform result of a pool health check.
type HealthStatus struct {
	Backend      Backend         `json:"backend"`
	Healthy      bool            `json:"healthy"`
	ResponseTime time.Duration   `json:"response_time"`
	Probes       []ProbeResult   `json:"probes"`
	ErrorCount   uint64          `json:"error_count"`
	Metrics      MetricsSnapshot `json:"metrics"`
	CheckedAt    time.Time       `json:"checked_at"`

	started time.Time
}

// NewHealthStatus starts timing a health check.
func NewHealthStatus(backend Backend) *HealthStatus {
	return &HealthStatus{Backend: backend, started: time.Now()}
}

// AddProbe records a sub-check. A nil err means the probe passed.
func (h *HealthStatus) AddProbe(name string, err error, d time.Duration) {
	p := ProbeResult{Name: name, OK: err == nil, Duration: d}
	if err != nil {
		p.Error = err.Error()
	}
	h.Probes = append(h.Probes, p)
}

// Probe returns the named sub-check.
func (h *HealthStatus) Probe(name string) (ProbeResult, bool) {
	for _, p := range h.Probes {
		if p.Name == name {
			return p, true
		}
	}
	return ProbeResult{}, false
}

// Finish stamps timing and metrics. The status is healthy only when at least
// one probe ran and every probe passed.
func (h *HealthStatus) Finish(m *Metrics) *HealthStatus {
	h.ResponseTime = time.Since(h.started)
	h.CheckedAt = time.Now().UTC()
	h.Healthy = len(h.Probes) > 0
	for _, p := range h.Probes {
		if !p.OK {
			h.Healthy = false
			break
		}
	}
	if m != nil {
		h.ErrorCount = m.ConnectionErrors()
		h.Metrics = m.Snapshot()
	}
	return h
}
