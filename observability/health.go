// Package observability aggregates operational counters for the relay.
// Read-only from the outside, it never mutates business state.
package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// HealthSnapshot is what GET /health returns.
type HealthSnapshot struct {
	Status            string  `json:"status"`
	UptimeSeconds     int64   `json:"uptime_seconds"`
	ActiveConnections int64   `json:"active_connections"`
	RequestsServed    uint64  `json:"requests_served"`
	AvgResponseMs     float64 `json:"avg_response_ms"`
	Errors            uint64  `json:"errors"`
	AllocMemMb        uint64  `json:"alloc_mem_mb"`
	CPUPercent        float64 `json:"cpu_percent"`
}

// HealthManager keeps cumulative counters plus a rolling average response
// time computed with an incremental mean, no sample history is stored.
type HealthManager struct {
	startedAt time.Time

	activeConnections atomic.Int64
	requests          atomic.Uint64
	errors            atomic.Uint64

	mu      sync.Mutex
	meanMs  float64
	samples uint64

	// process stats filled in by the reporter worker
	allocMemMb atomic.Uint64
	cpuPercent atomic.Uint64 // stored as basis points to stay atomic
}

func NewHealthManager() *HealthManager {
	return &HealthManager{startedAt: time.Now().UTC()}
}

func (h *HealthManager) ConnOpened()  { h.activeConnections.Add(1) }
func (h *HealthManager) ConnClosed()  { h.activeConnections.Add(-1) }
func (h *HealthManager) IncrRequest() { h.requests.Add(1) }
func (h *HealthManager) IncrError()   { h.errors.Add(1) }

// ObserveLatency folds one response time into the rolling mean:
// mean += (x - mean) / n
func (h *HealthManager) ObserveLatency(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples++
	h.meanMs += (ms - h.meanMs) / float64(h.samples)
}

// SetProcessStats is called by the reporter worker with gopsutil readings.
func (h *HealthManager) SetProcessStats(rssBytes uint64, cpu float64) {
	h.allocMemMb.Store(rssBytes / 1024 / 1024)
	h.cpuPercent.Store(uint64(cpu * 100))
}

func (h *HealthManager) Snapshot() HealthSnapshot {
	h.mu.Lock()
	mean := h.meanMs
	h.mu.Unlock()

	return HealthSnapshot{
		Status:            "ok",
		UptimeSeconds:     int64(time.Since(h.startedAt).Seconds()),
		ActiveConnections: h.activeConnections.Load(),
		RequestsServed:    h.requests.Load(),
		AvgResponseMs:     mean,
		Errors:            h.errors.Load(),
		AllocMemMb:        h.allocMemMb.Load(),
		CPUPercent:        float64(h.cpuPercent.Load()) / 100,
	}
}
