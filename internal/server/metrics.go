package server

import "sync"

type serverMetrics struct {
	mu        sync.RWMutex
	total     int64
	active    int64
	converted int64
	failed    int64
	rejected  int64
	peak      int64
}

type metricsSnapshot struct {
	total, active, converted, failed, rejected, peak int64
}

func (m *serverMetrics) incActive() {
	m.mu.Lock()
	m.active++
	m.total++
	if m.active > m.peak {
		m.peak = m.active
	}
	m.mu.Unlock()
}

func (m *serverMetrics) decActive() {
	m.mu.Lock()
	m.active--
	m.mu.Unlock()
}

// observe records the outcome of one conversion that reached the engine.
func (m *serverMetrics) observe(failed bool) {
	m.mu.Lock()
	if failed {
		m.failed++
	} else {
		m.converted++
	}
	m.mu.Unlock()
}

// reject counts uploads turned away before conversion.
func (m *serverMetrics) reject() {
	m.mu.Lock()
	m.rejected++
	m.mu.Unlock()
}

func (m *serverMetrics) get() metricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return metricsSnapshot{
		total:     m.total,
		active:    m.active,
		converted: m.converted,
		failed:    m.failed,
		rejected:  m.rejected,
		peak:      m.peak,
	}
}
