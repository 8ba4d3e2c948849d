package pipeline

import (
	"sync"
	"time"
)

// Metrics tracks parse performance
type Metrics struct {
	TotalParses      int64
	SuccessfulParses int64
	FailedParses     int64
	RedactedParses   int64
	CacheHits        int64
	AverageDuration  time.Duration
	TotalDuration    time.Duration
	mutex            sync.RWMutex
}

// NewMetrics creates a new parse metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordParse records the outcome of one worker parse.
func (m *Metrics) RecordParse(kind TaskKind, d time.Duration, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalParses++
	m.TotalDuration += d
	if kind == TaskRedacted {
		m.RedactedParses++
	}
	if err != nil {
		m.FailedParses++
	} else {
		m.SuccessfulParses++
	}
	m.AverageDuration = m.TotalDuration / time.Duration(m.TotalParses)
}

// RecordCacheHit records a parse served from the parse cache.
func (m *Metrics) RecordCacheHit() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.CacheHits++
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() Metrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return Metrics{
		TotalParses:      m.TotalParses,
		SuccessfulParses: m.SuccessfulParses,
		FailedParses:     m.FailedParses,
		RedactedParses:   m.RedactedParses,
		CacheHits:        m.CacheHits,
		AverageDuration:  m.AverageDuration,
		TotalDuration:    m.TotalDuration,
	}
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalParses = 0
	m.SuccessfulParses = 0
	m.FailedParses = 0
	m.RedactedParses = 0
	m.CacheHits = 0
	m.AverageDuration = 0
	m.TotalDuration = 0
}

// GetCacheHitRate returns the share of full parses served from the cache,
// as a percentage.
func (m *Metrics) GetCacheHitRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	total := m.TotalParses + m.CacheHits
	if total == 0 {
		return 0.0
	}
	return float64(m.CacheHits) / float64(total) * 100.0
}

// GetSuccessRate returns the success rate as a percentage
func (m *Metrics) GetSuccessRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.TotalParses == 0 {
		return 0.0
	}
	return float64(m.SuccessfulParses) / float64(m.TotalParses) * 100.0
}
