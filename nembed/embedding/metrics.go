package embedding

import (
	"sync"
	"time"
)

// EmbedMetrics tracks embed call counts and latency for one Engine
type EmbedMetrics struct {
	mu             sync.RWMutex
	totalCalls     int64
	successfulOps  int64
	failedOps      int64
	tokens         int64
	totalLatency   time.Duration
	averageLatency time.Duration
	lastCall       time.Time
}

// record updates the counters for a call that started at start
func (m *EmbedMetrics) record(start time.Time, tokens int, success bool) {
	duration := time.Since(start)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalCalls++
	if success {
		m.successfulOps++
		m.tokens += int64(tokens)
	} else {
		m.failedOps++
	}
	m.totalLatency += duration
	m.averageLatency = m.totalLatency / time.Duration(m.totalCalls)
	m.lastCall = time.Now()
}

// GetMetrics returns the counters as a map
func (m *EmbedMetrics) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"total_calls":     m.totalCalls,
		"successful_ops":  m.successfulOps,
		"failed_ops":      m.failedOps,
		"tokens":          m.tokens,
		"average_latency": m.averageLatency,
		"last_call":       m.lastCall,
	}
}
