package logger

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Metrics is a logrus hook that counts what flows through the logger.
type Metrics struct {
	mu          sync.Mutex
	total       int64
	errors      int64
	logsByLevel map[logrus.Level]int64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	TotalLogs   int64            `json:"total_logs"`
	ErrorLogs   int64            `json:"error_logs"`
	LogsByLevel map[string]int64 `json:"logs_by_level"`
}

// NewMetrics returns a zeroed metrics hook.
func NewMetrics() *Metrics {
	return &Metrics{logsByLevel: make(map[logrus.Level]int64)}
}

// Levels implements logrus.Hook.
func (m *Metrics) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (m *Metrics) Fire(entry *logrus.Entry) error {
	m.mu.Lock()
	m.total++
	m.logsByLevel[entry.Level]++
	if entry.Level <= logrus.ErrorLevel {
		m.errors++
	}
	m.mu.Unlock()
	return nil
}

// Snapshot copies the counters out.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	byLevel := make(map[string]int64, len(m.logsByLevel))
	for level, n := range m.logsByLevel {
		byLevel[level.String()] = n
	}
	return MetricsSnapshot{
		TotalLogs:   m.total,
		ErrorLogs:   m.errors,
		LogsByLevel: byLevel,
	}
}
