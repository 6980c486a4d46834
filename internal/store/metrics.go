package store

import (
	"sync/atomic"
	"time"
)

// Metrics counts transaction outcomes across every room.
type Metrics struct {
	transactions  int64
	commits       int64
	conflicts     int64
	retries       int64
	exhausted     int64
	subscriptions int64
	startTime     time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) incTransactions()  { atomic.AddInt64(&m.transactions, 1) }
func (m *Metrics) incCommits()       { atomic.AddInt64(&m.commits, 1) }
func (m *Metrics) incConflicts()     { atomic.AddInt64(&m.conflicts, 1) }
func (m *Metrics) incRetries()       { atomic.AddInt64(&m.retries, 1) }
func (m *Metrics) incExhausted()     { atomic.AddInt64(&m.exhausted, 1) }
func (m *Metrics) incSubscriptions() { atomic.AddInt64(&m.subscriptions, 1) }
func (m *Metrics) decSubscriptions() { atomic.AddInt64(&m.subscriptions, -1) }

type MetricsSnapshot struct {
	Transactions        int64 `json:"transactions"`
	Commits             int64 `json:"commits"`
	Conflicts           int64 `json:"conflicts"`
	Retries             int64 `json:"retries"`
	Exhausted           int64 `json:"exhausted"`
	ActiveSubscriptions int64 `json:"active_subscriptions"`
	UptimeSeconds       int64 `json:"uptime_seconds"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Transactions:        atomic.LoadInt64(&m.transactions),
		Commits:             atomic.LoadInt64(&m.commits),
		Conflicts:           atomic.LoadInt64(&m.conflicts),
		Retries:             atomic.LoadInt64(&m.retries),
		Exhausted:           atomic.LoadInt64(&m.exhausted),
		ActiveSubscriptions: atomic.LoadInt64(&m.subscriptions),
		UptimeSeconds:       int64(time.Since(m.startTime).Seconds()),
	}
}
