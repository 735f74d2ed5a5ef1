// Package domain holds the value types shared by the workload statistics
// components: per-workload aggregates, per-query metrics, and the reserved
// workload names.
package domain

import (
	"errors"
	"time"
)

const (
	// MaxWorkloads is the number of distinct user workloads that receive their own slot.
	MaxWorkloads = 5000

	// Capacity is the total slot count, user workloads plus the two reserved buckets.
	Capacity = MaxWorkloads + 2

	// UnspecifiedWorkload absorbs queries that carry no workload tag. Always slot 0.
	UnspecifiedWorkload = "__UNSPECIFIED__"

	// OverflowWorkload absorbs workloads first seen after the registry is full. Always slot 1.
	OverflowWorkload = "__OVERFLOW__"

	UnspecifiedSlot = 0
	OverflowSlot    = 1

	// FirstUserSlot is the first slot handed out to a user workload.
	FirstUserSlot = 2
)

var (
	// ErrRegistryClosed is reported when a registry is used after teardown.
	ErrRegistryClosed = errors.New("workload registry is closed")
)

// ReservedWorkloads lists the pre-populated buckets in slot order.
var ReservedWorkloads = [...]string{UnspecifiedWorkload, OverflowWorkload}

// WorkloadStats is the cumulative aggregate for one workload.
// Counters only ever grow; there is no reset.
type WorkloadStats struct {
	Name           string
	QueryCount     uint64
	RowsExamined   uint64
	RowsSent       uint64
	RowsAffected   uint64
	DurationMicros uint64
}

// QueryMetrics is the increment applied for a single completed query.
type QueryMetrics struct {
	RowsExamined   uint64
	RowsSent       uint64
	RowsAffected   uint64
	DurationMicros uint64
}

// Apply adds one query's metrics to s.
func (s *WorkloadStats) Apply(m QueryMetrics) {
	s.QueryCount++
	s.RowsExamined += m.RowsExamined
	s.RowsSent += m.RowsSent
	s.RowsAffected += m.RowsAffected
	s.DurationMicros += m.DurationMicros
}

// IsReserved reports whether name is one of the pre-populated buckets.
func IsReserved(name string) bool {
	return name == UnspecifiedWorkload || name == OverflowWorkload
}

// QueryCompletion is what the host hands over once per finished query.
type QueryCompletion struct {
	Text         string
	RowsExamined uint64
	RowsSent     uint64
	RowsAffected uint64
	Start        time.Time
}

// Metrics converts the completion into the registry increment, measuring the
// duration up to now. A start time in the future (wall clock stepped back
// while the query ran) yields a zero duration.
func (q QueryCompletion) Metrics(now time.Time) QueryMetrics {
	return QueryMetrics{
		RowsExamined:   q.RowsExamined,
		RowsSent:       q.RowsSent,
		RowsAffected:   q.RowsAffected,
		DurationMicros: DurationMicros(q.Start, now),
	}
}

// DurationMicros returns now-start in whole microseconds, floored at zero.
func DurationMicros(start, now time.Time) uint64 {
	d := now.Sub(start).Microseconds()
	if d < 0 {
		return 0
	}
	return uint64(d)
}
