package aggregator

import (
	"iter"

	"github.com/haukened/wlstats/internal/workload/domain"
)

// Registry stores per-workload counters. The contract is the same whether the
// implementation is a single locked table or a sharded one.
type Registry interface {
	// ResolveAndIncrement attributes one query to workloadName. It never fails
	// the caller; faults are handled inside the registry.
	ResolveAndIncrement(workloadName string, m domain.QueryMetrics)

	// Snapshot yields populated slots in ascending slot order.
	Snapshot() iter.Seq[domain.WorkloadStats]
}

// Extractor finds the workload tag in a query's text.
type Extractor interface {
	Extract(query string) string
}

// ExtractorFunc adapts a plain function to Extractor.
type ExtractorFunc func(query string) string

func (f ExtractorFunc) Extract(query string) string { return f(query) }
