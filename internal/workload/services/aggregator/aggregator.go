// Package aggregator is the inbound side of workload accounting: it is called
// once per completed query, measures the query's duration, finds its workload
// tag and hands the increment to the registry.
package aggregator

import (
	"github.com/haukened/wlstats/internal/workload/common/clock"
	"github.com/haukened/wlstats/internal/workload/common/log"
	"github.com/haukened/wlstats/internal/workload/domain"
	"github.com/haukened/wlstats/internal/workload/services/extractor"
)

// Aggregator attributes completed queries to workloads in a Registry.
type Aggregator struct {
	clock     clock.Clock
	extractor Extractor
	logger    log.Logger
	registry  Registry
}

// Options configures an Aggregator.
type Options struct {
	Clock     clock.Clock
	Extractor Extractor
	Logger    log.Logger
	Registry  Registry
}

// New wires an Aggregator. Clock defaults to the wall clock, Extractor to the
// unmemoized extractor.Extract and Logger to a no-op logger. Registry is required.
func New(opts Options) *Aggregator {
	a := &Aggregator{
		clock:     opts.Clock,
		extractor: opts.Extractor,
		logger:    opts.Logger,
		registry:  opts.Registry,
	}
	if a.clock == nil {
		a.clock = clock.RealClock{}
	}
	if a.extractor == nil {
		a.extractor = ExtractorFunc(extractor.Extract)
	}
	if a.logger == nil {
		a.logger = log.NewNoopLogger()
	}
	return a
}

// RecordQuery accounts one completed query. It never returns an error and
// never panics into the caller: a failed update is logged and dropped.
func (a *Aggregator) RecordQuery(q domain.QueryCompletion) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error(map[string]any{"panic": r}, "failed to record query stats, skipping this query")
		}
	}()

	if a.registry == nil {
		a.logger.Error(nil, "no workload registry configured, skipping this query")
		return
	}

	now := a.clock.Now()
	if now.Before(q.Start) {
		a.logger.Debug(map[string]any{
			"start": q.Start,
			"now":   now,
		}, "query finished before it started, counting zero duration")
	}
	m := q.Metrics(now)

	workload := a.extractor.Extract(q.Text)
	a.registry.ResolveAndIncrement(workload, m)
}

// Snapshot exposes the registry's read path to outbound adapters.
func (a *Aggregator) Snapshot() []domain.WorkloadStats {
	if a.registry == nil {
		return nil
	}
	var out []domain.WorkloadStats
	for rec := range a.registry.Snapshot() {
		out = append(out, rec)
	}
	return out
}
