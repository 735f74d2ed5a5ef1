// Package promexport publishes workload statistics as Prometheus metrics.
// Values are read from the registry at scrape time; nothing is cached here.
package promexport

import (
	"iter"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haukened/wlstats/internal/workload/domain"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "mysql"

const subsystem = "workload"

// Source is the registry read path the collector scrapes.
type Source interface {
	Snapshot() iter.Seq[domain.WorkloadStats]
	Len() int
	Capacity() int
}

// Collector implements prometheus.Collector over a Source.
type Collector struct {
	source Source

	queries      *prometheus.Desc
	rowsExamined *prometheus.Desc
	rowsSent     *prometheus.Desc
	rowsAffected *prometheus.Desc
	duration     *prometheus.Desc
	slotsUsed    *prometheus.Desc
	slotsTotal   *prometheus.Desc
}

// NewCollector returns a collector for source. An empty namespace selects DefaultNamespace.
func NewCollector(source Source, namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	labels := []string{"workload"}
	desc := func(name, help string, labels []string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
	}
	return &Collector{
		source:       source,
		queries:      desc("queries_total", "Queries attributed to the workload.", labels),
		rowsExamined: desc("rows_examined_total", "Rows examined by the workload's queries.", labels),
		rowsSent:     desc("rows_sent_total", "Rows sent to clients by the workload's queries.", labels),
		rowsAffected: desc("rows_affected_total", "Rows affected by the workload's queries.", labels),
		duration:     desc("duration_microseconds_total", "Wall-clock time spent in the workload's queries.", labels),
		slotsUsed:    desc("slots_used", "Workload slots assigned, reserved buckets included.", nil),
		slotsTotal:   desc("slots_capacity", "Total workload slots.", nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queries
	ch <- c.rowsExamined
	ch <- c.rowsSent
	ch <- c.rowsAffected
	ch <- c.duration
	ch <- c.slotsUsed
	ch <- c.slotsTotal
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for rec := range c.source.Snapshot() {
		ch <- prometheus.MustNewConstMetric(c.queries, prometheus.CounterValue, float64(rec.QueryCount), rec.Name)
		ch <- prometheus.MustNewConstMetric(c.rowsExamined, prometheus.CounterValue, float64(rec.RowsExamined), rec.Name)
		ch <- prometheus.MustNewConstMetric(c.rowsSent, prometheus.CounterValue, float64(rec.RowsSent), rec.Name)
		ch <- prometheus.MustNewConstMetric(c.rowsAffected, prometheus.CounterValue, float64(rec.RowsAffected), rec.Name)
		ch <- prometheus.MustNewConstMetric(c.duration, prometheus.CounterValue, float64(rec.DurationMicros), rec.Name)
	}
	ch <- prometheus.MustNewConstMetric(c.slotsUsed, prometheus.GaugeValue, float64(c.source.Len()))
	ch <- prometheus.MustNewConstMetric(c.slotsTotal, prometheus.GaugeValue, float64(c.source.Capacity()))
}

var _ prometheus.Collector = (*Collector)(nil)
