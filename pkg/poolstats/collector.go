// Package poolstats exposes a pgxpool.Pool's Stat counters as
// prometheus metrics.
package poolstats

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// stat is the subset of pgxpool.Stat the Collector reads, split out so
// tests can supply fixed numbers.
type stat interface {
	AcquireCount() int64
	AcquireDuration() time.Duration
	AcquiredConns() int32
	CanceledAcquireCount() int64
	ConstructingConns() int32
	EmptyAcquireCount() int64
	IdleConns() int32
	MaxConns() int32
	TotalConns() int32
}

var _ stat = (*pgxpool.Stat)(nil)

// Stater is a provider of the Stat function. Implemented by
// pgxpool.Pool.
type Stater interface {
	Stat() *pgxpool.Stat
}

// metric pairs a descriptor with how to read its value out of a stat.
type metric struct {
	desc  *prometheus.Desc
	typ   prometheus.ValueType
	value func(stat) float64
}

// Collector is a prometheus.Collector over the nine statistics a
// pgxpool.Stat reports, labeled with the owning application's name so
// multiple pools stay distinguishable.
type Collector struct {
	name    string
	stat    func() stat
	metrics []metric
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a Collector reading from stater.
func NewCollector(stater Stater, appname string) *Collector {
	return newCollector(func() stat { return stater.Stat() }, appname)
}

func newCollector(fn func() stat, name string) *Collector {
	labels := []string{"application_name"}
	d := func(n, help string) *prometheus.Desc {
		return prometheus.NewDesc(n, help, labels, nil)
	}
	return &Collector{
		name: name,
		stat: fn,
		metrics: []metric{
			{
				d("pgxpool_acquire_count", "Cumulative count of successful acquires from the pool."),
				prometheus.CounterValue,
				func(s stat) float64 { return float64(s.AcquireCount()) },
			},
			{
				d("pgxpool_acquire_duration_seconds_total", "Total duration of all successful acquires from the pool in seconds."),
				prometheus.CounterValue,
				func(s stat) float64 { return s.AcquireDuration().Seconds() },
			},
			{
				d("pgxpool_acquired_conns", "Number of currently acquired connections in the pool."),
				prometheus.GaugeValue,
				func(s stat) float64 { return float64(s.AcquiredConns()) },
			},
			{
				d("pgxpool_canceled_acquire_count", "Cumulative count of acquires from the pool that were canceled by a context."),
				prometheus.CounterValue,
				func(s stat) float64 { return float64(s.CanceledAcquireCount()) },
			},
			{
				d("pgxpool_constructing_conns", "Number of conns with construction in progress in the pool."),
				prometheus.GaugeValue,
				func(s stat) float64 { return float64(s.ConstructingConns()) },
			},
			{
				d("pgxpool_empty_acquire", "Cumulative count of successful acquires from the pool that waited for a resource to be released or constructed because the pool was empty."),
				prometheus.CounterValue,
				func(s stat) float64 { return float64(s.EmptyAcquireCount()) },
			},
			{
				d("pgxpool_idle_conns", "Number of currently idle conns in the pool."),
				prometheus.GaugeValue,
				func(s stat) float64 { return float64(s.IdleConns()) },
			},
			{
				d("pgxpool_max_conns", "Maximum size of the pool."),
				prometheus.GaugeValue,
				func(s stat) float64 { return float64(s.MaxConns()) },
			},
			{
				d("pgxpool_total_conns", "Total number of resources currently in the pool. The value is the sum of ConstructingConns, AcquiredConns, and IdleConns."),
				prometheus.GaugeValue,
				func(s stat) float64 { return float64(s.TotalConns()) },
			},
		},
	}
}

// Describe implements the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

// Collect implements the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stat()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.typ, m.value(s), c.name)
	}
}
