package selekt

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector is a Prometheus collector over a DB's Pool occupancy
// snapshot (pool.ConnStats), emitting constant metrics on every scrape.
type MetricsCollector struct {
	db *DB

	lentDesc           *prometheus.Desc
	idleDesc           *prometheus.Desc
	waitingReadersDesc *prometheus.Desc
	waitingWritersDesc *prometheus.Desc
}

// NewMetricsCollector returns a collector reporting db's pool occupancy on
// every scrape.
func NewMetricsCollector(db *DB) *MetricsCollector {
	return &MetricsCollector{
		db: db,
		lentDesc: prometheus.NewDesc(
			"selekt_pool_connections_lent",
			"Number of connections currently lent out by the pool.",
			nil, nil,
		),
		idleDesc: prometheus.NewDesc(
			"selekt_pool_connections_idle",
			"Number of connections currently idle in the pool.",
			nil, nil,
		),
		waitingReadersDesc: prometheus.NewDesc(
			"selekt_pool_waiting_readers",
			"Number of goroutines currently blocked waiting for a reader connection.",
			nil, nil,
		),
		waitingWritersDesc: prometheus.NewDesc(
			"selekt_pool_waiting_writers",
			"Number of goroutines currently blocked waiting for the writer connection.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lentDesc
	ch <- c.idleDesc
	ch <- c.waitingReadersDesc
	ch <- c.waitingWritersDesc
}

// Collect implements prometheus.Collector.
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.db.Stats()
	ch <- prometheus.MustNewConstMetric(c.lentDesc, prometheus.GaugeValue, float64(stats.Lent))
	ch <- prometheus.MustNewConstMetric(c.idleDesc, prometheus.GaugeValue, float64(stats.Idle))
	ch <- prometheus.MustNewConstMetric(c.waitingReadersDesc, prometheus.GaugeValue, float64(stats.WaitingReaders))
	ch <- prometheus.MustNewConstMetric(c.waitingWritersDesc, prometheus.GaugeValue, float64(stats.WaitingWriters))
}

var _ prometheus.Collector = (*MetricsCollector)(nil)
