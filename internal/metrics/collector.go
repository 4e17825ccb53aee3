package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// QueueStats provides the metrics collector access to worker pool state.
type QueueStats interface {
	Pending() int
	Active() int
}

// WatcherStats provides the metrics collector access to the inbox watcher.
type WatcherStats interface {
	FilesSeen() int64
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	pool    *pgxpool.Pool
	queue   QueueStats
	watcher WatcherStats

	// Descriptors for scrape-time gauges.
	queuePending    *prometheus.Desc
	queueActive     *prometheus.Desc
	watcherSeen     *prometheus.Desc
	dbTotalConns    *prometheus.Desc
	dbAcquiredConns *prometheus.Desc
	dbIdleConns     *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// Any argument may be nil; its metrics then report 0.
func NewCollector(pool *pgxpool.Pool, queue QueueStats, watcher WatcherStats) *Collector {
	return &Collector{
		pool:    pool,
		queue:   queue,
		watcher: watcher,
		queuePending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "pending"),
			"Recordings waiting for a worker.",
			nil, nil,
		),
		queueActive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "active"),
			"Recordings currently being processed.",
			nil, nil,
		),
		watcherSeen: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "watcher", "files_seen"),
			"Audio files noticed in the inbox since start.",
			nil, nil,
		),
		dbTotalConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "total_conns"),
			"Total database pool connections.",
			nil, nil,
		),
		dbAcquiredConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "acquired_conns"),
			"Database pool connections currently in use.",
			nil, nil,
		),
		dbIdleConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "idle_conns"),
			"Database pool idle connections.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queuePending
	ch <- c.queueActive
	ch <- c.watcherSeen
	ch <- c.dbTotalConns
	ch <- c.dbAcquiredConns
	ch <- c.dbIdleConns
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var pending, active, seen float64
	if c.queue != nil {
		pending = float64(c.queue.Pending())
		active = float64(c.queue.Active())
	}
	if c.watcher != nil {
		seen = float64(c.watcher.FilesSeen())
	}
	ch <- prometheus.MustNewConstMetric(c.queuePending, prometheus.GaugeValue, pending)
	ch <- prometheus.MustNewConstMetric(c.queueActive, prometheus.GaugeValue, active)
	ch <- prometheus.MustNewConstMetric(c.watcherSeen, prometheus.CounterValue, seen)

	// Database pool stats
	if c.pool != nil {
		stat := c.pool.Stat()
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, float64(stat.TotalConns()))
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, float64(stat.AcquiredConns()))
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, float64(stat.IdleConns()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, 0)
	}
}
