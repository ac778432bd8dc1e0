// Package metrics exposes an Engine's Stats() as Prometheus gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bitkv"

// StatsProvider is the subset of *bitkv.DB the collector depends on, kept
// narrow so this package never imports the root package (which would be a
// cycle: the root package is what constructs the collector).
type StatsProvider interface {
	Stats() Stats
}

// Stats mirrors bitkv.Stats without importing it, for the same reason.
type Stats struct {
	KeyCount        int
	DataFileCount   int
	ReclaimableSize int64
	DiskSize        int64
}

// Collector adapts an Engine's Stats() into a prometheus.Collector.
type Collector struct {
	db              StatsProvider
	keys            *prometheus.Desc
	dataFiles       *prometheus.Desc
	reclaimableSize *prometheus.Desc
	diskSize        *prometheus.Desc
}

// NewCollector builds a Collector reading from db.
func NewCollector(db StatsProvider) *Collector {
	return &Collector{
		db:              db,
		keys:            newDesc("keys_total", "Total live keys in the keydir"),
		dataFiles:       newDesc("data_files", "Number of on-disk segment files"),
		reclaimableSize: newDesc("reclaimable_bytes", "Bytes occupied by superseded records, reclaimable by Merge"),
		diskSize:        newDesc("disk_bytes", "Total bytes occupied by all segment files"),
	}
}

func newDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.keys
	ch <- c.dataFiles
	ch <- c.reclaimableSize
	ch <- c.diskSize
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.db.Stats()
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(stats.KeyCount))
	ch <- prometheus.MustNewConstMetric(c.dataFiles, prometheus.GaugeValue, float64(stats.DataFileCount))
	ch <- prometheus.MustNewConstMetric(c.reclaimableSize, prometheus.GaugeValue, float64(stats.ReclaimableSize))
	ch <- prometheus.MustNewConstMetric(c.diskSize, prometheus.GaugeValue, float64(stats.DiskSize))
}
