package bitkv

import "github.com/bitkv-io/bitkv/internal/metrics"

// statsAdapter satisfies metrics.StatsProvider without internal/metrics
// importing the root package, which would be a cycle.
type statsAdapter struct{ db *DB }

func (a statsAdapter) Stats() metrics.Stats {
	s := a.db.Stats()
	return metrics.Stats{
		KeyCount:        s.KeyCount,
		DataFileCount:   s.DataFileCount,
		ReclaimableSize: s.ReclaimableSize,
		DiskSize:        s.DiskSize,
	}
}

// Collector returns a prometheus.Collector exposing db's Stats() as gauges,
// for registration against an application's own prometheus.Registry.
func (db *DB) Collector() *metrics.Collector {
	return metrics.NewCollector(statsAdapter{db: db})
}
