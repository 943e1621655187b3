// Package metrics exposes the importer's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "importer"

// Metrics holds the collectors shared across the pipeline.
type Metrics struct {
	RecordsProcessed *prometheus.CounterVec
	AssetsDownloaded prometheus.Counter
	AssetsReused     prometheus.Counter
	AssetsDeleted    prometheus.Counter
	BatchDuration    *prometheus.HistogramVec
}

// New registers the importer collectors against the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RecordsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Records processed, labeled by mode and outcome.",
		}, []string{"mode", "outcome"}),
		AssetsDownloaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assets_downloaded_total",
			Help:      "Remote assets downloaded and stored.",
		}),
		AssetsReused: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assets_reused_total",
			Help:      "Asset resolutions satisfied by an existing asset.",
		}),
		AssetsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assets_deleted_total",
			Help:      "Orphaned pipeline-owned assets deleted during force replace.",
		}),
		BatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one batch run, labeled by mode.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
	}
}
