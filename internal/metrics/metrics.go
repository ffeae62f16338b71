// Package metrics provides Prometheus metrics for the tree model.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Detail population outcomes.
const (
	DetailWritten   = "written"
	DetailDiscarded = "discarded"
	DetailFailed    = "failed"
)

var (
	treeBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctxtree_tree_builds_total",
			Help: "Total number of full tree scans",
		},
		[]string{"status"},
	)

	treeBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ctxtree_tree_build_duration_seconds",
			Help:    "Full tree scan duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	treeNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ctxtree_tree_nodes",
			Help: "Number of nodes in the tree model",
		},
	)

	watchEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctxtree_watch_events_total",
			Help: "Total watch events applied to the tree model",
		},
		[]string{"kind"},
	)

	watchBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ctxtree_watch_batches_total",
			Help: "Total watch event batches applied",
		},
	)

	notificationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ctxtree_notifications_delivered_total",
			Help: "Total debounced change notifications delivered",
		},
	)

	detailResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctxtree_detail_results_total",
			Help: "Total detail population results by outcome",
		},
		[]string{"outcome"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordBuild records a full scan.
func RecordBuild(duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	treeBuildsTotal.WithLabelValues(status).Inc()
	treeBuildDuration.Observe(duration.Seconds())
}

// SetTreeNodes sets the current node count.
func SetTreeNodes(count int) {
	treeNodes.Set(float64(count))
}

// RecordWatchEvent records one applied watch event.
func RecordWatchEvent(kind string) {
	watchEventsTotal.WithLabelValues(kind).Inc()
}

// RecordWatchBatch records one applied batch.
func RecordWatchBatch() {
	watchBatchesTotal.Inc()
}

// RecordNotification records a delivered change notification.
func RecordNotification() {
	notificationsTotal.Inc()
}

// RecordDetailResult records a detail population outcome.
func RecordDetailResult(outcome string) {
	detailResultsTotal.WithLabelValues(outcome).Inc()
}
