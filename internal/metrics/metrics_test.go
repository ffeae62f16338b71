package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/temirov/ctxtree/internal/metrics"
)

// TestHandlerExposesRecordedMetrics verifies recorded values appear on the scrape endpoint.
func TestHandlerExposesRecordedMetrics(testingInstance *testing.T) {
	metrics.RecordBuild(10*time.Millisecond, true)
	metrics.SetTreeNodes(42)
	metrics.RecordWatchEvent("create")
	metrics.RecordWatchBatch()
	metrics.RecordNotification()
	metrics.RecordDetailResult(metrics.DetailWritten)

	server := httptest.NewServer(metrics.Handler())
	defer server.Close()
	response, requestError := server.Client().Get(server.URL)
	if requestError != nil {
		testingInstance.Fatalf("scraping metrics: %v", requestError)
	}
	defer response.Body.Close()
	body, readError := io.ReadAll(response.Body)
	if readError != nil {
		testingInstance.Fatalf("reading metrics: %v", readError)
	}
	for _, expected := range []string{
		`ctxtree_tree_builds_total{status="success"}`,
		"ctxtree_tree_nodes 42",
		`ctxtree_watch_events_total{kind="create"}`,
		"ctxtree_watch_batches_total",
		"ctxtree_notifications_delivered_total",
		`ctxtree_detail_results_total{outcome="written"}`,
	} {
		if !strings.Contains(string(body), expected) {
			testingInstance.Errorf("expected scrape output to contain %q", expected)
		}
	}
}
