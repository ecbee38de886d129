package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	return w.Body.String()
}

func TestHandler(t *testing.T) {
	RecordRequest("/v1/crawl", "ok", time.Second)
	RecordJob("detail-crawl", "success", 2*time.Second)
	RecordQueueWait(50 * time.Millisecond)
	RecordSessionEvent("created")
	UpdatePoolMetrics(5, 4, 1, 2, true)

	body := scrape(t)

	expected := []string{
		"crawlpool_requests_total",
		"crawlpool_jobs_total",
		"crawlpool_queue_wait_seconds",
		"crawlpool_session_events_total",
		"crawlpool_pool_capacity 5",
		"crawlpool_pool_available 4",
		"crawlpool_pool_processing 1",
		"crawlpool_queue_length 2",
		"crawlpool_session_active 1",
	}
	for _, metric := range expected {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected %q in metrics output", metric)
		}
	}
}

func TestUpdatePoolMetricsUninitialized(t *testing.T) {
	UpdatePoolMetrics(5, 0, 0, 0, false)

	if body := scrape(t); !strings.Contains(body, "crawlpool_session_active 0") {
		t.Error("Expected session_active to drop to 0")
	}
}

func TestSetBuildInfo(t *testing.T) {
	SetBuildInfo("1.0.0", "go1.24")

	body := scrape(t)
	if !strings.Contains(body, "crawlpool_build_info") {
		t.Error("Expected crawlpool_build_info metric")
	}
	if !strings.Contains(body, `version="1.0.0"`) {
		t.Error("Expected version label in build_info")
	}
}

func TestUpdateRuntimeMetrics(t *testing.T) {
	updateRuntimeMetrics()

	body := scrape(t)
	if !strings.Contains(body, "crawlpool_goroutines") {
		t.Error("Expected goroutine gauge")
	}
}
