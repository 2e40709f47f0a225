package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveFetchDuration("cold", 150*time.Millisecond, true)
	pr.IncCacheState(CacheWarm)
	pr.IncRevalidation(RevalidationUnchanged)
	pr.IncInjectorResult("hue", ResultApplied)
	pr.IncRunnerResult("entrypoint", ResultFailed)
	pr.IncPluginInit("core", ResultSuccess)
	pr.ObserveMaterializeDuration("starlark", 5*time.Millisecond, true)
	pr.IncRunOutcome("success")
	// Basic scrape to ensure metrics encode without panic
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) != 8 {
		t.Fatalf("expected 8 metric families, got %d", len(mfs))
	}
}

func TestHTTPHandlerServesRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncRunOutcome("success")

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "hotpatch_run_outcomes_total") {
		t.Fatalf("metrics output missing run outcome counter")
	}
}
