package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mobilsoft/backoffice/internal/recordstore"
	"github.com/mobilsoft/backoffice/internal/recordstore/memstore"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Track("dashboard:warmup").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, `backoffice_jobs_total{job="dashboard:warmup",status="success"} 1`) {
		t.Fatalf("expected job counter, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, "backoffice_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "backoffice_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestInstrumentedStoreCountsResults(t *testing.T) {
	metrics := NewMetrics()
	mem := memstore.New()
	mem.Seed("res.partner", map[string]any{"name": "Acme"})
	store := InstrumentStore(mem, metrics, nil)

	if _, err := store.Count(context.Background(), "res.partner", nil); err != nil {
		t.Fatalf("count: %v", err)
	}
	mem.SetHook(func(context.Context, string, string) error { return errors.New("down") })
	if _, err := store.Fetch(context.Background(), "res.partner", nil, nil, recordstore.Options{}); err == nil {
		t.Fatal("expected fetch error")
	}

	body := scrape(t, metrics)
	for _, want := range []string{
		`backoffice_store_calls_total{model="res.partner",op="count",result="ok"} 1`,
		`backoffice_store_calls_total{model="res.partner",op="fetch",result="error"} 1`,
		`backoffice_store_call_duration_seconds_count{op="fetch"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in: %s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ListLoaded("customers", nil)
	metrics.FormSaved("customers", errors.New("x"))
	metrics.SessionOpened()
	metrics.SessionClosed()
	_ = metrics.Jobs().Track("noop").End(nil)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestListAndFormCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ListLoaded("customers", nil)
	metrics.ListLoaded("customers", errors.New("x"))
	metrics.FormSaved("products", nil)
	metrics.SessionOpened()

	body := scrape(t, metrics)
	for _, want := range []string{
		`backoffice_list_loads_total{module="customers",result="error"} 1`,
		`backoffice_list_loads_total{module="customers",result="ok"} 1`,
		`backoffice_form_saves_total{module="products",result="ok"} 1`,
		`backoffice_console_sessions 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in: %s", want, body)
		}
	}
}
