package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newInstrumentedMux wires Middleware around a mux with Astra-shaped routes
// and returns the handler plus the metric reader and span exporter backing it.
func newInstrumentedMux(t *testing.T, routes map[string]http.HandlerFunc) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	mux := http.NewServeMux()
	for pattern, fn := range routes {
		mux.HandleFunc(pattern, fn)
	}
	return Middleware(m)(mux), reader, exp
}

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestMiddleware_SetsCorrelationID(t *testing.T) {
	var inHandler string
	handler, _, _ := newInstrumentedMux(t, map[string]http.HandlerFunc{
		"GET /v1/state": func(w http.ResponseWriter, r *http.Request) {
			inHandler = CorrelationID(r.Context())
			w.WriteHeader(http.StatusOK)
		},
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/state", nil))

	if inHandler == "" {
		t.Error("handler saw no correlation ID in its context")
	}
	if len(inHandler) != 32 {
		t.Errorf("correlation ID length = %d, want 32", len(inHandler))
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != inHandler {
		t.Errorf("response X-Correlation-ID = %q, want %q", got, inHandler)
	}
}

func TestMiddleware_CreatesServerSpan(t *testing.T) {
	handler, _, exp := newInstrumentedMux(t, map[string]http.HandlerFunc{
		"POST /v1/connect": ok,
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/connect", nil))

	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no span recorded")
	}
	if spans[0].Name != "HTTP POST /v1/connect" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "HTTP POST /v1/connect")
	}
}

func TestMiddleware_RecordsDurationWithRoutePattern(t *testing.T) {
	handler, reader, _ := newInstrumentedMux(t, map[string]http.HandlerFunc{
		"GET /v1/state": ok,
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/state", nil))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "astra.http.request.duration")
	if met == nil {
		t.Fatal("duration histogram not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric type = %T, want histogram", met.Data)
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}

	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	var method, route string
	for _, kv := range dp.Attributes.ToSlice() {
		switch string(kv.Key) {
		case "method":
			method = kv.Value.AsString()
		case "route":
			route = kv.Value.AsString()
		}
	}
	if method != "GET" {
		t.Errorf("method attribute = %q, want GET", method)
	}
	// The attribute must carry the matched mux pattern, not the raw path.
	if route != "GET /v1/state" {
		t.Errorf("route attribute = %q, want %q", route, "GET /v1/state")
	}
}

func TestMiddleware_UnmatchedRouteFallsBackToPath(t *testing.T) {
	handler, reader, _ := newInstrumentedMux(t, map[string]http.HandlerFunc{
		"GET /v1/state": ok,
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/nope", nil))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "astra.http.request.duration")
	if met == nil {
		t.Fatal("duration histogram not recorded")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	var route string
	for _, kv := range hist.DataPoints[0].Attributes.ToSlice() {
		if string(kv.Key) == "route" {
			route = kv.Value.AsString()
		}
	}
	if route != "/nope" {
		t.Errorf("route attribute = %q, want raw path /nope", route)
	}
}

func TestMiddleware_CapturesStatusCode(t *testing.T) {
	handler, _, exp := newInstrumentedMux(t, map[string]http.HandlerFunc{
		"POST /v1/language": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		},
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/language", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("response status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no span recorded")
	}
	var status int64
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != 400 {
		t.Errorf("span http.response.status_code = %d, want 400", status)
	}
}

func TestMiddleware_PropagatesW3CTraceContext(t *testing.T) {
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	var inHandler string
	handler, _, _ := newInstrumentedMux(t, map[string]http.HandlerFunc{
		"GET /v1/state": func(w http.ResponseWriter, r *http.Request) {
			inHandler = CorrelationID(r.Context())
			w.WriteHeader(http.StatusOK)
		},
	})

	req := httptest.NewRequest("GET", "/v1/state", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if inHandler != traceID {
		t.Errorf("correlation ID = %q, want upstream trace ID %q", inHandler, traceID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("response X-Correlation-ID = %q, want %q", got, traceID)
	}
}
