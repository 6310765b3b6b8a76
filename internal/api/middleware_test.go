package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/Ingestor/internal/telemetry"
)

func TestObserve_RequestIDAndAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := observe(logger, "GET /ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		telemetry.FromContext(r.Context()).Info("inside handler")
		w.Write([]byte("hello"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(requestIDHeader); got != "req-42" {
		t.Errorf("request id header = %q, want req-42", got)
	}
	logs := buf.String()
	if strings.Count(logs, "request_id=req-42") != 2 {
		t.Errorf("request id should tag handler and access log lines:\n%s", logs)
	}
	if !strings.Contains(logs, "status=200") || !strings.Contains(logs, "bytes=5") {
		t.Errorf("access log missing status or size:\n%s", logs)
	}
}

func TestObserve_GeneratesRequestID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := observe(logger, "GET /ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("expected generated request id")
	}
}

func TestObserve_RecoversPanic(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	route := "GET /panics"
	before := testutil.ToFloat64(telemetry.HTTPRequests.WithLabelValues(route, "500"))

	h := observe(logger, route, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panics", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(ErrCodeInternalError)) {
		t.Errorf("body = %s", rec.Body.String())
	}
	after := testutil.ToFloat64(telemetry.HTTPRequests.WithLabelValues(route, "500"))
	if after != before+1 {
		t.Errorf("http requests counter = %v, want %v", after, before+1)
	}
}
