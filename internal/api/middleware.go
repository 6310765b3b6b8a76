package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Ingestor/internal/telemetry"
)

// requestIDHeader передаётся клиенту в каждом ответе и попадает в лог.
const requestIDHeader = "X-Request-ID"

// statusRecorder запоминает код ответа и число записанных байт.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (sr *statusRecorder) WriteHeader(status int) {
	if sr.status == 0 {
		sr.status = status
	}
	sr.ResponseWriter.WriteHeader(status)
}

func (sr *statusRecorder) Write(p []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(p)
	sr.written += int64(n)
	return n, err
}

func (sr *statusRecorder) code() int {
	if sr.status == 0 {
		return http.StatusOK
	}
	return sr.status
}

// observe оборачивает обработчик маршрута: присваивает запросу идентификатор,
// перехватывает панику, пишет строку access-лога и считает запрос в метрике
// HTTPRequests по шаблону маршрута, а не по фактическому пути.
func observe(logger *slog.Logger, route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		reqLogger := logger.With("request_id", requestID, "route", route)
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()

		defer func() {
			if p := recover(); p != nil {
				reqLogger.Error("handler panicked",
					"panic", p,
					"stack", string(debug.Stack()),
				)
				if rec.status == 0 {
					InternalError(rec, reqLogger, nil)
				}
			}

			status := rec.code()
			telemetry.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			reqLogger.Log(r.Context(), level, "request served",
				"path", r.URL.Path,
				"status", status,
				"bytes", rec.written,
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(rec, r.WithContext(telemetry.WithLogger(r.Context(), reqLogger)))
	})
}
