package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/google/uuid"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/metrics"
)

// envelope is the uniform response shape. Error carries the structured
// application error; RequestID ties a response to its log lines.
type envelope struct {
	Success   bool             `json:"success"`
	Data      interface{}      `json:"data,omitempty"`
	Error     *apperrors.Error `json:"error,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{
		Success:   true,
		Data:      data,
		RequestID: requestID(r),
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperrors.As(err)
	rid := requestID(r)

	attrs := []interface{}{
		"code", ae.Code, "severity", ae.Severity,
		"request_id", rid, "path", r.URL.Path,
	}
	switch ae.Severity {
	case apperrors.SeverityCritical, apperrors.SeverityError:
		slog.Error(ae.Message, attrs...)
	default:
		slog.Info(ae.Message, attrs...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.HTTPStatus())
	json.NewEncoder(w).Encode(envelope{
		Success:   false,
		Error:     ae,
		RequestID: rid,
	})
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.InvalidInput("malformed request body").WithCause(err)
	}
	return nil
}

const requestIDHeader = "X-Request-ID"

func requestID(r *http.Request) string {
	return r.Header.Get(requestIDHeader)
}

// statusRecorder captures the status code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// observe assigns a request id, logs the request, and records HTTP
// metrics per mux route template.
func observe(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(requestIDHeader) == "" {
				r.Header.Set(requestIDHeader, uuid.NewString())
			}
			w.Header().Set(requestIDHeader, r.Header.Get(requestIDHeader))

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := routeTemplate(r)
			elapsed := time.Since(start)
			if m != nil {
				m.RequestDuration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())
				m.RequestTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
			}
			slog.Info("request",
				"method", r.Method, "route", route, "status", rec.status,
				"duration_ms", elapsed.Milliseconds(),
				"request_id", requestID(r))
		})
	}
}

// routeTemplate labels metrics by path template, not raw path, to keep
// cardinality bounded.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
