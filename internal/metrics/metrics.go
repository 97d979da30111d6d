//nolint:gochecknoglobals
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crewline"

var (
	operationsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Mission and roster operations by outcome.",
	}, []string{"op", "outcome"})

	webhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_deliveries_total",
		Help:      "Webhook delivery attempts by result.",
	}, []string{"result"})

	httpRequestsDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "The latency of the HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "code"})
)

// ObserveOperation counts one engine operation. outcome is "ok" or an error kind.
func ObserveOperation(op, outcome string) {
	operationsMetric.WithLabelValues(op, outcome).Inc()
}

func OperationCount(op, outcome string) prometheus.Counter {
	return operationsMetric.WithLabelValues(op, outcome)
}

func ObserveWebhook(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	webhookDeliveries.WithLabelValues(result).Inc()
}

// Middleware records request latency keyed by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		httpRequestsDuration.With(prometheus.Labels{
			"route":  route,
			"method": r.Method,
			"code":   strconv.Itoa(code),
		}).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
