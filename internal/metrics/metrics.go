package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anitory_http_requests_total",
		Help: "Total HTTP requests served by the API.",
	}, []string{"method", "path", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "anitory_http_request_duration_seconds",
		Help:    "Duration of HTTP requests served by the API.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	storeFallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anitory_store_fallbacks_total",
		Help: "Reads that degraded to a narrower query after a store failure.",
	}, []string{"operation", "strategy"})

	aiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anitory_ai_requests_total",
		Help: "Calls to the text generation service.",
	}, []string{"action", "result"})

	aiRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "anitory_ai_request_duration_seconds",
		Help:    "Latency of calls to the text generation service.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
	}, []string{"action"})

	notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anitory_notifications_total",
		Help: "Change notifications by type and direction.",
	}, []string{"type", "direction"})

	realtimeClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anitory_realtime_clients",
		Help: "Open realtime websocket connections.",
	})
)

// MustRegister registers the package metrics with the given registerer.
func MustRegister(registerer prometheus.Registerer) {
	registerOnce.Do(func() {
		registerer.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			storeFallbacksTotal,
			aiRequestsTotal,
			aiRequestDuration,
			notificationsTotal,
			realtimeClients,
		)
	})
}

// FiberMiddleware records request counts and latency per route.
func FiberMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}

		labels := []string{c.Method(), path, strconv.Itoa(status)}
		httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(labels...).Inc()
		return err
	}
}

// StoreFallback counts a degraded read.
func StoreFallback(operation, strategy string) {
	storeFallbacksTotal.WithLabelValues(operation, strategy).Inc()
}

// AIRequest records one call to the text generation service.
func AIRequest(action string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	aiRequestsTotal.WithLabelValues(action, result).Inc()
	aiRequestDuration.WithLabelValues(action).Observe(d.Seconds())
}

// Notification counts a published ("out") or received ("in") event.
func Notification(eventType, direction string) {
	notificationsTotal.WithLabelValues(eventType, direction).Inc()
}

// RealtimeClientConnected and RealtimeClientDisconnected track open sockets.
func RealtimeClientConnected()    { realtimeClients.Inc() }
func RealtimeClientDisconnected() { realtimeClients.Dec() }
