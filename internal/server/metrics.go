package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fnordcredit/fnordcredit/internal/credit"
	"github.com/fnordcredit/fnordcredit/pkg/events"
)

type metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	events   *prometheus.CounterVec
}

func newMetrics(store Store) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsondb_events_total",
				Help: "Store events by operation and kind",
			},
			[]string{"op", "kind"},
		),
	}

	loaded := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "jsondb_loaded",
			Help: "1 if the document is loaded",
		},
		func() float64 { return boolGauge(store.Loaded()) },
	)
	dirty := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "jsondb_dirty",
			Help: "1 if the canonical file is behind memory",
		},
		func() float64 { return boolGauge(store.Dirty()) },
	)

	m.registry.MustRegister(m.requests, m.duration, m.events, loaded, dirty)
	return m
}

// HandleEvent counts store events.
func (m *metrics) HandleEvent(e events.Event) {
	m.events.WithLabelValues(e.Op, e.Kind.String()).Inc()
}

func (m *metrics) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if err != nil {
			// The error handler has not written yet.
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else {
				status = credit.StatusOf(err)
			}
		}
		m.requests.WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(c.Request().Method, c.Path()).Observe(time.Since(start).Seconds())
		return err
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
