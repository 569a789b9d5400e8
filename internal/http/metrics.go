package http

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/adminrag/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/adminrag/internal/http"

// HTTPMetrics records request counts, latency and in-flight requests on the
// global OTEL meter provider.
type HTTPMetrics struct {
	meter    metric.Meter
	logger   *logging.Logger
	requests metric.Int64Counter
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
}

// NewHTTPMetrics creates the instruments on the global meter provider.
func NewHTTPMetrics(logger *logging.Logger) *HTTPMetrics {
	return newHTTPMetrics(otel.Meter(instrumentationName), logger)
}

func newHTTPMetrics(meter metric.Meter, logger *logging.Logger) *HTTPMetrics {
	if logger == nil {
		logger = logging.Nop()
	}
	m := &HTTPMetrics{meter: meter, logger: logger}

	var err error
	m.requests, err = meter.Int64Counter(
		"adminrag.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status code"),
		metric.WithUnit("{request}"),
	)
	m.warn("requests counter", err)

	m.duration, err = meter.Float64Histogram(
		"adminrag.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration by method, route and status code"),
		metric.WithUnit("s"),
		// Runs wait on OCR and the language model, so the tail is long.
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 180),
	)
	m.warn("duration histogram", err)

	m.active, err = meter.Int64UpDownCounter(
		"adminrag.http.active_requests",
		metric.WithDescription("HTTP requests currently being served"),
		metric.WithUnit("{request}"),
	)
	m.warn("active requests gauge", err)
	return m
}

func (m *HTTPMetrics) warn(what string, err error) {
	if err != nil {
		m.logger.Warn(context.Background(), "failed to create "+what, zap.Error(err))
	}
}

// Middleware returns an echo middleware that records each request. Errors
// are handed to echo's error handler first so the recorded status is final.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := c.Request().Context()
			if m.active != nil {
				m.active.Add(ctx, 1)
				defer m.active.Add(ctx, -1)
			}

			if err := next(c); err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", route),
				attribute.Int("status", c.Response().Status),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.duration != nil {
				m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			return nil
		}
	}
}
