package mcp

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/adminrag/internal/actions"
	"github.com/fyrsmithlabs/adminrag/internal/audit"
	"github.com/fyrsmithlabs/adminrag/internal/logging"
	"github.com/fyrsmithlabs/adminrag/internal/sandbox"
)

const instrumentationName = "github.com/fyrsmithlabs/adminrag/internal/mcp"

// Metrics holds the MCP tool instruments.
type Metrics struct {
	logger      *logging.Logger
	invocations metric.Int64Counter
	duration    metric.Float64Histogram
	errors      metric.Int64Counter
	active      metric.Int64UpDownCounter
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics(logger *logging.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *logging.Logger) *Metrics {
	if logger == nil {
		logger = logging.Nop()
	}
	m := &Metrics{logger: logger}

	var err error
	m.invocations, err = meter.Int64Counter(
		"adminrag.mcp.tool.invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	m.warn("invocations counter", err)

	m.duration, err = meter.Float64Histogram(
		"adminrag.mcp.tool.duration_seconds",
		metric.WithDescription("Duration of MCP tool invocations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.1, 0.5, 1, 5, 15, 60, 180),
	)
	m.warn("duration histogram", err)

	m.errors, err = meter.Int64Counter(
		"adminrag.mcp.tool.errors_total",
		metric.WithDescription("Total number of MCP tool errors by reason"),
		metric.WithUnit("{error}"),
	)
	m.warn("errors counter", err)

	m.active, err = meter.Int64UpDownCounter(
		"adminrag.mcp.tool.active_requests",
		metric.WithDescription("Number of MCP tool calls in progress"),
		metric.WithUnit("{request}"),
	)
	m.warn("active requests gauge", err)
	return m
}

func (m *Metrics) warn(what string, err error) {
	if err != nil {
		m.logger.Warn(context.Background(), "failed to create "+what, zap.Error(err))
	}
}

// RecordInvocation records one finished tool call.
func (m *Metrics) RecordInvocation(ctx context.Context, tool string, d time.Duration, err error) {
	attrs := []attribute.KeyValue{attribute.String("tool", tool)}
	if m.invocations != nil {
		m.invocations.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
	}
	if err != nil && m.errors != nil {
		attrs = append(attrs, attribute.String("reason", categorizeError(err)))
		m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// IncrementActive marks a call to tool as started.
func (m *Metrics) IncrementActive(ctx context.Context, tool string) {
	if m.active != nil {
		m.active.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
	}
}

// DecrementActive marks a call to tool as finished.
func (m *Metrics) DecrementActive(ctx context.Context, tool string) {
	if m.active != nil {
		m.active.Add(ctx, -1, metric.WithAttributes(attribute.String("tool", tool)))
	}
}

// categorizeError maps err to a low-cardinality reason label.
func categorizeError(err error) string {
	var (
		unknown *actions.UnknownToolError
		step    *actions.StepError
	)
	switch {
	case errors.As(err, &unknown):
		return "rejected_tool"
	case errors.Is(err, sandbox.ErrPathEscape):
		return "sandbox_violation"
	case errors.As(err, &step):
		return "tool_error"
	case errors.Is(err, audit.ErrAlreadyRecorded), errors.Is(err, audit.ErrInvalidRunID):
		return "audit_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal_error"
	}
}
