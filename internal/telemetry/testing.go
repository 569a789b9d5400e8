package telemetry

import (
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// SpanRecorder captures spans in memory while a test runs.
type SpanRecorder struct {
	*tracetest.SpanRecorder
}

var (
	testProviderOnce sync.Once
	testProvider     *trace.TracerProvider
)

// NewSpanRecorder records the spans ended while tb runs. The first call
// installs a process-wide SDK provider, because package-level tracers only
// delegate to the first global provider ever set. Tests using it must not
// run in parallel.
func NewSpanRecorder(tb testing.TB) *SpanRecorder {
	tb.Helper()
	testProviderOnce.Do(func() {
		testProvider = trace.NewTracerProvider()
		otel.SetTracerProvider(testProvider)
	})

	rec := tracetest.NewSpanRecorder()
	testProvider.RegisterSpanProcessor(rec)
	tb.Cleanup(func() { testProvider.UnregisterSpanProcessor(rec) })
	return &SpanRecorder{SpanRecorder: rec}
}

// ByName returns the ended spans called name.
func (r *SpanRecorder) ByName(name string) []trace.ReadOnlySpan {
	var out []trace.ReadOnlySpan
	for _, s := range r.Ended() {
		if s.Name() == name {
			out = append(out, s)
		}
	}
	return out
}

// Attr returns the value of key on span, or nil.
func Attr(span trace.ReadOnlySpan, key string) any {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value.AsInterface()
		}
	}
	return nil
}

// Names lists the names of the ended spans.
func (r *SpanRecorder) Names() []string {
	spans := r.Ended()
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name()
	}
	return names
}

