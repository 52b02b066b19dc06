package obs

import (
	"context"
	"errors"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// recordingTracer builds a Tracer backed by an in-memory span recorder,
// bypassing the OTLP exporter path.
func recordingTracer() (*Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return &Tracer{provider: provider, tracer: provider.Tracer("test")}, recorder
}

func TestNewTracerWithoutEndpointIsNonRecording(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{})
	defer shutdown(context.Background())

	ctx, span := tracer.Start(context.Background(), "op")
	defer span.End()

	if span.SpanContext().IsValid() {
		t.Fatal("no-endpoint tracer must produce non-recording spans")
	}
	if GetTraceID(ctx) != "" {
		t.Fatalf("GetTraceID = %q, want empty for non-recording span", GetTraceID(ctx))
	}
}

func TestTraceLLMRequestAttributes(t *testing.T) {
	tracer, recorder := recordingTracer()

	_, span := tracer.TraceLLMRequest(context.Background(), "anthropic", "claude-opus-4")
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans", len(spans))
	}
	if spans[0].Name() != "llm.request" {
		t.Fatalf("span name = %s", spans[0].Name())
	}
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	if attrs["llm.provider"] != "anthropic" || attrs["llm.model"] != "claude-opus-4" {
		t.Fatalf("attributes = %v", attrs)
	}
}

func TestTraceToolExecutionAndStage(t *testing.T) {
	tracer, recorder := recordingTracer()

	_, toolSpan := tracer.TraceToolExecution(context.Background(), "run_command")
	toolSpan.End()
	_, stageSpan := tracer.TraceStageExecution(context.Background(), "work", "codergen")
	stageSpan.End()

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans", len(spans))
	}
	if spans[0].Name() != "tool.execute" || spans[1].Name() != "stage.execute" {
		t.Fatalf("span names = %s, %s", spans[0].Name(), spans[1].Name())
	}
}

func TestRecordError(t *testing.T) {
	tracer, recorder := recordingTracer()

	_, span := tracer.Start(context.Background(), "op")
	tracer.RecordError(span, errors.New("boom"))
	span.End()

	ended := recorder.Ended()[0]
	if ended.Status().Description != "boom" {
		t.Fatalf("status description = %q", ended.Status().Description)
	}
	if len(ended.Events()) == 0 {
		t.Fatal("error event not recorded on span")
	}
}

func TestRecordErrorNilIsNoop(t *testing.T) {
	tracer, recorder := recordingTracer()

	_, span := tracer.Start(context.Background(), "op")
	tracer.RecordError(span, nil)
	span.End()

	if got := len(recorder.Ended()[0].Events()); got != 0 {
		t.Fatalf("nil error recorded %d events", got)
	}
}

func TestGetTraceAndSpanIDs(t *testing.T) {
	tracer, _ := recordingTracer()

	ctx, span := tracer.Start(context.Background(), "op")
	defer span.End()

	traceID := GetTraceID(ctx)
	spanID := GetSpanID(ctx)
	if len(traceID) != 32 {
		t.Fatalf("trace id %q, want 32 hex chars", traceID)
	}
	if len(spanID) != 16 {
		t.Fatalf("span id %q, want 16 hex chars", spanID)
	}
}

func TestNestedSpansShareTrace(t *testing.T) {
	tracer, _ := recordingTracer()

	ctx, parent := tracer.Start(context.Background(), "parent")
	childCtx, child := tracer.Start(ctx, "child")

	if GetTraceID(childCtx) != GetTraceID(ctx) {
		t.Fatal("child span has a different trace id")
	}
	if GetSpanID(childCtx) == GetSpanID(ctx) {
		t.Fatal("child span reused the parent span id")
	}

	child.End()
	parent.End()
}

func TestSpanFromEmptyContext(t *testing.T) {
	span := trace.SpanFromContext(context.Background())
	if span.SpanContext().IsValid() {
		t.Fatal("empty context must yield an invalid span context")
	}
}
