// Package tracing wraps the two spans the orchestration core emits: one
// around a full agent cycle, one around a single LLM stream call nested
// inside it. Grounded on the teacher's llm/observability.Tracer.TraceLLMCall
// shape, trimmed to what spec.md's cycle/LLM boundary actually calls for —
// no run/conversation bookkeeping, no JSON export, no feedback API, since
// those serve the teacher's own LangSmith-style UI, which this module does
// not carry.
//
// otel.Tracer draws from the global TracerProvider, which is the no-op
// implementation until internal/telemetry.Init is called with telemetry
// enabled, so every span call here is a safe no-op in tests and in any
// deployment that hasn't opted into tracing.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/agentforge/conductor"

func tracer() oteltrace.Tracer {
	return otel.Tracer(instrumentationName)
}

// EndSpanFunc closes the span started by StartCycleSpan/StartLLMSpan,
// recording err (nil for success) on the span before ending it.
type EndSpanFunc func(err error)

// StartCycleSpan opens a span covering one full agent cycle (prompt
// assembly through next-step scheduling).
func StartCycleSpan(ctx context.Context, agentID, agentType, state string) (context.Context, EndSpanFunc) {
	ctx, span := tracer().Start(ctx, "agent.cycle",
		oteltrace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("agent.type", agentType),
			attribute.String("agent.state", state),
		),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// StartLLMSpan opens a span covering one LLM stream call nested inside a
// cycle span.
func StartLLMSpan(ctx context.Context, provider, model string) (context.Context, EndSpanFunc) {
	ctx, span := tracer().Start(ctx, "llm.stream",
		oteltrace.WithAttributes(
			attribute.String("llm.provider", provider),
			attribute.String("llm.model", model),
		),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
