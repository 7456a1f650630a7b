package invariants

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInvariantViolationAddsEventToActiveSpan(t *testing.T) {
	previous := Enabled()
	SetEnabled(true)
	t.Cleanup(func() {
		SetEnabled(previous)
	})

	recorder, restore := installTracerProvider()
	defer restore()

	ctx, span := otel.Tracer("test/invariants").Start(context.Background(), "operation")
	InvariantViolation(ctx, InvariantSingleProcess, SeverityError, ViolationDetails{
		WhatInvariant: "one process",
		WhereDetected: "session.start",
		WhyViolated:   "pid still owned",
		Additional: map[string]string{
			"pid":   "42",
			"empty": "  ",
		},
	})
	span.End()

	events := spanEventsByName(recorder, "operation")
	require.Len(t, events, 1)
	assert.Equal(t, "invariant.violation", events[0].Name)
	assert.Equal(t, InvariantSingleProcess, eventAttr(events[0], "invariant_name"))
	assert.Equal(t, SeverityError, eventAttr(events[0], "severity"))
	assert.Equal(t, "session.start", eventAttr(events[0], "where_detected"))
	assert.Equal(t, "42", eventAttr(events[0], "context.pid"))
	assert.Empty(t, eventAttr(events[0], "context.empty"))
}

func TestInvariantViolationWithoutSpanCreatesSyntheticSpan(t *testing.T) {
	previous := Enabled()
	SetEnabled(true)
	t.Cleanup(func() {
		SetEnabled(previous)
	})

	recorder, restore := installTracerProvider()
	defer restore()

	InvariantViolation(context.Background(), InvariantHistoryBounded, "bogus", ViolationDetails{WhereDetected: "session.submit"})

	events := spanEventsByName(recorder, "invariant.violation")
	require.Len(t, events, 1)
	assert.Equal(t, SeverityError, eventAttr(events[0], "severity"))
}

func TestInvariantViolationDisabledSkipsEmission(t *testing.T) {
	previous := Enabled()
	SetEnabled(false)
	t.Cleanup(func() {
		SetEnabled(previous)
	})

	recorder, restore := installTracerProvider()
	defer restore()

	ctx, span := otel.Tracer("test/invariants").Start(context.Background(), "operation")
	InvariantViolation(ctx, InvariantHistoryBounded, SeverityError, ViolationDetails{
		WhereDetected: "session.submit",
	})
	span.End()

	events := spanEventsByName(recorder, "operation")
	require.Len(t, events, 0)
}

func TestPredefinedInvariantChecksEmitExpectedNames(t *testing.T) {
	previous := Enabled()
	SetEnabled(true)
	t.Cleanup(func() {
		SetEnabled(previous)
	})

	tests := []struct {
		name          string
		wantInvariant string
		run           func(ctx context.Context) bool
	}{
		{
			name:          "state_transition_legal",
			wantInvariant: InvariantStateTransitionLegal,
			run: func(ctx context.Context) bool {
				return CheckStateTransitionLegal(ctx, "state.machine.transition", "idle", "running", false)
			},
		},
		{
			name:          "single_process",
			wantInvariant: InvariantSingleProcess,
			run: func(ctx context.Context) bool {
				return CheckSingleProcess(ctx, "session.start", 1234)
			},
		},
		{
			name:          "history_bounded",
			wantInvariant: InvariantHistoryBounded,
			run: func(ctx context.Context) bool {
				return CheckHistoryBounded(ctx, "session.submit", 51, 50)
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			recorder, restore := installTracerProvider()
			defer restore()

			ctx, span := otel.Tracer("test/invariants").Start(context.Background(), "operation")
			assert.False(t, tt.run(ctx))
			span.End()

			events := spanEventsByName(recorder, "operation")
			require.Len(t, events, 1)
			assert.Equal(t, tt.wantInvariant, eventAttr(events[0], "invariant_name"))
		})
	}
}

func TestPassingChecksEmitNothing(t *testing.T) {
	recorder, restore := installTracerProvider()
	defer restore()

	ctx, span := otel.Tracer("test/invariants").Start(context.Background(), "operation")
	assert.True(t, CheckStateTransitionLegal(ctx, "x", "idle", "starting", true))
	assert.True(t, CheckSingleProcess(ctx, "x", 0))
	assert.True(t, CheckHistoryBounded(ctx, "x", 50, 50))
	span.End()

	assert.Empty(t, spanEventsByName(recorder, "operation"))
}

func installTracerProvider() (*tracetest.SpanRecorder, func()) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)

	return recorder, func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			otel.Handle(err)
		}
		otel.SetTracerProvider(previous)
	}
}

func spanEventsByName(recorder *tracetest.SpanRecorder, spanName string) []sdktrace.Event {
	for _, finished := range recorder.Ended() {
		if finished.Name() != spanName {
			continue
		}
		return finished.Events()
	}
	return nil
}

func eventAttr(event sdktrace.Event, key string) string {
	for _, attr := range event.Attributes {
		if string(attr.Key) != key {
			continue
		}
		return attr.Value.AsString()
	}
	return ""
}
