package invariants

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// InvariantStateTransitionLegal requires session transitions to follow the lifecycle table.
	InvariantStateTransitionLegal = "state_transition_legal"
	// InvariantSingleProcess requires at most one interpreter process per session.
	InvariantSingleProcess = "single_process"
	// InvariantHistoryBounded requires the command history to stay within its limit.
	InvariantHistoryBounded = "history_bounded"
)

const (
	// SeverityWarn is used for non-fatal invariant violations.
	SeverityWarn = "warn"
	// SeverityError is used for fatal invariant violations.
	SeverityError = "error"
)

var invariantChecksEnabled atomic.Bool

func init() {
	invariantChecksEnabled.Store(true)
}

// ViolationDetails captures invariant violation context for telemetry events.
type ViolationDetails struct {
	WhatInvariant string
	WhereDetected string
	WhyViolated   string
	Additional    map[string]string
}

// SetEnabled globally enables or disables invariant checks.
func SetEnabled(enabled bool) {
	invariantChecksEnabled.Store(enabled)
}

// Enabled reports whether invariant checks are currently enabled.
func Enabled() bool {
	return invariantChecksEnabled.Load()
}

// InvariantViolation emits an invariant.violation event on the active span.
// Without an active span a short synthetic span carries the event.
func InvariantViolation(
	ctx context.Context,
	invariantName string,
	severity string,
	details ViolationDetails,
) {
	if !Enabled() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	invariantName = strings.TrimSpace(invariantName)
	if invariantName == "" {
		invariantName = "unknown_invariant"
	}
	severity = normalizeSeverity(severity)

	attrs := []attribute.KeyValue{
		attribute.String("invariant_name", invariantName),
		attribute.String("severity", severity),
		attribute.String("what_invariant", strings.TrimSpace(details.WhatInvariant)),
		attribute.String("where_detected", strings.TrimSpace(details.WhereDetected)),
		attribute.String("why_violated", strings.TrimSpace(details.WhyViolated)),
	}

	if len(details.Additional) > 0 {
		keys := make([]string, 0, len(details.Additional))
		for key := range details.Additional {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			value := strings.TrimSpace(details.Additional[key])
			if value == "" {
				continue
			}
			attrs = append(attrs, attribute.String("context."+key, value))
		}
	}

	span := trace.SpanFromContext(ctx)
	if span != nil && span.SpanContext().IsValid() {
		span.AddEvent("invariant.violation", trace.WithAttributes(attrs...))
		return
	}

	_, temporarySpan := otel.Tracer("interp/invariants").Start(ctx, "invariant.violation")
	defer temporarySpan.End()
	temporarySpan.AddEvent("invariant.violation", trace.WithAttributes(attrs...))
}

// CheckStateTransitionLegal validates the state_transition_legal invariant.
func CheckStateTransitionLegal(ctx context.Context, whereDetected, fromState, toState string, legal bool) bool {
	if legal {
		return true
	}
	InvariantViolation(ctx, InvariantStateTransitionLegal, SeverityError, ViolationDetails{
		WhatInvariant: "session lifecycle transition is legal",
		WhereDetected: whereDetected,
		WhyViolated:   fmt.Sprintf("illegal transition from=%s to=%s", fromState, toState),
		Additional: map[string]string{
			"from_state": fromState,
			"to_state":   toState,
		},
	})
	return false
}

// CheckSingleProcess validates the single_process invariant before a spawn.
func CheckSingleProcess(ctx context.Context, whereDetected string, livePID int) bool {
	if livePID <= 0 {
		return true
	}
	InvariantViolation(ctx, InvariantSingleProcess, SeverityError, ViolationDetails{
		WhatInvariant: "at most one interpreter process is owned by the session",
		WhereDetected: whereDetected,
		WhyViolated:   fmt.Sprintf("spawn requested while pid=%d is still owned", livePID),
		Additional: map[string]string{
			"pid": fmt.Sprintf("%d", livePID),
		},
	})
	return false
}

// CheckHistoryBounded validates the history_bounded invariant.
func CheckHistoryBounded(ctx context.Context, whereDetected string, length, limit int) bool {
	if limit <= 0 || length <= limit {
		return true
	}
	InvariantViolation(ctx, InvariantHistoryBounded, SeverityError, ViolationDetails{
		WhatInvariant: "command history stays within its limit",
		WhereDetected: whereDetected,
		WhyViolated:   fmt.Sprintf("length=%d exceeded limit=%d", length, limit),
		Additional: map[string]string{
			"length": fmt.Sprintf("%d", length),
			"limit":  fmt.Sprintf("%d", limit),
		},
	})
	return false
}

func normalizeSeverity(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case SeverityWarn:
		return SeverityWarn
	default:
		return SeverityError
	}
}
