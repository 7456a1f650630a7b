package state

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chalkboard/interp/internal/telemetry/invariants"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State is one step of the interpreter session lifecycle.
type State string

const (
	Idle     State = "idle"
	Starting State = "starting"
	Running  State = "running"
	Stopping State = "stopping"
	Crashed  State = "crashed"
)

func (s State) String() string {
	return string(s)
}

// Live reports whether a process is being launched or serving commands.
func (s State) Live() bool {
	return s == Starting || s == Running
}

var allowedTransitions = map[State]map[State]struct{}{
	Idle: {
		Starting: {},
	},
	Starting: {
		Running: {},
		Crashed: {},
	},
	Running: {
		Stopping: {},
		Crashed:  {},
	},
	Crashed: {
		Starting: {},
		Stopping: {},
	},
	Stopping: {
		Idle: {},
	},
}

// Option configures Machine construction.
type Option func(*Machine)

// WithTracer configures the tracer used for transition spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(machine *Machine) {
		if tracer == nil {
			return
		}
		machine.tracer = tracer
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(machine *Machine) {
		if now != nil {
			machine.now = now
		}
	}
}

// WithObserver registers a callback run after every accepted transition.
func WithObserver(observer func(TransitionRecord)) Option {
	return func(machine *Machine) {
		machine.observer = observer
	}
}

// TransitionRecord stores transition metadata for local history.
type TransitionRecord struct {
	SessionID string
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// IllegalTransitionError is returned for a disallowed transition.
type IllegalTransitionError struct {
	SessionID string
	From      State
	To        State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot transition session %q from %q to %q", e.SessionID, e.From, e.To)
}

// Is enables errors.Is checks for illegal transition failures.
func (e *IllegalTransitionError) Is(target error) bool {
	_, ok := target.(*IllegalTransitionError)
	return ok
}

// Machine tracks the lifecycle state of one session. It is not safe for
// concurrent use; the owning session serializes access.
type Machine struct {
	sessionID string
	current   State
	tracer    trace.Tracer
	now       func() time.Time
	observer  func(TransitionRecord)
	history   []TransitionRecord
}

// NewMachine builds a machine in the Idle state.
func NewMachine(sessionID string, options ...Option) *Machine {
	machine := &Machine{
		sessionID: strings.TrimSpace(sessionID),
		current:   Idle,
		tracer:    otel.Tracer("interp/state"),
		now:       time.Now,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(machine)
	}
	return machine
}

// Current returns the present state.
func (m *Machine) Current() State {
	return m.current
}

// Can reports whether moving to next is allowed from the present state.
func (m *Machine) Can(next State) bool {
	return isAllowed(m.current, next)
}

// Transition moves to next or returns an IllegalTransitionError.
func (m *Machine) Transition(ctx context.Context, next State, reason string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()
	from := m.current
	reason = strings.TrimSpace(reason)

	ctx, span := m.tracer.Start(ctx, "session.transition")
	defer func() {
		span.SetAttributes(attribute.Int64("duration_ms", time.Since(started).Milliseconds()))
		span.End()
	}()
	span.SetAttributes(
		attribute.String("session_id", m.sessionID),
		attribute.String("from_state", from.String()),
		attribute.String("to_state", next.String()),
		attribute.String("reason", reason),
	)

	if !isAllowed(from, next) {
		invariants.CheckStateTransitionLegal(ctx, "state.machine.transition", from.String(), next.String(), false)
		err := &IllegalTransitionError{SessionID: m.sessionID, From: from, To: next}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	record := TransitionRecord{
		SessionID: m.sessionID,
		From:      from,
		To:        next,
		Reason:    reason,
		Timestamp: m.now().UTC(),
	}
	m.current = next
	m.history = append(m.history, record)
	span.SetStatus(codes.Ok, "state transition applied")

	if m.observer != nil {
		m.observer(record)
	}
	return nil
}

// History returns transition records captured by this machine.
func (m *Machine) History() []TransitionRecord {
	out := make([]TransitionRecord, len(m.history))
	copy(out, m.history)
	return out
}

func isAllowed(from, to State) bool {
	nextStates, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = nextStates[to]
	return ok
}
