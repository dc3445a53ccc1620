// File: internal/challenge/events.go
package challenge

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// State is a node of the resolution state machine.
type State int

const (
	StateIdle State = iota
	StateDetecting
	StateAttempting
	StateVerifying
	StateRetrying
	StateEscalating
	StateManualFallback
	StateResolved
	StateExhausted
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateDetecting:      "detecting",
	StateAttempting:     "attempting",
	StateVerifying:      "verifying",
	StateRetrying:       "retrying",
	StateEscalating:     "escalating",
	StateManualFallback: "manual_fallback",
	StateResolved:       "resolved",
	StateExhausted:      "exhausted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// EventType classifies events.
type EventType string

const (
	EventTransition         EventType = "transition"
	EventAttempt            EventType = "attempt"
	EventDetectionAmbiguous EventType = "detection_ambiguous"
)

// Event is emitted for every state transition and every strategy attempt.
type Event struct {
	Type      EventType
	SessionID string
	From      State
	To        State
	Kind      Kind
	// Attempt is set for EventAttempt.
	Attempt *Attempt
	Reason  string
	At      time.Time
}

// Sink receives events. Implementations must be safe for concurrent use;
// one sink is shared by every session of a run.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event)

func (f SinkFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, ev)
		}
	}
}

// LogSink writes events as structured log lines.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("events")}
}

func (s *LogSink) Emit(_ context.Context, ev Event) {
	fields := []zap.Field{
		zap.String("session_id", ev.SessionID),
		zap.Stringer("kind", ev.Kind),
	}
	switch ev.Type {
	case EventAttempt:
		a := ev.Attempt
		fields = append(fields,
			zap.String("strategy", a.Strategy),
			zap.Int("ordinal", a.Ordinal),
			zap.String("outcome", string(a.Outcome)),
			zap.Duration("duration", a.Duration))
		if a.Err != nil {
			fields = append(fields, zap.Error(a.Err))
		}
		if a.Outcome == AttemptSuccess {
			s.logger.Info("Strategy attempt", fields...)
		} else {
			s.logger.Warn("Strategy attempt", fields...)
		}
	case EventDetectionAmbiguous:
		s.logger.Info("Detection ambiguous", append(fields, zap.String("reason", ev.Reason))...)
	default:
		fields = append(fields,
			zap.Stringer("from", ev.From),
			zap.Stringer("to", ev.To))
		if ev.Reason != "" {
			fields = append(fields, zap.String("reason", ev.Reason))
		}
		s.logger.Debug("State transition", fields...)
	}
}
