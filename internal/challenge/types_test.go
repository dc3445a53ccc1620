package challenge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestKind_StringRoundTrip(t *testing.T) {
	for k := KindNone; k < numKinds; k++ {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("puzzle")
	assert.Error(t, err)
	assert.Equal(t, "kind(42)", Kind(42).String())
}

func TestKinds_PriorityOrder(t *testing.T) {
	kinds := Kinds()
	require.Equal(t, []Kind{KindCookieConsent, KindCheckbox, KindPressAndHold, KindSlider, KindImageCaptcha}, kinds)
	for i := 1; i < len(kinds); i++ {
		assert.Less(t, kinds[i-1].Priority(), kinds[i].Priority())
	}
	assert.True(t, KindImageCaptcha.ManualOnly())
	assert.False(t, KindSlider.ManualOnly())
}

func TestRetryPolicy_Validate(t *testing.T) {
	require.NoError(t, DefaultRetryPolicy().Validate())

	cases := map[string]func(*RetryPolicy){
		"zero attempts":       func(p *RetryPolicy) { p.MaxAttempts = 0 },
		"zero strategies":     func(p *RetryPolicy) { p.MaxStrategies = 0 },
		"zero chain depth":    func(p *RetryPolicy) { p.MaxChainDepth = 0 },
		"zero timeout":        func(p *RetryPolicy) { p.AttemptTimeout = 0 },
		"constant backoff":    func(p *RetryPolicy) { p.BackoffMultiplier = 1 },
		"shrinking backoff":   func(p *RetryPolicy) { p.BackoffMultiplier = 0.5 },
		"jitter too wide":     func(p *RetryPolicy) { p.BackoffJitter = 0.4 },
		"negative jitter":     func(p *RetryPolicy) { p.BackoffJitter = -0.1 },
		"cap before last try": func(p *RetryPolicy) { p.MaxAttempts = 8 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := DefaultRetryPolicy()
			mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestRetryPolicy_ScheduleStrictlyIncreases(t *testing.T) {
	p := DefaultRetryPolicy()
	p.MaxAttempts = 6
	p.MaxBackoff = time.Minute
	require.NoError(t, p.Validate())

	for run := 0; run < 200; run++ {
		s := p.Schedule()
		require.Len(t, s, 5)
		for i := 1; i < len(s); i++ {
			require.Greater(t, s[i], s[i-1], "run %d: %v", run, s)
		}
	}

	p.MaxAttempts = 1
	assert.Empty(t, p.Schedule())
}

func TestStrategyError(t *testing.T) {
	err := strategyErr(sliderStrategy{}, KindSlider, "drag", ErrElementNotFound)
	assert.EqualError(t, err, "strategy slider_drag (slider): drag: challenge: element not found")
	assert.True(t, errors.Is(err, ErrElementNotFound))
}

func TestOutcome_Succeeded(t *testing.T) {
	assert.True(t, Outcome{Status: StatusResolved}.Succeeded())
	assert.True(t, Outcome{Status: StatusManualResolved}.Succeeded())
	assert.False(t, Outcome{Status: StatusExhausted, Err: ErrManualAbandoned}.Succeeded())
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))
	ctx := context.Background()

	sink.Emit(ctx, Event{Type: EventTransition, SessionID: "s1", From: StateDetecting, To: StateAttempting, Kind: KindSlider})
	sink.Emit(ctx, Event{Type: EventAttempt, SessionID: "s1", Kind: KindSlider, Attempt: &Attempt{
		Strategy: "slider_drag", Kind: KindSlider, Ordinal: 2, Outcome: AttemptFailure, Err: ErrElementNotFound,
	}})
	sink.Emit(ctx, Event{Type: EventDetectionAmbiguous, SessionID: "s1", Kind: KindCheckbox, Reason: "2 candidates"})

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "attempting", entries[0].ContextMap()["to"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "slider_drag", entries[1].ContextMap()["strategy"])
	assert.Equal(t, "failure", entries[1].ContextMap()["outcome"])
	assert.Equal(t, zapcore.InfoLevel, entries[2].Level)
}

func TestMultiSink(t *testing.T) {
	var a, b recordingSink
	var calls int
	sink := MultiSink{&a, nil, &b, SinkFunc(func(context.Context, Event) { calls++ })}
	sink.Emit(context.Background(), Event{Type: EventTransition})
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
	assert.Equal(t, 1, calls)
	NopSink{}.Emit(context.Background(), Event{})
}
