package humanoid

import (
	"context"
	"time"

	"github.com/xkilldash9x/hurdle/api/schemas"
	"go.uber.org/zap"
)

// maxHoldResamples bounds rejection sampling before the fallback shift.
const maxHoldResamples = 16

// SampleHold draws a hold duration in [HoldMin, HoldMax] that differs from
// prev by at least HoldMinDelta. A zero prev means no previous hold.
func (m *Motor) SampleHold(prev time.Duration) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sampleHold(prev)
}

func (m *Motor) sampleHold(prev time.Duration) time.Duration {
	lo, hi, delta := m.cfg.HoldMin, m.cfg.HoldMax, m.cfg.HoldMinDelta
	var d time.Duration
	for i := 0; i < maxHoldResamples; i++ {
		d = uniformDuration(m.rng, lo, hi)
		if prev == 0 || absDuration(d-prev) >= delta {
			return d
		}
	}
	// Shift away from prev in whichever direction still fits the window.
	if prev+delta <= hi {
		return prev + delta
	}
	return prev - delta
}

// PressAndHold presses inside box, keeps the button down for a freshly
// sampled duration while the hand trembles slightly, then releases. It
// returns the hold duration used.
func (m *Motor) PressAndHold(ctx context.Context, box schemas.Rect) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	anchor := m.targetPoint(box)
	if err := m.moveTo(ctx, anchor); err != nil {
		return 0, err
	}
	if err := m.pause(ctx, m.cfg.PrePressMin, m.cfg.PrePressMax); err != nil {
		return 0, err
	}

	hold := m.sampleHold(m.lastHold)
	m.lastHold = hold
	m.logger.Debug("Pressing and holding", zap.Duration("hold", hold), zap.Float64("x", anchor.X), zap.Float64("y", anchor.Y))

	if err := m.pointer.PointerDown(ctx, anchor.Point()); err != nil {
		return hold, err
	}

	remaining := hold
	for remaining > 0 {
		step := uniformDuration(m.rng, m.cfg.HoldJitterIntervalMin, m.cfg.HoldJitterIntervalMax)
		if step > remaining {
			step = remaining
		}
		if err := m.sleeper.Sleep(ctx, step); err != nil {
			m.releaseMouse(ctx)
			return hold, err
		}
		remaining -= step
		if remaining <= 0 {
			break
		}
		offset := m.tremor.next(m.rng, step.Seconds(), m.cfg.HoldJitterRadius)
		if err := m.move(ctx, anchor.Add(offset)); err != nil {
			m.releaseMouse(ctx)
			return hold, err
		}
	}

	return hold, m.pointer.PointerUp(ctx, m.pos.Point())
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
