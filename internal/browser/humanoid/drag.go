package humanoid

import (
	"context"
	"time"
)

// DragStep is one frame of a planned drag.
type DragStep struct {
	To    Vector2D
	Delay time.Duration
}

// PlanDrag plans an eased drag from start to end. Intermediate frames carry
// a small vertical wobble; the final frame lands exactly on end.
func (m *Motor) PlanDrag(start, end Vector2D) []DragStep {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.planDrag(start, end)
}

func (m *Motor) planDrag(start, end Vector2D) []DragStep {
	n := uniformInt(m.rng, m.cfg.DragStepsMin, m.cfg.DragStepsMax)
	span := end.Sub(start)
	jitter := m.cfg.DragVerticalJitter

	steps := make([]DragStep, n)
	for i := 1; i <= n; i++ {
		e := computeEaseInOutCubic(float64(i) / float64(n))
		p := start.Add(span.Mul(e))
		if i < n {
			p.Y += clamp(sampleGaussian(m.rng, 0, jitter/2), -jitter, jitter)
		}
		steps[i-1] = DragStep{
			To:    p,
			Delay: uniformDuration(m.rng, m.cfg.DragStepDelayMin, m.cfg.DragStepDelayMax),
		}
	}
	return steps
}

// DragMargin samples how many pixels short of the end stop a slider drag
// should finish.
func (m *Motor) DragMargin() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uniformFloat(m.rng, m.cfg.DragMarginMin, m.cfg.DragMarginMax)
}

// DragBy grabs at start and drags horizontally by dx, releasing at the end.
func (m *Motor) DragBy(ctx context.Context, start Vector2D, dx float64) error {
	return m.Drag(ctx, start, start.Add(Vector2D{X: dx}))
}

// Drag presses at start, follows an eased multi-step path to end and releases.
func (m *Motor) Drag(ctx context.Context, start, end Vector2D) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.moveTo(ctx, start); err != nil {
		return err
	}
	if err := m.pause(ctx, m.cfg.PrePressMin, m.cfg.PrePressMax); err != nil {
		return err
	}
	if err := m.pointer.PointerDown(ctx, start.Point()); err != nil {
		return err
	}

	for _, step := range m.planDrag(start, end) {
		if err := m.move(ctx, step.To); err != nil {
			m.releaseMouse(ctx)
			return err
		}
		if err := m.sleeper.Sleep(ctx, step.Delay); err != nil {
			m.releaseMouse(ctx)
			return err
		}
	}

	// A short settle before release, as a hand does at the end of a track.
	if err := m.pause(ctx, m.cfg.ClickHoldMin, m.cfg.ClickHoldMax); err != nil {
		m.releaseMouse(ctx)
		return err
	}
	return m.pointer.PointerUp(ctx, end.Point())
}

// releaseMouse lifts the button even when ctx is already cancelled.
func (m *Motor) releaseMouse(ctx context.Context) {
	_ = m.pointer.PointerUp(context.WithoutCancel(ctx), m.pos.Point())
}
