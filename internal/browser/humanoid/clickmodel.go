package humanoid

import (
	"context"
	"time"

	"github.com/xkilldash9x/hurdle/api/schemas"
)

// Click approaches a point inside box, hovers briefly and performs a left
// click with a short, randomized press.
func (m *Motor) Click(ctx context.Context, box schemas.Rect) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := m.targetPoint(box)
	if err := m.moveTo(ctx, target); err != nil {
		return err
	}
	if err := m.pause(ctx, m.cfg.HoverPauseMin, m.cfg.HoverPauseMax); err != nil {
		return err
	}

	if err := m.pointer.PointerDown(ctx, m.pos.Point()); err != nil {
		return err
	}
	if err := m.pause(ctx, m.cfg.ClickHoldMin, m.cfg.ClickHoldMax); err != nil {
		m.releaseMouse(ctx)
		return err
	}
	return m.pointer.PointerUp(ctx, m.pos.Point())
}

// pause is the lock-held counterpart of Pause.
func (m *Motor) pause(ctx context.Context, min, max time.Duration) error {
	return m.sleeper.Sleep(ctx, uniformDuration(m.rng, min, max))
}
