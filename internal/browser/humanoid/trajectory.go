package humanoid

import (
	"context"
	"math"
	"time"
)

// computeEaseInOutCubic provides a smooth acceleration and deceleration profile for movement.
func computeEaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// bezierPath samples a cubic Bezier from start to end with numSteps points,
// the last of which is exactly end. Control points are pushed sideways by
// up to curvature*distance so the path bows like a wrist movement.
func bezierPath(start, end Vector2D, numSteps int, bow1, bow2 float64) []Vector2D {
	mainVec := end.Sub(start)
	dist := mainVec.Mag()
	if dist < 1.0 || numSteps <= 1 {
		return []Vector2D{end}
	}
	dir := mainVec.Normalize()
	normal := dir.Perp()

	p0, p3 := start, end
	p1 := start.Add(dir.Mul(dist / 3.0)).Add(normal.Mul(bow1 * dist))
	p2 := start.Add(dir.Mul(dist * 2.0 / 3.0)).Add(normal.Mul(bow2 * dist))

	path := make([]Vector2D, numSteps)
	for i := 0; i < numSteps; i++ {
		t := computeEaseInOutCubic(float64(i+1) / float64(numSteps))
		omt := 1.0 - t
		path[i] = p0.Mul(omt * omt * omt).
			Add(p1.Mul(3 * omt * omt * t)).
			Add(p2.Mul(3 * omt * t * t)).
			Add(p3.Mul(t * t * t))
	}
	path[numSteps-1] = end
	return path
}

// MoveTo moves the cursor along a curved, eased path ending exactly at target.
func (m *Motor) MoveTo(ctx context.Context, target Vector2D) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moveTo(ctx, target)
}

func (m *Motor) moveTo(ctx context.Context, target Vector2D) error {
	dist := m.pos.Dist(target)
	if dist < 1.0 {
		return m.move(ctx, target)
	}

	// Longer movements take more frames, bounded by the configured range.
	steps := uniformInt(m.rng, m.cfg.ApproachStepsMin, m.cfg.ApproachStepsMax)
	steps = int(math.Min(float64(steps), math.Max(float64(m.cfg.ApproachStepsMin), dist/4)))

	curv := m.cfg.ApproachCurvature
	bow1 := sampleGaussian(m.rng, 0, curv/2)
	bow2 := sampleGaussian(m.rng, 0, curv/3)
	path := bezierPath(m.pos, target, steps, clamp(bow1, -curv, curv), clamp(bow2, -curv, curv))

	frame := m.cfg.ApproachStepDelay
	for i, p := range path {
		if i < len(path)-1 {
			p = p.Add(m.tremor.next(m.rng, 0.05, 0.6))
		}
		if err := m.move(ctx, p); err != nil {
			return err
		}
		if err := m.sleeper.Sleep(ctx, jitterDuration(m, frame)); err != nil {
			return err
		}
	}
	return nil
}

// jitterDuration varies a frame time by up to 25 percent.
func jitterDuration(m *Motor, d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	f := uniformFloat(m.rng, 0.75, 1.25)
	return time.Duration(float64(d) * f)
}
