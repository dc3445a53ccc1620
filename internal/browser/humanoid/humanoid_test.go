package humanoid

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/hurdle/api/schemas"
	"github.com/xkilldash9x/hurdle/internal/config"
)

var testBox = schemas.Rect{X: 200, Y: 300, Width: 120, Height: 40}

func TestVector2D(t *testing.T) {
	a := Vector2D{X: 3, Y: 4}
	assert.Equal(t, 5.0, a.Mag())
	assert.InDelta(t, 1.0, a.Normalize().Mag(), 1e-9)
	assert.Equal(t, Vector2D{}, Vector2D{}.Normalize())
	assert.Equal(t, Vector2D{X: -4, Y: 3}, a.Perp())
	assert.InDelta(t, 2.5, a.Limit(2.5).Mag(), 1e-9)
	assert.Equal(t, a, a.Limit(10))
	assert.Equal(t, 5.0, Vector2D{}.Dist(a))
	assert.Equal(t, schemas.Point{X: 3, Y: 4}, a.Point())
}

func TestComputeEaseInOutCubic(t *testing.T) {
	assert.Equal(t, 0.0, computeEaseInOutCubic(0))
	assert.Equal(t, 0.5, computeEaseInOutCubic(0.5))
	assert.Equal(t, 1.0, computeEaseInOutCubic(1))
	prev := -1.0
	for i := 0; i <= 100; i++ {
		v := computeEaseInOutCubic(float64(i) / 100)
		assert.GreaterOrEqual(t, v, prev, "easing must be monotonic")
		prev = v
	}
}

func TestBezierPath_EndsOnTarget(t *testing.T) {
	start, end := Vector2D{X: 0, Y: 0}, Vector2D{X: 400, Y: 120}
	path := bezierPath(start, end, 30, 0.2, -0.1)
	require.Len(t, path, 30)
	assert.Equal(t, end, path[len(path)-1])

	short := bezierPath(start, Vector2D{X: 0.5}, 30, 0.2, 0.2)
	assert.Equal(t, []Vector2D{{X: 0.5}}, short)
}

func TestMotor_TargetPointStaysInside(t *testing.T) {
	m := NewTestMotor(newMockPointer(), newMockPointer(), 1)
	for i := 0; i < 500; i++ {
		p := m.TargetPoint(testBox)
		require.True(t, testBox.Contains(p.Point()), "point %v outside %v", p, testBox)
	}
}

func TestMotor_MoveToLandsExactly(t *testing.T) {
	p := newMockPointer()
	m := NewTestMotor(p, p, 2)
	target := Vector2D{X: 640, Y: 360}

	require.NoError(t, m.MoveTo(context.Background(), target))
	moves := p.ofType(schemas.MouseMove)
	require.NotEmpty(t, moves)
	assert.Greater(t, len(moves), 1, "a long move is split into frames")
	assert.Equal(t, target.Point(), moves[len(moves)-1].At)
	assert.Equal(t, target, m.Position())
}

func TestMotor_ClickSequence(t *testing.T) {
	p := newMockPointer()
	m := NewTestMotor(p, p, 3)

	require.NoError(t, m.Click(context.Background(), testBox))

	events := p.Events()
	require.GreaterOrEqual(t, len(events), 3)
	down := events[len(events)-2]
	up := events[len(events)-1]
	assert.Equal(t, schemas.MousePress, down.Type)
	assert.Equal(t, schemas.MouseRelease, up.Type)
	assert.Equal(t, down.At, up.At)
	assert.True(t, testBox.Contains(down.At))

	cfg := config.DefaultHumanoidConfig()
	pressed := up.Slept - down.Slept
	assert.GreaterOrEqual(t, pressed, cfg.ClickHoldMin)
	assert.LessOrEqual(t, pressed, cfg.ClickHoldMax)
}

func TestMotor_SampleHold(t *testing.T) {
	cfg := config.DefaultHumanoidConfig()
	m := NewTestMotor(newMockPointer(), newMockPointer(), 4)

	prev := time.Duration(0)
	for i := 0; i < 1000; i++ {
		d := m.SampleHold(prev)
		require.GreaterOrEqual(t, d, cfg.HoldMin)
		require.LessOrEqual(t, d, cfg.HoldMax)
		if prev != 0 {
			require.GreaterOrEqual(t, absDuration(d-prev), cfg.HoldMinDelta)
		}
		prev = d
	}
}

func TestMotor_SampleHoldFallbackShift(t *testing.T) {
	cfg := config.DefaultHumanoidConfig()
	cfg.HoldMin = 400 * time.Millisecond
	cfg.HoldMax = 441 * time.Millisecond
	cfg.HoldMinDelta = 40 * time.Millisecond
	p := newMockPointer()
	m := New(cfg, p, p, nil, nil)

	for i := 0; i < 200; i++ {
		d := m.SampleHold(420 * time.Millisecond)
		assert.GreaterOrEqual(t, absDuration(d-420*time.Millisecond), cfg.HoldMinDelta)
		assert.GreaterOrEqual(t, d, cfg.HoldMin-cfg.HoldMinDelta)
	}
}

func TestMotor_PressAndHold(t *testing.T) {
	cfg := config.DefaultHumanoidConfig()
	p := newMockPointer()
	m := NewTestMotor(p, p, 5)

	first, err := m.PressAndHold(context.Background(), testBox)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, first, cfg.HoldMin)
	assert.LessOrEqual(t, first, cfg.HoldMax)
	assert.Equal(t, first, m.LastHold())

	downs := p.ofType(schemas.MousePress)
	ups := p.ofType(schemas.MouseRelease)
	require.Len(t, downs, 1)
	require.Len(t, ups, 1)
	assert.Equal(t, first, ups[0].Slept-downs[0].Slept, "button stays down for exactly the hold")

	// Every move during the hold stays within the jitter radius of the press point.
	anchor := FromPoint(downs[0].At)
	jitterMoves := 0
	for _, e := range p.Events() {
		if e.Type == schemas.MouseMove && e.Slept > downs[0].Slept {
			jitterMoves++
			assert.LessOrEqual(t, FromPoint(e.At).Dist(anchor), cfg.HoldJitterRadius+1e-9)
		}
	}
	assert.Greater(t, jitterMoves, 0, "the hold is not perfectly still")

	second, err := m.PressAndHold(context.Background(), testBox)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.GreaterOrEqual(t, absDuration(first-second), cfg.HoldMinDelta)
}

func TestMotor_PressAndHoldReleasesOnCancel(t *testing.T) {
	p := newMockPointer()
	m := NewTestMotor(p, p, 6)
	ctx, cancel := context.WithCancel(context.Background())

	moves := 0
	p.MockPointerMove = func(ctx context.Context, _ schemas.Point) error {
		moves++
		if moves == 3 {
			cancel()
		}
		return nil
	}
	_, err := m.PressAndHold(ctx, testBox)
	require.ErrorIs(t, err, context.Canceled)
	// Cancellation during the approach leaves the button untouched.
	assert.Empty(t, p.ofType(schemas.MousePress))
}

func TestMotor_PlanDrag(t *testing.T) {
	cfg := config.DefaultHumanoidConfig()
	m := NewTestMotor(newMockPointer(), newMockPointer(), 7)
	start, end := Vector2D{X: 100, Y: 500}, Vector2D{X: 380, Y: 500}

	steps := m.PlanDrag(start, end)
	require.GreaterOrEqual(t, len(steps), cfg.DragStepsMin)
	require.LessOrEqual(t, len(steps), cfg.DragStepsMax)
	assert.Equal(t, end, steps[len(steps)-1].To)

	prevX := start.X
	gaps := map[float64]bool{}
	for _, s := range steps {
		assert.GreaterOrEqual(t, s.To.X, prevX, "drag never moves backwards")
		assert.LessOrEqual(t, math.Abs(s.To.Y-start.Y), cfg.DragVerticalJitter+1e-9)
		assert.GreaterOrEqual(t, s.Delay, cfg.DragStepDelayMin)
		assert.LessOrEqual(t, s.Delay, cfg.DragStepDelayMax)
		gaps[math.Round((s.To.X-prevX)*1000)/1000] = true
		prevX = s.To.X
	}
	assert.Greater(t, len(gaps), 2, "easing means the step size is not constant")
}

func TestMotor_DragBy(t *testing.T) {
	p := newMockPointer()
	m := NewTestMotor(p, p, 8)
	start := Vector2D{X: 120, Y: 410}

	require.NoError(t, m.DragBy(context.Background(), start, 230))

	downs := p.ofType(schemas.MousePress)
	ups := p.ofType(schemas.MouseRelease)
	require.Len(t, downs, 1)
	require.Len(t, ups, 1)
	assert.Equal(t, start.Point(), downs[0].At)
	assert.Equal(t, schemas.Point{X: 350, Y: 410}, ups[0].At)
}

func TestMotor_DragReleasesOnMoveFailure(t *testing.T) {
	p := newMockPointer()
	m := NewTestMotor(p, p, 9)
	boom := errors.New("target closed")

	require.NoError(t, m.MoveTo(context.Background(), Vector2D{X: 10, Y: 10}))
	pressed := false
	p.MockPointerMove = func(context.Context, schemas.Point) error {
		if len(p.ofType(schemas.MousePress)) > 0 {
			pressed = true
			return boom
		}
		return nil
	}
	err := m.Drag(context.Background(), Vector2D{X: 10, Y: 10}, Vector2D{X: 200, Y: 10})
	require.ErrorIs(t, err, boom)
	assert.True(t, pressed)
	assert.Len(t, p.ofType(schemas.MouseRelease), 1)
}

func TestRealSleeperHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := RealSleeper.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, RealSleeper.Sleep(context.Background(), time.Millisecond))
}
