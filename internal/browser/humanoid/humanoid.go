// internal/browser/humanoid/humanoid.go
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/xkilldash9x/hurdle/api/schemas"
	"github.com/xkilldash9x/hurdle/internal/config"
	"go.uber.org/zap"
)

// Pointer is the low level input capability a Motor drives.
type Pointer interface {
	PointerDown(ctx context.Context, at schemas.Point) error
	PointerMove(ctx context.Context, to schemas.Point) error
	PointerUp(ctx context.Context, at schemas.Point) error
}

// Sleeper pauses for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// RealSleeper waits on the wall clock.
var RealSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
})

// Motor synthesizes human-like pointer gestures for one browser session.
// It remembers the cursor position and the last hold duration so successive
// gestures continue from where the previous one ended.
type Motor struct {
	// mu serializes gestures; a session never runs two at once but the
	// accessors may be read from event sinks.
	mu       sync.Mutex
	cfg      config.HumanoidConfig
	logger   *zap.Logger
	pointer  Pointer
	sleeper  Sleeper
	rng      *rand.Rand
	tremor   *tremor
	pos      Vector2D
	lastHold time.Duration
}

// New creates a Motor. A nil rng gets a time-seeded source; a nil sleeper
// uses RealSleeper.
func New(cfg config.HumanoidConfig, pointer Pointer, sleeper Sleeper, rng *rand.Rand, logger *zap.Logger) *Motor {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if sleeper == nil {
		sleeper = RealSleeper
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Motor{
		cfg:     cfg,
		logger:  logger.Named("humanoid"),
		pointer: pointer,
		sleeper: sleeper,
		rng:     rng,
		tremor:  newTremor(rng.Int63()),
	}
}

// NewTestMotor returns a deterministic Motor using the default timings.
func NewTestMotor(pointer Pointer, sleeper Sleeper, seed int64) *Motor {
	return New(config.DefaultHumanoidConfig(), pointer, sleeper, rand.New(rand.NewSource(seed)), zap.NewNop())
}

// Position returns the last known cursor position.
func (m *Motor) Position() Vector2D {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

// LastHold returns the duration of the most recent press-and-hold gesture.
func (m *Motor) LastHold() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHold
}

// Pause sleeps for a uniformly sampled duration in [min, max].
func (m *Motor) Pause(ctx context.Context, min, max time.Duration) error {
	m.mu.Lock()
	d := uniformDuration(m.rng, min, max)
	m.mu.Unlock()
	return m.sleeper.Sleep(ctx, d)
}

// TargetPoint picks a point inside box, normally distributed around the
// centre. Never returns a point outside the box.
func (m *Motor) TargetPoint(box schemas.Rect) Vector2D {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.targetPoint(box)
}

func (m *Motor) targetPoint(box schemas.Rect) Vector2D {
	c := FromPoint(box.Center())
	x := sampleGaussian(m.rng, c.X, box.Width*m.cfg.TargetSpread)
	y := sampleGaussian(m.rng, c.Y, box.Height*m.cfg.TargetSpread)
	// Keep a small inset so the point never lands on the border.
	insetX := box.Width * 0.1
	insetY := box.Height * 0.1
	return Vector2D{
		X: clamp(x, box.X+insetX, box.Right()-insetX),
		Y: clamp(y, box.Y+insetY, box.Bottom()-insetY),
	}
}

// move dispatches a pointer move and records the position. Caller holds mu.
func (m *Motor) move(ctx context.Context, to Vector2D) error {
	if err := m.pointer.PointerMove(ctx, to.Point()); err != nil {
		return err
	}
	m.pos = to
	return nil
}

// KeyPause waits the configured delay between two key presses.
func (m *Motor) KeyPause(ctx context.Context) error {
	return m.Pause(ctx, m.cfg.KeyPauseMin, m.cfg.KeyPauseMax)
}
