package humanoid

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/hurdle/api/schemas"
)

// recordedEvent is a pointer event captured by mockPointer.
type recordedEvent struct {
	Type schemas.MouseEventType
	At   schemas.Point
	// Slept is the total sleep observed before this event.
	Slept time.Duration
}

// mockPointer records every dispatched pointer event and every sleep, and
// never blocks.
type mockPointer struct {
	mu     sync.Mutex
	events []recordedEvent
	sleeps []time.Duration
	total  time.Duration

	MockPointerMove func(ctx context.Context, to schemas.Point) error
}

func newMockPointer() *mockPointer { return &mockPointer{} }

func (m *mockPointer) record(t schemas.MouseEventType, p schemas.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, recordedEvent{Type: t, At: p, Slept: m.total})
}

func (m *mockPointer) PointerDown(ctx context.Context, at schemas.Point) error {
	m.record(schemas.MousePress, at)
	return ctx.Err()
}

func (m *mockPointer) PointerMove(ctx context.Context, to schemas.Point) error {
	if m.MockPointerMove != nil {
		if err := m.MockPointerMove(ctx, to); err != nil {
			return err
		}
	}
	m.record(schemas.MouseMove, to)
	return ctx.Err()
}

func (m *mockPointer) PointerUp(_ context.Context, at schemas.Point) error {
	m.record(schemas.MouseRelease, at)
	return nil
}

func (m *mockPointer) Sleep(ctx context.Context, d time.Duration) error {
	m.mu.Lock()
	m.sleeps = append(m.sleeps, d)
	m.total += d
	m.mu.Unlock()
	return ctx.Err()
}

func (m *mockPointer) Events() []recordedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedEvent(nil), m.events...)
}

func (m *mockPointer) ofType(t schemas.MouseEventType) []recordedEvent {
	var out []recordedEvent
	for _, e := range m.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

var _ Pointer = (*mockPointer)(nil)
var _ Sleeper = (*mockPointer)(nil)
