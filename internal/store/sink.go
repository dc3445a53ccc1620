package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/hurdle/internal/challenge"
)

// EventWriter persists a batch of events.
type EventWriter interface {
	InsertEvents(ctx context.Context, events []challenge.Event) error
}

var _ challenge.Sink = (*PostgresSink)(nil)

// PostgresSink buffers engine events and writes them in batches from a
// single background goroutine, so Emit never waits on the database.
type PostgresSink struct {
	w          EventWriter
	events     chan challenge.Event
	batchSize  int
	flushEvery time.Duration
	logger     *zap.Logger

	dropped atomic.Int64
	started atomic.Bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// SinkOption customizes NewPostgresSink.
type SinkOption func(*PostgresSink)

// WithBatchSize sets how many events trigger an early flush.
func WithBatchSize(n int) SinkOption {
	return func(s *PostgresSink) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithFlushInterval sets the longest an event waits before being written.
func WithFlushInterval(d time.Duration) SinkOption {
	return func(s *PostgresSink) {
		if d > 0 {
			s.flushEvery = d
		}
	}
}

// NewPostgresSink creates a sink buffering up to capacity events.
func NewPostgresSink(w EventWriter, capacity int, logger *zap.Logger, opts ...SinkOption) *PostgresSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = 1024
	}
	s := &PostgresSink{
		w:          w,
		events:     make(chan challenge.Event, capacity),
		batchSize:  128,
		flushEvery: time.Second,
		logger:     logger.Named("event_sink"),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Emit queues ev. When the buffer is full the event is dropped and counted.
func (s *PostgresSink) Emit(_ context.Context, ev challenge.Event) {
	select {
	case s.events <- ev:
	default:
		if s.dropped.Add(1) == 1 {
			s.logger.Warn("Event buffer full, dropping events")
		}
	}
}

// Dropped returns how many events were discarded.
func (s *PostgresSink) Dropped() int64 { return s.dropped.Load() }

// Start launches the writer goroutine. Writes use ctx; cancelling it stops
// the writer after a final flush. Only the first call has an effect.
func (s *PostgresSink) Start(ctx context.Context) {
	if s.started.CompareAndSwap(false, true) {
		go s.loop(ctx)
	}
}

// Close stops the writer and waits for queued events to be written.
func (s *PostgresSink) Close() {
	s.once.Do(func() {
		close(s.stop)
		if s.started.CompareAndSwap(false, true) {
			// Never started; nothing will close done.
			close(s.done)
		}
	})
	<-s.done
}

func (s *PostgresSink) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()

	batch := make([]challenge.Event, 0, s.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := s.w.InsertEvents(ctx, batch); err != nil {
			s.logger.Error("Failed to persist events", zap.Int("count", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}
	drain := func() {
		final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		for {
			select {
			case ev := <-s.events:
				batch = append(batch, ev)
				if len(batch) >= s.batchSize {
					flush(final)
				}
			default:
				flush(final)
				return
			}
		}
	}

	for {
		select {
		case ev := <-s.events:
			batch = append(batch, ev)
			if len(batch) >= s.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-s.stop:
			drain()
			return
		case <-ctx.Done():
			drain()
			return
		}
	}
}
