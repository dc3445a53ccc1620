package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/hurdle/internal/challenge"
	"github.com/xkilldash9x/hurdle/internal/results"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store keeps run history in PostgreSQL: per-target outcomes, every strategy
// attempt, extracted listings and the raw event stream.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS run_targets (
    run_id      TEXT NOT NULL,
    url         TEXT NOT NULL,
    session_id  TEXT NOT NULL,
    proxy       TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    chain_depth INT NOT NULL,
    records     INT NOT NULL,
    elapsed_ms  BIGINT NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (run_id, url)
);
CREATE TABLE IF NOT EXISTS challenge_attempts (
    run_id      TEXT NOT NULL,
    session_id  TEXT NOT NULL,
    target      TEXT NOT NULL,
    strategy    TEXT NOT NULL,
    kind        TEXT NOT NULL,
    ordinal     INT NOT NULL,
    outcome     TEXT NOT NULL,
    duration_ms BIGINT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    recorded_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS listings (
    run_id TEXT NOT NULL,
    title  TEXT NOT NULL,
    price  TEXT NOT NULL,
    url    TEXT NOT NULL,
    beds   TEXT NOT NULL,
    baths  TEXT NOT NULL,
    sqft   TEXT NOT NULL,
    source TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS challenge_events (
    session_id  TEXT NOT NULL,
    type        TEXT NOT NULL,
    from_state  TEXT NOT NULL,
    to_state    TEXT NOT NULL,
    kind        TEXT NOT NULL,
    strategy    TEXT NOT NULL DEFAULT '',
    outcome     TEXT NOT NULL DEFAULT '',
    reason      TEXT NOT NULL DEFAULT '',
    occurred_at TIMESTAMPTZ NOT NULL
);`

// EnsureSchema creates the history tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

var (
	attemptColumns = []string{"run_id", "session_id", "target", "strategy", "kind", "ordinal", "outcome", "duration_ms", "error", "recorded_at"}
	listingColumns = []string{"run_id", "title", "price", "url", "beds", "baths", "sqft", "source"}
	eventColumns   = []string{"session_id", "type", "from_state", "to_state", "kind", "strategy", "outcome", "reason", "occurred_at"}
)

const upsertTargetSQL = `
    INSERT INTO run_targets (run_id, url, session_id, proxy, status, error, chain_depth, records, elapsed_ms, finished_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    ON CONFLICT (run_id, url) DO UPDATE SET
        session_id = EXCLUDED.session_id,
        status = EXCLUDED.status,
        error = EXCLUDED.error,
        chain_depth = EXCLUDED.chain_depth,
        records = EXCLUDED.records,
        elapsed_ms = EXCLUDED.elapsed_ms,
        finished_at = EXCLUDED.finished_at;
`

// PersistReport writes a finished run in one transaction.
func (s *Store) PersistReport(ctx context.Context, r *results.Report) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	finished := r.FinishedAt.UTC()
	if len(r.Targets) > 0 {
		if err := s.persistTargets(ctx, tx, r.RunID, r.Targets, finished); err != nil {
			return err
		}
		if err := s.persistAttempts(ctx, tx, r.RunID, r.Targets, finished); err != nil {
			return err
		}
	}
	if len(r.Records) > 0 {
		if err := s.persistListings(ctx, tx, r); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Run persisted",
		zap.String("run_id", r.RunID),
		zap.Int("targets", len(r.Targets)),
		zap.Int("records", len(r.Records)),
	)
	return nil
}

func (s *Store) persistTargets(ctx context.Context, tx pgx.Tx, runID string, targets []results.TargetResult, finished time.Time) error {
	batch := &pgx.Batch{}
	for _, t := range targets {
		batch.Queue(upsertTargetSQL, runID, t.URL, t.SessionID, t.Proxy, string(t.Status), t.Error,
			t.ChainDepth, t.Records, t.ElapsedMS, finished)
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	defer func() {
		_ = br.Close()
	}()
	for i := range targets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert target %s: %w", targets[i].URL, err)
		}
	}
	return nil
}

func (s *Store) persistAttempts(ctx context.Context, tx pgx.Tx, runID string, targets []results.TargetResult, recorded time.Time) error {
	var rows [][]interface{}
	for _, t := range targets {
		for _, a := range t.Attempts {
			rows = append(rows, []interface{}{
				runID, t.SessionID, t.URL, a.Strategy, a.Kind, a.Ordinal, a.Outcome, a.DurationMS, a.Error, recorded,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"challenge_attempts"}, attemptColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy attempts: %w", err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("mismatch in copied attempts count: expected %d, got %d", len(rows), n)
	}
	return nil
}

func (s *Store) persistListings(ctx context.Context, tx pgx.Tx, r *results.Report) error {
	rows := make([][]interface{}, len(r.Records))
	for i, rec := range r.Records {
		rows[i] = []interface{}{r.RunID, rec.Title, rec.Price, rec.URL, rec.Beds, rec.Baths, rec.Sqft, rec.Source}
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"listings"}, listingColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy listings: %w", err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("mismatch in copied listings count: expected %d, got %d", len(rows), n)
	}
	return nil
}

// InsertEvents appends engine events to the event log.
func (s *Store) InsertEvents(ctx context.Context, events []challenge.Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([][]interface{}, len(events))
	for i, ev := range events {
		var strategy, outcome string
		if ev.Attempt != nil {
			strategy = ev.Attempt.Strategy
			outcome = string(ev.Attempt.Outcome)
		}
		rows[i] = []interface{}{
			ev.SessionID, string(ev.Type), ev.From.String(), ev.To.String(), ev.Kind.String(),
			strategy, outcome, ev.Reason, ev.At.UTC(),
		}
	}
	if _, err := s.pool.CopyFrom(ctx, pgx.Identifier{"challenge_events"}, eventColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("failed to copy events: %w", err)
	}
	return nil
}

// StrategyStat aggregates attempts of one strategy.
type StrategyStat struct {
	Strategy    string  `json:"strategy"`
	Kind        string  `json:"kind"`
	Attempts    int64   `json:"attempts"`
	Successes   int64   `json:"successes"`
	AvgDuration float64 `json:"avg_duration_ms"`
}

// SuccessRate returns successes over attempts, or zero with no attempts.
func (s StrategyStat) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

const strategyStatsSQL = `
    SELECT strategy, kind, COUNT(*), COUNT(*) FILTER (WHERE outcome = 'success'), COALESCE(AVG(duration_ms), 0)
    FROM challenge_attempts
    WHERE recorded_at >= $1
    GROUP BY strategy, kind
    ORDER BY strategy, kind;
`

// StrategyStats summarizes attempts recorded since the given time.
func (s *Store) StrategyStats(ctx context.Context, since time.Time) ([]StrategyStat, error) {
	rows, err := s.pool.Query(ctx, strategyStatsSQL, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy stats: %w", err)
	}
	defer rows.Close()

	var stats []StrategyStat
	for rows.Next() {
		var st StrategyStat
		if err := rows.Scan(&st.Strategy, &st.Kind, &st.Attempts, &st.Successes, &st.AvgDuration); err != nil {
			return nil, fmt.Errorf("failed to scan strategy stats row: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return stats, nil
}
