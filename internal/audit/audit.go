// Package audit persists per-message completion records and job launch
// events to Postgres, and answers the two aggregate queries the scaling
// controller polls every tick.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// MessageRecord mirrors MessageAuditRecord: one worker's completion report
// for a single message.
type MessageRecord struct {
	MessageID   string    `db:"message_id" json:"message_id"`
	JobType     string    `db:"job_type" json:"job_type"`
	WorkerPod   string    `db:"worker_pod" json:"worker_pod"`
	QueuedAt    time.Time `db:"queued_at" json:"queued_at"`
	PickedAt    time.Time `db:"picked_at" json:"picked_at"`
	ProcessedAt time.Time `db:"processed_at" json:"processed_at"`
	DurationMs  int64     `db:"duration_ms" json:"duration_ms"`
	Status      string    `db:"status" json:"status"`
	LogFile     string    `db:"log_file" json:"log_file"`
}

// Aggregator is the read surface the scaling controller polls each tick.
// Both Store and CachedStore satisfy it.
type Aggregator interface {
	AvgDurationMs(ctx context.Context, window time.Duration) (float64, error)
	CountSince(ctx context.Context, window time.Duration) (int64, error)
}

// JobEventRecorder is the write surface the Job Launcher uses to record a
// SPAWNED row. Satisfied by Store directly; writes are never cached.
type JobEventRecorder interface {
	RecordJobEvent(ctx context.Context, jobID, jobType string, status JobEventStatus) error
}

// JobEventStatus enumerates job_audit's status column.
type JobEventStatus string

const (
	JobEventSpawned JobEventStatus = "SPAWNED"
)

// Store is the Audit Store: a thin sqlx wrapper over the message_audit and
// job_audit tables, grounded in pkg/database's Database/Repository idiom.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open connects to Postgres and configures the pool, matching
// pkg/database.NewDatabase's SetMaxOpenConns/SetMaxIdleConns/ConnMaxLifetime
// and startup ping.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int, connLifetime time.Duration, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection pool, letting the users table
// (owned by internal/auth) share it rather than opening a second pool.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// EnsureSchema creates the audit and user tables if absent. A migration
// framework is overkill for three create-if-not-exists statements.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS message_audit (
			id BIGSERIAL PRIMARY KEY,
			message_id TEXT NOT NULL,
			job_type TEXT NOT NULL,
			worker_pod TEXT NOT NULL,
			queued_at TIMESTAMPTZ,
			picked_at TIMESTAMPTZ NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL,
			duration_ms BIGINT NOT NULL,
			status TEXT NOT NULL,
			log_file TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS job_audit (
			id BIGSERIAL PRIMARY KEY,
			job_id TEXT NOT NULL,
			job_type TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// RecordMessage inserts one completion report. Duplicate calls produce
// duplicate rows; the table has no uniqueness constraint on message_id.
func (s *Store) RecordMessage(ctx context.Context, rec MessageRecord) error {
	const query = `
		INSERT INTO message_audit
			(message_id, job_type, worker_pod, queued_at, picked_at, processed_at, duration_ms, status, log_file)
		VALUES
			(:message_id, :job_type, :worker_pod, :queued_at, :picked_at, :processed_at, :duration_ms, :status, :log_file)
	`
	_, err := s.db.NamedExecContext(ctx, query, rec)
	if err != nil {
		return fmt.Errorf("record message audit: %w", err)
	}
	return nil
}

// RecordJobEvent inserts one job_audit row. Failures here must never block
// the caller; callers log and swallow.
func (s *Store) RecordJobEvent(ctx context.Context, jobID, jobType string, status JobEventStatus) error {
	const query = `
		INSERT INTO job_audit (job_id, job_type, status) VALUES ($1, $2, $3)
	`
	_, err := s.db.ExecContext(ctx, query, jobID, jobType, string(status))
	if err != nil {
		return fmt.Errorf("record job audit: %w", err)
	}
	return nil
}

// AvgDurationMs returns the mean duration_ms over records whose
// processed_at falls within window, or 0 if none.
func (s *Store) AvgDurationMs(ctx context.Context, window time.Duration) (float64, error) {
	const query = `
		SELECT COALESCE(AVG(duration_ms), 0)
		FROM message_audit
		WHERE processed_at >= now() - make_interval(secs => $1)
	`
	var avg sql.NullFloat64
	if err := s.db.GetContext(ctx, &avg, query, window.Seconds()); err != nil {
		return 0, fmt.Errorf("avg duration: %w", err)
	}
	return avg.Float64, nil
}

// RecentMessages returns the most recent limit message_audit rows ordered
// by processed_at descending, for GET /audit.
func (s *Store) RecentMessages(ctx context.Context, limit int) ([]MessageRecord, error) {
	const query = `
		SELECT message_id, job_type, worker_pod, queued_at, picked_at, processed_at, duration_ms, status, log_file
		FROM message_audit
		ORDER BY processed_at DESC
		LIMIT $1
	`
	var records []MessageRecord
	if err := s.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return records, nil
}

// CountSince returns the number of message_audit rows processed within
// window, used for throughput_per_minute.
func (s *Store) CountSince(ctx context.Context, window time.Duration) (int64, error) {
	const query = `
		SELECT COUNT(*)
		FROM message_audit
		WHERE processed_at >= now() - make_interval(secs => $1)
	`
	var count int64
	if err := s.db.GetContext(ctx, &count, query, window.Seconds()); err != nil {
		return 0, fmt.Errorf("count since: %w", err)
	}
	return count, nil
}
