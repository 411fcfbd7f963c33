package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tickline/schedcore/pkg/logger"
)

// DefaultTable is the metadata table used when none is configured.
const DefaultTable = "job_data"

// Relation names cannot be bound as query parameters, so the table name is
// validated once and interpolated into statement text; only data values are
// bound.
var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig configures a PostgresStore.
type PostgresConfig struct {
	// Table is the metadata table name. Must be a plain SQL identifier.
	Table string
	// CreateTable bootstraps the table on Init when it does not exist.
	CreateTable bool
}

// PostgresStore is a MetadataStore backed by a PostgreSQL table, one row per
// job, upsert keyed on id.
type PostgresStore struct {
	pool   *pgxpool.Pool
	table  string
	create bool
	logger *logger.Logger

	mu     sync.Mutex
	inited bool
}

// NewPostgresStore creates a store over an existing connection pool. The pool
// stays owned by the caller. Init must run before first use.
func NewPostgresStore(pool *pgxpool.Pool, cfg PostgresConfig) (*PostgresStore, error) {
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", ErrCantInit, table)
	}
	return &PostgresStore{
		pool:   pool,
		table:  table,
		create: cfg.CreateTable,
		logger: logger.New("postgres-store"),
	}, nil
}

// Init verifies connectivity and optionally bootstraps the metadata table.
// Safe to call repeatedly; a no-op once initialized.
func (s *PostgresStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inited {
		return nil
	}

	if err := s.pool.Ping(ctx); err != nil {
		s.logger.Error().
			Err(err).
			Str("action", "store_init_failed").
			Msg("Cannot reach database")
		return fmt.Errorf("%w: %w", ErrCantInit, err)
	}

	if s.create {
		sql := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			last_updated BIGINT,
			last_tick BIGINT,
			next_tick BIGINT,
			job_type INTEGER NOT NULL,
			count INTEGER,
			ran BOOL,
			stopped BOOL,
			schedule TEXT,
			repeating BOOL,
			repeated_every BIGINT,
			extra BYTEA
		)`, s.table)
		if _, err := s.pool.Exec(ctx, sql); err != nil {
			s.logger.Error().
				Err(err).
				Str("action", "store_init_failed").
				Str("table", s.table).
				Msg("Cannot create metadata table")
			return fmt.Errorf("%w: %w", ErrCantInit, err)
		}
	}

	s.inited = true
	s.logger.Info().
		Str("action", "store_init").
		Str("table", s.table).
		Bool("create_table", s.create).
		Msg("Postgres metadata store initialized")
	return nil
}

// Inited reports whether Init has completed successfully.
func (s *PostgresStore) Inited(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inited
}

// Get returns the stored projection for id, or nil when unknown.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*JobStoredData, error) {
	sql := fmt.Sprintf(`SELECT
			id, last_updated, last_tick, next_tick, job_type, count,
			ran, stopped, schedule, repeating, repeated_every, extra
		FROM %s WHERE id = $1 LIMIT 1`, s.table)

	row := s.pool.QueryRow(ctx, sql, id)
	data, err := scanJobStoredData(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGetJobData, err)
	}
	return data, nil
}

// AddOrUpdate upserts the projection keyed by its ID.
func (s *PostgresStore) AddOrUpdate(ctx context.Context, data JobStoredData) error {
	sql := fmt.Sprintf(`INSERT INTO %s (
			id, last_updated, last_tick, next_tick, job_type, count,
			ran, stopped, schedule, repeating, repeated_every, extra
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			last_updated = EXCLUDED.last_updated,
			last_tick = EXCLUDED.last_tick,
			next_tick = EXCLUDED.next_tick,
			job_type = EXCLUDED.job_type,
			count = EXCLUDED.count,
			ran = EXCLUDED.ran,
			stopped = EXCLUDED.stopped,
			schedule = EXCLUDED.schedule,
			repeating = EXCLUDED.repeating,
			repeated_every = EXCLUDED.repeated_every,
			extra = EXCLUDED.extra`, s.table)

	var schedule *string
	if data.JobType == JobTypeCron {
		schedule = &data.Schedule
	}
	var repeating *bool
	var repeatedEvery *int64
	if data.JobType != JobTypeCron {
		repeating = &data.Repeating
		secs := int64(data.RepeatedEvery / time.Second)
		repeatedEvery = &secs
	}

	now := time.Now().Unix()
	_, err := s.pool.Exec(ctx, sql,
		data.ID, now, unixOrNil(data.LastTick), unixOrNil(data.NextTick),
		int32(data.JobType), int32(data.Count), data.Ran, data.Stopped,
		schedule, repeating, repeatedEvery, data.Extra,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateJobData, err)
	}
	return nil
}

// Delete removes the row for id.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	sql := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table)
	if _, err := s.pool.Exec(ctx, sql, id); err != nil {
		return fmt.Errorf("%w: %w", ErrCantRemove, err)
	}
	return nil
}

// ListNextTicks returns all rows whose next tick is set and earlier than now.
func (s *PostgresStore) ListNextTicks(ctx context.Context) ([]JobAndNextTick, error) {
	sql := fmt.Sprintf(`SELECT id, job_type, next_tick, last_tick
		FROM %s
		WHERE next_tick IS NOT NULL AND next_tick > 0 AND next_tick < $1`, s.table)

	rows, err := s.pool.Query(ctx, sql, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCantListNextTicks, err)
	}
	defer rows.Close()

	var ticks []JobAndNextTick
	for rows.Next() {
		var (
			id      uuid.UUID
			jobType int32
			next    *int64
			last    *int64
		)
		if err := rows.Scan(&id, &jobType, &next, &last); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCantListNextTicks, err)
		}
		ticks = append(ticks, JobAndNextTick{
			ID:       id,
			JobType:  JobType(jobType),
			NextTick: timeOrNil(next),
			LastTick: timeOrNil(last),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCantListNextTicks, err)
	}
	return ticks, nil
}

// SetNextAndLastTick updates just the tick columns for id.
func (s *PostgresStore) SetNextAndLastTick(ctx context.Context, id uuid.UUID, nextTick, lastTick *time.Time) error {
	sql := fmt.Sprintf(`UPDATE %s
		SET next_tick = $1, last_tick = $2, last_updated = $3
		WHERE id = $4`, s.table)

	tag, err := s.pool.Exec(ctx, sql, unixOrNil(nextTick), unixOrNil(lastTick), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateJobData, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUpdateJobData
	}
	return nil
}

// TimeTillNextJob returns the gap to the nearest future next tick.
func (s *PostgresStore) TimeTillNextJob(ctx context.Context) (*time.Duration, error) {
	sql := fmt.Sprintf(`SELECT next_tick
		FROM %s
		WHERE next_tick IS NOT NULL AND next_tick > $1
		ORDER BY next_tick ASC
		LIMIT 1`, s.table)

	now := time.Now().Unix()
	var next int64
	err := s.pool.QueryRow(ctx, sql, now).Scan(&next)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTimeTillNextJob, err)
	}
	gap := time.Duration(next-now) * time.Second
	if gap <= 0 {
		return nil, nil
	}
	return &gap, nil
}

// scanJobStoredData maps one metadata row onto the projection.
func scanJobStoredData(row pgx.Row) (*JobStoredData, error) {
	var (
		data          JobStoredData
		lastUpdated   *int64
		lastTick      *int64
		nextTick      *int64
		jobType       int32
		count         *int32
		ran           *bool
		stopped       *bool
		schedule      *string
		repeating     *bool
		repeatedEvery *int64
	)
	err := row.Scan(&data.ID, &lastUpdated, &lastTick, &nextTick, &jobType,
		&count, &ran, &stopped, &schedule, &repeating, &repeatedEvery, &data.Extra)
	if err != nil {
		return nil, err
	}

	data.LastUpdated = timeOrNil(lastUpdated)
	data.LastTick = timeOrNil(lastTick)
	data.NextTick = timeOrNil(nextTick)
	data.JobType = JobType(jobType)
	if count != nil {
		data.Count = uint32(*count)
	}
	if ran != nil {
		data.Ran = *ran
	}
	if stopped != nil {
		data.Stopped = *stopped
	}
	if schedule != nil {
		data.Schedule = *schedule
	}
	if repeating != nil {
		data.Repeating = *repeating
	}
	if repeatedEvery != nil {
		data.RepeatedEvery = time.Duration(*repeatedEvery) * time.Second
	}
	return &data, nil
}

func unixOrNil(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	unix := t.Unix()
	return &unix
}

func timeOrNil(unix *int64) *time.Time {
	if unix == nil || *unix == 0 {
		return nil
	}
	t := time.Unix(*unix, 0).UTC()
	return &t
}
