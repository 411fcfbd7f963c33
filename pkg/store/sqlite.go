package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tickline/schedcore/pkg/logger"
)

// SQLiteConfig configures a SQLiteStore.
type SQLiteConfig struct {
	// Path is the database file path. ":memory:" keeps everything in RAM.
	Path string
	// Table is the metadata table name. Must be a plain SQL identifier.
	Table string
	// BusyTimeout bounds how long a write waits on a locked database.
	BusyTimeout time.Duration
}

// SQLiteStore is a MetadataStore backed by an embedded SQLite database. It
// suits single-process hosts that want durability without running a server.
type SQLiteStore struct {
	db     *sql.DB
	table  string
	logger *logger.Logger

	mu     sync.Mutex
	inited bool
}

// NewSQLiteStore opens (or creates) the database file and returns a store.
// Init must run before first use.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", ErrCantInit)
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", ErrCantInit, table)
	}

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCantInit, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCantInit, err)
	}
	// SQLite prefers a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	return &SQLiteStore{
		db:     db,
		table:  table,
		logger: logger.New("sqlite-store"),
	}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Init creates the metadata table when missing. Idempotent.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inited {
		return nil
	}

	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		last_updated INTEGER,
		last_tick INTEGER,
		next_tick INTEGER,
		job_type INTEGER NOT NULL,
		count INTEGER,
		ran INTEGER,
		stopped INTEGER,
		schedule TEXT,
		repeating INTEGER,
		repeated_every INTEGER,
		extra BLOB
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		s.logger.Error().
			Err(err).
			Str("action", "store_init_failed").
			Str("table", s.table).
			Msg("Cannot create metadata table")
		return fmt.Errorf("%w: %w", ErrCantInit, err)
	}

	s.inited = true
	s.logger.Info().
		Str("action", "store_init").
		Str("table", s.table).
		Msg("SQLite metadata store initialized")
	return nil
}

// Inited reports whether Init has completed successfully.
func (s *SQLiteStore) Inited(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inited
}

// Get returns the stored projection for id, or nil when unknown.
func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*JobStoredData, error) {
	query := fmt.Sprintf(`SELECT
			id, last_updated, last_tick, next_tick, job_type, count,
			ran, stopped, schedule, repeating, repeated_every, extra
		FROM %s WHERE id = ? LIMIT 1`, s.table)

	row := s.db.QueryRowContext(ctx, query, id.String())
	data, err := scanSQLiteRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGetJobData, err)
	}
	return data, nil
}

// AddOrUpdate upserts the projection keyed by its ID.
func (s *SQLiteStore) AddOrUpdate(ctx context.Context, data JobStoredData) error {
	query := fmt.Sprintf(`INSERT INTO %s (
			id, last_updated, last_tick, next_tick, job_type, count,
			ran, stopped, schedule, repeating, repeated_every, extra
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_updated = excluded.last_updated,
			last_tick = excluded.last_tick,
			next_tick = excluded.next_tick,
			job_type = excluded.job_type,
			count = excluded.count,
			ran = excluded.ran,
			stopped = excluded.stopped,
			schedule = excluded.schedule,
			repeating = excluded.repeating,
			repeated_every = excluded.repeated_every,
			extra = excluded.extra`, s.table)

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

	_, err := s.db.ExecContext(ctx, query,
		data.ID.String(), time.Now().Unix(), unixOrNil(data.LastTick), unixOrNil(data.NextTick),
		int64(data.JobType), int64(data.Count), data.Ran, data.Stopped,
		schedule, repeating, repeatedEvery, data.Extra,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateJobData, err)
	}
	return nil
}

// Delete removes the row for id.
func (s *SQLiteStore) Delete(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table)
	if _, err := s.db.ExecContext(ctx, query, id.String()); err != nil {
		return fmt.Errorf("%w: %w", ErrCantRemove, err)
	}
	return nil
}

// ListNextTicks returns all rows whose next tick is set and earlier than now.
func (s *SQLiteStore) ListNextTicks(ctx context.Context) ([]JobAndNextTick, error) {
	query := fmt.Sprintf(`SELECT id, job_type, next_tick, last_tick
		FROM %s
		WHERE next_tick IS NOT NULL AND next_tick > 0 AND next_tick < ?`, s.table)

	rows, err := s.db.QueryContext(ctx, query, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCantListNextTicks, err)
	}
	defer rows.Close()

	var ticks []JobAndNextTick
	for rows.Next() {
		var (
			rawID   string
			jobType int64
			next    *int64
			last    *int64
		)
		if err := rows.Scan(&rawID, &jobType, &next, &last); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCantListNextTicks, err)
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
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
func (s *SQLiteStore) SetNextAndLastTick(ctx context.Context, id uuid.UUID, nextTick, lastTick *time.Time) error {
	query := fmt.Sprintf(`UPDATE %s
		SET next_tick = ?, last_tick = ?, last_updated = ?
		WHERE id = ?`, s.table)

	res, err := s.db.ExecContext(ctx, query,
		unixOrNil(nextTick), unixOrNil(lastTick), time.Now().Unix(), id.String())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateJobData, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateJobData, err)
	}
	if affected == 0 {
		return ErrUpdateJobData
	}
	return nil
}

// TimeTillNextJob returns the gap to the nearest future next tick.
func (s *SQLiteStore) TimeTillNextJob(ctx context.Context) (*time.Duration, error) {
	query := fmt.Sprintf(`SELECT next_tick
		FROM %s
		WHERE next_tick IS NOT NULL AND next_tick > ?
		ORDER BY next_tick ASC
		LIMIT 1`, s.table)

	now := time.Now().Unix()
	var next int64
	err := s.db.QueryRowContext(ctx, query, now).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
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

func scanSQLiteRow(row *sql.Row) (*JobStoredData, error) {
	var (
		data          JobStoredData
		rawID         string
		lastUpdated   *int64
		lastTick      *int64
		nextTick      *int64
		jobType       int64
		count         *int64
		ran           *bool
		stopped       *bool
		schedule      *string
		repeating     *bool
		repeatedEvery *int64
	)
	err := row.Scan(&rawID, &lastUpdated, &lastTick, &nextTick, &jobType,
		&count, &ran, &stopped, &schedule, &repeating, &repeatedEvery, &data.Extra)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, err
	}
	data.ID = id
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
