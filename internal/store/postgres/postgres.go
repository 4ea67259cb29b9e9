package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/schollaertel/clocksynk/internal/models"
	"github.com/schollaertel/clocksynk/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
    id           TEXT PRIMARY KEY,
    home_score   INTEGER NOT NULL DEFAULT 0,
    away_score   INTEGER NOT NULL DEFAULT 0,
    period       INTEGER NOT NULL DEFAULT 1,
    clock_time   INTEGER NOT NULL DEFAULT 0,
    is_running   BOOLEAN NOT NULL DEFAULT FALSE,
    clock_anchor BIGINT,
    penalties    JSONB NOT NULL DEFAULT '[]',
    last_updated BIGINT NOT NULL DEFAULT 0
)`

// Store is a Postgres-backed GameStateStore. It has no native change feed;
// wrap it with natsbus when spectators need push updates.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres, verifies the connection and ensures the games
// table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure games table: %w", err)
	}
	log.Info().Msg("connected to postgres game store")
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Get(ctx context.Context, gameID string) (models.GameState, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, home_score, away_score, period, clock_time, is_running, clock_anchor, penalties, last_updated
		FROM games WHERE id = $1`, gameID)

	state, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.GameState{}, store.ErrNotFound
	}
	if err != nil {
		return models.GameState{}, fmt.Errorf("%w: get game %s: %v", store.ErrUnavailable, gameID, err)
	}
	return state, nil
}

func (s *Store) Create(ctx context.Context, gameID string, initial models.GameState) (models.GameState, error) {
	rec := store.EncodeRecord(gameID, initial)
	penalties, err := json.Marshal(rec.Penalties)
	if err != nil {
		return models.GameState{}, fmt.Errorf("marshal penalties: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO games (id, home_score, away_score, period, clock_time, is_running, clock_anchor, penalties, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.HomeScore, rec.AwayScore, rec.Period, rec.ClockTime, rec.IsRunning, rec.ClockAnchor, penalties, rec.LastUpdated)
	if err != nil {
		return models.GameState{}, fmt.Errorf("%w: create game %s: %v", store.ErrUnavailable, gameID, err)
	}
	if tag.RowsAffected() == 0 {
		// A concurrent session created the record first; adopt it.
		return s.Get(ctx, gameID)
	}
	return initial.Clone(), nil
}

func (s *Store) Update(ctx context.Context, gameID string, state models.GameState) (models.GameState, error) {
	rec := store.EncodeRecord(gameID, state)
	penalties, err := json.Marshal(rec.Penalties)
	if err != nil {
		return models.GameState{}, fmt.Errorf("marshal penalties: %w", err)
	}

	// Whole-record upsert guarded by last_updated: an older write never
	// clobbers a newer record (last-write-wins at record granularity).
	row := s.pool.QueryRow(ctx, `
		INSERT INTO games (id, home_score, away_score, period, clock_time, is_running, clock_anchor, penalties, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			home_score = EXCLUDED.home_score,
			away_score = EXCLUDED.away_score,
			period = EXCLUDED.period,
			clock_time = EXCLUDED.clock_time,
			is_running = EXCLUDED.is_running,
			clock_anchor = EXCLUDED.clock_anchor,
			penalties = EXCLUDED.penalties,
			last_updated = EXCLUDED.last_updated
		WHERE games.last_updated <= EXCLUDED.last_updated
		RETURNING id, home_score, away_score, period, clock_time, is_running, clock_anchor, penalties, last_updated`,
		rec.ID, rec.HomeScore, rec.AwayScore, rec.Period, rec.ClockTime, rec.IsRunning, rec.ClockAnchor, penalties, rec.LastUpdated)

	updated, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// The stored record is newer; it stays authoritative.
		return s.Get(ctx, gameID)
	}
	if err != nil {
		return models.GameState{}, fmt.Errorf("%w: update game %s: %v", store.ErrUnavailable, gameID, err)
	}
	return updated, nil
}

// Subscribe is unsupported on the bare Postgres store.
func (s *Store) Subscribe(ctx context.Context, gameID string, fn func(models.GameState)) (store.Subscription, error) {
	return nil, store.ErrNoSubscribe
}

func scanRecord(row pgx.Row) (models.GameState, error) {
	var rec store.Record
	var penalties []byte
	if err := row.Scan(&rec.ID, &rec.HomeScore, &rec.AwayScore, &rec.Period, &rec.ClockTime,
		&rec.IsRunning, &rec.ClockAnchor, &penalties, &rec.LastUpdated); err != nil {
		return models.GameState{}, err
	}
	if err := json.Unmarshal(penalties, &rec.Penalties); err != nil {
		return models.GameState{}, fmt.Errorf("unmarshal penalties: %w", err)
	}
	state, err := rec.Decode()
	if err != nil {
		return models.GameState{}, fmt.Errorf("decode record: %w", err)
	}
	return state, nil
}
