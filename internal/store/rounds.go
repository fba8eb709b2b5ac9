// Package store provides the Postgres-backed implementations of the
// scheduler's RoundStore and BetStore.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"crashflight/internal/game"
)

type Rounds struct {
	pool *pgxpool.Pool
}

func NewRounds(pool *pgxpool.Pool) *Rounds {
	return &Rounds{pool: pool}
}

var _ game.RoundStore = (*Rounds)(nil)

const roundColumns = `id, round_number, crash_point, status, server_seed,
	client_seed, commitment_hash, started_at, ended_at, created_at`

func (r *Rounds) Create(ctx context.Context, round *game.Round) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rounds (id, round_number, crash_point, status, server_seed,
			client_seed, commitment_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		round.ID, round.RoundNumber, round.CrashPoint, round.Status,
		round.ServerSeed, round.ClientSeed, round.CommitmentHash, round.CreatedAt)
	return err
}

func (r *Rounds) LastRoundNumber(ctx context.Context) (int64, error) {
	var last int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(round_number), 0) FROM rounds`).Scan(&last)
	return last, err
}

func (r *Rounds) FindUnfinished(ctx context.Context) ([]game.Round, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+roundColumns+`
		FROM rounds
		WHERE status IN ('betting', 'flying')
		ORDER BY round_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRounds(rows)
}

func (r *Rounds) MarkFlying(ctx context.Context, roundID string, startedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE rounds
		SET status = 'flying', started_at = $2, updated_at = now()
		WHERE id = $1`,
		roundID, startedAt)
	return err
}

func (r *Rounds) MarkEnded(ctx context.Context, roundID string, endedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE rounds
		SET status = 'ended', ended_at = $2, updated_at = now()
		WHERE id = $1`,
		roundID, endedAt)
	return err
}

func (r *Rounds) RecentEnded(ctx context.Context, limit int) ([]game.Round, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+roundColumns+`
		FROM rounds
		WHERE status = 'ended'
		ORDER BY round_number DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRounds(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRounds(rows rowScanner) ([]game.Round, error) {
	var rounds []game.Round
	for rows.Next() {
		var round game.Round
		if err := rows.Scan(&round.ID, &round.RoundNumber, &round.CrashPoint,
			&round.Status, &round.ServerSeed, &round.ClientSeed,
			&round.CommitmentHash, &round.StartedAt, &round.EndedAt,
			&round.CreatedAt); err != nil {
			return nil, err
		}
		rounds = append(rounds, round)
	}
	return rounds, rows.Err()
}
