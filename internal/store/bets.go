package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"crashflight/internal/game"
)

type Bets struct {
	pool *pgxpool.Pool
}

func NewBets(pool *pgxpool.Pool) *Bets {
	return &Bets{pool: pool}
}

var _ game.BetStore = (*Bets)(nil)

func (b *Bets) Create(ctx context.Context, bet *game.Bet) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO bets (id, user_id, round_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		bet.ID, bet.UserID, bet.RoundID, bet.Amount, bet.Status, bet.CreatedAt)
	return err
}

func (b *Bets) MarkCashedOut(ctx context.Context, betID string, multiplier, payout float64, at time.Time) error {
	_, err := b.pool.Exec(ctx, `
		UPDATE bets
		SET status = 'cashed_out', cashout_multiplier = $2, payout = $3,
			cashed_out_at = $4, updated_at = now()
		WHERE id = $1 AND status = 'pending'`,
		betID, multiplier, payout, at)
	return err
}

// MarkPendingLost settles every unresolved bet of a round in one statement.
func (b *Bets) MarkPendingLost(ctx context.Context, roundID string) error {
	_, err := b.pool.Exec(ctx, `
		UPDATE bets
		SET status = 'lost', updated_at = now()
		WHERE round_id = $1 AND status = 'pending'`,
		roundID)
	return err
}

// FindByRound returns all bets of a round, most recent first.
func (b *Bets) FindByRound(ctx context.Context, roundID string) ([]game.Bet, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT id, user_id, round_id, amount, status, cashout_multiplier,
			payout, cashed_out_at, created_at
		FROM bets
		WHERE round_id = $1
		ORDER BY created_at DESC`,
		roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bets []game.Bet
	for rows.Next() {
		var bet game.Bet
		var multiplier, payout *float64
		if err := rows.Scan(&bet.ID, &bet.UserID, &bet.RoundID, &bet.Amount,
			&bet.Status, &multiplier, &payout, &bet.CashedOutAt,
			&bet.CreatedAt); err != nil {
			return nil, err
		}
		if multiplier != nil {
			bet.CashoutMultiplier = *multiplier
		}
		if payout != nil {
			bet.Payout = *payout
		}
		bets = append(bets, bet)
	}
	return bets, rows.Err()
}
