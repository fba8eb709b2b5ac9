package game

import (
	"context"
	"time"
)

type Phase string

const (
	PhaseBetting Phase = "betting"
	PhaseFlying  Phase = "flying"
	PhaseEnded   Phase = "ended"
)

type BetStatus string

const (
	BetPending   BetStatus = "pending"
	BetCashedOut BetStatus = "cashed_out"
	BetLost      BetStatus = "lost"
)

// Round is the durable record of one game round. Seeds are stored at
// creation but only the commitment hash is published until the round ends.
type Round struct {
	ID             string     `json:"id"`
	RoundNumber    int64      `json:"round_number"`
	CrashPoint     float64    `json:"crash_point"`
	Status         Phase      `json:"status"`
	ServerSeed     string     `json:"server_seed"`
	ClientSeed     string     `json:"client_seed"`
	CommitmentHash string     `json:"commitment_hash"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Bet is the durable record of one stake. Status only ever moves
// pending -> cashed_out or pending -> lost.
type Bet struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	RoundID           string     `json:"round_id"`
	Amount            float64    `json:"amount"`
	Status            BetStatus  `json:"status"`
	CashoutMultiplier float64    `json:"cashout_multiplier,omitempty"`
	Payout            float64    `json:"payout,omitempty"`
	CashedOutAt       *time.Time `json:"cashed_out_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// PlayerBet is the in-memory handle for an active bet in the current round.
type PlayerBet struct {
	UserID            string  `json:"user_id"`
	Username          string  `json:"username"`
	Amount            float64 `json:"amount"`
	BetID             string  `json:"bet_id"`
	CashedOut         bool    `json:"cashed_out"`
	CashoutMultiplier float64 `json:"cashout_multiplier,omitempty"`
	Payout            float64 `json:"payout,omitempty"`
}

// Snapshot is the client-facing view of the current round. It never carries
// the crash point or the server seed while the round is live.
type Snapshot struct {
	RoundID           string  `json:"round_id"`
	RoundNumber       int64   `json:"round_number"`
	Phase             Phase   `json:"phase"`
	CommitmentHash    string  `json:"commitment_hash"`
	CurrentMultiplier float64 `json:"current_multiplier"`
	BettingEndsAt     int64   `json:"betting_ends_at,omitempty"` // unix ms
	StartedAt         int64   `json:"started_at,omitempty"`      // unix ms
	EndedAt           int64   `json:"ended_at,omitempty"`        // unix ms
}

type CashoutResult struct {
	Multiplier float64 `json:"multiplier"`
	Payout     float64 `json:"payout"`
}

// RoundStore persists rounds. The scheduler depends only on these
// operations; schema concerns live with the implementation.
type RoundStore interface {
	Create(ctx context.Context, round *Round) error
	LastRoundNumber(ctx context.Context) (int64, error)
	FindUnfinished(ctx context.Context) ([]Round, error)
	MarkFlying(ctx context.Context, roundID string, startedAt time.Time) error
	MarkEnded(ctx context.Context, roundID string, endedAt time.Time) error
	RecentEnded(ctx context.Context, limit int) ([]Round, error)
}

// BetStore persists bets.
type BetStore interface {
	Create(ctx context.Context, bet *Bet) error
	MarkCashedOut(ctx context.Context, betID string, multiplier, payout float64, at time.Time) error
	MarkPendingLost(ctx context.Context, roundID string) error
}

// Broadcaster fans scheduler events out to connected clients, potentially
// across processes. Delivery is at-most-once and best effort; late joiners
// must fetch a snapshot instead of relying on event history.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
}
