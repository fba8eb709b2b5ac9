package game

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// PlaceBet accepts a stake for the current round. The registry reservation
// is taken synchronously under the state lock, before the store write, so
// concurrent calls for one user cannot both pass the duplicate check. If
// persistence fails the reservation is rolled back.
func (s *Scheduler) PlaceBet(ctx context.Context, userID, username string, amount float64) (PlayerBet, error) {
	if amount < s.cfg.MinBet || amount > s.cfg.MaxBet {
		return PlayerBet{}, fmt.Errorf("%w: %.2f not in [%.2f, %.2f]",
			ErrStakeOutOfRange, amount, s.cfg.MinBet, s.cfg.MaxBet)
	}

	s.mu.Lock()
	if s.cur == nil || s.cur.phase != PhaseBetting {
		s.mu.Unlock()
		return PlayerBet{}, fmt.Errorf("%w: betting is closed", ErrWrongPhase)
	}
	roundID := s.cur.id
	roundNumber := s.cur.number
	if err := s.registry.Reserve(userID, username, amount); err != nil {
		s.mu.Unlock()
		return PlayerBet{}, err
	}
	s.mu.Unlock()

	bet := &Bet{
		ID:        uuid.NewString(),
		UserID:    userID,
		RoundID:   roundID,
		Amount:    amount,
		Status:    BetPending,
		CreatedAt: time.Now(),
	}
	if err := s.bets.Create(ctx, bet); err != nil {
		s.registry.Release(userID)
		return PlayerBet{}, fmt.Errorf("persist bet: %w", err)
	}

	placed := s.registry.Commit(userID, bet.ID)
	s.publish(EventBetPlaced, placed)
	log.Printf("[SCHED] %s bet %.2f on round #%d", username, amount, roundNumber)

	return placed, nil
}

// CashOut settles the user's bet at the last ticked multiplier. The
// cashed-out mark is set synchronously, so a second call fails instead of
// double-paying; if persistence fails the mark is reverted and the error
// surfaced.
func (s *Scheduler) CashOut(ctx context.Context, userID string) (CashoutResult, error) {
	s.mu.Lock()
	if s.cur == nil || s.cur.phase != PhaseFlying {
		s.mu.Unlock()
		return CashoutResult{}, fmt.Errorf("%w: round is not flying", ErrWrongPhase)
	}
	multiplier := s.cur.multiplier
	roundID := s.cur.id
	entry, err := s.registry.CashOut(userID, multiplier)
	s.mu.Unlock()
	if err != nil {
		return CashoutResult{}, err
	}

	if err := s.bets.MarkCashedOut(ctx, entry.BetID, multiplier, entry.Payout, time.Now()); err != nil {
		s.registry.UndoCashOut(userID)
		return CashoutResult{}, fmt.Errorf("persist cashout: %w", err)
	}

	s.publish(EventBetCashout, BetCashoutEvent{
		UserID:     userID,
		Username:   entry.Username,
		Multiplier: multiplier,
		Payout:     entry.Payout,
		RoundID:    roundID,
	})
	log.Printf("[SCHED] %s cashed out at %.2fx (%.2f)", entry.Username, multiplier, entry.Payout)

	return CashoutResult{Multiplier: multiplier, Payout: entry.Payout}, nil
}

// CurrentState returns a point-in-time copy of the live round. It never
// touches the stores and never exposes the crash point or server seed.
func (s *Scheduler) CurrentState() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur == nil {
		return Snapshot{}
	}
	snap := Snapshot{
		RoundID:           s.cur.id,
		RoundNumber:       s.cur.number,
		Phase:             s.cur.phase,
		CommitmentHash:    s.cur.commitmentHash,
		CurrentMultiplier: s.cur.multiplier,
	}
	if !s.cur.bettingEndsAt.IsZero() {
		snap.BettingEndsAt = s.cur.bettingEndsAt.UnixMilli()
	}
	if !s.cur.startedAt.IsZero() {
		snap.StartedAt = s.cur.startedAt.UnixMilli()
	}
	if !s.cur.endedAt.IsZero() {
		snap.EndedAt = s.cur.endedAt.UnixMilli()
	}
	return snap
}

// ActiveBets returns a copy of the current round's bet handles.
func (s *Scheduler) ActiveBets() []PlayerBet {
	return s.registry.Snapshot()
}
