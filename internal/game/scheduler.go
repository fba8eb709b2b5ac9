package game

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"crashflight/internal/config"
	"crashflight/internal/fair"
)

// currentRound is the authoritative in-process state of the live round.
// It is replaced wholesale by startNewRound and mutated only under
// Scheduler.mu. The crash point and seeds stay here, never in a Snapshot.
type currentRound struct {
	id             string
	number         int64
	phase          Phase
	crashPoint     float64
	commitmentHash string
	serverSeed     string
	clientSeed     string
	multiplier     float64
	bettingEndsAt  time.Time
	startedAt      time.Time
	endedAt        time.Time
}

// Scheduler drives rounds through betting -> flying -> ended and owns all
// mutable round state. Exactly one scheduler may run per deployment; extra
// processes must relay bus events instead of running their own timers.
type Scheduler struct {
	cfg    config.Game
	rounds RoundStore
	bets   BetStore
	bus    Broadcaster
	ctx    context.Context

	mu       sync.Mutex
	cur      *currentRound
	registry *Registry
	stopped  bool

	bettingTimer  *time.Timer
	cooldownTimer *time.Timer
	retryTimer    *time.Timer
	tickStop      chan struct{}
}

func NewScheduler(cfg config.Game, rounds RoundStore, bets BetStore, bus Broadcaster) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		rounds:   rounds,
		bets:     bets,
		bus:      bus,
		ctx:      context.Background(),
		registry: NewRegistry(),
	}
}

// Start recovers any round interrupted by a previous run and opens the
// first round. A recovery failure is returned as fatal: the stores cannot
// be trusted if a stale round cannot be read or closed.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx

	if err := s.recoverStaleRounds(ctx); err != nil {
		return fmt.Errorf("recover stale rounds: %w", err)
	}

	s.startNewRound()
	return nil
}

// Stop cancels all timers. In-flight persistence calls run to completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.cancelTimersLocked()
	log.Println("[SCHED] scheduler stopped")
}

// recoverStaleRounds force-ends rounds left in betting or flying by a
// crash or restart. The in-memory multiplier cannot be reconstructed, so
// the round is discarded and its pending bets are marked lost.
func (s *Scheduler) recoverStaleRounds(ctx context.Context) error {
	stale, err := s.rounds.FindUnfinished(ctx)
	if err != nil {
		return err
	}

	for _, round := range stale {
		log.Printf("[SCHED] force-ending stale round #%d (%s)", round.RoundNumber, round.Status)
		if err := s.rounds.MarkEnded(ctx, round.ID, time.Now()); err != nil {
			return err
		}
		if err := s.bets.MarkPendingLost(ctx, round.ID); err != nil {
			return err
		}
	}
	return nil
}

// startNewRound opens the betting phase. On persistence failure nothing
// transitions; the attempt is retried after a fixed delay.
func (s *Scheduler) startNewRound() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	last, err := s.rounds.LastRoundNumber(s.ctx)
	if err != nil {
		s.scheduleRetry(err)
		return
	}
	number := last + 1

	serverSeed := fair.GenerateServerSeed()
	clientSeed := fair.GenerateClientSeed()
	commitment := fair.CommitmentHash(serverSeed)
	crashPoint := fair.DeriveCrashPoint(serverSeed, clientSeed, number, s.cfg.HouseEdge)

	round := &Round{
		ID:             uuid.NewString(),
		RoundNumber:    number,
		CrashPoint:     crashPoint,
		Status:         PhaseBetting,
		ServerSeed:     serverSeed,
		ClientSeed:     clientSeed,
		CommitmentHash: commitment,
		CreatedAt:      time.Now(),
	}
	if err := s.rounds.Create(s.ctx, round); err != nil {
		s.scheduleRetry(err)
		return
	}

	deadline := time.Now().Add(s.cfg.BettingDuration)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.cancelTimersLocked()
	s.cur = &currentRound{
		id:             round.ID,
		number:         number,
		phase:          PhaseBetting,
		crashPoint:     crashPoint,
		commitmentHash: commitment,
		serverSeed:     serverSeed,
		clientSeed:     clientSeed,
		multiplier:     1.00,
		bettingEndsAt:  deadline,
	}
	s.registry.Clear()
	s.bettingTimer = time.AfterFunc(s.cfg.BettingDuration, s.startFlying)
	s.mu.Unlock()

	s.publish(EventRoundNew, RoundNewEvent{
		RoundID:        round.ID,
		RoundNumber:    number,
		CommitmentHash: commitment,
		BettingEndsAt:  deadline.UnixMilli(),
	})
	log.Printf("[SCHED] round #%d open for betting", number)
}

func (s *Scheduler) scheduleRetry(err error) {
	log.Printf("[SCHED] failed to start round, retrying in %s: %v", s.cfg.RetryDelay, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.retryTimer = time.AfterFunc(s.cfg.RetryDelay, s.startNewRound)
}

// startFlying moves the round into the flying phase and starts the
// multiplier ticks. Fired by the betting timer.
func (s *Scheduler) startFlying() {
	s.mu.Lock()
	if s.stopped || s.cur == nil || s.cur.phase != PhaseBetting {
		s.mu.Unlock()
		return
	}
	startedAt := time.Now()
	s.cur.phase = PhaseFlying
	s.cur.startedAt = startedAt
	roundID := s.cur.id
	number := s.cur.number
	s.mu.Unlock()

	if err := s.rounds.MarkFlying(s.ctx, roundID, startedAt); err != nil {
		// Abandon the round rather than fly it unpersisted. Its pending
		// bets are resolved lost, like a restart would.
		log.Printf("[SCHED] persist flying for round #%d failed: %v", number, err)
		s.abandonRound(roundID)
		return
	}

	s.publish(EventRoundFlying, RoundFlyingEvent{
		RoundID:   roundID,
		StartedAt: startedAt.UnixMilli(),
	})
	log.Printf("[SCHED] round #%d flying", number)

	stop := make(chan struct{})
	ticker := time.NewTicker(s.cfg.TickInterval)

	s.mu.Lock()
	if s.stopped || s.cur == nil || s.cur.id != roundID {
		s.mu.Unlock()
		ticker.Stop()
		return
	}
	s.tickStop = stop
	s.mu.Unlock()

	go s.tickLoop(ticker, stop)
}

func (s *Scheduler) tickLoop(ticker *time.Ticker, stop chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-stop:
			return
		}
	}
}

// tick advances the multiplier one step. The multiplier is a step function:
// cash-outs settle against the last ticked value, never an interpolation.
func (s *Scheduler) tick() {
	s.mu.Lock()
	if s.cur == nil || s.cur.phase != PhaseFlying {
		s.mu.Unlock()
		return
	}

	elapsed := time.Since(s.cur.startedAt).Milliseconds()
	multiplier := fair.DeriveMultiplier(elapsed)
	crashed := multiplier >= s.cur.crashPoint
	if crashed {
		multiplier = s.cur.crashPoint
		s.stopTickingLocked()
	}
	s.cur.multiplier = multiplier
	roundID := s.cur.id
	s.mu.Unlock()

	if crashed {
		s.crash()
		return
	}

	s.publish(EventMultiplierTick, MultiplierTickEvent{
		RoundID:    roundID,
		Multiplier: multiplier,
		ElapsedMs:  elapsed,
	})
}

// crash ends the round, discloses the seeds, settles remaining bets as
// lost and arms the cooldown timer for the next round.
func (s *Scheduler) crash() {
	s.mu.Lock()
	if s.cur == nil || s.cur.phase != PhaseFlying {
		s.mu.Unlock()
		return
	}
	endedAt := time.Now()
	s.cur.phase = PhaseEnded
	s.cur.endedAt = endedAt
	cur := *s.cur
	s.mu.Unlock()

	if err := s.rounds.MarkEnded(s.ctx, cur.id, endedAt); err != nil {
		// Startup recovery is the backstop for a round left flying in
		// the store.
		log.Printf("[SCHED] persist round end failed: %v", err)
	}
	if err := s.bets.MarkPendingLost(s.ctx, cur.id); err != nil {
		log.Printf("[SCHED] settle pending bets failed: %v", err)
	}

	s.publish(EventRoundCrash, RoundCrashEvent{
		RoundID:     cur.id,
		RoundNumber: cur.number,
		CrashPoint:  cur.crashPoint,
		ServerSeed:  cur.serverSeed,
		ClientSeed:  cur.clientSeed,
	})
	log.Printf("[SCHED] round #%d crashed at %.2fx", cur.number, cur.crashPoint)

	s.mu.Lock()
	if !s.stopped {
		s.cooldownTimer = time.AfterFunc(s.cfg.CooldownDelay, s.startNewRound)
	}
	s.mu.Unlock()
}

// abandonRound force-ends a round that could not transition, then retries
// a fresh round after the usual delay.
func (s *Scheduler) abandonRound(roundID string) {
	s.mu.Lock()
	if s.cur != nil && s.cur.id == roundID {
		s.cur.phase = PhaseEnded
		s.cur.endedAt = time.Now()
		s.stopTickingLocked()
	}
	s.mu.Unlock()

	if err := s.bets.MarkPendingLost(s.ctx, roundID); err != nil {
		log.Printf("[SCHED] settle bets of abandoned round failed: %v", err)
	}
	s.scheduleRetry(fmt.Errorf("round %s abandoned", roundID))
}

func (s *Scheduler) stopTickingLocked() {
	if s.tickStop != nil {
		close(s.tickStop)
		s.tickStop = nil
	}
}

// cancelTimersLocked disarms every timer so a stale callback cannot fire a
// transition against a replaced round.
func (s *Scheduler) cancelTimersLocked() {
	if s.bettingTimer != nil {
		s.bettingTimer.Stop()
		s.bettingTimer = nil
	}
	if s.cooldownTimer != nil {
		s.cooldownTimer.Stop()
		s.cooldownTimer = nil
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.stopTickingLocked()
}

// publish is best effort: a bus outage never blocks or fails a transition.
func (s *Scheduler) publish(channel string, payload interface{}) {
	if err := s.bus.Publish(s.ctx, channel, payload); err != nil {
		log.Printf("[SCHED] publish %s failed: %v", channel, err)
	}
}
