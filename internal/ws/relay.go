package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"crashflight/internal/game"
)

// Subscriber is the slice of the event bus the relay needs.
type Subscriber interface {
	Subscribe(ctx context.Context, handler func(channel string, payload []byte), channels ...string) (func(), error)
}

// Relay mirrors bus events to the local hub and keeps a cached view of the
// current round so follower processes can answer state reads without owning
// the scheduler. The leader runs one too; its WebSocket clients are fed the
// same way as everyone else's.
type Relay struct {
	hub *Hub

	mu       sync.RWMutex
	snapshot game.Snapshot
	bets     map[string]game.PlayerBet
	stop     func()
}

func NewRelay(hub *Hub) *Relay {
	return &Relay{
		hub:  hub,
		bets: make(map[string]game.PlayerBet),
	}
}

// Start subscribes to every game channel. Events arriving before the first
// round:new update an empty snapshot; that is fine, the next round corrects it.
func (r *Relay) Start(ctx context.Context, sub Subscriber) error {
	stop, err := sub.Subscribe(ctx, r.handle, game.EventChannels...)
	if err != nil {
		return err
	}
	r.stop = stop
	log.Println("[RELAY] mirroring game events")
	return nil
}

func (r *Relay) Stop() {
	if r.stop != nil {
		r.stop()
	}
}

// CurrentState returns the last snapshot assembled from bus events.
func (r *Relay) CurrentState() game.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

func (r *Relay) ActiveBets() []game.PlayerBet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bets := make([]game.PlayerBet, 0, len(r.bets))
	for _, bet := range r.bets {
		bets = append(bets, bet)
	}
	return bets
}

func (r *Relay) handle(channel string, payload []byte) {
	if err := r.apply(channel, payload); err != nil {
		log.Printf("[RELAY] dropping %s event: %v", channel, err)
		return
	}
	r.hub.Broadcast(Envelope{Type: channel, Data: json.RawMessage(payload)})
}

func (r *Relay) apply(channel string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch channel {
	case game.EventRoundNew:
		var event game.RoundNewEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return err
		}
		r.snapshot = game.Snapshot{
			RoundID:           event.RoundID,
			RoundNumber:       event.RoundNumber,
			Phase:             game.PhaseBetting,
			CommitmentHash:    event.CommitmentHash,
			CurrentMultiplier: 1.00,
			BettingEndsAt:     event.BettingEndsAt,
		}
		r.bets = make(map[string]game.PlayerBet)

	case game.EventRoundFlying:
		var event game.RoundFlyingEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return err
		}
		if event.RoundID == r.snapshot.RoundID {
			r.snapshot.Phase = game.PhaseFlying
			r.snapshot.StartedAt = event.StartedAt
		}

	case game.EventMultiplierTick:
		var event game.MultiplierTickEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return err
		}
		if event.RoundID == r.snapshot.RoundID {
			r.snapshot.CurrentMultiplier = event.Multiplier
		}

	case game.EventRoundCrash:
		var event game.RoundCrashEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return err
		}
		if event.RoundID == r.snapshot.RoundID {
			r.snapshot.Phase = game.PhaseEnded
			r.snapshot.CurrentMultiplier = event.CrashPoint
		}

	case game.EventBetPlaced:
		var bet game.PlayerBet
		if err := json.Unmarshal(payload, &bet); err != nil {
			return err
		}
		r.bets[bet.UserID] = bet

	case game.EventBetCashout:
		var event game.BetCashoutEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return err
		}
		if bet, ok := r.bets[event.UserID]; ok {
			bet.CashedOut = true
			bet.CashoutMultiplier = event.Multiplier
			bet.Payout = event.Payout
			r.bets[event.UserID] = bet
		}
	}
	return nil
}
