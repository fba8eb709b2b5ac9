package game

import "sync"

// Registry is the in-memory index of active bets for the current round,
// keyed by user. It is the authority for "one bet per user per round": a
// slot is reserved synchronously before any store write, so two concurrent
// placements for the same user cannot both pass the presence check. The
// registry is cleared at round start and does not survive restarts.
type Registry struct {
	mu   sync.Mutex
	bets map[string]*PlayerBet
}

func NewRegistry() *Registry {
	return &Registry{bets: make(map[string]*PlayerBet)}
}

// Reserve claims the user's slot for this round. It fails with
// ErrDuplicateBet if the slot is already taken.
func (r *Registry) Reserve(userID, username string, amount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bets[userID]; exists {
		return ErrDuplicateBet
	}
	r.bets[userID] = &PlayerBet{
		UserID:   userID,
		Username: username,
		Amount:   amount,
	}
	return nil
}

// Commit attaches the persisted bet ID to a reservation and returns a copy
// of the completed handle.
func (r *Registry) Commit(userID, betID string) PlayerBet {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.bets[userID]
	if !exists {
		return PlayerBet{}
	}
	entry.BetID = betID
	return *entry
}

// Release rolls back a reservation whose persistence failed.
func (r *Registry) Release(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bets, userID)
}

// CashOut marks the user's bet cashed out at the given multiplier. The mark
// is the lock: a second call for the same user fails with
// ErrAlreadyCashedOut no matter how the calls interleave.
func (r *Registry) CashOut(userID string, multiplier float64) (PlayerBet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.bets[userID]
	if !exists {
		return PlayerBet{}, ErrNoActiveBet
	}
	if entry.CashedOut {
		return PlayerBet{}, ErrAlreadyCashedOut
	}
	entry.CashedOut = true
	entry.CashoutMultiplier = multiplier
	entry.Payout = entry.Amount * multiplier
	return *entry, nil
}

// UndoCashOut reverts a cash-out mark whose persistence failed, so the user
// can try again while the round is still flying.
func (r *Registry) UndoCashOut(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.bets[userID]; exists {
		entry.CashedOut = false
		entry.CashoutMultiplier = 0
		entry.Payout = 0
	}
}

// Snapshot returns a point-in-time copy of every active bet.
func (r *Registry) Snapshot() []PlayerBet {
	r.mu.Lock()
	defer r.mu.Unlock()

	bets := make([]PlayerBet, 0, len(r.bets))
	for _, entry := range r.bets {
		bets = append(bets, *entry)
	}
	return bets
}

// Clear drops all entries; called when a new round opens.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bets = make(map[string]*PlayerBet)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bets)
}
