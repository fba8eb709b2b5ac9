package game

// Event bus channels. Relays subscribe to all of them and mirror payloads to
// their local WebSocket clients.
const (
	EventRoundNew       = "round:new"
	EventRoundFlying    = "round:flying"
	EventMultiplierTick = "multiplier:tick"
	EventRoundCrash     = "round:crash"
	EventBetPlaced      = "bet:placed"
	EventBetCashout     = "bet:cashout"
)

// EventChannels lists every channel a relay needs to mirror.
var EventChannels = []string{
	EventRoundNew,
	EventRoundFlying,
	EventMultiplierTick,
	EventRoundCrash,
	EventBetPlaced,
	EventBetCashout,
}

type RoundNewEvent struct {
	RoundID        string `json:"round_id"`
	RoundNumber    int64  `json:"round_number"`
	CommitmentHash string `json:"commitment_hash"`
	BettingEndsAt  int64  `json:"betting_ends_at"` // unix ms
}

type RoundFlyingEvent struct {
	RoundID   string `json:"round_id"`
	StartedAt int64  `json:"started_at"` // unix ms
}

type MultiplierTickEvent struct {
	RoundID    string  `json:"round_id"`
	Multiplier float64 `json:"multiplier"`
	ElapsedMs  int64   `json:"elapsed_ms"`
}

// RoundCrashEvent discloses the seeds so clients can verify the commitment
// hash published in RoundNewEvent.
type RoundCrashEvent struct {
	RoundID     string  `json:"round_id"`
	RoundNumber int64   `json:"round_number"`
	CrashPoint  float64 `json:"crash_point"`
	ServerSeed  string  `json:"server_seed"`
	ClientSeed  string  `json:"client_seed"`
}

// bet:placed carries a PlayerBet as payload.

type BetCashoutEvent struct {
	UserID     string  `json:"user_id"`
	Username   string  `json:"username"`
	Multiplier float64 `json:"multiplier"`
	Payout     float64 `json:"payout"`
	RoundID    string  `json:"round_id"`
}
