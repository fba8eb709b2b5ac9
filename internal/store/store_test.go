package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"crashflight/internal/database"
	"crashflight/internal/game"
)

var testPool *pgxpool.Pool

func mustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, string, error) {
	var (
		dbName = "crashflight_test"
		dbPwd  = "password"
		dbUser = "user"
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbContainer, err := postgres.Run(
		ctx,
		"postgres:latest",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", err
	}

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, "", err
	}
	dbPort, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, "", err
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		dbUser, dbPwd, dbHost, dbPort.Port(), dbName)
	return dbContainer.Terminate, connStr, nil
}

func isDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.DaemonHost(ctx)
	return err == nil
}

func TestMain(m *testing.M) {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}
	if os.Getenv("CI") == "" && !isDockerAvailable() {
		os.Exit(0)
	}

	teardown, connStr, err := mustStartPostgresContainer()
	if err != nil {
		os.Exit(0)
	}

	db, err := sql.Open("pgx", connStr)
	if err == nil {
		err = database.RunMigrations(db, "../../migrations")
		db.Close()
	}
	if err == nil {
		testPool, err = pgxpool.New(context.Background(), connStr)
	}
	if err != nil {
		if teardown != nil {
			teardown(context.Background())
		}
		os.Exit(1)
	}

	code := m.Run()

	testPool.Close()
	if teardown != nil {
		teardown(context.Background())
	}
	os.Exit(code)
}

func newStoredRound(t *testing.T, rounds *Rounds, number int64) game.Round {
	t.Helper()
	round := game.Round{
		ID:             uuid.NewString(),
		RoundNumber:    number,
		CrashPoint:     2.37,
		Status:         game.PhaseBetting,
		ServerSeed:     "server_seed_" + uuid.NewString(),
		ClientSeed:     "client_seed",
		CommitmentHash: "commitment_hash",
		CreatedAt:      time.Now().UTC(),
	}
	if err := rounds.Create(context.Background(), &round); err != nil {
		t.Fatalf("Create() round failed: %v", err)
	}
	return round
}

func TestRounds_Lifecycle(t *testing.T) {
	rounds := NewRounds(testPool)
	ctx := context.Background()

	before, err := rounds.LastRoundNumber(ctx)
	if err != nil {
		t.Fatalf("LastRoundNumber() failed: %v", err)
	}

	round := newStoredRound(t, rounds, before+1)

	after, err := rounds.LastRoundNumber(ctx)
	if err != nil {
		t.Fatalf("LastRoundNumber() failed: %v", err)
	}
	if after != before+1 {
		t.Errorf("LastRoundNumber() = %d, want %d", after, before+1)
	}

	unfinished, err := rounds.FindUnfinished(ctx)
	if err != nil {
		t.Fatalf("FindUnfinished() failed: %v", err)
	}
	if !containsRound(unfinished, round.ID) {
		t.Error("betting round missing from FindUnfinished()")
	}

	if err := rounds.MarkFlying(ctx, round.ID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkFlying() failed: %v", err)
	}
	unfinished, _ = rounds.FindUnfinished(ctx)
	if !containsRound(unfinished, round.ID) {
		t.Error("flying round missing from FindUnfinished()")
	}

	if err := rounds.MarkEnded(ctx, round.ID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkEnded() failed: %v", err)
	}
	unfinished, _ = rounds.FindUnfinished(ctx)
	if containsRound(unfinished, round.ID) {
		t.Error("ended round still listed by FindUnfinished()")
	}

	recent, err := rounds.RecentEnded(ctx, 10)
	if err != nil {
		t.Fatalf("RecentEnded() failed: %v", err)
	}
	found := false
	for _, r := range recent {
		if r.ID == round.ID {
			found = true
			if r.EndedAt == nil {
				t.Error("ended round missing ended_at")
			}
			if r.ServerSeed != round.ServerSeed {
				t.Errorf("server seed = %q, want %q", r.ServerSeed, round.ServerSeed)
			}
			if r.CrashPoint != 2.37 {
				t.Errorf("crash point = %v, want 2.37", r.CrashPoint)
			}
		}
	}
	if !found {
		t.Error("ended round missing from RecentEnded()")
	}
}

func TestBets_CashoutAndSettlement(t *testing.T) {
	rounds := NewRounds(testPool)
	bets := NewBets(testPool)
	ctx := context.Background()

	last, _ := rounds.LastRoundNumber(ctx)
	round := newStoredRound(t, rounds, last+1)

	cashed := game.Bet{
		ID: uuid.NewString(), UserID: "u1", RoundID: round.ID,
		Amount: 50, Status: game.BetPending, CreatedAt: time.Now().UTC(),
	}
	pending := game.Bet{
		ID: uuid.NewString(), UserID: "u2", RoundID: round.ID,
		Amount: 20, Status: game.BetPending, CreatedAt: time.Now().UTC(),
	}
	for _, bet := range []game.Bet{cashed, pending} {
		if err := bets.Create(ctx, &bet); err != nil {
			t.Fatalf("Create() bet failed: %v", err)
		}
	}

	if err := bets.MarkCashedOut(ctx, cashed.ID, 2.50, 125.00, time.Now().UTC()); err != nil {
		t.Fatalf("MarkCashedOut() failed: %v", err)
	}
	if err := bets.MarkPendingLost(ctx, round.ID); err != nil {
		t.Fatalf("MarkPendingLost() failed: %v", err)
	}

	stored, err := bets.FindByRound(ctx, round.ID)
	if err != nil {
		t.Fatalf("FindByRound() failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("FindByRound() returned %d bets, want 2", len(stored))
	}

	for _, bet := range stored {
		switch bet.ID {
		case cashed.ID:
			if bet.Status != game.BetCashedOut {
				t.Errorf("cashed bet status = %q, want cashed_out", bet.Status)
			}
			if bet.Payout != 125.00 {
				t.Errorf("cashed bet payout = %v, want 125.00", bet.Payout)
			}
			if bet.CashoutMultiplier != 2.50 {
				t.Errorf("cashed bet multiplier = %v, want 2.50", bet.CashoutMultiplier)
			}
			if bet.CashedOutAt == nil {
				t.Error("cashed bet missing cashed_out_at")
			}
		case pending.ID:
			if bet.Status != game.BetLost {
				t.Errorf("pending bet status = %q, want lost", bet.Status)
			}
			if bet.Payout != 0 {
				t.Errorf("lost bet payout = %v, want 0", bet.Payout)
			}
		}
	}
}

func TestBets_CashoutOnlyTouchesPending(t *testing.T) {
	rounds := NewRounds(testPool)
	bets := NewBets(testPool)
	ctx := context.Background()

	last, _ := rounds.LastRoundNumber(ctx)
	round := newStoredRound(t, rounds, last+1)

	bet := game.Bet{
		ID: uuid.NewString(), UserID: "u1", RoundID: round.ID,
		Amount: 50, Status: game.BetPending, CreatedAt: time.Now().UTC(),
	}
	if err := bets.Create(ctx, &bet); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if err := bets.MarkCashedOut(ctx, bet.ID, 1.50, 75.00, time.Now().UTC()); err != nil {
		t.Fatalf("MarkCashedOut() failed: %v", err)
	}
	// A second settlement attempt must not overwrite the first.
	if err := bets.MarkCashedOut(ctx, bet.ID, 9.99, 499.50, time.Now().UTC()); err != nil {
		t.Fatalf("second MarkCashedOut() errored: %v", err)
	}

	stored, _ := bets.FindByRound(ctx, round.ID)
	if len(stored) != 1 {
		t.Fatalf("FindByRound() returned %d bets, want 1", len(stored))
	}
	if stored[0].Payout != 75.00 {
		t.Errorf("payout = %v, want 75.00 (first settlement)", stored[0].Payout)
	}
}

func containsRound(rounds []game.Round, id string) bool {
	for _, r := range rounds {
		if r.ID == id {
			return true
		}
	}
	return false
}
