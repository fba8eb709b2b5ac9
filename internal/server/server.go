package server

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"crashflight/internal/bus"
	"crashflight/internal/config"
	"crashflight/internal/database"
	"crashflight/internal/game"
	"crashflight/internal/store"
	"crashflight/internal/ws"
)

type FiberServer struct {
	*fiber.App

	db    database.Service
	bus   bus.Service
	cfg   config.Game
	role  string
	hub   *ws.Hub
	relay *ws.Relay
	// scheduler is nil on relay processes; only the leader runs round timers.
	scheduler *game.Scheduler
	rounds    *store.Rounds
}

func New() *FiberServer {
	role := config.Role()
	cfg := config.LoadGame()

	// Initialize database
	db := database.New()

	// Initialize Redis event bus
	eventBus := bus.New()
	if eventBus == nil {
		log.Fatal("[SERVER] Redis is required for event fan-out")
	}

	// Initialize game components
	hub := ws.NewHub()
	relay := ws.NewRelay(hub)
	rounds := store.NewRounds(db.Pool())

	var scheduler *game.Scheduler
	if role == "leader" {
		scheduler = game.NewScheduler(cfg, rounds, store.NewBets(db.Pool()), eventBus)
	}

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "crashflight",
			AppName:       "crashflight",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		db:        db,
		bus:       eventBus,
		cfg:       cfg,
		role:      role,
		hub:       hub,
		relay:     relay,
		scheduler: scheduler,
		rounds:    rounds,
	}

	// Apply global middleware
	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	go hub.Run()

	return server
}

// Start begins mirroring bus events and, on the leader, opens the first
// round. Must run before Listen so clients never see an empty state.
func (s *FiberServer) Start(ctx context.Context) error {
	if err := s.relay.Start(ctx, s.bus); err != nil {
		return err
	}

	if s.scheduler != nil {
		if err := s.scheduler.Start(ctx); err != nil {
			return err
		}
		log.Println("[SERVER] scheduler started (leader)")
	} else {
		log.Printf("[SERVER] running as %s, scheduler disabled", s.role)
	}
	return nil
}

// Shutdown gracefully stops the game components and closes connections.
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] Shutting down...")

	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.relay != nil {
		s.relay.Stop()
	}

	if s.bus != nil {
		s.bus.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return nil
}

// currentState prefers the scheduler's authoritative view; relay processes
// fall back to the snapshot assembled from bus events.
func (s *FiberServer) currentState() game.Snapshot {
	if s.scheduler != nil {
		return s.scheduler.CurrentState()
	}
	return s.relay.CurrentState()
}

func (s *FiberServer) activeBets() []game.PlayerBet {
	if s.scheduler != nil {
		return s.scheduler.ActiveBets()
	}
	return s.relay.ActiveBets()
}
