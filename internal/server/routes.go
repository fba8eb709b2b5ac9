package server

import (
	"context"
	"encoding/json"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/gofiber/contrib/websocket"

	"crashflight/internal/fair"
	"crashflight/internal/game"
	"crashflight/internal/ws"
)

func (s *FiberServer) RegisterFiberRoutes() {
	// Apply CORS middleware
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	// Basic routes
	s.App.Get("/health", s.healthHandler)

	// Game routes
	api := s.App.Group("/api/v1")

	api.Get("/game/state", s.getGameStateHandler)
	api.Post("/game/bet", s.placeBetHandler)
	api.Post("/game/cashout", s.cashoutHandler)
	api.Post("/game/verify", s.verifyRoundHandler)
	api.Get("/game/rounds", s.roundHistoryHandler)

	// WebSocket route
	s.App.Get("/ws", websocket.New(s.gameWebSocketHandler))
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"database": s.db.Health(),
		"bus":      s.bus.Health(),
		"game": fiber.Map{
			"role":              s.role,
			"connected_clients": s.hub.GetClientCount(),
		},
	}
	return c.JSON(health)
}

// getGameStateHandler returns the current round snapshot and active bets.
func (s *FiberServer) getGameStateHandler(c *fiber.Ctx) error {
	state := s.currentState()
	if state.RoundID == "" {
		return c.Status(404).JSON(fiber.Map{
			"error": "No active game round",
		})
	}
	return c.JSON(fiber.Map{
		"state":       state,
		"active_bets": s.activeBets(),
	})
}

type betRequest struct {
	UserID   string  `json:"user_id"`
	Username string  `json:"username"`
	Amount   float64 `json:"amount"`
}

// placeBetHandler handles bet placement requests. Only the leader accepts
// writes; relays point callers back at the leader.
func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	if s.scheduler == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "This process does not accept bets, use the leader",
		})
	}

	var req betRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}
	if req.Username == "" {
		req.Username = req.UserID
	}

	bet, err := s.scheduler.PlaceBet(c.Context(), req.UserID, req.Username, req.Amount)
	if err != nil {
		return s.gameError(c, err)
	}
	return c.JSON(bet)
}

type cashoutRequest struct {
	UserID string `json:"user_id"`
}

// cashoutHandler settles the caller's bet at the current multiplier.
func (s *FiberServer) cashoutHandler(c *fiber.Ctx) error {
	if s.scheduler == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "This process does not accept cashouts, use the leader",
		})
	}

	var req cashoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	result, err := s.scheduler.CashOut(c.Context(), req.UserID)
	if err != nil {
		return s.gameError(c, err)
	}
	return c.JSON(result)
}

type verifyRequest struct {
	ServerSeed  string  `json:"server_seed"`
	ClientSeed  string  `json:"client_seed"`
	RoundNumber int64   `json:"round_number"`
	CrashPoint  float64 `json:"crash_point"`
}

// verifyRoundHandler recomputes a crash point from disclosed seeds so
// players can check a finished round against its commitment.
func (s *FiberServer) verifyRoundHandler(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ServerSeed == "" || req.ClientSeed == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "Server seed and client seed are required",
		})
	}

	expected := fair.DeriveCrashPoint(req.ServerSeed, req.ClientSeed, req.RoundNumber, s.cfg.HouseEdge)
	return c.JSON(fiber.Map{
		"valid":                fair.Verify(req.ServerSeed, req.ClientSeed, req.RoundNumber, s.cfg.HouseEdge, req.CrashPoint),
		"expected_crash_point": expected,
		"commitment_hash":      fair.CommitmentHash(req.ServerSeed),
	})
}

// roundHistoryHandler returns recently ended rounds, seeds included.
func (s *FiberServer) roundHistoryHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	rounds, err := s.rounds.RecentEnded(c.Context(), limit)
	if err != nil {
		log.Printf("[SERVER] round history query failed: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to load round history",
		})
	}
	if rounds == nil {
		rounds = []game.Round{}
	}
	return c.JSON(fiber.Map{"rounds": rounds})
}

// gameError maps validation failures to 400 and everything else to 500.
func (s *FiberServer) gameError(c *fiber.Ctx, err error) error {
	if game.IsValidationError(err) {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	log.Printf("[SERVER] game operation failed: %v", err)
	return c.Status(500).JSON(fiber.Map{"error": "Internal error"})
}

// gameWebSocketHandler handles WebSocket connections for real-time updates.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	userID := conn.Query("user_id", "anonymous")
	username := conn.Query("username", userID)

	log.Printf("[WS] New connection from user: %s", userID)

	client := s.hub.RegisterClient(conn, userID)

	// Send initial state
	if state := s.currentState(); state.RoundID != "" {
		client.Send(ws.Envelope{Type: "initial_state", Data: fiber.Map{
			"state":       state,
			"active_bets": s.activeBets(),
		}})
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] Read error for user %s: %v", userID, err)
			s.hub.UnregisterClient(conn)
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var clientMsg struct {
			Type   string  `json:"type"`
			Amount float64 `json:"amount"`
		}
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			continue
		}

		switch clientMsg.Type {
		case "place_bet":
			if s.scheduler == nil {
				client.Send(ws.Envelope{Type: "error", Data: fiber.Map{"error": "bets go to the leader"}})
				continue
			}
			bet, err := s.scheduler.PlaceBet(context.Background(), userID, username, clientMsg.Amount)
			if err != nil {
				client.Send(ws.Envelope{Type: "bet_rejected", Data: fiber.Map{"error": err.Error()}})
				continue
			}
			client.Send(ws.Envelope{Type: "bet_accepted", Data: bet})

		case "cashout":
			if s.scheduler == nil {
				client.Send(ws.Envelope{Type: "error", Data: fiber.Map{"error": "cashouts go to the leader"}})
				continue
			}
			result, err := s.scheduler.CashOut(context.Background(), userID)
			if err != nil {
				client.Send(ws.Envelope{Type: "cashout_rejected", Data: fiber.Map{"error": err.Error()}})
				continue
			}
			client.Send(ws.Envelope{Type: "cashout_accepted", Data: result})

		case "ping":
			client.Send(ws.Envelope{Type: "pong"})
		}
	}
}
