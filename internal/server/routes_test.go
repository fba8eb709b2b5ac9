package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"

	"crashflight/internal/config"
	"crashflight/internal/fair"
	"crashflight/internal/game"
	"crashflight/internal/ws"
)

// fakeBus hands the relay's handler back to the test so events can be
// injected without Redis.
type fakeBus struct {
	handler func(channel string, payload []byte)
}

func (f *fakeBus) Subscribe(ctx context.Context, handler func(channel string, payload []byte), channels ...string) (func(), error) {
	f.handler = handler
	return func() {}, nil
}

func newTestServer(t *testing.T) (*FiberServer, *fakeBus) {
	t.Helper()

	hub := ws.NewHub()
	relay := ws.NewRelay(hub)
	bus := &fakeBus{}
	if err := relay.Start(context.Background(), bus); err != nil {
		t.Fatalf("relay start failed: %v", err)
	}

	server := &FiberServer{
		App:   fiber.New(),
		cfg:   config.Game{HouseEdge: 0.01, MinBet: 10, MaxBet: 1000},
		role:  "relay",
		hub:   hub,
		relay: relay,
	}
	server.RegisterFiberRoutes()
	return server, bus
}

func inject(t *testing.T, bus *fakeBus, channel string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	bus.handler(channel, data)
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		t.Fatalf("could not create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("could not read response body: %v", err)
	}
	var result map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			t.Fatalf("could not unmarshal response: %v", err)
		}
	}
	return resp, result
}

func TestGameStateHandler(t *testing.T) {
	server, bus := newTestServer(t)

	resp, _ := doJSON(t, server.App, "GET", "/api/v1/game/state", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 before first round; got %v", resp.Status)
	}

	inject(t, bus, game.EventRoundNew, game.RoundNewEvent{
		RoundID:        "round-1",
		RoundNumber:    7,
		CommitmentHash: "deadbeef",
	})

	resp, result := doJSON(t, server.App, "GET", "/api/v1/game/state", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status OK; got %v", resp.Status)
	}

	state, ok := result["state"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing state object in response: %v", result)
	}
	if state["phase"] != "betting" {
		t.Errorf("expected phase 'betting'; got %v", state["phase"])
	}
	if state["round_number"] != float64(7) {
		t.Errorf("expected round_number 7; got %v", state["round_number"])
	}
	if _, leaked := state["crash_point"]; leaked {
		t.Error("state response leaked crash_point")
	}
	if _, leaked := state["server_seed"]; leaked {
		t.Error("state response leaked server_seed")
	}
}

func TestVerifyRoundHandler(t *testing.T) {
	server, _ := newTestServer(t)

	crashPoint := fair.DeriveCrashPoint("seed-a", "seed-b", 12, 0.01)

	resp, result := doJSON(t, server.App, "POST", "/api/v1/game/verify", map[string]interface{}{
		"server_seed":  "seed-a",
		"client_seed":  "seed-b",
		"round_number": 12,
		"crash_point":  crashPoint,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status OK; got %v", resp.Status)
	}
	if result["valid"] != true {
		t.Errorf("expected valid=true; got %v", result["valid"])
	}
	if result["expected_crash_point"] != crashPoint {
		t.Errorf("expected_crash_point = %v, want %v", result["expected_crash_point"], crashPoint)
	}

	resp, result = doJSON(t, server.App, "POST", "/api/v1/game/verify", map[string]interface{}{
		"server_seed":  "seed-a",
		"client_seed":  "seed-b",
		"round_number": 12,
		"crash_point":  crashPoint + 5,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status OK; got %v", resp.Status)
	}
	if result["valid"] != false {
		t.Errorf("expected valid=false for wrong crash point; got %v", result["valid"])
	}
}

func TestVerifyRoundHandler_MissingSeeds(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doJSON(t, server.App, "POST", "/api/v1/game/verify", map[string]interface{}{
		"round_number": 1,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing seeds; got %v", resp.Status)
	}
}

func TestWriteHandlersRejectedOnRelay(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doJSON(t, server.App, "POST", "/api/v1/game/bet", map[string]interface{}{
		"user_id": "u1", "amount": 50,
	})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for bet on relay; got %v", resp.Status)
	}

	resp, _ = doJSON(t, server.App, "POST", "/api/v1/game/cashout", map[string]interface{}{
		"user_id": "u1",
	})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for cashout on relay; got %v", resp.Status)
	}
}
