package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// Game holds the tunables consumed by the round scheduler. All durations come
// from millisecond env vars so they match the values clients animate against.
type Game struct {
	BettingDuration time.Duration
	TickInterval    time.Duration
	CooldownDelay   time.Duration
	RetryDelay      time.Duration
	HouseEdge       float64
	MinBet          float64
	MaxBet          float64
}

func LoadGame() Game {
	return Game{
		BettingDuration: time.Duration(getEnvAsInt("BETTING_DURATION_MS", 5000)) * time.Millisecond,
		TickInterval:    time.Duration(getEnvAsInt("TICK_INTERVAL_MS", 100)) * time.Millisecond,
		CooldownDelay:   time.Duration(getEnvAsInt("COOLDOWN_MS", 3000)) * time.Millisecond,
		RetryDelay:      time.Duration(getEnvAsInt("RETRY_DELAY_MS", 5000)) * time.Millisecond,
		HouseEdge:       getEnvAsFloat("HOUSE_EDGE", 0.01),
		MinBet:          getEnvAsFloat("MIN_BET", 10),
		MaxBet:          getEnvAsFloat("MAX_BET", 100000),
	}
}

// Role selects whether this process runs the scheduler ("leader") or acts as
// a pure relay that mirrors bus events to its own clients ("relay"). Running
// two leaders against the same stores corrupts round numbering.
func Role() string {
	return getEnv("GAME_ROLE", "leader")
}

func Port() string {
	return getEnv("PORT", "8080")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}
