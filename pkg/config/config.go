package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultPort is the default HTTP listen port
	DefaultPort = "8080"

	// DefaultDatabasePath is the default sqlite database file
	DefaultDatabasePath = "dca.db"

	// DefaultRouterAddress is the exchange router the engine binds to when
	// no provisioning value is supplied
	DefaultRouterAddress = "0x3bFA4769FB09eefC5a80d6E87c3B9C650f7Ae48E"

	// DefaultSlippageBps is the default slippage tolerance in basis points
	DefaultSlippageBps = 100

	// DefaultTickIntervalSeconds is the default scheduler period
	DefaultTickIntervalSeconds = 30

	// DefaultSwapTimeoutSeconds bounds each swap attempt
	DefaultSwapTimeoutSeconds = 10

	// DefaultWorkerCount bounds concurrent executions within a tick
	DefaultWorkerCount = 5

	// DefaultJWTSecret is the development signing key
	DefaultJWTSecret = "dca-secret-key"
)

// Config holds the runtime configuration of the engine. RouterAddress is the
// one provisioning-time parameter: consumed once at construction and stored
// as part of the engine's identity.
type Config struct {
	Port          string
	DatabasePath  string
	RouterAddress string
	SlippageBps   int64
	TickInterval  time.Duration
	SwapTimeout   time.Duration
	WorkerCount   int
	JWTSecret     string
}

// Load reads configuration from the environment, with an optional .env file.
func Load() (*Config, error) {
	// A missing .env file is fine; real environments set variables directly
	_ = godotenv.Load()

	slippage, err := getEnvInt64("SLIPPAGE_BPS", DefaultSlippageBps)
	if err != nil {
		return nil, err
	}
	if slippage < 0 || slippage >= 10000 {
		return nil, fmt.Errorf("SLIPPAGE_BPS out of range: %d", slippage)
	}

	tickSeconds, err := getEnvInt64("TICK_INTERVAL_SECONDS", DefaultTickIntervalSeconds)
	if err != nil {
		return nil, err
	}

	swapSeconds, err := getEnvInt64("SWAP_TIMEOUT_SECONDS", DefaultSwapTimeoutSeconds)
	if err != nil {
		return nil, err
	}

	workers, err := getEnvInt64("WORKER_COUNT", DefaultWorkerCount)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:          getEnv("PORT", DefaultPort),
		DatabasePath:  getEnv("DATABASE_PATH", DefaultDatabasePath),
		RouterAddress: getEnv("ROUTER_ADDRESS", DefaultRouterAddress),
		SlippageBps:   slippage,
		TickInterval:  time.Duration(tickSeconds) * time.Second,
		SwapTimeout:   time.Duration(swapSeconds) * time.Second,
		WorkerCount:   int(workers),
		JWTSecret:     getEnv("JWT_SECRET", DefaultJWTSecret),
	}, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
