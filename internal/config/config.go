package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port int
	Host string

	// Offer source
	Source        string // "fixture", "sqlite" or "remote"
	FixturePath   string // "" means the embedded fixture
	DatabasePath  string
	RemoteURL     string
	SourceLatency time.Duration

	// Feed
	PageSize  int
	VotesDir  string // directory holding the durable vote slot
	Ephemeral bool   // keep votes in memory only

	// Rate limiting
	VoteRateLimit   int // per window
	OrderRateLimit  int // per window
	RateLimitWindow time.Duration

	// Logging
	LogLevel string
}

func Load() *Config {
	// A missing .env file is fine; the environment wins either way.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: skipping .env: %v", err)
	}

	return &Config{
		Port:            getEnvInt("PORT", 8080),
		Host:            getEnv("HOST", "0.0.0.0"),
		Source:          getEnv("SOURCE", "fixture"),
		FixturePath:     getEnv("FIXTURE_PATH", ""),
		DatabasePath:    getEnv("DATABASE_PATH", "swapgrid.db"),
		RemoteURL:       getEnv("REMOTE_URL", "http://localhost:8080"),
		SourceLatency:   getEnvDuration("SOURCE_LATENCY", 300*time.Millisecond),
		PageSize:        getEnvInt("PAGE_SIZE", 10),
		VotesDir:        getEnv("VOTES_DIR", "."),
		Ephemeral:       getEnvBool("EPHEMERAL_VOTES", false),
		VoteRateLimit:   getEnvInt("VOTE_RATE_LIMIT", 120),
		OrderRateLimit:  getEnvInt("ORDER_RATE_LIMIT", 20),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Hour),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
