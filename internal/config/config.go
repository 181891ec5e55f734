package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port          string
	AllowedOrigin string

	RemoteBaseURL  string
	SessionToken   string
	TimeoutSeconds int

	TenantID   string
	BranchID   string
	TerminalID string

	DataPath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ProbeIntervalSeconds int
	HoldSeconds          int

	DrainIntervalSeconds  int
	MaxAttempts           int
	CatalogRefreshMinutes int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                  getEnv("PORT", "7070"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		RemoteBaseURL:         strings.TrimRight(os.Getenv("REMOTE_BASE_URL"), "/"),
		SessionToken:          strings.TrimSpace(os.Getenv("SESSION_TOKEN")),
		TimeoutSeconds:        getEnvInt("REQUEST_TIMEOUT_SECONDS", 10),
		TenantID:              getEnv("TENANT_ID", "default"),
		BranchID:              getEnv("BRANCH_ID", "main"),
		TerminalID:            getEnv("TERMINAL_ID", "terminal-1"),
		DataPath:              os.Getenv("DATA_PATH"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		ProbeIntervalSeconds:  getEnvInt("PROBE_INTERVAL_SECONDS", 5),
		HoldSeconds:           getEnvInt("CONNECTIVITY_HOLD_SECONDS", 10),
		DrainIntervalSeconds:  getEnvInt("DRAIN_INTERVAL_SECONDS", 30),
		MaxAttempts:           getEnvInt("MAX_ATTEMPTS", 5),
		CatalogRefreshMinutes: getEnvInt("CATALOG_REFRESH_MINUTES", 15),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, err := strconv.Atoi(os.Getenv(key))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}
