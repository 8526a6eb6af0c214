// Package config loads process bootstrap values and secrets from the
// environment. Trading behavior does not live here: everything tunable at
// runtime is in the settings store.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the process-level configuration loaded once at startup.
type Config struct {
	// Exchange credentials. Empty keys are fine in simulation mode.
	BinanceAPIKey    string
	BinanceSecretKey string
	BinanceTestnet   bool

	// LLM credentials.
	GeminiAPIKey string

	// Notifier credentials.
	TelegramToken  string
	TelegramChatID int64

	// Service
	APIServerPort int
	DBPath        string
	LogLevel      string
	LogFile       string
}

// Load reads .env (best effort) and the environment. Absent optional values
// fall back to defaults; secrets are never required here, live-trading
// checks happen where the secret is used.
func Load() *Config {
	// Missing .env is not an error: deployments may inject real env vars.
	godotenv.Load()

	cfg := &Config{
		APIServerPort: 8080,
		DBPath:        "tradepulse.db",
		LogLevel:      "info",
	}

	cfg.BinanceAPIKey = getenv("BINANCE_API_KEY")
	cfg.BinanceSecretKey = getenv("BINANCE_SECRET_KEY")
	cfg.BinanceTestnet = strings.ToLower(getenv("BINANCE_TESTNET")) == "true"

	cfg.GeminiAPIKey = getenv("GEMINI_API_KEY")

	cfg.TelegramToken = getenv("TELEGRAM_BOT_TOKEN")
	if v := getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramChatID = id
		}
	}

	if v := getenv("API_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.APIServerPort = port
		}
	}
	if v := getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	cfg.LogFile = getenv("LOG_FILE")

	return cfg
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
