package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Symbols is the ordered set of symbols to create books for. No book
	// exists for a symbol outside this set.
	Symbols []string

	// ListenAddr is the binary order-entry listener address.
	ListenAddr string

	// FeedAddr is the WebSocket market-data listener address.
	FeedAddr string

	LogLevel string
}

func Default() Config {
	return Config{
		Symbols:    []string{"AAPL", "MSFT", "NVDA"},
		ListenAddr: "0.0.0.0:9001",
		FeedAddr:   "0.0.0.0:9002",
		LogLevel:   "info",
	}
}

// Load reads configuration from the environment, optionally seeded from a
// .env file. Priority: environment > .env file > defaults.
func Load(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if symbols := os.Getenv("EXCHANGE_SYMBOLS"); symbols != "" {
		cfg.Symbols = cfg.Symbols[:0]
		for _, symbol := range strings.Split(symbols, ",") {
			if symbol = strings.TrimSpace(symbol); symbol != "" {
				cfg.Symbols = append(cfg.Symbols, symbol)
			}
		}
	}
	if addr := os.Getenv("EXCHANGE_LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if addr := os.Getenv("EXCHANGE_FEED_ADDR"); addr != "" {
		cfg.FeedAddr = addr
	}
	if level := os.Getenv("EXCHANGE_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	return cfg
}
