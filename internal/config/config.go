package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// PlaceholderAPIKey is the template value shipped in example .env files; it
// counts as no key at all.
const PlaceholderAPIKey = "your_api_key_here"

// Config holds application configuration.
type Config struct {
	HTTPAddress  string
	GoogleAPIKey string
	GeminiModel  string
	MenuPrompt   string
	DatabaseURL  string
	AMQPURL      string
	RelayURL     string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":3000"
	}

	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" || apiKey == PlaceholderAPIKey {
		log.Println("Warning: GOOGLE_API_KEY not set - voice ordering disabled, manual cart only")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Println("Warning: DATABASE_URL not set - completed sales will not be persisted")
	}

	relayURL := os.Getenv("RELAY_URL")
	if relayURL == "" {
		relayURL = "ws://localhost" + addr + "/ws"
	}

	log.Printf("config: HTTP_ADDRESS=%s", addr)
	return Config{
		HTTPAddress:  addr,
		GoogleAPIKey: apiKey,
		GeminiModel:  os.Getenv("GEMINI_MODEL"),
		MenuPrompt:   os.Getenv("MENU_PROMPT"),
		DatabaseURL:  dbURL,
		AMQPURL:      os.Getenv("AMQP_URL"),
		RelayURL:     relayURL,
	}
}

// ModelEnabled reports whether a usable model credential is configured.
func (c Config) ModelEnabled() bool {
	return c.GoogleAPIKey != "" && c.GoogleAPIKey != PlaceholderAPIKey
}
