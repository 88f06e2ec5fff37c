package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type Config struct {
	Port string `env:"PORT" envDefault:"3001"`

	// RedisURL falls back to UpstashRedisURL. Both empty means in-memory only.
	RedisURL        string `env:"REDIS_URL"`
	UpstashRedisURL string `env:"UPSTASH_REDIS_URL"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	DatabaseURL  string `env:"DATABASE_URL"`

	// SessionSecret signs identity cookies. Unset means a random per-process
	// secret, so cookies do not survive a restart.
	SessionSecret string   `env:"SESSION_SECRET"`
	CookieSecure  bool     `env:"COOKIE_SECURE" envDefault:"false"`
	AllowOrigins  []string `env:"ALLOW_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	OTELEndpoint string `env:"OTEL_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"party-rounds"`

	RevealDelaySeconds        int `env:"REVEAL_DELAY_SECONDS" envDefault:"5"`
	EmojiRevealDelaySeconds   int `env:"EMOJI_REVEAL_DELAY_SECONDS" envDefault:"8"`
	CompletedRetentionSeconds int `env:"COMPLETED_RETENTION_SECONDS" envDefault:"300"`

	DBMaxOpenConns           int `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns           int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeSeconds int `env:"DB_CONN_MAX_LIFETIME_SECONDS" envDefault:"300"`
}

func Default() Config {
	return Config{
		Port:                      "3001",
		SessionSecret:             randomSecret(),
		AllowOrigins:              []string{"http://localhost:3000"},
		ServiceName:               "party-rounds",
		RevealDelaySeconds:        5,
		EmojiRevealDelaySeconds:   8,
		CompletedRetentionSeconds: 300,
		DBMaxOpenConns:            10,
		DBMaxIdleConns:            10,
		DBConnMaxLifetimeSeconds:  300,
	}
}

// Load parses the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.SessionSecret == "" {
		log.Printf("SESSION_SECRET not set; using a random secret for this process")
		cfg.SessionSecret = randomSecret()
	}
	return cfg, nil
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("read random secret: %v", err))
	}
	return hex.EncodeToString(buf)
}

// StoreURL is the Redis connection string, or "" for in-memory storage.
func (c Config) StoreURL() string {
	if c.RedisURL != "" {
		return c.RedisURL
	}
	return c.UpstashRedisURL
}

func (c Config) RevealDelay() time.Duration {
	return time.Duration(c.RevealDelaySeconds) * time.Second
}

func (c Config) StoryRevealDelay() time.Duration {
	return time.Duration(c.EmojiRevealDelaySeconds) * time.Second
}

func (c Config) Retention() time.Duration {
	return time.Duration(c.CompletedRetentionSeconds) * time.Second
}
