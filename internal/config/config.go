package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// DB_DRIVER: mysql | postgres | sqlite
	DBDriver string `env:"DB_DRIVER" envDefault:"mysql"`
	// DSN demo:
	// <user>:<password>@tcp(127.0.0.1:3306)/chatform?charset=utf8mb4&parseTime=true&loc=Local
	DBDSN string `env:"DB_DSN"`

	JWTSecret string `env:"JWT_SECRET"`

	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	// rabbitMQ
	RabbitURL         string `env:"RABBIT_URL"`
	RabbitQueue       string `env:"RABBIT_QUEUE" envDefault:"message_created"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY" envDefault:"2"`

	// worker /metrics listener
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9091"`

	// AI provider
	AIProvider        string        `env:"AI_PROVIDER" envDefault:"gemini"`
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" envDefault:"25s"`
	GeminiAPIKey      string        `env:"GEMINI_API_KEY"`
	GoogleAPIKey      string        `env:"GOOGLE_API_KEY"`
	GeminiModel       string        `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash-latest"`
	GeminiBaseURL     string        `env:"GEMINI_BASE_URL"`
	OllamaBaseURL     string        `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	OllamaModel       string        `env:"OLLAMA_MODEL" envDefault:"llama3:latest"`
	OpenRouterBaseURL string        `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	OpenRouterAPIKey  string        `env:"OPENROUTER_API_KEY"`
	OpenRouterModel   string        `env:"OPENROUTER_MODEL" envDefault:"openrouter/auto"`
	OpenRouterSiteURL string        `env:"OPENROUTER_SITE_URL"`
	OpenRouterAppName string        `env:"OPENROUTER_APP_NAME"`

	// pipeline limits
	MaxMessageLength  int `env:"MAX_MESSAGE_LENGTH" envDefault:"1000"`
	MaxResponseLength int `env:"MAX_RESPONSE_LENGTH" envDefault:"10000"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"1"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"5"`

	// stale record sweep (worker)
	StaleAfter     time.Duration `env:"STALE_AFTER" envDefault:"5m"`
	StaleSweepSpec string        `env:"STALE_SWEEP_SPEC" envDefault:"@every 1m"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"true"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.AIProvider = strings.ToLower(strings.TrimSpace(c.AIProvider))

	// same lookup order the Gemini SDK uses on its own
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		c.GeminiAPIKey = strings.TrimSpace(c.GoogleAPIKey)
	}

	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = 2
	}
	if c.WorkerConcurrency > 50 {
		c.WorkerConcurrency = 50
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 25 * time.Second
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = 1000
	}
	if c.MaxResponseLength <= 0 {
		c.MaxResponseLength = 10000
	}
}

// ValidateAPI reports settings the HTTP server cannot start without.
func (c Config) ValidateAPI() error {
	return requireSettings(map[string]string{
		"DB_DSN":     c.DBDSN,
		"JWT_SECRET": c.JWTSecret,
		"RABBIT_URL": c.RabbitURL,
	})
}

// ValidateWorker reports settings the queue worker cannot start without.
func (c Config) ValidateWorker() error {
	return requireSettings(map[string]string{
		"DB_DSN":     c.DBDSN,
		"RABBIT_URL": c.RabbitURL,
	})
}

func requireSettings(settings map[string]string) error {
	var missing []string
	for k, v := range settings {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
}
