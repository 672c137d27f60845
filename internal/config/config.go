package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

var ErrMissingSigningKey = errors.New("JWT_KEY is required")

type Config struct {
	ServiceName string `env:"SERVICE_NAME" env-default:"cleanshop"`
	ServerPort  int    `env:"SERVER_PORT"  env-default:"8080"`
	LogLevel    string `env:"LOG_LEVEL"    env-default:"info"`
	DatabaseURL string `env:"DATABASE_URL" env-required:"true"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	SecureCookies   bool          `env:"SECURE_COOKIES"   env-default:"false"`

	JWT JWT `env-prefix:"JWT_"`

	// EventsBroker selects the publisher: kafka, rabbitmq or none.
	EventsBroker string   `env:"EVENTS_BROKER" env-default:"none"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" env-separator:","`
	RabbitURL    string   `env:"RABBITMQ_URL"`

	Elastic Elastic `env-prefix:"ES_"`

	RateLimit RateLimit `env-prefix:"RATE_LIMIT_"`
}

type JWT struct {
	Key               string `env:"KEY"`
	Issuer            string `env:"ISSUER"              env-default:"cleanshop"`
	Audience          string `env:"AUDIENCE"            env-default:"cleanshop-clients"`
	DurationInMinutes int    `env:"DURATION_IN_MINUTES" env-default:"15"`
}

func (j JWT) TTL() time.Duration { return time.Duration(j.DurationInMinutes) * time.Minute }

type Elastic struct {
	URL      string `env:"URL"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	Index    string `env:"INDEX" env-default:"products"`
}

type RateLimit struct {
	RedisAddr     string  `env:"REDIS_ADDR"`
	RedisPassword string  `env:"REDIS_PASSWORD"`
	Capacity      int     `env:"CAPACITY"        env-default:"20"`
	RefillPerSec  float64 `env:"REFILL_PER_SEC"  env-default:"0.5"`
}

// Load reads optional .env files, then the process environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := godotenv.Load(envFiles...); err != nil {
		log.Printf("Notice: .env file not loaded: %v. Using system environment variables", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	cfg.JWT.Key = strings.TrimSpace(cfg.JWT.Key)
	if cfg.JWT.Key == "" {
		return nil, ErrMissingSigningKey
	}
	if cfg.JWT.DurationInMinutes <= 0 {
		return nil, fmt.Errorf("JWT_DURATION_IN_MINUTES must be positive, got %d", cfg.JWT.DurationInMinutes)
	}

	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)
	cfg.EventsBroker = strings.ToLower(strings.TrimSpace(cfg.EventsBroker))
	switch cfg.EventsBroker {
	case "none", "":
		cfg.EventsBroker = "none"
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("EVENTS_BROKER=kafka needs KAFKA_BROKERS")
		}
	case "rabbitmq":
		if cfg.RabbitURL == "" {
			return nil, errors.New("EVENTS_BROKER=rabbitmq needs RABBITMQ_URL")
		}
	default:
		return nil, fmt.Errorf("unknown EVENTS_BROKER %q", cfg.EventsBroker)
	}

	return &cfg, nil
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
