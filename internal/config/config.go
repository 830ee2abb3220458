package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`

	NBPBaseURL     string   `env:"NBP_BASE_URL" envDefault:"https://api.nbp.pl"`
	PushGatewayURL string   `env:"PUSH_GATEWAY_URL"`
	PushAPIKey     string   `env:"PUSH_API_KEY"`
	KafkaBrokers   []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic     string   `env:"KAFKA_TOPIC" envDefault:"ledger.settled"`

	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`

	RateCacheTTLS    int   `env:"RATE_CACHE_TTL_S" envDefault:"3600"`
	RateArchiveLimit int   `env:"RATE_ARCHIVE_LIMIT" envDefault:"30"`
	MinDepositPLN    int64 `env:"MIN_DEPOSIT_PLN" envDefault:"1000"`
	InitialGrantPLN  int64 `env:"INITIAL_GRANT_PLN" envDefault:"10000"`
	TxMaxRetries     int   `env:"TX_MAX_RETRIES" envDefault:"5"`
	NotifyQueueSize  int   `env:"NOTIFY_QUEUE_SIZE" envDefault:"256"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
