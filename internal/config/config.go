// README: Config loader with env defaults for HTTP, stores, oracles, payment and dispatch settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type DispatchConfig struct {
	// OracleTimeout bounds every distance oracle call made while scoring.
	OracleTimeout time.Duration
	// PaymentTimeout bounds charge and refund calls.
	PaymentTimeout time.Duration
	// MaxClaimRetries is how many claim attempts a match makes before giving up.
	MaxClaimRetries int
	// Parallelism caps concurrent oracle lookups per match.
	Parallelism int
}

type PaymentConfig struct {
	StripeKey           string
	StripePaymentMethod string
	Currency            string
	Seed                int64
	SuccessRate         float64
}

type Config struct {
	HTTP struct {
		Addr string
	}
	DB struct {
		DSN string
	}
	Redis struct {
		Addr string
	}
	Kafka struct {
		Brokers []string
		Topic   string
	}
	Maps struct {
		APIKey string
	}
	Log struct {
		Level       string
		Development bool
	}
	Payment  PaymentConfig
	Dispatch DispatchConfig
}

func Load() (Config, error) {
	var cfg Config
	var errs []error

	cfg.HTTP.Addr = envOrDefault("CAMPUSRIDE_HTTP_ADDR", ":8080")
	cfg.DB.DSN = os.Getenv("CAMPUSRIDE_DB_DSN")
	cfg.Redis.Addr = os.Getenv("CAMPUSRIDE_REDIS_ADDR")
	cfg.Kafka.Brokers = splitAndTrim(os.Getenv("CAMPUSRIDE_KAFKA_BROKERS"))
	cfg.Kafka.Topic = envOrDefault("CAMPUSRIDE_KAFKA_TOPIC", "ride-events")
	cfg.Maps.APIKey = os.Getenv("CAMPUSRIDE_MAPS_API_KEY")
	cfg.Log.Level = strings.ToLower(envOrDefault("CAMPUSRIDE_LOG_LEVEL", "info"))
	cfg.Log.Development = strings.EqualFold(os.Getenv("CAMPUSRIDE_LOG_DEV"), "true")

	cfg.Payment.StripeKey = os.Getenv("CAMPUSRIDE_STRIPE_KEY")
	cfg.Payment.StripePaymentMethod = envOrDefault("CAMPUSRIDE_STRIPE_PAYMENT_METHOD", "pm_card_visa")
	cfg.Payment.Currency = strings.ToLower(envOrDefault("CAMPUSRIDE_CURRENCY", "inr"))
	cfg.Payment.Seed = int64(envOrDefaultInt("CAMPUSRIDE_PAYMENT_SEED", 1, &errs))
	cfg.Payment.SuccessRate = envOrDefaultFloat("CAMPUSRIDE_PAYMENT_SUCCESS_RATE", 0.9, &errs)

	cfg.Dispatch.OracleTimeout = envOrDefaultDuration("CAMPUSRIDE_ORACLE_TIMEOUT", 2*time.Second, &errs)
	cfg.Dispatch.PaymentTimeout = envOrDefaultDuration("CAMPUSRIDE_PAYMENT_TIMEOUT", 5*time.Second, &errs)
	cfg.Dispatch.MaxClaimRetries = envOrDefaultInt("CAMPUSRIDE_MATCH_RETRIES", 3, &errs)
	cfg.Dispatch.Parallelism = envOrDefaultInt("CAMPUSRIDE_MATCH_PARALLELISM", 8, &errs)

	if cfg.Dispatch.MaxClaimRetries <= 0 {
		errs = append(errs, errors.New("CAMPUSRIDE_MATCH_RETRIES must be > 0"))
	}
	if cfg.Dispatch.Parallelism <= 0 {
		errs = append(errs, errors.New("CAMPUSRIDE_MATCH_PARALLELISM must be > 0"))
	}
	if cfg.Payment.SuccessRate < 0 || cfg.Payment.SuccessRate > 1 {
		errs = append(errs, errors.New("CAMPUSRIDE_PAYMENT_SUCCESS_RATE must be within [0,1]"))
	}
	return cfg, errors.Join(errs...)
}

// BenchConfig drives cmd/bench. Command-line flags override these values.
type BenchConfig struct {
	BaseURL        string
	DSN            string
	RedisAddr      string
	MigrationPath  string
	ApplyMigration bool
	Strict         bool
	Timeout        time.Duration
	Concurrency    int
	Duration       time.Duration
}

func LoadBench() (BenchConfig, error) {
	var cfg BenchConfig
	var errs []error

	cfg.BaseURL = strings.TrimRight(envOrDefault("CAMPUSRIDE_BENCH_BASE_URL", "http://localhost:8080"), "/")
	cfg.DSN = os.Getenv("CAMPUSRIDE_DB_DSN")
	cfg.RedisAddr = os.Getenv("CAMPUSRIDE_REDIS_ADDR")
	cfg.MigrationPath = envOrDefault("CAMPUSRIDE_BENCH_MIGRATION", "migrations/0001_init.sql")
	cfg.ApplyMigration = envOrDefaultBool("CAMPUSRIDE_BENCH_APPLY_MIGRATION", false, &errs)
	cfg.Strict = envOrDefaultBool("CAMPUSRIDE_BENCH_STRICT", false, &errs)
	cfg.Timeout = envOrDefaultDuration("CAMPUSRIDE_BENCH_TIMEOUT", 60*time.Second, &errs)
	cfg.Concurrency = envOrDefaultInt("CAMPUSRIDE_BENCH_CONCURRENCY", 20, &errs)
	cfg.Duration = envOrDefaultDuration("CAMPUSRIDE_BENCH_DURATION", 10*time.Second, &errs)

	if cfg.Concurrency <= 0 {
		errs = append(errs, errors.New("CAMPUSRIDE_BENCH_CONCURRENCY must be > 0"))
	}
	return cfg, errors.Join(errs...)
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int, errs *[]error) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return def
		}
		return n
	}
	return def
}

func envOrDefaultBool(key string, def bool, errs *[]error) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return def
		}
		return b
	}
	return def
}

func envOrDefaultFloat(key string, def float64, errs *[]error) float64 {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return def
		}
		return n
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration, errs *[]error) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return def
		}
		return d
	}
	return def
}

func splitAndTrim(v string) []string {
	if v == "" {
		return nil
	}
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
