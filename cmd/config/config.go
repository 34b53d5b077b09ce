package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds process configuration. Values come from the environment,
// optionally seeded from a .env file.
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string
	DBDriver    string
	DBMaxConns  int
	Store       string

	RedisAddr     string
	RedisPassword string
	PresenceTTL   time.Duration

	SlotTimezone string
	Location     *time.Location

	SecretKey   string
	CORSOrigins []string

	BookingRateRPS   float64
	BookingRateBurst int
	WSSendBuffer     int
	TrustProxy       bool
}

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	DriverPgx = "pgx"
	DriverPq  = "postgres"
)

// Load reads configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", DriverPgx)
	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("STORE", StorePostgres)
	v.SetDefault("PRESENCE_TTL", "2m")
	v.SetDefault("SLOT_TIMEZONE", "Local")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("BOOKING_RATE_RPS", 5)
	v.SetDefault("BOOKING_RATE_BURST", 10)
	v.SetDefault("WS_SEND_BUFFER", 256)
	v.SetDefault("TRUST_PROXY", false)

	cfg := &Config{
		Port:             v.GetString("SERVER_PORT"),
		Env:              v.GetString("ENV"),
		LogLevel:         strings.ToLower(v.GetString("LOG_LEVEL")),
		DatabaseURL:      v.GetString("DB_URL"),
		DBDriver:         strings.ToLower(v.GetString("DB_DRIVER")),
		DBMaxConns:       v.GetInt("DB_MAX_CONNS"),
		Store:            strings.ToLower(v.GetString("STORE")),
		RedisAddr:        v.GetString("REDIS_ADDR"),
		RedisPassword:    v.GetString("REDIS_PASSWORD"),
		PresenceTTL:      v.GetDuration("PRESENCE_TTL"),
		SlotTimezone:     v.GetString("SLOT_TIMEZONE"),
		SecretKey:        v.GetString("SECRET_KEY"),
		BookingRateRPS:   v.GetFloat64("BOOKING_RATE_RPS"),
		BookingRateBurst: v.GetInt("BOOKING_RATE_BURST"),
		WSSendBuffer:     v.GetInt("WS_SEND_BUFFER"),
		TrustProxy:       v.GetBool("TRUST_PROXY"),
	}

	for _, o := range strings.Split(v.GetString("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	loc, err := time.LoadLocation(cfg.SlotTimezone)
	if err != nil {
		return nil, fmt.Errorf("SLOT_TIMEZONE %q: %w", cfg.SlotTimezone, err)
	}
	cfg.Location = loc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPgx, DriverPq:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPgx, DriverPq, c.DBDriver)
	}
	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if c.WSSendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.WSSendBuffer)
	}
	if c.BookingRateRPS <= 0 || c.BookingRateBurst <= 0 {
		return fmt.Errorf("booking rate limit must be positive")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// RequireDatabase reports an error when the postgres store is selected
// without a DSN.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	return nil
}
