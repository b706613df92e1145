// Package config loads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/example/market-engine/internal/market"
	"github.com/shopspring/decimal"
)

const minSecretLength = 32

// Config holds the marketd settings.
type Config struct {
	HTTPAddr    string `env:"MARKET_HTTP_ADDR" envDefault:":8080"`
	DBDriver    string `env:"MARKET_DB_DRIVER" envDefault:"sqlite"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"market.db"`
	Kafka       Kafka
	JWTSecret   string        `env:"JWT_SECRET,required"`
	TokenExpiry time.Duration `env:"MARKET_TOKEN_EXPIRY" envDefault:"24h"`

	MinPrice        decimal.Decimal `env:"MARKET_MIN_PRICE" envDefault:"1"`
	MinOrderPrice   decimal.Decimal `env:"MARKET_MIN_ORDER_PRICE" envDefault:"1"`
	DepositFraction decimal.Decimal `env:"MARKET_DEPOSIT_FRACTION" envDefault:"0.05"`
	ListingLimit    int             `env:"MARKET_LISTING_LIMIT" envDefault:"10"`
	OrderLimit      int             `env:"MARKET_ORDER_LIMIT" envDefault:"10"`
	DefaultDuration time.Duration   `env:"MARKET_DEFAULT_DURATION" envDefault:"48h"`
	MaxDuration     time.Duration   `env:"MARKET_MAX_DURATION" envDefault:"168h"`
	Retention       time.Duration   `env:"MARKET_RETENTION" envDefault:"24h"`
	EconomyTimeout  time.Duration   `env:"MARKET_ECONOMY_TIMEOUT" envDefault:"3s"`
	SweepInterval   time.Duration   `env:"MARKET_SWEEP_INTERVAL" envDefault:"30s"`
	LiveInterval    time.Duration   `env:"MARKET_LIVE_INTERVAL" envDefault:"10s"`
	HistorySize     int             `env:"MARKET_HISTORY_SIZE" envDefault:"50"`
	InventorySlots  int             `env:"MARKET_INVENTORY_SLOTS" envDefault:"36"`
	// PriceGuide is a MATERIAL:price list, e.g. "DIAMOND:100,IRON_INGOT:4".
	PriceGuide map[string]string `env:"MARKET_PRICE_GUIDE" envSeparator:"," envKeyValSeparator:":"`
}

type Kafka struct {
	Brokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	Topic   string   `env:"KAFKA_TOPIC" envDefault:"market-events"`
}

// Notifier holds the notifier service settings.
type Notifier struct {
	Kafka      Kafka
	GroupID    string `env:"NOTIFIER_GROUP_ID" envDefault:"market-notifier"`
	WebhookURL string `env:"NOTIFIER_WEBHOOK_URL"`
}

// Load parses and validates the marketd settings.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadNotifier parses the notifier settings.
func LoadNotifier() (Notifier, error) {
	var cfg Notifier
	if err := env.Parse(&cfg); err != nil {
		return Notifier{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters long", minSecretLength))
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("MARKET_DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver))
	}
	if c.DepositFraction.IsNegative() || c.DepositFraction.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, errors.New("MARKET_DEPOSIT_FRACTION must be between 0 and 1"))
	}
	if !c.MinPrice.IsPositive() || !c.MinOrderPrice.IsPositive() {
		errs = append(errs, errors.New("minimum prices must be positive"))
	}
	if c.ListingLimit < 1 || c.OrderLimit < 1 {
		errs = append(errs, errors.New("listing and order limits must be at least 1"))
	}
	if c.DefaultDuration <= 0 || c.MaxDuration < c.DefaultDuration {
		errs = append(errs, errors.New("MARKET_MAX_DURATION must be at least MARKET_DEFAULT_DURATION"))
	}
	for name, d := range map[string]time.Duration{
		"MARKET_ECONOMY_TIMEOUT": c.EconomyTimeout,
		"MARKET_SWEEP_INTERVAL":  c.SweepInterval,
		"MARKET_LIVE_INTERVAL":   c.LiveInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if len(c.Kafka.Brokers) == 0 || strings.TrimSpace(c.Kafka.Brokers[0]) == "" {
		errs = append(errs, errors.New("KAFKA_BROKERS is required"))
	}
	return errors.Join(errs...)
}

// Market returns the engine settings.
func (c Config) Market() market.Config {
	return market.Config{
		MinimumPrice:      c.MinPrice,
		MinimumOrderPrice: c.MinOrderPrice,
		DepositFraction:   c.DepositFraction,
		ListingLimit:      c.ListingLimit,
		OrderLimit:        c.OrderLimit,
		DefaultDuration:   c.DefaultDuration,
		MaxDuration:       c.MaxDuration,
		Retention:         c.Retention,
	}
}
