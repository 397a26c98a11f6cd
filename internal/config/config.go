package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/Freeeeeet/tutor_booking/internal/policy"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Environment     string        `env:"ENV" envDefault:"development"`
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	Storage         string        `env:"STORAGE" envDefault:"postgres"`
	DBDSN           string        `env:"DB_DSN"`
	DemoSeed        bool          `env:"DEMO_SEED" envDefault:"true"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	JWTSecret       string        `env:"JWT_SECRET"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:","`

	Timezone            string        `env:"TIMEZONE" envDefault:"UTC"`
	MinLeadTime         time.Duration `env:"MIN_LEAD_TIME" envDefault:"24h"`
	SlotGranularity     time.Duration `env:"SLOT_GRANULARITY" envDefault:"30m"`
	MaxBookingDuration  time.Duration `env:"MAX_BOOKING_DURATION" envDefault:"4h"`
	LateCancelCutoff    time.Duration `env:"LATE_CANCEL_CUTOFF" envDefault:"12h"`
	LateCancelThreshold int           `env:"LATE_CANCEL_THRESHOLD" envDefault:"2"`
	LateCancelWindow    time.Duration `env:"LATE_CANCEL_WINDOW" envDefault:"0s"`
	PenaltyDuration     time.Duration `env:"PENALTY_DURATION" envDefault:"168h"`
	RefundClaimTTL      time.Duration `env:"REFUND_CLAIM_TTL" envDefault:"5m"`
	ReconcileBatch      int           `env:"RECONCILE_BATCH" envDefault:"100"`
	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL" envDefault:"0s"`

	GatewayURL     string        `env:"GATEWAY_URL"`
	GatewayAPIKey  string        `env:"GATEWAY_API_KEY"`
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`

	TelegramToken string  `env:"TELEGRAM_TOKEN"`
	RabbitMQURL   string  `env:"RABBITMQ_URL"`
	RabbitMQQueue string  `env:"RABBITMQ_QUEUE" envDefault:"booking_notifications"`
	NotifyBuffer  int     `env:"NOTIFY_BUFFER" envDefault:"256"`
	NotifyWorkers int     `env:"NOTIFY_WORKERS" envDefault:"2"`
	NotifyRate    float64 `env:"NOTIFY_RATE" envDefault:"20"`

	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	location *time.Location
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return Parse()
}

// Parse reads the configuration from the process environment only
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	switch c.Storage {
	case StoragePostgres:
		if c.DBDSN == "" {
			errs = append(errs, errors.New("DB_DSN is required for postgres storage"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}
	c.location = loc

	if c.SlotGranularity < 0 || c.MinLeadTime < 0 || c.LateCancelCutoff < 0 || c.LateCancelWindow < 0 {
		errs = append(errs, errors.New("policy durations must not be negative"))
	}
	if c.SlotGranularity > 0 && (c.SlotGranularity%time.Minute != 0 || (24*time.Hour)%c.SlotGranularity != 0) {
		errs = append(errs, errors.New("SLOT_GRANULARITY must be a whole number of minutes dividing a day"))
	}
	if c.LateCancelThreshold < 0 {
		errs = append(errs, errors.New("LATE_CANCEL_THRESHOLD must not be negative"))
	}
	if c.PenaltyDuration <= 0 {
		errs = append(errs, errors.New("PENALTY_DURATION must be positive"))
	}
	if c.ReconcileInterval < 0 {
		errs = append(errs, errors.New("RECONCILE_INTERVAL must not be negative"))
	}
	if c.ReconcileBatch <= 0 {
		errs = append(errs, errors.New("RECONCILE_BATCH must be positive"))
	}
	if c.RefundClaimTTL <= 0 {
		errs = append(errs, errors.New("REFUND_CLAIM_TTL must be positive"))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether ENV=production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Location returns the timezone used for slot alignment and weekly windows
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// Policy returns the booking policy parameters
func (c *Config) Policy() policy.Params {
	return policy.Params{
		Location:        c.Location(),
		MinLeadTime:     c.MinLeadTime,
		Granularity:     c.SlotGranularity,
		MaxDuration:     c.MaxBookingDuration,
		LateCutoff:      c.LateCancelCutoff,
		LateThreshold:   c.LateCancelThreshold,
		LateWindow:      c.LateCancelWindow,
		PenaltyDuration: c.PenaltyDuration,
		RefundClaimTTL:  c.RefundClaimTTL,
	}
}
