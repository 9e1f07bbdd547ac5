package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/text/currency"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0" validate:"min=0"`
	AuditStream   string `envconfig:"AUDIT_STREAM" default:"bartender:audit"`

	AuthSecret string `envconfig:"AUTH_SECRET"`
	ManagerPIN string `envconfig:"MANAGER_PIN"`

	CloseHour                 int                  `envconfig:"CLOSE_HOUR" default:"6" validate:"min=0,max=23"`
	ConsignmentExpirationDays int                  `envconfig:"CONSIGNMENT_EXPIRATION_DAYS" default:"7" validate:"min=1,max=30"`
	Currency                  string               `envconfig:"CURRENCY" default:"XOF"`
	OperatingMode             domain.OperatingMode `envconfig:"OPERATING_MODE" default:"full" validate:"oneof=full simplified"`
	Timezone                  string               `envconfig:"TIMEZONE" default:"UTC"`

	StatsTTL         time.Duration `envconfig:"STATS_TTL" default:"20s" validate:"gt=0"`
	LowStockDefault  int           `envconfig:"LOW_STOCK_THRESHOLD" default:"10" validate:"min=0"`
	RequestsPerMin   int           `envconfig:"REQUESTS_PER_MINUTE" default:"240" validate:"gt=0"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment   bool          `envconfig:"LOG_DEVELOPMENT" default:"false"`
	Production       bool          `envconfig:"PRODUCTION" default:"false"`
	ShutdownDeadline time.Duration `envconfig:"SHUTDOWN_DEADLINE" default:"10s"`

	location *time.Location
}

var validate = validator.New()

// Load reads a .env file when present, then the process environment.
// Secrets have no defaults. Out-of-range venue settings fail with
// ErrConfiguration.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, apperror.NewConfiguration("read environment").WithCause(err)
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.ManagerPIN = strings.TrimSpace(cfg.ManagerPIN)
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))

	if err := validate.Struct(cfg); err != nil {
		return Config{}, apperror.NewConfiguration("invalid venue settings").WithCause(err)
	}
	if _, err := currency.ParseISO(cfg.Currency); err != nil {
		return Config{}, apperror.Newf(apperror.ErrConfiguration, "unknown currency %q", cfg.Currency).WithCause(err)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, apperror.Newf(apperror.ErrConfiguration, "unknown timezone %q", cfg.Timezone).WithCause(err)
	}
	cfg.location = loc
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c Config) VenueSettings() domain.VenueSettings {
	return domain.VenueSettings{
		CloseHour:                 c.CloseHour,
		ConsignmentExpirationDays: c.ConsignmentExpirationDays,
		Currency:                  c.Currency,
		OperatingMode:             c.OperatingMode,
		Location:                  c.Location(),
	}
}
