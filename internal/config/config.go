package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/i474232898/weather-etl/internal/common"
)

type AppConfig struct {
	// Location to track.
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`

	// Target store.
	DatabaseURL     string `validate:"required"`
	Table           string `validate:"required"`
	UpsertMonotonic bool

	// Upstream API and retry budget.
	OpenMeteoURL   string        `validate:"required,url"`
	HTTPTimeout    time.Duration `validate:"gt=0"`
	MaxAttempts    int           `validate:"gte=1,lte=10"`
	BackoffInitial time.Duration `validate:"gt=0"`
	BackoffMax     time.Duration `validate:"gte=0"`
	RunTimeout     time.Duration `validate:"gt=0"`

	// Schedule used in serve mode. ScheduleCron wins when set.
	ScheduleInterval time.Duration `validate:"gte=1m"`
	ScheduleCron     string

	Port string `validate:"required,numeric"`

	LogLevel      string `validate:"oneof=trace debug info warn warning error"`
	LogFormat     string `validate:"oneof=json text"`
	LogFile       string
	LogMaxSizeMB  int `validate:"gte=0"`
	LogMaxBackups int `validate:"gte=0"`
	LogMaxAgeDays int `validate:"gte=0"`
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults. The
// caller is expected to have loaded any .env file already.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	if cfg.Latitude, err = requireFloat("WEATHER_LATITUDE"); err != nil {
		return nil, err
	}
	if cfg.Longitude, err = requireFloat("WEATHER_LONGITUDE"); err != nil {
		return nil, err
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	// Folded the way Postgres folds unquoted identifiers.
	cfg.Table = strings.ToLower(strings.TrimSpace(getenvDefault("WEATHER_TABLE", "weather_metrics")))
	cfg.UpsertMonotonic = parseBool(getenvDefault("UPSERT_MONOTONIC", "false"))

	cfg.OpenMeteoURL = getenvDefault("OPEN_METEO_BASE_URL", "https://api.open-meteo.com/v1/forecast")
	cfg.MaxAttempts = getenvInt("FETCH_MAX_ATTEMPTS", 3)

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"HTTP_TIMEOUT", "10s", &cfg.HTTPTimeout},
		{"FETCH_BACKOFF_INITIAL", "1s", &cfg.BackoffInitial},
		{"FETCH_BACKOFF_MAX", "30s", &cfg.BackoffMax},
		{"RUN_TIMEOUT", "2m", &cfg.RunTimeout},
		{"SCHEDULE_INTERVAL", "24h", &cfg.ScheduleInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getenvDefault(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}
	cfg.ScheduleCron = strings.TrimSpace(os.Getenv("SCHEDULE_CRON"))

	cfg.Port = getenvDefault("PORT", "8080")

	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "json"))
	cfg.LogFile = strings.TrimSpace(os.Getenv("LOG_FILE"))
	cfg.LogMaxSizeMB = getenvInt("LOG_MAX_SIZE_MB", 50)
	cfg.LogMaxBackups = getenvInt("LOG_MAX_BACKUPS", 5)
	cfg.LogMaxAgeDays = getenvInt("LOG_MAX_AGE_DAYS", 14)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if !common.IsIdentifier(cfg.Table) {
		return nil, fmt.Errorf("invalid WEATHER_TABLE %q: must be a plain SQL identifier", cfg.Table)
	}
	return cfg, nil
}

func requireFloat(key string) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, errors.Unwrap(err))
	}
	return f, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func parseBool(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
