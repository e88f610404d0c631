package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

// Config is read from the environment (and a .env file when present).
type Config struct {
	Env      string `env:"ENV" envDefault:"dev"`
	HTTPPort string `env:"HTTP_PORT" envDefault:"4001"`

	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDsn    string `env:"DB_DSN" envDefault:".tmp/docview.db"`

	// StoreTimeout bounds every store operation; a timeout surfaces as Unavailable.
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	ReportTimezone string `env:"REPORT_TIMEZONE" envDefault:"UTC"`

	// DashboardRotatesLinks issues a fresh public link for every document on each dashboard load.
	DashboardRotatesLinks bool `env:"DASHBOARD_ROTATES_LINKS" envDefault:"false"`
	// RequireViewerEmail rejects public session opens without an email.
	RequireViewerEmail bool `env:"REQUIRE_VIEWER_EMAIL" envDefault:"true"`

	CapabilitySecret string        `env:"CAPABILITY_SECRET"`
	CapabilityTTL    time.Duration `env:"CAPABILITY_TTL" envDefault:"12h"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	RollupTTL     time.Duration `env:"ROLLUP_TTL" envDefault:"30s"`
	CacheCodec    string        `env:"CACHE_CODEC" envDefault:"gzip"`

	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaTopic   string `env:"KAFKA_TOPIC" envDefault:"docview.sessions"`

	// The sweep only runs when both a schedule and an inactivity threshold are set.
	SweepSchedule   string        `env:"SWEEP_SCHEDULE"`
	SweepInactivity time.Duration `env:"SWEEP_INACTIVITY"`
	SweepBatch      int           `env:"SWEEP_BATCH" envDefault:"500"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// SweepEnabled reports whether the abandonment sweep is configured.
func (c *Config) SweepEnabled() bool {
	return c.SweepSchedule != "" && c.SweepInactivity > 0
}

// ReportLocation resolves the reporting timezone, falling back to UTC.
func (c *Config) ReportLocation() *time.Location {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		logrus.Warnf("unknown report timezone %q, using UTC: %v", c.ReportTimezone, err)
		return time.UTC
	}

	return loc
}

// LoadConfig parses the environment and configures logging. It exits on malformed values.
func LoadConfig() *Config {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		logrus.Fatalf("error loading config: %v", err)
	}

	ConfigureLogger(&cfg)

	return &cfg
}

func ConfigureLogger(cfg *Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
