package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("STORE_TIMEOUT", "2s")
	t.Setenv("REPORT_TIMEZONE", "Asia/Kolkata")
	t.Setenv("SWEEP_SCHEDULE", "@every 1m")
	t.Setenv("SWEEP_INACTIVITY", "30m")
	t.Setenv("REQUIRE_VIEWER_EMAIL", "false")

	cfg := LoadConfig()

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 2*time.Second, cfg.StoreTimeout)
	assert.False(t, cfg.RequireViewerEmail)
	assert.Equal(t, "gzip", cfg.CacheCodec)
	assert.Equal(t, 500, cfg.SweepBatch)
	assert.True(t, cfg.SweepEnabled())

	loc := cfg.ReportLocation()
	assert.Equal(t, "Asia/Kolkata", loc.String())
}

func TestConfig_SweepEnabled(t *testing.T) {
	tests := []struct {
		name       string
		schedule   string
		inactivity time.Duration
		want       bool
	}{
		{name: "both set", schedule: "@every 1m", inactivity: time.Minute, want: true},
		{name: "no schedule", inactivity: time.Minute},
		{name: "no inactivity", schedule: "@every 1m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{SweepSchedule: tt.schedule, SweepInactivity: tt.inactivity}
			assert.Equal(t, tt.want, cfg.SweepEnabled())
		})
	}
}

func TestConfig_ReportLocationFallback(t *testing.T) {
	cfg := &Config{ReportTimezone: "Mars/Olympus_Mons"}
	assert.Equal(t, time.UTC, cfg.ReportLocation())
}

func TestSqliteDsn(t *testing.T) {
	assert.Equal(t, "file:.tmp/docview.db?"+sqliteParams, SqliteDsn(".tmp/docview.db"))
	assert.Equal(t, "file::memory:?cache=shared&"+sqliteParams, SqliteDsn("file::memory:?cache=shared"))
}

func TestOpenDb(t *testing.T) {
	db, err := OpenDb("sqlite", t.TempDir()+"/docview.db")
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())
	require.NoError(t, sqlDB.Close())
}
