package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonathan/ctr-optimizer/internal/config"
	"github.com/jonathan/ctr-optimizer/internal/notify"
	"github.com/jonathan/ctr-optimizer/internal/runlock"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain runs before all tests and loads .env if available
func TestMain(m *testing.M) {
	// Try to load .env file - ignore error if it doesn't exist (CI environment)
	_ = godotenv.Load()

	os.Exit(m.Run())
}

// parsedCommand registers the global flags on a fresh command and parses args.
func parsedCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&databaseURL, "db-url", "", "")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "")
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "GSC_CREDENTIALS_FILE", "LOG_LEVEL", "REPORTS_DIR"} {
		t.Setenv(key, "")
	}
}

func TestResolveConfig_Layering(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_url: postgres://file/ctr
log:
  level: warn
thresholds:
  min_impressions: 300
`), 0o644))

	configPath = path
	t.Cleanup(func() { configPath = "" })

	tests := []struct {
		name      string
		env       string
		args      []string
		wantDB    string
		wantLevel string
	}{
		{"file only", "", nil, "postgres://file/ctr", "warn"},
		{"file wins over env", "postgres://env/ctr", nil, "postgres://file/ctr", "warn"},
		{"flag wins over file", "", []string{"--db-url", "postgres://flag/ctr"}, "postgres://flag/ctr", "warn"},
		{"verbose forces debug", "", []string{"-v"}, "postgres://file/ctr", "debug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", tt.env)
			cfg, err := resolveConfig(parsedCommand(t, tt.args...))
			require.NoError(t, err)
			assert.Equal(t, tt.wantDB, cfg.DatabaseURL)
			assert.Equal(t, tt.wantLevel, cfg.Log.Level)
			assert.Equal(t, int64(300), cfg.Thresholds.MinImpressions)
			assert.Equal(t, 30, cfg.Thresholds.CooldownDays, "defaults fill the rest")
		})
	}
}

func TestResolveConfig_InvalidThresholds(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("thresholds:\n  impression_weight: 0.9\n  gap_weight: 0.9\n"), 0o644))

	configPath = path
	t.Cleanup(func() { configPath = "" })

	_, err := resolveConfig(parsedCommand(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must equal 1")
}

func TestIngestRange(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	r, err := ingestRange("", "", now, 28, 3)
	require.NoError(t, err)
	assert.Equal(t, "2026-09-14..2026-10-12", r.String())

	r, err = ingestRange("2026-09-01", "2026-09-28", now, 28, 3)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), r.Start)

	_, err = ingestRange("2026-09-01", "", now, 28, 3)
	assert.Error(t, err)
	_, err = ingestRange("2026-09-28", "2026-09-01", now, 28, 3)
	assert.Error(t, err)
	_, err = ingestRange("01/09/2026", "2026-09-28", now, 28, 3)
	assert.Error(t, err)
}

func TestNewNotifier(t *testing.T) {
	n, err := newNotifier(config.Config{})
	require.NoError(t, err)
	assert.Equal(t, notify.Nop{}, n)

	n, err = newNotifier(config.Config{Notifications: config.NotificationConfig{
		SlackWebhookURL: "https://hooks.slack.test/T000",
		SMTPHost:        "smtp.example.com",
		SMTPPort:        587,
		Email:           "ops@example.com",
	}})
	require.NoError(t, err)
	multi, ok := n.(notify.Multi)
	require.True(t, ok)
	assert.Len(t, multi, 2)
}

func TestNewLock(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		l, err := newLock(config.Config{Lock: config.LockConfig{Disabled: true}}, nil)
		require.NoError(t, err)
		assert.Equal(t, runlock.Nop{}, l)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.Config{Lock: config.LockConfig{RedisURL: "redis://" + mr.Addr(), TTLMinutes: 5}}

		first, err := newLock(cfg, nil)
		require.NoError(t, err)
		second, err := newLock(cfg, nil)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = first.(redisLock).Close()
			_ = second.(redisLock).Close()
		})

		ctx := context.Background()
		ok, err := first.Acquire(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = second.Acquire(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 5*time.Minute, mr.TTL("lock:"+lockName))
	})

	t.Run("bad redis url", func(t *testing.T) {
		_, err := newLock(config.Config{Lock: config.LockConfig{RedisURL: "http://nope"}}, nil)
		assert.Error(t, err)
	})

	t.Run("no backend", func(t *testing.T) {
		_, err := newLock(config.Config{}, nil)
		assert.Error(t, err)
	})
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"status", "monthly", "weekly", "analyze", "ingest", "revert", "migrate", "benchmark"}
	var got []string
	for _, c := range rootCmd.Commands() {
		got = append(got, c.Name())
	}
	for _, name := range want {
		assert.Contains(t, got, name)
	}

	kind := monthlyCmd.Flags().Lookup("kind")
	require.NotNil(t, kind)
	assert.Equal(t, "title", kind.DefValue)
	assert.NotNil(t, monthlyCmd.Flags().Lookup("dry-run"))
}
