package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/ctr-optimizer/internal/config"
	"github.com/jonathan/ctr-optimizer/internal/db"
	"github.com/jonathan/ctr-optimizer/internal/ideation"
	"github.com/jonathan/ctr-optimizer/internal/llm"
	"github.com/jonathan/ctr-optimizer/internal/notify"
	"github.com/jonathan/ctr-optimizer/internal/observability"
	"github.com/jonathan/ctr-optimizer/internal/pipeline"
	"github.com/jonathan/ctr-optimizer/internal/runlock"
	"github.com/jonathan/ctr-optimizer/internal/searchconsole"
	"github.com/jonathan/ctr-optimizer/internal/structure"
	"github.com/jonathan/ctr-optimizer/internal/wordpress"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// lockName identifies scheduled runs in Redis and PostgreSQL.
const lockName = "ctr-optimizer"

// needs lists the external systems a command talks to.
type needs struct {
	metrics bool
	site    bool
	ideas   bool
	notify  bool
}

// app holds everything a command opened. close releases it in reverse order.
type app struct {
	cfg     config.Config
	log     *logrus.Logger
	db      *db.DB
	runner  *pipeline.Runner
	lock    runlock.Lock
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// resolveConfig layers the config file, the environment, explicit flags and built-in defaults.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}
	cfg.ApplyEnv()

	// Only override if the flag was explicitly set
	flags := cmd.Flags()
	if flags.Changed("db-url") {
		cfg.DatabaseURL = databaseURL
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}
	if cfg.Verbose {
		cfg.Log.Level = "debug"
	}

	cfg = cfg.MergeWithDefaults(config.Defaults())
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// setup resolves the config and opens the database plus whatever n asks for.
func setup(ctx context.Context, cmd *cobra.Command, n needs) (*app, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}
	a.db, err = db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.db.Close)

	deps := pipeline.Deps{
		Store:  a.db,
		Scorer: structure.NewScorer(cfg.Site.URL),
		Log:    log,
	}

	if n.metrics {
		if deps.Metrics, err = newMetrics(ctx, cfg, log); err != nil {
			a.close()
			return nil, err
		}
	}
	if n.site {
		if deps.Content, err = newSite(cfg, log); err != nil {
			a.close()
			return nil, err
		}
	}
	if n.ideas {
		client, err := newLLM(ctx, cfg)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		deps.Ideas = ideation.NewLLMGenerator(client, cfg.LLM.VariantCount, log)
	}
	if n.notify {
		if deps.Notifier, err = newNotifier(cfg); err != nil {
			a.close()
			return nil, err
		}
	}

	if a.runner, err = pipeline.New(deps, cfg.Thresholds); err != nil {
		a.close()
		return nil, err
	}

	if a.lock, err = newLock(cfg, a.db); err != nil {
		a.close()
		return nil, err
	}
	if c, ok := a.lock.(interface{ Close() error }); ok {
		a.closers = append(a.closers, func() { _ = c.Close() })
	}
	return a, nil
}

func newMetrics(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*searchconsole.Client, error) {
	if cfg.SearchConsole.CredentialsFile == "" {
		return nil, fmt.Errorf("GSC_CREDENTIALS_FILE environment variable or search_console.credentials_file is required")
	}
	creds, err := searchconsole.Credentials(ctx, cfg.SearchConsole.CredentialsFile, cfg.SearchConsole.TokenFile)
	if err != nil {
		return nil, err
	}
	return searchconsole.NewClient(ctx, cfg.SearchConsole.SiteURL, log, creds)
}

func newSite(cfg config.Config, log logrus.FieldLogger) (*wordpress.Client, error) {
	return wordpress.NewClient(wordpress.Options{
		SiteURL:         cfg.Site.URL,
		User:            cfg.Site.User,
		AppPassword:     cfg.Site.AppPassword,
		UseRankMathMeta: cfg.Site.UseRankMathMeta,
		RequestsPerSec:  cfg.Site.RequestsPerSec,
	}, log)
}

func newLLM(ctx context.Context, cfg config.Config) (llm.Client, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable or llm.api_key is required")
	}
	client, err := llm.NewGeminiClient(ctx, llm.NewConfig(cfg.LLM.Model, cfg.LLM.Temperature), cfg.LLM.APIKey)
	if err != nil {
		return nil, err
	}
	return llm.NewRateLimited(client, cfg.LLM.RequestsPerMn), nil
}

// newNotifier fans out to every configured channel.
func newNotifier(cfg config.Config) (notify.Notifier, error) {
	var channels notify.Multi
	n := cfg.Notifications
	if n.SlackWebhookURL != "" {
		channels = append(channels, notify.NewSlack(n.SlackWebhookURL, nil))
	}
	if n.SMTPHost != "" && n.Email != "" {
		email, err := notify.NewEmail(notify.EmailOptions{
			Host:     n.SMTPHost,
			Port:     n.SMTPPort,
			User:     n.SMTPUser,
			Password: n.SMTPPassword,
			To:       n.Email,
		})
		if err != nil {
			return nil, err
		}
		channels = append(channels, email)
	}
	if len(channels) == 0 {
		return notify.Nop{}, nil
	}
	return channels, nil
}

// redisLock owns its client so the app can close it.
type redisLock struct {
	*runlock.Redis
	client *redis.Client
}

func (l redisLock) Close() error {
	return l.client.Close()
}

// newLock prefers Redis when configured and falls back to a PostgreSQL advisory lock.
func newLock(cfg config.Config, database *db.DB) (runlock.Lock, error) {
	if cfg.Lock.Disabled {
		return runlock.Nop{}, nil
	}
	if cfg.Lock.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Lock.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		ttl := time.Duration(cfg.Lock.TTLMinutes) * time.Minute
		return redisLock{Redis: runlock.NewRedis(client, lockName, ttl), client: client}, nil
	}
	if database == nil {
		return nil, errors.New("run lock needs redis or a database")
	}
	return runlock.NewPostgres(database.Pool(), lockName), nil
}

// locked runs fn under the single-flight lock.
func (a *app) locked(ctx context.Context, fn func(context.Context) error) error {
	err := runlock.Run(ctx, a.lock, fn)
	if errors.Is(err, runlock.ErrHeld) {
		a.log.Warn("another run holds the lock, exiting")
	}
	return err
}
