// Package app assembles the pipeline's components from configuration. Each
// entry point loads an App for the config sections it needs and asks it
// for the services it runs.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"screeningcomms/internal/config"
	"screeningcomms/internal/jobs"
	"screeningcomms/internal/metrics"
)

// App holds the process-wide dependencies.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	AWS     aws.Config
	Pool    *pgxpool.Pool
	Metrics *metrics.Publisher
	Runner  *jobs.Runner
}

// NewLogger builds the JSON logger for level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// Load reads configuration with *_SSM_PARAM pointers resolved from SSM
// Parameter Store.
func Load(ctx context.Context, sections ...config.Section) (*App, error) {
	return LoadWith(ctx, config.NewSSMProvider(os.Getenv("AWS_REGION")), sections...)
}

// LoadWith reads configuration, validating sections, and opens the shared
// clients. The database pool is opened only when SectionDatabase is
// requested.
func LoadWith(ctx context.Context, secrets config.SecretProvider, sections ...config.Section) (*App, error) {
	cfg, err := config.LoadConfig(secrets, sections...)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := NewLogger(cfg.LogLevel).With("service", cfg.Service, "environment", cfg.Environment)
	slog.SetDefault(logger)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, AWS: awsCfg}

	for _, s := range sections {
		if s != config.SectionDatabase {
			continue
		}
		if a.Pool, err = openPool(ctx, cfg.Database); err != nil {
			return nil, err
		}
	}

	cw := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	a.Metrics = metrics.NewPublisher(cw, cfg.Observability.MetricsNamespace, cfg.Environment, logger)
	a.Runner = jobs.NewRunner(a.Metrics, logger)

	logger.Info("configuration loaded",
		append(cfg.Build.LogAttrs(), "notifications_env", cfg.NotificationsEnv)...)
	return a, nil
}

func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// Close releases the database pool.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}
