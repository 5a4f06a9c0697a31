package modules

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.uber.org/fx"

	"github.com/dmirchev92/stp/internal/boot"
	"github.com/dmirchev92/stp/internal/config"
	"github.com/dmirchev92/stp/internal/db"
	"github.com/dmirchev92/stp/internal/db/memdb"
	"github.com/dmirchev92/stp/internal/logger"
)

var InfraModule = fx.Module(
	"infra",
	fx.Provide(
		provideConfig,
		provideLogger,
		boot.ProvideRuntimeConfig,
		provideStore,
	),
)

// ---------------------------------------------------------------------------
// infrastructure providers
// ---------------------------------------------------------------------------

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(lc fx.Lifecycle, cfg config.Config) *slog.Logger {
	if cfg.Log.File == "" {
		logger.Init(cfg.Log.Level, cfg.Log.Format)
		return logger.L
	}
	closeFile := logger.InitWithFile(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return closeFile()
		},
	})
	return logger.L
}

type pinger interface {
	Ping(ctx context.Context) error
}

// provideStore selects the storage backend named by storage.driver.
func provideStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) (db.Store, error) {
	log = log.With(slog.String("component", "storage"), slog.String("driver", rc.StorageDriver))

	var store db.Store
	switch rc.StorageDriver {
	case "memory":
		log.Warn("using in-memory storage; data is lost on restart")
		store = memdb.New()
	default:
		ctx, cancel := context.WithTimeout(context.Background(), rc.StorageTimeout)
		defer cancel()
		pool, err := db.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				pool.Close()
				return nil
			},
		})
		store = db.NewPgStore(pool)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p, ok := store.(pinger)
			if !ok {
				return nil
			}
			ctx, cancel := context.WithTimeout(ctx, rc.StorageTimeout)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("storage ping: %w", err)
			}
			log.Info("storage ready")
			return nil
		},
	})
	return store, nil
}
