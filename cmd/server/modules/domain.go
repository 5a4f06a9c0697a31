package modules

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/dmirchev92/stp/internal/accesstoken"
	"github.com/dmirchev92/stp/internal/boot"
	"github.com/dmirchev92/stp/internal/conversation"
	"github.com/dmirchev92/stp/internal/db"
	"github.com/dmirchev92/stp/internal/publicid"
	"github.com/dmirchev92/stp/internal/realtime"
	"github.com/dmirchev92/stp/internal/retention"
)

var DomainModule = fx.Module(
	"domain",
	fx.Provide(
		providePublicIDService,
		provideConversationService,
		provideTokenService,
		provideRouter,
		provideRetention,
	),
	fx.Invoke(startRetention),
)

// ---------------------------------------------------------------------------
// domain service providers
// ---------------------------------------------------------------------------

func providePublicIDService(log *slog.Logger, store db.Store) *publicid.Service {
	return publicid.NewService(log, store)
}

func provideConversationService(log *slog.Logger, store db.Store, rc *boot.RuntimeConfig) *conversation.Service {
	return conversation.NewService(log, store).WithTimeout(rc.StorageTimeout)
}

func provideTokenService(log *slog.Logger, store db.Store, ids *publicid.Service, convs *conversation.Service, rc *boot.RuntimeConfig) *accesstoken.Service {
	return accesstoken.NewService(log, store, ids, convs).
		WithTTL(rc.TokenTTL).
		WithTimeout(rc.TokenStorageTimeout)
}

func provideRouter(lc fx.Lifecycle, log *slog.Logger, convs *conversation.Service, rc *boot.RuntimeConfig) *realtime.Router {
	router := realtime.NewRouter(log, convs).
		WithOperationTimeout(rc.OperationTimeout).
		WithTypingWindow(rc.TypingWindow)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return router.Shutdown(ctx)
		},
	})
	return router
}

func provideRetention(log *slog.Logger, tokens *accesstoken.Service, rc *boot.RuntimeConfig) (*retention.Service, error) {
	return retention.NewService(log, tokens, rc.SweepSchedule, rc.RetentionGrace)
}

func startRetention(lc fx.Lifecycle, svc *retention.Service) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return svc.Start()
		},
		OnStop: func(ctx context.Context) error {
			return svc.Stop(ctx)
		},
	})
}
