package modules

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/dmirchev92/stp/internal/accesstoken"
	"github.com/dmirchev92/stp/internal/boot"
	"github.com/dmirchev92/stp/internal/handlers"
	"github.com/dmirchev92/stp/internal/publicid"
	"github.com/dmirchev92/stp/internal/realtime"
	"github.com/dmirchev92/stp/internal/server"
)

var HandlersModule = fx.Module(
	"handlers",
	fx.Provide(
		annotateHandler(handlers.NewPingHandler),
		annotateHandler(handlers.NewConversationHandler),
		annotateHandler(provideTokenHandler),
		annotateHandler(providePublicHandler),
		annotateHandler(provideSessionHandler),
	),
)

// annotateHandler wraps a handler provider function with fx.Annotate
// to register it as a server.Handler with the correct group tag
func annotateHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideTokenHandler(log *slog.Logger, tokens *accesstoken.Service, ids *publicid.Service, rc *boot.RuntimeConfig) *handlers.TokenHandler {
	return handlers.NewTokenHandler(log, tokens, ids, rc.PublicHost)
}

func providePublicHandler(log *slog.Logger, tokens *accesstoken.Service, rc *boot.RuntimeConfig) *handlers.PublicHandler {
	return handlers.NewPublicHandler(log, tokens, rc.JwtSecret, rc.CounterpartSessionTTL, rc.RateLimitRPS, rc.RateLimitBurst)
}

func provideSessionHandler(log *slog.Logger, router *realtime.Router, rc *boot.RuntimeConfig) *handlers.SessionHandler {
	return handlers.NewSessionHandler(log, router, rc.SendBuffer)
}
