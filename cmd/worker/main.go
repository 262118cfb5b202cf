package main

import (
	"log"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	pkgasynq "promo-controlplane/pkg/asynq"
	"promo-controlplane/pkg/config"
	"promo-controlplane/pkg/db"
	"promo-controlplane/pkg/logger"
	"promo-controlplane/pkg/redis"
	"promo-controlplane/services/claim"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		pkgasynq.Client,
		pkgasynq.Server,
		claim.TaskModule,
		fx.Invoke(registerHandlers),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func registerHandlers(mux *asynq.ServeMux, task *claim.Task) {
	mux.HandleFunc(claim.ClaimNotify, task.HandleClaimNotifyTask)
}
