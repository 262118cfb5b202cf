package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"promo-controlplane/internal/httpapi"
	pkgasynq "promo-controlplane/pkg/asynq"
	"promo-controlplane/pkg/calendar"
	"promo-controlplane/pkg/client"
	"promo-controlplane/pkg/config"
	"promo-controlplane/pkg/db"
	"promo-controlplane/pkg/health"
	"promo-controlplane/pkg/logger"
	"promo-controlplane/pkg/otelcol"
	"promo-controlplane/pkg/otelcol/exporters"
	"promo-controlplane/pkg/redis"
	"promo-controlplane/pkg/sequence"
	"promo-controlplane/pkg/server"
	"promo-controlplane/services/attendance"
	"promo-controlplane/services/claim"
	"promo-controlplane/services/condition"
	"promo-controlplane/services/event"
	"promo-controlplane/services/referral"
	"promo-controlplane/services/reward"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		calendar.Module,
		client.Module,
		health.Module,
		pkgasynq.Client,
		fx.Provide(provideSnowflakeNode),
		event.Module,
		reward.Module,
		attendance.Module,
		referral.Module,
		condition.Module,
		claim.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		fx.Provide(
			fx.Annotate(exporters.ProvideGrpc, fx.As(new(sdktrace.SpanExporter))),
			otelcol.ProvideTrace,
		),
		fx.Invoke(
			registerTracer,
			db.Otel,
			db.Metric,
			autoMigrate,
			config.Watch,
		),
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

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func registerTracer(tp *sdktrace.TracerProvider) {
	otel.SetTracerProvider(tp)
}

func autoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&event.Event{},
		&reward.Reward{},
		&attendance.Attendance{},
		&referral.Referral{},
		&claim.Claim{},
	)
}
