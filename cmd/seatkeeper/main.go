package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatkeeper/internal/audit"
	"github.com/smallbiznis/seatkeeper/internal/authorization"
	"github.com/smallbiznis/seatkeeper/internal/billinggateway/stripe"
	"github.com/smallbiznis/seatkeeper/internal/cache"
	"github.com/smallbiznis/seatkeeper/internal/clock"
	"github.com/smallbiznis/seatkeeper/internal/config"
	"github.com/smallbiznis/seatkeeper/internal/invitation"
	"github.com/smallbiznis/seatkeeper/internal/migration"
	"github.com/smallbiznis/seatkeeper/internal/notification"
	"github.com/smallbiznis/seatkeeper/internal/observability"
	"github.com/smallbiznis/seatkeeper/internal/organization"
	"github.com/smallbiznis/seatkeeper/internal/scheduler"
	"github.com/smallbiznis/seatkeeper/internal/seat"
	"github.com/smallbiznis/seatkeeper/internal/server"
	"github.com/smallbiznis/seatkeeper/internal/subscription"
	"github.com/smallbiznis/seatkeeper/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,

		// Membership and billing
		authorization.Module,
		audit.Module,
		notification.Module,
		organization.Module,
		invitation.Module,
		subscription.Module,
		stripe.Module,
		seat.Module,

		// Background jobs and transport
		scheduler.Module,
		server.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
