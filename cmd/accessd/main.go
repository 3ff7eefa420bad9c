package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accessd/internal/access"
	"github.com/smallbiznis/accessd/internal/audit"
	"github.com/smallbiznis/accessd/internal/authorization"
	"github.com/smallbiznis/accessd/internal/cache"
	"github.com/smallbiznis/accessd/internal/clock"
	"github.com/smallbiznis/accessd/internal/config"
	"github.com/smallbiznis/accessd/internal/contract"
	"github.com/smallbiznis/accessd/internal/invitation"
	"github.com/smallbiznis/accessd/internal/logger"
	"github.com/smallbiznis/accessd/internal/migration"
	"github.com/smallbiznis/accessd/internal/observability"
	"github.com/smallbiznis/accessd/internal/providers"
	"github.com/smallbiznis/accessd/internal/ratelimit"
	"github.com/smallbiznis/accessd/internal/role"
	"github.com/smallbiznis/accessd/internal/seat"
	"github.com/smallbiznis/accessd/internal/server"
	"github.com/smallbiznis/accessd/internal/user"
	"github.com/smallbiznis/accessd/pkg/crypto"
	"github.com/smallbiznis/accessd/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		// Core Infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,
		crypto.Module,
		providers.Module,

		// Functional Domains
		user.Module,
		contract.Module,
		role.Module,
		seat.Module,
		invitation.Module,
		access.Module,
		audit.Module,
		authorization.Module,
		migration.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
