package migration

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/accessd/internal/config"
	"github.com/smallbiznis/accessd/internal/ratelimit"
	roledomain "github.com/smallbiznis/accessd/internal/role/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const seedLockKey = "accessd:seed:system-roles"

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, roles roledomain.Service, locker *ratelimit.Locker, log *zap.Logger) error {
		if err := Apply(conn, cfg); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := locker.WithLock(ctx, seedLockKey, time.Minute, roles.SeedSystemRoles)
		if errors.Is(err, ratelimit.ErrLockHeld) {
			log.Info("system roles are being seeded by another instance")
			return nil
		}
		return err
	}),
)

// Apply brings the schema up to date for the configured database.
func Apply(conn *gorm.DB, cfg config.Config) error {
	if cfg.DBType != "postgres" {
		return AutoMigrate(conn)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}
