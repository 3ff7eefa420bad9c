package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/accessd/internal/audit/domain"
	contractdomain "github.com/smallbiznis/accessd/internal/contract/domain"
	roledomain "github.com/smallbiznis/accessd/internal/role/domain"
	seatdomain "github.com/smallbiznis/accessd/internal/seat/domain"
	userdomain "github.com/smallbiznis/accessd/internal/user/domain"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded postgres schema.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Closing the migrator would close the shared *sql.DB.
	return nil
}

// Models lists every table owned by this service.
func Models() []any {
	return []any{
		&userdomain.User{},
		&contractdomain.Contract{},
		&contractdomain.Store{},
		&roledomain.Role{},
		&seatdomain.ContractSeat{},
		&seatdomain.SeatStoreAccess{},
		&seatdomain.SeatStoreTag{},
		&seatdomain.SeatUsageEvent{},
		&seatdomain.SeatUsageCounter{},
		&auditdomain.AuditLog{},
	}
}

// AutoMigrate builds the schema from the models for sqlite, mysql and tests.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(Models()...)
}
