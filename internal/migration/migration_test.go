package migration

import (
	"io/fs"
	"testing"

	"github.com/smallbiznis/accessd/internal/config"
	"github.com/smallbiznis/accessd/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, entry := range entries {
		names[entry.Name()] = true
	}
	assert.True(t, names["000001_init.up.sql"])
	assert.True(t, names["000001_init.down.sql"])
}

func TestApplyAutoMigratesSqlite(t *testing.T) {
	conn, err := db.NewTest(t.Name())
	require.NoError(t, err)

	require.NoError(t, Apply(conn, config.Config{DBType: "sqlite"}))

	for _, table := range []string{
		"users", "contracts", "stores", "roles", "contract_seats",
		"seat_store_access", "seat_store_tags", "seat_usage_events",
		"seat_usage_counters", "audit_logs",
	} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}
