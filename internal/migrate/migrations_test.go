package migrate_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"crewline/internal/db"
	"crewline/internal/migrate"
)

func TestMigrateIsRepeatable(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, migrate.Migrate(conn))
	require.NoError(t, migrate.Migrate(conn))

	latest, err := migrate.Latest()
	require.NoError(t, err)
	var version int
	require.NoError(t, conn.QueryRow(`SELECT version FROM schema_version`).Scan(&version))
	require.Equal(t, latest, version)
}

func TestStatusCheckConstraint(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, migrate.Migrate(conn))

	_, err = conn.Exec(`INSERT INTO brawlers(id,created_at) VALUES (1,'2024-01-01T00:00:00Z')`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO missions(name,status,chief_id,created_at,updated_at) VALUES ('x','Archived',1,'t','t')`)
	require.Error(t, err)
	_, err = conn.Exec(`INSERT INTO missions(name,status,chief_id,created_at,updated_at) VALUES ('x','Open',1,'t','t')`)
	require.NoError(t, err)
}
