package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/venuepay-backend/pkg/config"
)

func TestEmbeddedMigrationsApplyOnSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)

	require.NoError(t, Up(context.Background(), sqlDB, DialectFor(config.DriverSQLite)))

	for _, table := range []string{"bookings", "payment_intents", "proposals", "payment_plans", "payment_stages", "service_requests", "payment_reminders"} {
		assert.True(t, conn.Migrator().HasTable(table), "missing table %s", table)
	}

	// second run is a no-op
	require.NoError(t, Up(context.Background(), sqlDB, "sqlite3"))
}

func TestMigrationDirIsValid(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
	require.NoError(t, ValidateEmbedded())
}

func TestValidateFSReportsEveryProblem(t *testing.T) {
	fsys := fstest.MapFS{
		"20260101000000_ok.sql":         {Data: []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")},
		"20260101000000_dup.sql":        {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"BadName.sql":                   {Data: []byte("")},
		"20260102000000_no_down.sql":    {Data: []byte("-- +goose Up\n")},
		"20260103000000_unbalanced.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n")},
		"README.md":                     {Data: []byte("ignored")},
	}

	err := ValidateFS(fsys, ".")
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"BadName.sql", "already used", "missing \"-- +goose Down\"", "1 StatementBegin but 0 StatementEnd"} {
		assert.Contains(t, msg, want)
	}
	assert.NotContains(t, msg, "README.md")
}

func TestPaymentStageMigrationGuardsStatus(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_proposals_and_payment_plans.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	content := string(data)

	for _, check := range []string{
		"proposal_id UUID NOT NULL UNIQUE",
		"CHECK (status IN ('PENDING', 'PROCESSING', 'PAID'))",
		"DROP TABLE IF EXISTS payment_stages",
	} {
		if !strings.Contains(content, check) {
			t.Fatalf("migration missing %q", check)
		}
	}
}

func TestDialectFor(t *testing.T) {
	assert.Equal(t, "sqlite3", DialectFor(config.DriverSQLite))
	assert.Equal(t, "postgres", DialectFor(config.DriverPostgres))
	assert.Equal(t, "postgres", DialectFor(""))
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add refund notes!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_refund_notes.sql"))
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
}

func TestCreateSQLMigrationOrdersAfterExisting(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 5, 3, 15, 0, 0, 0, time.UTC)

	first, err := createSQLMigration(dir, "stage notes", now)
	require.NoError(t, err)
	second, err := createSQLMigration(dir, "stage notes index", now)
	require.NoError(t, err)

	assert.Equal(t, "20260503150000_stage_notes.sql", filepath.Base(first))
	assert.Equal(t, "20260503150001_stage_notes_index.sql", filepath.Base(second))
	require.NoError(t, ValidateDir(dir))
}
