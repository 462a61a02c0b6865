package migration

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func TestEnsureMigrated_FreshDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	for _, step := range steps {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(step.SQL)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).
			WithArgs(step.Name).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	var logs bytes.Buffer
	err = EnsureMigrated(context.Background(), db, newLogger(&logs), "localhost")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, logs.String(), "db_migration_success")
}

func TestEnsureMigrated_UpToDate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"name"})
	for _, name := range StepNames() {
		rows.AddRow(name)
	}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM schema_migrations")).WillReturnRows(rows)

	var logs bytes.Buffer
	err = EnsureMigrated(context.Background(), db, newLogger(&logs), "localhost")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, logs.String(), "db_migration_skip")
}

func TestEnsureMigrated_StepFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(steps[0].SQL)).WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	var logs bytes.Buffer
	err = EnsureMigrated(context.Background(), db, newLogger(&logs), "localhost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration step create_table_customers failed")
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, logs.String(), "db_migration_failed")
}

func TestEnsureMigrated_LedgerError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnError(errors.New("read-only transaction"))

	var logs bytes.Buffer
	err = EnsureMigrated(context.Background(), db, newLogger(&logs), "localhost")
	assert.ErrorContains(t, err, "create migration ledger")
}

func TestStepNames_Unique(t *testing.T) {
	seen := map[string]bool{}
	for _, n := range StepNames() {
		assert.False(t, seen[n], "duplicate step %s", n)
		seen[n] = true
	}
	assert.Equal(t, "create_table_customers", StepNames()[0])
}
