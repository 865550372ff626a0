package history

import (
	"context"
	stderrors "errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateUpFresh(t *testing.T) {
	store, mock := newSQLMock(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations ORDER BY version")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS asks")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (version, description) VALUES (?, ?)")).
		WithArgs(1, "Create asks table").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Initialize(context.Background()))
	assertSQLMock(t, mock)
}

func TestMigrateUpSkipsApplied(t *testing.T) {
	store, mock := newSQLMock(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))

	require.NoError(t, store.Initialize(context.Background()))
	assertSQLMock(t, mock)
}

func TestMigrateUpRollsBackOnFailure(t *testing.T) {
	store, mock := newSQLMock(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS asks")).
		WillReturnError(stderrors.New("catalog error"))
	mock.ExpectRollback()

	err := store.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog error")
	assertSQLMock(t, mock)
}

func TestMigrateDown(t *testing.T) {
	store, mock := newSQLMock(t)
	manager := NewMigrationManager(store.db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE IF EXISTS asks")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM schema_migrations WHERE version = ?")).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, manager.MigrateDown(context.Background(), 0))
	assertSQLMock(t, mock)
}

func TestMigrateDownUnknownVersion(t *testing.T) {
	store, mock := newSQLMock(t)
	manager := NewMigrationManager(store.db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1).AddRow(7))

	err := manager.MigrateDown(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 7 not found")
	assertSQLMock(t, mock)
}

func TestMigrationsOrdered(t *testing.T) {
	migrations := Migrations()
	require.NotEmpty(t, migrations)

	for i, migration := range migrations {
		assert.Equal(t, i+1, migration.Version)
		assert.NotEmpty(t, migration.Description)
		assert.NotEmpty(t, migration.Up)
		assert.NotEmpty(t, migration.Down)
	}
}
