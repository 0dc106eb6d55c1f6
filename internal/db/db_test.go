package db

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrationsExecutesEveryStatement(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer raw.Close()

	for _, m := range migrations {
		mock.ExpectExec(m).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, runMigrations(sqlx.NewDb(raw, "postgres")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrationsStopsOnError(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer raw.Close()

	mock.ExpectExec(migrations[0]).WillReturnError(assert.AnError)

	assert.ErrorIs(t, runMigrations(sqlx.NewDb(raw, "postgres")), assert.AnError)
}
