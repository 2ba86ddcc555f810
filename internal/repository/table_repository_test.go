package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"health-etl/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *TableRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewTableRepository(db, zap.NewNop())
	return db, mock, repo
}

func sampleTable() *models.Table {
	ts := time.Date(2023, 1, 15, 8, 30, 0, 0, time.UTC)
	return &models.Table{
		Name: "apple_health_raw",
		Columns: []models.Column{
			{Name: "end_date", Kind: models.KindTimestamp},
			{Name: "source_name", Kind: models.KindText},
			{Name: "step_count", Kind: models.KindFloat},
		},
		Rows: [][]any{
			{ts, "iPhone", 120.0},
			{ts.Add(time.Hour), "iPhone", nil},
		},
	}
}

func TestReplaceTable_Success(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	table := sampleTable()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "public"."apple_health_raw"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "public"."apple_health_raw" ("id" bigint PRIMARY KEY, "end_date" timestamp with time zone, "source_name" text, "step_count" double precision)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare(`COPY "public"."apple_health_raw"`)
	prep.ExpectExec().WithArgs(int64(0), table.Rows[0][0], "iPhone", 120.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(int64(1), table.Rows[1][0], "iPhone", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.ReplaceTable(context.Background(), table)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTable_RollbackOnCopyError(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	table := sampleTable()

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare(`COPY`)
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.ReplaceTable(context.Background(), table)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to copy row 0")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTable_InvalidTable(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	table := sampleTable()
	table.Rows = append(table.Rows, []any{"short"})

	err := repo.ReplaceTable(context.Background(), table)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadTable_RoundTrip(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	table := sampleTable()

	mock.ExpectQuery(`information_schema.tables`).
		WithArgs("public", "apple_health_raw").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	rows := sqlmock.NewRows([]string{"id", "end_date", "source_name", "step_count"})
	for i, r := range table.Rows {
		rows.AddRow(int64(i), r[0], []byte(r[1].(string)), r[2])
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."apple_health_raw" ORDER BY "id"`)).
		WillReturnRows(rows)

	got, err := repo.ReadTable(context.Background(), "apple_health_raw")
	require.NoError(t, err)

	assert.Equal(t, table.ColumnNames(), got.ColumnNames())
	assert.Equal(t, models.KindTimestamp, got.Columns[0].Kind)
	assert.Equal(t, models.KindText, got.Columns[1].Kind)
	assert.Equal(t, models.KindFloat, got.Columns[2].Kind)
	assert.Equal(t, table.Rows, got.Rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadTable_NotFound(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`information_schema.tables`).
		WithArgs("public", "strong_app_raw").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := repo.ReadTable(context.Background(), "strong_app_raw")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTableNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}
