package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"testing/fstest"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"0002_votes.up.sql":     {Data: []byte("CREATE TABLE votes (id UUID)")},
		"0001_reviews.up.sql":   {Data: []byte("CREATE TABLE reviews (id UUID)")},
		"0001_reviews.down.sql": {Data: []byte("DROP TABLE reviews")},
		"README.md":             {Data: []byte("ignored")},
	}
}

func TestMigrationNames_FiltersAndSorts(t *testing.T) {
	names, err := migrationNames(testMigrations())
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_reviews.up.sql", "0002_votes.up.sql"}, names)
}

func TestRunMigrations_AppliesPending(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	exists := regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)")

	mock.ExpectQuery(exists).WithArgs("0001_reviews.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	mock.ExpectQuery(exists).WithArgs("0002_votes.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE votes (id UUID)")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("0002_votes.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = RunMigrations(context.Background(), mock, testMigrations(), discardLogger())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_SQLErrorNotRetried(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnError(errors.New("permission denied for schema public"))

	err = RunMigrations(context.Background(), mock, testMigrations(), discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_FailedFileRollsBack(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	fsys := fstest.MapFS{"0001_reviews.up.sql": {Data: []byte("CREATE TABLE reviews (")}}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("0001_reviews.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE reviews (")).
		WillReturnError(errors.New("syntax error at end of input"))
	mock.ExpectRollback()

	err = RunMigrations(context.Background(), mock, fsys, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001_reviews.up.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, isConnectionError(nil))
	assert.True(t, isConnectionError(io.EOF))
	assert.True(t, isConnectionError(errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")))
	assert.True(t, isConnectionError(errors.New("read: connection reset by peer")))
	assert.False(t, isConnectionError(errors.New("syntax error at or near \"FROM\"")))
	assert.False(t, isConnectionError(errors.New("duplicate key value violates unique constraint")))
}

func TestBackoff_WithinJitter(t *testing.T) {
	for attempt := 0; attempt < 3; attempt++ {
		base := retryBaseWait << attempt
		lo := time.Duration(float64(base) * (1 - retryJitter))
		hi := time.Duration(float64(base) * (1 + retryJitter))
		for i := 0; i < 20; i++ {
			d := backoff(attempt)
			assert.GreaterOrEqual(t, d, lo)
			assert.LessOrEqual(t, d, hi)
		}
	}
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := retry(context.Background(), "op", nil, func(error) bool { return false }, func() error {
		calls++
		return errors.New("fatal")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retry(ctx, "op", nil, func(error) bool { return true }, func() error {
		calls++
		return errors.New("connection refused")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPostgresConfig_DSNEscapesCredentials(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: 5432, User: "mcp", Password: "p@ss/word", DBName: "directory", SSLMode: "disable"}
	assert.Equal(t, "postgres://mcp:p%40ss%2Fword@db:5432/directory?sslmode=disable", cfg.DSN())
}
