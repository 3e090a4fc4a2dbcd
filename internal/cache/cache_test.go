package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_GetPut(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	_, err := s.Get(ctx, "prompt", "")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "prompt", "", "name: BRCA1"))
	require.NoError(t, s.Put(ctx, "prompt", "be terse", "name: TP53"))

	got, err := s.Get(ctx, "prompt", "")
	require.NoError(t, err)
	assert.Equal(t, "name: BRCA1", got)

	got, err = s.Get(ctx, "prompt", "be terse")
	require.NoError(t, err)
	assert.Equal(t, "name: TP53", got)

	_, err = s.Get(ctx, "prompt", "other system")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_LatestWins(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	require.NoError(t, s.Put(ctx, "p", "", "old"))
	require.NoError(t, s.Put(ctx, "p", "", "new"))

	got, err := s.Get(ctx, "p", "")
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}

func TestSQLiteStore_Entries(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	require.NoError(t, s.Put(ctx, "Extract genes from: BRCA1 mutations", "", "genes: BRCA1"))
	require.NoError(t, s.Put(ctx, "Extract diseases", "", "name: Marfan Syndrome"))

	all, err := s.Entries(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.False(t, all[0].CreatedAt.IsZero())

	byPrompt, err := s.Entries(ctx, "brca1")
	require.NoError(t, err)
	require.Len(t, byPrompt, 1)
	assert.Equal(t, "genes: BRCA1", byPrompt[0].Payload)

	byPayload, err := s.Entries(ctx, "MARFAN")
	require.NoError(t, err)
	require.Len(t, byPayload, 1)

	none, err := s.Entries(ctx, "zebrafish")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "p", "", "kept"))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())

	got, err := s.Get(ctx, "p", "")
	require.NoError(t, err)
	assert.Equal(t, "kept", got)
}

func TestSQLiteStore_QueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS cache").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLiteStoreFromDB(db)
	require.NoError(t, err)

	boom := errors.New("disk I/O error")

	mock.ExpectQuery("SELECT payload FROM cache").
		WithArgs("p", "").
		WillReturnError(boom)
	_, err = s.Get(context.Background(), "p", "")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)

	mock.ExpectExec("INSERT INTO cache").
		WithArgs("p", nil, "payload").
		WillReturnError(boom)
	err = s.Put(context.Background(), "p", "", "payload")
	assert.ErrorIs(t, err, boom)

	mock.ExpectQuery("SELECT user_prompt").WillReturnError(boom)
	_, err = s.Entries(context.Background(), "")
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_SchemaError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS cache").WillReturnError(errors.New("read-only database"))
	_, err = NewSQLiteStoreFromDB(db)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Backend: BackendNone})
	require.NoError(t, err)
	_, err = s.Get(ctx, "p", "")
	assert.ErrorIs(t, err, ErrNotFound)

	s, err = Open(ctx, Options{Path: filepath.Join(t.TempDir(), "c.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	s.Close()

	_, err = Open(ctx, Options{Backend: BackendSQLite})
	assert.Error(t, err)

	_, err = Open(ctx, Options{Backend: "memcached"})
	assert.Error(t, err)

	_, err = Open(ctx, Options{Backend: BackendRedis, RedisURL: "not a url"})
	assert.Error(t, err)
}

func TestRedisKey(t *testing.T) {
	a := redisKey("prompt", "")
	b := redisKey("prompt", "system")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, redisKey("prompt", ""))
	assert.Contains(t, a, redisKeyPrefix)
}

func TestEntryMatches(t *testing.T) {
	e := Entry{UserPrompt: "Text: BRCA1", Payload: "genes: brca1"}
	assert.True(t, e.Matches(""))
	assert.True(t, e.Matches("Brca1"))
	assert.False(t, e.Matches("tp53"))
}
