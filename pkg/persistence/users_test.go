package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	s.now = func() time.Time { return time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC) }
	return s
}

func testUser(chatID int64) User {
	return User{
		ChatID:    chatID,
		Name:      "Анна",
		Birthdate: time.Date(1992, time.March, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestSaveAndGetUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetUser(ctx, 1)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveUser(ctx, testUser(1), 3))
	u, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Анна", u.Name)
	assert.Equal(t, 3, u.Credits)
	assert.Equal(t, 34, u.Age(s.now()))
	assert.Nil(t, u.LastSpreadAt)
	assert.True(t, s.now().Equal(u.CreatedAt))

	// Upsert keeps the balance.
	changed := testUser(1)
	changed.Name = "Анна-Мария"
	require.NoError(t, s.SaveUser(ctx, changed, 10))
	u, err = s.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Анна-Мария", u.Name)
	assert.Equal(t, 3, u.Credits)

	ok, err := s.Exists(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Exists(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTouchLastSpread(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.ErrorIs(t, s.TouchLastSpread(ctx, 9, "three_cards"), ErrNotFound)

	require.NoError(t, s.SaveUser(ctx, testUser(9), 0))
	require.NoError(t, s.TouchLastSpread(ctx, 9, "three_cards"))
	require.NoError(t, s.TouchLastSpread(ctx, 9, "celtic_cross"))

	u, err := s.GetUser(ctx, 9)
	require.NoError(t, err)
	require.NotNil(t, u.LastSpreadAt)
	assert.Equal(t, "celtic_cross", u.LastSpread)
	assert.Equal(t, 2, u.Readings)
}

func TestCredits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.DebitCredit(ctx, 5)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveUser(ctx, testUser(5), 2))

	left, err := s.DebitCredit(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, left)
	left, err = s.DebitCredit(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, left)

	_, err = s.DebitCredit(ctx, 5)
	require.ErrorIs(t, err, ErrNoCredits)

	require.NoError(t, s.RefundCredit(ctx, 5))
	balance, err := s.AddCredits(ctx, 5, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, balance)

	_, err = s.AddCredits(ctx, 5, -1)
	assert.Error(t, err)
	_, err = s.AddCredits(ctx, 6, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveUser(ctx, testUser(7), 5))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.DebitCredit(ctx, 7); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, success)
	u, err := s.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, u.Credits)
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)

	require.NoError(t, s.SaveUser(ctx, testUser(1), 3))
	require.NoError(t, s.SaveUser(ctx, testUser(2), 1))
	require.NoError(t, s.TouchLastSpread(ctx, 1, "single_card"))

	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Users: 2, Readings: 1, Credits: 4}, st)
}

func TestMigrationFromVersion1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	raw, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	for _, stmt := range []string{
		"CREATE TABLE schema_version (version INTEGER PRIMARY KEY, applied_at DATETIME)",
		"INSERT INTO schema_version (version) VALUES (1)",
		schemaV1,
		"INSERT INTO users (chat_id, name, birthdate, credits, created_at, updated_at) VALUES (1, 'Олег', '1980-01-02', 2, '2024-01-01T00:00:00Z', '2024-01-01T00:00:00Z')",
	} {
		_, err := raw.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	require.NoError(t, raw.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	version, err := GetSchemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	u, err := s.GetUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Олег", u.Name)
	assert.Equal(t, 0, u.Readings)
	assert.Equal(t, 2, u.Credits)
}

func TestGetUserRejectsMalformedTimestamps(t *testing.T) {
	ctx := context.Background()
	for _, column := range []string{"created_at", "updated_at", "last_spread_at"} {
		t.Run(column, func(t *testing.T) {
			s := openTestStore(t)
			require.NoError(t, s.SaveUser(ctx, testUser(1), 3))
			_, err := s.db.ExecContext(ctx, "UPDATE users SET "+column+" = 'вчера' WHERE chat_id = 1")
			require.NoError(t, err)

			_, err = s.GetUser(ctx, 1)
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrNotFound)
			assert.ErrorContains(t, err, "malformed "+column)
		})
	}
}
