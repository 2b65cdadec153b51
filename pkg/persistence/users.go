package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tarotbot/pkg/validate"
)

// User is a registered user.
type User struct {
	Birthdate    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSpreadAt *time.Time
	Name         string
	LastSpread   string
	ChatID       int64
	Credits      int
	Readings     int
}

// Age returns the user's age on now.
func (u User) Age(now time.Time) int {
	return validate.Age(u.Birthdate, now)
}

// Stats summarizes the user table.
type Stats struct {
	Users    int
	Readings int
	Credits  int
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// SaveUser creates or updates a user's name and birthdate. New users start with
// initialCredits; existing balances are never touched.
func (s *Store) SaveUser(ctx context.Context, u User, initialCredits int) error {
	now := formatTime(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (chat_id, name, birthdate, credits, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			name = excluded.name,
			birthdate = excluded.birthdate,
			updated_at = excluded.updated_at`,
		u.ChatID, u.Name, validate.FormatISODate(u.Birthdate), initialCredits, now, now)
	if err != nil {
		return fmt.Errorf("failed to save user %d: %w", u.ChatID, err)
	}
	return nil
}

// GetUser loads a user. It returns ErrNotFound for unknown chats.
func (s *Store) GetUser(ctx context.Context, chatID int64) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chat_id, name, birthdate, credits, created_at, updated_at, last_spread_at, last_spread, readings
		FROM users WHERE chat_id = ?`, chatID)

	var (
		u                           User
		birthdate, created, updated string
		lastSpreadAt                sql.NullString
	)
	err := row.Scan(&u.ChatID, &u.Name, &birthdate, &u.Credits, &created, &updated, &lastSpreadAt, &u.LastSpread, &u.Readings)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to load user %d: %w", chatID, err)
	}

	if u.Birthdate, err = validate.ParseISODate(birthdate); err != nil {
		return User{}, fmt.Errorf("user %d has malformed birthdate %q: %w", chatID, birthdate, err)
	}
	if u.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return User{}, fmt.Errorf("user %d has malformed created_at %q: %w", chatID, created, err)
	}
	if u.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return User{}, fmt.Errorf("user %d has malformed updated_at %q: %w", chatID, updated, err)
	}
	if lastSpreadAt.Valid {
		t, err := time.Parse(timeLayout, lastSpreadAt.String)
		if err != nil {
			return User{}, fmt.Errorf("user %d has malformed last_spread_at %q: %w", chatID, lastSpreadAt.String, err)
		}
		u.LastSpreadAt = &t
	}
	return u, nil
}

// Exists reports whether a user is registered.
func (s *Store) Exists(ctx context.Context, chatID int64) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE chat_id = ?", chatID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check user %d: %w", chatID, err)
	}
	return n > 0, nil
}

// TouchLastSpread records a delivered reading.
func (s *Store) TouchLastSpread(ctx context.Context, chatID int64, spread string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_spread_at = ?, last_spread = ?, readings = readings + 1
		WHERE chat_id = ?`, formatTime(s.now()), spread, chatID)
	if err != nil {
		return fmt.Errorf("failed to record spread for user %d: %w", chatID, err)
	}
	return requireRow(res)
}

// DebitCredit takes one reading credit and returns the remaining balance.
// It fails with ErrNoCredits at zero and never goes negative.
func (s *Store) DebitCredit(ctx context.Context, chatID int64) (int, error) {
	var remaining int
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET credits = credits - 1
		WHERE chat_id = ? AND credits > 0
		RETURNING credits`, chatID).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		exists, existsErr := s.Exists(ctx, chatID)
		if existsErr != nil {
			return 0, existsErr
		}
		if !exists {
			return 0, ErrNotFound
		}
		return 0, ErrNoCredits
	}
	if err != nil {
		return 0, fmt.Errorf("failed to debit credit for user %d: %w", chatID, err)
	}
	return remaining, nil
}

// RefundCredit returns one credit taken by DebitCredit.
func (s *Store) RefundCredit(ctx context.Context, chatID int64) error {
	_, err := s.AddCredits(ctx, chatID, 1)
	return err
}

// AddCredits adds n credits and returns the new balance.
func (s *Store) AddCredits(ctx context.Context, chatID int64, n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("credit amount must not be negative: %d", n)
	}
	var balance int
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET credits = credits + ? WHERE chat_id = ? RETURNING credits`, n, chatID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to add credits for user %d: %w", chatID, err)
	}
	return balance, nil
}

// Stats returns user, reading and outstanding credit totals.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(readings), 0), COALESCE(SUM(credits), 0) FROM users`).
		Scan(&st.Users, &st.Readings, &st.Credits)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to compute stats: %w", err)
	}
	return st, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
