package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bearmemori/bearmemori/internal/apperr"
)

// UpsertUser creates or updates a user's allow-list entry.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u *User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, display_name, is_allowed, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET display_name=excluded.display_name, is_allowed=excluded.is_allowed
	`, u.UserID, u.DisplayName, u.IsAllowed, u.CreatedAt)
	if err != nil {
		return apperr.Infra("upsert user", err)
	}
	return nil
}

// GetUser fetches a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, display_name, is_allowed, created_at FROM users WHERE user_id = ?
	`, userID)

	var u User
	if err := row.Scan(&u.UserID, &u.DisplayName, &u.IsAllowed, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Infra("get user", err)
	}
	return &u, nil
}

// GetSettings fetches per-user settings, defaulting timezone/language if
// the row doesn't exist yet.
func (s *SQLiteStore) GetSettings(ctx context.Context, userID int64) (*UserSettings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, timezone, language, created_at, updated_at FROM user_settings WHERE user_id = ?
	`, userID)

	var st UserSettings
	if err := row.Scan(&st.UserID, &st.Timezone, &st.Language, &st.CreatedAt, &st.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &UserSettings{UserID: userID, Timezone: "UTC", Language: "en"}, nil
		}
		return nil, apperr.Infra("get settings", err)
	}
	return &st, nil
}

// PutSettings upserts per-user settings.
func (s *SQLiteStore) PutSettings(ctx context.Context, st *UserSettings) error {
	now := time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, timezone, language, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET timezone=excluded.timezone, language=excluded.language, updated_at=excluded.updated_at
	`, st.UserID, st.Timezone, st.Language, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return apperr.Infra("put settings", err)
	}
	return nil
}
