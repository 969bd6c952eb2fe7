package storage

import (
	"context"
	"fmt"
	"log/slog"

	"budget/internal/core"
)

func (r *SQLiteRepository) GetSetting(ctx context.Context, key string) (core.Setting, error) {
	var (
		s       core.Setting
		updated timestamp
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT key, value, updated_at FROM app_settings WHERE key = ?`, key,
	).Scan(&s.Key, &s.Value, &updated)
	if err != nil {
		return core.Setting{}, fmt.Errorf("get setting %s: %w", key, translate(err))
	}
	s.UpdatedAt = updated.Time
	return s, nil
}

// UpsertSetting inserts key or replaces its value, bumping updated_at.
func (r *SQLiteRepository) UpsertSetting(ctx context.Context, key, value string) (core.Setting, error) {
	var (
		s       core.Setting
		updated timestamp
	)
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO app_settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		RETURNING key, value, updated_at`, key, value,
	).Scan(&s.Key, &s.Value, &updated)
	if err != nil {
		return core.Setting{}, fmt.Errorf("upsert setting %s: %w", key, translate(err))
	}
	s.UpdatedAt = updated.Time

	slog.InfoContext(ctx, "Setting saved", "key", key, "value", value)
	return s, nil
}

func (r *SQLiteRepository) ListSettings(ctx context.Context) ([]core.Setting, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value, updated_at FROM app_settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var out []core.Setting
	for rows.Next() {
		var (
			s       core.Setting
			updated timestamp
		)
		if err := rows.Scan(&s.Key, &s.Value, &updated); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		s.UpdatedAt = updated.Time
		out = append(out, s)
	}
	return out, rows.Err()
}
