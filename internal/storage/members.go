package storage

import (
	"context"
	"fmt"
	"log/slog"

	"budget/internal/core"
)

const memberColumns = `id, username, role, created_at`

func scanMember(row interface{ Scan(...any) error }) (core.Member, error) {
	var (
		m       core.Member
		role    string
		created timestamp
	)
	if err := row.Scan(&m.ID, &m.Username, &role, &created); err != nil {
		return core.Member{}, err
	}
	m.Role = core.Role(role)
	m.CreatedAt = created.Time
	return m, nil
}

func (r *SQLiteRepository) CreateMember(ctx context.Context, m core.Member) (core.Member, error) {
	created, err := scanMember(r.db.QueryRowContext(ctx,
		`INSERT INTO members (username, role) VALUES (?, ?) RETURNING `+memberColumns,
		m.Username, string(m.Role)))
	if err != nil {
		return core.Member{}, fmt.Errorf("create member: %w", translate(err))
	}

	slog.InfoContext(ctx, "Member created", "id", created.ID, "username", created.Username, "role", created.Role)
	return created, nil
}

func (r *SQLiteRepository) GetMember(ctx context.Context, id int64) (core.Member, error) {
	m, err := scanMember(r.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = ?`, id))
	if err != nil {
		return core.Member{}, fmt.Errorf("get member %d: %w", id, translate(err))
	}
	return m, nil
}

func (r *SQLiteRepository) ListMembers(ctx context.Context) ([]core.Member, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+memberColumns+` FROM members ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []core.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteMember removes a member. Their spendings and categories are kept
// with the author cleared.
func (r *SQLiteRepository) DeleteMember(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete member %d: %w", id, translate(err))
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete member %d: %w", id, err)
	}

	slog.InfoContext(ctx, "Member deleted", "id", id)
	return nil
}

// UpdateMember replaces the username and role of an existing member.
func (r *SQLiteRepository) UpdateMember(ctx context.Context, m core.Member) (core.Member, error) {
	updated, err := scanMember(r.db.QueryRowContext(ctx,
		`UPDATE members SET username = ?, role = ? WHERE id = ? RETURNING `+memberColumns,
		m.Username, string(m.Role), m.ID))
	if err != nil {
		return core.Member{}, fmt.Errorf("update member %d: %w", m.ID, translate(err))
	}

	slog.InfoContext(ctx, "Member updated", "id", updated.ID, "username", updated.Username, "role", updated.Role)
	return updated, nil
}

// CountAdmins returns how many members hold the admin role.
func (r *SQLiteRepository) CountAdmins(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM members WHERE role = ?`, string(core.RoleAdmin),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}
