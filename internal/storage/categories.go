package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"budget/internal/core"
)

const categoryColumns = `id, name, monthly_budget_cents, created_by, created_at`

func scanCategory(row interface{ Scan(...any) error }) (core.Category, error) {
	var (
		c         core.Category
		createdBy sql.NullInt64
		created   timestamp
	)
	if err := row.Scan(&c.ID, &c.Name, &c.MonthlyBudget.Cents, &createdBy, &created); err != nil {
		return core.Category{}, err
	}
	c.CreatedBy = idPtr(createdBy)
	c.CreatedAt = created.Time
	return c, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	created, err := scanCategory(r.db.QueryRowContext(ctx,
		`INSERT INTO categories (name, monthly_budget_cents, created_by) VALUES (?, ?, ?) RETURNING `+categoryColumns,
		c.Name, c.MonthlyBudget.Cents, nullableID(c.CreatedBy)))
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", translate(err))
	}

	slog.InfoContext(ctx, "Category created",
		"id", created.ID,
		"name", created.Name,
		"monthly_budget_cents", created.MonthlyBudget.Cents)
	return created, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, translate(err))
	}
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCategory renames a category and replaces its monthly budget.
func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	updated, err := scanCategory(r.db.QueryRowContext(ctx,
		`UPDATE categories SET name = ?, monthly_budget_cents = ? WHERE id = ? RETURNING `+categoryColumns,
		c.Name, c.MonthlyBudget.Cents, c.ID))
	if err != nil {
		return core.Category{}, fmt.Errorf("update category %d: %w", c.ID, translate(err))
	}

	slog.InfoContext(ctx, "Category updated",
		"id", updated.ID,
		"name", updated.Name,
		"monthly_budget_cents", updated.MonthlyBudget.Cents)
	return updated, nil
}

// DeleteCategory fails with ErrInUse while spendings still reference the category.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category %d: %w", id, translate(err))
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}

	slog.InfoContext(ctx, "Category deleted", "id", id)
	return nil
}

func (r *SQLiteRepository) CreateSubcategory(ctx context.Context, s core.Subcategory) (core.Subcategory, error) {
	var created core.Subcategory
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO subcategories (category_id, name) VALUES (?, ?) RETURNING id, category_id, name`,
		s.CategoryID, s.Name,
	).Scan(&created.ID, &created.CategoryID, &created.Name)
	if err != nil {
		return core.Subcategory{}, fmt.Errorf("create subcategory: %w", translate(err))
	}

	slog.InfoContext(ctx, "Subcategory created", "id", created.ID, "category_id", created.CategoryID, "name", created.Name)
	return created, nil
}

func (r *SQLiteRepository) GetSubcategory(ctx context.Context, id int64) (core.Subcategory, error) {
	var s core.Subcategory
	err := r.db.QueryRowContext(ctx,
		`SELECT id, category_id, name FROM subcategories WHERE id = ?`, id,
	).Scan(&s.ID, &s.CategoryID, &s.Name)
	if err != nil {
		return core.Subcategory{}, fmt.Errorf("get subcategory %d: %w", id, translate(err))
	}
	return s, nil
}

// SubcategorySearchLimit caps the matches returned for a name search.
const SubcategorySearchLimit = 20

// ListSubcategories lists a category's subcategories by name. A non-empty
// search keeps names containing it, case-insensitively, up to
// SubcategorySearchLimit rows.
func (r *SQLiteRepository) ListSubcategories(ctx context.Context, categoryID int64, search string) ([]core.Subcategory, error) {
	query := `SELECT id, category_id, name FROM subcategories WHERE category_id = ?`
	args := []any{categoryID}
	if search != "" {
		query += ` AND name LIKE ? ESCAPE '\' ORDER BY name LIMIT ?`
		args = append(args, "%"+escapeLike(search)+"%", SubcategorySearchLimit)
	} else {
		query += ` ORDER BY name`
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subcategories for category %d: %w", categoryID, err)
	}
	defer rows.Close()

	var out []core.Subcategory
	for rows.Next() {
		var s core.Subcategory
		if err := rows.Scan(&s.ID, &s.CategoryID, &s.Name); err != nil {
			return nil, fmt.Errorf("scan subcategory: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// escapeLike makes % and _ in s match literally under ESCAPE '\'.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *SQLiteRepository) DeleteSubcategory(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subcategories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subcategory %d: %w", id, translate(err))
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete subcategory %d: %w", id, err)
	}

	slog.InfoContext(ctx, "Subcategory deleted", "id", id)
	return nil
}
