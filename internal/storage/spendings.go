package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"budget/internal/core"
	"budget/internal/period"
)

const DefaultSpendingLimit = 100

// SpendingFilter narrows ListSpendings. Zero fields do not filter.
type SpendingFilter struct {
	Range      *period.Range
	CategoryID int64
	MemberID   int64
	Limit      int
}

const spendingSelect = `
	SELECT s.id, s.date, s.amount_cents, s.description,
	       s.category_id, c.name,
	       s.subcategory_id, COALESCE(sc.name, ''),
	       s.payment_method_id,
	       s.member_id, COALESCE(m.username, ''),
	       s.created_at
	FROM spendings s
	JOIN categories c ON c.id = s.category_id
	LEFT JOIN subcategories sc ON sc.id = s.subcategory_id
	LEFT JOIN members m ON m.id = s.member_id`

func scanSpending(row interface{ Scan(...any) error }) (core.Spending, error) {
	var (
		s         core.Spending
		date      string
		subID     sql.NullInt64
		paymentID sql.NullInt64
		memberID  sql.NullInt64
		created   timestamp
	)
	err := row.Scan(&s.ID, &date, &s.Amount.Cents, &s.Description,
		&s.CategoryID, &s.CategoryName,
		&subID, &s.SubcategoryName,
		&paymentID,
		&memberID, &s.MemberName,
		&created)
	if err != nil {
		return core.Spending{}, err
	}
	if s.Date, err = period.ParseDate(date); err != nil {
		return core.Spending{}, fmt.Errorf("spending %d: %w", s.ID, err)
	}
	s.SubcategoryID = idPtr(subID)
	s.PaymentMethodID = idPtr(paymentID)
	s.MemberID = idPtr(memberID)
	s.CreatedAt = created.Time
	return s, nil
}

func (r *SQLiteRepository) CreateSpending(ctx context.Context, s core.Spending) (core.Spending, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO spendings (member_id, category_id, subcategory_id, payment_method_id, amount_cents, description, date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		nullableID(s.MemberID), s.CategoryID, nullableID(s.SubcategoryID), nullableID(s.PaymentMethodID),
		s.Amount.Cents, s.Description, s.Date.String(),
	).Scan(&id)
	if err != nil {
		return core.Spending{}, fmt.Errorf("create spending: %w", translate(err))
	}

	slog.InfoContext(ctx, "Spending saved to SQLite",
		"id", id,
		"description", s.Description,
		"amount_cents", s.Amount.Cents,
		"category_id", s.CategoryID,
		"date", s.Date.String())

	return r.GetSpending(ctx, id)
}

func (r *SQLiteRepository) GetSpending(ctx context.Context, id int64) (core.Spending, error) {
	s, err := scanSpending(r.db.QueryRowContext(ctx, spendingSelect+` WHERE s.id = ?`, id))
	if err != nil {
		return core.Spending{}, fmt.Errorf("get spending %d: %w", id, translate(err))
	}
	return s, nil
}

// where renders the filter as a WHERE clause; Limit is not part of it.
func (f SpendingFilter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Range != nil {
		// YYYY-MM-DD strings sort in calendar order.
		conds = append(conds, "s.date >= ? AND s.date <= ?")
		args = append(args, f.Range.Start.String(), f.Range.End.String())
	}
	if f.CategoryID > 0 {
		conds = append(conds, "s.category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.MemberID > 0 {
		conds = append(conds, "s.member_id = ?")
		args = append(args, f.MemberID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListSpendings returns the newest spendings first.
func (r *SQLiteRepository) ListSpendings(ctx context.Context, f SpendingFilter) ([]core.Spending, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultSpendingLimit
	}

	where, args := f.where()
	query := spendingSelect + where + " ORDER BY s.date DESC, s.created_at DESC, s.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list spendings: %w", err)
	}
	defer rows.Close()

	var out []core.Spending
	for rows.Next() {
		s, err := scanSpending(rows)
		if err != nil {
			return nil, fmt.Errorf("scan spending: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SumSpendings totals every spending matching f, ignoring f.Limit.
func (r *SQLiteRepository) SumSpendings(ctx context.Context, f SpendingFilter) (core.Money, error) {
	where, args := f.where()
	var total core.Money
	if err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(s.amount_cents), 0) FROM spendings s`+where, args...,
	).Scan(&total.Cents); err != nil {
		return core.Money{}, fmt.Errorf("sum spendings: %w", err)
	}
	return total, nil
}

func (r *SQLiteRepository) DeleteSpending(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM spendings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete spending %d: %w", id, translate(err))
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete spending %d: %w", id, err)
	}

	slog.InfoContext(ctx, "Spending deleted", "id", id)
	return nil
}

// CategoryStats sums spending per category inside rng. Categories with no
// spending in the range are included with a zero total.
func (r *SQLiteRepository) CategoryStats(ctx context.Context, rng period.Range) ([]core.CategoryStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.monthly_budget_cents, COALESCE(SUM(s.amount_cents), 0)
		FROM categories c
		LEFT JOIN spendings s
		       ON s.category_id = c.id AND s.date >= ? AND s.date <= ?
		GROUP BY c.id, c.name, c.monthly_budget_cents
		ORDER BY c.name`,
		rng.Start.String(), rng.End.String())
	if err != nil {
		return nil, fmt.Errorf("category stats for %s: %w", rng, err)
	}
	defer rows.Close()

	var out []core.CategoryStat
	for rows.Next() {
		var st core.CategoryStat
		if err := rows.Scan(&st.CategoryID, &st.Name, &st.MonthlyBudget.Cents, &st.TotalSpent.Cents); err != nil {
			return nil, fmt.Errorf("scan category stat: %w", err)
		}
		st.Remaining = st.MonthlyBudget.Sub(st.TotalSpent)
		out = append(out, st)
	}
	return out, rows.Err()
}
