package storage

import (
	"context"
	"fmt"
	"log/slog"

	"budget/internal/core"
)

const paymentMethodColumns = `id, name, icon, is_default`

func scanPaymentMethod(row interface{ Scan(...any) error }) (core.PaymentMethod, error) {
	var (
		p         core.PaymentMethod
		isDefault int
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Icon, &isDefault); err != nil {
		return core.PaymentMethod{}, err
	}
	p.IsDefault = isDefault == 1
	return p, nil
}

func (r *SQLiteRepository) CreatePaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	created, err := scanPaymentMethod(r.db.QueryRowContext(ctx,
		`INSERT INTO payment_methods (name, icon) VALUES (?, ?) RETURNING `+paymentMethodColumns,
		p.Name, p.Icon))
	if err != nil {
		return core.PaymentMethod{}, fmt.Errorf("create payment method: %w", translate(err))
	}

	slog.InfoContext(ctx, "Payment method created", "id", created.ID, "name", created.Name)
	return created, nil
}

func (r *SQLiteRepository) GetPaymentMethod(ctx context.Context, id int64) (core.PaymentMethod, error) {
	p, err := scanPaymentMethod(r.db.QueryRowContext(ctx,
		`SELECT `+paymentMethodColumns+` FROM payment_methods WHERE id = ?`, id))
	if err != nil {
		return core.PaymentMethod{}, fmt.Errorf("get payment method %d: %w", id, translate(err))
	}
	return p, nil
}

// ListPaymentMethods returns the default method first, then the rest by name.
func (r *SQLiteRepository) ListPaymentMethods(ctx context.Context) ([]core.PaymentMethod, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentMethodColumns+` FROM payment_methods ORDER BY is_default DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	defer rows.Close()

	var out []core.PaymentMethod
	for rows.Next() {
		p, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePaymentMethod renames a method and replaces its icon. The default
// flag is only changed through SetDefaultPaymentMethod.
func (r *SQLiteRepository) UpdatePaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	updated, err := scanPaymentMethod(r.db.QueryRowContext(ctx,
		`UPDATE payment_methods SET name = ?, icon = ? WHERE id = ? RETURNING `+paymentMethodColumns,
		p.Name, p.Icon, p.ID))
	if err != nil {
		return core.PaymentMethod{}, fmt.Errorf("update payment method %d: %w", p.ID, translate(err))
	}

	slog.InfoContext(ctx, "Payment method updated", "id", updated.ID, "name", updated.Name)
	return updated, nil
}

// DefaultPaymentMethod returns ErrNotFound when no method is marked default.
func (r *SQLiteRepository) DefaultPaymentMethod(ctx context.Context) (core.PaymentMethod, error) {
	p, err := scanPaymentMethod(r.db.QueryRowContext(ctx,
		`SELECT `+paymentMethodColumns+` FROM payment_methods WHERE is_default = 1`))
	if err != nil {
		return core.PaymentMethod{}, fmt.Errorf("get default payment method: %w", translate(err))
	}
	return p, nil
}

// SetDefaultPaymentMethod marks id as the only default method. The previous
// default is cleared in the same transaction, so there is never more than one.
func (r *SQLiteRepository) SetDefaultPaymentMethod(ctx context.Context, id int64) (core.PaymentMethod, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.PaymentMethod{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE payment_methods SET is_default = 0 WHERE is_default = 1 AND id <> ?`, id); err != nil {
		return core.PaymentMethod{}, fmt.Errorf("clear default payment method: %w", translate(err))
	}
	p, err := scanPaymentMethod(tx.QueryRowContext(ctx,
		`UPDATE payment_methods SET is_default = 1 WHERE id = ? RETURNING `+paymentMethodColumns, id))
	if err != nil {
		return core.PaymentMethod{}, fmt.Errorf("set default payment method %d: %w", id, translate(err))
	}
	if err := tx.Commit(); err != nil {
		return core.PaymentMethod{}, fmt.Errorf("commit default payment method: %w", err)
	}

	slog.InfoContext(ctx, "Default payment method set", "id", p.ID, "name", p.Name)
	return p, nil
}

// DeletePaymentMethod removes a method; spendings that used it keep no method.
func (r *SQLiteRepository) DeletePaymentMethod(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM payment_methods WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete payment method %d: %w", id, translate(err))
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete payment method %d: %w", id, err)
	}

	slog.InfoContext(ctx, "Payment method deleted", "id", id)
	return nil
}
