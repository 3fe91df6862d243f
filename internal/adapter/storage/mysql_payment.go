package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rl1809/campus-orders/internal/core/domain"
	"github.com/rl1809/campus-orders/internal/port"
)

const paymentColumns = `id, user_id, kind, title, description, amount, method, status, reference,
	proof_image, proof_submitted_at, verified_by, verified_at, receipt_code, completed_at,
	admin_notes, created_at, updated_at`

func scanPayment(row rowScanner) (domain.Payment, error) {
	var (
		p                                   domain.Payment
		proofImage, verifiedBy, receiptCode sql.NullString
		proofAt, verifiedAt, completedAt    sql.NullTime
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Kind, &p.Title, &p.Description, &p.Amount, &p.Method,
		&p.Status, &p.Reference, &proofImage, &proofAt, &verifiedBy, &verifiedAt, &receiptCode,
		&completedAt, &p.AdminNotes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}

	p.ProofImage = proofImage.String
	p.VerifiedBy = verifiedBy.String
	p.ReceiptCode = receiptCode.String
	p.ProofSubmittedAt = nullTime(proofAt)
	p.VerifiedAt = nullTime(verifiedAt)
	p.CompletedAt = nullTime(completedAt)
	return p, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// CreatePayment reserves stock and inserts the payment in one transaction.
// Products are decremented in ID order so concurrent checkouts take row locks
// in the same sequence.
func (m *MySQLAdapter) CreatePayment(ctx context.Context, p domain.Payment) error {
	lines := append([]domain.PaymentLine(nil), p.Lines...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	return m.withTx(ctx, func(tx *sql.Tx) error {
		for _, line := range lines {
			result, err := tx.ExecContext(ctx, `
				UPDATE products
				SET stock = stock - ?, updated_at = ?
				WHERE id = ? AND stock >= ?`,
				line.Quantity, p.CreatedAt, line.ProductID, line.Quantity,
			)
			if err != nil {
				return fmt.Errorf("reserve stock: %w", err)
			}

			rows, _ := result.RowsAffected()
			if rows == 0 {
				return port.ErrInsufficientStock
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO payments (id, user_id, kind, title, description, amount, method, status,
				reference, admin_notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.UserID, p.Kind, p.Title, p.Description, p.Amount, p.Method, p.Status,
			p.Reference, p.AdminNotes, p.CreatedAt, p.UpdatedAt,
		)
		if isDuplicateKey(err) {
			return port.ErrDuplicateKey
		}
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		for i, line := range p.Lines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO payment_lines (payment_id, line_no, product_id, title, quantity, unit_price)
				VALUES (?, ?, ?, ?, ?, ?)`,
				p.ID, i, line.ProductID, line.Title, line.Quantity, line.UnitPrice,
			); err != nil {
				return fmt.Errorf("insert payment line: %w", err)
			}
		}
		return nil
	})
}

func (m *MySQLAdapter) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return m.getPaymentWhere(ctx, `id = ?`, id)
}

func (m *MySQLAdapter) GetPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	return m.getPaymentWhere(ctx, `reference = ?`, reference)
}

func (m *MySQLAdapter) getPaymentWhere(ctx context.Context, cond string, arg any) (*domain.Payment, error) {
	p, err := scanPayment(m.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE `+cond, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query payment: %w", err)
	}

	lines, err := m.paymentLines(ctx, []string{p.ID})
	if err != nil {
		return nil, err
	}
	p.Lines = lines[p.ID]
	return &p, nil
}

func (m *MySQLAdapter) paymentLines(ctx context.Context, ids []string) (map[string][]domain.PaymentLine, error) {
	out := make(map[string][]domain.PaymentLine, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT payment_id, product_id, title, quantity, unit_price
		FROM payment_lines WHERE payment_id IN (`+placeholders(len(ids))+`)
		ORDER BY payment_id, line_no`, stringArgs(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("query payment lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var paymentID string
		var l domain.PaymentLine
		if err := rows.Scan(&paymentID, &l.ProductID, &l.Title, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan payment line: %w", err)
		}
		out[paymentID] = append(out[paymentID], l)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	return m.exists(ctx, `SELECT 1 FROM payments WHERE reference = ? LIMIT 1`, reference)
}

func (m *MySQLAdapter) ReceiptCodeExists(ctx context.Context, code string) (bool, error) {
	return m.exists(ctx, `SELECT 1 FROM payments WHERE receipt_code = ? LIMIT 1`, code)
}

func (m *MySQLAdapter) exists(ctx context.Context, query string, arg any) (bool, error) {
	var one int
	err := m.db.QueryRowContext(ctx, query, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query exists: %w", err)
	}
	return true, nil
}

func (m *MySQLAdapter) ListPayments(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE 1 = 1`
	var args []any
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	ids := make([]string, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}

	lines, err := m.paymentLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range payments {
		payments[i].Lines = lines[payments[i].ID]
	}
	return payments, nil
}

func (m *MySQLAdapter) SubmitProof(ctx context.Context, id, userID, image string, at time.Time) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE payments
		SET status = ?, proof_image = ?, proof_submitted_at = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND status = ? AND proof_image IS NULL`,
		domain.PaymentStatusSubmitted, image, at, at,
		id, userID, domain.PaymentStatusPending,
	)
	if err != nil {
		return fmt.Errorf("submit proof: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrConflict
	}
	return nil
}

// Verify flips status with a compare-and-swap on verified_by. On rejection the
// reserved quantities go back to stock before the transaction commits.
func (m *MySQLAdapter) Verify(ctx context.Context, v domain.Verification) error {
	if len(v.From) == 0 {
		return port.ErrConflict
	}
	target := v.Decision.Target()

	return m.withTx(ctx, func(tx *sql.Tx) error {
		args := []any{target, v.AdminID, v.At, v.Notes, v.At, v.PaymentID}
		for _, s := range v.From {
			args = append(args, s)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE payments
			SET status = ?, verified_by = ?, verified_at = ?,
				admin_notes = COALESCE(NULLIF(?, ''), admin_notes), updated_at = ?
			WHERE id = ? AND verified_by IS NULL AND status IN (`+placeholders(len(v.From))+`)`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return port.ErrConflict
		}

		if target != domain.PaymentStatusRejected {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE products p
			JOIN (
				SELECT product_id, SUM(quantity) AS quantity
				FROM payment_lines WHERE payment_id = ?
				GROUP BY product_id
			) l ON l.product_id = p.id
			SET p.stock = p.stock + l.quantity, p.updated_at = ?`,
			v.PaymentID, v.At,
		); err != nil {
			return fmt.Errorf("release stock: %w", err)
		}
		return nil
	})
}

func (m *MySQLAdapter) Complete(ctx context.Context, id, receiptCode string, at time.Time) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE payments
		SET status = ?, receipt_code = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND receipt_code IS NULL`,
		domain.PaymentStatusCompleted, receiptCode, at, at,
		id, domain.PaymentStatusConfirmed,
	)
	if isDuplicateKey(err) {
		return port.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrConflict
	}
	return nil
}

func (m *MySQLAdapter) UpdateNotes(ctx context.Context, id, notes string, at time.Time) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE payments
		SET admin_notes = ?, updated_at = ?
		WHERE id = ? AND status <> ?`,
		notes, at, id, domain.PaymentStatusPending,
	)
	if err != nil {
		return fmt.Errorf("update notes: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrConflict
	}
	return nil
}
