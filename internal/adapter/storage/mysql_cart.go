package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rl1809/campus-orders/internal/core/domain"
)

func (m *MySQLAdapter) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price, added_at, updated_at
		FROM cart_lines WHERE user_id = ?
		ORDER BY added_at, product_id`, userID,
	)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	cart := domain.Cart{UserID: userID}
	for rows.Next() {
		var line domain.CartLine
		var updatedAt time.Time
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.UnitPrice, &line.AddedAt, &updatedAt); err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart line: %w", err)
		}
		if updatedAt.After(cart.UpdatedAt) {
			cart.UpdatedAt = updatedAt
		}
		cart.Lines = append(cart.Lines, line)
	}
	return cart, rows.Err()
}

func (m *MySQLAdapter) UpsertLine(ctx context.Context, userID string, line domain.CartLine) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO cart_lines (user_id, product_id, quantity, unit_price, added_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), updated_at = VALUES(updated_at)`,
		userID, line.ProductID, line.Quantity, line.UnitPrice, line.AddedAt, m.now(),
	)
	if err != nil {
		return fmt.Errorf("upsert cart line: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) RemoveLine(ctx context.Context, userID, productID string) error {
	if _, err := m.db.ExecContext(ctx,
		`DELETE FROM cart_lines WHERE user_id = ? AND product_id = ?`, userID, productID,
	); err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ClearCart(ctx context.Context, userID string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
