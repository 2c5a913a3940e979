package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"productbundle/internal/bundle"
)

// Availability stores sellable quantities per SKU.
type Availability struct {
	db *sql.DB
}

var _ bundle.AvailabilityStore = (*Availability)(nil)

func NewAvailability(db *sql.DB) *Availability {
	return &Availability{db: db}
}

// GetAvailability returns 0 for SKUs with no stock row.
func (a *Availability) GetAvailability(ctx context.Context, sku string) (int, error) {
	var quantity int
	err := a.db.QueryRowContext(ctx, `SELECT quantity FROM availability WHERE sku = $1`, sku).Scan(&quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get availability of %s: %w", sku, err)
	}
	return quantity, nil
}

func (a *Availability) SetAvailability(ctx context.Context, sku string, quantity int) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO availability (sku, quantity, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (sku) DO UPDATE
		SET quantity = EXCLUDED.quantity, updated_at = NOW()
	`, sku, quantity)
	if err != nil {
		return fmt.Errorf("failed to set availability of %s: %w", sku, err)
	}
	return nil
}
