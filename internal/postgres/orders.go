package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"productbundle/internal/bundle"
)

// Orders persists order lines and bundle records.
type Orders struct {
	db *sql.DB
}

var _ bundle.OrderStorage = (*Orders)(nil)

func NewOrders(db *sql.DB) *Orders {
	return &Orders{db: db}
}

func (o *Orders) PersistItems(ctx context.Context, orderID string, items []bundle.Item) error {
	return o.inTx(ctx, func(tx *sql.Tx) error {
		return insertItems(ctx, tx, orderID, items)
	})
}

// PersistBundleItems stores bundle records and their child lines in one
// transaction.
func (o *Orders) PersistBundleItems(ctx context.Context, orderID string, bundles []bundle.BundleItem, children []bundle.Item) error {
	return o.inTx(ctx, func(tx *sql.Tx) error {
		for _, b := range bundles {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sales_order_bundle_items
					(order_id, group_key, sku, quantity, unit_price, sum_price)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, orderID, b.GroupKey, b.SKU, b.Quantity, b.UnitPrice, b.SumPrice)
			if err != nil {
				return fmt.Errorf("failed to insert bundle item %s: %w", b.GroupKey, err)
			}
		}
		return insertItems(ctx, tx, orderID, children)
	})
}

func (o *Orders) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func insertItems(ctx context.Context, tx *sql.Tx, orderID string, items []bundle.Item) error {
	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sales_order_items
				(order_id, sku, quantity, unit_price, sum_price, bundle_item_identifier, group_key)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
		`, orderID, item.SKU, item.Quantity, item.UnitPrice, item.SumPrice, item.BundleItemIdentifier, item.GroupKey)
		if err != nil {
			return fmt.Errorf("failed to insert order item %s: %w", item.SKU, err)
		}
	}
	return nil
}

// LoadOrder reads back a persisted order.
func (o *Orders) LoadOrder(ctx context.Context, orderID string) (*bundle.Order, error) {
	order := &bundle.Order{ID: orderID}

	rows, err := o.db.QueryContext(ctx, `
		SELECT group_key, sku, quantity, unit_price, sum_price
		FROM sales_order_bundle_items
		WHERE order_id = $1
		ORDER BY group_key
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bundle items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b bundle.BundleItem
		if err := rows.Scan(&b.GroupKey, &b.SKU, &b.Quantity, &b.UnitPrice, &b.SumPrice); err != nil {
			return nil, fmt.Errorf("failed to scan bundle item: %w", err)
		}
		order.BundleItems = append(order.BundleItems, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemRows, err := o.db.QueryContext(ctx, `
		SELECT sku, quantity, unit_price, sum_price,
			COALESCE(bundle_item_identifier, ''), COALESCE(group_key, '')
		FROM sales_order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var item bundle.Item
		if err := itemRows.Scan(&item.SKU, &item.Quantity, &item.UnitPrice, &item.SumPrice, &item.BundleItemIdentifier, &item.GroupKey); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	if len(order.Items) == 0 && len(order.BundleItems) == 0 {
		return nil, fmt.Errorf("order %s: %w", orderID, bundle.ErrOrderNotFound)
	}
	return order, nil
}
