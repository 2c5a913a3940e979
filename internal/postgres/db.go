// Package postgres implements the bundle collaborators on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

// Open connects with driver ("postgres" for lib/pq, "pgx" for pgx) and pings
// the server.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Schema creates every table the service uses.
const Schema = `
CREATE TABLE IF NOT EXISTS products (
	id BIGSERIAL PRIMARY KEY,
	sku TEXT NOT NULL UNIQUE,
	is_bundle BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS product_bundles (
	id_product_bundle BIGINT NOT NULL REFERENCES products (id) ON DELETE CASCADE,
	id_bundled_product BIGINT NOT NULL REFERENCES products (id) ON DELETE CASCADE,
	quantity INT NOT NULL CHECK (quantity > 0),
	position INT NOT NULL,
	PRIMARY KEY (id_product_bundle, id_bundled_product)
);

CREATE TABLE IF NOT EXISTS availability (
	sku TEXT PRIMARY KEY,
	quantity INT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sales_order_bundle_items (
	order_id TEXT NOT NULL,
	group_key TEXT NOT NULL,
	sku TEXT NOT NULL,
	quantity INT NOT NULL,
	unit_price BIGINT NOT NULL,
	sum_price BIGINT NOT NULL,
	PRIMARY KEY (order_id, group_key)
);

CREATE TABLE IF NOT EXISTS sales_order_items (
	id BIGSERIAL PRIMARY KEY,
	order_id TEXT NOT NULL,
	sku TEXT NOT NULL,
	quantity INT NOT NULL,
	unit_price BIGINT NOT NULL,
	sum_price BIGINT NOT NULL,
	bundle_item_identifier TEXT,
	group_key TEXT
);

CREATE TABLE IF NOT EXISTS events (
	id BIGSERIAL PRIMARY KEY,
	aggregate_id UUID NOT NULL,
	aggregate_type TEXT NOT NULL,
	event_type TEXT NOT NULL,
	event_data JSONB NOT NULL,
	metadata JSONB,
	version INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (aggregate_id, version)
);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
