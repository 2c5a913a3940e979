package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"productbundle/internal/bundle"
)

// Catalog reads and writes bundle compositions.
type Catalog struct {
	db     *sql.DB
	tracer trace.Tracer
}

var (
	_ bundle.ProductCatalog = (*Catalog)(nil)
	_ bundle.BundleStore    = (*Catalog)(nil)
)

func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db, tracer: otel.Tracer("productbundle/postgres")}
}

func (c *Catalog) GetBundleDefinition(ctx context.Context, sku string) (bundle.Definition, error) {
	ctx, span := c.tracer.Start(ctx, "postgres.get_bundle_definition",
		trace.WithAttributes(attribute.String("sku", sku)),
	)
	defer span.End()

	var id int64
	var isBundle bool
	err := c.db.QueryRowContext(ctx, `SELECT id, is_bundle FROM products WHERE sku = $1`, sku).Scan(&id, &isBundle)
	if errors.Is(err, sql.ErrNoRows) {
		return bundle.Definition{}, bundle.ErrNotBundle
	}
	if err != nil {
		return bundle.Definition{}, fmt.Errorf("failed to get product %s: %w", sku, err)
	}
	if !isBundle {
		return bundle.Definition{}, bundle.ErrNotBundle
	}

	children, err := c.FindBundledProducts(ctx, id)
	if err != nil {
		return bundle.Definition{}, err
	}
	if len(children) == 0 {
		return bundle.Definition{}, bundle.ErrUnknownBundleDefinition
	}
	return bundle.Definition{SKU: sku, Children: children}, nil
}

func (c *Catalog) FindBundlesContaining(ctx context.Context, sku string) ([]bundle.Definition, error) {
	ctx, span := c.tracer.Start(ctx, "postgres.find_bundles_containing",
		trace.WithAttributes(attribute.String("sku", sku)),
	)
	defer span.End()

	rows, err := c.db.QueryContext(ctx, `
		SELECT DISTINCT b.sku
		FROM product_bundles pb
		JOIN products b ON b.id = pb.id_product_bundle
		JOIN products p ON p.id = pb.id_bundled_product
		WHERE p.sku = $1
		ORDER BY b.sku
	`, sku)
	if err != nil {
		return nil, fmt.Errorf("failed to find bundles containing %s: %w", sku, err)
	}
	defer rows.Close()

	var bundleSKUs []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan bundle sku: %w", err)
		}
		bundleSKUs = append(bundleSKUs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bundle skus: %w", err)
	}
	if len(bundleSKUs) == 0 {
		return nil, nil
	}

	return c.definitions(ctx, bundleSKUs)
}

// definitions loads the children of several bundles in one query.
func (c *Catalog) definitions(ctx context.Context, bundleSKUs []string) ([]bundle.Definition, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT b.sku, p.id, p.sku, pb.quantity
		FROM product_bundles pb
		JOIN products b ON b.id = pb.id_product_bundle
		JOIN products p ON p.id = pb.id_bundled_product
		WHERE b.sku = ANY($1)
		ORDER BY b.sku, pb.position
	`, pq.Array(bundleSKUs))
	if err != nil {
		return nil, fmt.Errorf("failed to load bundle definitions: %w", err)
	}
	defer rows.Close()

	var defs []bundle.Definition
	for rows.Next() {
		var bundleSKU string
		var child bundle.BundledProduct
		if err := rows.Scan(&bundleSKU, &child.IDProductConcrete, &child.SKU, &child.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan bundled product: %w", err)
		}
		if n := len(defs); n == 0 || defs[n-1].SKU != bundleSKU {
			defs = append(defs, bundle.Definition{SKU: bundleSKU})
		}
		defs[len(defs)-1].Children = append(defs[len(defs)-1].Children, child)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bundled products: %w", err)
	}
	return defs, nil
}

func (c *Catalog) FindProductID(ctx context.Context, sku string) (int64, error) {
	var id int64
	err := c.db.QueryRowContext(ctx, `SELECT id FROM products WHERE sku = $1`, sku).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("product %s: %w", sku, bundle.ErrProductNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get product %s: %w", sku, err)
	}
	return id, nil
}

func (c *Catalog) FindBundledProducts(ctx context.Context, idProductConcrete int64) ([]bundle.BundledProduct, error) {
	var exists bool
	if err := c.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, idProductConcrete).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check product %d: %w", idProductConcrete, err)
	}
	if !exists {
		return nil, fmt.Errorf("product %d: %w", idProductConcrete, bundle.ErrProductNotFound)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT p.id, p.sku, pb.quantity
		FROM product_bundles pb
		JOIN products p ON p.id = pb.id_bundled_product
		WHERE pb.id_product_bundle = $1
		ORDER BY pb.position
	`, idProductConcrete)
	if err != nil {
		return nil, fmt.Errorf("failed to query bundled products: %w", err)
	}
	defer rows.Close()

	var products []bundle.BundledProduct
	for rows.Next() {
		var bp bundle.BundledProduct
		if err := rows.Scan(&bp.IDProductConcrete, &bp.SKU, &bp.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan bundled product: %w", err)
		}
		products = append(products, bp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bundled products: %w", err)
	}
	return products, nil
}

// SaveBundledProducts upserts the bundled products of a product and flags it
// as a bundle. New children are appended after the existing ones.
func (c *Catalog) SaveBundledProducts(ctx context.Context, idProductConcrete int64, products []bundle.BundledProduct) error {
	ctx, span := c.tracer.Start(ctx, "postgres.save_bundled_products",
		trace.WithAttributes(
			attribute.Int64("product.id", idProductConcrete),
			attribute.Int("bundled.count", len(products)),
		),
	)
	defer span.End()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE products SET is_bundle = TRUE WHERE id = $1`, idProductConcrete)
	if err != nil {
		return fmt.Errorf("failed to flag bundle: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("product %d: %w", idProductConcrete, bundle.ErrProductNotFound)
	}

	for _, bp := range products {
		childID := bp.IDProductConcrete
		if childID == 0 {
			err := tx.QueryRowContext(ctx, `SELECT id FROM products WHERE sku = $1`, bp.SKU).Scan(&childID)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("bundled product %s: %w", bp.SKU, bundle.ErrProductNotFound)
			}
			if err != nil {
				return fmt.Errorf("failed to resolve bundled product %s: %w", bp.SKU, err)
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO product_bundles (id_product_bundle, id_bundled_product, quantity, position)
			VALUES ($1, $2, $3, (SELECT COALESCE(MAX(position), 0) + 1 FROM product_bundles WHERE id_product_bundle = $1))
			ON CONFLICT (id_product_bundle, id_bundled_product) DO UPDATE
			SET quantity = EXCLUDED.quantity
		`, idProductConcrete, childID, bp.Quantity)
		if err != nil {
			return fmt.Errorf("failed to save bundled product %s: %w", bp.SKU, err)
		}
	}

	return tx.Commit()
}

func (c *Catalog) RemoveBundledProducts(ctx context.Context, idProductConcrete int64, idBundledProducts []int64) error {
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM product_bundles
		WHERE id_product_bundle = $1 AND id_bundled_product = ANY($2)
	`, idProductConcrete, pq.Array(idBundledProducts))
	if err != nil {
		return fmt.Errorf("failed to remove bundled products: %w", err)
	}
	return nil
}
