package bundle

import "context"

// ProductCatalog resolves bundle compositions.
type ProductCatalog interface {
	// GetBundleDefinition returns ErrNotBundle for plain products and
	// ErrUnknownBundleDefinition for bundles without bundled products.
	GetBundleDefinition(ctx context.Context, sku string) (Definition, error)
	// FindBundlesContaining returns every definition that lists sku as a child.
	FindBundlesContaining(ctx context.Context, sku string) ([]Definition, error)
}

// BundleStore persists the catalog-side bundle composition of products.
type BundleStore interface {
	// FindProductID returns ErrProductNotFound for unknown SKUs.
	FindProductID(ctx context.Context, sku string) (int64, error)
	FindBundledProducts(ctx context.Context, idProductConcrete int64) ([]BundledProduct, error)
	SaveBundledProducts(ctx context.Context, idProductConcrete int64, products []BundledProduct) error
	RemoveBundledProducts(ctx context.Context, idProductConcrete int64, idBundledProducts []int64) error
}

// AvailabilityStore reads and writes sellable quantities.
type AvailabilityStore interface {
	GetAvailability(ctx context.Context, sku string) (int, error)
	SetAvailability(ctx context.Context, sku string, quantity int) error
}

// CacheInvalidator signals that derived views of sku are stale.
type CacheInvalidator interface {
	Touch(ctx context.Context, sku string) error
}

// OrderStorage persists order lines and bundle records.
type OrderStorage interface {
	PersistItems(ctx context.Context, orderID string, items []Item) error
	// PersistBundleItems stores bundle records together with their child
	// lines. Either all of them are stored or none.
	PersistBundleItems(ctx context.Context, orderID string, bundles []BundleItem, children []Item) error
	// LoadOrder returns ErrOrderNotFound when nothing was stored for orderID.
	LoadOrder(ctx context.Context, orderID string) (*Order, error)
}
