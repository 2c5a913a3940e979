package bundle_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"productbundle/internal/bundle"
	"productbundle/internal/memstore"
)

var errStoreDown = errors.New("store down")

// newStore returns a catalog with plain products A (1), B (2), C (3) and the
// bundle SET (10) made of 1 x A and 2 x B.
func newStore() *memstore.Store {
	store := memstore.New()
	store.AddProduct(1, "A")
	store.AddProduct(2, "B")
	store.AddProduct(3, "C")
	store.AddBundle(10, "SET",
		bundle.BundledProduct{SKU: "A", Quantity: 1},
		bundle.BundledProduct{SKU: "B", Quantity: 2},
	)
	return store
}

func depsFor(t *testing.T, store *memstore.Store) bundle.Dependencies {
	return bundle.Dependencies{
		Catalog:      store,
		Bundles:      store,
		Availability: store,
		Invalidator:  store,
		Orders:       store,
		Logger:       zaptest.NewLogger(t),
	}
}

func newService(t *testing.T) (*memstore.Store, bundle.Service) {
	t.Helper()
	store := newStore()
	return store, bundle.NewService(depsFor(t, store))
}

func setStock(t *testing.T, store *memstore.Store, stock map[string]int) {
	t.Helper()
	for sku, qty := range stock {
		if err := store.SetAvailability(context.Background(), sku, qty); err != nil {
			t.Fatalf("set availability %s: %v", sku, err)
		}
	}
}

// brokenCatalog fails every catalog lookup.
type brokenCatalog struct{ *memstore.Store }

func (brokenCatalog) GetBundleDefinition(context.Context, string) (bundle.Definition, error) {
	return bundle.Definition{}, errStoreDown
}

func (brokenCatalog) FindBundlesContaining(context.Context, string) ([]bundle.Definition, error) {
	return nil, errStoreDown
}

// brokenStock fails availability reads and writes.
type brokenStock struct{ *memstore.Store }

func (brokenStock) GetAvailability(context.Context, string) (int, error) {
	return 0, errStoreDown
}

func (brokenStock) SetAvailability(context.Context, string, int) error {
	return errStoreDown
}

// brokenInvalidator fails every touch.
type brokenInvalidator struct{}

func (brokenInvalidator) Touch(context.Context, string) error {
	return errStoreDown
}

// brokenOrders fails persistence of order lines and bundle records.
type brokenOrders struct{ *memstore.Store }

func (brokenOrders) PersistItems(context.Context, string, []bundle.Item) error {
	return errStoreDown
}

func (brokenOrders) PersistBundleItems(context.Context, string, []bundle.BundleItem, []bundle.Item) error {
	return errStoreDown
}

func groupKeys(items []bundle.Item) []string {
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = item.GroupKey
	}
	return keys
}
