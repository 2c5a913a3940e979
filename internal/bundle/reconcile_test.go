package bundle_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productbundle/internal/bundle"
)

func setQuote(qtyA, qtyB int) *bundle.Quote {
	return &bundle.Quote{
		Items: []bundle.Item{
			{SKU: "C", Quantity: 1, GroupKey: "C"},
			{SKU: "A", Quantity: qtyA, BundleItemIdentifier: "SET#1", GroupKey: "SET#1"},
			{SKU: "B", Quantity: qtyB, BundleItemIdentifier: "SET#1", GroupKey: "SET#1"},
		},
		BundleItems: []bundle.BundleItem{{GroupKey: "SET#1", SKU: "SET", Quantity: 1, UnitPrice: 150, SumPrice: 150}},
	}
}

func TestPostSaveCartUpdateBundlesRescalesQuantity(t *testing.T) {
	_, svc := newService(t)

	out, err := svc.PostSaveCartUpdateBundles(context.Background(), setQuote(3, 6))
	require.NoError(t, err)

	require.Len(t, out.BundleItems, 1)
	assert.Equal(t, 3, out.BundleItems[0].Quantity)
	assert.Len(t, out.Items, 3)
	assert.Empty(t, out.Messages)
}

func TestPostSaveCartUpdateBundlesDropsInconsistentGroups(t *testing.T) {
	tests := []struct {
		name  string
		quote *bundle.Quote
	}{
		{"child removed", func() *bundle.Quote {
			q := setQuote(1, 2)
			q.Items = q.Items[:2]
			return q
		}()},
		{"ratio mismatch", setQuote(1, 4)},
		{"not a multiple", setQuote(1, 3)},
		{"foreign child", func() *bundle.Quote {
			q := setQuote(1, 2)
			q.Items = append(q.Items, bundle.Item{SKU: "C", Quantity: 1, BundleItemIdentifier: "SET#1", GroupKey: "SET#1"})
			return q
		}()},
		{"no bundle record", func() *bundle.Quote {
			q := setQuote(1, 2)
			q.BundleItems = nil
			return q
		}()},
		{"definition gone", func() *bundle.Quote {
			q := setQuote(1, 2)
			q.BundleItems[0].SKU = "C"
			return q
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, svc := newService(t)

			out, err := svc.PostSaveCartUpdateBundles(context.Background(), tt.quote)
			require.NoError(t, err)

			assert.Empty(t, out.BundleItems)
			assert.Equal(t, []bundle.Item{{SKU: "C", Quantity: 1, GroupKey: "C"}}, out.Items, "standalone items survive")
			require.Len(t, out.Messages, 1)
			assert.Equal(t, bundle.CodeInconsistentBundleGroup, out.Messages[0].Code)
			assert.Equal(t, "SET#1", out.Messages[0].GroupKey)
			assert.ErrorIs(t, out.Messages[0], bundle.ErrInconsistentBundleGroup)
		})
	}
}

func TestPostSaveCartUpdateBundlesForgetsEmptyGroups(t *testing.T) {
	_, svc := newService(t)

	quote := setQuote(1, 2)
	quote.Items = quote.Items[:1]
	out, err := svc.PostSaveCartUpdateBundles(context.Background(), quote)
	require.NoError(t, err)

	assert.Empty(t, out.BundleItems)
	assert.Empty(t, out.Messages)
	assert.Len(t, out.Items, 1)
}

func TestPostSaveCartUpdateBundlesRemovesZeroQuantityChildren(t *testing.T) {
	_, svc := newService(t)

	out, err := svc.PostSaveCartUpdateBundles(context.Background(), setQuote(0, 0))
	require.NoError(t, err)

	assert.Empty(t, out.BundleItems)
	assert.Empty(t, out.Messages)
	assert.Len(t, out.Items, 1)
}

func TestPostSaveCartUpdateBundlesKeepsOtherGroups(t *testing.T) {
	_, svc := newService(t)

	quote := setQuote(1, 3)
	quote.Items = append(quote.Items,
		bundle.Item{SKU: "A", Quantity: 2, BundleItemIdentifier: "SET#2", GroupKey: "SET#2"},
		bundle.Item{SKU: "B", Quantity: 4, BundleItemIdentifier: "SET#2", GroupKey: "SET#2"},
	)
	quote.BundleItems = append(quote.BundleItems, bundle.BundleItem{GroupKey: "SET#2", SKU: "SET", Quantity: 2, UnitPrice: 150})

	out, err := svc.PostSaveCartUpdateBundles(context.Background(), quote)
	require.NoError(t, err)

	require.Len(t, out.BundleItems, 1)
	assert.Equal(t, "SET#2", out.BundleItems[0].GroupKey)
	assert.Equal(t, []string{"C", "SET#2", "SET#2"}, groupKeys(out.Items))
}

func TestPostSaveCartUpdateBundlesCatalogFailure(t *testing.T) {
	store := newStore()
	deps := depsFor(t, store)
	deps.Catalog = brokenCatalog{store}
	svc := bundle.NewService(deps)

	_, err := svc.PostSaveCartUpdateBundles(context.Background(), setQuote(1, 2))
	assert.ErrorIs(t, err, errStoreDown)
}
