package bundle_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productbundle/internal/bundle"
)

func TestPreCheckCartAvailability(t *testing.T) {
	tests := []struct {
		name      string
		stock     map[string]int
		change    *bundle.CartChange
		shortSKUs []string
	}{
		{
			name:   "bundle within stock",
			stock:  map[string]int{"A": 1, "B": 2},
			change: &bundle.CartChange{Items: []bundle.Item{{SKU: "SET", Quantity: 1}}},
		},
		{
			name:      "bundle checked through its children",
			stock:     map[string]int{"A": 1, "B": 2, "SET": 100},
			change:    &bundle.CartChange{Items: []bundle.Item{{SKU: "SET", Quantity: 2}}},
			shortSKUs: []string{"A", "B"},
		},
		{
			name:  "standalone and bundled demand share supply",
			stock: map[string]int{"A": 1, "B": 2},
			change: &bundle.CartChange{Items: []bundle.Item{
				{SKU: "A", Quantity: 1},
				{SKU: "SET", Quantity: 1},
			}},
			shortSKUs: []string{"A"},
		},
		{
			name:  "negative lines do not cancel demand",
			stock: map[string]int{"A": 1, "B": 2},
			change: &bundle.CartChange{Items: []bundle.Item{
				{SKU: "A", Quantity: 5},
				{SKU: "A", Quantity: -5},
				{SKU: "SET", Quantity: 1},
			}},
			shortSKUs: []string{"A"},
		},
		{
			name:  "empty lines are skipped",
			stock: map[string]int{"A": 1, "B": 2},
			change: &bundle.CartChange{Items: []bundle.Item{
				{SKU: "C", Quantity: 0},
				{SKU: "SET", Quantity: -1},
				{SKU: "SET", Quantity: 1},
			}},
		},
		{
			name:  "quantities already in cart count",
			stock: map[string]int{"C": 2},
			change: &bundle.CartChange{
				Quote: &bundle.Quote{Items: []bundle.Item{{SKU: "C", Quantity: 2, GroupKey: "C"}}},
				Items: []bundle.Item{{SKU: "C", Quantity: 1}},
			},
			shortSKUs: []string{"C"},
		},
		{
			name:  "unrelated cart lines are ignored",
			stock: map[string]int{"C": 1},
			change: &bundle.CartChange{
				Quote: &bundle.Quote{Items: []bundle.Item{{SKU: "A", Quantity: 5, GroupKey: "A"}}},
				Items: []bundle.Item{{SKU: "C", Quantity: 1}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, svc := newService(t)
			setStock(t, store, tt.stock)

			resp, err := svc.PreCheckCartAvailability(context.Background(), tt.change)
			require.NoError(t, err)

			assert.Equal(t, len(tt.shortSKUs) == 0, resp.IsSuccess)
			var got []string
			for _, e := range resp.Errors {
				assert.Equal(t, bundle.CodeInsufficientAvailability, e.Code)
				assert.Positive(t, e.Shortfall())
				got = append(got, e.SKU)
			}
			assert.Equal(t, tt.shortSKUs, got)
		})
	}
}

func TestPreCheckCartAvailabilityReportsQuantities(t *testing.T) {
	store, svc := newService(t)
	setStock(t, store, map[string]int{"A": 1, "B": 10})

	resp, err := svc.PreCheckCartAvailability(context.Background(), &bundle.CartChange{
		Items: []bundle.Item{{SKU: "SET", Quantity: 3}},
	})
	require.NoError(t, err)

	require.Len(t, resp.Errors, 1)
	e := resp.Errors[0]
	assert.Equal(t, 3, e.Requested)
	assert.Equal(t, 1, e.Available)
	assert.Equal(t, 2, e.Shortfall())
	assert.Equal(t, "Insufficient stock for A: available 1, requested 3", e.Message)
}

func TestPreCheckCartAvailabilityJointShortfall(t *testing.T) {
	store, svc := newService(t)
	store.AddBundle(30, "TRIO", bundle.BundledProduct{SKU: "A", Quantity: 3})
	setStock(t, store, map[string]int{"A": 4})

	resp, err := svc.PreCheckCartAvailability(context.Background(), &bundle.CartChange{
		Items: []bundle.Item{
			{SKU: "A", Quantity: 2},
			{SKU: "TRIO", Quantity: 1},
		},
	})
	require.NoError(t, err)

	assert.False(t, resp.IsSuccess)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "A", resp.Errors[0].SKU)
	assert.Equal(t, 5, resp.Errors[0].Requested)
	assert.Equal(t, 1, resp.Errors[0].Shortfall())
}

func TestPreCheckCartAvailabilityOversizedBundle(t *testing.T) {
	store, svc := newService(t)
	store.AddBundle(30, "QUAD", bundle.BundledProduct{SKU: "A", Quantity: 4})
	setStock(t, store, map[string]int{"A": 4})

	resp, err := svc.PreCheckCartAvailability(context.Background(), &bundle.CartChange{
		Items: []bundle.Item{{SKU: "QUAD", Quantity: 1<<62 + 1}},
	})
	require.NoError(t, err)

	assert.False(t, resp.IsSuccess)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "A", resp.Errors[0].SKU)
	assert.Equal(t, math.MaxInt, resp.Errors[0].Requested)
	assert.Positive(t, resp.Errors[0].Shortfall())
}

func TestPreCheckCartAvailabilityStoreFailure(t *testing.T) {
	store := newStore()
	deps := depsFor(t, store)
	deps.Availability = brokenStock{store}
	svc := bundle.NewService(deps)

	_, err := svc.PreCheckCartAvailability(context.Background(), &bundle.CartChange{
		Items: []bundle.Item{{SKU: "C", Quantity: 1}},
	})
	assert.ErrorIs(t, err, errStoreDown)
}

func TestPreCheckCheckoutAvailability(t *testing.T) {
	store, svc := newService(t)
	setStock(t, store, map[string]int{"A": 1, "B": 3, "C": 0})
	quote := setQuote(1, 2)
	quote.Items = append(quote.Items, bundle.Item{SKU: "A", Quantity: 1, GroupKey: "A"})

	resp := &bundle.CheckoutResponse{IsSuccess: true}
	require.NoError(t, svc.PreCheckCheckoutAvailability(context.Background(), quote, resp))

	assert.False(t, resp.IsSuccess)
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, "C", resp.Errors[0].SKU)
	assert.Equal(t, "A", resp.Errors[1].SKU)
	assert.Equal(t, 2, resp.Errors[1].Requested)
}

func TestPreCheckCheckoutAvailabilitySucceeds(t *testing.T) {
	store, svc := newService(t)
	setStock(t, store, map[string]int{"A": 1, "B": 2, "C": 1})

	resp := &bundle.CheckoutResponse{IsSuccess: true}
	require.NoError(t, svc.PreCheckCheckoutAvailability(context.Background(), setQuote(1, 2), resp))

	assert.True(t, resp.IsSuccess)
	assert.Empty(t, resp.Errors)
}

func TestPreCheckCheckoutAvailabilityIgnoresNegativeLines(t *testing.T) {
	store, svc := newService(t)
	setStock(t, store, map[string]int{"A": 1, "B": 2, "C": 1})
	quote := setQuote(1, 2)
	quote.Items = append(quote.Items,
		bundle.Item{SKU: "A", Quantity: 3, GroupKey: "A"},
		bundle.Item{SKU: "A", Quantity: -3, GroupKey: "A"},
	)

	resp := &bundle.CheckoutResponse{IsSuccess: true}
	require.NoError(t, svc.PreCheckCheckoutAvailability(context.Background(), quote, resp))

	assert.False(t, resp.IsSuccess)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "A", resp.Errors[0].SKU)
	assert.Equal(t, 4, resp.Errors[0].Requested)
}

func TestPreCheckCheckoutAvailabilityFailsClosed(t *testing.T) {
	store := newStore()
	deps := depsFor(t, store)
	deps.Availability = brokenStock{store}
	svc := bundle.NewService(deps)

	resp := &bundle.CheckoutResponse{IsSuccess: true}
	err := svc.PreCheckCheckoutAvailability(context.Background(), setQuote(1, 2), resp)
	assert.ErrorIs(t, err, errStoreDown)
	assert.False(t, resp.IsSuccess)
}

func TestUpdateBundleAvailability(t *testing.T) {
	store, svc := newService(t)
	setStock(t, store, map[string]int{"A": 5, "B": 5})
	ctx := context.Background()

	require.NoError(t, svc.UpdateBundleAvailability(ctx, "SET"))

	got, err := store.GetAvailability(ctx, "SET")
	require.NoError(t, err)
	assert.Equal(t, 2, got)
	assert.Equal(t, []string{"SET"}, store.Touched())
}

func TestUpdateBundleAvailabilityWithoutChildren(t *testing.T) {
	store, svc := newService(t)
	store.AddBundle(11, "EMPTY")
	setStock(t, store, map[string]int{"EMPTY": 9})
	ctx := context.Background()

	require.NoError(t, svc.UpdateBundleAvailability(ctx, "EMPTY"))

	got, err := store.GetAvailability(ctx, "EMPTY")
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestUpdateBundleAvailabilityRejectsPlainProducts(t *testing.T) {
	_, svc := newService(t)

	err := svc.UpdateBundleAvailability(context.Background(), "A")
	assert.ErrorIs(t, err, bundle.ErrNotBundle)
}

func TestUpdateBundleAvailabilityIgnoresTouchFailure(t *testing.T) {
	store := newStore()
	deps := depsFor(t, store)
	deps.Invalidator = brokenInvalidator{}
	svc := bundle.NewService(deps)
	setStock(t, store, map[string]int{"A": 3, "B": 8})

	require.NoError(t, svc.UpdateBundleAvailability(context.Background(), "SET"))

	got, err := store.GetAvailability(context.Background(), "SET")
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestUpdateAffectedBundlesAvailability(t *testing.T) {
	store, svc := newService(t)
	store.AddBundle(12, "PAIR",
		bundle.BundledProduct{SKU: "B", Quantity: 1},
		bundle.BundledProduct{SKU: "C", Quantity: 1},
	)
	setStock(t, store, map[string]int{"A": 10, "B": 6, "C": 4})
	ctx := context.Background()

	require.NoError(t, svc.UpdateAffectedBundlesAvailability(ctx, "B"))

	set, _ := store.GetAvailability(ctx, "SET")
	pair, _ := store.GetAvailability(ctx, "PAIR")
	assert.Equal(t, 3, set)
	assert.Equal(t, 4, pair)
	assert.ElementsMatch(t, []string{"SET", "PAIR"}, store.Touched())
}

func TestUpdateAffectedBundlesAvailabilityNoBundles(t *testing.T) {
	store, svc := newService(t)

	require.NoError(t, svc.UpdateAffectedBundlesAvailability(context.Background(), "C"))
	assert.Empty(t, store.Touched())
}

func TestUpdateAffectedBundlesAvailabilityStoreFailure(t *testing.T) {
	store := newStore()
	deps := depsFor(t, store)
	deps.Availability = brokenStock{store}
	svc := bundle.NewService(deps)

	err := svc.UpdateAffectedBundlesAvailability(context.Background(), "A")
	assert.ErrorIs(t, err, errStoreDown)

	deps.Catalog = brokenCatalog{store}
	err = bundle.NewService(deps).UpdateAffectedBundlesAvailability(context.Background(), "A")
	assert.ErrorIs(t, err, errStoreDown)
}
