package bundle

import "context"

// Service defines the bundle operations called by the cart, checkout, order
// and product management flows.
type Service interface {
	ExpandBundleItems(ctx context.Context, change *CartChange) (*CartChange, error)
	ExpandBundleCartItemGroupKey(ctx context.Context, change *CartChange) (*CartChange, error)
	PostSaveCartUpdateBundles(ctx context.Context, quote *Quote) (*Quote, error)

	PreCheckCartAvailability(ctx context.Context, change *CartChange) (*CartPreCheckResponse, error)
	PreCheckCheckoutAvailability(ctx context.Context, quote *Quote, resp *CheckoutResponse) error

	CalculateBundlePrice(ctx context.Context, quote *Quote) (*Quote, error)
	AggregateBundlePrice(ctx context.Context, order *Order) (*Order, error)

	UpdateAffectedBundlesAvailability(ctx context.Context, concreteSKU string) error
	UpdateBundleAvailability(ctx context.Context, bundleSKU string) error

	SaveSalesOrderItems(ctx context.Context, quote *Quote, resp *CheckoutResponse) error
	SaveSalesOrderBundleItems(ctx context.Context, quote *Quote, resp *CheckoutResponse) error
	FindOrder(ctx context.Context, orderID string) (*Order, error)
	SaveBundledProducts(ctx context.Context, product *ProductConcrete) (*ProductConcrete, error)
	FindBundledProductsByIDProductConcrete(ctx context.Context, idProductConcrete int64) ([]BundledProduct, error)
	AssignBundledProductsToProductConcrete(ctx context.Context, product *ProductConcrete) (*ProductConcrete, error)
}
