package bundle

// Item is a cart, quote or order line.
//
// BundleItemIdentifier is set only on items produced by exploding a bundle and
// always equals the group key of the bundle instance that owns the item.
type Item struct {
	SKU                  string `json:"sku"`
	Quantity             int    `json:"quantity"`
	UnitPrice            int64  `json:"unit_price"`
	SumPrice             int64  `json:"sum_price"`
	BundleItemIdentifier string `json:"bundle_item_identifier,omitempty"`
	GroupKey             string `json:"group_key,omitempty"`
}

// IsBundled reports whether the item belongs to a bundle instance.
func (i Item) IsBundled() bool {
	return i.BundleItemIdentifier != ""
}

// BundleItem is the bookkeeping record of one bundle instance in a cart or order.
type BundleItem struct {
	GroupKey  string `json:"group_key"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	SumPrice  int64  `json:"sum_price"`
}

// BundledProduct is one child entry of a bundle definition.
type BundledProduct struct {
	IDProductConcrete int64  `json:"id_product_concrete,omitempty"`
	SKU               string `json:"sku"`
	Quantity          int    `json:"quantity"`
}

// Definition maps a bundle SKU to its ordered children. Quantities are per
// single bundle unit.
type Definition struct {
	SKU      string           `json:"sku"`
	Children []BundledProduct `json:"children"`
}

// ChildQuantity returns the definitional quantity of sku, or 0 when sku is not
// part of the bundle.
func (d Definition) ChildQuantity(sku string) int {
	for _, c := range d.Children {
		if c.SKU == sku {
			return c.Quantity
		}
	}
	return 0
}

// Quote is the cart aggregate: items plus the bundle instances they form.
type Quote struct {
	ID          string       `json:"id,omitempty"`
	Items       []Item       `json:"items"`
	BundleItems []BundleItem `json:"bundle_items"`
	Messages    []Error      `json:"messages,omitempty"`
}

// CartChange is one batch of items being applied to a cart. Quote is the
// current cart state and is only read.
type CartChange struct {
	Quote       *Quote       `json:"quote,omitempty"`
	Items       []Item       `json:"items"`
	BundleItems []BundleItem `json:"bundle_items,omitempty"`
	Messages    []Error      `json:"messages,omitempty"`
}

// Order is a persisted order as read back for display.
type Order struct {
	ID          string       `json:"id"`
	Items       []Item       `json:"items"`
	BundleItems []BundleItem `json:"bundle_items"`
}

// CartPreCheckResponse reports availability problems for a cart change.
type CartPreCheckResponse struct {
	IsSuccess bool    `json:"is_success"`
	Errors    []Error `json:"errors"`
}

// SaveOrder identifies the order created by checkout.
type SaveOrder struct {
	OrderID string `json:"order_id"`
}

// CheckoutResponse is filled in place by the checkout hooks.
type CheckoutResponse struct {
	IsSuccess bool       `json:"is_success"`
	Errors    []Error    `json:"errors"`
	SaveOrder *SaveOrder `json:"save_order,omitempty"`
}

func (r *CheckoutResponse) addError(e Error) {
	r.Errors = append(r.Errors, e)
	r.IsSuccess = false
}

// ProductBundle holds the bundle composition of a concrete product.
type ProductBundle struct {
	BundledProducts            []BundledProduct `json:"bundled_products"`
	BundledProductsToBeRemoved []int64          `json:"bundled_products_to_be_removed,omitempty"`
	Availability               int              `json:"availability"`
}

// ProductConcrete is the catalog-side view of a sellable product.
type ProductConcrete struct {
	IDProductConcrete int64          `json:"id_product_concrete"`
	SKU               string         `json:"sku"`
	ProductBundle     *ProductBundle `json:"product_bundle,omitempty"`
}
