package bundle

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SaveSalesOrderItems writes the quote's standalone lines to the order created
// by checkout. Bundled lines are left to SaveSalesOrderBundleItems.
func (s *service) SaveSalesOrderItems(ctx context.Context, quote *Quote, resp *CheckoutResponse) error {
	orderID, err := savedOrderID(resp)
	if err != nil {
		return err
	}
	if quote == nil {
		return nil
	}

	var items []Item
	for _, item := range quote.Items {
		if !item.IsBundled() && item.Quantity > 0 {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "bundle.save_order_items",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.Int("item.count", len(items)),
		),
	)
	defer span.End()

	if err := s.orders.PersistItems(ctx, orderID, items); err != nil {
		span.RecordError(err)
		s.logger.Error("failed to save order items", zap.String("order_id", orderID), zap.Error(err))
		resp.addError(Error{
			Code:    CodePersistenceFailed,
			Message: fmt.Sprintf("Items for order %s could not be saved", orderID),
		})
		return fmt.Errorf("failed to persist order items: %w", err)
	}
	return nil
}

// SaveSalesOrderBundleItems writes the quote's bundle records and their
// children to the order created by checkout, keeping group keys intact so the
// order can be re-aggregated later. Records and children are stored in one
// call. Storage failures are reported on resp.
func (s *service) SaveSalesOrderBundleItems(ctx context.Context, quote *Quote, resp *CheckoutResponse) error {
	orderID, err := savedOrderID(resp)
	if err != nil {
		return err
	}
	if quote == nil || len(quote.BundleItems) == 0 {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "bundle.save_order_bundle_items",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.Int("bundle.count", len(quote.BundleItems)),
		),
	)
	defer span.End()

	index := childIndex(quote.Items)
	bundles := make([]BundleItem, 0, len(quote.BundleItems))
	var children []Item
	for _, record := range quote.BundleItems {
		positions := index[record.GroupKey]
		if len(positions) == 0 {
			continue
		}
		bundles = append(bundles, record)
		for _, p := range positions {
			children = append(children, quote.Items[p])
		}
	}
	if len(bundles) == 0 {
		return nil
	}

	if err := s.orders.PersistBundleItems(ctx, orderID, bundles, children); err != nil {
		span.RecordError(err)
		s.logger.Error("failed to save order bundle items", zap.String("order_id", orderID), zap.Error(err))
		resp.addError(Error{
			Code:    CodePersistenceFailed,
			Message: fmt.Sprintf("Bundle items for order %s could not be saved", orderID),
		})
		return fmt.Errorf("failed to persist bundle items: %w", err)
	}
	return nil
}

func savedOrderID(resp *CheckoutResponse) (string, error) {
	if resp == nil || resp.SaveOrder == nil || resp.SaveOrder.OrderID == "" {
		return "", errors.New("checkout response has no saved order")
	}
	return resp.SaveOrder.OrderID, nil
}

// FindOrder loads a stored order with its bundle prices aggregated from the
// bundled lines.
func (s *service) FindOrder(ctx context.Context, orderID string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "bundle.find_order",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer span.End()

	order, err := s.orders.LoadOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	return s.AggregateBundlePrice(ctx, order)
}

// SaveBundledProducts stores the bundle composition of product, removes the
// bundled products marked for removal and refreshes the bundle's availability.
func (s *service) SaveBundledProducts(ctx context.Context, product *ProductConcrete) (*ProductConcrete, error) {
	if product == nil || product.ProductBundle == nil {
		return product, nil
	}
	ctx, span := s.tracer.Start(ctx, "bundle.save_bundled_products",
		trace.WithAttributes(
			attribute.String("sku", product.SKU),
			attribute.Int("bundled.count", len(product.ProductBundle.BundledProducts)),
		),
	)
	defer span.End()

	id, err := s.productID(ctx, product)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	for _, bp := range product.ProductBundle.BundledProducts {
		if err := s.validateBundledProduct(ctx, product.SKU, bp); err != nil {
			return nil, err
		}
	}

	if removed := product.ProductBundle.BundledProductsToBeRemoved; len(removed) > 0 {
		if err := s.bundles.RemoveBundledProducts(ctx, id, removed); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to remove bundled products: %w", err)
		}
	}
	if err := s.bundles.SaveBundledProducts(ctx, id, product.ProductBundle.BundledProducts); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to save bundled products: %w", err)
	}

	def, err := s.catalog.GetBundleDefinition(ctx, product.SKU)
	if err != nil && !errors.Is(err, ErrUnknownBundleDefinition) {
		return nil, fmt.Errorf("failed to reload bundle definition for %s: %w", product.SKU, err)
	}
	if err != nil {
		def = Definition{SKU: product.SKU}
	}
	available, err := s.updateBundleAvailability(ctx, def)
	if err != nil {
		return nil, err
	}

	out := *product
	out.IDProductConcrete = id
	out.ProductBundle = &ProductBundle{
		BundledProducts: def.Children,
		Availability:    available,
	}
	return &out, nil
}

// productID resolves the id of product from its SKU. A caller-supplied id
// must match it.
func (s *service) productID(ctx context.Context, product *ProductConcrete) (int64, error) {
	if product.SKU == "" {
		return product.IDProductConcrete, nil
	}
	id, err := s.bundles.FindProductID(ctx, product.SKU)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve product %s: %w", product.SKU, err)
	}
	if product.IDProductConcrete != 0 && product.IDProductConcrete != id {
		return 0, fmt.Errorf("%w: product id %d does not belong to %s (id %d)",
			ErrInvalidBundle, product.IDProductConcrete, product.SKU, id)
	}
	return id, nil
}

func (s *service) validateBundledProduct(ctx context.Context, bundleSKU string, bp BundledProduct) error {
	if bp.SKU == "" {
		return fmt.Errorf("%w: bundled product sku is required", ErrInvalidBundle)
	}
	if bp.Quantity <= 0 {
		return fmt.Errorf("%w: bundled product %s: quantity must be positive", ErrInvalidBundle, bp.SKU)
	}
	if bp.SKU == bundleSKU {
		return fmt.Errorf("%w: bundle %s cannot contain itself", ErrInvalidBundle, bundleSKU)
	}

	_, err := s.catalog.GetBundleDefinition(ctx, bp.SKU)
	switch {
	case errors.Is(err, ErrNotBundle):
		return nil
	case err == nil, errors.Is(err, ErrUnknownBundleDefinition):
		return fmt.Errorf("%w: bundled product %s is itself a bundle", ErrInvalidBundle, bp.SKU)
	default:
		return fmt.Errorf("failed to check bundled product %s: %w", bp.SKU, err)
	}
}

// FindBundledProductsByIDProductConcrete lists the bundled products of a
// concrete product.
func (s *service) FindBundledProductsByIDProductConcrete(ctx context.Context, idProductConcrete int64) ([]BundledProduct, error) {
	ctx, span := s.tracer.Start(ctx, "bundle.find_bundled_products",
		trace.WithAttributes(attribute.Int64("product.id", idProductConcrete)),
	)
	defer span.End()

	products, err := s.bundles.FindBundledProducts(ctx, idProductConcrete)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to find bundled products: %w", err)
	}
	return products, nil
}

// AssignBundledProductsToProductConcrete attaches the stored bundle composition
// and availability to product. Products without bundled products are returned
// unchanged.
func (s *service) AssignBundledProductsToProductConcrete(ctx context.Context, product *ProductConcrete) (*ProductConcrete, error) {
	if product == nil {
		return nil, nil
	}

	products, err := s.FindBundledProductsByIDProductConcrete(ctx, product.IDProductConcrete)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return product, nil
	}

	available, err := s.availability.GetAvailability(ctx, product.SKU)
	if err != nil {
		return nil, fmt.Errorf("failed to get availability for %s: %w", product.SKU, err)
	}

	out := *product
	out.IDProductConcrete = product.IDProductConcrete
	out.ProductBundle = &ProductBundle{
		BundledProducts: products,
		Availability:    available,
	}
	return &out, nil
}
