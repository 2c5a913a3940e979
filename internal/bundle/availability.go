package bundle

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"productbundle/internal/money"
)

// demand accumulates requested quantities per SKU in first-seen order.
type demand struct {
	skus []string
	qty  map[string]int
}

func newDemand() *demand {
	return &demand{qty: make(map[string]int)}
}

// add records quantity for sku. Totals saturate at math.MaxInt.
func (d *demand) add(sku string, quantity int) {
	current, ok := d.qty[sku]
	if !ok {
		d.skus = append(d.skus, sku)
	}
	if quantity > math.MaxInt-current {
		d.qty[sku] = math.MaxInt
		return
	}
	d.qty[sku] = current + quantity
}

func (d *demand) has(sku string) bool {
	_, ok := d.qty[sku]
	return ok
}

// scaled is quantity * per, saturated at math.MaxInt so that a line too large
// to represent is always reported short.
func scaled(quantity, per int) int {
	n, err := money.MulChecked(int64(quantity), int64(per))
	if err != nil || n > math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}

// PreCheckCartAvailability checks the items being added together with what the
// cart already holds. Bundles are checked through their bundled products, so a
// SKU requested standalone and inside a bundle draws on one supply.
func (s *service) PreCheckCartAvailability(ctx context.Context, change *CartChange) (*CartPreCheckResponse, error) {
	if change == nil {
		change = &CartChange{}
	}
	ctx, span := s.tracer.Start(ctx, "bundle.precheck_cart",
		trace.WithAttributes(attribute.Int("item.count", len(change.Items))),
	)
	defer span.End()

	d := newDemand()
	for _, item := range change.Items {
		if item.Quantity <= 0 {
			continue
		}
		if item.IsBundled() {
			d.add(item.SKU, item.Quantity)
			continue
		}

		def, err := s.catalog.GetBundleDefinition(ctx, item.SKU)
		switch {
		case err == nil && len(def.Children) > 0:
			for _, child := range def.Children {
				d.add(child.SKU, scaled(item.Quantity, child.Quantity))
			}
		case err == nil, errors.Is(err, ErrNotBundle), errors.Is(err, ErrUnknownBundleDefinition):
			d.add(item.SKU, item.Quantity)
		default:
			span.RecordError(err)
			return nil, fmt.Errorf("failed to get bundle definition for %s: %w", item.SKU, err)
		}
	}

	if change.Quote != nil {
		for _, item := range change.Quote.Items {
			if item.Quantity > 0 && d.has(item.SKU) {
				d.add(item.SKU, item.Quantity)
			}
		}
	}

	shortfalls, err := s.checkDemand(ctx, d)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return &CartPreCheckResponse{
		IsSuccess: len(shortfalls) == 0,
		Errors:    shortfalls,
	}, nil
}

// PreCheckCheckoutAvailability checks every item in the quote and writes any
// shortfall into resp. Checkout fails closed: a store error also marks the
// response unsuccessful.
func (s *service) PreCheckCheckoutAvailability(ctx context.Context, quote *Quote, resp *CheckoutResponse) error {
	if resp == nil {
		return errors.New("checkout response is required")
	}
	if quote == nil {
		quote = &Quote{}
	}
	ctx, span := s.tracer.Start(ctx, "bundle.precheck_checkout",
		trace.WithAttributes(attribute.Int("item.count", len(quote.Items))),
	)
	defer span.End()

	d := newDemand()
	for _, item := range quote.Items {
		if item.Quantity <= 0 {
			continue
		}
		d.add(item.SKU, item.Quantity)
	}

	shortfalls, err := s.checkDemand(ctx, d)
	if err != nil {
		span.RecordError(err)
		resp.IsSuccess = false
		return err
	}
	for _, e := range shortfalls {
		resp.addError(e)
	}
	return nil
}

func (s *service) checkDemand(ctx context.Context, d *demand) ([]Error, error) {
	var shortfalls []Error
	for _, sku := range d.skus {
		requested := d.qty[sku]
		if requested <= 0 {
			continue
		}

		available, err := s.availability.GetAvailability(ctx, sku)
		if err != nil {
			return nil, fmt.Errorf("failed to get availability for %s: %w", sku, err)
		}
		if requested > available {
			s.shortfall.Add(ctx, 1, metric.WithAttributes(attribute.String("sku", sku)))
			s.logger.Warn("insufficient availability",
				zap.String("sku", sku),
				zap.Int("requested", requested),
				zap.Int("available", available),
			)
			shortfalls = append(shortfalls, newInsufficientAvailability(sku, requested, available))
		}
	}
	return shortfalls, nil
}

// UpdateAffectedBundlesAvailability refreshes every bundle that contains
// concreteSKU. All bundles are attempted; failures are joined.
func (s *service) UpdateAffectedBundlesAvailability(ctx context.Context, concreteSKU string) error {
	ctx, span := s.tracer.Start(ctx, "bundle.update_affected_availability",
		trace.WithAttributes(attribute.String("sku", concreteSKU)),
	)
	defer span.End()

	defs, err := s.catalog.FindBundlesContaining(ctx, concreteSKU)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to find bundles containing %s: %w", concreteSKU, err)
	}

	var errs []error
	for _, def := range defs {
		if _, err := s.updateBundleAvailability(ctx, def); err != nil {
			errs = append(errs, err)
		}
	}
	span.SetAttributes(attribute.Int("bundle.count", len(defs)))
	return errors.Join(errs...)
}

// UpdateBundleAvailability recomputes, stores and touches the availability of
// one bundle.
func (s *service) UpdateBundleAvailability(ctx context.Context, bundleSKU string) error {
	ctx, span := s.tracer.Start(ctx, "bundle.update_availability",
		trace.WithAttributes(attribute.String("bundle.sku", bundleSKU)),
	)
	defer span.End()

	def, err := s.catalog.GetBundleDefinition(ctx, bundleSKU)
	if err != nil && !errors.Is(err, ErrUnknownBundleDefinition) {
		span.RecordError(err)
		return fmt.Errorf("failed to get bundle definition for %s: %w", bundleSKU, err)
	}
	if err != nil {
		def = Definition{SKU: bundleSKU}
	}

	_, err = s.updateBundleAvailability(ctx, def)
	return err
}

func (s *service) updateBundleAvailability(ctx context.Context, def Definition) (int, error) {
	available, err := s.bundleAvailability(ctx, def)
	if err != nil {
		return 0, err
	}

	if err := s.availability.SetAvailability(ctx, def.SKU, available); err != nil {
		return 0, fmt.Errorf("failed to set availability for %s: %w", def.SKU, err)
	}
	if err := s.invalidator.Touch(ctx, def.SKU); err != nil {
		s.logger.Warn("touch failed", zap.String("sku", def.SKU), zap.Error(err))
	}

	s.logger.Info("bundle availability updated", zap.String("sku", def.SKU), zap.Int("availability", available))
	return available, nil
}

// bundleAvailability is the minimum over children of how many whole bundle
// units each child's stock covers. A bundle without children is unavailable.
func (s *service) bundleAvailability(ctx context.Context, def Definition) (int, error) {
	if len(def.Children) == 0 {
		return 0, nil
	}

	result := -1
	for _, child := range def.Children {
		if child.Quantity <= 0 {
			return 0, nil
		}
		available, err := s.availability.GetAvailability(ctx, child.SKU)
		if err != nil {
			return 0, fmt.Errorf("failed to get availability for %s: %w", child.SKU, err)
		}
		if available < 0 {
			available = 0
		}
		units := available / child.Quantity
		if result < 0 || units < result {
			result = units
		}
	}
	return result, nil
}
