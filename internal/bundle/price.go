package bundle

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"productbundle/internal/money"
)

// allocatePrice splits the bundle unit price across children weighted by their
// quantities, then scales each share to the bundle quantity. Child SumPrice is
// authoritative; UnitPrice is SumPrice divided by the child quantity, floored.
//
// All children of one instance carry quantity = bundle quantity * definition
// quantity, so weighting by the scaled quantity gives the same split as
// weighting by the definition.
func allocatePrice(record *BundleItem, children []*Item) error {
	if record.Quantity <= 0 {
		return fmt.Errorf("%w: bundle %s has quantity %d", ErrPriceAllocationOverflow, record.GroupKey, record.Quantity)
	}

	weights := make([]int64, len(children))
	for i, c := range children {
		weights[i] = int64(c.Quantity)
	}

	shares, err := money.Allocate(record.UnitPrice, weights)
	if err != nil {
		return fmt.Errorf("%w: bundle %s: %v", ErrPriceAllocationOverflow, record.GroupKey, err)
	}

	qty := int64(record.Quantity)
	if record.SumPrice, err = money.MulChecked(record.UnitPrice, qty); err != nil {
		return fmt.Errorf("%w: bundle %s: %v", ErrPriceAllocationOverflow, record.GroupKey, err)
	}

	for i, c := range children {
		total, err := money.MulChecked(shares[i], qty)
		if err != nil {
			return fmt.Errorf("%w: bundle %s child %s: %v", ErrPriceAllocationOverflow, record.GroupKey, c.SKU, err)
		}
		c.SumPrice = total
		c.UnitPrice = 0
		if c.Quantity > 0 {
			c.UnitPrice = total / int64(c.Quantity)
		}
	}
	return nil
}

// CalculateBundlePrice re-allocates every bundle instance's price over its
// current children. Instances without children are left untouched; the next
// reconciliation removes them.
func (s *service) CalculateBundlePrice(ctx context.Context, quote *Quote) (*Quote, error) {
	out := quote.clone()
	_, span := s.tracer.Start(ctx, "bundle.calculate_price",
		trace.WithAttributes(attribute.Int("bundle.count", len(out.BundleItems))),
	)
	defer span.End()

	index := childIndex(out.Items)
	for i := range out.BundleItems {
		record := &out.BundleItems[i]
		positions := index[record.GroupKey]
		if len(positions) == 0 {
			continue
		}

		children := make([]*Item, len(positions))
		for j, p := range positions {
			children[j] = &out.Items[p]
		}
		if err := allocatePrice(record, children); err != nil {
			span.RecordError(err)
			s.logger.Error("bundle price allocation failed", zap.String("group_key", record.GroupKey), zap.Error(err))
			return nil, err
		}
	}

	return out, nil
}

// AggregateBundlePrice sums the persisted children's line totals of each bundle
// instance back onto its record, for showing the bundle as one line.
func (s *service) AggregateBundlePrice(ctx context.Context, order *Order) (*Order, error) {
	out := order.clone()
	_, span := s.tracer.Start(ctx, "bundle.aggregate_price",
		trace.WithAttributes(attribute.Int("bundle.count", len(out.BundleItems))),
	)
	defer span.End()

	index := childIndex(out.Items)
	for i := range out.BundleItems {
		record := &out.BundleItems[i]

		var sum int64
		for _, p := range index[record.GroupKey] {
			next, err := money.AddChecked(sum, out.Items[p].SumPrice)
			if err != nil {
				err = fmt.Errorf("%w: bundle %s: %v", ErrPriceAllocationOverflow, record.GroupKey, err)
				span.RecordError(err)
				return nil, err
			}
			sum = next
		}

		record.SumPrice = sum
		if record.Quantity > 0 {
			record.UnitPrice = sum / int64(record.Quantity)
		}
		s.logger.Debug("aggregated bundle price",
			zap.String("group_key", record.GroupKey),
			zap.String("sum_price", money.Format(sum)),
		)
	}

	return out, nil
}
