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

// ExpandBundleItems replaces every bundle item in the change with its bundled
// products. Each bundle occurrence gets a fresh group key, recorded together
// with the bundle SKU and quantity in BundleItems. Items that already belong
// to a bundle are left alone, so expanding twice is a no-op.
func (s *service) ExpandBundleItems(ctx context.Context, change *CartChange) (*CartChange, error) {
	out := change.clone()
	ctx, span := s.tracer.Start(ctx, "bundle.expand_items",
		trace.WithAttributes(attribute.Int("item.count", len(out.Items))),
	)
	defer span.End()

	keys := newGroupKeys(out.Quote, out)
	items := make([]Item, 0, len(out.Items))

	for _, item := range out.Items {
		if item.IsBundled() || item.Quantity <= 0 {
			items = append(items, item)
			continue
		}

		def, err := s.catalog.GetBundleDefinition(ctx, item.SKU)
		switch {
		case errors.Is(err, ErrNotBundle):
			items = append(items, item)
			continue
		case errors.Is(err, ErrUnknownBundleDefinition), err == nil && len(def.Children) == 0:
			s.logger.Warn("bundle has no definition, leaving it unexpanded", zap.String("sku", item.SKU))
			out.Messages = appendMessage(out.Messages, newUnknownDefinition(item.SKU))
			items = append(items, item)
			continue
		case err != nil:
			span.RecordError(err)
			return nil, fmt.Errorf("failed to get bundle definition for %s: %w", item.SKU, err)
		}

		groupKey := keys.nextFor(item.SKU)
		record, children, err := explode(def, item, groupKey)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		items = append(items, children...)
		out.BundleItems = append(out.BundleItems, record)
		s.expanded.Add(ctx, 1, metric.WithAttributes(attribute.String("bundle.sku", item.SKU)))
		s.logger.Debug("expanded bundle",
			zap.String("sku", item.SKU),
			zap.String("group_key", groupKey),
			zap.Int("quantity", item.Quantity),
			zap.Int("children", len(children)),
		)
	}

	out.Items = items
	return out, nil
}

// explode builds the bundle record and priced child items for one bundle
// occurrence.
func explode(def Definition, bundle Item, groupKey string) (BundleItem, []Item, error) {
	record := BundleItem{
		GroupKey:  groupKey,
		SKU:       bundle.SKU,
		Quantity:  bundle.Quantity,
		UnitPrice: bundle.UnitPrice,
	}

	children := make([]Item, len(def.Children))
	for i, child := range def.Children {
		quantity, err := money.MulChecked(int64(bundle.Quantity), int64(child.Quantity))
		if err != nil || quantity > math.MaxInt {
			return BundleItem{}, nil, fmt.Errorf("%w: bundle %s child %s quantity %d x %d",
				ErrPriceAllocationOverflow, groupKey, child.SKU, bundle.Quantity, child.Quantity)
		}
		children[i] = Item{
			SKU:                  child.SKU,
			Quantity:             int(quantity),
			BundleItemIdentifier: groupKey,
			GroupKey:             groupKey,
		}
	}

	ptrs := make([]*Item, len(children))
	for i := range children {
		ptrs[i] = &children[i]
	}
	if err := allocatePrice(&record, ptrs); err != nil {
		return BundleItem{}, nil, err
	}
	return record, children, nil
}

// ExpandBundleCartItemGroupKey fills in missing group keys. Bundled items take
// the key of their bundle instance; an identifier that names a bundle SKU
// instead of an instance resolves to the first instance of that SKU in the
// cart which contains the item's SKU. Standalone items are keyed by SKU so
// they never merge with the same SKU inside a bundle.
func (s *service) ExpandBundleCartItemGroupKey(ctx context.Context, change *CartChange) (*CartChange, error) {
	out := change.clone()
	_, span := s.tracer.Start(ctx, "bundle.expand_group_keys")
	defer span.End()

	var known []BundleItem
	var existing []Item
	if out.Quote != nil {
		known = append(known, out.Quote.BundleItems...)
		existing = out.Quote.Items
	}
	known = append(known, out.BundleItems...)

	for i := range out.Items {
		item := &out.Items[i]
		if item.GroupKey != "" {
			continue
		}
		if !item.IsBundled() {
			item.GroupKey = item.SKU
			continue
		}
		if key, ok := resolveInstance(item, known, existing); ok {
			item.BundleItemIdentifier = key
		}
		item.GroupKey = item.BundleItemIdentifier
	}

	return out, nil
}

func resolveInstance(item *Item, known []BundleItem, existing []Item) (string, bool) {
	for _, b := range known {
		if b.GroupKey == item.BundleItemIdentifier {
			return b.GroupKey, true
		}
	}
	if _, _, ok := ParseGroupKey(item.BundleItemIdentifier); ok {
		return "", false
	}

	for _, b := range known {
		if b.SKU != item.BundleItemIdentifier {
			continue
		}
		for _, e := range existing {
			if e.BundleItemIdentifier == b.GroupKey && e.SKU == item.SKU {
				return b.GroupKey, true
			}
		}
	}
	return "", false
}
