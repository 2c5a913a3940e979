package bundle

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PostSaveCartUpdateBundles rebuilds the quote's bundle records from the items
// currently in it. A group survives only when its children match the bundle
// definition exactly, scaled by one whole bundle quantity. Groups that do not
// match are dropped together with their remaining children; records whose
// children are all gone simply disappear.
func (s *service) PostSaveCartUpdateBundles(ctx context.Context, quote *Quote) (*Quote, error) {
	out := quote.clone()
	ctx, span := s.tracer.Start(ctx, "bundle.post_save_update",
		trace.WithAttributes(
			attribute.Int("item.count", len(out.Items)),
			attribute.Int("bundle.count", len(out.BundleItems)),
		),
	)
	defer span.End()

	records := make(map[string]BundleItem, len(out.BundleItems))
	for _, b := range out.BundleItems {
		records[b.GroupKey] = b
	}

	var order []string
	groups := make(map[string][]Item)
	for _, item := range out.Items {
		if !item.IsBundled() || item.Quantity <= 0 {
			continue
		}
		if _, seen := groups[item.BundleItemIdentifier]; !seen {
			order = append(order, item.BundleItemIdentifier)
		}
		groups[item.BundleItemIdentifier] = append(groups[item.BundleItemIdentifier], item)
	}

	rebuilt := make([]BundleItem, 0, len(order))
	drop := make(map[string]struct{})
	for _, key := range order {
		record, ok := records[key]
		if !ok {
			out.Messages = s.dropGroup(ctx, out.Messages, drop, newInconsistentGroup(key, "", "no bundle record for group"))
			continue
		}

		def, err := s.catalog.GetBundleDefinition(ctx, record.SKU)
		switch {
		case errors.Is(err, ErrNotBundle), errors.Is(err, ErrUnknownBundleDefinition):
			out.Messages = s.dropGroup(ctx, out.Messages, drop, newInconsistentGroup(key, record.SKU, "no bundle definition"))
			continue
		case err != nil:
			span.RecordError(err)
			return nil, fmt.Errorf("failed to get bundle definition for %s: %w", record.SKU, err)
		}

		quantity, reason := bundleQuantity(def, groups[key])
		if reason != "" {
			out.Messages = s.dropGroup(ctx, out.Messages, drop, newInconsistentGroup(key, record.SKU, reason))
			continue
		}

		record.Quantity = quantity
		rebuilt = append(rebuilt, record)
	}

	items := make([]Item, 0, len(out.Items))
	for _, item := range out.Items {
		if item.IsBundled() {
			if _, gone := drop[item.BundleItemIdentifier]; gone || item.Quantity <= 0 {
				continue
			}
		}
		items = append(items, item)
	}

	out.Items = items
	out.BundleItems = rebuilt
	return out, nil
}

func (s *service) dropGroup(ctx context.Context, messages []Error, drop map[string]struct{}, e Error) []Error {
	drop[e.GroupKey] = struct{}{}
	s.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("bundle.sku", e.SKU)))
	s.logger.Warn("dropping inconsistent bundle group",
		zap.String("group_key", e.GroupKey),
		zap.String("sku", e.SKU),
		zap.String("reason", e.Message),
	)
	return appendMessage(messages, e)
}

// bundleQuantity derives how many bundle units the children represent. It
// returns a non-empty reason when the children are not an exact multiple of
// the definition.
func bundleQuantity(def Definition, children []Item) (int, string) {
	totals := make(map[string]int, len(children))
	for _, c := range children {
		totals[c.SKU] += c.Quantity
	}
	if len(totals) != len(def.Children) {
		return 0, "bundled products do not match definition"
	}

	quantity := 0
	for _, d := range def.Children {
		got, ok := totals[d.SKU]
		if !ok {
			return 0, fmt.Sprintf("bundled product %s is missing", d.SKU)
		}
		if d.Quantity <= 0 || got%d.Quantity != 0 {
			return 0, fmt.Sprintf("quantity %d of %s is not a multiple of %d", got, d.SKU, d.Quantity)
		}
		ratio := got / d.Quantity
		if quantity == 0 {
			quantity = ratio
		} else if ratio != quantity {
			return 0, "bundled product quantities are out of ratio"
		}
	}
	return quantity, ""
}
