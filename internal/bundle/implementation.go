package bundle

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Dependencies are the collaborators the bundle service calls into.
type Dependencies struct {
	Catalog      ProductCatalog
	Bundles      BundleStore
	Availability AvailabilityStore
	Invalidator  CacheInvalidator
	Orders       OrderStorage
	Logger       *zap.Logger
}

// service implements the Service interface.
type service struct {
	catalog      ProductCatalog
	bundles      BundleStore
	availability AvailabilityStore
	invalidator  CacheInvalidator
	orders       OrderStorage
	logger       *zap.Logger
	tracer       trace.Tracer

	expanded  metric.Int64Counter
	dropped   metric.Int64Counter
	shortfall metric.Int64Counter
}

// NewService creates a new bundle service instance.
func NewService(deps Dependencies) Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := otel.Meter("productbundle/bundle")

	return &service{
		catalog:      deps.Catalog,
		bundles:      deps.Bundles,
		availability: deps.Availability,
		invalidator:  deps.Invalidator,
		orders:       deps.Orders,
		logger:       logger.Named("bundle"),
		tracer:       otel.Tracer("productbundle/bundle"),
		expanded:     newCounter(meter, "bundle.instances.expanded", "Bundle instances exploded into child items"),
		dropped:      newCounter(meter, "bundle.groups.dropped", "Bundle groups dropped during reconciliation"),
		shortfall:    newCounter(meter, "bundle.availability.shortfalls", "SKUs reported short during availability pre-checks"),
	}
}

func newCounter(m metric.Meter, name, description string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter("productbundle/bundle").Int64Counter(name)
	}
	return c
}

// appendMessage adds e unless an identical diagnostic is already present.
func appendMessage(messages []Error, e Error) []Error {
	for _, m := range messages {
		if m == e {
			return messages
		}
	}
	return append(messages, e)
}

func (q *Quote) clone() *Quote {
	if q == nil {
		return &Quote{}
	}
	return &Quote{
		ID:          q.ID,
		Items:       append([]Item(nil), q.Items...),
		BundleItems: append([]BundleItem(nil), q.BundleItems...),
		Messages:    append([]Error(nil), q.Messages...),
	}
}

func (c *CartChange) clone() *CartChange {
	if c == nil {
		return &CartChange{}
	}
	return &CartChange{
		Quote:       c.Quote,
		Items:       append([]Item(nil), c.Items...),
		BundleItems: append([]BundleItem(nil), c.BundleItems...),
		Messages:    append([]Error(nil), c.Messages...),
	}
}

func (o *Order) clone() *Order {
	if o == nil {
		return &Order{}
	}
	return &Order{
		ID:          o.ID,
		Items:       append([]Item(nil), o.Items...),
		BundleItems: append([]BundleItem(nil), o.BundleItems...),
	}
}

// childIndex maps group keys to the positions of their child items, in item
// order.
func childIndex(items []Item) map[string][]int {
	index := make(map[string][]int)
	for i, item := range items {
		if item.IsBundled() {
			index[item.BundleItemIdentifier] = append(index[item.BundleItemIdentifier], i)
		}
	}
	return index
}
