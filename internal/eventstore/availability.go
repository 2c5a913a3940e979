package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"productbundle/internal/bundle"
)

const (
	availabilityAggregate = "availability"

	EventAvailabilityTouched = "AvailabilityTouched"
	EventAvailabilityUpdated = "AvailabilityUpdated"

	maxAppendAttempts = 3
)

// availabilityNamespace scopes the name-based stream ids of SKUs.
var availabilityNamespace = uuid.MustParse("5f1e3c7a-2b4d-4e8f-9a61-0c7d3b2e8f14")

// StreamID is the id of the availability stream of sku.
func StreamID(sku string) uuid.UUID {
	return uuid.NewSHA1(availabilityNamespace, []byte(sku))
}

// AvailabilityTouchedEvent tells readers that cached availability of SKU is stale.
type AvailabilityTouchedEvent struct {
	SKU string `json:"sku"`
}

// AvailabilityUpdatedEvent records a stored availability value.
type AvailabilityUpdatedEvent struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// appendToStream appends one event at the stream head, retrying when a
// concurrent writer got there first.
func (es *EventStore) appendToStream(ctx context.Context, sku, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	id := StreamID(sku)
	for attempt := 1; ; attempt++ {
		version, err := es.GetCurrentVersion(ctx, id)
		if err != nil {
			return err
		}
		event := Event{
			AggregateID:   id,
			AggregateType: availabilityAggregate,
			EventType:     eventType,
			EventData:     data,
			Metadata:      map[string]interface{}{"sku": sku},
		}
		err = es.AppendEvents(ctx, id, availabilityAggregate, version, []Event{event})
		if !errors.Is(err, ErrConcurrencyConflict) || attempt == maxAppendAttempts {
			return err
		}
	}
}

// Invalidator implements bundle.CacheInvalidator by appending a touch event to
// the SKU's availability stream.
type Invalidator struct {
	store *EventStore
}

var _ bundle.CacheInvalidator = (*Invalidator)(nil)

func NewInvalidator(store *EventStore) *Invalidator {
	return &Invalidator{store: store}
}

func (i *Invalidator) Touch(ctx context.Context, sku string) error {
	return i.store.appendToStream(ctx, sku, EventAvailabilityTouched, AvailabilityTouchedEvent{SKU: sku})
}

// AvailabilityLog records every availability write of the wrapped store as an
// event.
type AvailabilityLog struct {
	bundle.AvailabilityStore
	store *EventStore
}

var _ bundle.AvailabilityStore = (*AvailabilityLog)(nil)

func NewAvailabilityLog(inner bundle.AvailabilityStore, store *EventStore) *AvailabilityLog {
	return &AvailabilityLog{AvailabilityStore: inner, store: store}
}

func (l *AvailabilityLog) SetAvailability(ctx context.Context, sku string, quantity int) error {
	if err := l.AvailabilityStore.SetAvailability(ctx, sku, quantity); err != nil {
		return err
	}
	return l.store.appendToStream(ctx, sku, EventAvailabilityUpdated, AvailabilityUpdatedEvent{SKU: sku, Quantity: quantity})
}

// History returns the availability events recorded for sku, oldest first.
func (es *EventStore) History(ctx context.Context, sku string) ([]Event, error) {
	return es.LoadEvents(ctx, StreamID(sku), 0, 0)
}
