package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productbundle/internal/memstore"
	"productbundle/internal/postgres"
)

// setupTestDB connects to the database named by the PG* environment and
// skips the test when it is unreachable.
func setupTestDB(t testing.TB) *sql.DB {
	t.Helper()

	getenv := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getenv("PGHOST", "localhost"), getenv("PGPORT", "5432"),
		getenv("PGUSER", "user"), getenv("PGPASSWORD", "password"),
		getenv("PGDATABASE", "testdb"))

	db, err := postgres.Open(context.Background(), "postgres", connStr)
	if err != nil {
		t.Skipf("skipping: could not connect to postgres: %v", err)
	}
	if err := postgres.Migrate(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

func TestStreamIDIsStablePerSKU(t *testing.T) {
	assert.Equal(t, StreamID("SKU-A"), StreamID("SKU-A"))
	assert.NotEqual(t, StreamID("SKU-A"), StreamID("SKU-B"))
	assert.Equal(t, uuid.Version(5), StreamID("SKU-A").Version())
}

func TestIsConflict(t *testing.T) {
	assert.True(t, isConflict(&pq.Error{Code: "23505"}))
	assert.True(t, isConflict(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "40001"})))
	assert.False(t, isConflict(&pq.Error{Code: "23503"}))
	assert.False(t, isConflict(errors.New("connection reset")))
}

func TestAppendEventsRejectsStaleVersion(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewEventStore(db)
	ctx := context.Background()

	id := uuid.New()
	event := Event{EventType: "Checked", EventData: json.RawMessage(`{}`)}
	require.NoError(t, store.AppendEvents(ctx, id, "check", 0, []Event{event}))

	err := store.AppendEvents(ctx, id, "check", 0, []Event{event})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	err = store.AppendEvents(ctx, id, "check", -1, []Event{event})
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestInvalidatorAppendsTouchEvents(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewEventStore(db)
	ctx := context.Background()

	sku := "touch-" + uuid.NewString()
	inv := NewInvalidator(store)
	require.NoError(t, inv.Touch(ctx, sku))
	require.NoError(t, inv.Touch(ctx, sku))

	events, err := store.LoadEvents(ctx, StreamID(sku), 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Version)
	assert.Equal(t, 2, events[1].Version)

	var payload AvailabilityTouchedEvent
	require.NoError(t, json.Unmarshal(events[0].EventData, &payload))
	assert.Equal(t, sku, payload.SKU)
	assert.Equal(t, EventAvailabilityTouched, events[0].EventType)
}

func TestAvailabilityLogRecordsWrites(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewEventStore(db)
	ctx := context.Background()

	sku := "log-" + uuid.NewString()
	inner := memstore.New()
	log := NewAvailabilityLog(inner, store)

	require.NoError(t, log.SetAvailability(ctx, sku, 7))

	got, err := log.GetAvailability(ctx, sku)
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	events, err := store.History(ctx, sku)
	require.NoError(t, err)
	require.Len(t, events, 1)
	var payload AvailabilityUpdatedEvent
	require.NoError(t, json.Unmarshal(events[0].EventData, &payload))
	assert.Equal(t, AvailabilityUpdatedEvent{SKU: sku, Quantity: 7}, payload)
}

func BenchmarkAppendEvents(b *testing.B) {
	db := setupTestDB(b)
	defer db.Close()
	store := NewEventStore(db)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		sku := fmt.Sprintf("bench-%s", uuid.NewString())
		b.StartTimer()

		if err := NewInvalidator(store).Touch(context.Background(), sku); err != nil {
			b.Fatalf("Touch failed: %v", err)
		}
	}
}
