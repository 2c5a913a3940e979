package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestParseGroupKey(t *testing.T) {
	tests := []struct {
		key  string
		sku  string
		n    int
		isOK bool
	}{
		{"SET#1", "SET", 1, true},
		{"A#B#12", "A#B", 12, true},
		{"SET", "", 0, false},
		{"#1", "", 0, false},
		{"SET#0", "", 0, false},
		{"SET#x", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			sku, n, ok := ParseGroupKey(tt.key)
			assert.Equal(t, tt.isOK, ok)
			assert.Equal(t, tt.sku, sku)
			assert.Equal(t, tt.n, n)
		})
	}
}

func TestGroupKeyRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sku := rapid.StringMatching(`[A-Za-z0-9#_-]{1,16}`).Draw(t, "sku")
		n := rapid.IntRange(1, 1_000_000).Draw(t, "n")

		gotSKU, gotN, ok := ParseGroupKey(BuildGroupKey(sku, n))
		if !ok || gotSKU != sku || gotN != n {
			t.Fatalf("round trip of (%q, %d) gave (%q, %d, %v)", sku, n, gotSKU, gotN, ok)
		}
	})
}

func TestGroupKeysSkipReservedKeys(t *testing.T) {
	quote := &Quote{
		Items:       []Item{{SKU: "A", BundleItemIdentifier: "SET#2"}},
		BundleItems: []BundleItem{{GroupKey: "SET#1", SKU: "SET"}},
	}
	change := &CartChange{BundleItems: []BundleItem{{GroupKey: "SET#3", SKU: "SET"}}}

	keys := newGroupKeys(quote, change)
	assert.Equal(t, "SET#4", keys.nextFor("SET"))
	assert.Equal(t, "SET#5", keys.nextFor("SET"))
	assert.Equal(t, "OTHER#1", keys.nextFor("OTHER"))
}
