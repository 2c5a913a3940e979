package bundle

import (
	"strconv"
	"strings"
)

const groupKeySeparator = "#"

// BuildGroupKey returns the group key of the occurrence-th instance of a
// bundle within one cart. Occurrences start at 1.
func BuildGroupKey(bundleSKU string, occurrence int) string {
	return bundleSKU + groupKeySeparator + strconv.Itoa(occurrence)
}

// ParseGroupKey splits a key built by BuildGroupKey.
func ParseGroupKey(groupKey string) (bundleSKU string, occurrence int, ok bool) {
	i := strings.LastIndex(groupKey, groupKeySeparator)
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(groupKey[i+1:])
	if err != nil || n < 1 {
		return "", 0, false
	}
	return groupKey[:i], n, true
}

// groupKeys hands out keys that are unused within one cart. It is built per
// request so no state is shared between carts.
type groupKeys struct {
	used map[string]struct{}
	next map[string]int
}

func newGroupKeys(quote *Quote, change *CartChange) *groupKeys {
	g := &groupKeys{
		used: make(map[string]struct{}),
		next: make(map[string]int),
	}
	if quote != nil {
		g.reserveAll(quote.Items, quote.BundleItems)
	}
	if change != nil {
		g.reserveAll(change.Items, change.BundleItems)
	}
	return g
}

func (g *groupKeys) reserveAll(items []Item, bundles []BundleItem) {
	for _, b := range bundles {
		g.used[b.GroupKey] = struct{}{}
	}
	for _, item := range items {
		if item.IsBundled() {
			g.used[item.BundleItemIdentifier] = struct{}{}
		}
	}
}

func (g *groupKeys) nextFor(bundleSKU string) string {
	for {
		g.next[bundleSKU]++
		key := BuildGroupKey(bundleSKU, g.next[bundleSKU])
		if _, taken := g.used[key]; !taken {
			g.used[key] = struct{}{}
			return key
		}
	}
}
