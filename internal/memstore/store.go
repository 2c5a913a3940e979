// Package memstore keeps catalog, availability and order data in memory. It
// backs development mode and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"productbundle/internal/bundle"
)

type product struct {
	id       int64
	sku      string
	isBundle bool
	children []bundle.BundledProduct
}

// Store implements every bundle collaborator over maps guarded by one RWMutex.
type Store struct {
	mu           sync.RWMutex
	products     map[string]*product
	byID         map[int64]*product
	availability map[string]int
	touched      []string
	orderItems   map[string][]bundle.Item
	orderBundles map[string][]bundle.BundleItem
}

var (
	_ bundle.ProductCatalog    = (*Store)(nil)
	_ bundle.BundleStore       = (*Store)(nil)
	_ bundle.AvailabilityStore = (*Store)(nil)
	_ bundle.CacheInvalidator  = (*Store)(nil)
	_ bundle.OrderStorage      = (*Store)(nil)
)

func New() *Store {
	return &Store{
		products:     make(map[string]*product),
		byID:         make(map[int64]*product),
		availability: make(map[string]int),
		orderItems:   make(map[string][]bundle.Item),
		orderBundles: make(map[string][]bundle.BundleItem),
	}
}

// AddProduct registers a concrete product.
func (s *Store) AddProduct(id int64, sku string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &product{id: id, sku: sku}
	s.products[sku] = p
	s.byID[id] = p
}

// AddBundle registers a bundle product with its children. Children that are
// not registered yet are registered with generated ids.
func (s *Store) AddBundle(id int64, sku string, children ...bundle.BundledProduct) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &product{id: id, sku: sku, isBundle: true}
	for _, c := range children {
		child, ok := s.products[c.SKU]
		if !ok {
			child = &product{id: s.nextIDLocked(), sku: c.SKU}
			s.products[c.SKU] = child
			s.byID[child.id] = child
		}
		c.IDProductConcrete = child.id
		p.children = append(p.children, c)
	}
	s.products[sku] = p
	s.byID[id] = p
}

func (s *Store) nextIDLocked() int64 {
	var max int64
	for id := range s.byID {
		if id > max {
			max = id
		}
	}
	return max + 1
}

func (s *Store) GetBundleDefinition(ctx context.Context, sku string) (bundle.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[sku]
	if !ok || !p.isBundle {
		return bundle.Definition{}, bundle.ErrNotBundle
	}
	if len(p.children) == 0 {
		return bundle.Definition{}, bundle.ErrUnknownBundleDefinition
	}
	return bundle.Definition{SKU: sku, Children: append([]bundle.BundledProduct(nil), p.children...)}, nil
}

func (s *Store) FindBundlesContaining(ctx context.Context, sku string) ([]bundle.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var defs []bundle.Definition
	for _, p := range s.products {
		if !p.isBundle {
			continue
		}
		for _, c := range p.children {
			if c.SKU == sku {
				defs = append(defs, bundle.Definition{SKU: p.sku, Children: append([]bundle.BundledProduct(nil), p.children...)})
				break
			}
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].SKU < defs[j].SKU })
	return defs, nil
}

func (s *Store) FindProductID(ctx context.Context, sku string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[sku]
	if !ok {
		return 0, fmt.Errorf("product %s: %w", sku, bundle.ErrProductNotFound)
	}
	return p.id, nil
}

func (s *Store) FindBundledProducts(ctx context.Context, idProductConcrete int64) ([]bundle.BundledProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[idProductConcrete]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", idProductConcrete, bundle.ErrProductNotFound)
	}
	return append([]bundle.BundledProduct(nil), p.children...), nil
}

// SaveBundledProducts upserts children by SKU and marks the product a bundle.
func (s *Store) SaveBundledProducts(ctx context.Context, idProductConcrete int64, products []bundle.BundledProduct) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[idProductConcrete]
	if !ok {
		return fmt.Errorf("product %d: %w", idProductConcrete, bundle.ErrProductNotFound)
	}
	p.isBundle = true

	for _, bp := range products {
		child, ok := s.products[bp.SKU]
		if !ok {
			return fmt.Errorf("bundled product %s: %w", bp.SKU, bundle.ErrProductNotFound)
		}
		bp.IDProductConcrete = child.id

		replaced := false
		for i := range p.children {
			if p.children[i].SKU == bp.SKU {
				p.children[i] = bp
				replaced = true
				break
			}
		}
		if !replaced {
			p.children = append(p.children, bp)
		}
	}
	return nil
}

func (s *Store) RemoveBundledProducts(ctx context.Context, idProductConcrete int64, idBundledProducts []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[idProductConcrete]
	if !ok {
		return fmt.Errorf("product %d: %w", idProductConcrete, bundle.ErrProductNotFound)
	}

	remove := make(map[int64]struct{}, len(idBundledProducts))
	for _, id := range idBundledProducts {
		remove[id] = struct{}{}
	}
	kept := p.children[:0]
	for _, c := range p.children {
		if _, gone := remove[c.IDProductConcrete]; !gone {
			kept = append(kept, c)
		}
	}
	p.children = kept
	return nil
}

// GetAvailability returns 0 for unknown SKUs.
func (s *Store) GetAvailability(ctx context.Context, sku string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.availability[sku], nil
}

func (s *Store) SetAvailability(ctx context.Context, sku string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availability[sku] = quantity
	return nil
}

func (s *Store) Touch(ctx context.Context, sku string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, sku)
	return nil
}

// Touched returns the SKUs touched so far, in order.
func (s *Store) Touched() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.touched...)
}

func (s *Store) PersistItems(ctx context.Context, orderID string, items []bundle.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderItems[orderID] = append(s.orderItems[orderID], items...)
	return nil
}

func (s *Store) PersistBundleItems(ctx context.Context, orderID string, bundles []bundle.BundleItem, children []bundle.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderBundles[orderID] = append(s.orderBundles[orderID], bundles...)
	s.orderItems[orderID] = append(s.orderItems[orderID], children...)
	return nil
}

// LoadOrder reads back what checkout persisted for orderID.
func (s *Store) LoadOrder(ctx context.Context, orderID string) (*bundle.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items, bundles := s.orderItems[orderID], s.orderBundles[orderID]
	if len(items) == 0 && len(bundles) == 0 {
		return nil, fmt.Errorf("order %s: %w", orderID, bundle.ErrOrderNotFound)
	}
	return &bundle.Order{
		ID:          orderID,
		Items:       append([]bundle.Item(nil), items...),
		BundleItems: append([]bundle.BundleItem(nil), bundles...),
	}, nil
}
