package bundle

import (
	"errors"
	"fmt"
)

var (
	ErrNotBundle                = errors.New("product is not a bundle")
	ErrUnknownBundleDefinition  = errors.New("unknown bundle definition")
	ErrProductNotFound          = errors.New("product not found")
	ErrInsufficientAvailability = errors.New("insufficient availability")
	ErrInconsistentBundleGroup  = errors.New("inconsistent bundle group")
	ErrPriceAllocationOverflow  = errors.New("price allocation overflow")
	ErrPersistenceFailed        = errors.New("persistence failed")
	ErrInvalidBundle            = errors.New("invalid bundle composition")
	ErrOrderNotFound            = errors.New("order not found")
)

// Code classifies a bundle diagnostic.
type Code int

const (
	CodeUnknownBundleDefinition Code = iota + 1
	CodeInsufficientAvailability
	CodeInconsistentBundleGroup
	CodePriceAllocationOverflow
	CodePersistenceFailed
)

func (c Code) String() string {
	switch c {
	case CodeUnknownBundleDefinition:
		return "UNKNOWN_BUNDLE_DEFINITION"
	case CodeInsufficientAvailability:
		return "INSUFFICIENT_AVAILABILITY"
	case CodeInconsistentBundleGroup:
		return "INCONSISTENT_BUNDLE_GROUP"
	case CodePriceAllocationOverflow:
		return "PRICE_ALLOCATION_OVERFLOW"
	case CodePersistenceFailed:
		return "PERSISTENCE_FAILED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets codes travel as their label in JSON.
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Code) UnmarshalText(text []byte) error {
	for k := CodeUnknownBundleDefinition; k <= CodePersistenceFailed; k++ {
		if k.String() == string(text) {
			*c = k
			return nil
		}
	}
	return fmt.Errorf("unknown code %q", text)
}

func (c Code) sentinel() error {
	switch c {
	case CodeUnknownBundleDefinition:
		return ErrUnknownBundleDefinition
	case CodeInsufficientAvailability:
		return ErrInsufficientAvailability
	case CodeInconsistentBundleGroup:
		return ErrInconsistentBundleGroup
	case CodePriceAllocationOverflow:
		return ErrPriceAllocationOverflow
	case CodePersistenceFailed:
		return ErrPersistenceFailed
	default:
		return nil
	}
}

// Error is a structured, user-facing diagnostic attached to carts, pre-check
// responses and checkout responses.
type Error struct {
	Code      Code   `json:"code"`
	SKU       string `json:"sku,omitempty"`
	GroupKey  string `json:"group_key,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available int    `json:"available,omitempty"`
	Message   string `json:"message"`
}

func (e Error) Error() string {
	return e.Message
}

// Is matches the package sentinel for the error's code.
func (e Error) Is(target error) bool {
	return target != nil && e.Code.sentinel() == target
}

// Shortfall is the missing quantity of an availability error.
func (e Error) Shortfall() int {
	if e.Requested <= e.Available {
		return 0
	}
	return e.Requested - e.Available
}

func newUnknownDefinition(sku string) Error {
	return Error{
		Code:    CodeUnknownBundleDefinition,
		SKU:     sku,
		Message: fmt.Sprintf("Bundle %s has no bundled products", sku),
	}
}

func newInsufficientAvailability(sku string, requested, available int) Error {
	return Error{
		Code:      CodeInsufficientAvailability,
		SKU:       sku,
		Requested: requested,
		Available: available,
		Message:   fmt.Sprintf("Insufficient stock for %s: available %d, requested %d", sku, available, requested),
	}
}

func newInconsistentGroup(groupKey, sku, reason string) Error {
	return Error{
		Code:     CodeInconsistentBundleGroup,
		SKU:      sku,
		GroupKey: groupKey,
		Message:  fmt.Sprintf("Bundle group %s dropped: %s", groupKey, reason),
	}
}
