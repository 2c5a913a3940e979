// Package money holds integer minor-unit arithmetic shared by pricing code.
package money

import (
	"errors"
	"math"
	"math/bits"
)

var (
	ErrOverflow      = errors.New("amount overflows int64")
	ErrNegative      = errors.New("negative amount or weight")
	ErrNoWeights     = errors.New("no weights to allocate across")
	ErrZeroWeightSum = errors.New("weights sum to zero")
)

// Allocate splits total across weights proportionally. Every share is floored
// and the remainder goes to the first share with a non-zero weight, so the
// result always sums to total and is stable for a given weight order.
func Allocate(total int64, weights []int64) ([]int64, error) {
	if len(weights) == 0 {
		return nil, ErrNoWeights
	}
	if total < 0 {
		return nil, ErrNegative
	}

	var sum int64
	for _, w := range weights {
		if w < 0 {
			return nil, ErrNegative
		}
		next, err := AddChecked(sum, w)
		if err != nil {
			return nil, err
		}
		sum = next
	}
	if sum == 0 {
		return nil, ErrZeroWeightSum
	}

	shares := make([]int64, len(weights))
	var allocated int64
	first := -1
	for i, w := range weights {
		if w == 0 {
			continue
		}
		if first < 0 {
			first = i
		}
		shares[i] = mulDiv(total, w, sum)
		allocated += shares[i]
	}
	shares[first] += total - allocated

	return shares, nil
}

// mulDiv returns floor(a*b/c) for non-negative operands without intermediate
// overflow. The quotient fits because b <= c.
func mulDiv(a, b, c int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	q, _ := bits.Div64(hi, lo, uint64(c))
	return int64(q)
}

// MulChecked multiplies two amounts and reports int64 overflow.
func MulChecked(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a < 0 || b < 0 {
		return 0, ErrNegative
	}
	if a > math.MaxInt64/b {
		return 0, ErrOverflow
	}
	return a * b, nil
}

// AddChecked adds two non-negative amounts and reports int64 overflow.
func AddChecked(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, ErrNegative
	}
	if a > math.MaxInt64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}
