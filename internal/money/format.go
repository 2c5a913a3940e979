package money

import (
	"strconv"
	"strings"
)

// Format renders an amount in minor units as "12.50"-style major units with
// comma thousands separators, e.g. 1234550 -> "12,345.50".
func Format(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}

	major := strconv.FormatInt(amount/100, 10)
	minor := amount % 100

	var b strings.Builder
	b.Grow(len(major) + len(major)/3 + 4)
	if neg {
		b.WriteByte('-')
	}

	rem := len(major) % 3
	if rem == 0 {
		rem = 3
	}
	b.WriteString(major[:rem])
	for i := rem; i < len(major); i += 3 {
		b.WriteByte(',')
		b.WriteString(major[i : i+3])
	}

	b.WriteByte('.')
	if minor < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(minor, 10))
	return b.String()
}
