package types

import "fmt"

// Money is an amount in cents. Payment and contract arithmetic must be
// exact, so amounts are never represented as floats.
type Money int64

// Cents returns the raw cent value.
func (m Money) Cents() int64 {
	return int64(m)
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// String formats the amount as dollars, e.g. "1234.50" or "-12.05".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
