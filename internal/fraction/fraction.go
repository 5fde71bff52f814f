// Package fraction provides the exact integer arithmetic used to split
// order balances and rewards proportionally. No floating point is
// involved, so results are identical on every host.
package fraction

import (
	"fmt"
	"math/big"

	"github.com/pkg/errors"
)

// FloorScale returns floor(filled * reward / total).
//
// The product is computed on widened integers so that it cannot
// overflow. total must be positive; FloorScale panics otherwise, callers
// are expected to have rejected empty orders before scaling.
func FloorScale(filled, total, reward int64) int64 {
	if total <= 0 {
		panic(fmt.Sprintf("fraction: non-positive total %d", total))
	}
	num := new(big.Int).Mul(big.NewInt(filled), big.NewInt(reward))
	// Div rounds towards negative infinity for a positive divisor.
	q := new(big.Int).Div(num, big.NewInt(total))
	return q.Int64()
}

// Ratio is an exact rational number Num/Den.
type Ratio struct {
	Num int64 `json:"num" mapstructure:"num"`
	Den int64 `json:"den" mapstructure:"den"`
}

// MakeRatio creates a Ratio from a numerator and a denominator.
func MakeRatio(num, den int64) Ratio {
	return Ratio{Num: num, Den: den}
}

// Valid reports whether the denominator is positive.
func (r Ratio) Valid() bool {
	return r.Den > 0
}

// LessOrEqual reports whether r <= o. Both ratios must be valid; the
// comparison is done by cross-multiplication.
func (r Ratio) LessOrEqual(o Ratio) bool {
	lhs := new(big.Int).Mul(big.NewInt(r.Num), big.NewInt(o.Den))
	rhs := new(big.Int).Mul(big.NewInt(o.Num), big.NewInt(r.Den))
	return lhs.Cmp(rhs) <= 0
}

// Equal reports whether both ratios denote the same number.
func (r Ratio) Equal(o Ratio) bool {
	return r.LessOrEqual(o) && o.LessOrEqual(r)
}

// Rat converts the ratio into a big.Rat. It fails for invalid ratios.
func (r Ratio) Rat() (*big.Rat, error) {
	if !r.Valid() {
		return nil, errors.Errorf("invalid ratio %v", r)
	}
	return big.NewRat(r.Num, r.Den), nil
}

func (r Ratio) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}
