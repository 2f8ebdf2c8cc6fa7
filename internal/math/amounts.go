package math

import (
	"math/big"
	"sync"
)

// Amounts are int64 fixed-point values. Oracle prices and bucket bounds use
// an 1e8 scale; collateral amounts use the asset's native scale. Intermediate
// products go through int128 (big.Int) so a*b never overflows silently.

var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0)
	int128Pool.Put(v)
}

// MulChecked returns a*b, with ok=false if the product does not fit int64.
func MulChecked(a, b int64) (int64, bool) {
	product := getInt128()
	product.Mul(big.NewInt(a), big.NewInt(b))
	ok := product.IsInt64()
	result := int64(0)
	if ok {
		result = product.Int64()
	}
	putInt128(product)
	return result, ok
}

// MulDivFloor computes a*b/den with an int128 intermediate, truncating toward
// negative infinity. den must be non-zero.
func MulDivFloor(a, b, den int64) int64 {
	num := getInt128()
	num.Mul(big.NewInt(a), big.NewInt(b))

	quo := getInt128()
	rem := getInt128()
	quo.QuoRem(num, big.NewInt(den), rem)

	result := quo.Int64()
	// QuoRem truncates toward zero; floor differs when signs disagree and
	// there is a remainder.
	if rem.Sign() != 0 && (rem.Sign() < 0) != (den < 0) {
		result--
	}

	putInt128(num)
	putInt128(quo)
	putInt128(rem)
	return result
}

// FloorBucket maps a price onto the lower bound of its half-open bucket
// [lower, lower+size). Valid for negative prices: -1 with size 500 maps to
// -500, not 0.
func FloorBucket(price, size int64) int64 {
	q := price / size
	if price%size != 0 && (price < 0) != (size < 0) {
		q--
	}
	return q * size
}

// Aligned reports whether bucket is a multiple of size.
func Aligned(bucket, size int64) bool {
	return bucket%size == 0
}

// TruncateToMultiple rounds amount down to the nearest multiple of unit.
// Used when forwarding amounts to a destination pool whose smallest
// representable quantity is unit.
func TruncateToMultiple(amount, unit int64) int64 {
	if unit <= 1 {
		return amount
	}
	return amount - amount%unit
}
