package common

import "math/big"

// BasisPoints is the denominator for every rate and factor on the protocol.
const BasisPoints = 10_000

var bigBasisPoints = big.NewInt(BasisPoints)

// BigBasisPoints returns a fresh copy of the basis point denominator.
func BigBasisPoints() *big.Int { return new(big.Int).Set(bigBasisPoints) }

// Copy returns an independent copy of v, treating nil as zero.
func Copy(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// MulDiv computes a*b/c with truncation toward zero. A zero divisor yields zero.
func MulDiv(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// ApplyBps returns amount*bps/10000.
func ApplyBps(amount *big.Int, bps uint64) *big.Int {
	return MulDiv(amount, new(big.Int).SetUint64(bps), bigBasisPoints)
}

// Min returns the smaller of a and b as a new value.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// SubFloor returns max(a-b, 0).
func SubFloor(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(Copy(a), Copy(b))
	if out.Sign() < 0 {
		return out.SetInt64(0)
	}
	return out
}

// RequirePositive rejects nil, zero and negative amounts.
func RequirePositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	return nil
}

// RequireNonNegative rejects nil and negative amounts.
func RequireNonNegative(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}
