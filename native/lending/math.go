package lending

import (
	"math/big"

	nativecommon "deficore/native/common"
)

// HeightsPerYear is one year of logical heights at the nominal five second
// tick.
const HeightsPerYear = 365 * 24 * 60 * 12

// HealthFactorScale is the value below which a position may be liquidated.
const HealthFactorScale = 100

var (
	basisPoints = big.NewInt(nativecommon.BasisPoints)
	yearDivisor = new(big.Int).Mul(basisPoints, big.NewInt(HeightsPerYear))

	// MaxHealthFactor is reported for accounts without debt.
	MaxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
)

// simpleInterest returns principal*rateBps*elapsed/(10000*HeightsPerYear),
// truncating.
func simpleInterest(principal *big.Int, rateBps, elapsed uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 || rateBps == 0 || elapsed == 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Int).Mul(principal, new(big.Int).SetUint64(rateBps))
	scaled.Mul(scaled, new(big.Int).SetUint64(elapsed))
	return scaled.Quo(scaled, yearDivisor)
}

// advanceIndex returns index + rateBps*elapsed.
func advanceIndex(index *big.Int, rateBps, elapsed uint64) *big.Int {
	next := nativecommon.Copy(index)
	if rateBps == 0 || elapsed == 0 {
		return next
	}
	step := new(big.Int).SetUint64(rateBps)
	step.Mul(step, new(big.Int).SetUint64(elapsed))
	return next.Add(next, step)
}

// indexedInterest is simpleInterest over the index growth since snapshot, so
// each height is charged at the rate in force for it.
func indexedInterest(principal, index, snapshot *big.Int) *big.Int {
	if principal == nil || principal.Sign() <= 0 || index == nil {
		return big.NewInt(0)
	}
	growth := new(big.Int).Sub(index, nativecommon.Copy(snapshot))
	if growth.Sign() <= 0 {
		return big.NewInt(0)
	}
	growth.Mul(growth, principal)
	return growth.Quo(growth, yearDivisor)
}

func elapsedSince(last, now uint64) uint64 {
	if now <= last {
		return 0
	}
	return now - last
}

// utilization returns borrowed*10000/supplied, zero with no supply.
func utilization(borrowed, supplied *big.Int) uint64 {
	if supplied == nil || supplied.Sign() == 0 || borrowed == nil || borrowed.Sign() <= 0 {
		return 0
	}
	ratio := nativecommon.MulDiv(borrowed, basisPoints, supplied)
	if !ratio.IsUint64() {
		return ^uint64(0)
	}
	return ratio.Uint64()
}

// healthFactor returns collateral*threshold/(debt*100). Zero debt yields
// MaxHealthFactor.
func healthFactor(collateral, debt *big.Int, threshold uint64) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Set(MaxHealthFactor)
	}
	numerator := new(big.Int).Mul(nativecommon.Copy(collateral), new(big.Int).SetUint64(threshold))
	denominator := new(big.Int).Mul(debt, big.NewInt(HealthFactorScale))
	return numerator.Quo(numerator, denominator)
}

func liquidatable(hf *big.Int) bool {
	return hf.Cmp(big.NewInt(HealthFactorScale)) < 0
}

// requiredCollateral is debt*10000/factor, truncated.
func requiredCollateral(debt *big.Int, factor uint64) *big.Int {
	return nativecommon.MulDiv(nativecommon.Copy(debt), basisPoints, new(big.Int).SetUint64(factor))
}

// collateralCovers reports whether collateral meets requiredCollateral, the
// post-operation solvency condition. A zero factor only admits zero debt.
func collateralCovers(collateral, debt *big.Int, factor uint64) bool {
	if factor == 0 {
		return debt == nil || debt.Sign() <= 0
	}
	return nativecommon.Copy(collateral).Cmp(requiredCollateral(debt, factor)) >= 0
}
