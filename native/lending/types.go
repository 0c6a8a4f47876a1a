package lending

import (
	"math/big"

	"deficore/crypto"
)

// Pool captures the global accounting state of the lending market. Rates and
// factors are basis points; utilization is borrowed*10000/supplied.
type Pool struct {
	TotalSupplied    *big.Int
	TotalBorrowed    *big.Int
	SupplyRate       uint64
	BorrowRate       uint64
	UtilizationRate  uint64
	ReserveFactor    uint64
	LastUpdateHeight uint64
	CollateralFactor uint64
	// SupplyIndex and BorrowIndex accumulate rate*heights up to
	// LastUpdateHeight. Positions snapshot them when settled.
	SupplyIndex *big.Int
	BorrowIndex *big.Int
}

// LiquidationParams governs when and how positions are liquidated.
type LiquidationParams struct {
	// Threshold weights collateral in the health factor.
	Threshold uint64
	// Penalty is the bonus collateral seized on top of the repaid amount.
	Penalty uint64
}

// UserSupply is a lender's position.
type UserSupply struct {
	Amount           *big.Int
	LastUpdateHeight uint64
	AccruedInterest  *big.Int
	Index            *big.Int
}

// UserBorrow is a borrower's position together with the collateral backing
// it.
type UserBorrow struct {
	Amount           *big.Int
	LastUpdateHeight uint64
	AccruedInterest  *big.Int
	Collateral       *big.Int
	Index            *big.Int
}

// Debt returns principal plus settled interest.
func (b *UserBorrow) Debt() *big.Int {
	if b == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Add(b.Amount, b.AccruedInterest)
}

// PositionSummary aggregates an account's exposure.
type PositionSummary struct {
	Supplied     *big.Int
	Borrowed     *big.Int
	Collateral   *big.Int
	HealthFactor *big.Int
}

// RiskMetrics is the protocol-wide risk view.
type RiskMetrics struct {
	TotalValueLocked *big.Int
	TotalDebt        *big.Int
	UtilizationRate  uint64
	RiskScore        uint64
}

// LiquidationTarget names a borrower and the amount the liquidator offers to
// repay.
type LiquidationTarget struct {
	Borrower    crypto.Address
	RepayAmount *big.Int
}

// LiquidationResult reports what a single liquidation moved.
type LiquidationResult struct {
	Repaid *big.Int
	Seized *big.Int
}

// BatchFailure records a target whose liquidation was reverted.
type BatchFailure struct {
	Borrower crypto.Address
	Err      error
}

// BatchResult summarises a batch liquidation.
type BatchResult struct {
	Liquidated  []crypto.Address
	Skipped     []crypto.Address
	Failed      []BatchFailure
	TotalRepaid *big.Int
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TotalSupplied = cloneInt(p.TotalSupplied)
	clone.TotalBorrowed = cloneInt(p.TotalBorrowed)
	clone.SupplyIndex = cloneInt(p.SupplyIndex)
	clone.BorrowIndex = cloneInt(p.BorrowIndex)
	return &clone
}

func (p *Pool) ensureDefaults() {
	if p.TotalSupplied == nil {
		p.TotalSupplied = big.NewInt(0)
	}
	if p.TotalBorrowed == nil {
		p.TotalBorrowed = big.NewInt(0)
	}
	if p.SupplyIndex == nil {
		p.SupplyIndex = big.NewInt(0)
	}
	if p.BorrowIndex == nil {
		p.BorrowIndex = big.NewInt(0)
	}
}

func (s *UserSupply) ensureDefaults() {
	if s.Amount == nil {
		s.Amount = big.NewInt(0)
	}
	if s.AccruedInterest == nil {
		s.AccruedInterest = big.NewInt(0)
	}
	if s.Index == nil {
		s.Index = big.NewInt(0)
	}
}

func (b *UserBorrow) ensureDefaults() {
	if b.Amount == nil {
		b.Amount = big.NewInt(0)
	}
	if b.AccruedInterest == nil {
		b.AccruedInterest = big.NewInt(0)
	}
	if b.Collateral == nil {
		b.Collateral = big.NewInt(0)
	}
	if b.Index == nil {
		b.Index = big.NewInt(0)
	}
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
