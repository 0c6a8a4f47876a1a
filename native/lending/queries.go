package lending

import (
	"math/big"

	"deficore/crypto"
	nativecommon "deficore/native/common"
)

// PoolInfo returns the stored pool.
func (e *Engine) PoolInfo() (*Pool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadPool()
}

// LiquidationParams returns the active liquidation parameters.
func (e *Engine) LiquidationParams() (LiquidationParams, error) {
	if err := e.ready(); err != nil {
		return LiquidationParams{}, err
	}
	return e.loadParams()
}

// SupplyInfo returns the user's supply record, or nil.
func (e *Engine) SupplyInfo(user crypto.Address) (*UserSupply, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadSupply(user)
}

// BorrowInfo returns the user's borrow record, or nil.
func (e *Engine) BorrowInfo(user crypto.Address) (*UserBorrow, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadBorrow(user)
}

// PendingSupplyInterest returns interest not yet settled into the supply
// record, zero without one.
func (e *Engine) PendingSupplyInterest(user crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	supply, err := e.loadSupply(user)
	if err != nil {
		return nil, err
	}
	return e.pendingSupplyInterest(supply, pool), nil
}

// PendingBorrowInterest returns interest not yet settled into the borrow
// record, zero without one.
func (e *Engine) PendingBorrowInterest(user crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	borrow, err := e.loadBorrow(user)
	if err != nil {
		return nil, err
	}
	return e.pendingBorrowInterest(borrow, pool), nil
}

func (e *Engine) currentDebt(borrow *UserBorrow, pool *Pool) *big.Int {
	if borrow == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Add(borrow.Debt(), e.pendingBorrowInterest(borrow, pool))
}

func (e *Engine) healthFactorWith(pool *Pool, params LiquidationParams, user crypto.Address) (*big.Int, error) {
	borrow, err := e.loadBorrow(user)
	if err != nil {
		return nil, err
	}
	if borrow == nil {
		return new(big.Int).Set(MaxHealthFactor), nil
	}
	return healthFactor(borrow.Collateral, e.currentDebt(borrow, pool), params.Threshold), nil
}

// HealthFactor returns collateral*threshold/(debt*100) including pending
// interest. Accounts without debt report MaxHealthFactor.
func (e *Engine) HealthFactor(user crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	return e.healthFactorWith(pool, params, user)
}

// PositionSummary reports supplied balance, debt, collateral and health
// factor, pending interest included.
func (e *Engine) PositionSummary(user crypto.Address) (*PositionSummary, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	supply, err := e.loadSupply(user)
	if err != nil {
		return nil, err
	}
	borrow, err := e.loadBorrow(user)
	if err != nil {
		return nil, err
	}
	summary := &PositionSummary{
		Supplied:   big.NewInt(0),
		Borrowed:   e.currentDebt(borrow, pool),
		Collateral: big.NewInt(0),
	}
	if supply != nil {
		summary.Supplied.Add(supply.Amount, supply.AccruedInterest)
		summary.Supplied.Add(summary.Supplied, e.pendingSupplyInterest(supply, pool))
	}
	if borrow != nil {
		summary.Collateral.Set(borrow.Collateral)
	}
	summary.HealthFactor = healthFactor(summary.Collateral, summary.Borrowed, params.Threshold)
	return summary, nil
}

// RiskMetrics reports value locked, debt, utilization and a risk score. Admin
// only.
func (e *Engine) RiskMetrics(admin crypto.Address) (*RiskMetrics, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.access.RequireAdmin(admin); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	return &RiskMetrics{
		TotalValueLocked: cloneInt(pool.TotalSupplied),
		TotalDebt:        cloneInt(pool.TotalBorrowed),
		UtilizationRate:  pool.UtilizationRate,
		RiskScore:        riskScore(pool.UtilizationRate),
	}, nil
}

// Borrowers returns every account that has opened a borrow position.
func (e *Engine) Borrowers() ([]crypto.Address, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var raw [][]byte
	if err := e.state.KVGetList(borrowersKey, &raw); err != nil {
		return nil, err
	}
	out := make([]crypto.Address, 0, len(raw))
	for _, b := range raw {
		addr, err := crypto.AddressFromBytes(b)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// FindLiquidatable returns the users whose health factor is below the
// liquidation line. An empty candidate list scans the borrower index. Admin
// only.
func (e *Engine) FindLiquidatable(admin crypto.Address, users []crypto.Address) ([]crypto.Address, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.access.RequireAdmin(admin); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		if users, err = e.Borrowers(); err != nil {
			return nil, err
		}
	}
	out := make([]crypto.Address, 0)
	for _, user := range users {
		hf, err := e.healthFactorWith(pool, params, user)
		if err != nil {
			return nil, err
		}
		if liquidatable(hf) {
			out = append(out, user)
		}
	}
	return out, nil
}

// MaxBorrowable returns max(collateral*CF/10000 - debt, 0) for a prospective
// collateral amount, debt including pending interest.
func (e *Engine) MaxBorrowable(user crypto.Address, collateral *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.RequireNonNegative(collateral); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	borrow, err := e.loadBorrow(user)
	if err != nil {
		return nil, err
	}
	ceiling := nativecommon.ApplyBps(collateral, pool.CollateralFactor)
	return nativecommon.SubFloor(ceiling, e.currentDebt(borrow, pool)), nil
}

// AvailableLiquidity returns supplied minus borrowed, floored at zero.
func (e *Engine) AvailableLiquidity() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	return nativecommon.SubFloor(pool.TotalSupplied, pool.TotalBorrowed), nil
}
