package lending

import (
	"math/big"
	"strconv"

	"deficore/crypto"
	nativecommon "deficore/native/common"
)

// adminPool authorizes admin, then loads and accrues the pool so parameter
// changes only affect future heights.
func (e *Engine) adminPool(admin crypto.Address) (*Pool, error) {
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
	e.accrue(pool)
	return pool, nil
}

// UpdateRates sets the supply and borrow rates directly.
func (e *Engine) UpdateRates(admin crypto.Address, supplyRate, borrowRate uint64) error {
	pool, err := e.adminPool(admin)
	if err != nil {
		return err
	}
	pool.SupplyRate = supplyRate
	pool.BorrowRate = borrowRate
	if err := e.putPool(pool); err != nil {
		return err
	}
	e.emit(EventTypeRatesUpdated, admin, e.vault, new(big.Int).SetUint64(borrowRate), map[string]string{
		"supplyRate": strconv.FormatUint(supplyRate, 10),
		"borrowRate": strconv.FormatUint(borrowRate, 10),
	})
	return nil
}

// UpdateDynamicRates reprices both rates from the jump-rate model at the
// current utilization.
func (e *Engine) UpdateDynamicRates(admin crypto.Address) error {
	pool, err := e.adminPool(admin)
	if err != nil {
		return err
	}
	u := utilization(pool.TotalBorrowed, pool.TotalSupplied)
	pool.BorrowRate = e.model.BorrowRate(u)
	pool.SupplyRate = e.model.SupplyRate(u, pool.ReserveFactor)
	if err := e.putPool(pool); err != nil {
		return err
	}
	e.emit(EventTypeDynamicRates, admin, e.vault, new(big.Int).SetUint64(pool.BorrowRate), map[string]string{
		"supplyRate":  strconv.FormatUint(pool.SupplyRate, 10),
		"utilization": strconv.FormatUint(u, 10),
	})
	return nil
}

// UpdateLiquidationParams replaces the liquidation threshold and penalty.
func (e *Engine) UpdateLiquidationParams(admin crypto.Address, threshold, penalty uint64) error {
	pool, err := e.adminPool(admin)
	if err != nil {
		return err
	}
	params := LiquidationParams{Threshold: threshold, Penalty: penalty}
	if err := params.Validate(); err != nil {
		return err
	}
	if err := e.putPool(pool); err != nil {
		return err
	}
	if err := e.state.KVPut(liquidationKey, &params); err != nil {
		return err
	}
	e.emit(EventTypeLiquidationParams, admin, e.vault, new(big.Int).SetUint64(threshold), map[string]string{
		"penalty": strconv.FormatUint(penalty, 10),
	})
	return nil
}

// UpdateCollateralFactor changes the loan-to-value ceiling for new debt.
func (e *Engine) UpdateCollateralFactor(admin crypto.Address, factor uint64) error {
	pool, err := e.adminPool(admin)
	if err != nil {
		return err
	}
	if factor == 0 || factor > bps {
		return errInvalidCollateralRatio
	}
	pool.CollateralFactor = factor
	if err := e.putPool(pool); err != nil {
		return err
	}
	e.emit(EventTypeCollateralFactor, admin, e.vault, new(big.Int).SetUint64(factor), nil)
	return nil
}

// reserves returns max(supplied-borrowed, 0)*reserveFactor/10000.
func reserves(pool *Pool) *big.Int {
	idle := nativecommon.SubFloor(pool.TotalSupplied, pool.TotalBorrowed)
	return nativecommon.ApplyBps(idle, pool.ReserveFactor)
}

// WithdrawReserves pays amount of protocol reserves from the vault to admin.
func (e *Engine) WithdrawReserves(admin crypto.Address, amount *big.Int) error {
	pool, err := e.adminPool(admin)
	if err != nil {
		return err
	}
	if err := nativecommon.RequireNonNegative(amount); err != nil {
		return err
	}
	if amount.Cmp(reserves(pool)) > 0 {
		return errInsufficientReserves
	}
	if err := e.move(e.vault, admin, amount); err != nil {
		return err
	}
	if err := e.putPool(pool); err != nil {
		return err
	}
	e.emit(EventTypeReservesWithdrawn, admin, admin, amount, nil)
	return nil
}

// EmergencyWithdraw sweeps the entire vault to admin and zeroes the pool
// totals. It returns the swept amount.
func (e *Engine) EmergencyWithdraw(admin crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.access.RequireAdmin(admin); err != nil {
		return nil, err
	}
	balance, err := e.state.Balance(e.vault)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return balance, nil
	}
	if err := e.move(e.vault, admin, balance); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	switch {
	case err == nil:
		pool.TotalSupplied = big.NewInt(0)
		pool.TotalBorrowed = big.NewInt(0)
		if err := e.putPool(pool); err != nil {
			return nil, err
		}
	case err != errNotInitialized:
		return nil, err
	}
	e.emit(EventTypeEmergencyWithdrawn, admin, admin, balance, nil)
	return balance, nil
}
