package lending

import (
	"math/big"
	"strconv"

	"deficore/crypto"
	nativecommon "deficore/native/common"
)

// Liquidate repays part of an unhealthy borrower's debt and seizes collateral
// plus the liquidation penalty. Repayment is capped at half the debt.
func (e *Engine) Liquidate(liquidator, borrower crypto.Address, repayAmount *big.Int) (*LiquidationResult, error) {
	if err := e.begin(liquidator); err != nil {
		return nil, err
	}
	if err := nativecommon.RequireNonNegative(repayAmount); err != nil {
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
	e.accrue(pool)
	result, err := e.liquidatePosition(pool, params, liquidator, borrower, repayAmount)
	if err != nil {
		return nil, err
	}
	if err := e.putPool(pool); err != nil {
		return nil, err
	}
	e.emitLiquidation(liquidator, borrower, result)
	return result, nil
}

func (e *Engine) emitLiquidation(liquidator, borrower crypto.Address, result *LiquidationResult) {
	e.emit(EventTypeLiquidated, liquidator, borrower, result.Repaid, map[string]string{"seized": result.Seized.String()})
}

// liquidatePosition mutates pool in memory and writes the borrower record and
// balances. The caller persists the pool and emits the event.
func (e *Engine) liquidatePosition(pool *Pool, params LiquidationParams, liquidator, borrower crypto.Address, repayAmount *big.Int) (*LiquidationResult, error) {
	position, err := e.loadBorrow(borrower)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, errNoBorrow
	}
	e.settleBorrow(position, pool)
	debt := position.Debt()
	if !liquidatable(healthFactor(position.Collateral, debt, params.Threshold)) {
		return nil, errPositionHealthy
	}
	maxRepay := new(big.Int).Quo(debt, big.NewInt(2))
	actual := nativecommon.Min(repayAmount, maxRepay)
	seize := new(big.Int).Add(actual, nativecommon.ApplyBps(actual, params.Penalty))
	if seize.Cmp(position.Collateral) > 0 {
		return nil, errSeizeExceedsCollateral
	}
	if err := e.move(liquidator, e.vault, actual); err != nil {
		return nil, err
	}
	if err := e.move(e.vault, liquidator, seize); err != nil {
		return nil, err
	}
	reduceDebt(position, actual)
	position.Collateral = new(big.Int).Sub(position.Collateral, seize)
	pool.TotalBorrowed = nativecommon.SubFloor(pool.TotalBorrowed, actual)
	if position.Debt().Sign() == 0 {
		if err := e.move(e.vault, borrower, position.Collateral); err != nil {
			return nil, err
		}
		position.Collateral = big.NewInt(0)
	}
	if err := e.putBorrow(borrower, position); err != nil {
		return nil, err
	}
	return &LiquidationResult{Repaid: actual, Seized: seize}, nil
}

// BatchLiquidate liquidates up to MaxBatchTargets positions. Healthy targets
// are skipped; a target whose liquidation fails is reverted on its own and
// reported without affecting the others.
func (e *Engine) BatchLiquidate(liquidator crypto.Address, targets []LiquidationTarget) (*BatchResult, error) {
	if err := e.begin(liquidator); err != nil {
		return nil, err
	}
	if len(targets) > MaxBatchTargets {
		return nil, errTooManyTargets
	}
	for _, target := range targets {
		if err := nativecommon.RequireNonNegative(target.RepayAmount); err != nil {
			return nil, err
		}
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	e.accrue(pool)
	if err := e.putPool(pool); err != nil {
		return nil, err
	}

	result := &BatchResult{TotalRepaid: big.NewInt(0)}
	for _, target := range targets {
		hf, err := e.healthFactorWith(pool, params, target.Borrower)
		if err != nil {
			return nil, err
		}
		if !liquidatable(hf) {
			result.Skipped = append(result.Skipped, target.Borrower)
			continue
		}
		snapshot := e.state.Snapshot()
		working := pool.Clone()
		outcome, err := e.liquidatePosition(working, params, liquidator, target.Borrower, target.RepayAmount)
		if err == nil {
			err = e.putPool(working)
		}
		if err != nil {
			if revertErr := e.state.RevertToSnapshot(snapshot); revertErr != nil {
				return nil, revertErr
			}
			result.Failed = append(result.Failed, BatchFailure{Borrower: target.Borrower, Err: err})
			continue
		}
		pool = working
		e.emitLiquidation(liquidator, target.Borrower, outcome)
		result.Liquidated = append(result.Liquidated, target.Borrower)
		result.TotalRepaid.Add(result.TotalRepaid, outcome.Repaid)
	}
	e.emit(EventTypeBatchLiquidated, liquidator, liquidator, result.TotalRepaid, map[string]string{
		"liquidated": strconv.Itoa(len(result.Liquidated)),
		"skipped":    strconv.Itoa(len(result.Skipped)),
		"failed":     strconv.Itoa(len(result.Failed)),
	})
	return result, nil
}
