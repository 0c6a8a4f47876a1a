package core

import (
	"context"
	"math/big"

	"deficore/crypto"
	"deficore/native/lending"
)

func (p *Protocol) InitializeLendingPool(ctx context.Context, caller crypto.Address, supplyRate, borrowRate, collateralFactor, reserveFactor uint64) error {
	return p.execute(ctx, "initializeLendingPool", caller, func() error {
		return p.lending.Initialize(caller, supplyRate, borrowRate, collateralFactor, reserveFactor)
	})
}

func (p *Protocol) Supply(ctx context.Context, caller crypto.Address, amount *big.Int) error {
	return p.execute(ctx, "supply", caller, func() error {
		return p.lending.Supply(caller, amount)
	})
}

// Withdraw returns the principal left in the supply position.
func (p *Protocol) Withdraw(ctx context.Context, caller crypto.Address, amount *big.Int) (*big.Int, error) {
	return invoke(ctx, p, "withdraw", caller, func() (*big.Int, error) {
		return p.lending.Withdraw(caller, amount)
	})
}

func (p *Protocol) Borrow(ctx context.Context, caller crypto.Address, amount, collateral *big.Int) error {
	return p.execute(ctx, "borrow", caller, func() error {
		return p.lending.Borrow(caller, amount, collateral)
	})
}

func (p *Protocol) Repay(ctx context.Context, caller crypto.Address, amount *big.Int) (*big.Int, error) {
	return invoke(ctx, p, "repay", caller, func() (*big.Int, error) {
		return p.lending.Repay(caller, amount)
	})
}

func (p *Protocol) AddCollateral(ctx context.Context, caller crypto.Address, amount *big.Int) error {
	return p.execute(ctx, "addCollateral", caller, func() error {
		return p.lending.AddCollateral(caller, amount)
	})
}

func (p *Protocol) RemoveCollateral(ctx context.Context, caller crypto.Address, amount *big.Int) error {
	return p.execute(ctx, "removeCollateral", caller, func() error {
		return p.lending.RemoveCollateral(caller, amount)
	})
}

func (p *Protocol) Liquidate(ctx context.Context, caller, borrower crypto.Address, repayAmount *big.Int) (*lending.LiquidationResult, error) {
	return invoke(ctx, p, "liquidate", caller, func() (*lending.LiquidationResult, error) {
		return p.lending.Liquidate(caller, borrower, repayAmount)
	})
}

// BatchLiquidate commits every target that succeeded; failed targets are
// reported in the result and leave no trace in state.
func (p *Protocol) BatchLiquidate(ctx context.Context, caller crypto.Address, targets []lending.LiquidationTarget) (*lending.BatchResult, error) {
	return invoke(ctx, p, "batchLiquidate", caller, func() (*lending.BatchResult, error) {
		return p.lending.BatchLiquidate(caller, targets)
	})
}

func (p *Protocol) UpdateLendingRates(ctx context.Context, caller crypto.Address, supplyRate, borrowRate uint64) error {
	return p.execute(ctx, "updateLendingRates", caller, func() error {
		return p.lending.UpdateRates(caller, supplyRate, borrowRate)
	})
}

func (p *Protocol) UpdateDynamicRates(ctx context.Context, caller crypto.Address) error {
	return p.execute(ctx, "updateDynamicRates", caller, func() error {
		return p.lending.UpdateDynamicRates(caller)
	})
}

func (p *Protocol) UpdateLiquidationParams(ctx context.Context, caller crypto.Address, threshold, penalty uint64) error {
	return p.execute(ctx, "updateLiquidationParams", caller, func() error {
		return p.lending.UpdateLiquidationParams(caller, threshold, penalty)
	})
}

func (p *Protocol) UpdateCollateralFactor(ctx context.Context, caller crypto.Address, factor uint64) error {
	return p.execute(ctx, "updateCollateralFactor", caller, func() error {
		return p.lending.UpdateCollateralFactor(caller, factor)
	})
}

func (p *Protocol) WithdrawReserves(ctx context.Context, caller crypto.Address, amount *big.Int) error {
	return p.execute(ctx, "withdrawReserves", caller, func() error {
		return p.lending.WithdrawReserves(caller, amount)
	})
}

func (p *Protocol) EmergencyWithdrawLendingPool(ctx context.Context, caller crypto.Address) (*big.Int, error) {
	return invoke(ctx, p, "emergencyWithdrawLendingPool", caller, func() (*big.Int, error) {
		return p.lending.EmergencyWithdraw(caller)
	})
}

// AccrueLendingInterest is permissionless; caller is recorded for tracing only.
func (p *Protocol) AccrueLendingInterest(ctx context.Context, caller crypto.Address) error {
	return p.execute(ctx, "accrueLendingInterestManual", caller, p.lending.AccrueInterest)
}

func (p *Protocol) LendingPoolInfo(ctx context.Context) (*lending.Pool, error) {
	return query(ctx, p, "getLendingPoolInfo", p.lending.PoolInfo)
}

func (p *Protocol) LiquidationParams(ctx context.Context) (lending.LiquidationParams, error) {
	return query(ctx, p, "getLiquidationParams", p.lending.LiquidationParams)
}

func (p *Protocol) UserSupplyInfo(ctx context.Context, user crypto.Address) (*lending.UserSupply, error) {
	return query(ctx, p, "getUserSupplyInfo", func() (*lending.UserSupply, error) {
		return p.lending.SupplyInfo(user)
	})
}

func (p *Protocol) UserBorrowInfo(ctx context.Context, user crypto.Address) (*lending.UserBorrow, error) {
	return query(ctx, p, "getUserBorrowInfo", func() (*lending.UserBorrow, error) {
		return p.lending.BorrowInfo(user)
	})
}

func (p *Protocol) HealthFactor(ctx context.Context, user crypto.Address) (*big.Int, error) {
	return query(ctx, p, "getUserHealthFactor", func() (*big.Int, error) {
		return p.lending.HealthFactor(user)
	})
}

func (p *Protocol) PendingSupplyInterest(ctx context.Context, user crypto.Address) (*big.Int, error) {
	return query(ctx, p, "getPendingSupplyInterest", func() (*big.Int, error) {
		return p.lending.PendingSupplyInterest(user)
	})
}

func (p *Protocol) PendingBorrowInterest(ctx context.Context, user crypto.Address) (*big.Int, error) {
	return query(ctx, p, "getPendingBorrowInterest", func() (*big.Int, error) {
		return p.lending.PendingBorrowInterest(user)
	})
}

func (p *Protocol) PositionSummary(ctx context.Context, user crypto.Address) (*lending.PositionSummary, error) {
	return query(ctx, p, "getUserPositionSummary", func() (*lending.PositionSummary, error) {
		return p.lending.PositionSummary(user)
	})
}

// RiskMetrics and FindLiquidatable are admin-only reads.
func (p *Protocol) RiskMetrics(ctx context.Context, caller crypto.Address) (*lending.RiskMetrics, error) {
	return adminQuery(ctx, p, "getProtocolRiskMetrics", caller, func() (*lending.RiskMetrics, error) {
		return p.lending.RiskMetrics(caller)
	})
}

func (p *Protocol) FindLiquidatable(ctx context.Context, caller crypto.Address, users []crypto.Address) ([]crypto.Address, error) {
	return adminQuery(ctx, p, "findLiquidatablePositions", caller, func() ([]crypto.Address, error) {
		return p.lending.FindLiquidatable(caller, users)
	})
}

func (p *Protocol) MaxBorrowable(ctx context.Context, user crypto.Address, collateral *big.Int) (*big.Int, error) {
	return query(ctx, p, "getMaxBorrowableAmount", func() (*big.Int, error) {
		return p.lending.MaxBorrowable(user, collateral)
	})
}

func (p *Protocol) AvailableLiquidity(ctx context.Context) (*big.Int, error) {
	return query(ctx, p, "getAvailableLiquidity", p.lending.AvailableLiquidity)
}
