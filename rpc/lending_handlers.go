package rpc

import (
	"context"
	"encoding/json"

	"deficore/crypto"
	"deficore/native/lending"
)

const maxLiquidationScan = 500

type initializeLendingParams struct {
	SupplyRate       uint64 `json:"supplyRate"`
	BorrowRate       uint64 `json:"borrowRate"`
	CollateralFactor uint64 `json:"collateralFactor"`
	ReserveFactor    uint64 `json:"reserveFactor"`
}

type borrowParams struct {
	Amount     string `json:"amount"`
	Collateral string `json:"collateral"`
}

type liquidateParams struct {
	Borrower    string `json:"borrower"`
	RepayAmount string `json:"repayAmount"`
}

type batchLiquidateParams struct {
	Targets []liquidateParams `json:"targets"`
}

type lendingRatesParams struct {
	SupplyRate uint64 `json:"supplyRate"`
	BorrowRate uint64 `json:"borrowRate"`
}

type liquidationParamsParams struct {
	Threshold uint64 `json:"threshold"`
	Penalty   uint64 `json:"penalty"`
}

type collateralFactorParams struct {
	CollateralFactor uint64 `json:"collateralFactor"`
}

type findLiquidatableParams struct {
	Users []string `json:"users"`
}

type maxBorrowableParams struct {
	Address    string `json:"address"`
	Collateral string `json:"collateral"`
}

func (s *Server) registerLending() {
	s.register("initializeLendingPool", method{auth: true, call: s.initializeLendingPool})
	s.register("supply", method{auth: true, call: s.supply})
	s.register("withdraw", method{auth: true, call: s.withdraw})
	s.register("borrow", method{auth: true, call: s.borrow})
	s.register("repay", method{auth: true, call: s.repay})
	s.register("addCollateral", method{auth: true, call: s.addCollateral})
	s.register("removeCollateral", method{auth: true, call: s.removeCollateral})
	s.register("liquidate", method{auth: true, call: s.liquidate})
	s.register("batchLiquidate", method{auth: true, call: s.batchLiquidate})
	s.register("updateLendingRates", method{auth: true, call: s.updateLendingRates})
	s.register("updateDynamicRates", method{auth: true, call: s.updateDynamicRates})
	s.register("updateLiquidationParams", method{auth: true, call: s.updateLiquidationParams})
	s.register("updateCollateralFactor", method{auth: true, call: s.updateCollateralFactor})
	s.register("withdrawReserves", method{auth: true, call: s.withdrawReserves})
	s.register("emergencyWithdrawLendingPool", method{auth: true, call: s.emergencyWithdrawLendingPool})
	s.register("accrueLendingInterestManual", method{auth: true, call: s.accrueLendingInterest})
	s.register("getProtocolRiskMetrics", method{auth: true, call: s.getProtocolRiskMetrics})
	s.register("findLiquidatablePositions", method{auth: true, call: s.findLiquidatablePositions})
	s.register("getLendingPoolInfo", method{call: s.getLendingPoolInfo})
	s.register("getUserSupplyInfo", method{call: s.getUserSupplyInfo})
	s.register("getUserBorrowInfo", method{call: s.getUserBorrowInfo})
	s.register("getUserHealthFactor", method{call: s.getUserHealthFactor})
	s.register("getPendingSupplyInterest", method{call: s.getPendingSupplyInterest})
	s.register("getPendingBorrowInterest", method{call: s.getPendingBorrowInterest})
	s.register("getUserPositionSummary", method{call: s.getUserPositionSummary})
	s.register("getMaxBorrowableAmount", method{call: s.getMaxBorrowableAmount})
	s.register("getAvailableLiquidity", method{call: s.getAvailableLiquidity})
	s.register("getLiquidationParams", method{call: s.getLiquidationParams})
}

func (s *Server) initializeLendingPool(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p initializeLendingParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return nil, s.protocol.InitializeLendingPool(ctx, caller, p.SupplyRate, p.BorrowRate, p.CollateralFactor, p.ReserveFactor)
}

func (s *Server) supply(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p amountParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	amount, err := p.value()
	if err != nil {
		return nil, err
	}
	return nil, s.protocol.Supply(ctx, caller, amount)
}

func (s *Server) withdraw(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p amountParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	amount, err := p.value()
	if err != nil {
		return nil, err
	}
	paid, err := s.protocol.Withdraw(ctx, caller, amount)
	if err != nil {
		return nil, err
	}
	return amountResult(paid), nil
}

func (s *Server) borrow(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p borrowParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	collateral, err := parseOptionalAmount("collateral", p.Collateral)
	if err != nil {
		return nil, err
	}
	return nil, s.protocol.Borrow(ctx, caller, amount, collateral)
}

func (s *Server) repay(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p amountParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	amount, err := p.value()
	if err != nil {
		return nil, err
	}
	repaid, err := s.protocol.Repay(ctx, caller, amount)
	if err != nil {
		return nil, err
	}
	return amountResult(repaid), nil
}

func (s *Server) addCollateral(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p amountParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	amount, err := p.value()
	if err != nil {
		return nil, err
	}
	return nil, s.protocol.AddCollateral(ctx, caller, amount)
}

func (s *Server) removeCollateral(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p amountParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	amount, err := p.value()
	if err != nil {
		return nil, err
	}
	return nil, s.protocol.RemoveCollateral(ctx, caller, amount)
}

func (p liquidateParams) target() (lending.LiquidationTarget, error) {
	borrower, err := parseAddress("borrower", p.Borrower)
	if err != nil {
		return lending.LiquidationTarget{}, err
	}
	amount, err := parseAmount("repayAmount", p.RepayAmount)
	if err != nil {
		return lending.LiquidationTarget{}, err
	}
	return lending.LiquidationTarget{Borrower: borrower, RepayAmount: amount}, nil
}

func (s *Server) liquidate(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p liquidateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	target, err := p.target()
	if err != nil {
		return nil, err
	}
	res, err := s.protocol.Liquidate(ctx, caller, target.Borrower, target.RepayAmount)
	if err != nil {
		return nil, err
	}
	return &LiquidationResult{Repaid: amountString(res.Repaid), Seized: amountString(res.Seized)}, nil
}

func (s *Server) batchLiquidate(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p batchLiquidateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	targets := make([]lending.LiquidationTarget, 0, len(p.Targets))
	for _, entry := range p.Targets {
		target, err := entry.target()
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	res, err := s.protocol.BatchLiquidate(ctx, caller, targets)
	if err != nil {
		return nil, err
	}
	return batchResult(res), nil
}

func (s *Server) updateLendingRates(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p lendingRatesParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return nil, s.protocol.UpdateLendingRates(ctx, caller, p.SupplyRate, p.BorrowRate)
}

func (s *Server) updateDynamicRates(ctx context.Context, caller crypto.Address, _ json.RawMessage) (interface{}, error) {
	return nil, s.protocol.UpdateDynamicRates(ctx, caller)
}

func (s *Server) updateLiquidationParams(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p liquidationParamsParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return nil, s.protocol.UpdateLiquidationParams(ctx, caller, p.Threshold, p.Penalty)
}

func (s *Server) updateCollateralFactor(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p collateralFactorParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return nil, s.protocol.UpdateCollateralFactor(ctx, caller, p.CollateralFactor)
}

func (s *Server) withdrawReserves(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p amountParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	amount, err := p.value()
	if err != nil {
		return nil, err
	}
	return nil, s.protocol.WithdrawReserves(ctx, caller, amount)
}

func (s *Server) emergencyWithdrawLendingPool(ctx context.Context, caller crypto.Address, _ json.RawMessage) (interface{}, error) {
	drained, err := s.protocol.EmergencyWithdrawLendingPool(ctx, caller)
	if err != nil {
		return nil, err
	}
	return amountResult(drained), nil
}

func (s *Server) accrueLendingInterest(ctx context.Context, caller crypto.Address, _ json.RawMessage) (interface{}, error) {
	return nil, s.protocol.AccrueLendingInterest(ctx, caller)
}

func (s *Server) getProtocolRiskMetrics(ctx context.Context, caller crypto.Address, _ json.RawMessage) (interface{}, error) {
	metrics, err := s.protocol.RiskMetrics(ctx, caller)
	if err != nil {
		return nil, err
	}
	return riskResult(metrics), nil
}

func (s *Server) findLiquidatablePositions(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p findLiquidatableParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if len(p.Users) > maxLiquidationScan {
		return nil, invalidParams("too many users")
	}
	var users []crypto.Address
	for _, entry := range p.Users {
		addr, err := parseAddress("users", entry)
		if err != nil {
			return nil, err
		}
		users = append(users, addr)
	}
	found, err := s.protocol.FindLiquidatable(ctx, caller, users)
	if err != nil {
		return nil, err
	}
	return addressStrings(found), nil
}

func (s *Server) getLendingPoolInfo(ctx context.Context, _ crypto.Address, _ json.RawMessage) (interface{}, error) {
	pool, err := s.protocol.LendingPoolInfo(ctx)
	if err != nil {
		return nil, err
	}
	return lendingPoolResult(pool), nil
}

func (s *Server) getLiquidationParams(ctx context.Context, _ crypto.Address, _ json.RawMessage) (interface{}, error) {
	params, err := s.protocol.LiquidationParams(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]uint64{"threshold": params.Threshold, "penalty": params.Penalty}, nil
}

func (s *Server) getUserSupplyInfo(ctx context.Context, _ crypto.Address, raw json.RawMessage) (interface{}, error) {
	addr, err := decodeAccount(raw)
	if err != nil {
		return nil, err
	}
	info, err := s.protocol.UserSupplyInfo(ctx, addr)
	if err != nil {
		return nil, err
	}
	return supplyResult(info), nil
}

func (s *Server) getUserBorrowInfo(ctx context.Context, _ crypto.Address, raw json.RawMessage) (interface{}, error) {
	addr, err := decodeAccount(raw)
	if err != nil {
		return nil, err
	}
	info, err := s.protocol.UserBorrowInfo(ctx, addr)
	if err != nil {
		return nil, err
	}
	return borrowResult(info), nil
}

func (s *Server) getUserHealthFactor(ctx context.Context, _ crypto.Address, raw json.RawMessage) (interface{}, error) {
	addr, err := decodeAccount(raw)
	if err != nil {
		return nil, err
	}
	hf, err := s.protocol.HealthFactor(ctx, addr)
	if err != nil {
		return nil, err
	}
	return map[string]string{"healthFactor": amountString(hf)}, nil
}

func (s *Server) getPendingSupplyInterest(ctx context.Context, _ crypto.Address, raw json.RawMessage) (interface{}, error) {
	addr, err := decodeAccount(raw)
	if err != nil {
		return nil, err
	}
	pending, err := s.protocol.PendingSupplyInterest(ctx, addr)
	if err != nil {
		return nil, err
	}
	return amountResult(pending), nil
}

func (s *Server) getPendingBorrowInterest(ctx context.Context, _ crypto.Address, raw json.RawMessage) (interface{}, error) {
	addr, err := decodeAccount(raw)
	if err != nil {
		return nil, err
	}
	pending, err := s.protocol.PendingBorrowInterest(ctx, addr)
	if err != nil {
		return nil, err
	}
	return amountResult(pending), nil
}

func (s *Server) getUserPositionSummary(ctx context.Context, _ crypto.Address, raw json.RawMessage) (interface{}, error) {
	addr, err := decodeAccount(raw)
	if err != nil {
		return nil, err
	}
	summary, err := s.protocol.PositionSummary(ctx, addr)
	if err != nil {
		return nil, err
	}
	return positionResult(summary), nil
}

func (s *Server) getMaxBorrowableAmount(ctx context.Context, _ crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p maxBorrowableParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	addr, err := parseAddress("address", p.Address)
	if err != nil {
		return nil, err
	}
	collateral, err := parseOptionalAmount("collateral", p.Collateral)
	if err != nil {
		return nil, err
	}
	limit, err := s.protocol.MaxBorrowable(ctx, addr, collateral)
	if err != nil {
		return nil, err
	}
	return amountResult(limit), nil
}

func (s *Server) getAvailableLiquidity(ctx context.Context, _ crypto.Address, _ json.RawMessage) (interface{}, error) {
	liquidity, err := s.protocol.AvailableLiquidity(ctx)
	if err != nil {
		return nil, err
	}
	return amountResult(liquidity), nil
}

func decodeAccount(raw json.RawMessage) (crypto.Address, error) {
	var p accountParams
	if err := decodeParams(raw, &p); err != nil {
		return crypto.Address{}, err
	}
	return p.account()
}
