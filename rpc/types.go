package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"

	"deficore/crypto"
	"deficore/native/lending"
	"deficore/native/staking"
	"deficore/native/vesting"
)

const jsonRPCVersion = "2.0"

type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	if result == nil {
		result = true
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressString(a crypto.Address) string {
	return a.String()
}

type AmountResult struct {
	Amount string `json:"amount"`
}

func amountResult(v *big.Int) AmountResult { return AmountResult{Amount: amountString(v)} }

type HeightResult struct {
	Height uint64 `json:"height"`
	Root   string `json:"root"`
}

type VestingResult struct {
	Beneficiary string `json:"beneficiary"`
	Total       string `json:"total"`
	Claimed     string `json:"claimed"`
	Start       uint64 `json:"start"`
	Cliff       uint64 `json:"cliff"`
	End         uint64 `json:"end"`
}

func vestingResult(s *vesting.Schedule) *VestingResult {
	if s == nil {
		return nil
	}
	return &VestingResult{
		Beneficiary: addressString(s.Beneficiary),
		Total:       amountString(s.Total),
		Claimed:     amountString(s.Claimed),
		Start:       s.Start,
		Cliff:       s.Cliff,
		End:         s.End,
	}
}

type StakingPoolResult struct {
	StakedAsset      string `json:"stakedAsset"`
	RewardAsset      string `json:"rewardAsset"`
	RewardRate       uint64 `json:"rewardRate"`
	TotalStaked      string `json:"totalStaked"`
	MinStakeDuration uint64 `json:"minStakeDuration"`
}

func stakingPoolResult(p *staking.PoolInfo) *StakingPoolResult {
	if p == nil {
		return nil
	}
	return &StakingPoolResult{
		StakedAsset:      addressString(p.StakedAsset),
		RewardAsset:      addressString(p.RewardAsset),
		RewardRate:       p.RewardRate,
		TotalStaked:      amountString(p.TotalStaked),
		MinStakeDuration: p.MinStakeDuration,
	}
}

type StakeResult struct {
	Amount          string `json:"amount"`
	SinceHeight     uint64 `json:"sinceHeight"`
	LastClaimHeight uint64 `json:"lastClaimHeight"`
}

func stakeResult(s *staking.StakeInfo) *StakeResult {
	if s == nil {
		return nil
	}
	return &StakeResult{Amount: amountString(s.Amount), SinceHeight: s.SinceHeight, LastClaimHeight: s.LastClaimHeight}
}

type LendingPoolResult struct {
	TotalSupplied    string `json:"totalSupplied"`
	TotalBorrowed    string `json:"totalBorrowed"`
	SupplyRate       uint64 `json:"supplyRate"`
	BorrowRate       uint64 `json:"borrowRate"`
	UtilizationRate  uint64 `json:"utilizationRate"`
	ReserveFactor    uint64 `json:"reserveFactor"`
	LastUpdateHeight uint64 `json:"lastUpdateHeight"`
	CollateralFactor uint64 `json:"collateralFactor"`
}

func lendingPoolResult(p *lending.Pool) *LendingPoolResult {
	if p == nil {
		return nil
	}
	return &LendingPoolResult{
		TotalSupplied:    amountString(p.TotalSupplied),
		TotalBorrowed:    amountString(p.TotalBorrowed),
		SupplyRate:       p.SupplyRate,
		BorrowRate:       p.BorrowRate,
		UtilizationRate:  p.UtilizationRate,
		ReserveFactor:    p.ReserveFactor,
		LastUpdateHeight: p.LastUpdateHeight,
		CollateralFactor: p.CollateralFactor,
	}
}

type SupplyResult struct {
	Amount           string `json:"amount"`
	LastUpdateHeight uint64 `json:"lastUpdateHeight"`
	AccruedInterest  string `json:"accruedInterest"`
}

func supplyResult(s *lending.UserSupply) *SupplyResult {
	if s == nil {
		return nil
	}
	return &SupplyResult{Amount: amountString(s.Amount), LastUpdateHeight: s.LastUpdateHeight, AccruedInterest: amountString(s.AccruedInterest)}
}

type BorrowResult struct {
	Amount           string `json:"amount"`
	LastUpdateHeight uint64 `json:"lastUpdateHeight"`
	AccruedInterest  string `json:"accruedInterest"`
	Collateral       string `json:"collateral"`
}

func borrowResult(b *lending.UserBorrow) *BorrowResult {
	if b == nil {
		return nil
	}
	return &BorrowResult{
		Amount:           amountString(b.Amount),
		LastUpdateHeight: b.LastUpdateHeight,
		AccruedInterest:  amountString(b.AccruedInterest),
		Collateral:       amountString(b.Collateral),
	}
}

type PositionResult struct {
	Supplied     string `json:"supplied"`
	Borrowed     string `json:"borrowed"`
	Collateral   string `json:"collateral"`
	HealthFactor string `json:"healthFactor"`
}

func positionResult(p *lending.PositionSummary) *PositionResult {
	if p == nil {
		return nil
	}
	return &PositionResult{
		Supplied:     amountString(p.Supplied),
		Borrowed:     amountString(p.Borrowed),
		Collateral:   amountString(p.Collateral),
		HealthFactor: amountString(p.HealthFactor),
	}
}

type RiskResult struct {
	TotalValueLocked string `json:"totalValueLocked"`
	TotalDebt        string `json:"totalDebt"`
	UtilizationRate  uint64 `json:"utilizationRate"`
	RiskScore        uint64 `json:"riskScore"`
}

func riskResult(m *lending.RiskMetrics) *RiskResult {
	if m == nil {
		return nil
	}
	return &RiskResult{
		TotalValueLocked: amountString(m.TotalValueLocked),
		TotalDebt:        amountString(m.TotalDebt),
		UtilizationRate:  m.UtilizationRate,
		RiskScore:        m.RiskScore,
	}
}

type LiquidationResult struct {
	Repaid string `json:"repaid"`
	Seized string `json:"seized"`
}

type BatchFailureResult struct {
	Borrower string `json:"borrower"`
	Error    string `json:"error"`
}

type BatchLiquidationResult struct {
	Liquidated  []string             `json:"liquidated"`
	Skipped     []string             `json:"skipped"`
	Failed      []BatchFailureResult `json:"failed"`
	TotalRepaid string               `json:"totalRepaid"`
}

func addressStrings(in []crypto.Address) []string {
	out := make([]string, 0, len(in))
	for _, addr := range in {
		out = append(out, addr.String())
	}
	return out
}

func batchResult(b *lending.BatchResult) *BatchLiquidationResult {
	if b == nil {
		return nil
	}
	out := &BatchLiquidationResult{
		Liquidated:  addressStrings(b.Liquidated),
		Skipped:     addressStrings(b.Skipped),
		Failed:      make([]BatchFailureResult, 0, len(b.Failed)),
		TotalRepaid: amountString(b.TotalRepaid),
	}
	for _, f := range b.Failed {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		out.Failed = append(out.Failed, BatchFailureResult{Borrower: f.Borrower.String(), Error: msg})
	}
	return out
}
