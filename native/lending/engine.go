package lending

import (
	"math/big"

	"deficore/core/events"
	"deficore/crypto"
	nativecommon "deficore/native/common"
)

var (
	errNilState               = nativecommon.NewError(nativecommon.KindPrecondition, "lending engine: state not configured")
	errNotInitialized         = nativecommon.NewError(nativecommon.KindPrecondition, "lending engine: pool not initialized")
	errAlreadyInitialized     = nativecommon.NewError(nativecommon.KindPrecondition, "lending engine: pool already initialized")
	errNoSupply               = nativecommon.NewError(nativecommon.KindPrecondition, "lending engine: no supply position")
	errNoBorrow               = nativecommon.NewError(nativecommon.KindPrecondition, "lending engine: no borrow position")
	errInvalidCollateralRatio = nativecommon.NewError(nativecommon.KindValidation, "lending engine: collateral factor out of range")
	errInvalidReserveFactor   = nativecommon.NewError(nativecommon.KindValidation, "lending engine: reserve factor out of range")
	errInvalidThreshold       = nativecommon.NewError(nativecommon.KindValidation, "lending engine: liquidation threshold out of range")
	errInvalidPenalty         = nativecommon.NewError(nativecommon.KindValidation, "lending engine: liquidation penalty out of range")
	errTooManyTargets         = nativecommon.NewError(nativecommon.KindValidation, "lending engine: too many liquidation targets")
	errInsufficientSupply     = nativecommon.NewError(nativecommon.KindEconomic, "lending engine: amount exceeds supplied balance")
	errInsufficientLiquidity  = nativecommon.NewError(nativecommon.KindEconomic, "lending engine: insufficient pool liquidity")
	errInsufficientCollateral = nativecommon.NewError(nativecommon.KindEconomic, "lending engine: insufficient collateral")
	errExceedsCollateral      = nativecommon.NewError(nativecommon.KindEconomic, "lending engine: amount exceeds deposited collateral")
	errUnsafeWithdrawal       = nativecommon.NewError(nativecommon.KindEconomic, "lending engine: removing collateral would make position unsafe")
	errPositionHealthy        = nativecommon.NewError(nativecommon.KindEconomic, "lending engine: position is healthy")
	errSeizeExceedsCollateral = nativecommon.NewError(nativecommon.KindEconomic, "lending engine: seizure exceeds deposited collateral")
	errInsufficientReserves   = nativecommon.NewError(nativecommon.KindEconomic, "lending engine: insufficient reserves")
)

const moduleName = "lending"

const (
	EventTypeInitialized        = "lending.initialized"
	EventTypeSupplied           = "lending.supplied"
	EventTypeWithdrawn          = "lending.withdrawn"
	EventTypeBorrowed           = "lending.borrowed"
	EventTypeRepaid             = "lending.repaid"
	EventTypeCollateralAdded    = "lending.collateral_added"
	EventTypeCollateralRemoved  = "lending.collateral_removed"
	EventTypeLiquidated         = "lending.liquidated"
	EventTypeBatchLiquidated    = "lending.batch_liquidated"
	EventTypeRatesUpdated       = "lending.rates_updated"
	EventTypeDynamicRates       = "lending.dynamic_rates_updated"
	EventTypeLiquidationParams  = "lending.liquidation_params_updated"
	EventTypeCollateralFactor   = "lending.collateral_factor_updated"
	EventTypeReservesWithdrawn  = "lending.reserves_withdrawn"
	EventTypeEmergencyWithdrawn = "lending.emergency_withdrawn"
	EventTypeInterestAccrued    = "lending.interest_accrued"
)

var (
	poolKey        = []byte("lending/pool")
	liquidationKey = []byte("lending/liquidation")
	borrowersKey   = []byte("lending/borrowers")
	supplyPrefix   = []byte("lending/supply/")
	borrowPrefix   = []byte("lending/borrow/")
)

func supplyKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), supplyPrefix...), addr.Bytes()...)
}

func borrowKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), borrowPrefix...), addr.Bytes()...)
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	Balance(addr crypto.Address) (*big.Int, error)
	Debit(addr crypto.Address, amount *big.Int) error
	Credit(addr crypto.Address, amount *big.Int) error
	Snapshot() int
	RevertToSnapshot(id int) error
}

type accessControl interface {
	RequireAdmin(admin crypto.Address) error
	EnsureNotFrozen(addr crypto.Address) error
}

// Engine orchestrates the state transitions of the lending market. Supplied
// liquidity, collateral and repayments all settle in one vault account.
type Engine struct {
	state   engineState
	access  accessControl
	auth    nativecommon.Authorizer
	clock   nativecommon.Clock
	emitter events.Emitter
	pauses  nativecommon.PauseView
	vault   crypto.Address
	model   JumpRateModel
}

// NewEngine constructs a lending engine backed by the module vault.
func NewEngine() *Engine {
	return &Engine{
		vault:   crypto.ModuleAddress(moduleName),
		model:   DefaultJumpRateModel,
		emitter: events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAccess wires the admin and frozen-flag registry.
func (e *Engine) SetAccess(access accessControl) { e.access = access }

func (e *Engine) SetAuthorizer(auth nativecommon.Authorizer) { e.auth = auth }

func (e *Engine) SetClock(clock nativecommon.Clock) { e.clock = clock }

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetRateModel replaces the model used by UpdateDynamicRates.
func (e *Engine) SetRateModel(model JumpRateModel) { e.model = model }

// SetEmitter configures the event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// VaultAddress returns the account holding pool liquidity and collateral.
func (e *Engine) VaultAddress() crypto.Address { return e.vault }

func (e *Engine) now() uint64 {
	if e.clock == nil {
		return 0
	}
	return e.clock.Height()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.access == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) requireAuth(addr crypto.Address) error {
	if e.auth == nil {
		return nativecommon.ErrUnauthorized
	}
	return e.auth.RequireAuth(addr)
}

// begin runs the common preamble of user-facing value operations.
func (e *Engine) begin(user crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireAuth(user); err != nil {
		return err
	}
	return e.access.EnsureNotFrozen(user)
}

func (e *Engine) emit(eventType string, actor, subject crypto.Address, amount *big.Int, extra map[string]string) {
	e.emitter.Emit(events.Notification{
		Type:    eventType,
		Height:  e.now(),
		Actor:   actor,
		Subject: subject,
		Amount:  nativecommon.Copy(amount),
		Extra:   extra,
	})
}

func (e *Engine) loadPool() (*Pool, error) {
	pool := new(Pool)
	ok, err := e.state.KVGet(poolKey, pool)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotInitialized
	}
	pool.ensureDefaults()
	return pool, nil
}

func (e *Engine) putPool(pool *Pool) error {
	pool.UtilizationRate = utilization(pool.TotalBorrowed, pool.TotalSupplied)
	return e.state.KVPut(poolKey, pool)
}

func (e *Engine) loadParams() (LiquidationParams, error) {
	var params LiquidationParams
	ok, err := e.state.KVGet(liquidationKey, &params)
	if err != nil {
		return LiquidationParams{}, err
	}
	if !ok {
		return DefaultLiquidationParams(), nil
	}
	return params, nil
}

func (e *Engine) loadSupply(user crypto.Address) (*UserSupply, error) {
	supply := new(UserSupply)
	ok, err := e.state.KVGet(supplyKey(user), supply)
	if err != nil || !ok {
		return nil, err
	}
	supply.ensureDefaults()
	return supply, nil
}

func (e *Engine) putSupply(user crypto.Address, supply *UserSupply) error {
	if supply.Amount.Sign() == 0 && supply.AccruedInterest.Sign() == 0 {
		return e.state.KVDelete(supplyKey(user))
	}
	return e.state.KVPut(supplyKey(user), supply)
}

func (e *Engine) loadBorrow(user crypto.Address) (*UserBorrow, error) {
	borrow := new(UserBorrow)
	ok, err := e.state.KVGet(borrowKey(user), borrow)
	if err != nil || !ok {
		return nil, err
	}
	borrow.ensureDefaults()
	return borrow, nil
}

func (e *Engine) putBorrow(user crypto.Address, borrow *UserBorrow) error {
	if borrow.Debt().Sign() == 0 && borrow.Collateral.Sign() == 0 {
		return e.state.KVDelete(borrowKey(user))
	}
	return e.state.KVPut(borrowKey(user), borrow)
}

// accrue applies simple pool-level interest for the heights elapsed since
// the last update and advances the rate indexes. It is a no-op when no
// height has elapsed.
func (e *Engine) accrue(pool *Pool) {
	now := e.now()
	elapsed := elapsedSince(pool.LastUpdateHeight, now)
	if elapsed == 0 {
		return
	}
	pool.TotalBorrowed = new(big.Int).Add(pool.TotalBorrowed, simpleInterest(pool.TotalBorrowed, pool.BorrowRate, elapsed))
	pool.TotalSupplied = new(big.Int).Add(pool.TotalSupplied, simpleInterest(pool.TotalSupplied, pool.SupplyRate, elapsed))
	pool.SupplyIndex, pool.BorrowIndex = e.indexes(pool)
	pool.LastUpdateHeight = now
}

// indexes projects the pool's supply and borrow indexes to the current
// height at the current rates without mutating the pool.
func (e *Engine) indexes(pool *Pool) (supply, borrow *big.Int) {
	elapsed := elapsedSince(pool.LastUpdateHeight, e.now())
	return advanceIndex(pool.SupplyIndex, pool.SupplyRate, elapsed), advanceIndex(pool.BorrowIndex, pool.BorrowRate, elapsed)
}

func (e *Engine) pendingSupplyInterest(supply *UserSupply, pool *Pool) *big.Int {
	if supply == nil {
		return big.NewInt(0)
	}
	index, _ := e.indexes(pool)
	return indexedInterest(supply.Amount, index, supply.Index)
}

func (e *Engine) pendingBorrowInterest(borrow *UserBorrow, pool *Pool) *big.Int {
	if borrow == nil {
		return big.NewInt(0)
	}
	_, index := e.indexes(pool)
	return indexedInterest(borrow.Amount, index, borrow.Index)
}

func (e *Engine) settleSupply(supply *UserSupply, pool *Pool) {
	supply.AccruedInterest = new(big.Int).Add(supply.AccruedInterest, e.pendingSupplyInterest(supply, pool))
	supply.Index, _ = e.indexes(pool)
	supply.LastUpdateHeight = e.now()
}

func (e *Engine) settleBorrow(borrow *UserBorrow, pool *Pool) {
	borrow.AccruedInterest = new(big.Int).Add(borrow.AccruedInterest, e.pendingBorrowInterest(borrow, pool))
	_, borrow.Index = e.indexes(pool)
	borrow.LastUpdateHeight = e.now()
}

// reduceDebt deducts amount from settled interest first, then principal.
func reduceDebt(borrow *UserBorrow, amount *big.Int) {
	if amount.Cmp(borrow.AccruedInterest) <= 0 {
		borrow.AccruedInterest = new(big.Int).Sub(borrow.AccruedInterest, amount)
		return
	}
	rest := new(big.Int).Sub(amount, borrow.AccruedInterest)
	borrow.AccruedInterest = big.NewInt(0)
	borrow.Amount = nativecommon.SubFloor(borrow.Amount, rest)
}

func (e *Engine) move(from, to crypto.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := e.state.Debit(from, amount); err != nil {
		return err
	}
	return e.state.Credit(to, amount)
}

// Initialize creates the pool with the supplied rates and factors and the
// default liquidation parameters.
func (e *Engine) Initialize(admin crypto.Address, supplyRate, borrowRate, collateralFactor, reserveFactor uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.access.RequireAdmin(admin); err != nil {
		return err
	}
	exists, err := e.state.KVGet(poolKey, nil)
	if err != nil {
		return err
	}
	if exists {
		return errAlreadyInitialized
	}
	if collateralFactor == 0 || collateralFactor > bps {
		return errInvalidCollateralRatio
	}
	if reserveFactor > bps {
		return errInvalidReserveFactor
	}
	pool := &Pool{
		TotalSupplied:    big.NewInt(0),
		TotalBorrowed:    big.NewInt(0),
		SupplyRate:       supplyRate,
		BorrowRate:       borrowRate,
		ReserveFactor:    reserveFactor,
		LastUpdateHeight: e.now(),
		CollateralFactor: collateralFactor,
		SupplyIndex:      big.NewInt(0),
		BorrowIndex:      big.NewInt(0),
	}
	if err := e.putPool(pool); err != nil {
		return err
	}
	params := DefaultLiquidationParams()
	if err := e.state.KVPut(liquidationKey, &params); err != nil {
		return err
	}
	e.emit(EventTypeInitialized, admin, e.vault, big.NewInt(0), nil)
	return nil
}

// Supply deposits amount into the pool.
func (e *Engine) Supply(user crypto.Address, amount *big.Int) error {
	if err := e.begin(user); err != nil {
		return err
	}
	if err := nativecommon.RequirePositive(amount); err != nil {
		return err
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	e.accrue(pool)
	supply, err := e.loadSupply(user)
	if err != nil {
		return err
	}
	if supply == nil {
		supply = &UserSupply{Amount: big.NewInt(0), AccruedInterest: big.NewInt(0)}
	}
	e.settleSupply(supply, pool)
	if err := e.move(user, e.vault, amount); err != nil {
		return err
	}
	supply.Amount = new(big.Int).Add(supply.Amount, amount)
	pool.TotalSupplied = new(big.Int).Add(pool.TotalSupplied, amount)
	if err := e.putSupply(user, supply); err != nil {
		return err
	}
	if err := e.putPool(pool); err != nil {
		return err
	}
	e.emit(EventTypeSupplied, user, e.vault, amount, nil)
	return nil
}

// Withdraw releases amount of the caller's supply, settled interest first.
func (e *Engine) Withdraw(user crypto.Address, amount *big.Int) (*big.Int, error) {
	if err := e.begin(user); err != nil {
		return nil, err
	}
	if err := nativecommon.RequirePositive(amount); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	e.accrue(pool)
	supply, err := e.loadSupply(user)
	if err != nil {
		return nil, err
	}
	if supply == nil {
		return nil, errNoSupply
	}
	e.settleSupply(supply, pool)
	available := new(big.Int).Add(supply.Amount, supply.AccruedInterest)
	if amount.Cmp(available) > 0 {
		return nil, errInsufficientSupply
	}
	if amount.Cmp(nativecommon.SubFloor(pool.TotalSupplied, pool.TotalBorrowed)) > 0 {
		return nil, errInsufficientLiquidity
	}
	if amount.Cmp(supply.AccruedInterest) <= 0 {
		supply.AccruedInterest = new(big.Int).Sub(supply.AccruedInterest, amount)
	} else {
		rest := new(big.Int).Sub(amount, supply.AccruedInterest)
		supply.AccruedInterest = big.NewInt(0)
		supply.Amount = new(big.Int).Sub(supply.Amount, rest)
	}
	pool.TotalSupplied = nativecommon.SubFloor(pool.TotalSupplied, amount)
	if err := e.move(e.vault, user, amount); err != nil {
		return nil, err
	}
	if err := e.putSupply(user, supply); err != nil {
		return nil, err
	}
	if err := e.putPool(pool); err != nil {
		return nil, err
	}
	e.emit(EventTypeWithdrawn, user, e.vault, amount, nil)
	return nativecommon.Copy(amount), nil
}

// Borrow lends amount to user against collateral, which is added to any
// collateral already deposited.
func (e *Engine) Borrow(user crypto.Address, amount, collateral *big.Int) error {
	if err := e.begin(user); err != nil {
		return err
	}
	if err := nativecommon.RequireNonNegative(amount); err != nil {
		return err
	}
	if err := nativecommon.RequireNonNegative(collateral); err != nil {
		return err
	}
	balance, err := e.state.Balance(user)
	if err != nil {
		return err
	}
	if balance.Cmp(collateral) < 0 {
		return nativecommon.ErrInsufficientBalance
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	e.accrue(pool)
	if nativecommon.SubFloor(pool.TotalSupplied, pool.TotalBorrowed).Cmp(amount) < 0 {
		return errInsufficientLiquidity
	}
	borrow, err := e.loadBorrow(user)
	if err != nil {
		return err
	}
	isNew := borrow == nil
	if isNew {
		borrow = &UserBorrow{Amount: big.NewInt(0), AccruedInterest: big.NewInt(0), Collateral: big.NewInt(0)}
	}
	e.settleBorrow(borrow, pool)
	debt := new(big.Int).Add(borrow.Debt(), amount)
	totalCollateral := new(big.Int).Add(borrow.Collateral, collateral)
	if !collateralCovers(totalCollateral, debt, pool.CollateralFactor) {
		return errInsufficientCollateral
	}
	if err := e.move(user, e.vault, collateral); err != nil {
		return err
	}
	if err := e.move(e.vault, user, amount); err != nil {
		return err
	}
	borrow.Amount = new(big.Int).Add(borrow.Amount, amount)
	borrow.Collateral = totalCollateral
	pool.TotalBorrowed = new(big.Int).Add(pool.TotalBorrowed, amount)
	if err := e.putBorrow(user, borrow); err != nil {
		return err
	}
	if err := e.putPool(pool); err != nil {
		return err
	}
	if isNew && (borrow.Amount.Sign() > 0 || borrow.Collateral.Sign() > 0) {
		if err := e.state.KVAppend(borrowersKey, user.Bytes()); err != nil {
			return err
		}
	}
	e.emit(EventTypeBorrowed, user, e.vault, amount, map[string]string{"collateral": collateral.String()})
	return nil
}

// Repay pays down up to amount of debt, interest first. Clearing the debt
// refunds all collateral and closes the position. The amount actually repaid
// is returned.
func (e *Engine) Repay(user crypto.Address, amount *big.Int) (*big.Int, error) {
	if err := e.begin(user); err != nil {
		return nil, err
	}
	if err := nativecommon.RequirePositive(amount); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	e.accrue(pool)
	borrow, err := e.loadBorrow(user)
	if err != nil {
		return nil, err
	}
	if borrow == nil {
		return nil, errNoBorrow
	}
	e.settleBorrow(borrow, pool)
	actual := nativecommon.Min(amount, borrow.Debt())
	if err := e.move(user, e.vault, actual); err != nil {
		return nil, err
	}
	reduceDebt(borrow, actual)
	pool.TotalBorrowed = nativecommon.SubFloor(pool.TotalBorrowed, actual)
	if borrow.Debt().Sign() == 0 {
		if err := e.move(e.vault, user, borrow.Collateral); err != nil {
			return nil, err
		}
		borrow.Collateral = big.NewInt(0)
	}
	if err := e.putBorrow(user, borrow); err != nil {
		return nil, err
	}
	if err := e.putPool(pool); err != nil {
		return nil, err
	}
	e.emit(EventTypeRepaid, user, e.vault, actual, nil)
	return actual, nil
}

// AddCollateral deposits more collateral into an existing position.
func (e *Engine) AddCollateral(user crypto.Address, amount *big.Int) error {
	if err := e.begin(user); err != nil {
		return err
	}
	if err := nativecommon.RequirePositive(amount); err != nil {
		return err
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	e.accrue(pool)
	borrow, err := e.loadBorrow(user)
	if err != nil {
		return err
	}
	if borrow == nil {
		return errNoBorrow
	}
	e.settleBorrow(borrow, pool)
	if err := e.move(user, e.vault, amount); err != nil {
		return err
	}
	borrow.Collateral = new(big.Int).Add(borrow.Collateral, amount)
	if err := e.putBorrow(user, borrow); err != nil {
		return err
	}
	if err := e.putPool(pool); err != nil {
		return err
	}
	e.emit(EventTypeCollateralAdded, user, e.vault, amount, nil)
	return nil
}

// RemoveCollateral withdraws collateral as long as the remaining deposit still
// covers the debt including pending interest.
func (e *Engine) RemoveCollateral(user crypto.Address, amount *big.Int) error {
	if err := e.begin(user); err != nil {
		return err
	}
	if err := nativecommon.RequirePositive(amount); err != nil {
		return err
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	e.accrue(pool)
	borrow, err := e.loadBorrow(user)
	if err != nil {
		return err
	}
	if borrow == nil {
		return errNoBorrow
	}
	e.settleBorrow(borrow, pool)
	if amount.Cmp(borrow.Collateral) > 0 {
		return errExceedsCollateral
	}
	remaining := new(big.Int).Sub(borrow.Collateral, amount)
	if !collateralCovers(remaining, borrow.Debt(), pool.CollateralFactor) {
		return errUnsafeWithdrawal
	}
	if err := e.move(e.vault, user, amount); err != nil {
		return err
	}
	borrow.Collateral = remaining
	if err := e.putBorrow(user, borrow); err != nil {
		return err
	}
	if err := e.putPool(pool); err != nil {
		return err
	}
	e.emit(EventTypeCollateralRemoved, user, e.vault, amount, nil)
	return nil
}

// AccrueInterest persists pool-level accrual. Any caller may trigger it.
func (e *Engine) AccrueInterest() error {
	if err := e.ready(); err != nil {
		return err
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	e.accrue(pool)
	if err := e.putPool(pool); err != nil {
		return err
	}
	e.emit(EventTypeInterestAccrued, e.vault, e.vault, big.NewInt(0), nil)
	return nil
}
