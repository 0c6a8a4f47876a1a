package staking

import (
	"math/big"

	"deficore/core/events"
	"deficore/crypto"
	nativecommon "deficore/native/common"
)

const moduleName = "staking"

const (
	EventTypeInitialized        = "staking.initialized"
	EventTypeStaked             = "staking.staked"
	EventTypeUnstaked           = "staking.unstaked"
	EventTypeRewardClaimed      = "staking.reward_claimed"
	EventTypeRewardRateUpdated  = "staking.reward_rate_updated"
	EventTypeMinDurationUpdated = "staking.min_duration_updated"
	EventTypeEmergencyWithdrawn = "staking.emergency_withdrawn"
)

var (
	errNilState           = nativecommon.NewError(nativecommon.KindPrecondition, "staking engine: state not configured")
	errAlreadyInitialized = nativecommon.NewError(nativecommon.KindPrecondition, "staking engine: already initialized")
	errNotInitialized     = nativecommon.NewError(nativecommon.KindPrecondition, "staking engine: pool not initialized")
	errNoStake            = nativecommon.NewError(nativecommon.KindPrecondition, "staking engine: no stake found for account")
	errNotAdmin           = nativecommon.NewError(nativecommon.KindAuthorization, "staking engine: caller is not the pool administrator")
	errNoRewards          = nativecommon.NewError(nativecommon.KindEconomic, "staking engine: no rewards to claim")
	errExceedsStake       = nativecommon.NewError(nativecommon.KindEconomic, "staking engine: amount exceeds staked balance")
	errMinDuration        = nativecommon.NewError(nativecommon.KindPrecondition, "staking engine: minimum stake duration not met")
)

var (
	adminKey    = []byte("staking/admin")
	poolKey     = []byte("staking/pool")
	stakePrefix = []byte("staking/stake/")
)

func stakeKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), stakePrefix...), addr.Bytes()...)
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	Balance(addr crypto.Address) (*big.Int, error)
	Debit(addr crypto.Address, amount *big.Int) error
	Credit(addr crypto.Address, amount *big.Int) error
}

// Engine runs the staking pool. Principal and rewards share the vault account;
// the reward surplus is whatever the vault holds beyond the total staked.
type Engine struct {
	state   engineState
	vault   crypto.Address
	auth    nativecommon.Authorizer
	clock   nativecommon.Clock
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

// NewEngine constructs a staking engine holding funds in the module vault.
func NewEngine() *Engine {
	return &Engine{
		vault:   crypto.ModuleAddress(moduleName),
		emitter: events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetAuthorizer(auth nativecommon.Authorizer) { e.auth = auth }

func (e *Engine) SetClock(clock nativecommon.Clock) { e.clock = clock }

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// VaultAddress returns the account holding staked principal and rewards.
func (e *Engine) VaultAddress() crypto.Address { return e.vault }

func (e *Engine) now() uint64 {
	if e.clock == nil {
		return 0
	}
	return e.clock.Height()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
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

func (e *Engine) emit(eventType string, actor crypto.Address, amount *big.Int) {
	e.emitter.Emit(events.Notification{
		Type:    eventType,
		Height:  e.now(),
		Actor:   actor,
		Subject: actor,
		Amount:  nativecommon.Copy(amount),
	})
}

func (e *Engine) requireAdmin(admin crypto.Address) error {
	var raw []byte
	ok, err := e.state.KVGet(adminKey, &raw)
	if err != nil {
		return err
	}
	if !ok {
		return errNotInitialized
	}
	current, err := crypto.AddressFromBytes(raw)
	if err != nil {
		return err
	}
	if !current.Equal(admin) {
		return errNotAdmin
	}
	return e.requireAuth(admin)
}

func (e *Engine) loadPool() (*PoolInfo, error) {
	stored := new(storedPool)
	ok, err := e.state.KVGet(poolKey, stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotInitialized
	}
	return stored.pool()
}

func (e *Engine) putPool(pool *PoolInfo) error {
	return e.state.KVPut(poolKey, pool.stored())
}

func (e *Engine) loadStake(user crypto.Address) (*StakeInfo, error) {
	info := new(StakeInfo)
	ok, err := e.state.KVGet(stakeKey(user), info)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if info.Amount == nil {
		info.Amount = big.NewInt(0)
	}
	return info, nil
}

func (e *Engine) pay(to crypto.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := e.state.Debit(e.vault, amount); err != nil {
		return err
	}
	return e.state.Credit(to, amount)
}

// indexAt returns the pool reward index advanced to the current height at
// the current rate.
func (e *Engine) indexAt(pool *PoolInfo) *big.Int {
	index := nativecommon.Copy(pool.RewardIndex)
	now := e.now()
	if now > pool.IndexHeight && pool.RewardRate > 0 {
		delta := new(big.Int).SetUint64(now - pool.IndexHeight)
		delta.Mul(delta, new(big.Int).SetUint64(pool.RewardRate))
		index.Add(index, delta)
	}
	return index
}

// checkpoint folds elapsed accrual into the index so a rate change only
// applies from now on.
func (e *Engine) checkpoint(pool *PoolInfo) {
	pool.RewardIndex = e.indexAt(pool)
	if now := e.now(); now > pool.IndexHeight {
		pool.IndexHeight = now
	}
}

// restart resets the position's accrual to the current index.
func (e *Engine) restart(info *StakeInfo, pool *PoolInfo) {
	info.LastClaimHeight = e.now()
	info.RewardIndex = e.indexAt(pool)
}

// reward = amount * (index_now - index_snapshot) / 10000
func (e *Engine) reward(info *StakeInfo, pool *PoolInfo) *big.Int {
	if info == nil || info.Amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	snapshot := info.RewardIndex
	if snapshot == nil {
		snapshot = big.NewInt(0)
	}
	accrued := new(big.Int).Sub(e.indexAt(pool), snapshot)
	if accrued.Sign() <= 0 {
		return big.NewInt(0)
	}
	return nativecommon.MulDiv(info.Amount, accrued, nativecommon.BigBasisPoints())
}

// Initialize creates the pool and records its administrator. It runs once.
func (e *Engine) Initialize(admin, stakedAsset, rewardAsset crypto.Address, rewardRate, minStakeDuration uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAuth(admin); err != nil {
		return err
	}
	exists, err := e.state.KVGet(adminKey, nil)
	if err != nil {
		return err
	}
	if exists {
		return errAlreadyInitialized
	}
	if err := e.state.KVPut(adminKey, admin.Bytes()); err != nil {
		return err
	}
	pool := &PoolInfo{
		StakedAsset:      stakedAsset,
		RewardAsset:      rewardAsset,
		RewardRate:       rewardRate,
		TotalStaked:      big.NewInt(0),
		MinStakeDuration: minStakeDuration,
		RewardIndex:      big.NewInt(0),
		IndexHeight:      e.now(),
	}
	if err := e.putPool(pool); err != nil {
		return err
	}
	e.emit(EventTypeInitialized, admin, big.NewInt(0))
	return nil
}

// UpdateRewardRate changes the per-tick reward rate for future accrual.
func (e *Engine) UpdateRewardRate(admin crypto.Address, rate uint64) error {
	return e.updatePool(admin, EventTypeRewardRateUpdated, rate, func(p *PoolInfo) {
		e.checkpoint(p)
		p.RewardRate = rate
	})
}

// UpdateMinStakeDuration changes the minimum holding period.
func (e *Engine) UpdateMinStakeDuration(admin crypto.Address, duration uint64) error {
	return e.updatePool(admin, EventTypeMinDurationUpdated, duration, func(p *PoolInfo) { p.MinStakeDuration = duration })
}

func (e *Engine) updatePool(admin crypto.Address, eventType string, value uint64, apply func(*PoolInfo)) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAdmin(admin); err != nil {
		return err
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	apply(pool)
	if err := e.putPool(pool); err != nil {
		return err
	}
	e.emit(eventType, admin, new(big.Int).SetUint64(value))
	return nil
}

// Stake locks amount of user's balance in the pool. Pending rewards on an
// existing position are paid out first.
func (e *Engine) Stake(user crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireAuth(user); err != nil {
		return err
	}
	if err := nativecommon.RequirePositive(amount); err != nil {
		return err
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if err := e.state.Debit(user, amount); err != nil {
		return err
	}
	if err := e.state.Credit(e.vault, amount); err != nil {
		return err
	}
	now := e.now()
	info, err := e.loadStake(user)
	if err != nil {
		return err
	}
	if info != nil {
		pending := e.reward(info, pool)
		if pending.Sign() > 0 {
			if err := e.pay(user, pending); err != nil {
				return err
			}
			e.emit(EventTypeRewardClaimed, user, pending)
		}
		info.Amount = new(big.Int).Add(info.Amount, amount)
	} else {
		info = &StakeInfo{Amount: nativecommon.Copy(amount), SinceHeight: now}
	}
	e.restart(info, pool)
	pool.TotalStaked = new(big.Int).Add(pool.TotalStaked, amount)
	if err := e.putPool(pool); err != nil {
		return err
	}
	if err := e.state.KVPut(stakeKey(user), info); err != nil {
		return err
	}
	e.emit(EventTypeStaked, user, amount)
	return nil
}

// ClaimRewards pays the pending reward and restarts accrual.
func (e *Engine) ClaimRewards(user crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.requireAuth(user); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	info, err := e.loadStake(user)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, errNoStake
	}
	reward := e.reward(info, pool)
	if reward.Sign() <= 0 {
		return nil, errNoRewards
	}
	if err := e.pay(user, reward); err != nil {
		return nil, err
	}
	e.restart(info, pool)
	if err := e.state.KVPut(stakeKey(user), info); err != nil {
		return nil, err
	}
	e.emit(EventTypeRewardClaimed, user, reward)
	return reward, nil
}

// Unstake returns amount of principal after the minimum holding period,
// paying pending rewards first.
func (e *Engine) Unstake(user crypto.Address, amount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.requireAuth(user); err != nil {
		return nil, err
	}
	if err := nativecommon.RequirePositive(amount); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	info, err := e.loadStake(user)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, errNoStake
	}
	if amount.Cmp(info.Amount) > 0 {
		return nil, errExceedsStake
	}
	now := e.now()
	if now < info.SinceHeight || now-info.SinceHeight < pool.MinStakeDuration {
		return nil, errMinDuration
	}
	reward := e.reward(info, pool)
	if reward.Sign() > 0 {
		if err := e.pay(user, reward); err != nil {
			return nil, err
		}
		e.emit(EventTypeRewardClaimed, user, reward)
	}
	if err := e.pay(user, amount); err != nil {
		return nil, err
	}
	info.Amount = new(big.Int).Sub(info.Amount, amount)
	pool.TotalStaked = nativecommon.SubFloor(pool.TotalStaked, amount)
	if err := e.putPool(pool); err != nil {
		return nil, err
	}
	if info.Amount.Sign() == 0 {
		if err := e.state.KVDelete(stakeKey(user)); err != nil {
			return nil, err
		}
	} else {
		e.restart(info, pool)
		if err := e.state.KVPut(stakeKey(user), info); err != nil {
			return nil, err
		}
	}
	e.emit(EventTypeUnstaked, user, amount)
	return nativecommon.Copy(amount), nil
}

// PendingRewards returns the unclaimed reward, zero without a stake.
func (e *Engine) PendingRewards(user crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	info, err := e.loadStake(user)
	if err != nil {
		return nil, err
	}
	return e.reward(info, pool), nil
}

// StakeInfo returns the account's position and fails when none exists.
func (e *Engine) StakeInfo(user crypto.Address) (*StakeInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	info, err := e.loadStake(user)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, errNoStake
	}
	return info, nil
}

// PoolInfo returns the pool parameters and total staked.
func (e *Engine) PoolInfo() (*PoolInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadPool()
}

// EmergencyWithdrawRewards sweeps the vault's reward surplus to the admin.
// Staked principal stays in the vault.
func (e *Engine) EmergencyWithdrawRewards(admin crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requireAdmin(admin); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	balance, err := e.state.Balance(e.vault)
	if err != nil {
		return nil, err
	}
	surplus := nativecommon.SubFloor(balance, pool.TotalStaked)
	if surplus.Sign() > 0 {
		if err := e.pay(admin, surplus); err != nil {
			return nil, err
		}
		e.emit(EventTypeEmergencyWithdrawn, admin, surplus)
	}
	return surplus, nil
}
