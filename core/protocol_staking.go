package core

import (
	"context"
	"math/big"

	"deficore/crypto"
	"deficore/native/staking"
)

func (p *Protocol) InitializeStaking(ctx context.Context, caller, stakedAsset, rewardAsset crypto.Address, rewardRate, minStakeDuration uint64) error {
	return p.execute(ctx, "initializeStaking", caller, func() error {
		return p.staking.Initialize(caller, stakedAsset, rewardAsset, rewardRate, minStakeDuration)
	})
}

func (p *Protocol) UpdateRewardRate(ctx context.Context, caller crypto.Address, rate uint64) error {
	return p.execute(ctx, "updateRewardRate", caller, func() error {
		return p.staking.UpdateRewardRate(caller, rate)
	})
}

func (p *Protocol) UpdateMinStakeDuration(ctx context.Context, caller crypto.Address, duration uint64) error {
	return p.execute(ctx, "updateMinStakeDuration", caller, func() error {
		return p.staking.UpdateMinStakeDuration(caller, duration)
	})
}

func (p *Protocol) Stake(ctx context.Context, caller crypto.Address, amount *big.Int) error {
	return p.execute(ctx, "stake", caller, func() error {
		return p.staking.Stake(caller, amount)
	})
}

// Unstake returns the principal plus the rewards paid out with it.
func (p *Protocol) Unstake(ctx context.Context, caller crypto.Address, amount *big.Int) (*big.Int, error) {
	return invoke(ctx, p, "unstake", caller, func() (*big.Int, error) {
		return p.staking.Unstake(caller, amount)
	})
}

func (p *Protocol) ClaimRewards(ctx context.Context, caller crypto.Address) (*big.Int, error) {
	return invoke(ctx, p, "claimRewards", caller, func() (*big.Int, error) {
		return p.staking.ClaimRewards(caller)
	})
}

func (p *Protocol) EmergencyWithdrawRewards(ctx context.Context, caller crypto.Address) (*big.Int, error) {
	return invoke(ctx, p, "emergencyWithdrawRewards", caller, func() (*big.Int, error) {
		return p.staking.EmergencyWithdrawRewards(caller)
	})
}

func (p *Protocol) PendingRewards(ctx context.Context, user crypto.Address) (*big.Int, error) {
	return query(ctx, p, "getPendingRewards", func() (*big.Int, error) {
		return p.staking.PendingRewards(user)
	})
}

func (p *Protocol) StakeInfo(ctx context.Context, user crypto.Address) (*staking.StakeInfo, error) {
	return query(ctx, p, "getStakeInfo", func() (*staking.StakeInfo, error) {
		return p.staking.StakeInfo(user)
	})
}

func (p *Protocol) StakingPoolInfo(ctx context.Context) (*staking.PoolInfo, error) {
	return query(ctx, p, "getPoolInfo", p.staking.PoolInfo)
}
