package rpc

import (
	"context"
	"encoding/json"

	"deficore/crypto"
)

type initializeStakingParams struct {
	StakedAsset      string `json:"stakedAsset"`
	RewardAsset      string `json:"rewardAsset"`
	RewardRate       uint64 `json:"rewardRate"`
	MinStakeDuration uint64 `json:"minStakeDuration"`
}

type rewardRateParams struct {
	Rate uint64 `json:"rate"`
}

type durationParams struct {
	Duration uint64 `json:"duration"`
}

func (s *Server) registerStaking() {
	s.register("initializeStaking", method{auth: true, call: s.initializeStaking})
	s.register("updateRewardRate", method{auth: true, call: s.updateRewardRate})
	s.register("updateMinStakeDuration", method{auth: true, call: s.updateMinStakeDuration})
	s.register("stake", method{auth: true, call: s.stake})
	s.register("unstake", method{auth: true, call: s.unstake})
	s.register("claimRewards", method{auth: true, call: s.claimRewards})
	s.register("emergencyWithdrawRewards", method{auth: true, call: s.emergencyWithdrawRewards})
	s.register("getPendingRewards", method{call: s.getPendingRewards})
	s.register("getStakeInfo", method{call: s.getStakeInfo})
	s.register("getPoolInfo", method{call: s.getPoolInfo})
}

func (s *Server) initializeStaking(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p initializeStakingParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	staked, err := parseAddress("stakedAsset", p.StakedAsset)
	if err != nil {
		return nil, err
	}
	reward, err := parseAddress("rewardAsset", p.RewardAsset)
	if err != nil {
		return nil, err
	}
	return nil, s.protocol.InitializeStaking(ctx, caller, staked, reward, p.RewardRate, p.MinStakeDuration)
}

func (s *Server) updateRewardRate(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p rewardRateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return nil, s.protocol.UpdateRewardRate(ctx, caller, p.Rate)
}

func (s *Server) updateMinStakeDuration(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p durationParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return nil, s.protocol.UpdateMinStakeDuration(ctx, caller, p.Duration)
}

func (s *Server) stake(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p amountParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	amount, err := p.value()
	if err != nil {
		return nil, err
	}
	return nil, s.protocol.Stake(ctx, caller, amount)
}

func (s *Server) unstake(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p amountParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	amount, err := p.value()
	if err != nil {
		return nil, err
	}
	reward, err := s.protocol.Unstake(ctx, caller, amount)
	if err != nil {
		return nil, err
	}
	return amountResult(reward), nil
}

func (s *Server) claimRewards(ctx context.Context, caller crypto.Address, _ json.RawMessage) (interface{}, error) {
	reward, err := s.protocol.ClaimRewards(ctx, caller)
	if err != nil {
		return nil, err
	}
	return amountResult(reward), nil
}

func (s *Server) emergencyWithdrawRewards(ctx context.Context, caller crypto.Address, _ json.RawMessage) (interface{}, error) {
	drained, err := s.protocol.EmergencyWithdrawRewards(ctx, caller)
	if err != nil {
		return nil, err
	}
	return amountResult(drained), nil
}

func (s *Server) getPendingRewards(ctx context.Context, _ crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p accountParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	addr, err := p.account()
	if err != nil {
		return nil, err
	}
	pending, err := s.protocol.PendingRewards(ctx, addr)
	if err != nil {
		return nil, err
	}
	return amountResult(pending), nil
}

func (s *Server) getStakeInfo(ctx context.Context, _ crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p accountParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	addr, err := p.account()
	if err != nil {
		return nil, err
	}
	info, err := s.protocol.StakeInfo(ctx, addr)
	if err != nil {
		return nil, err
	}
	return stakeResult(info), nil
}

func (s *Server) getPoolInfo(ctx context.Context, _ crypto.Address, _ json.RawMessage) (interface{}, error) {
	info, err := s.protocol.StakingPoolInfo(ctx)
	if err != nil {
		return nil, err
	}
	return stakingPoolResult(info), nil
}
