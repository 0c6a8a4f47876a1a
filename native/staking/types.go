package staking

import (
	"math/big"

	"deficore/crypto"
)

// PoolInfo describes the single staking pool.
type PoolInfo struct {
	StakedAsset      crypto.Address
	RewardAsset      crypto.Address
	RewardRate       uint64
	TotalStaked      *big.Int
	MinStakeDuration uint64
	// RewardIndex is the running sum of rate·elapsed up to IndexHeight.
	RewardIndex *big.Int
	IndexHeight uint64
}

// StakeInfo is one account's position in the pool. RewardIndex snapshots the
// pool index when accrual last restarted.
type StakeInfo struct {
	Amount          *big.Int
	SinceHeight     uint64
	LastClaimHeight uint64
	RewardIndex     *big.Int
}

type storedPool struct {
	StakedAsset      []byte
	RewardAsset      []byte
	RewardRate       uint64
	TotalStaked      *big.Int
	MinStakeDuration uint64
	RewardIndex      *big.Int
	IndexHeight      uint64
}

func (p *PoolInfo) stored() *storedPool {
	return &storedPool{
		StakedAsset:      p.StakedAsset.Bytes(),
		RewardAsset:      p.RewardAsset.Bytes(),
		RewardRate:       p.RewardRate,
		TotalStaked:      p.TotalStaked,
		MinStakeDuration: p.MinStakeDuration,
		RewardIndex:      p.RewardIndex,
		IndexHeight:      p.IndexHeight,
	}
}

func (s *storedPool) pool() (*PoolInfo, error) {
	out := &PoolInfo{
		RewardRate:       s.RewardRate,
		TotalStaked:      s.TotalStaked,
		MinStakeDuration: s.MinStakeDuration,
		RewardIndex:      s.RewardIndex,
		IndexHeight:      s.IndexHeight,
	}
	var err error
	if len(s.StakedAsset) > 0 {
		if out.StakedAsset, err = crypto.AddressFromBytes(s.StakedAsset); err != nil {
			return nil, err
		}
	}
	if len(s.RewardAsset) > 0 {
		if out.RewardAsset, err = crypto.AddressFromBytes(s.RewardAsset); err != nil {
			return nil, err
		}
	}
	if out.TotalStaked == nil {
		out.TotalStaked = big.NewInt(0)
	}
	if out.RewardIndex == nil {
		out.RewardIndex = big.NewInt(0)
	}
	return out, nil
}
