package core

import (
	"context"
	"math/big"

	"deficore/crypto"
	"deficore/native/vesting"
)

// CreateVesting grants total to beneficiary, unlocking linearly from start to
// end after the optional cliff.
func (p *Protocol) CreateVesting(ctx context.Context, caller, beneficiary crypto.Address, total *big.Int, start, cliff, end uint64) error {
	return p.execute(ctx, "createVesting", caller, func() error {
		return p.vesting.Create(caller, beneficiary, total, start, cliff, end)
	})
}

func (p *Protocol) ClaimVesting(ctx context.Context, caller crypto.Address) (*big.Int, error) {
	return invoke(ctx, p, "claimVesting", caller, func() (*big.Int, error) {
		return p.vesting.Claim(caller)
	})
}

func (p *Protocol) RevokeVesting(ctx context.Context, caller, beneficiary crypto.Address) (*big.Int, error) {
	return invoke(ctx, p, "revokeVesting", caller, func() (*big.Int, error) {
		return p.vesting.Revoke(caller, beneficiary)
	})
}

// VestingInfo returns nil when beneficiary has no schedule.
func (p *Protocol) VestingInfo(ctx context.Context, beneficiary crypto.Address) (*vesting.Schedule, error) {
	return query(ctx, p, "getVestingInfo", func() (*vesting.Schedule, error) {
		return p.vesting.Info(beneficiary)
	})
}

func (p *Protocol) ClaimableVesting(ctx context.Context, beneficiary crypto.Address) (*big.Int, error) {
	return query(ctx, p, "getClaimableVesting", func() (*big.Int, error) {
		return p.vesting.Claimable(beneficiary)
	})
}
