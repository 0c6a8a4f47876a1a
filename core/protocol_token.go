package core

import (
	"context"
	"math/big"

	"deficore/crypto"
	"deficore/native/token"
)

func (p *Protocol) TokenInitialize(ctx context.Context, caller crypto.Address, decimals uint32, name, symbol string) error {
	return p.execute(ctx, "token_initialize", caller, func() error {
		return p.token.Initialize(caller, decimals, name, symbol)
	})
}

func (p *Protocol) TokenMint(ctx context.Context, caller, to crypto.Address, amount *big.Int) error {
	return p.execute(ctx, "token_mint", caller, func() error {
		return p.token.Mint(caller, to, amount)
	})
}

func (p *Protocol) TokenSetAdmin(ctx context.Context, caller, next crypto.Address) error {
	return p.execute(ctx, "token_setAdmin", caller, func() error {
		return p.token.SetAdmin(caller, next)
	})
}

func (p *Protocol) TokenApprove(ctx context.Context, caller, spender crypto.Address, amount *big.Int, expirationHeight uint64) error {
	return p.execute(ctx, "token_approve", caller, func() error {
		return p.token.Approve(caller, spender, amount, expirationHeight)
	})
}

func (p *Protocol) TokenTransfer(ctx context.Context, caller, to crypto.Address, amount *big.Int) error {
	return p.execute(ctx, "token_transfer", caller, func() error {
		return p.token.Transfer(caller, to, amount)
	})
}

// TokenTransferFrom spends caller's allowance on from.
func (p *Protocol) TokenTransferFrom(ctx context.Context, caller, from, to crypto.Address, amount *big.Int) error {
	return p.execute(ctx, "token_transferFrom", caller, func() error {
		return p.token.TransferFrom(caller, from, to, amount)
	})
}

func (p *Protocol) TokenBurn(ctx context.Context, caller crypto.Address, amount *big.Int) error {
	return p.execute(ctx, "token_burn", caller, func() error {
		return p.token.Burn(caller, amount)
	})
}

func (p *Protocol) TokenBurnFrom(ctx context.Context, caller, from crypto.Address, amount *big.Int) error {
	return p.execute(ctx, "token_burnFrom", caller, func() error {
		return p.token.BurnFrom(caller, from, amount)
	})
}

func (p *Protocol) TokenBalance(ctx context.Context, id crypto.Address) (*big.Int, error) {
	return query(ctx, p, "token_balance", func() (*big.Int, error) {
		return p.token.Balance(id)
	})
}

func (p *Protocol) TokenAllowance(ctx context.Context, from, spender crypto.Address) (*big.Int, error) {
	return query(ctx, p, "token_allowance", func() (*big.Int, error) {
		return p.token.Allowance(from, spender)
	})
}

func (p *Protocol) TokenMetadata(ctx context.Context) (*token.Metadata, error) {
	return query(ctx, p, "token_metadata", p.token.Metadata)
}

// FreezeAccount and UnfreezeAccount toggle the frozen flag. Admin only.
func (p *Protocol) FreezeAccount(ctx context.Context, caller, account crypto.Address) error {
	return p.execute(ctx, "freezeAccount", caller, func() error {
		return p.access.Freeze(caller, account)
	})
}

func (p *Protocol) UnfreezeAccount(ctx context.Context, caller, account crypto.Address) error {
	return p.execute(ctx, "unfreezeAccount", caller, func() error {
		return p.access.Unfreeze(caller, account)
	})
}

func (p *Protocol) IsFrozen(ctx context.Context, account crypto.Address) (bool, error) {
	return query(ctx, p, "isFrozen", func() (bool, error) {
		return p.access.IsFrozen(account)
	})
}

// Admin returns the protocol administrator.
func (p *Protocol) Admin(ctx context.Context) (crypto.Address, error) {
	return query(ctx, p, "admin", p.access.Admin)
}
