package rpc

import (
	"context"
	"encoding/json"

	"deficore/crypto"
)

type tokenInitializeParams struct {
	Decimals uint32 `json:"decimals"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
}

type tokenTransferParams struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type tokenTransferFromParams struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type tokenApproveParams struct {
	Spender          string `json:"spender"`
	Amount           string `json:"amount"`
	ExpirationHeight uint64 `json:"expirationHeight"`
}

type tokenAllowanceParams struct {
	From    string `json:"from"`
	Spender string `json:"spender"`
}

type tokenBurnFromParams struct {
	From   string `json:"from"`
	Amount string `json:"amount"`
}

type tokenSetAdminParams struct {
	Admin string `json:"admin"`
}

func (s *Server) registerToken() {
	s.register("token_initialize", method{auth: true, call: s.tokenInitialize})
	s.register("token_mint", method{auth: true, call: s.tokenMint})
	s.register("token_setAdmin", method{auth: true, call: s.tokenSetAdmin})
	s.register("token_approve", method{auth: true, call: s.tokenApprove})
	s.register("token_transfer", method{auth: true, call: s.tokenTransfer})
	s.register("token_transferFrom", method{auth: true, call: s.tokenTransferFrom})
	s.register("token_burn", method{auth: true, call: s.tokenBurn})
	s.register("token_burnFrom", method{auth: true, call: s.tokenBurnFrom})
	s.register("token_balance", method{call: s.tokenBalance})
	s.register("token_allowance", method{call: s.tokenAllowance})
	s.register("token_metadata", method{call: s.tokenMetadata})
	s.register("freezeAccount", method{auth: true, call: s.freezeAccount})
	s.register("unfreezeAccount", method{auth: true, call: s.unfreezeAccount})
}

func (s *Server) tokenInitialize(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p tokenInitializeParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return nil, s.protocol.TokenInitialize(ctx, caller, p.Decimals, p.Name, p.Symbol)
}

func (s *Server) tokenMint(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p tokenTransferParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	to, err := parseAddress("to", p.To)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	return nil, s.protocol.TokenMint(ctx, caller, to, amount)
}

func (s *Server) tokenSetAdmin(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p tokenSetAdminParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	next, err := parseAddress("admin", p.Admin)
	if err != nil {
		return nil, err
	}
	return nil, s.protocol.TokenSetAdmin(ctx, caller, next)
}

func (s *Server) tokenApprove(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p tokenApproveParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	spender, err := parseAddress("spender", p.Spender)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	return nil, s.protocol.TokenApprove(ctx, caller, spender, amount, p.ExpirationHeight)
}

func (s *Server) tokenTransfer(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p tokenTransferParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	to, err := parseAddress("to", p.To)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	return nil, s.protocol.TokenTransfer(ctx, caller, to, amount)
}

func (s *Server) tokenTransferFrom(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p tokenTransferFromParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	from, err := parseAddress("from", p.From)
	if err != nil {
		return nil, err
	}
	to, err := parseAddress("to", p.To)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	return nil, s.protocol.TokenTransferFrom(ctx, caller, from, to, amount)
}

func (s *Server) tokenBurn(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p amountParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	amount, err := p.value()
	if err != nil {
		return nil, err
	}
	return nil, s.protocol.TokenBurn(ctx, caller, amount)
}

func (s *Server) tokenBurnFrom(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p tokenBurnFromParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	from, err := parseAddress("from", p.From)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	return nil, s.protocol.TokenBurnFrom(ctx, caller, from, amount)
}

func (s *Server) tokenBalance(ctx context.Context, _ crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p accountParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	addr, err := p.account()
	if err != nil {
		return nil, err
	}
	balance, err := s.protocol.TokenBalance(ctx, addr)
	if err != nil {
		return nil, err
	}
	return amountResult(balance), nil
}

func (s *Server) tokenAllowance(ctx context.Context, _ crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p tokenAllowanceParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	from, err := parseAddress("from", p.From)
	if err != nil {
		return nil, err
	}
	spender, err := parseAddress("spender", p.Spender)
	if err != nil {
		return nil, err
	}
	allowance, err := s.protocol.TokenAllowance(ctx, from, spender)
	if err != nil {
		return nil, err
	}
	return amountResult(allowance), nil
}

func (s *Server) tokenMetadata(ctx context.Context, _ crypto.Address, _ json.RawMessage) (interface{}, error) {
	return s.protocol.TokenMetadata(ctx)
}

func (s *Server) freezeAccount(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p accountParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	addr, err := p.account()
	if err != nil {
		return nil, err
	}
	return nil, s.protocol.FreezeAccount(ctx, caller, addr)
}

func (s *Server) unfreezeAccount(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p accountParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	addr, err := p.account()
	if err != nil {
		return nil, err
	}
	return nil, s.protocol.UnfreezeAccount(ctx, caller, addr)
}
