package rpc

import (
	"context"
	"encoding/json"

	"deficore/crypto"
)

type createVestingParams struct {
	Beneficiary string `json:"beneficiary"`
	Total       string `json:"total"`
	Start       uint64 `json:"start"`
	Cliff       uint64 `json:"cliff"`
	End         uint64 `json:"end"`
}

type beneficiaryParams struct {
	Beneficiary string `json:"beneficiary"`
}

func (s *Server) registerVesting() {
	s.register("createVesting", method{auth: true, call: s.createVesting})
	s.register("claimVesting", method{auth: true, call: s.claimVesting})
	s.register("revokeVesting", method{auth: true, call: s.revokeVesting})
	s.register("getVestingInfo", method{call: s.getVestingInfo})
	s.register("getClaimableVesting", method{call: s.getClaimableVesting})
}

func (s *Server) createVesting(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p createVestingParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	beneficiary, err := parseAddress("beneficiary", p.Beneficiary)
	if err != nil {
		return nil, err
	}
	total, err := parseAmount("total", p.Total)
	if err != nil {
		return nil, err
	}
	return nil, s.protocol.CreateVesting(ctx, caller, beneficiary, total, p.Start, p.Cliff, p.End)
}

func (s *Server) claimVesting(ctx context.Context, caller crypto.Address, _ json.RawMessage) (interface{}, error) {
	claimed, err := s.protocol.ClaimVesting(ctx, caller)
	if err != nil {
		return nil, err
	}
	return amountResult(claimed), nil
}

func (s *Server) revokeVesting(ctx context.Context, caller crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p beneficiaryParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	beneficiary, err := parseAddress("beneficiary", p.Beneficiary)
	if err != nil {
		return nil, err
	}
	returned, err := s.protocol.RevokeVesting(ctx, caller, beneficiary)
	if err != nil {
		return nil, err
	}
	return amountResult(returned), nil
}

func (s *Server) getVestingInfo(ctx context.Context, _ crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p beneficiaryParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	beneficiary, err := parseAddress("beneficiary", p.Beneficiary)
	if err != nil {
		return nil, err
	}
	schedule, err := s.protocol.VestingInfo(ctx, beneficiary)
	if err != nil {
		return nil, err
	}
	return vestingResult(schedule), nil
}

func (s *Server) getClaimableVesting(ctx context.Context, _ crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p beneficiaryParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	beneficiary, err := parseAddress("beneficiary", p.Beneficiary)
	if err != nil {
		return nil, err
	}
	claimable, err := s.protocol.ClaimableVesting(ctx, beneficiary)
	if err != nil {
		return nil, err
	}
	return amountResult(claimable), nil
}
