package vesting

import (
	"math/big"

	"deficore/crypto"
)

// Schedule is a linear unlock grant with an optional cliff. Heights are
// logical clock values.
type Schedule struct {
	Beneficiary crypto.Address
	Total       *big.Int
	Claimed     *big.Int
	Start       uint64
	Cliff       uint64
	End         uint64
}

// Remaining returns the unclaimed part of the grant.
func (s *Schedule) Remaining() *big.Int {
	if s == nil || s.Total == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Set(s.Total)
	if s.Claimed != nil {
		out.Sub(out, s.Claimed)
	}
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}

// storedSchedule is the RLP form of Schedule.
type storedSchedule struct {
	Beneficiary []byte
	Total       *big.Int
	Claimed     *big.Int
	Start       uint64
	Cliff       uint64
	End         uint64
}

func newStoredSchedule(s *Schedule) *storedSchedule {
	return &storedSchedule{
		Beneficiary: s.Beneficiary.Bytes(),
		Total:       s.Total,
		Claimed:     s.Claimed,
		Start:       s.Start,
		Cliff:       s.Cliff,
		End:         s.End,
	}
}

func (s *storedSchedule) toSchedule() (*Schedule, error) {
	beneficiary, err := crypto.AddressFromBytes(s.Beneficiary)
	if err != nil {
		return nil, err
	}
	out := &Schedule{
		Beneficiary: beneficiary,
		Total:       s.Total,
		Claimed:     s.Claimed,
		Start:       s.Start,
		Cliff:       s.Cliff,
		End:         s.End,
	}
	if out.Total == nil {
		out.Total = big.NewInt(0)
	}
	if out.Claimed == nil {
		out.Claimed = big.NewInt(0)
	}
	return out, nil
}
