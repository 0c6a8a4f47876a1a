package lending

// JumpRateModel shapes borrow rates around an optimal utilization kink. All
// fields are basis points.
type JumpRateModel struct {
	// Kink is the utilization where the jump multiplier takes over.
	Kink uint64
	// BaseRate is the borrow rate at zero utilization.
	BaseRate uint64
	// Multiplier is the slope applied up to the kink.
	Multiplier uint64
	// JumpMultiplier is the slope applied beyond the kink.
	JumpMultiplier uint64
}

// DefaultJumpRateModel: 2% base, 5% slope to an 80% kink, 100% slope beyond.
var DefaultJumpRateModel = JumpRateModel{
	Kink:           8000,
	BaseRate:       200,
	Multiplier:     500,
	JumpMultiplier: 10_000,
}

// BorrowRate derives the borrow rate for the given utilization.
func (m JumpRateModel) BorrowRate(utilization uint64) uint64 {
	if utilization <= m.Kink {
		return m.BaseRate + utilization*m.Multiplier/bps
	}
	excess := utilization - m.Kink
	return m.BaseRate + m.Kink*m.Multiplier/bps + excess*m.JumpMultiplier/bps
}

// SupplyRate derives the supply rate from the borrow rate, utilization and
// the reserve factor: (borrow*u/10000)*(10000-reserve)/10000.
func (m JumpRateModel) SupplyRate(utilization, reserveFactor uint64) uint64 {
	if reserveFactor >= bps {
		return 0
	}
	borrow := m.BorrowRate(utilization)
	return (borrow * utilization / bps) * (bps - reserveFactor) / bps
}

const bps = 10_000
