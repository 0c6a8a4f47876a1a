package lending

const (
	// DefaultLiquidationThreshold weights collateral at 80% in the health
	// factor.
	DefaultLiquidationThreshold = 8000
	// DefaultLiquidationPenalty awards liquidators 5% extra collateral.
	DefaultLiquidationPenalty = 500
	// MaxBatchTargets bounds a single batch liquidation.
	MaxBatchTargets = 10
)

// DefaultLiquidationParams returns the parameters installed at pool creation.
func DefaultLiquidationParams() LiquidationParams {
	return LiquidationParams{
		Threshold: DefaultLiquidationThreshold,
		Penalty:   DefaultLiquidationPenalty,
	}
}

// Validate checks the parameters are usable basis point values.
func (p LiquidationParams) Validate() error {
	if p.Threshold == 0 || p.Threshold > bps {
		return errInvalidThreshold
	}
	if p.Penalty > bps {
		return errInvalidPenalty
	}
	return nil
}

// riskScore buckets utilization: >90% 100, >80% 75, >60% 50, else 25.
func riskScore(utilization uint64) uint64 {
	switch {
	case utilization > 9000:
		return 100
	case utilization > 8000:
		return 75
	case utilization > 6000:
		return 50
	default:
		return 25
	}
}
