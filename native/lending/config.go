package lending

import "fmt"

// Config captures the pool parameters applied when the daemon bootstraps the
// lending market.
type Config struct {
	SupplyRateBps           uint64 `toml:"SupplyRateBps" yaml:"supplyRateBps"`
	BorrowRateBps           uint64 `toml:"BorrowRateBps" yaml:"borrowRateBps"`
	CollateralFactorBps     uint64 `toml:"CollateralFactorBps" yaml:"collateralFactorBps"`
	ReserveFactorBps        uint64 `toml:"ReserveFactorBps" yaml:"reserveFactorBps"`
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps" yaml:"liquidationThresholdBps"`
	LiquidationPenaltyBps   uint64 `toml:"LiquidationPenaltyBps" yaml:"liquidationPenaltyBps"`
}

// EnsureDefaults fills unset fields.
func (c *Config) EnsureDefaults() {
	if c.CollateralFactorBps == 0 {
		c.CollateralFactorBps = 7500
	}
	if c.LiquidationThresholdBps == 0 {
		c.LiquidationThresholdBps = DefaultLiquidationThreshold
	}
	if c.LiquidationPenaltyBps == 0 {
		c.LiquidationPenaltyBps = DefaultLiquidationPenalty
	}
}

// Validate rejects out of range basis point values.
func (c Config) Validate() error {
	if c.CollateralFactorBps == 0 || c.CollateralFactorBps > bps {
		return fmt.Errorf("lending: collateral factor %d out of range", c.CollateralFactorBps)
	}
	if c.ReserveFactorBps > bps {
		return fmt.Errorf("lending: reserve factor %d out of range", c.ReserveFactorBps)
	}
	params := LiquidationParams{Threshold: c.LiquidationThresholdBps, Penalty: c.LiquidationPenaltyBps}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("lending: %w", err)
	}
	return nil
}

// LiquidationParams returns the configured liquidation parameters.
func (c Config) LiquidationParams() LiquidationParams {
	return LiquidationParams{Threshold: c.LiquidationThresholdBps, Penalty: c.LiquidationPenaltyBps}
}
