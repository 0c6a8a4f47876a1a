package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	nativecommon "deficore/native/common"
)

// Table converts the pause flags into the engines' pause view.
func (p Pauses) Table() nativecommon.Pauses {
	return nativecommon.Pauses{
		"token":   p.Token,
		"vesting": p.Vesting,
		"staking": p.Staking,
		"lending": p.Lending,
	}
}

// InitialSupplyAmount parses the configured bootstrap supply.
func (t Token) InitialSupplyAmount() (*big.Int, error) {
	return parseUintAmount(t.InitialSupply)
}

// HeightInterval parses the logical clock tick period.
func (c *Config) HeightInterval() (time.Duration, error) {
	raw := strings.TrimSpace(c.HeightIntervalRaw)
	if raw == "" {
		return DefaultHeightInterval, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid HeightInterval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("HeightInterval must be positive")
	}
	return d, nil
}

// TTL parses the lifetime of CLI-minted tokens.
func (a Auth) TTL() (time.Duration, error) {
	raw := strings.TrimSpace(a.TokenTTL)
	if raw == "" {
		return time.Hour, nil
	}
	return time.ParseDuration(raw)
}

func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return value, nil
}
