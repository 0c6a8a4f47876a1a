package config

import (
	"fmt"
	"strings"

	"deficore/native/token"
)

// MinJWTSecretLength is the shortest HMAC secret accepted outside dev mode.
var MinJWTSecretLength = 32

func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress required")
	}
	switch c.Storage {
	case StorageLevelDB, StorageMemory:
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage)
	}
	if c.Token.Decimals > token.MaxDecimals {
		return fmt.Errorf("token: decimals %d exceeds %d", c.Token.Decimals, token.MaxDecimals)
	}
	if _, err := c.Token.InitialSupplyAmount(); err != nil {
		return fmt.Errorf("token: %w", err)
	}
	if err := c.Lending.Validate(); err != nil {
		return err
	}
	if _, err := c.HeightInterval(); err != nil {
		return err
	}
	switch c.EventLog.Driver {
	case "", DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("eventlog: unknown driver %q", c.EventLog.Driver)
	}
	if c.EventLog.Driver == DriverPostgres && strings.TrimSpace(c.EventLog.DSN) == "" {
		return fmt.Errorf("eventlog: postgres requires a DSN")
	}
	if !c.DevMode && len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth: JWTSecret must be at least %d bytes outside dev mode", MinJWTSecretLength)
	}
	if _, err := c.Auth.TTL(); err != nil {
		return fmt.Errorf("auth: invalid TokenTTL: %w", err)
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 || c.RateLimit.MaxConnections < 0 {
		return fmt.Errorf("ratelimit: values must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	return nil
}
