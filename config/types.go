package config

// Token holds the asset metadata used when the daemon bootstraps the ledger.
type Token struct {
	Name     string `toml:"Name" yaml:"name"`
	Symbol   string `toml:"Symbol" yaml:"symbol"`
	Decimals uint32 `toml:"Decimals" yaml:"decimals"`
	// InitialSupply is minted to the administrator at bootstrap. Decimal string.
	InitialSupply string `toml:"InitialSupply" yaml:"initialSupply"`
}

// Staking holds the pool parameters applied at bootstrap.
type Staking struct {
	Enabled          bool   `toml:"Enabled" yaml:"enabled"`
	RewardRateBps    uint64 `toml:"RewardRateBps" yaml:"rewardRateBps"`
	MinStakeDuration uint64 `toml:"MinStakeDuration" yaml:"minStakeDuration"`
}

// EventLog configures the durable event store.
type EventLog struct {
	// Driver is "sqlite" or "postgres". Empty disables the event log.
	Driver     string `toml:"Driver" yaml:"driver"`
	DSN        string `toml:"DSN" yaml:"dsn"`
	BufferSize int    `toml:"BufferSize" yaml:"bufferSize"`
	ExportDir  string `toml:"ExportDir" yaml:"exportDir"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sampleRatio"`
	Headers     string  `toml:"Headers" yaml:"headers"`
}

// Auth configures JWT caller authentication on the RPC surface.
type Auth struct {
	JWTSecret string `toml:"JWTSecret" yaml:"jwtSecret"`
	Issuer    string `toml:"Issuer" yaml:"issuer"`
	// TokenTTL bounds tokens minted by the CLI, e.g. "1h".
	TokenTTL string `toml:"TokenTTL" yaml:"tokenTTL"`
}

// RateLimit bounds per-client request rates and concurrent connections.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond" yaml:"requestsPerSecond"`
	Burst             int     `toml:"Burst" yaml:"burst"`
	MaxConnections    int     `toml:"MaxConnections" yaml:"maxConnections"`
}

// Log configures the structured logger.
type Log struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `toml:"MaxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"maxAgeDays"`
}

// Pauses disables individual modules at startup.
type Pauses struct {
	Token   bool `toml:"Token" yaml:"token"`
	Vesting bool `toml:"Vesting" yaml:"vesting"`
	Staking bool `toml:"Staking" yaml:"staking"`
	Lending bool `toml:"Lending" yaml:"lending"`
}
