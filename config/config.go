package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"deficore/crypto"
	"deficore/native/lending"
)

const (
	StorageLevelDB = "leveldb"
	StorageMemory  = "memory"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultHeightInterval matches the nominal tick behind lending.HeightsPerYear.
const DefaultHeightInterval = 5 * time.Second

// Environment overrides applied after the file is decoded.
const (
	EnvEnvironment        = "DEFI_ENV"
	EnvJWTSecret          = "DEFI_JWT_SECRET"
	EnvKeystorePassphrase = "DEFI_KEYSTORE_PASSPHRASE"
	EnvOTLPHeaders        = "OTEL_EXPORTER_OTLP_HEADERS"
)

type Config struct {
	RPCAddress        string `toml:"RPCAddress" yaml:"rpcAddress"`
	GRPCAddress       string `toml:"GRPCAddress" yaml:"grpcAddress"`
	DataDir           string `toml:"DataDir" yaml:"dataDir"`
	Storage           string `toml:"Storage" yaml:"storage"`
	AdminKeystorePath string `toml:"AdminKeystorePath" yaml:"adminKeystorePath"`
	Env               string `toml:"Env" yaml:"env"`
	// DevMode exposes protocol_advanceHeight and relaxes the JWT secret check.
	DevMode           bool   `toml:"DevMode" yaml:"devMode"`
	HeightIntervalRaw string `toml:"HeightInterval" yaml:"heightInterval"`

	Token     Token          `toml:"Token" yaml:"token"`
	Staking   Staking        `toml:"Staking" yaml:"staking"`
	Lending   lending.Config `toml:"Lending" yaml:"lending"`
	EventLog  EventLog       `toml:"EventLog" yaml:"eventLog"`
	Telemetry Telemetry      `toml:"Telemetry" yaml:"telemetry"`
	Auth      Auth           `toml:"Auth" yaml:"auth"`
	RateLimit RateLimit      `toml:"RateLimit" yaml:"rateLimit"`
	Log       Log            `toml:"Log" yaml:"log"`
	Pauses    Pauses         `toml:"Pauses" yaml:"pauses"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by a default configuration and a fresh admin keystore.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err := createDefault(path)
		if err != nil {
			return nil, err
		}
		return finish(cfg)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config %s: unknown field %s", path, undecoded[0].String())
		}
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh install.
func Default() *Config {
	cfg := &Config{
		RPCAddress:        ":8545",
		GRPCAddress:       ":9090",
		DataDir:           "./defi-data",
		Storage:           StorageLevelDB,
		Env:               "local",
		DevMode:           true,
		HeightIntervalRaw: DefaultHeightInterval.String(),
		Token:             Token{Name: "Deficore", Symbol: "DFC", Decimals: 7, InitialSupply: "0"},
		Staking:           Staking{Enabled: false, RewardRateBps: 0, MinStakeDuration: 0},
		Lending:           lending.Config{CollateralFactorBps: 7500},
		EventLog:          EventLog{Driver: DriverSQLite, DSN: "", BufferSize: 1024},
		Telemetry:         Telemetry{Endpoint: "localhost:4318", Insecure: true, SampleRatio: 1},
		Auth:              Auth{Issuer: "deficore", TokenTTL: "1h"},
		RateLimit:         RateLimit{RequestsPerSecond: 50, Burst: 100, MaxConnections: 256},
		Log:               Log{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
	}
	cfg.Lending.EnsureDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Storage) == "" {
		c.Storage = StorageLevelDB
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./defi-data"
	}
	if strings.TrimSpace(c.Token.Name) == "" {
		c.Token.Name = "Deficore"
	}
	if strings.TrimSpace(c.Token.Symbol) == "" {
		c.Token.Symbol = "DFC"
	}
	if c.EventLog.Driver == DriverSQLite && strings.TrimSpace(c.EventLog.DSN) == "" {
		c.EventLog.DSN = filepath.Join(c.DataDir, "events.db")
	}
	if c.EventLog.BufferSize <= 0 {
		c.EventLog.BufferSize = 1024
	}
	c.Lending.EnsureDefaults()
}

func (c *Config) applyEnv() {
	if env := strings.TrimSpace(os.Getenv(EnvEnvironment)); env != "" {
		c.Env = env
	}
	if secret := os.Getenv(EnvJWTSecret); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if headers := os.Getenv(EnvOTLPHeaders); headers != "" {
		c.Telemetry.Headers = headers
	}
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.AdminKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}
	if _, _, err := crypto.LoadOrCreateKeystore(keystorePath, os.Getenv(EnvKeystorePassphrase)); err != nil {
		return err
	}
	if cfg.AdminKeystorePath != keystorePath {
		cfg.AdminKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, os.Getenv(EnvKeystorePassphrase)); err != nil {
		return nil, err
	}
	cfg := Default()
	cfg.AdminKeystorePath = keystorePath
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "admin.keystore")
}
