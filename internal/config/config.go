package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all gas station configuration loaded from environment
// variables (optionally seeded from a .env file).
type Config struct {
	Network             string `envconfig:"TRON_NETWORK" default:"testnet"`
	LocalNodeEnabled    bool   `envconfig:"TRON_LOCAL_NODE_ENABLED" default:"true"`
	FullNodeURL         string `envconfig:"TRON_FULL_NODE_URL"`
	SolidityNodeURL     string `envconfig:"TRON_SOLIDITY_NODE_URL"`
	RemoteFullNodeURL   string `envconfig:"TRON_REMOTE_FULL_NODE_URL"`
	RemoteSolidityNodeURL string `envconfig:"TRON_REMOTE_SOLIDITY_NODE_URL"`
	RemoteAPIKey        string `envconfig:"TRON_REMOTE_API_KEY"`
	CreateAccountSupported bool `envconfig:"TRON_CREATE_ACCOUNT_SUPPORTED" default:"false"`
	RPCTimeout          time.Duration `envconfig:"TRON_RPC_TIMEOUT" default:"10s"`
	RPCRetries          int    `envconfig:"TRON_RPC_RETRIES" default:"3"`

	GasWalletAddress    string `envconfig:"GAS_WALLET_ADDRESS" required:"true"`
	GasWalletPrivateKey string `envconfig:"GAS_WALLET_PRIVATE_KEY"`

	ControlPrivateKey      string `envconfig:"GAS_WALLET_CONTROL_PRIVATE_KEY"`
	ControlMnemonicFile    string `envconfig:"GAS_WALLET_CONTROL_MNEMONIC_FILE"`
	ControlDerivationPath  string `envconfig:"GAS_WALLET_CONTROL_DERIVATION_PATH" default:"m/44'/195'/0'/0/0"`
	ControlPermissionID    uint8  `envconfig:"GAS_WALLET_CONTROL_PERMISSION_ID" default:"2"`
	ControlFallbackToOwner bool   `envconfig:"GAS_CONTROL_FALLBACK_TO_OWNER" default:"true"`
	ControlAllowedOps      string `envconfig:"GAS_WALLET_CONTROL_ALLOWED_OPS" default:"Transfer,FreezeBalanceV2,DelegateResource,UnDelegateResource"`

	ActivationMode string `envconfig:"GAS_ACCOUNT_ACTIVATION_MODE" default:"transfer"`
	ActivationKey  string `envconfig:"GAS_ACTIVATION_KEY"`

	TargetEnergyUnits            int64   `envconfig:"TARGET_ENERGY_UNITS" default:"90000"`
	TargetBandwidthUnits         int64   `envconfig:"TARGET_BANDWIDTH_UNITS" default:"1000"`
	USDTEnergyPerTransferEstimate    int64 `envconfig:"USDT_ENERGY_PER_TRANSFER_ESTIMATE" default:"14650"`
	USDTBandwidthPerTransferEstimate int64 `envconfig:"USDT_BANDWIDTH_PER_TRANSFER_ESTIMATE" default:"345"`
	EnergyUnitsPerTRXEstimate    float64 `envconfig:"ENERGY_UNITS_PER_TRX_ESTIMATE" default:"0"`
	BandwidthUnitsPerTRXEstimate float64 `envconfig:"BANDWIDTH_UNITS_PER_TRX_ESTIMATE" default:"0"`
	DelegationSafetyMultiplier   float64 `envconfig:"DELEGATION_SAFETY_MULTIPLIER" default:"0"`
	MinDelegateTRX               float64 `envconfig:"MIN_DELEGATE_TRX" default:"1"`

	MainnetUSDTContract string `envconfig:"TRON_MAINNET_USDT_CONTRACT" default:"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"`
	TestnetUSDTContract string `envconfig:"TRON_TESTNET_USDT_CONTRACT"`

	PreparationTimeout time.Duration `envconfig:"GAS_STATION_PREPARATION_TIMEOUT" default:"60s"`

	LogLevel string `envconfig:"GAS_STATION_LOG_LEVEL" default:"info"`
	LogDir   string `envconfig:"GAS_STATION_LOG_DIR" default:"./logs"`

	LedgerEnabled bool   `envconfig:"GAS_STATION_LEDGER_ENABLED" default:"true"`
	LedgerPath    string `envconfig:"GAS_STATION_LEDGER_PATH" default:"./data/gasstation.sqlite"`
}

// Load reads a .env file if present, then environment variables (which take
// precedence over .env values), and validates the result.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			slog.Warn("failed to load .env file", "error", err)
		} else {
			slog.Info("loaded .env file")
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration values for correctness. It does not validate
// TRON address checksums — that is the tronaddr package's job, applied once
// keys/addresses are actually parsed, to avoid a config→tronaddr import cycle.
func (c *Config) Validate() error {
	if c.Network != NetworkMainnet && c.Network != NetworkTestnet {
		return fmt.Errorf("%w: TRON_NETWORK must be %q or %q, got %q", ErrConfigInvalid, NetworkMainnet, NetworkTestnet, c.Network)
	}

	if c.ActivationMode != ActivationModeTransfer && c.ActivationMode != ActivationModeCreateAccount {
		return fmt.Errorf("%w: GAS_ACCOUNT_ACTIVATION_MODE must be %q or %q, got %q", ErrConfigInvalid, ActivationModeTransfer, ActivationModeCreateAccount, c.ActivationMode)
	}

	if c.ActivationMode == ActivationModeCreateAccount && !c.CreateAccountSupported {
		slog.Warn("create_account mode configured but TRON_CREATE_ACCOUNT_SUPPORTED is false; Activator will refuse this mode at runtime")
	}

	if c.ControlPrivateKey == "" && c.ControlMnemonicFile == "" && c.GasWalletPrivateKey == "" {
		return fmt.Errorf("%w: no signing key configured (need GAS_WALLET_CONTROL_PRIVATE_KEY, GAS_WALLET_CONTROL_MNEMONIC_FILE, or GAS_WALLET_PRIVATE_KEY)", ErrConfigInvalid)
	}

	if c.Network == NetworkTestnet && c.TestnetUSDTContract == "" {
		slog.Warn("TRON_NETWORK=testnet but TRON_TESTNET_USDT_CONTRACT is unset; Simulator will fail until it is configured")
	}

	if c.RPCTimeout <= 0 {
		return fmt.Errorf("%w: TRON_RPC_TIMEOUT must be positive", ErrConfigInvalid)
	}

	if c.RPCRetries < 1 {
		return fmt.Errorf("%w: TRON_RPC_RETRIES must be at least 1", ErrConfigInvalid)
	}

	return nil
}

// USDTContract returns the USDT TRC20 contract address for the configured
// network.
func (c *Config) USDTContract() string {
	if c.Network == NetworkMainnet {
		return c.MainnetUSDTContract
	}
	return c.TestnetUSDTContract
}

// ActivationCostTRX returns the TRX amount sent during transfer-mode
// activation for the configured network.
func (c *Config) ActivationCostTRX() float64 {
	if c.Network == NetworkMainnet {
		return ActivationCostTRXMainnet
	}
	return ActivationCostTRXTestnet
}

// HasOwnerKey reports whether an owner (full-permission) key is configured.
func (c *Config) HasOwnerKey() bool {
	return c.GasWalletPrivateKey != ""
}

// HasControlKey reports whether a control key is configured, either as raw
// hex or via mnemonic derivation.
func (c *Config) HasControlKey() bool {
	return c.ControlPrivateKey != "" || c.ControlMnemonicFile != ""
}

// AllowedOps splits the configured comma-separated control allow-set into
// its op names, trimming whitespace and skipping empty entries.
func (c *Config) AllowedOps() []string {
	var ops []string
	for _, op := range strings.Split(c.ControlAllowedOps, ",") {
		op = strings.TrimSpace(op)
		if op != "" {
			ops = append(ops, op)
		}
	}
	return ops
}
