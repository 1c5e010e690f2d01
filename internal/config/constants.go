package config

import "time"

// Network identifiers.
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
)

// Activation modes.
const (
	ActivationModeTransfer      = "transfer"
	ActivationModeCreateAccount = "create_account"
)

// Resource identifiers used throughout the delegation and verification pipeline.
const (
	ResourceEnergy    = "ENERGY"
	ResourceBandwidth = "BANDWIDTH"
)

// Preparation strategies reported on PreparationResult.
const (
	StrategyAlreadyReady        = "already_ready"
	StrategyCompletePreparation = "complete_preparation"
	StrategyActivationFailed    = "activation_failed"
	StrategyPartial             = "partial_preparation"
	StrategyCancelled           = "cancelled"
	StrategyTimeout             = "timeout"
)

// RPC client.
const (
	RPCCallTimeout      = 10 * time.Second
	RPCRetries          = 3
	RPCBackoffBase      = 200 * time.Millisecond
	HTTPMaxConnsPerHost = 16
	HTTPMaxIdleConns    = 32
)

// Circuit breaker (shared shape with the RPC endpoint pool).
const (
	CircuitBreakerThreshold  = 3
	CircuitBreakerCooldown   = 30 * time.Second
	CircuitBreakerHalfOpenMax = 1

	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half_open"
)

// Polling — shared by the Verifier and the Activator's wait_conf step.
const (
	PollInterval     = 500 * time.Millisecond
	PollMaxAttempts  = 10 // 10 * 500ms = 5s window
	PreparationTimeout = 60 * time.Second
)

// Sun / TRX.
const (
	SunPerTRX          = 1_000_000
	MinFreezeSun       = 1_000_000 // network minimum freeze, always ≥ 1 TRX
	FreezeLockDays     = 3
	FreezeLockDuration = FreezeLockDays * 24 * time.Hour
)

// Activation cost per network, in whole TRX.
const (
	ActivationCostTRXTestnet = 1.0
	ActivationCostTRXMainnet = 1.5
)

// Resource Oracle.
const (
	// FallbackEnergyPerTRXMainnet is a long-run mainnet ratio used only when
	// getEnergyFee is absent from live chain parameters. Never used when a
	// live value is available — see DESIGN.md's Open Question resolution.
	FallbackEnergyPerTRXMainnet = 2.38
	TestnetBandwidthFloorTrigger = 50
	TestnetBandwidthFloorValue   = 200
)

// Simulator.
const (
	NewHolderPenaltyMultiplier = 1.2
	HolderClassificationEnergyThreshold = 50_000

	FallbackEnergyExistingHolder = 32_000
	FallbackEnergyNewHolder      = 65_000
	FallbackBandwidthUnits       = 345

	// SignaturePlaceholderBytes is the flat per-signature size added when
	// estimating the serialized length of a would-be signed transaction.
	SignaturePlaceholderBytes = 64
)

// Delegator sizing.
const (
	EnergySafetyMultiplier     = 1.15
	EnergyMarginUnits          = 5_000
	BandwidthSafetyMultiplier  = 1.25
	// BandwidthDelegationFloor floors a *fresh delegation's* bandwidth sizing.
	// Distinct from ReadyBandwidthThreshold — see DESIGN.md.
	BandwidthDelegationFloor = 350
)

// Ready / USDT-ready thresholds (§4.1 probe and §4.8 verification).
const (
	ReadyEnergyThreshold    = 15_000
	ReadyBandwidthThreshold = 300
)

// Verification acceptance ratio against required resources.
const VerificationSuccessRatio = 0.9

// Default control permission id, per historical configuration.
const DefaultControlPermissionID = 2

// Default targets, per historical configuration; the spec leaves these
// parameters, not fixed constants — Config carries the authoritative values.
const (
	DefaultTargetEnergyUnits     = 90_000
	DefaultTargetBandwidthUnits  = 1_000
	DefaultUSDTEnergyEstimate    = 14_650
	DefaultUSDTBandwidthEstimate = 345
)

// Mainnet USDT TRC20 contract, hardcoded per spec §9's Open Question
// resolution. Testnet has no safe default and must be configured.
const MainnetUSDTContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

// Logging.
const (
	LogDir         = "./logs"
	LogFilePattern = "gasstation-%s.log"
	LogMaxAgeDays  = 30
)
