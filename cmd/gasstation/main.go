package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/fueltron/gasstation/internal/activator"
	"github.com/fueltron/gasstation/internal/config"
	"github.com/fueltron/gasstation/internal/delegator"
	"github.com/fueltron/gasstation/internal/gasstation"
	"github.com/fueltron/gasstation/internal/keys"
	"github.com/fueltron/gasstation/internal/ledger"
	"github.com/fueltron/gasstation/internal/logging"
	"github.com/fueltron/gasstation/internal/models"
	"github.com/fueltron/gasstation/internal/oracle"
	"github.com/fueltron/gasstation/internal/rpc"
	"github.com/fueltron/gasstation/internal/signer"
	"github.com/fueltron/gasstation/internal/simulator"
	"github.com/fueltron/gasstation/internal/tronaddr"
	"github.com/fueltron/gasstation/internal/verifier"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "prepare":
		if err := runPrepare(); err != nil {
			slog.Error("prepare error", "error", err)
			os.Exit(1)
		}
	case "dry-run":
		if err := runDryRun(); err != nil {
			slog.Error("dry-run error", "error", err)
			os.Exit(1)
		}
	case "health":
		if err := runHealth(); err != nil {
			slog.Error("health error", "error", err)
			os.Exit(1)
		}
	case "status":
		if err := runStatus(); err != nil {
			slog.Error("status error", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("gasstation %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: gasstation <command> [flags]

Commands:
  prepare --target <address>   Prepare an address for a sponsored USDT transfer
  dry-run --target <address>   Preview the delegation plan without broadcasting
  health                       Probe configured RPC endpoint connectivity
  status                       Report pool wallet resources and signing config
  version                      Print version information
`)
}

// build wires config, logging, keys, RPC, and every pipeline stage into a
// ready gasstation.Service, plus a func that closes the log file.
func build() (*gasstation.Service, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		return nil, nil, fmt.Errorf("setup logging: %w", err)
	}
	closeFn := func() { logCloser.Close() }

	slog.Info("starting gasstation",
		"version", version,
		"network", cfg.Network,
		"poolWallet", cfg.GasWalletAddress,
	)

	client, err := buildClient(cfg)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("build rpc client: %w", err)
	}

	control, owner, dedicated, err := buildKeys(cfg)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("load keys: %w", err)
	}

	policy, err := signer.NewPolicy(control != nil, owner != nil, cfg.ControlFallbackToOwner)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("determine signing policy: %w", err)
	}

	permission := models.PermissionSpec{
		PermissionID: cfg.ControlPermissionID,
		AllowedOps:   cfg.AllowedOps(),
	}

	sgn, err := signer.New(policy, permission, control, owner)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("build signer: %w", err)
	}

	var dedicatedSigner *signer.Signer
	if dedicated != nil {
		dedicatedSigner, err = signer.New(signer.PolicyOwnerOnly, models.PermissionSpec{}, nil, dedicated)
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("build dedicated activation signer: %w", err)
		}
	}

	usdtContract := cfg.USDTContract()
	sim, err := simulator.New(client, usdtContract)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("build simulator: %w", err)
	}

	orc := oracle.New(client, cfg.Network, cfg.EnergyUnitsPerTRXEstimate, cfg.BandwidthUnitsPerTRXEstimate)

	poolWalletHex, err := tronaddr.ToHex(cfg.GasWalletAddress)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("invalid pool wallet address: %w", err)
	}

	act := activator.New(client, sgn, dedicatedSigner, poolWalletHex, cfg.ActivationMode, cfg.ActivationCostTRX(), cfg.CreateAccountSupported)
	deleg := delegator.New(client, sgn, poolWalletHex, cfg.TargetEnergyUnits, cfg.TargetBandwidthUnits)
	ver := verifier.New(client)

	var led gasstation.Ledger
	if cfg.LedgerEnabled {
		l, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			slog.Warn("ledger unavailable, continuing without audit trail", "error", err)
		} else {
			led = l
		}
	}

	profile := models.NetworkProfile{
		Kind:              models.NetworkKind(cfg.Network),
		ActivationCostTRX: cfg.ActivationCostTRX(),
		USDTContract:      usdtContract,
	}

	svc, err := gasstation.New(gasstation.Deps{
		Client:            client,
		Oracle:            orc,
		Simulator:         sim,
		Control:           sgn,
		Activator:         act,
		Delegator:         deleg,
		Verifier:          ver,
		Ledger:            led,
		PoolWalletAddress: cfg.GasWalletAddress,
		Permission:        permission,
		FallbackToOwner:   cfg.ControlFallbackToOwner,
		Profile:           profile,
	})
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("build gasstation service: %w", err)
	}

	return svc, closeFn, nil
}

// buildClient assembles the endpoint pool: local full/solidity nodes plus
// optional remote fallbacks, all consulted per call (spec §4.2's multi-source
// read policy relies on more than one endpoint being configured).
func buildClient(cfg *config.Config) (*rpc.Client, error) {
	var endpoints []*rpc.Endpoint

	if cfg.LocalNodeEnabled && cfg.FullNodeURL != "" {
		endpoints = append(endpoints, rpc.NewEndpoint("local-full", cfg.FullNodeURL, "", 0))
	}
	if cfg.LocalNodeEnabled && cfg.SolidityNodeURL != "" {
		endpoints = append(endpoints, rpc.NewEndpoint("local-solidity", cfg.SolidityNodeURL, "", 0))
	}
	if cfg.RemoteFullNodeURL != "" {
		endpoints = append(endpoints, rpc.NewEndpoint("remote-full", cfg.RemoteFullNodeURL, cfg.RemoteAPIKey, 0))
	}
	if cfg.RemoteSolidityNodeURL != "" {
		endpoints = append(endpoints, rpc.NewEndpoint("remote-solidity", cfg.RemoteSolidityNodeURL, cfg.RemoteAPIKey, 0))
	}

	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no RPC endpoints configured")
	}

	return rpc.NewClient(endpoints...)
}

// buildKeys loads the control key (raw hex or mnemonic-derived), the
// optional owner fallback key, and the optional dedicated activation key.
func buildKeys(cfg *config.Config) (control, owner, dedicated *keys.KeyPair, err error) {
	switch {
	case cfg.ControlPrivateKey != "":
		control, err = keys.FromHex(cfg.ControlPrivateKey)
	case cfg.ControlMnemonicFile != "":
		control, err = keys.FromMnemonicFile(cfg.ControlMnemonicFile, cfg.ControlDerivationPath)
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load control key: %w", err)
	}

	if cfg.GasWalletPrivateKey != "" {
		owner, err = keys.FromHex(cfg.GasWalletPrivateKey)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load owner key: %w", err)
		}
	}

	if cfg.ActivationKey != "" {
		dedicated, err = keys.FromHex(cfg.ActivationKey)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load activation key: %w", err)
		}
	}

	return control, owner, dedicated, nil
}

func runPrepare() error {
	fs := flag.NewFlagSet("prepare", flag.ExitOnError)
	target := fs.String("target", "", "TRON address to prepare for a sponsored USDT transfer (required)")
	fs.Parse(os.Args[2:])

	if *target == "" {
		return fmt.Errorf("--target is required")
	}

	svc, closeFn, err := build()
	if err != nil {
		return err
	}
	defer closeFn()

	result := svc.PrepareForUSDT(context.Background(), *target)
	return printJSON(result)
}

func runDryRun() error {
	fs := flag.NewFlagSet("dry-run", flag.ExitOnError)
	target := fs.String("target", "", "TRON address to preview a delegation plan for (required)")
	fs.Parse(os.Args[2:])

	if *target == "" {
		return fmt.Errorf("--target is required")
	}

	svc, closeFn, err := build()
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := svc.DryRun(context.Background(), *target)
	if err != nil {
		return fmt.Errorf("dry run: %w", err)
	}
	return printJSON(result)
}

func runHealth() error {
	svc, closeFn, err := build()
	if err != nil {
		return err
	}
	defer closeFn()

	return printJSON(svc.Health(context.Background()))
}

func runStatus() error {
	svc, closeFn, err := build()
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := svc.Status(context.Background())
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	return printJSON(result)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
