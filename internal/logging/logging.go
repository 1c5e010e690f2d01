// Package logging configures the process-wide structured logger, with a
// redaction hook that keeps private key material out of every log sink:
// signer and keys operate on secp256k1 private keys and 65-byte signatures
// that must never reach stdout or the log file, structured or otherwise.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fueltron/gasstation/internal/config"
)

// redactedAttrKeys names slog attribute keys that must never be written in
// the clear: signer.Signer and keys.KeyPair log around signing operations
// (op, txID, key selection) but must not accidentally log the key or
// signature bytes if a caller misuses slog.Any with the wrong value.
var redactedAttrKeys = map[string]bool{
	"private_key": true,
	"privatekey":  true,
	"key_hex":     true,
	"seed":        true,
	"mnemonic":    true,
}

// redactSecrets is a slog.HandlerOptions.ReplaceAttr hook that masks any
// attribute whose key names key material, regardless of which package
// logged it. Op names, addresses, and txIDs are unaffected.
func redactSecrets(groups []string, a slog.Attr) slog.Attr {
	if redactedAttrKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}

// Setup initializes the global slog logger with dual output: stdout plus a
// log file under dir named for the current date. The file is chosen once,
// here; a process that runs past midnight keeps writing to the same file.
// Returns an io.Closer the caller should close on shutdown.
func Setup(levelStr, dir string) (io.Closer, error) {
	level, err := parseLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", levelStr, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %q: %w", dir, err)
	}

	filename := fmt.Sprintf(config.LogFilePattern, time.Now().Format("2006-01-02"))
	logFilePath := filepath.Join(dir, filename)

	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", logFilePath, err)
	}

	writer := io.MultiWriter(os.Stdout, file)
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level, ReplaceAttr: redactSecrets})
	slog.SetDefault(slog.New(handler))

	slog.Info("logging initialized", "level", levelStr, "dir", dir, "file", filename)

	if removed := CleanOldLogs(dir, config.LogMaxAgeDays); removed > 0 {
		slog.Info("cleaned old log files", "removed", removed, "maxAgeDays", config.LogMaxAgeDays)
	}

	return file, nil
}

// WithTarget returns a logger bound to the target address and preparation
// strategy, used by the orchestrator so every log line inside a single
// PrepareForUSDT call carries the same correlating fields without every
// call site repeating them.
func WithTarget(targetAddress, strategy string) *slog.Logger {
	return slog.With("target", targetAddress, "strategy", strategy)
}

// CleanOldLogs deletes gas-station log files under dir older than maxAgeDays.
// Returns the number of files removed.
func CleanOldLogs(dir string, maxAgeDays int) int {
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	removed := 0

	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("failed to read log directory for cleanup", "dir", dir, "error", err)
		return 0
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "gasstation-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			full := filepath.Join(dir, name)
			if err := os.Remove(full); err != nil {
				slog.Warn("failed to remove old log file", "file", full, "error", err)
			} else {
				removed++
			}
		}
	}

	return removed
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}
