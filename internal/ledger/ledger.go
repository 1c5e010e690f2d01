// Package ledger persists a best-effort audit trail of preparation
// attempts to SQLite, so operators can answer "what did the gas station try
// for address X" without re-deriving it from chain state. It is never the
// system of record — TRON itself is — and a ledger write failure must never
// fail or block a preparation.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/fueltron/gasstation/internal/models"
)

// Ledger wraps a WAL-mode SQLite connection recording one row per
// PrepareForUSDT call.
type Ledger struct {
	conn *sql.DB
	path string
}

// Open opens (creating if absent) a SQLite database at path in WAL mode and
// ensures the preparations table exists.
func Open(path string) (*Ledger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory %q: %w", dir, err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger database %q: %w", path, err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}

	return &Ledger{conn: conn, path: path}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS preparations (
	id                  TEXT PRIMARY KEY,
	target_address      TEXT NOT NULL,
	strategy            TEXT NOT NULL,
	success             INTEGER NOT NULL,
	required_energy     INTEGER NOT NULL,
	required_bandwidth  INTEGER NOT NULL,
	execution_time_ms   INTEGER NOT NULL,
	warnings_json       TEXT NOT NULL DEFAULT '[]',
	errors_json         TEXT NOT NULL DEFAULT '[]',
	delegations_json    TEXT NOT NULL DEFAULT '[]',
	created_at          TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_preparations_target ON preparations(target_address);

CREATE TABLE IF NOT EXISTS delegation_ledger (
	id                  TEXT PRIMARY KEY,
	preparation_id      TEXT NOT NULL REFERENCES preparations(id),
	target_address      TEXT NOT NULL,
	resource            TEXT NOT NULL,
	units_requested     INTEGER NOT NULL,
	trx_frozen_sun      INTEGER NOT NULL,
	txid                TEXT NOT NULL DEFAULT '',
	broadcast_ok        INTEGER NOT NULL,
	observed_increase   INTEGER NOT NULL,
	lock_period_ns       INTEGER NOT NULL,
	created_at          TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_delegation_ledger_preparation ON delegation_ledger(preparation_id);
CREATE INDEX IF NOT EXISTS idx_delegation_ledger_target ON delegation_ledger(target_address);
`

// Close closes the underlying connection.
func (l *Ledger) Close() error {
	return l.conn.Close()
}

// RecordPreparation writes one row to preparations per PrepareForUSDT call,
// plus one row to delegation_ledger per entry of result.Delegations, whether
// or not that leg's broadcast succeeded (a preparation with both an ENERGY
// and a BANDWIDTH leg writes two delegation_ledger rows referencing the same
// preparation id). Both writes
// happen in one transaction so a delegation row never outlives its parent.
// It never returns an error to the caller — failures are logged, not
// surfaced, since the ledger must not be able to fail a preparation (spec's
// non-goal on recovering funds after broadcast applies equally to
// bookkeeping: a write failure here is an observability gap, not a
// pipeline fault).
func (l *Ledger) RecordPreparation(ctx context.Context, targetAddress string, result models.PreparationResult) {
	warningsJSON, err := json.Marshal(result.Warnings)
	if err != nil {
		slog.Warn("ledger: marshal warnings failed", "target", targetAddress, "error", err)
		warningsJSON = []byte("[]")
	}
	errorsJSON, err := json.Marshal(result.Errors)
	if err != nil {
		slog.Warn("ledger: marshal errors failed", "target", targetAddress, "error", err)
		errorsJSON = []byte("[]")
	}
	delegationsJSON, err := json.Marshal(result.Delegations)
	if err != nil {
		slog.Warn("ledger: marshal delegations failed", "target", targetAddress, "error", err)
		delegationsJSON = []byte("[]")
	}

	preparationID := uuid.NewString()

	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		slog.Warn("ledger: begin transaction failed", "target", targetAddress, "error", err)
		return
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO preparations (id, target_address, strategy, success, required_energy, required_bandwidth, execution_time_ms, warnings_json, errors_json, delegations_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		preparationID,
		targetAddress,
		result.Strategy,
		boolToInt(result.Success),
		result.RequiredEnergy,
		result.RequiredBandwidth,
		result.ExecutionTimeMS,
		string(warningsJSON),
		string(errorsJSON),
		string(delegationsJSON),
	)
	if err != nil {
		slog.Warn("ledger: insert preparation row failed", "target", targetAddress, "error", err)
		return
	}

	for _, d := range result.Delegations {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO delegation_ledger (id, preparation_id, target_address, resource, units_requested, trx_frozen_sun, txid, broadcast_ok, observed_increase, lock_period_ns)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(),
			preparationID,
			targetAddress,
			d.Resource,
			d.UnitsRequested,
			d.TRXFrozenSun,
			d.TxID,
			boolToInt(d.BroadcastOK),
			boolToInt(d.ObservedIncrease),
			int64(d.LockPeriod),
		)
		if err != nil {
			slog.Warn("ledger: insert delegation row failed", "target", targetAddress, "resource", d.Resource, "error", err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Warn("ledger: commit preparation failed", "target", targetAddress, "error", err)
	}
}

// Row is a materialized preparations table row, returned by History.
type Row struct {
	ID                string
	TargetAddress     string
	Strategy          string
	Success           bool
	RequiredEnergy    int64
	RequiredBandwidth int64
	ExecutionTimeMS   int64
	CreatedAt         string
}

// History returns the most recent preparation attempts for targetAddress,
// newest first, for operator troubleshooting.
func (l *Ledger) History(ctx context.Context, targetAddress string, limit int) ([]Row, error) {
	rows, err := l.conn.QueryContext(ctx,
		`SELECT id, target_address, strategy, success, required_energy, required_bandwidth, execution_time_ms, created_at
		 FROM preparations WHERE target_address = ? ORDER BY created_at DESC LIMIT ?`,
		targetAddress, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query preparation history: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var successInt int
		if err := rows.Scan(&r.ID, &r.TargetAddress, &r.Strategy, &successInt, &r.RequiredEnergy, &r.RequiredBandwidth, &r.ExecutionTimeMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan preparation row: %w", err)
		}
		r.Success = successInt != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// DelegationRow is a materialized delegation_ledger row, one per resource
// broadcast during a preparation.
type DelegationRow struct {
	ID              string
	PreparationID   string
	TargetAddress   string
	Resource        string
	UnitsRequested  int64
	TRXFrozenSun    int64
	TxID            string
	BroadcastOK     bool
	ObservedIncrease bool
	CreatedAt       string
}

// DelegationHistory returns the delegation_ledger rows for targetAddress,
// newest first, for operator troubleshooting of individual freeze/delegate
// broadcasts rather than whole-preparation outcomes.
func (l *Ledger) DelegationHistory(ctx context.Context, targetAddress string, limit int) ([]DelegationRow, error) {
	rows, err := l.conn.QueryContext(ctx,
		`SELECT id, preparation_id, target_address, resource, units_requested, trx_frozen_sun, txid, broadcast_ok, observed_increase, created_at
		 FROM delegation_ledger WHERE target_address = ? ORDER BY created_at DESC LIMIT ?`,
		targetAddress, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query delegation history: %w", err)
	}
	defer rows.Close()

	var out []DelegationRow
	for rows.Next() {
		var r DelegationRow
		var broadcastOK, observedIncrease int
		if err := rows.Scan(&r.ID, &r.PreparationID, &r.TargetAddress, &r.Resource, &r.UnitsRequested, &r.TRXFrozenSun, &r.TxID, &broadcastOK, &observedIncrease, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delegation row: %w", err)
		}
		r.BroadcastOK = broadcastOK != 0
		r.ObservedIncrease = observedIncrease != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
