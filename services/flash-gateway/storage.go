package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the audit trail and the committed transaction history.
type SQLiteStore struct {
	db *sql.DB
}

// AuditEntry is one record per gateway request, terminal errors included.
type AuditEntry struct {
	RequestID string
	Action    string
	PoolID    string
	Borrower  string
	Amount    string
	Status    string
	Error     string
	Timestamp time.Time
}

// TransactionRecord is one record per transaction submitted to the ledger.
type TransactionRecord struct {
	Digest    string
	PoolID    string
	Borrower  string
	Amount    string
	Fee       string
	Status    string
	GasUsed   uint64
	Timestamp time.Time
}

// HistoryStats aggregates the committed history for the stats endpoint.
type HistoryStats struct {
	TotalLoans     int64  `json:"totalLoans"`
	SucceededLoans int64  `json:"succeededLoans"`
	TotalVolume    string `json:"totalVolume"`
	TotalFees      string `json:"totalFees"`
}

// NewSQLiteStore opens (creating if necessary) the gateway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS audit_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            request_id TEXT NOT NULL,
            action TEXT NOT NULL,
            pool_id TEXT,
            borrower TEXT,
            amount TEXT,
            status TEXT NOT NULL,
            error TEXT,
            occurred_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS transactions (
            digest TEXT PRIMARY KEY,
            pool_id TEXT NOT NULL,
            borrower TEXT NOT NULL,
            amount TEXT NOT NULL,
            fee TEXT NOT NULL,
            status TEXT NOT NULL,
            gas_used INTEGER NOT NULL,
            committed_at TIMESTAMP NOT NULL
        );`,
	}
	for _, statement := range schema {
		if _, err := s.db.Exec(statement); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// InsertAudit appends one audit record.
func (s *SQLiteStore) InsertAudit(ctx context.Context, entry AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (request_id, action, pool_id, borrower, amount, status, error, occurred_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.Action, entry.PoolID, entry.Borrower, entry.Amount,
		entry.Status, entry.Error, entry.Timestamp.UTC(),
	)
	return err
}

// InsertTransaction records one committed submission. Resubmitted digests
// update in place rather than duplicating history.
func (s *SQLiteStore) InsertTransaction(ctx context.Context, record TransactionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (digest, pool_id, borrower, amount, fee, status, gas_used, committed_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(digest) DO UPDATE SET status = excluded.status, gas_used = excluded.gas_used`,
		record.Digest, record.PoolID, record.Borrower, record.Amount, record.Fee,
		record.Status, record.GasUsed, record.Timestamp.UTC(),
	)
	return err
}

// Stats aggregates the transaction history.
func (s *SQLiteStore) Stats(ctx context.Context) (*HistoryStats, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN status = 'success' THEN CAST(amount AS INTEGER) ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN status = 'success' THEN CAST(fee AS INTEGER) ELSE 0 END), 0)
        FROM transactions`)
	stats := &HistoryStats{}
	var volume, fees int64
	if err := row.Scan(&stats.TotalLoans, &stats.SucceededLoans, &volume, &fees); err != nil {
		return nil, err
	}
	stats.TotalVolume = fmt.Sprintf("%d", volume)
	stats.TotalFees = fmt.Sprintf("%d", fees)
	return stats, nil
}

// Ping verifies the database connection for detailed health checks.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
