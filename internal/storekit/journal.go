package storekit

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Journal records which store transactions have been seen and acknowledged,
// so replayed updates after a crash or restart are deduplicated and
// re-acknowledgment stays idempotent.
type Journal struct {
	db     *sql.DB
	dbPath string
}

// OpenJournal opens (creating if needed) the transaction journal under dataDir.
func OpenJournal(dataDir string) (*Journal, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}

	storeDir := filepath.Join(dataDir, "store")
	if err := os.MkdirAll(storeDir, 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	dbPath := filepath.Join(storeDir, "transactions.db")

	// Pragmas go in the DSN so every pool connection is configured.
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open transaction journal: %w", err)
	}

	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	j := &Journal{db: db, dbPath: dbPath}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}

	log.Info().Str("dbPath", dbPath).Msg("Transaction journal opened")
	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS store_transactions (
		transaction_id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		purchase_date INTEGER NOT NULL,
		acked INTEGER NOT NULL DEFAULT 0,
		recorded_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_store_txn_acked ON store_transactions(acked);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record inserts a transaction if it has not been seen before.
// Returns true when the transaction is new.
func (j *Journal) Record(txn VerifiedTransaction) (bool, error) {
	res, err := j.db.Exec(
		`INSERT OR IGNORE INTO store_transactions (transaction_id, product_id, purchase_date, acked, recorded_at)
		 VALUES (?, ?, ?, 0, ?)`,
		txn.TransactionID, txn.ProductID, txn.PurchaseDate.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("record transaction %s: %w", txn.TransactionID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record transaction %s: %w", txn.TransactionID, err)
	}
	return rows > 0, nil
}

// MarkAcked records that the transaction was acknowledged with the store.
func (j *Journal) MarkAcked(transactionID string) error {
	if _, err := j.db.Exec(
		`UPDATE store_transactions SET acked = 1 WHERE transaction_id = ?`, transactionID,
	); err != nil {
		return fmt.Errorf("mark transaction %s acked: %w", transactionID, err)
	}
	return nil
}

// UnackedIDs returns transactions recorded but never acknowledged, so a
// restarted listener can retry the acknowledgment.
func (j *Journal) UnackedIDs() ([]string, error) {
	rows, err := j.db.Query(`SELECT transaction_id FROM store_transactions WHERE acked = 0 ORDER BY recorded_at`)
	if err != nil {
		return nil, fmt.Errorf("list unacked transactions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan unacked transaction: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
