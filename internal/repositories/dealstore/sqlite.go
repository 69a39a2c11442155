package dealstore

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/ConsignEx/escrowrouter/internal/interfaces"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists receipts in a single-file sqlite database. The
// pool is capped at one connection, sqlite serializes writers anyway
// and a single connection avoids SQLITE_BUSY under concurrent puts.
type SQLiteStore struct {
	db  *sql.DB
	log interfaces.ILogger
}

func NewSQLiteStore(path string, log interfaces.ILogger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Debugf("sqlite deal store opened at %s", path)
	return &SQLiteStore{db: db, log: log}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL keeps readers unblocked during write-through
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS deals (
		id TEXT PRIMARY KEY,
		buyer TEXT NOT NULL,
		producer TEXT NOT NULL,
		carrier TEXT NOT NULL,
		arbiter TEXT NOT NULL,
		producer_amount TEXT NOT NULL,
		carrier_amount TEXT NOT NULL,
		fee TEXT NOT NULL,
		signature_mask INTEGER NOT NULL,
		arbiter_acknowledged INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		settled_at INTEGER NOT NULL
	);`)
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, receipt *Receipt) error {
	settledAt := int64(0)
	if !receipt.SettledAt.IsZero() {
		settledAt = receipt.SettledAt.UnixNano()
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO deals
		(id, buyer, producer, carrier, arbiter, producer_amount, carrier_amount, fee, signature_mask, arbiter_acknowledged, created_at, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			producer_amount = excluded.producer_amount,
			carrier_amount = excluded.carrier_amount,
			fee = excluded.fee,
			signature_mask = excluded.signature_mask,
			arbiter_acknowledged = excluded.arbiter_acknowledged,
			settled_at = excluded.settled_at`,
		receipt.ID.Hex(),
		receipt.Buyer.Hex(),
		receipt.Producer.Hex(),
		receipt.Carrier.Hex(),
		receipt.Arbiter.Hex(),
		receipt.ProducerAmount.String(),
		receipt.CarrierAmount.String(),
		receipt.Fee.String(),
		receipt.SignatureMask,
		receipt.ArbiterAcknowledged,
		receipt.CreatedAt.UnixNano(),
		settledAt,
	)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id common.Hash) (*Receipt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, buyer, producer, carrier, arbiter,
		producer_amount, carrier_amount, fee, signature_mask, arbiter_acknowledged, created_at, settled_at
		FROM deals WHERE id = ?`, id.Hex())

	receipt, err := scanReceipt(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return receipt, err
}

func (s *SQLiteStore) All(ctx context.Context) ([]*Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, buyer, producer, carrier, arbiter,
		producer_amount, carrier_amount, fee, signature_mask, arbiter_acknowledged, created_at, settled_at
		FROM deals ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []*Receipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, receipt)
	}
	return receipts, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReceipt(row rowScanner) (*Receipt, error) {
	var (
		id, buyer, producer, carrier, arbiter string
		producerAmount, carrierAmount, fee    string
		mask                                  uint8
		acknowledged                          bool
		createdAt, settledAt                  int64
	)

	err := row.Scan(&id, &buyer, &producer, &carrier, &arbiter,
		&producerAmount, &carrierAmount, &fee, &mask, &acknowledged, &createdAt, &settledAt)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{
		ID:                  common.HexToHash(id),
		Buyer:               common.HexToAddress(buyer),
		Producer:            common.HexToAddress(producer),
		Carrier:             common.HexToAddress(carrier),
		Arbiter:             common.HexToAddress(arbiter),
		SignatureMask:       mask,
		ArbiterAcknowledged: acknowledged,
		CreatedAt:           time.Unix(0, createdAt).UTC(),
	}
	if settledAt != 0 {
		receipt.SettledAt = time.Unix(0, settledAt).UTC()
	}

	receipt.ProducerAmount, err = parseAmount(producerAmount)
	if err != nil {
		return nil, err
	}
	receipt.CarrierAmount, err = parseAmount(carrierAmount)
	if err != nil {
		return nil, err
	}
	receipt.Fee, err = parseAmount(fee)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func parseAmount(s string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed stored amount %q", s)
	}
	return value, nil
}
