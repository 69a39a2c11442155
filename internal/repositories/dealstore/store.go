package dealstore

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/ConsignEx/escrowrouter/internal/interfaces"
)

var (
	ErrNotFound       = fmt.Errorf("deal record not found")
	ErrUnknownBackend = fmt.Errorf("unknown store backend")
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Store is the durability layer for deal records. The router keeps the
// authoritative state in memory and writes through to the store, so
// implementations only need last-write-wins semantics per deal id.
type Store interface {
	Put(ctx context.Context, receipt *Receipt) error
	Get(ctx context.Context, id common.Hash) (*Receipt, error)
	All(ctx context.Context) ([]*Receipt, error)
	Close() error
}

// Receipt is the flat persisted form of a deal. Amounts are in token
// base units.
type Receipt struct {
	ID                  common.Hash    `json:"id"`
	Buyer               common.Address `json:"buyer"`
	Producer            common.Address `json:"producer"`
	Carrier             common.Address `json:"carrier"`
	Arbiter             common.Address `json:"arbiter"`
	ProducerAmount      *big.Int       `json:"producerAmount"`
	CarrierAmount       *big.Int       `json:"carrierAmount"`
	Fee                 *big.Int       `json:"fee"`
	SignatureMask       uint8          `json:"signatureMask"`
	ArbiterAcknowledged bool           `json:"arbiterAcknowledged"`
	CreatedAt           time.Time      `json:"createdAt"`
	SettledAt           time.Time      `json:"settledAt"`
}

// GetID implements lib.IModel so receipts can live in a lib.Collection
func (r *Receipt) GetID() string {
	return r.ID.Hex()
}

func (r *Receipt) Copy() *Receipt {
	copied := *r
	copied.ProducerAmount = new(big.Int).Set(r.ProducerAmount)
	copied.CarrierAmount = new(big.Int).Set(r.CarrierAmount)
	copied.Fee = new(big.Int).Set(r.Fee)
	return &copied
}

type FactoryParams struct {
	Backend       string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func Factory(ctx context.Context, params FactoryParams, log interfaces.ILogger) (Store, error) {
	switch params.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendSQLite:
		return NewSQLiteStore(params.SQLitePath, log)
	case BackendRedis:
		return NewRedisStore(ctx, params.RedisAddr, params.RedisPassword, params.RedisDB, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, params.Backend)
	}
}
