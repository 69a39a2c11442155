package dealstore

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/ConsignEx/escrowrouter/internal/lib"
)

// MemoryStore keeps receipts in process memory. Used by the default
// profile and by tests, records do not survive a restart.
type MemoryStore struct {
	records *lib.Collection[*Receipt]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: lib.NewCollection[*Receipt](),
	}
}

func (s *MemoryStore) Put(ctx context.Context, receipt *Receipt) error {
	s.records.Store(receipt.Copy())
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id common.Hash) (*Receipt, error) {
	receipt, ok := s.records.Load(id.Hex())
	if !ok {
		return nil, ErrNotFound
	}
	return receipt.Copy(), nil
}

func (s *MemoryStore) All(ctx context.Context) ([]*Receipt, error) {
	receipts := make([]*Receipt, 0, s.records.Len())
	s.records.Range(func(receipt *Receipt) bool {
		receipts = append(receipts, receipt.Copy())
		return true
	})
	return receipts, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
