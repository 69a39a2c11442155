package dealstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	backend "github.com/redis/go-redis/v9"
	"gitlab.com/ConsignEx/escrowrouter/internal/interfaces"
	"gitlab.com/ConsignEx/escrowrouter/internal/lib"
)

const defaultKeyPrefix = "escrow:deal:"

// RedisStore persists receipts as JSON values keyed by deal id. Meant
// for deployments where several router replicas share one durable
// record set.
type RedisStore struct {
	client *backend.Client
	prefix string
	log    interfaces.ILogger
}

type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the key namespace, handy when one redis
// serves several environments.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

func NewRedisStore(ctx context.Context, addr, password string, db int, log interfaces.ILogger, opts ...RedisOption) (*RedisStore, error) {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	store := NewRedisStoreFromClient(client, log, opts...)

	// fail at boot, not on the first deal
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, lib.WrapError(fmt.Errorf("redis unreachable at %s", addr), err)
	}
	return store, nil
}

func NewRedisStoreFromClient(client *backend.Client, log interfaces.ILogger, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		prefix: defaultKeyPrefix,
		log:    log,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) key(id common.Hash) string {
	return s.prefix + id.Hex()
}

func (s *RedisStore) Put(ctx context.Context, receipt *Receipt) error {
	data, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(receipt.ID), data, 0).Err()
}

func (s *RedisStore) Get(ctx context.Context, id common.Hash) (*Receipt, error) {
	val, err := s.client.Get(ctx, s.key(id)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	receipt := &Receipt{}
	if err := json.Unmarshal([]byte(val), receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

func (s *RedisStore) All(ctx context.Context) ([]*Receipt, error) {
	var receipts []*Receipt

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		val, err := s.client.Get(ctx, iter.Val()).Result()
		if err == backend.Nil {
			continue // deleted between scan and get
		}
		if err != nil {
			return nil, err
		}

		receipt := &Receipt{}
		if err := json.Unmarshal([]byte(val), receipt); err != nil {
			return nil, err
		}
		receipts = append(receipts, receipt)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return receipts, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
