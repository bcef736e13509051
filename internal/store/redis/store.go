package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"positionScope/internal/model"
	"positionScope/internal/store"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "positionscope"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store keeps each entity as a JSON document under prefix:kind:id.
type Store struct {
	client redis.Cmdable
	closer func() error
	prefix string
}

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, opts Options, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	logger.Info("connected to redis", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))

	s := NewStoreWithClient(rdb, opts.Prefix)
	s.closer = rdb.Close
	return s, nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client redis.Cmdable, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// Key returns the Redis key for an entity.
func (s *Store) Key(kind store.Kind, id string) string {
	return s.prefix + ":" + string(kind) + ":" + id
}

func (s *Store) stateKey(name string) string {
	return s.prefix + ":state:" + name
}

func (s *Store) LoadPosition(ctx context.Context, id string) (*model.Position, bool, error) {
	var p model.Position
	ok, err := s.load(ctx, s.Key(store.KindPosition, id), &p)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &p, true, nil
}

func (s *Store) UpsertPosition(ctx context.Context, p *model.Position) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("position id required")
	}
	return s.save(ctx, s.Key(store.KindPosition, p.ID), p)
}

func (s *Store) LoadPositionSnapshot(ctx context.Context, id string) (*model.PositionSnapshot, bool, error) {
	var snap model.PositionSnapshot
	ok, err := s.load(ctx, s.Key(store.KindPositionSnapshot, id), &snap)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &snap, true, nil
}

func (s *Store) UpsertPositionSnapshot(ctx context.Context, snap *model.PositionSnapshot) error {
	if snap == nil || snap.ID == "" {
		return fmt.Errorf("position snapshot id required")
	}
	return s.save(ctx, s.Key(store.KindPositionSnapshot, snap.ID), snap)
}

func (s *Store) LoadToken(ctx context.Context, id string) (*model.Token, bool, error) {
	var t model.Token
	ok, err := s.load(ctx, s.Key(store.KindToken, id), &t)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &t, true, nil
}

func (s *Store) UpsertToken(ctx context.Context, t *model.Token) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("token id required")
	}
	return s.save(ctx, s.Key(store.KindToken, t.ID), t)
}

func (s *Store) LoadPool(ctx context.Context, id string) (*model.Pool, bool, error) {
	var p model.Pool
	ok, err := s.load(ctx, s.Key(store.KindPool, id), &p)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &p, true, nil
}

func (s *Store) UpsertPool(ctx context.Context, p *model.Pool) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("pool id required")
	}
	return s.save(ctx, s.Key(store.KindPool, p.ID), p)
}

func (s *Store) LoadTransaction(ctx context.Context, id string) (*model.Transaction, bool, error) {
	var tx model.Transaction
	ok, err := s.load(ctx, s.Key(store.KindTransaction, id), &tx)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &tx, true, nil
}

func (s *Store) UpsertTransaction(ctx context.Context, tx *model.Transaction) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("transaction id required")
	}
	return s.save(ctx, s.Key(store.KindTransaction, tx.ID), tx)
}

// LoadState returns the reconcile cursor saved under name.
func (s *Store) LoadState(ctx context.Context, name string) (model.Cursor, bool, error) {
	if name == "" {
		return model.Cursor{}, false, fmt.Errorf("state name required")
	}
	var cursor model.Cursor
	ok, err := s.load(ctx, s.stateKey(name), &cursor)
	return cursor, ok, err
}

// SaveState stores the reconcile cursor for a name.
func (s *Store) SaveState(ctx context.Context, name string, cursor model.Cursor) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	return s.save(ctx, s.stateKey(name), cursor)
}

func (s *Store) load(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) save(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
