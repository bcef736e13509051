package memory

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"

	"positionScope/internal/model"
	"positionScope/internal/store"
)

// Store is an in-memory Repository. Entities are copied on the way in and
// out so callers never share state with the store.
type Store struct {
	positions    *xsync.Map[string, *model.Position]
	snapshots    *xsync.Map[string, *model.PositionSnapshot]
	tokens       *xsync.Map[string, *model.Token]
	pools        *xsync.Map[string, *model.Pool]
	transactions *xsync.Map[string, model.Transaction]
}

var _ store.Repository = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		positions:    xsync.NewMap[string, *model.Position](),
		snapshots:    xsync.NewMap[string, *model.PositionSnapshot](),
		tokens:       xsync.NewMap[string, *model.Token](),
		pools:        xsync.NewMap[string, *model.Pool](),
		transactions: xsync.NewMap[string, model.Transaction](),
	}
}

func (s *Store) LoadPosition(_ context.Context, id string) (*model.Position, bool, error) {
	p, ok := s.positions.Load(id)
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (s *Store) UpsertPosition(_ context.Context, position *model.Position) error {
	if position == nil || position.ID == "" {
		return fmt.Errorf("position id required")
	}
	s.positions.Store(position.ID, position.Clone())
	return nil
}

func (s *Store) LoadPositionSnapshot(_ context.Context, id string) (*model.PositionSnapshot, bool, error) {
	snap, ok := s.snapshots.Load(id)
	if !ok {
		return nil, false, nil
	}
	return snap.Clone(), true, nil
}

func (s *Store) UpsertPositionSnapshot(_ context.Context, snapshot *model.PositionSnapshot) error {
	if snapshot == nil || snapshot.ID == "" {
		return fmt.Errorf("snapshot id required")
	}
	s.snapshots.Store(snapshot.ID, snapshot.Clone())
	return nil
}

func (s *Store) LoadToken(_ context.Context, id string) (*model.Token, bool, error) {
	token, ok := s.tokens.Load(id)
	if !ok {
		return nil, false, nil
	}
	return token.Clone(), true, nil
}

func (s *Store) UpsertToken(_ context.Context, token *model.Token) error {
	if token == nil || token.ID == "" {
		return fmt.Errorf("token id required")
	}
	s.tokens.Store(token.ID, token.Clone())
	return nil
}

func (s *Store) LoadPool(_ context.Context, id string) (*model.Pool, bool, error) {
	pool, ok := s.pools.Load(id)
	if !ok {
		return nil, false, nil
	}
	return pool.Clone(), true, nil
}

func (s *Store) UpsertPool(_ context.Context, pool *model.Pool) error {
	if pool == nil || pool.ID == "" {
		return fmt.Errorf("pool id required")
	}
	s.pools.Store(pool.ID, pool.Clone())
	return nil
}

func (s *Store) LoadTransaction(_ context.Context, id string) (*model.Transaction, bool, error) {
	tx, ok := s.transactions.Load(id)
	if !ok {
		return nil, false, nil
	}
	return &tx, true, nil
}

func (s *Store) UpsertTransaction(_ context.Context, tx *model.Transaction) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("transaction id required")
	}
	s.transactions.Store(tx.ID, *tx)
	return nil
}

// Counts reports how many entities of each kind are stored.
func (s *Store) Counts() map[store.Kind]int {
	return map[store.Kind]int{
		store.KindPosition:         s.positions.Size(),
		store.KindPositionSnapshot: s.snapshots.Size(),
		store.KindToken:            s.tokens.Size(),
		store.KindPool:             s.pools.Size(),
		store.KindTransaction:      s.transactions.Size(),
	}
}

// Snapshots returns every snapshot recorded for a position.
func (s *Store) Snapshots(positionID string) []*model.PositionSnapshot {
	var out []*model.PositionSnapshot
	s.snapshots.Range(func(_ string, snap *model.PositionSnapshot) bool {
		if snap.Position == positionID {
			out = append(out, snap.Clone())
		}
		return true
	})
	return out
}
