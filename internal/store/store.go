package store

import (
	"context"

	"positionScope/internal/model"
)

// Kind names an entity table / key space.
type Kind string

const (
	KindPosition         Kind = "position"
	KindPositionSnapshot Kind = "position_snapshot"
	KindToken            Kind = "token"
	KindPool             Kind = "pool"
	KindTransaction      Kind = "transaction"
)

// Repository loads and upserts whole entities by id. Loads return
// (nil, false, nil) when the entity does not exist. Upserts replace the
// stored entity; the last write for an id wins.
type Repository interface {
	LoadPosition(ctx context.Context, id string) (*model.Position, bool, error)
	UpsertPosition(ctx context.Context, position *model.Position) error

	LoadPositionSnapshot(ctx context.Context, id string) (*model.PositionSnapshot, bool, error)
	UpsertPositionSnapshot(ctx context.Context, snapshot *model.PositionSnapshot) error

	LoadToken(ctx context.Context, id string) (*model.Token, bool, error)
	UpsertToken(ctx context.Context, token *model.Token) error

	LoadPool(ctx context.Context, id string) (*model.Pool, bool, error)
	UpsertPool(ctx context.Context, pool *model.Pool) error

	LoadTransaction(ctx context.Context, id string) (*model.Transaction, bool, error)
	UpsertTransaction(ctx context.Context, tx *model.Transaction) error
}
