package reconcile

import (
	"context"
	"time"

	"positionScope/internal/model"
	"positionScope/internal/storage"
)

// StateStore persists the cursor of the last applied event.
type StateStore interface {
	Load(ctx context.Context) (model.Cursor, bool, error)
	Save(ctx context.Context, cursor model.Cursor) error
}

// FileStateStore stores the cursor in a local JSON file.
type FileStateStore struct {
	Path string
}

type stateRecord struct {
	BlockNumber uint64 `json:"last_block_number"`
	LogIndex    uint64 `json:"last_log_index"`
	UpdatedAt   string `json:"updated_at"`
}

func (s *FileStateStore) Load(_ context.Context) (model.Cursor, bool, error) {
	if s == nil || s.Path == "" {
		return model.Cursor{}, false, nil
	}
	var rec stateRecord
	ok, err := storage.ReadJSONFile(s.Path, &rec)
	if err != nil || !ok {
		return model.Cursor{}, false, err
	}
	return model.Cursor{BlockNumber: rec.BlockNumber, LogIndex: rec.LogIndex}, true, nil
}

func (s *FileStateStore) Save(_ context.Context, cursor model.Cursor) error {
	if s == nil || s.Path == "" {
		return nil
	}
	return storage.WriteJSONFile(s.Path, stateRecord{
		BlockNumber: cursor.BlockNumber,
		LogIndex:    cursor.LogIndex,
		UpdatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// NamedStateBackend keeps cursors by name. The postgres and redis stores
// satisfy it.
type NamedStateBackend interface {
	LoadState(ctx context.Context, name string) (model.Cursor, bool, error)
	SaveState(ctx context.Context, name string, cursor model.Cursor) error
}

// NamedStateStore stores the cursor under Name in a shared backend.
type NamedStateStore struct {
	Backend NamedStateBackend
	Name    string
}

func (s *NamedStateStore) Load(ctx context.Context) (model.Cursor, bool, error) {
	if s == nil || s.Backend == nil {
		return model.Cursor{}, false, nil
	}
	return s.Backend.LoadState(ctx, s.Name)
}

func (s *NamedStateStore) Save(ctx context.Context, cursor model.Cursor) error {
	if s == nil || s.Backend == nil {
		return nil
	}
	return s.Backend.SaveState(ctx, s.Name, cursor)
}
