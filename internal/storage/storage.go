package storage

import "positionScope/internal/model"

// Storage is a sink for raw log batches.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

var _ Storage = (*JSONLStorage)(nil)
