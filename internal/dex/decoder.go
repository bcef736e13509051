package dex

import "positionScope/internal/model"

// Decoder turns raw logs of one contract family into typed events.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord) (*model.TypedEvent, error)
}

var _ Decoder = (*PositionManagerDecoder)(nil)
