package model

import "encoding/json"

// TypedEventRecord is the JSON representation consumed by reconciliation.
type TypedEventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	Raw         *RawLogRef      `json:"raw,omitempty"`
}

// Context returns the chain context shared by every handler.
func (r TypedEventRecord) Context() EventContext {
	return EventContext{
		ChainID:     r.ChainID,
		BlockNumber: r.BlockNumber,
		Timestamp:   r.Timestamp,
		TxHash:      r.TxHash,
		LogIndex:    r.LogIndex,
		Address:     r.Address,
	}
}

// Cursor returns the position of the event in chain order.
func (r TypedEventRecord) Cursor() Cursor {
	return Cursor{BlockNumber: r.BlockNumber, LogIndex: r.LogIndex}
}

// PositionKey extracts the token id from the decoded payload without
// interpreting the rest of it. Every position-manager event carries one.
func (r TypedEventRecord) PositionKey() (string, error) {
	var probe struct {
		TokenID string `json:"token_id"`
	}
	if err := json.Unmarshal(r.Decoded, &probe); err != nil {
		return "", err
	}
	return probe.TokenID, nil
}

// EventContext is the block and transaction a handler runs against.
type EventContext struct {
	ChainID     uint64
	BlockNumber uint64
	Timestamp   uint64
	TxHash      string
	LogIndex    uint64
	// Address is the emitting position-manager contract.
	Address string
}

// Cursor returns the position of the event in chain order.
func (c EventContext) Cursor() Cursor {
	return Cursor{BlockNumber: c.BlockNumber, LogIndex: c.LogIndex}
}
