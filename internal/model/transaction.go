package model

// Transaction is the chain transaction that triggered a position change.
type Transaction struct {
	ID          string `json:"id"`
	BlockNumber uint64 `json:"block_number"`
	Timestamp   uint64 `json:"timestamp"`
}
