package models

import "time"

// CheckpointID is the fixed identifier of the singleton checkpoint row.
const CheckpointID = 1

// Checkpoint is the indexer's only durable "where am I" state: the
// height of the last fully applied block. Absence means "no checkpoint
// yet", which is distinct from height 0.
type Checkpoint struct {
	ID             int       `json:"id"`
	BlockHeight    uint64    `json:"block_height"`
	BlockTimestamp time.Time `json:"block_timestamp"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Gap is a missing [From, To] height range in index progress.
type Gap struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}
