package models

import "time"

// GenerationRequest asks a generator for NumTuples synthetic rows.
type GenerationRequest struct {
	ID          string              `json:"id"`
	Mode        string              `json:"mode"`
	NumTuples   int                 `json:"n"`
	Seed        int64               `json:"seed"`
	Description *DatasetDescription `json:"-"`
}

// GenerationResult is the synthetic table with bookkeeping for logs and metrics.
type GenerationResult struct {
	ID          string        `json:"id"`
	Mode        string        `json:"mode"`
	Table       *Table        `json:"table"`
	GeneratedAt time.Time     `json:"generated_at"`
	Duration    time.Duration `json:"duration"`
}
