package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PredictionRecord is one served prediction kept in the journal.
type PredictionRecord struct {
	ID             int64
	Symbol         string
	PredictedPrice decimal.Decimal
	Source         string
	ModelKind      string
	CreatedAt      time.Time
}

// TrainingRun records the outcome of a train invocation.
type TrainingRun struct {
	ID             int64
	StartedAt      time.Time
	FinishedAt     time.Time
	Kind           string
	WindowSize     int
	Symbols        int
	SkippedSymbols int
	Examples       int
	TrainSize      int
	TestSize       int
	RMSE           *decimal.Decimal
	MAE            *decimal.Decimal
	ArtifactPath   string
	Status         string
	Error          *string
}

// Training run statuses.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)
