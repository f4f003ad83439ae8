package weather

import (
	"context"
)

// Fetcher abstracts the upstream forecast source (Open-Meteo in production).
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (RawPayload, error)
}

// Merger persists a record set and reports how many rows were presented.
type Merger interface {
	Upsert(ctx context.Context, records RecordSet) (int, error)
}

// Observer receives run-level events. The metrics package satisfies it; a nil
// Observer is allowed.
type Observer interface {
	RunFinished(outcome string, seconds float64)
	StageFailed(stage string)
	RowsUpserted(n int)
}
