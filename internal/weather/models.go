package weather

import (
	"time"
)

// FetchRequest identifies the coordinates a run pulls the daily forecast for.
type FetchRequest struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// RawPayload is the decoded upstream JSON body. Nothing about its shape is
// trusted until it has been through Normalize.
type RawPayload map[string]any

// WeatherRecord is one validated daily row.
type WeatherRecord struct {
	Date          time.Time `json:"date"` // midnight UTC
	TempMax       float64   `json:"temp_max"`
	TempMin       float64   `json:"temp_min"`
	Precipitation *float64  `json:"precipitation"` // nil when the source had no usable value
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	ProcessedAt   time.Time `json:"processed_at"` // always UTC, identical for all rows of a run
}

// RecordSet is the output of one normalization: every record shares the same
// latitude/longitude pair. Order carries no meaning on write.
type RecordSet []WeatherRecord

// RunResult summarizes a completed pipeline run.
type RunResult struct {
	RunID      string        `json:"run_id"`
	Normalized int           `json:"normalized"`
	Upserted   int           `json:"upserted"`
	Duration   time.Duration `json:"duration"`
}
