package store

import (
	"time"

	"github.com/i474232898/weather-etl/internal/weather"
)

// MetricRow mirrors one row of the metrics table.
type MetricRow struct {
	Date          time.Time `gorm:"column:date;primaryKey;autoIncrement:false" json:"date"`
	TempMax       float64   `gorm:"column:temp_max" json:"temp_max"`
	TempMin       float64   `gorm:"column:temp_min" json:"temp_min"`
	Precipitation *float64  `gorm:"column:precipitation" json:"precipitation"`
	Latitude      float64   `gorm:"column:latitude;primaryKey;autoIncrement:false" json:"latitude"`
	Longitude     float64   `gorm:"column:longitude;primaryKey;autoIncrement:false" json:"longitude"`
	ProcessedAt   time.Time `gorm:"column:processed_at" json:"processed_at"`
}

type rowKey struct {
	date     int64
	lat, lon float64
}

// toRows converts records to rows, keeping only the last record for any
// repeated (date, latitude, longitude) key.
func toRows(records weather.RecordSet) []MetricRow {
	index := make(map[rowKey]int, len(records))
	rows := make([]MetricRow, 0, len(records))
	for _, r := range records {
		row := MetricRow{
			Date:          r.Date.UTC(),
			TempMax:       r.TempMax,
			TempMin:       r.TempMin,
			Precipitation: r.Precipitation,
			Latitude:      r.Latitude,
			Longitude:     r.Longitude,
			ProcessedAt:   r.ProcessedAt.UTC(),
		}
		k := rowKey{date: row.Date.UnixNano(), lat: row.Latitude, lon: row.Longitude}
		if i, ok := index[k]; ok {
			rows[i] = row
			continue
		}
		index[k] = len(rows)
		rows = append(rows, row)
	}
	return rows
}
