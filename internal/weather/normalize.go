package weather

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Upstream series names and the canonical column each one maps to.
const (
	seriesTime          = "time"
	seriesTempMax       = "temperature_2m_max"
	seriesTempMin       = "temperature_2m_min"
	seriesPrecipitation = "precipitation_sum"
)

// DailySeries lists the daily variables requested from the upstream API.
var DailySeries = []string{seriesTempMax, seriesTempMin, seriesPrecipitation}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04"}

// dailyRow is one zipped row after renaming and coercion. Pointer fields are
// nil when the source value was missing or failed to coerce.
type dailyRow struct {
	Date          *time.Time `validate:"required"`
	TempMax       *float64   `validate:"required"`
	TempMin       *float64   `validate:"required"`
	Precipitation *float64
}

// Normalizer turns a RawPayload into a RecordSet.
type Normalizer struct {
	validate *validator.Validate
	now      func() time.Time
	logger   *logrus.Entry
}

// NewNormalizer creates a Normalizer stamping rows with the current UTC time.
func NewNormalizer(logger *logrus.Entry) *Normalizer {
	return &Normalizer{
		validate: validator.New(),
		now:      time.Now,
		logger:   logger,
	}
}

// Normalize validates the payload and returns the surviving rows. Every
// failure wraps ErrNormalization.
func (n *Normalizer) Normalize(payload RawPayload) (RecordSet, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrNormalization)
	}
	daily, ok := payload["daily"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: payload has no daily section", ErrNormalization)
	}

	lat, okLat := toFloat(payload["latitude"])
	lon, okLon := toFloat(payload["longitude"])
	if !okLat || !okLon {
		return nil, fmt.Errorf("%w: payload has no usable latitude/longitude", ErrNormalization)
	}

	rows, err := zipDaily(daily)
	if err != nil {
		return nil, err
	}

	processedAt := n.now().UTC()
	out := make(RecordSet, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		if err := n.validate.Struct(row); err != nil {
			dropped++
			continue
		}
		out = append(out, WeatherRecord{
			Date:          *row.Date,
			TempMax:       *row.TempMax,
			TempMin:       *row.TempMin,
			Precipitation: row.Precipitation,
			Latitude:      lat,
			Longitude:     lon,
			ProcessedAt:   processedAt,
		})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no usable rows (%d dropped)", ErrNormalization, dropped)
	}

	if n.logger != nil {
		n.logger.WithFields(logrus.Fields{
			"rows":      len(out),
			"dropped":   dropped,
			"latitude":  lat,
			"longitude": lon,
		}).Info("normalization complete")
	}
	return out, nil
}

// zipDaily turns the parallel daily arrays into rows.
func zipDaily(daily map[string]any) ([]dailyRow, error) {
	series := make(map[string][]any, 4)
	length := -1
	for _, name := range []string{seriesTime, seriesTempMax, seriesTempMin, seriesPrecipitation} {
		values, ok := daily[name].([]any)
		if !ok {
			return nil, fmt.Errorf("%w: daily.%s missing or not an array", ErrNormalization, name)
		}
		if length >= 0 && len(values) != length {
			return nil, fmt.Errorf("%w: daily.%s has %d entries, expected %d", ErrNormalization, name, len(values), length)
		}
		length = len(values)
		series[name] = values
	}

	rows := make([]dailyRow, length)
	for i := range rows {
		if d, ok := toDate(series[seriesTime][i]); ok {
			rows[i].Date = &d
		}
		rows[i].TempMax = floatPtr(series[seriesTempMax][i])
		rows[i].TempMin = floatPtr(series[seriesTempMin][i])
		rows[i].Precipitation = floatPtr(series[seriesPrecipitation][i])
	}
	return rows, nil
}

func floatPtr(v any) *float64 {
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	return &f
}

// toFloat coerces JSON-ish scalars to float64. NaN and infinities count as
// missing.
func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// toDate parses a date string and truncates it to midnight UTC.
func toDate(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
