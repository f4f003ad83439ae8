package weather

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mockPayload = `{"latitude":40.71,"longitude":-74.0,"daily":{"time":["2024-01-01","2024-01-02"],"temperature_2m_max":[5.0,6.2],"temperature_2m_min":[-1.0,0.5],"precipitation_sum":[0.0,1.2]}}`

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func fixedNormalizer(now time.Time) *Normalizer {
	n := NewNormalizer(testLogger())
	n.now = func() time.Time { return now }
	return n
}

func decode(t *testing.T, s string) RawPayload {
	t.Helper()
	var p RawPayload
	require.NoError(t, json.Unmarshal([]byte(s), &p))
	return p
}

func payloadWith(daily map[string]any) RawPayload {
	return RawPayload{"latitude": 52.52, "longitude": 13.41, "daily": daily}
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestNormalizeMockPayload(t *testing.T) {
	now := time.Date(2024, 1, 3, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))
	records, err := fixedNormalizer(now).Normalize(decode(t, mockPayload))
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.True(t, first.Date.Equal(day("2024-01-01")))
	assert.Equal(t, time.UTC, first.Date.Location())
	assert.Equal(t, 5.0, first.TempMax)
	assert.Equal(t, -1.0, first.TempMin)
	require.NotNil(t, first.Precipitation)
	assert.Equal(t, 0.0, *first.Precipitation)
	assert.Equal(t, 40.71, first.Latitude)
	assert.Equal(t, -74.0, first.Longitude)

	second := records[1]
	assert.True(t, second.Date.Equal(day("2024-01-02")))
	assert.Equal(t, 6.2, second.TempMax)
	assert.Equal(t, 0.5, second.TempMin)
	assert.Equal(t, 1.2, *second.Precipitation)

	for _, r := range records {
		assert.Equal(t, time.UTC, r.ProcessedAt.Location())
		assert.True(t, r.ProcessedAt.Equal(now))
	}
	assert.Equal(t, records[0].ProcessedAt, records[1].ProcessedAt)
}

func TestNormalizeKeepsAllCompleteRows(t *testing.T) {
	const n = 7
	times := make([]any, n)
	maxes := make([]any, n)
	mins := make([]any, n)
	precip := make([]any, n)
	for i := 0; i < n; i++ {
		times[i] = day("2024-03-01").AddDate(0, 0, i).Format("2006-01-02")
		maxes[i] = float64(10 + i)
		mins[i] = float64(i)
		precip[i] = 0.1 * float64(i)
	}

	records, err := NewNormalizer(testLogger()).Normalize(payloadWith(map[string]any{
		"time":               times,
		"temperature_2m_max": maxes,
		"temperature_2m_min": mins,
		"precipitation_sum":  precip,
	}))
	require.NoError(t, err)
	assert.Len(t, records, n)
}

func TestNormalizeDropsIncompleteRows(t *testing.T) {
	// Rows 1, 3 and 4 lack one required field (k = 3 of N = 6).
	daily := map[string]any{
		"time":               []any{"2024-01-01", nil, "2024-01-03", "2024-01-04", "not-a-date", "2024-01-06"},
		"temperature_2m_max": []any{1.0, 2.0, 3.0, nil, 5.0, 6.0},
		"temperature_2m_min": []any{0.0, 0.0, 0.0, 0.0, 0.0, 0.0},
		"precipitation_sum":  []any{0.0, 0.0, nil, 0.0, 0.0, "bad"},
	}

	records, err := NewNormalizer(testLogger()).Normalize(payloadWith(daily))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.True(t, records[0].Date.Equal(day("2024-01-01")))
	assert.True(t, records[1].Date.Equal(day("2024-01-03")))
	assert.True(t, records[2].Date.Equal(day("2024-01-06")))

	// Precipitation gaps are retained as nil, not dropped or zero-filled.
	assert.Nil(t, records[1].Precipitation)
	assert.Nil(t, records[2].Precipitation)
}

func TestNormalizeCoercesScalars(t *testing.T) {
	daily := map[string]any{
		"time":               []any{"2024-05-01T00:00", "2024-05-02T00:00:00Z"},
		"temperature_2m_max": []any{json.Number("21.5"), " 22.25 "},
		"temperature_2m_min": []any{12, "NaN"},
		"precipitation_sum":  []any{"3", json.Number("0")},
	}
	payload := RawPayload{"latitude": "48.85", "longitude": json.Number("2.35"), "daily": daily}

	records, err := NewNormalizer(testLogger()).Normalize(payload)
	require.NoError(t, err)
	require.Len(t, records, 1, "NaN min temperature drops the second row")

	r := records[0]
	assert.True(t, r.Date.Equal(day("2024-05-01")))
	assert.Equal(t, 21.5, r.TempMax)
	assert.Equal(t, 12.0, r.TempMin)
	assert.Equal(t, 3.0, *r.Precipitation)
	assert.Equal(t, 48.85, r.Latitude)
	assert.Equal(t, 2.35, r.Longitude)
}

func TestNormalizeRejectsUnusablePayloads(t *testing.T) {
	full := func() map[string]any {
		return map[string]any{
			"time":               []any{"2024-01-01"},
			"temperature_2m_max": []any{1.0},
			"temperature_2m_min": []any{0.0},
			"precipitation_sum":  []any{0.0},
		}
	}
	withoutKey := func(k string) map[string]any {
		d := full()
		delete(d, k)
		return d
	}
	mismatched := full()
	mismatched["temperature_2m_min"] = []any{0.0, 1.0}

	cases := map[string]RawPayload{
		"nil":                nil,
		"empty":              {},
		"no daily":           {"latitude": 1.0, "longitude": 2.0},
		"daily not object":   {"latitude": 1.0, "longitude": 2.0, "daily": []any{}},
		"no coordinates":     {"daily": full()},
		"missing time":       payloadWith(withoutKey("time")),
		"missing precip":     payloadWith(withoutKey("precipitation_sum")),
		"series not array":   payloadWith(map[string]any{"time": "2024-01-01", "temperature_2m_max": []any{1.0}, "temperature_2m_min": []any{0.0}, "precipitation_sum": []any{0.0}}),
		"mismatched lengths": payloadWith(mismatched),
		"no rows":            payloadWith(map[string]any{"time": []any{}, "temperature_2m_max": []any{}, "temperature_2m_min": []any{}, "precipitation_sum": []any{}}),
		"all rows dropped":   payloadWith(map[string]any{"time": []any{nil}, "temperature_2m_max": []any{1.0}, "temperature_2m_min": []any{0.0}, "precipitation_sum": []any{0.0}}),
	}

	n := NewNormalizer(testLogger())
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			var (
				records RecordSet
				err     error
			)
			require.NotPanics(t, func() { records, err = n.Normalize(payload) })
			assert.ErrorIs(t, err, ErrNormalization)
			assert.Nil(t, records)
		})
	}
}
