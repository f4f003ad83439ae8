package weather

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	payload RawPayload
	err     error
	calls   int
	got     FetchRequest
}

func (f *stubFetcher) Fetch(_ context.Context, req FetchRequest) (RawPayload, error) {
	f.calls++
	f.got = req
	return f.payload, f.err
}

type stubMerger struct {
	err     error
	calls   int
	records RecordSet
}

func (m *stubMerger) Upsert(_ context.Context, records RecordSet) (int, error) {
	m.calls++
	m.records = records
	if m.err != nil {
		return 0, m.err
	}
	return len(records), nil
}

type recordingObserver struct {
	outcomes []string
	stages   []string
	rows     int
}

func (o *recordingObserver) RunFinished(outcome string, _ float64) { o.outcomes = append(o.outcomes, outcome) }
func (o *recordingObserver) StageFailed(stage string)             { o.stages = append(o.stages, stage) }
func (o *recordingObserver) RowsUpserted(n int)                    { o.rows += n }

var nyc = FetchRequest{Latitude: 40.7128, Longitude: -74.0060}

func TestServiceRunSuccess(t *testing.T) {
	fetcher := &stubFetcher{payload: decode(t, mockPayload)}
	merger := &stubMerger{}
	obs := &recordingObserver{}

	svc := NewService(nyc, fetcher, NewNormalizer(testLogger()), merger, obs, testLogger())
	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, nyc, fetcher.got)
	assert.Equal(t, 1, merger.calls)
	assert.Len(t, merger.records, 2)
	assert.Equal(t, 2, result.Normalized)
	assert.Equal(t, 2, result.Upserted)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, []string{"success"}, obs.outcomes)
	assert.Empty(t, obs.stages)
	assert.Equal(t, 2, obs.rows)
}

func TestServiceRunStageFailures(t *testing.T) {
	good := decode(t, mockPayload)

	cases := []struct {
		name       string
		fetcher    *stubFetcher
		merger     *stubMerger
		stage      Stage
		sentinel   error
		wantMerges int
	}{
		{
			name:     "fetch exhausted",
			fetcher:  &stubFetcher{err: fmt.Errorf("%w: 3 attempts exhausted", ErrFetch)},
			merger:   &stubMerger{},
			stage:    StageExtract,
			sentinel: ErrFetch,
		},
		{
			name:     "fetch returned nothing",
			fetcher:  &stubFetcher{},
			merger:   &stubMerger{},
			stage:    StageExtract,
			sentinel: ErrFetch,
		},
		{
			name:     "payload without daily",
			fetcher:  &stubFetcher{payload: RawPayload{"latitude": 1.0}},
			merger:   &stubMerger{},
			stage:    StageTransform,
			sentinel: ErrNormalization,
		},
		{
			name:       "merge failed",
			fetcher:    &stubFetcher{payload: good},
			merger:     &stubMerger{err: fmt.Errorf("%w: connection refused", ErrLoad)},
			stage:      StageLoad,
			sentinel:   ErrLoad,
			wantMerges: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			obs := &recordingObserver{}
			svc := NewService(nyc, tc.fetcher, NewNormalizer(testLogger()), tc.merger, obs, testLogger())

			_, err := svc.Run(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.sentinel)

			stage, ok := FailedStage(err)
			require.True(t, ok)
			assert.Equal(t, tc.stage, stage)

			var se *StageError
			require.True(t, errors.As(err, &se))
			assert.Contains(t, se.Error(), string(tc.stage))

			assert.Equal(t, tc.wantMerges, tc.merger.calls)
			assert.Equal(t, []string{"failure"}, obs.outcomes)
			assert.Equal(t, []string{string(tc.stage)}, obs.stages)
			assert.Zero(t, obs.rows)
		})
	}
}

func TestServiceRunWithoutObserver(t *testing.T) {
	svc := NewService(nyc, &stubFetcher{err: ErrFetch}, NewNormalizer(testLogger()), &stubMerger{}, nil, testLogger())
	assert.NotPanics(t, func() { _, _ = svc.Run(context.Background()) })
}
