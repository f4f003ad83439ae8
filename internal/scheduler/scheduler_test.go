package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-etl/internal/weather"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) Run(ctx context.Context) (weather.RunResult, error) {
	r.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return weather.RunResult{}, errors.New("run context has no deadline")
	}
	return weather.RunResult{}, r.err
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestStartRunsImmediately(t *testing.T) {
	runner := &countingRunner{}
	s := New(runner, time.Hour, "", time.Second, quietLogger())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return runner.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestFailedRunDoesNotStopScheduler(t *testing.T) {
	runner := &countingRunner{err: errors.New("boom")}
	s := New(runner, time.Hour, "", time.Second, quietLogger())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	assert.Error(t, New(&countingRunner{}, 0, "", time.Second, quietLogger()).Start())
	assert.Error(t, New(&countingRunner{}, time.Hour, "not a cron", time.Second, quietLogger()).Start())
}
