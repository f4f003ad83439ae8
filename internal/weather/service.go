package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Service runs the fetch, normalize, upsert sequence for one configured
// location. It holds no state between runs.
type Service struct {
	request    FetchRequest
	fetcher    Fetcher
	normalizer *Normalizer
	merger     Merger
	observer   Observer
	logger     *logrus.Entry
}

// NewService creates a new Service. observer may be nil.
func NewService(req FetchRequest, fetcher Fetcher, normalizer *Normalizer, merger Merger, observer Observer, logger *logrus.Entry) *Service {
	return &Service{
		request:    req,
		fetcher:    fetcher,
		normalizer: normalizer,
		merger:     merger,
		observer:   observer,
		logger:     logger,
	}
}

// Run executes one pipeline run. Any stage failure is returned as a
// *StageError; nothing is written unless every stage before load succeeded.
func (s *Service) Run(ctx context.Context) (RunResult, error) {
	start := time.Now()
	result := RunResult{RunID: uuid.NewString()}
	log := s.logger.WithFields(logrus.Fields{
		"run_id":    result.RunID,
		"latitude":  s.request.Latitude,
		"longitude": s.request.Longitude,
	})
	log.Info("weather etl run started")

	err := s.run(ctx, log, &result)
	result.Duration = time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "failure"
		stage, _ := FailedStage(err)
		if s.observer != nil {
			s.observer.StageFailed(string(stage))
		}
		log.WithError(err).WithField("stage", stage).Error("weather etl run failed")
	} else {
		log.WithFields(logrus.Fields{
			"normalized": result.Normalized,
			"upserted":   result.Upserted,
			"duration":   result.Duration.String(),
		}).Info("weather etl run completed")
	}
	if s.observer != nil {
		s.observer.RunFinished(outcome, result.Duration.Seconds())
	}
	return result, err
}

func (s *Service) run(ctx context.Context, log *logrus.Entry, result *RunResult) error {
	payload, err := s.fetcher.Fetch(ctx, s.request)
	if err != nil {
		return &StageError{Stage: StageExtract, Err: err}
	}
	if payload == nil {
		return &StageError{Stage: StageExtract, Err: fmt.Errorf("%w: no payload returned", ErrFetch)}
	}

	records, err := s.normalizer.Normalize(payload)
	if err != nil {
		return &StageError{Stage: StageTransform, Err: err}
	}
	result.Normalized = len(records)
	log.WithField("rows", len(records)).Debug("payload normalized")

	n, err := s.merger.Upsert(ctx, records)
	if err != nil {
		return &StageError{Stage: StageLoad, Err: err}
	}
	result.Upserted = n
	if s.observer != nil {
		s.observer.RowsUpserted(n)
	}
	return nil
}
