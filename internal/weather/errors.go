package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch is returned when the upstream payload could not be retrieved.
	ErrFetch = errors.New("fetch failed")
	// ErrNormalization is returned when a payload has no usable rows.
	ErrNormalization = errors.New("normalization failed")
	// ErrLoad is returned when the merge into the target table did not commit.
	ErrLoad = errors.New("load failed")
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageTransform Stage = "transform"
	StageLoad      Stage = "load"
)

// StageError ties a failure to the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage reports the stage recorded in err, if any.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
