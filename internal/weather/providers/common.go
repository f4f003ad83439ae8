package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-etl/internal/weather"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// AttemptObserver is told the outcome of every HTTP attempt.
type AttemptObserver interface {
	FetchAttempt(result string)
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// maxErrorBody caps how much of a failed response body ends up in an error.
const maxErrorBody = 512

// httpStatusError carries a non-2xx status and a trimmed body.
type httpStatusError struct {
	kind   error
	status int
	body   string
}

func (e httpStatusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("%v: status %d", e.kind, e.status)
	}
	return fmt.Sprintf("%v: status %d: %s", e.kind, e.status, e.body)
}

func (e httpStatusError) Unwrap() error {
	return e.kind
}

// fetchJSONWithRetry executes the request built by buildRequest until it
// returns a decodable 2xx JSON body or the attempt budget runs out. Attempt i
// (0-indexed) that fails waits InitialInterval*2^i before the next one.
// Exhaustion is reported as an error wrapping weather.ErrFetch and a nil
// payload.
func fetchJSONWithRetry(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	log *logrus.Entry,
	observer AttemptObserver,
	buildRequest func(ctx context.Context) (*http.Request, error),
) (weather.RawPayload, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("%w: %v", weather.ErrFetch, errNoHTTPClient)
	}
	if cfg.Backoff.MaxAttempts <= 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, fmt.Errorf("%w: %v", weather.ErrFetch, errInvalidConfig)
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = wait
	}

	var lastErr error
	for attempt := 0; attempt < cfg.Backoff.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", weather.ErrFetch, err)
		}

		entry := log.WithField("attempt", attempt+1)
		entry.Info("fetching daily weather")

		result, err := cb.Execute(func() (interface{}, error) {
			return doAttempt(ctx, cfg.Client, buildRequest)
		})
		if err == nil {
			recordAttempt(observer, "success")
			payload, _ := result.(weather.RawPayload)
			return payload, nil
		}

		// An open circuit means the upstream is known to be down; stop here.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			recordAttempt(observer, "circuit_open")
			entry.WithError(err).Error("circuit breaker rejected request")
			return nil, fmt.Errorf("%w: %w: %v", weather.ErrFetch, errCircuitOpen, err)
		}

		recordAttempt(observer, "error")
		entry.WithError(err).Warn("weather fetch attempt failed")
		lastErr = err

		if attempt == cfg.Backoff.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(cfg.Backoff, attempt)
		if err := sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %v", weather.ErrFetch, err)
		}
	}

	log.WithError(lastErr).WithField("attempts", cfg.Backoff.MaxAttempts).Error("weather fetch failed after all attempts")
	return nil, fmt.Errorf("%w: %d attempts exhausted: %w", weather.ErrFetch, cfg.Backoff.MaxAttempts, lastErr)
}

// doAttempt performs one request. Transport errors, non-2xx responses and
// bodies that are not a JSON object are all retryable.
func doAttempt(ctx context.Context, client *http.Client, buildRequest func(ctx context.Context) (*http.Request, error)) (weather.RawPayload, error) {
	req, err := buildRequest(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		kind := errUnexpected
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			kind = errRateLimited
		case resp.StatusCode >= 500:
			kind = errServerError
		}
		return nil, httpStatusError{kind: kind, status: resp.StatusCode, body: string(body)}
	}

	var payload weather.RawPayload
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return payload, nil
}

func backoffDelay(cfg BackoffConfig, attempt int) time.Duration {
	delay := cfg.InitialInterval << attempt
	if cfg.MaxInterval > 0 && (delay > cfg.MaxInterval || delay <= 0) {
		delay = cfg.MaxInterval
	}
	return delay
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func recordAttempt(o AttemptObserver, result string) {
	if o != nil {
		o.FetchAttempt(result)
	}
}
