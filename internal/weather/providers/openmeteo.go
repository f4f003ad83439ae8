package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-etl/internal/weather"
)

// DefaultOpenMeteoURL is the public daily forecast endpoint.
const DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

// OpenMeteoProvider implements the weather.Fetcher interface for Open-Meteo.
type OpenMeteoProvider struct {
	baseURL  string
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
	validate *validator.Validate
	observer AttemptObserver
	logger   *logrus.Entry
}

// NewOpenMeteoProvider builds a provider. An empty baseURL selects the public
// endpoint; observer may be nil.
func NewOpenMeteoProvider(cfg HTTPClientConfig, baseURL string, observer AttemptObserver, logger *logrus.Entry) *OpenMeteoProvider {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoURL
	}
	const name = "openmeteo"

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Two fully failed runs in a row.
			return counts.ConsecutiveFailures >= uint32(2*max(cfg.Backoff.MaxAttempts, 1))
		},
	})

	return &OpenMeteoProvider{
		baseURL:  baseURL,
		httpCfg:  cfg,
		circuit:  cb,
		validate: validator.New(),
		observer: observer,
		logger:   logger.WithField("provider", name),
	}
}

// Fetch requests the daily max/min temperature and precipitation series in UTC
// for req. Structurally odd but decodable JSON is returned as is.
func (p *OpenMeteoProvider) Fetch(ctx context.Context, req weather.FetchRequest) (weather.RawPayload, error) {
	if err := p.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: invalid request: %v", weather.ErrFetch, err)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(req.Latitude, 'f', -1, 64))
		values.Set("longitude", strconv.FormatFloat(req.Longitude, 'f', -1, 64))
		values.Set("daily", strings.Join(weather.DailySeries, ","))
		values.Set("timezone", "UTC")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	log := p.logger.WithFields(logrus.Fields{
		"breaker_state": p.circuit.State().String(),
		"latitude":      req.Latitude,
		"longitude":     req.Longitude,
	})
	return fetchJSONWithRetry(ctx, p.httpCfg, p.circuit, log, p.observer, buildRequest)
}
