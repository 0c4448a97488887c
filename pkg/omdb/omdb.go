// Package omdb looks up movie metadata by title in the OMDb API.
package omdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"moviweb/pkg/circuitbreaker"
	"moviweb/pkg/config"
	"moviweb/pkg/datamanager"
	"moviweb/pkg/logging"
	"moviweb/pkg/metrics"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const serviceName = "omdb"

var (
	// ErrNotFound matches a successful response in which OMDb reports that
	// it has no such movie.
	ErrNotFound = errors.New("omdb: movie not found")
	// ErrUnavailable covers transport failures, timeouts, non-2xx statuses,
	// unrecognised bodies and an open circuit breaker.
	ErrUnavailable = errors.New("omdb: service unavailable")
)

// NotFoundError carries the reason OMDb gave for not finding a movie.
type NotFoundError struct {
	Title  string
	Reason string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("omdb: %q: %s", e.Title, e.Reason)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Movie is the normalised subset of an OMDb record the application stores.
type Movie struct {
	Title    string
	Year     int
	Rating   float64
	Director string
	Genre    string
}

type response struct {
	Response   string `json:"Response"`
	Error      string `json:"Error"`
	Title      string `json:"Title"`
	Year       string `json:"Year"`
	IMDBRating string `json:"imdbRating"`
	Director   string `json:"Director"`
	Genre      string `json:"Genre"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func New(cfg config.OMDbConfig, logger *zap.Logger) *Client {
	logger = logger.With(
		zap.String(logging.FieldComponent, "omdb-gateway"),
		zap.String(logging.FieldType, "http"),
	)
	return &Client{
		baseURL:    cfg.URL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.New(circuitbreaker.Settings{
			Name:          serviceName,
			MaxFailures:   5,
			Window:        time.Minute,
			Timeout:       30 * time.Second,
			IsFailure:     func(err error) bool { return errors.Is(err, ErrUnavailable) },
			OnStateChange: circuitbreaker.ObserveStateChanges(logger),
		}),
		logger: logger,
	}
}

// Lookup fetches the movie with the given title.
func (c *Client) Lookup(ctx context.Context, title string) (*Movie, error) {
	var movie *Movie
	err := c.breaker.Execute(func() error {
		var err error
		movie, err = c.lookup(ctx, title)
		return err
	})
	switch {
	case err == nil:
		metrics.UpstreamRequests.WithLabelValues(serviceName, "success").Inc()
	case errors.Is(err, circuitbreaker.ErrOpen):
		metrics.UpstreamRequests.WithLabelValues(serviceName, "rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, ErrNotFound):
		metrics.UpstreamRequests.WithLabelValues(serviceName, "not_found").Inc()
	default:
		metrics.UpstreamRequests.WithLabelValues(serviceName, "unavailable").Inc()
		c.logger.Warn("Movie lookup failed", zap.String("title", title), zap.Error(err))
	}
	return movie, err
}

func (c *Client) lookup(ctx context.Context, title string) (*Movie, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	values := url.Values{}
	values.Set("apikey", c.apiKey)
	values.Set("t", title)
	req.URL.RawQuery = values.Encode()

	c.logger.Debug("Calling OMDb", zap.String("title", title))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	switch payload.Response {
	case "True":
		return normalize(payload), nil
	case "False":
		reason := payload.Error
		if reason == "" {
			reason = "Movie not found!"
		}
		return nil, &NotFoundError{Title: title, Reason: reason}
	default:
		return nil, fmt.Errorf("%w: unexpected Response %q", ErrUnavailable, payload.Response)
	}
}

func normalize(payload response) *Movie {
	movie := &Movie{
		Title:    notAvailable(payload.Title),
		Year:     datamanager.ParseYear(payload.Year),
		Director: notAvailable(payload.Director),
	}
	if rating, err := strconv.ParseFloat(payload.IMDBRating, 64); err == nil {
		movie.Rating = rating
	}
	if genre := notAvailable(payload.Genre); genre != "" {
		movie.Genre = strings.TrimSpace(strings.Split(genre, ",")[0])
	}
	return movie
}

func notAvailable(s string) string {
	s = strings.TrimSpace(s)
	if s == "N/A" {
		return ""
	}
	return s
}
