// Package recommend asks a chat-completions API for movies similar to a
// favourite title and parses the loosely structured answer.
package recommend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"moviweb/pkg/circuitbreaker"
	"moviweb/pkg/config"
	"moviweb/pkg/logging"
	"moviweb/pkg/metrics"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "recommend"

const systemPrompt = "You are an assistant inside a movie web app. " +
	"You only talk about real movies. " +
	"You answer briefly and clearly."

var (
	// ErrDisabled is returned when no API key is configured.
	ErrDisabled = errors.New("recommend: recommendations are not configured")
	// ErrRateLimited is returned when callers exceed the configured request rate.
	ErrRateLimited = errors.New("recommend: too many requests")
	// ErrUnavailable covers transport failures, timeouts, non-2xx statuses,
	// undecodable bodies and an open circuit breaker.
	ErrUnavailable = errors.New("recommend: service unavailable")
)

type Recommendation struct {
	Title  string
	Reason string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func New(cfg config.OpenAIConfig, logger *zap.Logger) *Client {
	logger = logger.With(
		zap.String(logging.FieldComponent, "recommend-gateway"),
		zap.String(logging.FieldType, "http"),
	)
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.New(circuitbreaker.Settings{
			Name:          serviceName,
			MaxFailures:   3,
			Window:        time.Minute,
			Timeout:       time.Minute,
			IsFailure:     func(err error) bool { return errors.Is(err, ErrUnavailable) },
			OnStateChange: circuitbreaker.ObserveStateChanges(logger),
		}),
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		logger:  logger,
	}
}

// Recommend returns at most count movies similar to favourite.
func (c *Client) Recommend(ctx context.Context, favourite string, count int) ([]Recommendation, error) {
	if c.apiKey == "" {
		return nil, ErrDisabled
	}
	allowed := c.limiter.Allow()
	c.logger.Debug("Rate limit check",
		zap.Bool("allowed", allowed),
		zap.Float64("limit", float64(c.limiter.Limit())),
		zap.Int("burst", c.limiter.Burst()),
	)
	if !allowed {
		metrics.UpstreamRequests.WithLabelValues(serviceName, "rejected").Inc()
		return nil, ErrRateLimited
	}

	var content string
	err := c.breaker.Execute(func() error {
		var err error
		content, err = c.complete(ctx, buildPrompt(favourite, count))
		return err
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		metrics.UpstreamRequests.WithLabelValues(serviceName, "rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(serviceName, "unavailable").Inc()
		c.logger.Warn("Recommendation request failed", zap.String("favourite", favourite), zap.Error(err))
		return nil, err
	}
	metrics.UpstreamRequests.WithLabelValues(serviceName, "success").Inc()

	recommendations := ParseRecommendations(content)
	if count > 0 && len(recommendations) > count {
		recommendations = recommendations[:count]
	}
	return recommendations, nil
}

func buildPrompt(favourite string, count int) string {
	return fmt.Sprintf("The user likes the movie '%s'. "+
		"Suggest %d other movies they might enjoy. "+
		"Return them as a numbered list in this exact format:\n"+
		"1. Movie Title - short reason\n"+
		"2. Movie Title - short reason\n"+
		"...", favourite, count)
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.8,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(payload.Choices) == 0 {
		return "", nil
	}
	return payload.Choices[0].Message.Content, nil
}
