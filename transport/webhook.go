package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"zkteco-hub/config"
	"zkteco-hub/metrics"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// maxResponseBody caps how much of a webhook response is kept.
const maxResponseBody = 64 * 1024

// StatusError is returned for non-2xx webhook responses. Its message
// carries the response body, falling back to the reason phrase when the
// body is empty.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRejected reports whether err came from an open or saturated breaker
// rather than from the remote endpoint.
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

type Response struct {
	StatusCode int
	Body       []byte
}

// WebhookSender posts JSON payloads to tenant webhooks. Each destination URL
// gets its own circuit breaker so one failing tenant does not trip others.
type WebhookSender struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	failures  uint32
	openFor   time.Duration
	log       zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*Response]
}

func NewWebhookSender(cfg config.ForwardingConfig, logger zerolog.Logger) *WebhookSender {
	return &WebhookSender{
		client:    &http.Client{},
		userAgent: cfg.UserAgent,
		timeout:   cfg.AttemptTimeout,
		failures:  cfg.BreakerFailures,
		openFor:   cfg.BreakerTimeout,
		log:       logger,
		breakers:  make(map[string]*gobreaker.CircuitBreaker[*Response]),
	}
}

func (s *WebhookSender) breaker(url string) *gobreaker.CircuitBreaker[*Response] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[url]; ok {
		return cb
	}

	threshold := s.failures
	settings := gobreaker.Settings{
		Name:        url,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     s.openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.log.Warn().
				Str("url", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Webhook circuit breaker state changed")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	}
	cb := gobreaker.NewCircuitBreaker[*Response](settings)
	s.breakers[url] = cb
	metrics.CircuitBreakerState.WithLabelValues(url).Set(float64(gobreaker.StateClosed))
	return cb
}

// Post sends payload as JSON. apiKey, when set, is sent as a bearer token.
// Non-2xx responses are returned as *StatusError.
func (s *WebhookSender) Post(ctx context.Context, url, apiKey string, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	start := time.Now()
	resp, err := s.breaker(url).Execute(func() (*Response, error) {
		return s.do(ctx, url, apiKey, body)
	})
	metrics.RecordForwardAttempt(attemptResult(err), time.Since(start))
	return resp, err
}

func (s *WebhookSender) do(ctx context.Context, url, apiKey string, body []byte) (*Response, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := strings.TrimSpace(string(data))
		if text == "" {
			text = statusText(resp)
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: text}
	}

	s.log.Debug().Str("url", url).Int("status", resp.StatusCode).Msg("Webhook delivered")
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// Close drops idle connections.
func (s *WebhookSender) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func attemptResult(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return "success"
	case IsRejected(err):
		return "rejected"
	case errors.As(err, &statusErr):
		return "http_error"
	default:
		return "network_error"
	}
}
