package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"zkteco-hub/config"
	"zkteco-hub/database"
	"zkteco-hub/metrics"
	"zkteco-hub/models"
	"zkteco-hub/repositories/base"
	"zkteco-hub/secrets"
	"zkteco-hub/transport"

	"github.com/rs/zerolog"
)

const testErrorLimit = 200

// WebhookPoster delivers one JSON payload to a tenant endpoint.
type WebhookPoster interface {
	Post(ctx context.Context, url, apiKey string, payload any) (*transport.Response, error)
}

// ForwardPayload is the body POSTed for each attendance event.
type ForwardPayload struct {
	DeviceSerial string  `json:"deviceSerial"`
	ClientID     string  `json:"clientId"`
	PIN          string  `json:"pin"`
	Timestamp    string  `json:"timestamp"`
	Status       int     `json:"status"`
	Verify       int     `json:"verify"`
	WorkCode     *string `json:"workCode"`
}

type testPayload struct {
	Test      bool   `json:"test"`
	ClientID  string `json:"clientId"`
	Timestamp string `json:"timestamp"`
}

// ForwardOutcome is the result of one Forward call.
type ForwardOutcome string

const (
	ForwardDelivered ForwardOutcome = "forwarded"
	ForwardFailed    ForwardOutcome = "failed"
	ForwardSkipped   ForwardOutcome = "skipped"
)

// ForwardingService delivers attendance events to tenant webhooks with the
// tenant's retry policy. Delivery is at least once.
type ForwardingService struct {
	db       *database.Database
	poster   WebhookPoster
	secrets  secrets.Decrypter
	defaults config.ForwardingConfig
	logger   zerolog.Logger
	now      func() time.Time
}

func NewForwardingService(db *database.Database, poster WebhookPoster, decrypter secrets.Decrypter,
	defaults config.ForwardingConfig, logger zerolog.Logger) *ForwardingService {
	return &ForwardingService{
		db:       db,
		poster:   poster,
		secrets:  decrypter,
		defaults: defaults,
		logger:   logger.With().Str("component", "forwarding_service").Logger(),
		now:      time.Now,
	}
}

// Forward delivers ev to its tenant's webhook. The tenant profile is read on
// every call. A tenant without forwarding enabled or without a URL is a
// successful no-op. Only the final failed attempt is recorded on the event.
// An open webhook breaker ends the call early without spending attempts.
func (fs *ForwardingService) Forward(ctx context.Context, ev models.AttendanceEvent) (ForwardOutcome, error) {
	client, err := fs.db.ClientRepo.GetClientByDeviceSerial(ev.DeviceSerial)
	if err != nil {
		if base.IsEntityNotFound(err) {
			metrics.ForwardOutcomes.WithLabelValues(string(ForwardSkipped)).Inc()
			return ForwardSkipped, nil
		}
		return ForwardFailed, fmt.Errorf("failed to resolve tenant for %s: %w", ev.DeviceSerial, err)
	}
	if !client.ForwardingEnabled || client.ForwardURL == "" {
		metrics.ForwardOutcomes.WithLabelValues(string(ForwardSkipped)).Inc()
		return ForwardSkipped, nil
	}

	attempts := client.RetryAttempts
	if attempts <= 0 {
		attempts = fs.defaults.DefaultRetryAttempts
	}
	if attempts <= 0 {
		attempts = 1
	}
	delay := time.Duration(client.RetryDelayMs) * time.Millisecond
	if delay <= 0 {
		delay = fs.defaults.DefaultRetryDelay
	}

	payload := ForwardPayload{
		DeviceSerial: ev.DeviceSerial,
		ClientID:     client.ClientCode,
		PIN:          ev.PIN,
		Timestamp:    ev.DeviceTime,
		Status:       ev.Status,
		Verify:       ev.Verify,
	}
	if ev.WorkCode != "" {
		wc := ev.WorkCode
		payload.WorkCode = &wc
	}
	apiKey := fs.decrypt(client.APIKey)
	logger := fs.logger.With().Uint("event_id", ev.ID).Str("client", client.ClientCode).Logger()

	for attempt := 1; attempt <= attempts; attempt++ {
		_, err := fs.poster.Post(ctx, client.ForwardURL, apiKey, payload)
		if err == nil {
			if err := fs.db.AttendanceRepo.MarkForwarded(fs.db.DB, ev.ID, fs.now().UTC()); err != nil {
				return ForwardFailed, fmt.Errorf("failed to mark event %d forwarded: %w", ev.ID, err)
			}
			metrics.ForwardOutcomes.WithLabelValues(string(ForwardDelivered)).Inc()
			logger.Debug().Int("attempt", attempt).Msg("Event forwarded")
			return ForwardDelivered, nil
		}

		if transport.IsRejected(err) {
			// The webhook was never contacted, so no attempt is spent. The
			// event stays unforwarded for the retry sweep.
			logger.Warn().Err(err).Int("attempt", attempt).Msg("Webhook breaker open, deferring event")
			if markErr := fs.db.AttendanceRepo.MarkForwardError(fs.db.DB, ev.ID, err.Error()); markErr != nil {
				logger.Error().Err(markErr).Msg("Failed to record forwarding error")
			}
			metrics.ForwardOutcomes.WithLabelValues(string(ForwardFailed)).Inc()
			return ForwardFailed, nil
		}

		if attempt == attempts {
			logger.Warn().Err(err).Int("attempts", attempts).Msg("Forwarding failed")
			if markErr := fs.db.AttendanceRepo.MarkForwardError(fs.db.DB, ev.ID, err.Error()); markErr != nil {
				logger.Error().Err(markErr).Msg("Failed to record forwarding error")
			}
			metrics.ForwardOutcomes.WithLabelValues(string(ForwardFailed)).Inc()
			return ForwardFailed, nil
		}

		logger.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("Forwarding attempt failed, retrying")
		if err := sleepContext(ctx, delay); err != nil {
			return ForwardFailed, err
		}
	}
	return ForwardFailed, nil
}

func (fs *ForwardingService) decrypt(value string) string {
	if value == "" || fs.secrets == nil {
		return value
	}
	return fs.secrets.Decrypt(value)
}

// RetryPending re-runs Forward on every unforwarded event, one at a time.
// Forwarded counts events actually delivered.
func (fs *ForwardingService) RetryPending(ctx context.Context) (*models.RetryForwardResponse, error) {
	pending, err := fs.db.AttendanceRepo.ListPending(0)
	if err != nil {
		return nil, err
	}

	resp := &models.RetryForwardResponse{Total: len(pending)}
	for _, ev := range pending {
		if ctx.Err() != nil {
			break
		}
		outcome, err := fs.Forward(ctx, ev)
		if err != nil {
			fs.logger.Error().Err(err).Uint("event_id", ev.ID).Msg("Retry of event failed")
			continue
		}
		if outcome == ForwardDelivered {
			resp.Forwarded++
		}
	}
	fs.logger.Info().Int("forwarded", resp.Forwarded).Int("total", resp.Total).Msg("Retry sweep finished")
	return resp, nil
}

// CountPending returns the number of events not yet forwarded.
func (fs *ForwardingService) CountPending() (int64, error) {
	return fs.db.AttendanceRepo.CountPending()
}

// TestForwarding sends a single test payload to a tenant's webhook.
func (fs *ForwardingService) TestForwarding(ctx context.Context, clientID uint) (*models.TestForwardingResponse, error) {
	client, err := fs.db.ClientRepo.GetClient(clientID)
	if err != nil {
		return nil, err
	}
	if client.ForwardURL == "" {
		return &models.TestForwardingResponse{Success: false, Error: "No webhook URL configured for this client"}, nil
	}

	payload := testPayload{
		Test:      true,
		ClientID:  client.ClientCode,
		Timestamp: fs.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if _, err := fs.poster.Post(ctx, client.ForwardURL, fs.decrypt(client.APIKey), payload); err != nil {
		return &models.TestForwardingResponse{Success: false, Error: testErrorText(err)}, nil
	}
	return &models.TestForwardingResponse{Success: true}, nil
}

func testErrorText(err error) string {
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		body := statusErr.Body
		if len(body) > testErrorLimit {
			body = body[:testErrorLimit]
		}
		return fmt.Sprintf("HTTP %d: %s", statusErr.StatusCode, body)
	}
	return err.Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ForwardDispatcher hands stored events to a fixed pool of forwarding
// workers through a bounded queue. Submit never blocks: when the queue is
// full the event stays unforwarded for the retry sweep.
type ForwardDispatcher struct {
	forwarder *ForwardingService
	queue     chan models.AttendanceEvent
	workers   int
	logger    zerolog.Logger
}

func NewForwardDispatcher(forwarder *ForwardingService, queueSize, workers int, logger zerolog.Logger) *ForwardDispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	return &ForwardDispatcher{
		forwarder: forwarder,
		queue:     make(chan models.AttendanceEvent, queueSize),
		workers:   workers,
		logger:    logger.With().Str("component", "forward_dispatcher").Logger(),
	}
}

// Submit queues ev and reports whether it was accepted.
func (d *ForwardDispatcher) Submit(ev models.AttendanceEvent) bool {
	select {
	case d.queue <- ev:
		metrics.ForwardQueueDepth.Set(float64(len(d.queue)))
		return true
	default:
		metrics.ForwardQueueDropped.Inc()
		return false
	}
}

// Serve runs the workers until ctx is canceled. Events still queued at
// shutdown remain unforwarded in the database.
func (d *ForwardDispatcher) Serve(ctx context.Context) error {
	d.logger.Info().Int("workers", d.workers).Int("queue_size", cap(d.queue)).Msg("Forwarding workers started")

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (d *ForwardDispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			metrics.ForwardQueueDepth.Set(float64(len(d.queue)))
			if _, err := d.forwarder.Forward(ctx, ev); err != nil && ctx.Err() == nil {
				d.logger.Error().Err(err).Uint("event_id", ev.ID).Msg("Forwarding error")
			}
		}
	}
}

func (d *ForwardDispatcher) String() string { return "forward-dispatcher" }
