package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"zkteco-hub/config"
	"zkteco-hub/database"
	"zkteco-hub/logging"
	"zkteco-hub/models"
	"zkteco-hub/protocol"
	"zkteco-hub/secrets"
	"zkteco-hub/transport"

	"github.com/goccy/go-json"
)

// webhookStub answers with the scripted status codes in order and repeats
// the last one afterwards.
type webhookStub struct {
	mu       sync.Mutex
	statuses []int
	body     string
	hits     int32
	auth     []string
	payloads []map[string]interface{}
}

func (s *webhookStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := atomic.AddInt32(&s.hits, 1)
	data, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	var payload map[string]interface{}
	_ = json.Unmarshal(data, &payload)
	s.payloads = append(s.payloads, payload)
	status := http.StatusOK
	if len(s.statuses) > 0 {
		i := int(n) - 1
		if i >= len(s.statuses) {
			i = len(s.statuses) - 1
		}
		status = s.statuses[i]
	}
	body := s.body
	s.mu.Unlock()

	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (s *webhookStub) count() int { return int(atomic.LoadInt32(&s.hits)) }

type forwardingFixture struct {
	db      *database.Database
	service *ForwardingService
	stub    *webhookStub
	server  *httptest.Server
	client  *models.Client
}

func newForwardingFixture(t *testing.T, statuses ...int) *forwardingFixture {
	t.Helper()
	return newForwardingFixtureWith(t, config.ForwardingConfig{AttemptTimeout: 2 * time.Second}, statuses...)
}

// newForwardingFixtureWith builds the webhook sender from senderCfg so
// breaker settings can be exercised.
func newForwardingFixtureWith(t *testing.T, senderCfg config.ForwardingConfig, statuses ...int) *forwardingFixture {
	t.Helper()
	stub := &webhookStub{statuses: statuses, body: "boom"}
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)

	cipher, err := secrets.New("test-session-secret")
	if err != nil {
		t.Fatalf("secrets.New: %v", err)
	}
	sealed, err := cipher.Encrypt("k-123")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	db := openTestDB(t)
	client, _ := seedDevice(t, db, "SN1", func(c *models.Client) {
		c.ForwardingEnabled = true
		c.ForwardURL = server.URL
		c.APIKey = sealed
	})
	seedDevice(t, db, "SN2", nil)

	sender := transport.NewWebhookSender(senderCfg, logging.Nop())
	service := NewForwardingService(db, sender, cipher, config.ForwardingConfig{
		DefaultRetryAttempts: 3,
		DefaultRetryDelay:    time.Millisecond,
	}, logging.Nop())

	return &forwardingFixture{db: db, service: service, stub: stub, server: server, client: client}
}

func (f *forwardingFixture) storeEvent(t *testing.T, serial, pin string) models.AttendanceEvent {
	t.Helper()
	ev := &models.AttendanceEvent{
		DeviceSerial: serial,
		PIN:          pin,
		DeviceTime:   "2025-01-06 08:00:00",
		Status:       0,
		Verify:       1,
		ReceivedAt:   time.Now().UTC(),
	}
	if _, err := f.db.AttendanceRepo.CreateIfAbsent(f.db.DB, ev); err != nil {
		t.Fatalf("store event: %v", err)
	}
	return *ev
}

func (f *forwardingFixture) reload(t *testing.T, id uint) *models.AttendanceEvent {
	t.Helper()
	ev, err := f.db.AttendanceRepo.GetEvent(id)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	return ev
}

func TestForwardSucceedsAfterRetries(t *testing.T) {
	f := newForwardingFixture(t, 500, 500, 200)
	ev := f.storeEvent(t, "SN1", "101")

	outcome, err := f.service.Forward(context.Background(), ev)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if outcome != ForwardDelivered {
		t.Fatalf("outcome = %s, want %s", outcome, ForwardDelivered)
	}
	if f.stub.count() != 3 {
		t.Fatalf("attempts = %d, want 3", f.stub.count())
	}

	stored := f.reload(t, ev.ID)
	if !stored.Forwarded || stored.ForwardedAt == nil || stored.ForwardError != nil {
		t.Fatalf("event not marked forwarded: %+v", stored)
	}

	if f.stub.auth[0] != "Bearer k-123" {
		t.Fatalf("authorization = %q", f.stub.auth[0])
	}
	payload := f.stub.payloads[2]
	if payload["deviceSerial"] != "SN1" || payload["clientId"] != "C-SN1" || payload["pin"] != "101" ||
		payload["timestamp"] != "2025-01-06 08:00:00" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if wc, ok := payload["workCode"]; !ok || wc != nil {
		t.Fatalf("workCode should be null, got %v (present=%v)", wc, ok)
	}
}

func TestForwardGivesUpAfterRetryBudget(t *testing.T) {
	f := newForwardingFixture(t, 500)
	ev := f.storeEvent(t, "SN1", "101")

	outcome, err := f.service.Forward(context.Background(), ev)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if outcome != ForwardFailed {
		t.Fatalf("outcome = %s, want %s", outcome, ForwardFailed)
	}
	if f.stub.count() != 3 {
		t.Fatalf("attempts = %d, want exactly 3", f.stub.count())
	}

	stored := f.reload(t, ev.ID)
	if stored.Forwarded {
		t.Fatal("event should stay unforwarded")
	}
	if stored.ForwardError == nil || *stored.ForwardError != "HTTP 500: boom" {
		t.Fatalf("forward error = %v", stored.ForwardError)
	}
}

func TestForwardRetryBudgetWithDefaultConfig(t *testing.T) {
	statuses := make([]int, 0, 13)
	for i := 0; i < 12; i++ {
		statuses = append(statuses, http.StatusInternalServerError)
	}
	statuses = append(statuses, http.StatusOK)
	f := newForwardingFixtureWith(t, config.Default().Forwarding, statuses...)

	for i := 0; i < 4; i++ {
		ev := f.storeEvent(t, "SN1", fmt.Sprintf("20%d", i))
		outcome, err := f.service.Forward(context.Background(), ev)
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		if outcome != ForwardFailed {
			t.Fatalf("event %d outcome = %s, want %s", i, outcome, ForwardFailed)
		}
	}
	if f.stub.count() != 12 {
		t.Fatalf("webhook hits = %d, want 12", f.stub.count())
	}

	ev := f.storeEvent(t, "SN1", "300")
	outcome, err := f.service.Forward(context.Background(), ev)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if outcome != ForwardDelivered {
		t.Fatalf("outcome after recovery = %s, want %s", outcome, ForwardDelivered)
	}
	if !f.reload(t, ev.ID).Forwarded {
		t.Fatal("event should be forwarded once the webhook recovers")
	}
}

func TestForwardDefersWhileBreakerOpen(t *testing.T) {
	f := newForwardingFixtureWith(t, config.ForwardingConfig{
		AttemptTimeout:  2 * time.Second,
		BreakerFailures: 1,
		BreakerTimeout:  time.Minute,
	}, http.StatusInternalServerError)
	ev := f.storeEvent(t, "SN1", "101")

	outcome, err := f.service.Forward(context.Background(), ev)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if outcome != ForwardFailed {
		t.Fatalf("outcome = %s, want %s", outcome, ForwardFailed)
	}
	if f.stub.count() != 1 {
		t.Fatalf("webhook hits = %d, want 1", f.stub.count())
	}

	stored := f.reload(t, ev.ID)
	if stored.Forwarded {
		t.Fatal("event should stay unforwarded for the retry sweep")
	}
	if stored.ForwardError == nil || !strings.Contains(*stored.ForwardError, "circuit breaker") {
		t.Fatalf("forward error = %v", stored.ForwardError)
	}
}

func TestForwardSkipsTenantsWithoutForwarding(t *testing.T) {
	f := newForwardingFixture(t)

	for _, serial := range []string{"SN2", "UNKNOWN"} {
		ev := f.storeEvent(t, serial, "7")
		outcome, err := f.service.Forward(context.Background(), ev)
		if err != nil {
			t.Fatalf("Forward %s: %v", serial, err)
		}
		if outcome != ForwardSkipped {
			t.Fatalf("%s outcome = %s, want skipped", serial, outcome)
		}
		if f.reload(t, ev.ID).Forwarded {
			t.Fatalf("%s event should not be marked forwarded", serial)
		}
	}
	if f.stub.count() != 0 {
		t.Fatalf("webhook hit %d times", f.stub.count())
	}
}

func TestForwardReadsTenantOnEveryCall(t *testing.T) {
	f := newForwardingFixture(t)
	ev := f.storeEvent(t, "SN1", "101")

	if _, err := f.db.ClientRepo.UpdateClient(f.db.DB, f.client.ID, map[string]interface{}{"forwarding_enabled": false}); err != nil {
		t.Fatalf("UpdateClient: %v", err)
	}
	if outcome, _ := f.service.Forward(context.Background(), ev); outcome != ForwardSkipped {
		t.Fatalf("outcome = %s after disabling forwarding", outcome)
	}

	if _, err := f.db.ClientRepo.UpdateClient(f.db.DB, f.client.ID, map[string]interface{}{"forwarding_enabled": true}); err != nil {
		t.Fatalf("UpdateClient: %v", err)
	}
	if outcome, _ := f.service.Forward(context.Background(), ev); outcome != ForwardDelivered {
		t.Fatalf("outcome = %s after enabling forwarding", outcome)
	}
}

func TestRetryPending(t *testing.T) {
	f := newForwardingFixture(t, 500, 500, 500, 200)
	first := f.storeEvent(t, "SN1", "101")

	if outcome, _ := f.service.Forward(context.Background(), first); outcome != ForwardFailed {
		t.Fatalf("first pass outcome = %s", outcome)
	}
	f.storeEvent(t, "SN2", "202")

	count, err := f.service.CountPending()
	if err != nil || count != 2 {
		t.Fatalf("CountPending = %d, %v", count, err)
	}

	resp, err := f.service.RetryPending(context.Background())
	if err != nil {
		t.Fatalf("RetryPending: %v", err)
	}
	// SN2's tenant has forwarding disabled, so only SN1's event is delivered.
	if resp.Total != 2 || resp.Forwarded != 1 {
		t.Fatalf("retry = %+v, want 1 of 2", resp)
	}
	if stored := f.reload(t, first.ID); !stored.Forwarded || stored.ForwardError != nil {
		t.Fatalf("retried event = %+v", stored)
	}
}

func TestTestForwarding(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newForwardingFixture(t)
		resp, err := f.service.TestForwarding(context.Background(), f.client.ID)
		if err != nil {
			t.Fatalf("TestForwarding: %v", err)
		}
		if !resp.Success {
			t.Fatalf("resp = %+v", resp)
		}
		payload := f.stub.payloads[0]
		if payload["test"] != true || payload["clientId"] != "C-SN1" {
			t.Fatalf("payload = %v", payload)
		}
		if ts, _ := payload["timestamp"].(string); !strings.HasSuffix(ts, "Z") {
			t.Fatalf("timestamp = %v", payload["timestamp"])
		}
	})

	t.Run("error body truncated", func(t *testing.T) {
		f := newForwardingFixture(t, 400)
		f.stub.body = strings.Repeat("x", 300)
		resp, err := f.service.TestForwarding(context.Background(), f.client.ID)
		if err != nil {
			t.Fatalf("TestForwarding: %v", err)
		}
		want := "HTTP 400: " + strings.Repeat("x", 200)
		if resp.Success || resp.Error != want {
			t.Fatalf("resp = %+v", resp)
		}
	})

	t.Run("no url", func(t *testing.T) {
		f := newForwardingFixture(t)
		other, err := f.db.ClientRepo.GetClientByDeviceSerial("SN2")
		if err != nil {
			t.Fatalf("GetClientByDeviceSerial: %v", err)
		}
		resp, err := f.service.TestForwarding(context.Background(), other.ID)
		if err != nil {
			t.Fatalf("TestForwarding: %v", err)
		}
		if resp.Success || resp.Error != "No webhook URL configured for this client" {
			t.Fatalf("resp = %+v", resp)
		}
	})

	t.Run("unknown client", func(t *testing.T) {
		f := newForwardingFixture(t)
		if _, err := f.service.TestForwarding(context.Background(), 999); err == nil {
			t.Fatal("expected error for unknown client")
		}
	})
}

func TestDispatcherQueueBound(t *testing.T) {
	f := newForwardingFixture(t)
	d := NewForwardDispatcher(f.service, 1, 1, logging.Nop())

	if !d.Submit(models.AttendanceEvent{ID: 1}) {
		t.Fatal("first submit should be accepted")
	}
	if d.Submit(models.AttendanceEvent{ID: 2}) {
		t.Fatal("submit on a full queue should be rejected")
	}
}

func TestIngestForwardsThroughDispatcher(t *testing.T) {
	f := newForwardingFixture(t)
	dispatcher := NewForwardDispatcher(f.service, 16, 2, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dispatcher.Serve(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	commands := NewCommandService(f.db, logging.Nop())
	sessions := NewSessionService(f.db, commands, nil, nil, protocol.DefaultHandshakeOptions(), logging.Nop())
	ingest := NewIngestService(f.db, sessions, dispatcher, nil, logging.Nop())

	res := ingest.Ingest("SN1", "ATTLOG", "1", "101\t2025-01-06 08:00:00\t0\t1\n102\t2025-01-06 08:05:00\t1\t1\n")
	if res.Stored != 2 {
		t.Fatalf("upload = %+v", res)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		pending, err := f.db.AttendanceRepo.CountPending()
		if err != nil {
			t.Fatalf("CountPending: %v", err)
		}
		if pending == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d events still pending", pending)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if f.stub.count() != 2 {
		t.Fatalf("webhook hits = %d, want 2", f.stub.count())
	}
}
