package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"zkteco-hub/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

type doneToken struct{ done chan struct{} }

func newDoneToken() *doneToken {
	ch := make(chan struct{})
	close(ch)
	return &doneToken{done: ch}
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return nil }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	messages  []published
}

func (f *fakePublisher) IsConnected() bool { return f.connected }

func (f *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return newDoneToken()
}

func TestPublishAttendance(t *testing.T) {
	fake := &fakePublisher{connected: true}
	c := newWithPublisher(fake, "zkteco", 1, zerolog.Nop())

	c.PublishAttendance(&models.AttendanceEvent{
		DeviceSerial: "SN1", PIN: "101", DeviceTime: "2025-01-01 08:00:00", Status: 0, Verify: 1,
	})

	if len(fake.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(fake.messages))
	}
	m := fake.messages[0]
	if m.topic != "zkteco/SN1/attlog" || m.qos != 1 {
		t.Errorf("unexpected topic/qos %s %d", m.topic, m.qos)
	}
	var got AttendanceMessage
	if err := json.Unmarshal(m.payload, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.PIN != "101" || got.Timestamp != "2025-01-01 08:00:00" || got.Verify != 1 {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestPublishCommandResult(t *testing.T) {
	fake := &fakePublisher{connected: true}
	c := newWithPublisher(fake, "hub", 0, zerolog.Nop())
	ret := -1002
	c.PublishCommandResult(&models.DeviceCommand{DeviceSerial: "SN2", CommandID: "CMD_1", Command: "REBOOT", ReturnValue: &ret})

	if len(fake.messages) != 1 || fake.messages[0].topic != "hub/SN2/cmdresult" {
		t.Fatalf("unexpected messages %+v", fake.messages)
	}
	var got CommandResultMessage
	if err := json.Unmarshal(fake.messages[0].payload, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.ReturnValue != -1002 || got.CommandID != "CMD_1" {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestPublishSkipsWhenDisconnected(t *testing.T) {
	fake := &fakePublisher{connected: false}
	c := newWithPublisher(fake, "zkteco", 1, zerolog.Nop())
	c.PublishAttendance(&models.AttendanceEvent{DeviceSerial: "SN1", PIN: "1"})
	if len(fake.messages) != 0 {
		t.Fatalf("disconnected client must not publish, got %d", len(fake.messages))
	}
}

func TestServeReturnsOnCancel(t *testing.T) {
	c := newWithPublisher(&fakePublisher{connected: true}, "zk", 1, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
