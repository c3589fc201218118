package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"zkteco-hub/logging"
	"zkteco-hub/models"
	"zkteco-hub/protocol"
	"zkteco-hub/redis"
)

type recordingPublisher struct {
	attendance []models.AttendanceEvent
	results    []models.DeviceCommand
}

func (p *recordingPublisher) PublishAttendance(ev *models.AttendanceEvent) {
	p.attendance = append(p.attendance, *ev)
}

func (p *recordingPublisher) PublishCommandResult(cmd *models.DeviceCommand) {
	p.results = append(p.results, *cmd)
}

func newSessionFixture(t *testing.T) (*SessionService, *CommandService, *redis.MemoryStore, *recordingPublisher) {
	t.Helper()
	db := openTestDB(t)
	seedDevice(t, db, "SN1", nil)
	commands := NewCommandService(db, logging.Nop())
	contacts := redis.NewMemoryStore()
	publisher := &recordingPublisher{}
	sessions := NewSessionService(db, commands, contacts, publisher, protocol.DefaultHandshakeOptions(), logging.Nop())
	return sessions, commands, contacts, publisher
}

func TestSessionFullCycle(t *testing.T) {
	ctx := context.Background()
	sessions, commands, _, publisher := newSessionFixture(t)

	body, registered := sessions.OnHandshake(ctx, "SN1", "10.0.0.5")
	if !registered {
		t.Fatal("SN1 should be registered")
	}
	if !strings.HasPrefix(body, "GET OPTION FROM: SN1\nATTLOGStamp=0\nOPERLOGStamp=0\nATTPHOTOStamp=0\n") {
		t.Fatalf("unexpected handshake:\n%s", body)
	}

	device := mustDevice(t, sessions.db, "SN1")
	if device.IPAddress != "10.0.0.5" || device.LastSeen == nil {
		t.Fatalf("session not recorded: ip=%q lastSeen=%v", device.IPAddress, device.LastSeen)
	}

	// A second handshake must not queue another INFO.
	sessions.OnHandshake(ctx, "SN1", "10.0.0.5")
	pending, err := commands.Drain("SN1")
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(pending) != 1 || pending[0].Command != "INFO" {
		t.Fatalf("expected one pending INFO, got %+v", pending)
	}
	id := pending[0].ID

	poll, _ := sessions.OnPoll(ctx, "SN1", "10.0.0.5")
	if want := "C:" + id + ":INFO\n"; poll != want {
		t.Fatalf("poll = %q, want %q", poll, want)
	}
	again, _ := sessions.OnPoll(ctx, "SN1", "10.0.0.5")
	if again != poll {
		t.Fatalf("undelivered command should be offered again, got %q", again)
	}

	result := "ID=" + id + "&Return=0&CMD=INFO\n~DeviceName=MB460\nFWVersion=Ver 6.60\n"
	if n := sessions.OnCommandResult(ctx, "SN1", "10.0.0.5", result); n != 1 {
		t.Fatalf("completed = %d, want 1", n)
	}

	device = mustDevice(t, sessions.db, "SN1")
	if device.Model != "MB460" || device.FirmwareVersion != "Ver 6.60" {
		t.Fatalf("device info = %q/%q", device.Model, device.FirmwareVersion)
	}
	if len(publisher.results) != 1 || publisher.results[0].CommandID != id {
		t.Fatalf("expected one published result for %s, got %+v", id, publisher.results)
	}

	if poll, _ := sessions.OnPoll(ctx, "SN1", "10.0.0.5"); poll != protocol.Ack {
		t.Fatalf("queue should be empty, poll = %q", poll)
	}

	// Model is known now, so no further INFO is queued.
	sessions.OnHandshake(ctx, "SN1", "10.0.0.5")
	if pending, _ := commands.Drain("SN1"); len(pending) != 0 {
		t.Fatalf("unexpected pending commands: %+v", pending)
	}

	cmd, err := commands.db.CommandRepo.GetCommand(id)
	if err != nil {
		t.Fatalf("GetCommand: %v", err)
	}
	if cmd.Status != models.CommandStatusExecuted || cmd.ReturnValue == nil || *cmd.ReturnValue != 0 || cmd.ExecutedAt == nil {
		t.Fatalf("command not completed: %+v", cmd)
	}
}

func TestSessionUnknownResultIgnored(t *testing.T) {
	sessions, _, _, publisher := newSessionFixture(t)
	if n := sessions.OnCommandResult(context.Background(), "SN1", "", "ID=nope&Return=0&CMD=REBOOT"); n != 0 {
		t.Fatalf("completed = %d, want 0", n)
	}
	if len(publisher.results) != 0 {
		t.Fatalf("nothing should be published, got %+v", publisher.results)
	}
}

func TestSessionUnregisteredDevice(t *testing.T) {
	ctx := context.Background()
	sessions, commands, contacts, _ := newSessionFixture(t)

	body, registered := sessions.OnHandshake(ctx, "GHOST", "10.0.0.9")
	if registered {
		t.Fatal("GHOST should not be registered")
	}
	if !strings.Contains(body, "GET OPTION FROM: GHOST\nATTLOGStamp=0\n") {
		t.Fatalf("unregistered device should still get options:\n%s", body)
	}
	if poll, _ := sessions.OnPoll(ctx, "GHOST", "10.0.0.9"); poll != protocol.Ack {
		t.Fatalf("poll = %q, want ack", poll)
	}
	if pending, _ := commands.Drain("GHOST"); len(pending) != 0 {
		t.Fatalf("no command should be queued for an unknown serial, got %+v", pending)
	}

	list, err := contacts.ListContacts(ctx, sessions.now())
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	if len(list) != 1 || list[0].SerialNumber != "GHOST" || list[0].IPAddress != "10.0.0.9" {
		t.Fatalf("contacts = %+v", list)
	}
}

func TestCommandQueueOrder(t *testing.T) {
	_, commands, _, _ := newSessionFixture(t)

	var ids []string
	for _, c := range []string{"REBOOT", "CHECK", "INFO"} {
		cmd, err := commands.Enqueue("SN1", c, OriginAPI)
		if err != nil {
			t.Fatalf("Enqueue %s: %v", c, err)
		}
		ids = append(ids, cmd.CommandID)
	}

	pending, err := commands.Drain("SN1")
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending = %d, want 3", len(pending))
	}
	for i, p := range pending {
		if p.ID != ids[i] {
			t.Fatalf("pending[%d] = %s, want %s", i, p.ID, ids[i])
		}
	}
}

func TestCommandSubmitRequiresDevice(t *testing.T) {
	_, commands, _, _ := newSessionFixture(t)

	if _, err := commands.Submit(&models.CommandRequest{DeviceSerial: "NOPE", CommandType: "REBOOT"}); err == nil {
		t.Fatal("expected error for unregistered device")
	}
	cmd, err := commands.Submit(&models.CommandRequest{DeviceSerial: "SN1", CommandType: "reboot"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if cmd.Command != "REBOOT" || cmd.Status != models.CommandStatusPending {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestConcurrentHandshakesQueueOneInfo(t *testing.T) {
	ctx := context.Background()
	sessions, commands, _, _ := newSessionFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sessions.OnHandshake(ctx, "SN1", "10.0.0.5")
		}()
	}
	wg.Wait()

	pending, err := commands.Drain("SN1")
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(pending) != 1 || pending[0].Command != "INFO" {
		t.Fatalf("expected one pending INFO, got %+v", pending)
	}
}
