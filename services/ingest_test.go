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

type recordingSubmitter struct {
	mu     sync.Mutex
	events []models.AttendanceEvent
}

func (s *recordingSubmitter) Submit(ev models.AttendanceEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return true
}

func newIngestFixture(t *testing.T) (*IngestService, *SessionService, *recordingSubmitter, *recordingPublisher) {
	t.Helper()
	db := openTestDB(t)
	seedDevice(t, db, "SN1", nil)
	commands := NewCommandService(db, logging.Nop())
	publisher := &recordingPublisher{}
	sessions := NewSessionService(db, commands, redis.NewMemoryStore(), publisher, protocol.DefaultHandshakeOptions(), logging.Nop())
	submitter := &recordingSubmitter{}
	return NewIngestService(db, sessions, submitter, publisher, logging.Nop()), sessions, submitter, publisher
}

const attlogBody = "101\t2025-01-06 08:00:00\t0\t1\t\t0\n" +
	"102\t2025-01-06 08:01:30\t1\t15\t7\n" +
	"garbage line\n"

func TestIngestAttendanceDedup(t *testing.T) {
	ingest, _, submitter, publisher := newIngestFixture(t)

	res := ingest.Ingest("SN1", "ATTLOG", "100", attlogBody)
	if res.Stored != 2 || res.Duplicates != 0 || res.Rejected != 1 {
		t.Fatalf("first upload = %+v", res)
	}

	res = ingest.Ingest("SN1", "ATTLOG", "100", attlogBody)
	if res.Stored != 0 || res.Duplicates != 2 {
		t.Fatalf("replayed upload = %+v", res)
	}

	if len(submitter.events) != 2 {
		t.Fatalf("submitted %d events, want 2", len(submitter.events))
	}
	if len(publisher.attendance) != 2 {
		t.Fatalf("published %d events, want 2", len(publisher.attendance))
	}

	second := submitter.events[1]
	if second.PIN != "102" || second.DeviceTime != "2025-01-06 08:01:30" || second.Status != 1 ||
		second.Verify != 15 || second.WorkCode != "7" || second.ID == 0 {
		t.Fatalf("unexpected event: %+v", second)
	}

	pending, err := ingest.db.AttendanceRepo.CountPending()
	if err != nil {
		t.Fatalf("CountPending: %v", err)
	}
	if pending != 2 {
		t.Fatalf("pending = %d, want 2", pending)
	}
}

func TestIngestUnregisteredDeviceStillStored(t *testing.T) {
	ingest, _, submitter, _ := newIngestFixture(t)
	res := ingest.Ingest("GHOST", "ATTLOG", "5", "7\t2025-01-06 09:00:00\t0\t1\n")
	if res.Stored != 1 {
		t.Fatalf("upload = %+v", res)
	}
	if len(submitter.events) != 1 || submitter.events[0].DeviceSerial != "GHOST" {
		t.Fatalf("submitted = %+v", submitter.events)
	}
}

func TestIngestWatermarks(t *testing.T) {
	ctx := context.Background()
	ingest, sessions, _, _ := newIngestFixture(t)

	ingest.Ingest("SN1", "ATTLOG", "9999", attlogBody)
	ingest.Ingest("SN1", "OPERLOG", "42", "USER PIN=1\tName=Ana\nOPLOG 4\t0\t2025-01-06 08:00:00\t0\t0\t0\t0\n")
	ingest.Ingest("SN1", "ATTPHOTO", "7", "PIN=2025-photo.jpg\nSN=SN1\n")

	device := mustDevice(t, ingest.db, "SN1")
	if device.AttLogStamp != "9999" || device.OperLogStamp != "42" || device.AttPhotoStamp != "7" {
		t.Fatalf("stamps = %s/%s/%s", device.AttLogStamp, device.OperLogStamp, device.AttPhotoStamp)
	}

	body, _ := sessions.OnHandshake(ctx, "SN1", "10.0.0.5")
	if !strings.Contains(body, "ATTLOGStamp=9999\nOPERLOGStamp=42\nATTPHOTOStamp=7\n") {
		t.Fatalf("handshake does not echo stamps:\n%s", body)
	}

	// An upload without a stamp keeps the stored one.
	ingest.Ingest("SN1", "ATTLOG", "", "103\t2025-01-06 10:00:00\t0\t1\n")
	if device := mustDevice(t, ingest.db, "SN1"); device.AttLogStamp != "9999" {
		t.Fatalf("stamp overwritten by empty value: %s", device.AttLogStamp)
	}
}

func TestIngestOperationLogs(t *testing.T) {
	ingest, _, _, _ := newIngestFixture(t)

	res := ingest.Ingest("SN1", "OPERLOG", "1", "USER PIN=1\tName=Ana\nFP PIN=1\tFID=0\tSize=8\tValid=1\tTMP=AAAA\nsomething else\n")
	if res.Stored != 3 {
		t.Fatalf("upload = %+v", res)
	}

	logs, err := ingest.ListOperationLogs("SN1", 0)
	if err != nil {
		t.Fatalf("ListOperationLogs: %v", err)
	}
	types := map[string]bool{}
	for _, l := range logs {
		types[l.LogType] = true
	}
	for _, want := range []string{"USER", "FP", "UNKNOWN"} {
		if !types[want] {
			t.Errorf("missing log type %s in %+v", want, types)
		}
	}
}

func TestIngestUnknownTable(t *testing.T) {
	ingest, _, submitter, _ := newIngestFixture(t)
	res := ingest.Ingest("SN1", "BIODATA", "77", "whatever")
	if res.Stored != 0 || len(submitter.events) != 0 {
		t.Fatalf("unknown table should be ignored, got %+v", res)
	}
	if device := mustDevice(t, ingest.db, "SN1"); device.AttLogStamp != "0" {
		t.Fatalf("stamp changed to %s", device.AttLogStamp)
	}
}
