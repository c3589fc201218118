package services

import (
	"context"
	"time"

	"zkteco-hub/models"
	"zkteco-hub/redis"
)

// Common types shared across services

// EventPublisher fans hub events out to external subscribers. Publishing is
// best effort and must not block the caller.
type EventPublisher interface {
	PublishAttendance(ev *models.AttendanceEvent)
	PublishCommandResult(cmd *models.DeviceCommand)
}

// ContactStore remembers serials that reached the protocol endpoints
// without being registered.
type ContactStore interface {
	RecordContact(ctx context.Context, serial, ip string, at time.Time) error
	ForgetContact(ctx context.Context, serial string) error
	ListContacts(ctx context.Context, now time.Time) ([]redis.Contact, error)
}

// Locker provides a named, expiring lock shared by hub replicas.
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, name, token string) error
}

// EventSubmitter accepts newly stored events for asynchronous forwarding.
type EventSubmitter interface {
	Submit(ev models.AttendanceEvent) bool
}

type nopPublisher struct{}

func (nopPublisher) PublishAttendance(*models.AttendanceEvent)  {}
func (nopPublisher) PublishCommandResult(*models.DeviceCommand) {}

// NopPublisher discards every event.
func NopPublisher() EventPublisher { return nopPublisher{} }

// Command origins, used as metric labels.
const (
	OriginAPI       = "api"
	OriginScheduler = "scheduler"
	OriginAutoInfo  = "auto_info"
)
