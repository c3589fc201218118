package services

import (
	"context"
	"sync"
	"time"

	"zkteco-hub/database"
	"zkteco-hub/metrics"
	"zkteco-hub/models"
	"zkteco-hub/protocol"
	"zkteco-hub/repositories/base"

	"github.com/rs/zerolog"
)

// infoCommand is queued to learn a device's model and firmware.
const infoCommand = "INFO"

// SessionService tracks terminals across protocol contacts: last-seen
// address, upload watermarks and detected identity. Unknown serials are
// always answered; they are only remembered as contacts.
type SessionService struct {
	db        *database.Database
	commands  *CommandService
	contacts  ContactStore
	publisher EventPublisher
	options   protocol.HandshakeOptions
	logger    zerolog.Logger
	now       func() time.Time

	infoMu    sync.Mutex
	infoLocks map[string]*sync.Mutex
}

func NewSessionService(db *database.Database, commands *CommandService, contacts ContactStore,
	publisher EventPublisher, options protocol.HandshakeOptions, logger zerolog.Logger) *SessionService {
	if publisher == nil {
		publisher = NopPublisher()
	}
	return &SessionService{
		db:        db,
		commands:  commands,
		contacts:  contacts,
		publisher: publisher,
		options:   options,
		logger:    logger.With().Str("component", "session_service").Logger(),
		now:       time.Now,
		infoLocks: make(map[string]*sync.Mutex),
	}
}

// lookup returns the registered device for serial, or nil when the serial
// is unknown or the registry cannot be read.
func (ss *SessionService) lookup(serial string) *models.Device {
	device, err := ss.db.DeviceRepo.GetDeviceBySerial(serial)
	if err != nil {
		if !base.IsEntityNotFound(err) {
			ss.logger.Error().Err(err).Str("serial", serial).Msg("Failed to look up device")
		}
		return nil
	}
	return device
}

// touch records the contact and reports whether serial is registered.
func (ss *SessionService) touch(ctx context.Context, serial, ip string) bool {
	now := ss.now().UTC()
	found, err := ss.db.DeviceRepo.TouchSession(ss.db.DB, serial, ip, now)
	if err != nil {
		ss.logger.Error().Err(err).Str("serial", serial).Msg("Failed to record device contact")
		return false
	}
	if found {
		return true
	}
	if ss.contacts != nil {
		if err := ss.contacts.RecordContact(ctx, serial, ip, now); err != nil {
			ss.logger.Warn().Err(err).Str("serial", serial).Msg("Failed to record unregistered contact")
		}
	}
	return false
}

// OnHandshake answers GET /iclock/cdata. Unknown serials receive zeroed
// watermarks. A registered device without a detected model gets one INFO
// command queued.
func (ss *SessionService) OnHandshake(ctx context.Context, serial, ip string) (string, bool) {
	registered := ss.touch(ctx, serial, ip)

	var stamps protocol.Stamps
	if registered {
		if device := ss.lookup(serial); device != nil {
			stamps = protocol.Stamps{
				AttLog:   device.AttLogStamp,
				OperLog:  device.OperLogStamp,
				AttPhoto: device.AttPhotoStamp,
			}
			if device.Model == "" {
				ss.ensureInfoQueued(serial)
			}
		}
	} else {
		ss.logger.Warn().Str("serial", serial).Str("ip", ip).Msg("Handshake from unregistered device")
	}

	return protocol.BuildHandshake(serial, stamps, ss.options), registered
}

// ensureInfoQueued queues INFO unless one is already pending. The check and
// the insert are serialized per serial so concurrent handshakes queue at
// most one.
func (ss *SessionService) ensureInfoQueued(serial string) {
	mu := ss.serialLock(serial)
	mu.Lock()
	defer mu.Unlock()

	pending, err := ss.commands.HasPending(serial, infoCommand)
	if err != nil {
		ss.logger.Error().Err(err).Str("serial", serial).Msg("Failed to check pending INFO command")
		return
	}
	if pending {
		return
	}
	if _, err := ss.commands.Enqueue(serial, infoCommand, OriginAutoInfo); err != nil {
		ss.logger.Error().Err(err).Str("serial", serial).Msg("Failed to queue INFO command")
		return
	}
	ss.logger.Info().Str("serial", serial).Msg("Queued INFO command to detect device model")
}

func (ss *SessionService) serialLock(serial string) *sync.Mutex {
	ss.infoMu.Lock()
	defer ss.infoMu.Unlock()
	mu, ok := ss.infoLocks[serial]
	if !ok {
		mu = &sync.Mutex{}
		ss.infoLocks[serial] = mu
	}
	return mu
}

// OnPoll answers GET /iclock/getrequest with the pending command lines.
func (ss *SessionService) OnPoll(ctx context.Context, serial, ip string) (string, bool) {
	registered := ss.touch(ctx, serial, ip)

	pending, err := ss.commands.Drain(serial)
	if err != nil {
		ss.logger.Error().Err(err).Str("serial", serial).Msg("Failed to load pending commands")
		return protocol.Ack, registered
	}
	if len(pending) > 0 {
		metrics.CommandsDelivered.Add(float64(len(pending)))
		ss.logger.Info().Str("serial", serial).Int("count", len(pending)).Msg("Delivering pending commands")
	}
	return protocol.RenderPoll(pending), registered
}

// OnCommandResult handles a POST /iclock/devicecmd body. Each result
// completes its pending command; unknown IDs are dropped. An INFO payload
// updates the device's detected model and firmware.
func (ss *SessionService) OnCommandResult(ctx context.Context, serial, ip, body string) int {
	if serial != "" {
		ss.touch(ctx, serial, ip)
	}

	results := protocol.ParseResults(body)
	completed := 0
	for _, r := range results {
		target := serial
		cmd, err := ss.commands.Complete(r.ID, r.Return, r.Payload)
		switch {
		case err != nil:
			ss.logger.Error().Err(err).Str("command_id", r.ID).Msg("Failed to complete command")
		case cmd == nil:
			metrics.CommandResults.WithLabelValues("unmatched").Inc()
			ss.logger.Debug().Str("command_id", r.ID).Msg("Result for unknown command ignored")
		default:
			completed++
			target = cmd.DeviceSerial
			metrics.CommandResults.WithLabelValues("completed").Inc()
			ss.logger.Info().
				Str("serial", cmd.DeviceSerial).
				Str("command_id", r.ID).
				Int("return", r.Return).
				Msg("Command executed")
			ss.publisher.PublishCommandResult(cmd)
		}

		if r.Payload == "" || target == "" {
			continue
		}
		if info := protocol.ParseDeviceInfo(r.Payload); !info.Empty() {
			ss.updateDeviceInfo(target, info)
		}
	}
	return completed
}

func (ss *SessionService) updateDeviceInfo(serial string, info protocol.DeviceInfo) {
	err := ss.db.DeviceRepo.UpdateDeviceInfo(ss.db.DB, serial, info.Model, info.Firmware)
	switch {
	case err == nil:
		ss.logger.Info().
			Str("serial", serial).
			Str("model", info.Model).
			Str("firmware", info.Firmware).
			Msg("Device identity detected")
	case base.IsEntityNotFound(err):
	default:
		ss.logger.Error().Err(err).Str("serial", serial).Msg("Failed to store device identity")
	}
}

// OnUploadStamp stores the watermark of table. An empty stamp leaves the
// stored one untouched.
func (ss *SessionService) OnUploadStamp(serial string, table protocol.Table, stamp string) {
	if stamp == "" {
		return
	}
	err := ss.db.DeviceRepo.UpdateStamp(ss.db.DB, serial, string(table), stamp)
	if err != nil && !base.IsEntityNotFound(err) {
		ss.logger.Error().Err(err).Str("serial", serial).Str("table", string(table)).Msg("Failed to store upload stamp")
	}
}

// Touch records a contact for endpoints that carry no other session work.
func (ss *SessionService) Touch(ctx context.Context, serial, ip string) bool {
	return ss.touch(ctx, serial, ip)
}

// Registered reports whether serial belongs to a registered device.
func (ss *SessionService) Registered(serial string) bool {
	return serial != "" && ss.lookup(serial) != nil
}
