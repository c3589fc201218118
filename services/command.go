package services

import (
	"fmt"
	"time"

	"zkteco-hub/database"
	"zkteco-hub/metrics"
	"zkteco-hub/models"
	"zkteco-hub/protocol"
	"zkteco-hub/utils"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// CommandService owns the per-device command queue: encoding operator
// requests, queuing them, handing them out on polls and matching results.
type CommandService struct {
	db     *database.Database
	logger zerolog.Logger
	now    func() time.Time
}

func NewCommandService(db *database.Database, logger zerolog.Logger) *CommandService {
	return &CommandService{
		db:     db,
		logger: logger.With().Str("component", "command_service").Logger(),
		now:    time.Now,
	}
}

// Build encodes a command request into its wire string.
func (cs *CommandService) Build(commandType string, params []byte) (string, error) {
	return protocol.EncodeRequest(protocol.Kind(commandType), params)
}

// Preview encodes a request without queuing it.
func (cs *CommandService) Preview(req *models.CommandPreviewRequest) (*models.CommandPreviewResponse, error) {
	command, err := cs.Build(req.CommandType, req.Params)
	if err != nil {
		return nil, err
	}
	return &models.CommandPreviewResponse{CommandType: req.CommandType, Command: command}, nil
}

// Submit encodes an operator request and queues it for a registered device.
func (cs *CommandService) Submit(req *models.CommandRequest) (*models.DeviceCommand, error) {
	if _, err := cs.db.DeviceRepo.GetDeviceBySerial(req.DeviceSerial); err != nil {
		return nil, err
	}
	command, err := cs.Build(req.CommandType, req.Params)
	if err != nil {
		return nil, err
	}
	return cs.Enqueue(req.DeviceSerial, command, OriginAPI)
}

// Enqueue stores command as pending for serial.
func (cs *CommandService) Enqueue(serial, command, origin string) (*models.DeviceCommand, error) {
	var cmd *models.DeviceCommand
	err := cs.db.UoW.Transaction(func(tx *gorm.DB) error {
		var err error
		cmd, err = cs.EnqueueTx(tx, serial, command, origin)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

// EnqueueTx stores command inside an existing transaction.
func (cs *CommandService) EnqueueTx(tx *gorm.DB, serial, command, origin string) (*models.DeviceCommand, error) {
	cmd := &models.DeviceCommand{
		DeviceSerial: serial,
		CommandID:    utils.GenerateCommandID(),
		Command:      command,
		Status:       models.CommandStatusPending,
		CreatedAt:    cs.now().UTC(),
	}
	if err := cs.db.CommandRepo.CreateCommand(tx, cmd); err != nil {
		return nil, fmt.Errorf("failed to queue command for %s: %w", serial, err)
	}
	metrics.CommandsEnqueued.WithLabelValues(origin).Inc()
	cs.logger.Info().
		Str("serial", serial).
		Str("command_id", cmd.CommandID).
		Str("origin", origin).
		Str("command", command).
		Msg("Command queued")
	return cmd, nil
}

// Drain returns the pending commands of serial in creation order. Delivery
// does not change their status.
func (cs *CommandService) Drain(serial string) ([]protocol.PendingLine, error) {
	pending, err := cs.db.CommandRepo.ListPending(serial)
	if err != nil {
		return nil, err
	}
	lines := make([]protocol.PendingLine, len(pending))
	for i, cmd := range pending {
		lines[i] = protocol.PendingLine{ID: cmd.CommandID, Command: cmd.Command}
	}
	return lines, nil
}

// Complete records a result. It returns the executed command, or nil when
// no pending command carries commandID.
func (cs *CommandService) Complete(commandID string, returnValue int, returnData string) (*models.DeviceCommand, error) {
	ok, err := cs.db.CommandRepo.CompleteCommand(cs.db.DB, commandID, returnValue, returnData, cs.now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return cs.db.CommandRepo.GetCommand(commandID)
}

// HasPending reports whether serial already has command queued.
func (cs *CommandService) HasPending(serial, command string) (bool, error) {
	return cs.db.CommandRepo.HasPending(serial, command)
}

func (cs *CommandService) List(serial string, limit int) ([]models.DeviceCommand, error) {
	return cs.db.CommandRepo.ListCommands(serial, limit)
}

// Kinds lists every supported command type.
func (cs *CommandService) Kinds() []models.CommandKindInfo {
	kinds := protocol.Kinds()
	out := make([]models.CommandKindInfo, len(kinds))
	for i, k := range kinds {
		out[i] = models.CommandKindInfo{Kind: string(k), Simple: k.IsSimple()}
	}
	return out
}
