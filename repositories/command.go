package repositories

import (
	"fmt"
	"time"

	"zkteco-hub/models"
	"zkteco-hub/repositories/base"
	"zkteco-hub/repositories/interfaces"

	"gorm.io/gorm"
)

const defaultCommandHistory = 200

// CommandRepository implements CommandRepositoryInterface.
type CommandRepository struct {
	db *gorm.DB
}

// NewCommandRepository creates a new instance of CommandRepository.
func NewCommandRepository(db *gorm.DB) interfaces.CommandRepositoryInterface {
	return &CommandRepository{db: db}
}

func (cr *CommandRepository) CreateCommand(tx *gorm.DB, command *models.DeviceCommand) error {
	if command.Status == "" {
		command.Status = models.CommandStatusPending
	}
	if err := tx.Create(command).Error; err != nil {
		return base.WrapDBError("create", "device_commands", err)
	}
	return nil
}

func (cr *CommandRepository) ListPending(serial string) ([]models.DeviceCommand, error) {
	var commands []models.DeviceCommand
	err := cr.db.
		Where("device_serial = ? AND status = ?", serial, models.CommandStatusPending).
		Order("created_at asc, id asc").
		Find(&commands).Error
	if err != nil {
		return nil, base.WrapDBError("list pending", "device_commands", err)
	}
	return commands, nil
}

func (cr *CommandRepository) HasPending(serial, command string) (bool, error) {
	var count int64
	err := cr.db.Model(&models.DeviceCommand{}).
		Where("device_serial = ? AND status = ? AND command = ?", serial, models.CommandStatusPending, command).
		Count(&count).Error
	if err != nil {
		return false, base.WrapDBError("count pending", "device_commands", err)
	}
	return count > 0, nil
}

// CompleteCommand only touches pending rows, so a second result for the
// same ID never rewrites the first.
func (cr *CommandRepository) CompleteCommand(tx *gorm.DB, commandID string, returnValue int, returnData string, at time.Time) (bool, error) {
	result := tx.Model(&models.DeviceCommand{}).
		Where("command_id = ? AND status = ?", commandID, models.CommandStatusPending).
		Updates(map[string]interface{}{
			"status":       models.CommandStatusExecuted,
			"return_value": returnValue,
			"return_data":  returnData,
			"executed_at":  at,
		})
	if result.Error != nil {
		return false, base.WrapDBError("complete", "device_commands", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (cr *CommandRepository) GetCommand(commandID string) (*models.DeviceCommand, error) {
	var command models.DeviceCommand
	if err := cr.db.Where("command_id = ?", commandID).First(&command).Error; err != nil {
		return nil, base.HandleDBError("get", "device_commands", fmt.Sprintf("command ID '%s'", commandID), err)
	}
	return &command, nil
}

func (cr *CommandRepository) ListCommands(serial string, limit int) ([]models.DeviceCommand, error) {
	var commands []models.DeviceCommand
	query := cr.db.Order("id desc")
	if serial != "" {
		query = query.Where("device_serial = ?", serial)
	}
	if err := applyLimit(query, limit, defaultCommandHistory).Find(&commands).Error; err != nil {
		return nil, base.WrapDBError("list", "device_commands", err)
	}
	return commands, nil
}
