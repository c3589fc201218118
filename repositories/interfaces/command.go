package interfaces

import (
	"time"

	"zkteco-hub/models"

	"gorm.io/gorm"
)

// CommandRepositoryInterface defines the contract for the per-device
// command queue.
type CommandRepositoryInterface interface {
	// CreateCommand stores a pending command within a transaction.
	CreateCommand(tx *gorm.DB, command *models.DeviceCommand) error

	// ListPending returns the device's pending commands in creation order.
	ListPending(serial string) ([]models.DeviceCommand, error)

	// HasPending reports whether an identical command string is pending.
	HasPending(serial, command string) (bool, error)

	// CompleteCommand moves a pending command to executed. It reports
	// false when no pending command carries commandID.
	CompleteCommand(tx *gorm.DB, commandID string, returnValue int, returnData string, at time.Time) (bool, error)

	GetCommand(commandID string) (*models.DeviceCommand, error)

	// ListCommands returns command history, newest first.
	ListCommands(serial string, limit int) ([]models.DeviceCommand, error)
}
