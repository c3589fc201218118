package interfaces

import (
	"time"

	"zkteco-hub/models"

	"gorm.io/gorm"
)

// DeviceRepositoryInterface defines the contract for device registry and
// session state access.
type DeviceRepositoryInterface interface {
	CreateDevice(tx *gorm.DB, device *models.Device) (*models.Device, error)
	GetDevice(id uint) (*models.Device, error)

	// GetDeviceBySerial returns an EntityNotFoundError for unknown serials.
	GetDeviceBySerial(serial string) (*models.Device, error)

	// ListDevices lists devices, all of them when clientID is zero.
	ListDevices(clientID uint) ([]models.Device, error)

	UpdateDevice(tx *gorm.DB, id uint, updates map[string]interface{}) (*models.Device, error)
	DeleteDevice(tx *gorm.DB, id uint) error

	// TouchSession records last-seen time and source IP. It reports false
	// when the serial is not registered.
	TouchSession(tx *gorm.DB, serial, ip string, seenAt time.Time) (bool, error)

	// UpdateStamp stores the watermark of one log table ("ATTLOG",
	// "OPERLOG" or "ATTPHOTO").
	UpdateStamp(tx *gorm.DB, serial, table, stamp string) error

	// UpdateDeviceInfo stores detected model and firmware; empty values
	// leave the stored ones untouched.
	UpdateDeviceInfo(tx *gorm.DB, serial, model, firmware string) error
}
