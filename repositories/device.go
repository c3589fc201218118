package repositories

import (
	"fmt"
	"strings"
	"time"

	"zkteco-hub/models"
	"zkteco-hub/repositories/base"
	"zkteco-hub/repositories/interfaces"

	"gorm.io/gorm"
)

var stampColumns = map[string]string{
	"ATTLOG":   "attlog_stamp",
	"OPERLOG":  "operlog_stamp",
	"ATTPHOTO": "attphoto_stamp",
}

// DeviceRepository implements DeviceRepositoryInterface.
type DeviceRepository struct {
	*base.BaseCRUDRepository[models.Device]
	db *gorm.DB
}

// NewDeviceRepository creates a new instance of DeviceRepository.
func NewDeviceRepository(db *gorm.DB) interfaces.DeviceRepositoryInterface {
	return &DeviceRepository{
		BaseCRUDRepository: base.NewBaseCRUDRepository[models.Device](db, "devices"),
		db:                 db,
	}
}

func (dr *DeviceRepository) CreateDevice(tx *gorm.DB, device *models.Device) (*models.Device, error) {
	exists, err := ExistsByField[models.Device](tx, "serial_number", device.SerialNumber)
	if err != nil {
		return nil, base.WrapDBError("create", "devices", err)
	}
	if exists {
		return nil, base.NewDuplicateEntityError("devices", "serialNumber", device.SerialNumber)
	}
	if err := dr.Create(tx, device); err != nil {
		return nil, err
	}
	return device, nil
}

func (dr *DeviceRepository) GetDevice(id uint) (*models.Device, error) {
	return dr.GetByID(id)
}

func (dr *DeviceRepository) GetDeviceBySerial(serial string) (*models.Device, error) {
	return dr.FindOneByField("serial_number", serial)
}

func (dr *DeviceRepository) ListDevices(clientID uint) ([]models.Device, error) {
	if clientID != 0 {
		return dr.FilterByField("client_id", clientID, 0, 0)
	}
	return dr.ListWithPagination(0, 0, "id asc")
}

func (dr *DeviceRepository) UpdateDevice(tx *gorm.DB, id uint, updates map[string]interface{}) (*models.Device, error) {
	return dr.UpdateAndGet(tx, id, updates)
}

func (dr *DeviceRepository) DeleteDevice(tx *gorm.DB, id uint) error {
	return dr.DeleteWithValidation(tx, id)
}

func (dr *DeviceRepository) TouchSession(tx *gorm.DB, serial, ip string, seenAt time.Time) (bool, error) {
	result := tx.Model(&models.Device{}).
		Where("serial_number = ?", serial).
		Updates(map[string]interface{}{"last_seen": seenAt, "ip_address": ip})
	if result.Error != nil {
		return false, base.WrapDBError("touch", "devices", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (dr *DeviceRepository) UpdateStamp(tx *gorm.DB, serial, table, stamp string) error {
	column, ok := stampColumns[strings.ToUpper(table)]
	if !ok {
		return base.NewValidationError("table", table, "unknown log table")
	}
	return requireRow(
		tx.Model(&models.Device{}).Where("serial_number = ?", serial).Update(column, stamp),
		"devices", fmt.Sprintf("serial '%s'", serial),
	)
}

func (dr *DeviceRepository) UpdateDeviceInfo(tx *gorm.DB, serial, model, firmware string) error {
	updates := map[string]interface{}{}
	if model != "" {
		updates["model"] = model
	}
	if firmware != "" {
		updates["firmware_version"] = firmware
	}
	if len(updates) == 0 {
		return nil
	}
	return requireRow(
		tx.Model(&models.Device{}).Where("serial_number = ?", serial).Updates(updates),
		"devices", fmt.Sprintf("serial '%s'", serial),
	)
}
