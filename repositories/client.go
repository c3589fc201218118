package repositories

import (
	"fmt"

	"zkteco-hub/models"
	"zkteco-hub/repositories/base"
	"zkteco-hub/repositories/interfaces"

	"gorm.io/gorm"
)

// ClientRepository implements ClientRepositoryInterface.
type ClientRepository struct {
	*base.BaseCRUDRepository[models.Client]
	db *gorm.DB
}

// NewClientRepository creates a new instance of ClientRepository.
func NewClientRepository(db *gorm.DB) interfaces.ClientRepositoryInterface {
	return &ClientRepository{
		BaseCRUDRepository: base.NewBaseCRUDRepository[models.Client](db, "clients"),
		db:                 db,
	}
}

func (cr *ClientRepository) CreateClient(tx *gorm.DB, client *models.Client) (*models.Client, error) {
	exists, err := ExistsByField[models.Client](tx, "client_code", client.ClientCode)
	if err != nil {
		return nil, base.WrapDBError("create", "clients", err)
	}
	if exists {
		return nil, base.NewDuplicateEntityError("clients", "clientId", client.ClientCode)
	}
	if err := cr.Create(tx, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (cr *ClientRepository) GetClient(id uint) (*models.Client, error) {
	return cr.GetByID(id)
}

func (cr *ClientRepository) GetClientByDeviceSerial(serial string) (*models.Client, error) {
	var client models.Client
	err := cr.db.
		Joins("JOIN devices ON devices.client_id = clients.id").
		Where("devices.serial_number = ?", serial).
		First(&client).Error
	if err != nil {
		return nil, base.HandleDBError("get", "clients", "device serial '"+serial+"'", err)
	}
	return &client, nil
}

func (cr *ClientRepository) ListClients() ([]models.Client, error) {
	return cr.ListWithPagination(0, 0, "id asc")
}

func (cr *ClientRepository) UpdateClient(tx *gorm.DB, id uint, updates map[string]interface{}) (*models.Client, error) {
	return cr.UpdateAndGet(tx, id, updates)
}

// DeleteClient removes the tenant together with its devices.
func (cr *ClientRepository) DeleteClient(tx *gorm.DB, id uint) error {
	var existing models.Client
	if err := tx.Where("id = ?", id).First(&existing).Error; err != nil {
		return base.HandleDBError("delete", "clients", fmt.Sprintf("ID %d", id), err)
	}
	if err := tx.Where("client_id = ?", id).Delete(&models.Device{}).Error; err != nil {
		return base.WrapDBError("delete", "devices", err)
	}
	return cr.DeleteWithValidation(tx, id)
}

func (cr *ClientRepository) CountDevices(clientID uint) (int64, error) {
	var count int64
	if err := cr.db.Model(&models.Device{}).Where("client_id = ?", clientID).Count(&count).Error; err != nil {
		return 0, base.WrapDBError("count", "devices", err)
	}
	return count, nil
}
