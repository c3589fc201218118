package interfaces

import (
	"zkteco-hub/models"

	"gorm.io/gorm"
)

// ClientRepositoryInterface defines the contract for tenant data access.
type ClientRepositoryInterface interface {
	// CreateClient creates a new tenant within a transaction.
	CreateClient(tx *gorm.DB, client *models.Client) (*models.Client, error)

	// GetClient retrieves a tenant by database ID.
	GetClient(id uint) (*models.Client, error)

	// GetClientByDeviceSerial resolves the tenant owning a device.
	GetClientByDeviceSerial(serial string) (*models.Client, error)

	// ListClients retrieves every tenant ordered by ID.
	ListClients() ([]models.Client, error)

	// UpdateClient applies column updates within a transaction.
	UpdateClient(tx *gorm.DB, id uint, updates map[string]interface{}) (*models.Client, error)

	// DeleteClient deletes a tenant within a transaction.
	DeleteClient(tx *gorm.DB, id uint) error

	// CountDevices counts devices registered to a tenant.
	CountDevices(clientID uint) (int64, error)
}
