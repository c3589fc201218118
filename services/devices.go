package services

import (
	"context"
	"strings"
	"time"

	"zkteco-hub/database"
	"zkteco-hub/models"
	"zkteco-hub/repositories/base"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// DeviceService manages the terminal registry.
type DeviceService struct {
	db       *database.Database
	contacts ContactStore
	window   time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

func NewDeviceService(db *database.Database, contacts ContactStore, onlineWindow time.Duration, logger zerolog.Logger) *DeviceService {
	if onlineWindow <= 0 {
		onlineWindow = 5 * time.Minute
	}
	return &DeviceService{
		db:       db,
		contacts: contacts,
		window:   onlineWindow,
		logger:   logger.With().Str("component", "device_service").Logger(),
		now:      time.Now,
	}
}

func (ds *DeviceService) toResponse(d *models.Device, now time.Time) models.DeviceResponse {
	return models.DeviceResponse{Device: *d, Online: d.IsOnline(now, ds.window)}
}

// Create registers a terminal under an existing tenant and drops it from
// the unregistered contacts.
func (ds *DeviceService) Create(ctx context.Context, req *models.DeviceRequest) (*models.DeviceResponse, error) {
	if _, err := ds.db.ClientRepo.GetClient(req.ClientID); err != nil {
		if base.IsEntityNotFound(err) {
			return nil, base.NewValidationError("clientId", "", "client does not exist")
		}
		return nil, err
	}

	device := &models.Device{
		SerialNumber: strings.TrimSpace(req.SerialNumber),
		ClientID:     req.ClientID,
		Alias:        req.Alias,
		Active:       true,
	}
	if req.Active != nil {
		device.Active = *req.Active
	}

	var created *models.Device
	err := ds.db.UoW.Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = ds.db.DeviceRepo.CreateDevice(tx, device)
		return err
	})
	if err != nil {
		return nil, err
	}

	if ds.contacts != nil {
		if err := ds.contacts.ForgetContact(ctx, created.SerialNumber); err != nil {
			ds.logger.Warn().Err(err).Str("serial", created.SerialNumber).Msg("Failed to clear unregistered contact")
		}
	}
	ds.logger.Info().Str("serial", created.SerialNumber).Uint("client_id", created.ClientID).Msg("Device registered")
	resp := ds.toResponse(created, ds.now())
	return &resp, nil
}

func (ds *DeviceService) Get(id uint) (*models.DeviceResponse, error) {
	device, err := ds.db.DeviceRepo.GetDevice(id)
	if err != nil {
		return nil, err
	}
	resp := ds.toResponse(device, ds.now())
	return &resp, nil
}

// List returns devices ordered by ID, all of them when clientID is zero.
func (ds *DeviceService) List(clientID uint) ([]models.DeviceResponse, error) {
	devices, err := ds.db.DeviceRepo.ListDevices(clientID)
	if err != nil {
		return nil, err
	}
	now := ds.now()
	out := make([]models.DeviceResponse, len(devices))
	for i := range devices {
		out[i] = ds.toResponse(&devices[i], now)
	}
	return out, nil
}

func (ds *DeviceService) Update(id uint, req *models.DevicePatchRequest) (*models.DeviceResponse, error) {
	updates := make(map[string]interface{})
	if req.ClientID != nil {
		if _, err := ds.db.ClientRepo.GetClient(*req.ClientID); err != nil {
			if base.IsEntityNotFound(err) {
				return nil, base.NewValidationError("clientId", "", "client does not exist")
			}
			return nil, err
		}
		updates["client_id"] = *req.ClientID
	}
	if req.Alias != nil {
		updates["alias"] = *req.Alias
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if len(updates) == 0 {
		return ds.Get(id)
	}

	var updated *models.Device
	err := ds.db.UoW.Transaction(func(tx *gorm.DB) error {
		var err error
		updated, err = ds.db.DeviceRepo.UpdateDevice(tx, id, updates)
		return err
	})
	if err != nil {
		return nil, err
	}
	ds.logger.Info().Uint("device_id", id).Msg("Device updated")
	resp := ds.toResponse(updated, ds.now())
	return &resp, nil
}

func (ds *DeviceService) Delete(id uint) error {
	err := ds.db.UoW.Transaction(func(tx *gorm.DB) error {
		return ds.db.DeviceRepo.DeleteDevice(tx, id)
	})
	if err != nil {
		return err
	}
	ds.logger.Info().Uint("device_id", id).Msg("Device deleted")
	return nil
}

// ListUnregistered returns recent contacts from serials that are still not
// in the registry, most recent first.
func (ds *DeviceService) ListUnregistered(ctx context.Context) ([]models.UnregisteredDevice, error) {
	if ds.contacts == nil {
		return []models.UnregisteredDevice{}, nil
	}
	contacts, err := ds.contacts.ListContacts(ctx, ds.now())
	if err != nil {
		return nil, err
	}

	out := make([]models.UnregisteredDevice, 0, len(contacts))
	for _, c := range contacts {
		_, err := ds.db.DeviceRepo.GetDeviceBySerial(c.SerialNumber)
		switch {
		case err == nil:
			continue
		case !base.IsEntityNotFound(err):
			return nil, err
		}
		out = append(out, models.UnregisteredDevice{
			SerialNumber: c.SerialNumber,
			IPAddress:    c.IPAddress,
			LastSeen:     c.LastSeen,
		})
	}
	return out, nil
}
