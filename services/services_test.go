package services

import (
	"testing"
	"time"

	"zkteco-hub/config"
	"zkteco-hub/database"
	"zkteco-hub/logging"
	"zkteco-hub/models"
)

func openTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.NewDatabase(config.DatabaseConfig{
		Driver:   "sqlite",
		Path:     ":memory:",
		LogLevel: "silent",
	}, logging.Nop())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedDevice registers serial under a fresh tenant. client may be
// customized before it is stored.
func seedDevice(t *testing.T, db *database.Database, serial string, customize func(*models.Client)) (*models.Client, *models.Device) {
	t.Helper()
	client := &models.Client{
		ClientCode:    "C-" + serial,
		Name:          "Tenant " + serial,
		Active:        true,
		RetryAttempts: 3,
		RetryDelayMs:  1,
	}
	if customize != nil {
		customize(client)
	}
	client, err := db.ClientRepo.CreateClient(db.DB, client)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	device, err := db.DeviceRepo.CreateDevice(db.DB, &models.Device{
		SerialNumber: serial, ClientID: client.ID, Active: true,
	})
	if err != nil {
		t.Fatalf("create device: %v", err)
	}
	return client, device
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func mustDevice(t *testing.T, db *database.Database, serial string) *models.Device {
	t.Helper()
	device, err := db.DeviceRepo.GetDeviceBySerial(serial)
	if err != nil {
		t.Fatalf("get device %s: %v", serial, err)
	}
	return device
}
