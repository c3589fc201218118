package handlers

import (
	"zkteco-hub/handlers/base"
	"zkteco-hub/models"
	"zkteco-hub/services"

	"github.com/labstack/echo/v4"
)

type DeviceHandler struct {
	devices *services.DeviceService
}

func NewDeviceHandler(devices *services.DeviceService) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

// ListDevices lists registered devices, optionally for one client
// (?clientId=).
func (h *DeviceHandler) ListDevices(c echo.Context) error {
	devices, err := h.devices.List(base.ExtractOptionalUintParam(c, "clientId"))
	return base.SendResult(c, devices, err)
}

func (h *DeviceHandler) GetDevice(c echo.Context) error {
	id, err := base.ExtractID(c)
	if err != nil {
		return err
	}
	device, err := h.devices.Get(id)
	return base.SendResult(c, device, err)
}

func (h *DeviceHandler) CreateDevice(c echo.Context) error {
	var req models.DeviceRequest
	if err := base.BindAndValidateJSON(c, &req); err != nil {
		return err
	}
	device, err := h.devices.Create(c.Request().Context(), &req)
	return base.SendCreationResult(c, device, err)
}

func (h *DeviceHandler) UpdateDevice(c echo.Context) error {
	id, err := base.ExtractID(c)
	if err != nil {
		return err
	}
	var req models.DevicePatchRequest
	if err := base.BindAndValidateJSON(c, &req); err != nil {
		return err
	}
	device, err := h.devices.Update(id, &req)
	return base.SendResult(c, device, err)
}

func (h *DeviceHandler) DeleteDevice(c echo.Context) error {
	id, err := base.ExtractID(c)
	if err != nil {
		return err
	}
	return base.SendDeletionResult(c, h.devices.Delete(id))
}

// ListUnregistered lists serials that contacted the hub recently without
// being registered.
func (h *DeviceHandler) ListUnregistered(c echo.Context) error {
	contacts, err := h.devices.ListUnregistered(c.Request().Context())
	return base.SendResult(c, contacts, err)
}
