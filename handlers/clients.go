package handlers

import (
	"zkteco-hub/handlers/base"
	"zkteco-hub/models"
	"zkteco-hub/services"

	"github.com/labstack/echo/v4"
)

type ClientHandler struct {
	clients    *services.ClientService
	forwarding *services.ForwardingService
}

func NewClientHandler(clients *services.ClientService, forwarding *services.ForwardingService) *ClientHandler {
	return &ClientHandler{
		clients:    clients,
		forwarding: forwarding,
	}
}

func (h *ClientHandler) ListClients(c echo.Context) error {
	clients, err := h.clients.List()
	return base.SendResult(c, clients, err)
}

func (h *ClientHandler) GetClient(c echo.Context) error {
	id, err := base.ExtractID(c)
	if err != nil {
		return err
	}
	client, err := h.clients.Get(id)
	return base.SendResult(c, client, err)
}

func (h *ClientHandler) CreateClient(c echo.Context) error {
	var req models.ClientRequest
	if err := base.BindAndValidateJSON(c, &req); err != nil {
		return err
	}
	client, err := h.clients.Create(&req)
	return base.SendCreationResult(c, client, err)
}

func (h *ClientHandler) UpdateClient(c echo.Context) error {
	id, err := base.ExtractID(c)
	if err != nil {
		return err
	}
	var req models.ClientPatchRequest
	if err := base.BindAndValidateJSON(c, &req); err != nil {
		return err
	}
	client, err := h.clients.Update(id, &req)
	return base.SendResult(c, client, err)
}

// DeleteClient removes the tenant together with its devices.
func (h *ClientHandler) DeleteClient(c echo.Context) error {
	id, err := base.ExtractID(c)
	if err != nil {
		return err
	}
	return base.SendDeletionResult(c, h.clients.Delete(id))
}

// TestForwarding sends a test payload to the tenant's webhook. Delivery
// failures are reported in the body, not as an HTTP error.
func (h *ClientHandler) TestForwarding(c echo.Context) error {
	id, err := base.ExtractID(c)
	if err != nil {
		return err
	}
	result, err := h.forwarding.TestForwarding(c.Request().Context(), id)
	return base.SendResult(c, result, err)
}
