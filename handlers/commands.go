package handlers

import (
	"zkteco-hub/handlers/base"
	"zkteco-hub/models"
	"zkteco-hub/services"

	"github.com/labstack/echo/v4"
)

type CommandHandler struct {
	commands *services.CommandService
}

func NewCommandHandler(commands *services.CommandService) *CommandHandler {
	return &CommandHandler{commands: commands}
}

// ListCommands lists queued and executed commands (?serial=, ?limit=).
func (h *CommandHandler) ListCommands(c echo.Context) error {
	commands, err := h.commands.List(
		base.ExtractOptionalStringParam(c, "serial", ""),
		base.ExtractOptionalIntParam(c, "limit", 0),
	)
	return base.SendResult(c, commands, err)
}

// SubmitCommand encodes a structured command and queues it for the device.
func (h *CommandHandler) SubmitCommand(c echo.Context) error {
	var req models.CommandRequest
	if err := base.BindAndValidateJSON(c, &req); err != nil {
		return err
	}
	cmd, err := h.commands.Submit(&req)
	return base.SendCreationResult(c, cmd, err)
}

// PreviewCommand returns the wire line a request would produce.
func (h *CommandHandler) PreviewCommand(c echo.Context) error {
	var req models.CommandPreviewRequest
	if err := base.BindAndValidateJSON(c, &req); err != nil {
		return err
	}
	preview, err := h.commands.Preview(&req)
	return base.SendResult(c, preview, err)
}

func (h *CommandHandler) ListKinds(c echo.Context) error {
	return base.SendOKJSON(c, h.commands.Kinds())
}
