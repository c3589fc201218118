package handlers

import (
	"net/http"
	"time"

	"zkteco-hub/handlers/base"
	"zkteco-hub/models"
	"zkteco-hub/services"

	"github.com/labstack/echo/v4"
)

const recentEventLimit = 20

type EventHandler struct {
	ingest     *services.IngestService
	forwarding *services.ForwardingService
}

func NewEventHandler(ingest *services.IngestService, forwarding *services.ForwardingService) *EventHandler {
	return &EventHandler{
		ingest:     ingest,
		forwarding: forwarding,
	}
}

// ListEvents lists attendance events, newest first, filtered by the
// clientId, serial, forwarded and limit query parameters.
func (h *EventHandler) ListEvents(c echo.Context) error {
	query := models.EventQuery{
		ClientID:     base.ExtractOptionalUintParam(c, "clientId"),
		DeviceSerial: base.ExtractOptionalStringParam(c, "serial", ""),
		Forwarded:    base.ExtractTriStateBoolParam(c, "forwarded"),
		Limit:        base.ExtractOptionalIntParam(c, "limit", 0),
	}
	events, err := h.ingest.ListEvents(query)
	return base.SendResult(c, events, err)
}

// RecentEvents returns the latest events across all devices.
func (h *EventHandler) RecentEvents(c echo.Context) error {
	events, err := h.ingest.ListEvents(models.EventQuery{Limit: recentEventLimit})
	return base.SendResult(c, events, err)
}

func (h *EventHandler) PendingCount(c echo.Context) error {
	count, err := h.forwarding.CountPending()
	if err != nil {
		return base.ToAppError(err)
	}
	return base.SendOKJSON(c, models.PendingCountResponse{Count: count})
}

// RetryForward runs the retry sweep synchronously over every unforwarded
// event. The sweep can outlast the server write timeout, so the deadline is
// lifted for this response.
func (h *EventHandler) RetryForward(c echo.Context) error {
	_ = http.NewResponseController(c.Response()).SetWriteDeadline(time.Time{})
	result, err := h.forwarding.RetryPending(c.Request().Context())
	return base.SendResult(c, result, err)
}

// ListOperationLogs lists stored OPERLOG lines (?serial=, ?limit=).
func (h *EventHandler) ListOperationLogs(c echo.Context) error {
	logs, err := h.ingest.ListOperationLogs(
		base.ExtractOptionalStringParam(c, "serial", ""),
		base.ExtractOptionalIntParam(c, "limit", 0),
	)
	return base.SendResult(c, logs, err)
}
