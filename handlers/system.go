package handlers

import (
	"context"
	"net/http"
	"time"

	"zkteco-hub/handlers/base"
	"zkteco-hub/protolog"

	"github.com/labstack/echo/v4"
)

const healthTimeout = 3 * time.Second

// Pinger is a dependency checked by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Time   time.Time         `json:"time"`
}

type SystemHandler struct {
	checks   map[string]Pinger
	protoLog *protolog.Buffer
	now      func() time.Time
}

func NewSystemHandler(checks map[string]Pinger, protoLog *protolog.Buffer) *SystemHandler {
	return &SystemHandler{
		checks:   checks,
		protoLog: protoLog,
		now:      time.Now,
	}
}

// Health pings every dependency and answers 503 when one is down.
func (h *SystemHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	status := HealthStatus{Status: "ok", Checks: make(map[string]string, len(h.checks)), Time: h.now().UTC()}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			status.Status = "degraded"
			status.Checks[name] = err.Error()
			continue
		}
		status.Checks[name] = "ok"
	}

	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// ListProtocolLogs returns recent protocol exchanges, newest first
// (?limit=, ?serial=, ?type=).
func (h *SystemHandler) ListProtocolLogs(c echo.Context) error {
	limit := base.ExtractOptionalIntParam(c, "limit", 100)
	entries := h.protoLog.List(protolog.Query{
		Limit:        limit,
		DeviceSerial: base.ExtractOptionalStringParam(c, "serial", ""),
		LogType:      base.ExtractOptionalStringParam(c, "type", ""),
	})
	return base.SendListJSON(c, entries, len(entries), limit)
}

func (h *SystemHandler) ListProtocolLogTypes(c echo.Context) error {
	return base.SendOKJSON(c, h.protoLog.Types())
}

func (h *SystemHandler) ClearProtocolLogs(c echo.Context) error {
	h.protoLog.Clear()
	return base.SendDeletionJSON(c)
}
