package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"zkteco-hub/metrics"
	"zkteco-hub/protocol"
	"zkteco-hub/protolog"
	"zkteco-hub/services"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	maxUploadBytes = 16 << 20
	maxLogDetails  = 2000

	missingSNReply = "ERROR: Missing SN parameter"
)

// SessionTracker is the device session work behind the iclock endpoints.
type SessionTracker interface {
	OnHandshake(ctx context.Context, serial, ip string) (string, bool)
	OnPoll(ctx context.Context, serial, ip string) (string, bool)
	OnCommandResult(ctx context.Context, serial, ip, body string) int
	Touch(ctx context.Context, serial, ip string) bool
	Registered(serial string) bool
}

// Uploader stores uploaded log tables.
type Uploader interface {
	Ingest(serial, table, stamp, body string) services.IngestResult
}

// IclockHandler serves the PUSH protocol endpoints polled by terminals.
// Terminals only understand plain text, so these handlers never answer
// with a 5xx: storage trouble is logged and the terminal is acknowledged.
type IclockHandler struct {
	sessions SessionTracker
	uploads  Uploader
	protoLog *protolog.Buffer
	logger   zerolog.Logger
}

func NewIclockHandler(sessions SessionTracker, uploads Uploader, protoLog *protolog.Buffer, logger zerolog.Logger) *IclockHandler {
	return &IclockHandler{
		sessions: sessions,
		uploads:  uploads,
		protoLog: protoLog,
		logger:   logger.With().Str("component", "iclock_handler").Logger(),
	}
}

// Handshake answers GET /iclock/cdata with the option block.
func (h *IclockHandler) Handshake(c echo.Context) error {
	start := time.Now()
	serial := c.QueryParam("SN")
	if serial == "" {
		return c.String(http.StatusBadRequest, missingSNReply)
	}
	ip := c.RealIP()

	h.record(c, protolog.In, serial, ip, "handshake",
		fmt.Sprintf("Config request (options=%s)", c.QueryParam("options")), c.QueryString())

	body, registered := h.sessions.OnHandshake(c.Request().Context(), serial, ip)
	if !registered {
		h.logger.Info().Str("serial", serial).Str("ip", ip).Msg("Handshake from unregistered device")
	}

	h.record(c, protolog.Out, serial, ip, "handshake", "Options sent", body)
	metrics.RecordProtocolRequest("cdata_get", registered, time.Since(start))
	return c.String(http.StatusOK, body)
}

// Upload answers POST /iclock/cdata; the body is one log table.
func (h *IclockHandler) Upload(c echo.Context) error {
	start := time.Now()
	serial := c.QueryParam("SN")
	if serial == "" {
		return c.String(http.StatusBadRequest, missingSNReply)
	}
	ip := c.RealIP()
	table := c.QueryParam("table")
	stamp := c.QueryParam("Stamp")

	registered := h.sessions.Touch(c.Request().Context(), serial, ip)

	body, err := readBody(c)
	if err != nil {
		h.logger.Warn().Err(err).Str("serial", serial).Str("table", table).Msg("Failed to read upload body")
		return c.String(http.StatusBadRequest, "ERROR: Unreadable body")
	}

	h.record(c, protolog.In, serial, ip, "upload",
		fmt.Sprintf("Upload %s (stamp=%s, %d bytes)", table, stamp, len(body)), body)

	res := h.uploads.Ingest(serial, table, stamp, body)

	h.record(c, protolog.Out, serial, ip, "upload",
		fmt.Sprintf("Stored %d, duplicates %d, rejected %d", res.Stored, res.Duplicates, res.Rejected), protocol.Ack)
	metrics.RecordProtocolRequest("cdata_post", registered, time.Since(start))
	return c.String(http.StatusOK, protocol.Ack)
}

// Poll answers GET /iclock/getrequest with pending command lines.
func (h *IclockHandler) Poll(c echo.Context) error {
	start := time.Now()
	serial := c.QueryParam("SN")
	if serial == "" {
		return c.String(http.StatusBadRequest, "ERROR")
	}
	ip := c.RealIP()

	body, registered := h.sessions.OnPoll(c.Request().Context(), serial, ip)
	if body != protocol.Ack {
		h.record(c, protolog.Out, serial, ip, "poll", "Commands delivered", body)
	}

	metrics.RecordProtocolRequest("getrequest", registered, time.Since(start))
	return c.String(http.StatusOK, body)
}

// CommandResult answers POST /iclock/devicecmd. SN is optional here.
func (h *IclockHandler) CommandResult(c echo.Context) error {
	start := time.Now()
	serial := c.QueryParam("SN")
	ip := c.RealIP()

	body, err := readBody(c)
	if err != nil {
		h.logger.Warn().Err(err).Str("serial", serial).Msg("Failed to read command result body")
		return c.String(http.StatusOK, protocol.Ack)
	}

	h.record(c, protolog.In, serial, ip, "command_result", "Command result", body)

	completed := h.sessions.OnCommandResult(c.Request().Context(), serial, ip, body)
	h.logger.Debug().Str("serial", serial).Int("completed", completed).Msg("Command results received")

	metrics.RecordProtocolRequest("devicecmd", h.sessions.Registered(serial), time.Since(start))
	return c.String(http.StatusOK, protocol.Ack)
}

func (h *IclockHandler) record(c echo.Context, dir protolog.Direction, serial, ip, logType, summary, details string) {
	if h.protoLog == nil {
		return
	}
	if len(details) > maxLogDetails {
		details = details[:maxLogDetails]
	}
	h.protoLog.Add(protolog.Entry{
		Direction:    dir,
		DeviceSerial: serial,
		Endpoint:     c.Request().URL.Path,
		Method:       c.Request().Method,
		Summary:      summary,
		Details:      details,
		IP:           ip,
		LogType:      logType,
	})
}

func readBody(c echo.Context) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxUploadBytes))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
