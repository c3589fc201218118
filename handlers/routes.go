package handlers

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Handlers groups every HTTP handler the server mounts.
type Handlers struct {
	Iclock   *IclockHandler
	Clients  *ClientHandler
	Devices  *DeviceHandler
	Events   *EventHandler
	Commands *CommandHandler
	Tasks    *TaskHandler
	System   *SystemHandler
}

// NewEcho returns an echo instance with the validator, error handler and
// middleware chain installed.
func NewEcho(logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewRequestValidator()

	SetErrorLogger(logger)
	e.HTTPErrorHandler = CustomHTTPErrorHandler

	e.Use(RequestLogger(logger))
	e.Use(middleware.Recover())
	return e
}

// RegisterRoutes mounts the terminal protocol, the operator API and the
// operational endpoints.
func RegisterRoutes(e *echo.Echo, h Handlers) {
	// ZKTeco PUSH protocol
	iclock := e.Group("/iclock")
	iclock.GET("/cdata", h.Iclock.Handshake)
	iclock.POST("/cdata", h.Iclock.Upload)
	iclock.GET("/getrequest", h.Iclock.Poll)
	iclock.POST("/devicecmd", h.Iclock.CommandResult)

	e.GET("/health", h.System.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")

	clients := api.Group("/clients")
	clients.GET("", h.Clients.ListClients)
	clients.POST("", h.Clients.CreateClient)
	clients.GET("/:id", h.Clients.GetClient)
	clients.PATCH("/:id", h.Clients.UpdateClient)
	clients.DELETE("/:id", h.Clients.DeleteClient)
	clients.POST("/:id/test-forwarding", h.Clients.TestForwarding)

	devices := api.Group("/devices")
	devices.GET("", h.Devices.ListDevices)
	devices.POST("", h.Devices.CreateDevice)
	devices.GET("/unregistered", h.Devices.ListUnregistered)
	devices.GET("/:id", h.Devices.GetDevice)
	devices.PATCH("/:id", h.Devices.UpdateDevice)
	devices.DELETE("/:id", h.Devices.DeleteDevice)

	events := api.Group("/events")
	events.GET("", h.Events.ListEvents)
	events.GET("/recent", h.Events.RecentEvents)
	events.GET("/pending-count", h.Events.PendingCount)
	events.POST("/retry-forward", h.Events.RetryForward)
	api.GET("/operation-logs", h.Events.ListOperationLogs)

	commands := api.Group("/commands")
	commands.GET("", h.Commands.ListCommands)
	commands.POST("", h.Commands.SubmitCommand)
	commands.POST("/preview", h.Commands.PreviewCommand)
	commands.GET("/kinds", h.Commands.ListKinds)

	tasks := api.Group("/tasks")
	tasks.GET("", h.Tasks.ListTasks)
	tasks.POST("", h.Tasks.CreateTask)
	tasks.GET("/:id", h.Tasks.GetTask)
	tasks.PUT("/:id", h.Tasks.UpdateTask)
	tasks.PATCH("/:id/enabled", h.Tasks.SetTaskEnabled)
	tasks.DELETE("/:id", h.Tasks.DeleteTask)

	protocolLogs := api.Group("/protocol-logs")
	protocolLogs.GET("", h.System.ListProtocolLogs)
	protocolLogs.GET("/types", h.System.ListProtocolLogTypes)
	protocolLogs.DELETE("", h.System.ClearProtocolLogs)
}
