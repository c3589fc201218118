package mqtt

import (
	"context"
	"fmt"
	"time"

	"zkteco-hub/config"
	"zkteco-hub/metrics"
	"zkteco-hub/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// pahoPublisher is the part of the paho client the publisher uses.
type pahoPublisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// AttendanceMessage is published on <prefix>/<serial>/attlog.
type AttendanceMessage struct {
	DeviceSerial string    `json:"deviceSerial"`
	PIN          string    `json:"pin"`
	Timestamp    string    `json:"timestamp"`
	Status       int       `json:"status"`
	Verify       int       `json:"verify"`
	WorkCode     string    `json:"workCode,omitempty"`
	ReceivedAt   time.Time `json:"receivedAt"`
}

// CommandResultMessage is published on <prefix>/<serial>/cmdresult.
type CommandResultMessage struct {
	DeviceSerial string    `json:"deviceSerial"`
	CommandID    string    `json:"commandId"`
	Command      string    `json:"command"`
	ReturnValue  int       `json:"returnValue"`
	ReturnData   string    `json:"returnData,omitempty"`
	ExecutedAt   time.Time `json:"executedAt"`
}

// Client publishes hub events to an MQTT broker. Publishing is best effort:
// failures are logged and counted, never returned to the protocol path.
type Client struct {
	client pahoPublisher
	paho   mqtt.Client
	prefix string
	qos    byte
	logger zerolog.Logger
}

// NewClient connects to the configured broker.
func NewClient(cfg config.MQTTConfig, logger zerolog.Logger) (*Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(1 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(10 * time.Second).
		SetCleanSession(true)

	c := &Client{
		prefix: cfg.TopicPrefix,
		qos:    byte(cfg.QoS),
		logger: logger.With().Str("component", "mqtt_client").Logger(),
	}
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	c.client = client
	c.paho = client
	return c, nil
}

func newWithPublisher(p pahoPublisher, prefix string, qos byte, logger zerolog.Logger) *Client {
	return &Client{client: p, prefix: prefix, qos: qos, logger: logger}
}

// Serve keeps the connection for the lifetime of ctx and disconnects when
// ctx ends. paho reconnects on its own, so there is nothing to restart.
func (c *Client) Serve(ctx context.Context) error {
	<-ctx.Done()
	c.Disconnect()
	return ctx.Err()
}

// Disconnect gracefully disconnects the client.
func (c *Client) Disconnect() {
	if c.paho != nil && c.paho.IsConnected() {
		c.paho.Disconnect(250)
		c.logger.Info().Msg("MQTT client disconnected")
	}
}

func (c *Client) onConnect(mqtt.Client) {
	c.logger.Info().Str("prefix", c.prefix).Msg("Connected to MQTT broker")
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Error().Err(err).Msg("Connection lost. Reconnecting...")
}

// PublishAttendance announces a newly stored attendance event.
func (c *Client) PublishAttendance(ev *models.AttendanceEvent) {
	msg := AttendanceMessage{
		DeviceSerial: ev.DeviceSerial,
		PIN:          ev.PIN,
		Timestamp:    ev.DeviceTime,
		Status:       ev.Status,
		Verify:       ev.Verify,
		WorkCode:     ev.WorkCode,
		ReceivedAt:   ev.ReceivedAt,
	}
	c.publish("attlog", c.topic(ev.DeviceSerial, "attlog"), msg)
}

// PublishCommandResult announces a completed device command.
func (c *Client) PublishCommandResult(cmd *models.DeviceCommand) {
	msg := CommandResultMessage{
		DeviceSerial: cmd.DeviceSerial,
		CommandID:    cmd.CommandID,
		Command:      cmd.Command,
		ReturnData:   cmd.ReturnData,
	}
	if cmd.ReturnValue != nil {
		msg.ReturnValue = *cmd.ReturnValue
	}
	if cmd.ExecutedAt != nil {
		msg.ExecutedAt = *cmd.ExecutedAt
	}
	c.publish("cmdresult", c.topic(cmd.DeviceSerial, "cmdresult"), msg)
}

func (c *Client) publish(kind, topic string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error().Err(err).Str("topic", topic).Msg("Failed to encode MQTT payload")
		metrics.MQTTPublished.WithLabelValues(kind, "error").Inc()
		return
	}
	if !c.client.IsConnected() {
		c.logger.Warn().Str("topic", topic).Msg("MQTT client is not connected, dropping message")
		metrics.MQTTPublished.WithLabelValues(kind, "dropped").Inc()
		return
	}

	token := c.client.Publish(topic, c.qos, false, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			c.logger.Warn().Str("topic", topic).Msg("MQTT publish timed out")
			metrics.MQTTPublished.WithLabelValues(kind, "timeout").Inc()
			return
		}
		if err := token.Error(); err != nil {
			c.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish message")
			metrics.MQTTPublished.WithLabelValues(kind, "error").Inc()
			return
		}
		metrics.MQTTPublished.WithLabelValues(kind, "ok").Inc()
	}()
}

func (c *Client) topic(serial, messageType string) string {
	return fmt.Sprintf("%s/%s/%s", c.prefix, serial, messageType)
}
