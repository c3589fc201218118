package models

import (
	"encoding/json"
	"time"
)

// --- Request DTOs ---

// ClientRequest creates or patches a tenant. Pointer fields are optional on
// update; a nil pointer leaves the stored value untouched.
type ClientRequest struct {
	ClientID          string  `json:"clientId" validate:"required,max=128"`
	Name              string  `json:"name" validate:"required"`
	ContactEmail      string  `json:"contactEmail" validate:"omitempty,email"`
	ContactPhone      string  `json:"contactPhone"`
	Active            *bool   `json:"active"`
	ForwardingEnabled *bool   `json:"forwardingEnabled"`
	ForwardURL        *string `json:"forwardUrl" validate:"omitempty,url"`
	APIKey            *string `json:"apiKey"`
	RetryAttempts     *int    `json:"retryAttempts" validate:"omitempty,min=1,max=20"`
	RetryDelayMs      *int    `json:"retryDelayMs" validate:"omitempty,min=0,max=600000"`
}

// ClientPatchRequest is ClientRequest without required fields.
type ClientPatchRequest struct {
	ClientID          *string `json:"clientId" validate:"omitempty,max=128"`
	Name              *string `json:"name"`
	ContactEmail      *string `json:"contactEmail" validate:"omitempty,email"`
	ContactPhone      *string `json:"contactPhone"`
	Active            *bool   `json:"active"`
	ForwardingEnabled *bool   `json:"forwardingEnabled"`
	ForwardURL        *string `json:"forwardUrl" validate:"omitempty,url"`
	APIKey            *string `json:"apiKey"`
	RetryAttempts     *int    `json:"retryAttempts" validate:"omitempty,min=1,max=20"`
	RetryDelayMs      *int    `json:"retryDelayMs" validate:"omitempty,min=0,max=600000"`
}

type DeviceRequest struct {
	SerialNumber string `json:"serialNumber" validate:"required,max=255"`
	ClientID     uint   `json:"clientId" validate:"required"`
	Alias        string `json:"alias"`
	Active       *bool  `json:"active"`
}

type DevicePatchRequest struct {
	ClientID *uint   `json:"clientId"`
	Alias    *string `json:"alias"`
	Active   *bool   `json:"active"`
}

// CommandRequest queues a structured command for a device.
type CommandRequest struct {
	DeviceSerial string          `json:"deviceSerial" validate:"required"`
	CommandType  string          `json:"commandType" validate:"required"`
	Params       json.RawMessage `json:"params"`
}

// CommandPreviewRequest encodes a command without queuing it.
type CommandPreviewRequest struct {
	CommandType string          `json:"commandType" validate:"required"`
	Params      json.RawMessage `json:"params"`
}

// ScheduledTaskRequest creates or replaces a scheduled task.
type ScheduledTaskRequest struct {
	Name            string          `json:"name"`
	DeviceSerial    string          `json:"deviceSerial" validate:"required"`
	CommandType     string          `json:"commandType" validate:"required"`
	CommandParams   json.RawMessage `json:"commandParams"`
	ScheduleType    string          `json:"scheduleType" validate:"required,oneof=one_time interval daily weekly"`
	RunAt           *time.Time      `json:"runAt"`
	IntervalMinutes int             `json:"intervalMinutes"`
	TimeOfDay       string          `json:"timeOfDay"`
	DaysOfWeek      []int           `json:"daysOfWeek"`
	Enabled         *bool           `json:"enabled"`
}

type EventQuery struct {
	ClientID     uint
	DeviceSerial string
	Forwarded    *bool
	Limit        int
}
