package models

import (
	"time"
)

// ClientResponse never carries the credential, only its masked tail.
type ClientResponse struct {
	Client
	APIKeyMasked string `json:"apiKeyMasked,omitempty"`
	HasAPIKey    bool   `json:"hasApiKey"`
}

type DeviceResponse struct {
	Device
	Online bool `json:"online"`
}

// UnregisteredDevice is a serial that contacted the hub without being
// registered.
type UnregisteredDevice struct {
	SerialNumber string    `json:"serialNumber"`
	IPAddress    string    `json:"ipAddress"`
	LastSeen     time.Time `json:"lastSeen"`
}

type CommandPreviewResponse struct {
	CommandType string `json:"commandType"`
	Command     string `json:"command"`
}

type RetryForwardResponse struct {
	Forwarded int `json:"forwarded"`
	Total     int `json:"total"`
}

type PendingCountResponse struct {
	Count int64 `json:"count"`
}

type TestForwardingResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type CommandKindInfo struct {
	Kind   string `json:"kind"`
	Simple bool   `json:"simple"`
}
