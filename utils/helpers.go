package utils

import (
	"strconv"
	"strings"
)

// ===================================================================
// VALUE HELPERS
// ===================================================================

// GetValueOrDefault returns value if not empty, otherwise returns default
func GetValueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

// GetIntOrDefault parses value as an int, falling back to defaultValue
func GetIntOrDefault(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// ParseOptionalBool returns nil for an empty or unparsable value.
func ParseOptionalBool(value string) *bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return nil
	}
	return &parsed
}

// ===================================================================
// RESPONSE HELPERS
// ===================================================================

// StandardResponse represents a standard API response
type StandardResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse creates an error response
func ErrorResponse(message string) StandardResponse {
	return StandardResponse{
		Status:  "error",
		Message: message,
	}
}

// ListResponse wraps a list with its item count
type ListResponse struct {
	Items interface{} `json:"items"`
	Count int         `json:"count"`
	Limit int         `json:"limit,omitempty"`
}

// CreateListResponse creates a list response
func CreateListResponse(items interface{}, count, limit int) ListResponse {
	return ListResponse{
		Items: items,
		Count: count,
		Limit: limit,
	}
}
