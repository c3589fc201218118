package utils

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// ===================================================================
// ID GENERATION HELPERS
// ===================================================================

var commandSeq atomic.Uint64

// GenerateCommandID returns a correlation ID for a queued device command.
// UUIDv7 keeps IDs time ordered; the process counter keeps concurrent
// enqueues distinct even if the random source repeats.
func GenerateCommandID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	hex := strings.ReplaceAll(id.String(), "-", "")
	return fmt.Sprintf("CMD_%s_%d", hex[:20], commandSeq.Add(1))
}

// GenerateRequestID generates a random ID for request correlation in logs.
func GenerateRequestID() string {
	return uuid.NewString()
}
