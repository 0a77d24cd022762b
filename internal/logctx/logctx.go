// Package logctx provides the module's structured logging idiom: stdlib
// log plus JSON-marshaled entries carrying a correlation id.
package logctx

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

// Entry is one structured log line.
type Entry struct {
	Time          string                 `json:"time"`
	Level         string                 `json:"level"`
	Message       string                 `json:"message"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

// NewCorrelationID generates a fresh request/correlation id.
func NewCorrelationID() string {
	return uuid.NewString()
}

// Log writes one structured entry to the standard logger.
func Log(level, correlationID, message string, fields map[string]interface{}) {
	e := Entry{
		Time:          time.Now().UTC().Format(time.RFC3339Nano),
		Level:         level,
		Message:       message,
		CorrelationID: correlationID,
		Fields:        fields,
	}
	b, err := json.Marshal(e)
	if err != nil {
		log.Printf("logctx: failed to marshal log entry: %v", err)
		return
	}
	log.Println(string(b))
}

// Warn logs a warning-level structured entry.
func Warn(correlationID, message string, fields map[string]interface{}) {
	Log("warn", correlationID, message, fields)
}

// Info logs an info-level structured entry.
func Info(correlationID, message string, fields map[string]interface{}) {
	Log("info", correlationID, message, fields)
}
