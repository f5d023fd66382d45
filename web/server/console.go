package server

import (
	"strings"
	"time"

	"github.com/op/go-logging"
)

// ConsoleMessage represents a console message with timestamp
type ConsoleMessage struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // "debug", "info", "notice", "warning", "error"
	Module    string    `json:"module"`
}

// ConsoleBackend is a logging backend that mirrors log records to the web
// console of every connected client.
type ConsoleBackend struct {
	hub *Hub
}

// NewConsoleBackend creates a console backend publishing to hub
func NewConsoleBackend(hub *Hub) *ConsoleBackend {
	return &ConsoleBackend{hub: hub}
}

// Log implements logging.Backend. It never blocks.
func (cb *ConsoleBackend) Log(level logging.Level, calldepth int, rec *logging.Record) error {
	if cb.hub == nil || cb.hub.Clients() == 0 {
		return nil
	}
	cb.hub.publish("console", ConsoleMessage{
		Message:   rec.Message(),
		Timestamp: rec.Time,
		Level:     strings.ToLower(level.String()),
		Module:    rec.Module,
	})
	return nil
}
