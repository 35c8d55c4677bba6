// Package server defines the outbound frame encoding and utility helpers that
// are reused across client and hub logic.
package server

import (
	"encoding/json"
	"strings"
)

// outboundFrame is the {"event","data"} envelope written to clients.
type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encodeFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: event, Data: payload})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
