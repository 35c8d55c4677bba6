// Package server wires HTTP handlers into a ServeMux for the chat
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Coordinator is what the HTTP surface needs from the chat core.
type Coordinator interface {
	Dispatcher
	Rooms() []string
}

var _ Coordinator = (*chat.Coordinator)(nil)

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// It sets up handlers for health check, WebSocket endpoint, and room list API.
func SetupRoutes(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.HealthHandler)
	mux.HandleFunc("/ws", h.WebSocketHandler)
	mux.HandleFunc("/api/rooms", h.RoomsHandler)
	return mux
}
