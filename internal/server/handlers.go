// Package server exposes HTTP handlers: the WebSocket upgrade, the health
// check, and the room list API.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Handlers serves the HTTP surface of one App.
type Handlers struct {
	cfg         *Config
	hub         *Hub
	coordinator Coordinator
	origins     *originPolicy
	upgrader    websocket.Upgrader
	log         *slog.Logger
}

// NewHandlers builds the handlers for the given hub and coordinator.
func NewHandlers(cfg *Config, hub *Hub, coordinator Coordinator, log *slog.Logger) *Handlers {
	origins := newOriginPolicy(cfg.AllowedOrigins, log)
	return &Handlers{
		cfg:         cfg,
		hub:         hub,
		coordinator: coordinator,
		origins:     origins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		log: log,
	}
}

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the HTTP connection, creates a Client
// and hands it to the hub, which starts the client's read/write pumps.
func (h *Handlers) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, h.hub, h.coordinator, h.cfg, r.RemoteAddr)
	if !h.hub.Register(client) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func (h *Handlers) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat server is running!")
}

type roomsResponse struct {
	Rooms []string `json:"rooms"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RoomsHandler serves GET /api/rooms as {"rooms": [...]}, with CORS headers
// for allowed origins. Any failure answers 500 {"error": "Failed to fetch rooms"}.
func (h *Handlers) RoomsHandler(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w, r)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
	default:
		w.Header().Set("Allow", "GET, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
		return
	}

	rooms, err := h.listRooms()
	if err != nil {
		h.log.Error("Error fetching rooms", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch rooms"})
		return
	}

	writeJSON(w, http.StatusOK, roomsResponse{Rooms: rooms})
}

func (h *Handlers) listRooms() (rooms []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listing rooms: %v", r)
		}
	}()
	rooms = h.coordinator.Rooms()
	if rooms == nil {
		rooms = []string{}
	}
	return rooms, nil
}

func (h *Handlers) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if !h.origins.allows(origin) {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Add("Vary", "Origin")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		http.Error(w, `{"error":"Failed to fetch rooms"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
