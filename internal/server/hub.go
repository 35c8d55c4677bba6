// Package server coordinates client registration, event fan-out, and
// connection cleanup for the chat WebSocket system via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Hub manages all WebSocket client connections and delivers the events the
// chat coordinator publishes. It implements chat.Sink: Publish never blocks,
// and a client whose send buffer is full is dropped instead of waited on.
type Hub struct {
	clients    map[chat.ConnID]*Client
	rooms      map[string]map[chat.ConnID]struct{}
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        *slog.Logger
}

var _ chat.Sink = (*Hub)(nil)

// NewHub creates and initializes a new Hub instance with all necessary channels
// and client maps. The returned Hub is ready to manage WebSocket connections
// once Run is started.
func NewHub(log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[chat.ConnID]*Client),
		rooms:      make(map[string]map[chat.ConnID]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log,
	}
}

// Register hands a client to the hub, which starts its pumps. It returns
// false when the hub is shutting down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine
// as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}

			clientCount := h.add(client)
			h.log.Info("Client registered", "conn", client.id, "addr", client.addr, "clients", clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			if h.remove(client) {
				h.log.Info("Client unregistered", "conn", client.id, "addr", client.addr, "clients", h.ClientCount())
			}
		}
	}
}

func (h *Hub) add(client *Client) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	client.closed = false
	h.clients[client.id] = client
	return len(h.clients)
}

// remove drops the client and closes its send channel. It reports false
// when the client was already gone.
func (h *Hub) remove(client *Client) bool {
	h.mutex.Lock()
	if current, ok := h.clients[client.id]; !ok || current != client {
		h.mutex.Unlock()
		return false
	}
	h.detachLocked(client)
	h.mutex.Unlock()

	// Close the channel after releasing the lock
	close(client.send)
	return true
}

func (h *Hub) detachLocked(client *Client) {
	delete(h.clients, client.id)
	for room, members := range h.rooms {
		delete(members, client.id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	client.closed = true
}

// Publish encodes the event once and queues it on every addressed client.
func (h *Hub) Publish(target chat.Target, event string, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Error("Failed to encode event", "event", event, "target", target, "error", err)
		return
	}

	recipients := h.recipients(target)
	h.log.Debug("Publishing event", "event", event, "target", target, "recipients", len(recipients))

	var failed []*Client
	for _, client := range recipients {
		if !h.safeSend(client, frame) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
}

// Subscribe adds conn to the fan-out set of room.
func (h *Hub) Subscribe(conn chat.ConnID, room string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[chat.ConnID]struct{})
		h.rooms[room] = members
	}
	members[conn] = struct{}{}
}

// Unsubscribe removes conn from the fan-out set of room.
func (h *Hub) Unsubscribe(conn chat.ConnID, room string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// recipients returns a thread-safe snapshot of the clients addressed by target.
func (h *Hub) recipients(target chat.Target) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	switch target.Scope {
	case chat.ScopeConnection:
		if client, ok := h.clients[target.Conn]; ok {
			return []*Client{client}
		}
		return nil

	case chat.ScopeRoom:
		members := h.rooms[target.Room]
		clients := make([]*Client, 0, len(members))
		for id := range members {
			if id == target.Except {
				continue
			}
			if client, ok := h.clients[id]; ok {
				clients = append(clients, client)
			}
		}
		return clients

	default:
		clients := make([]*Client, 0, len(h.clients))
		for _, client := range h.clients {
			clients = append(clients, client)
		}
		return clients
	}
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Recovered from panic in safeSend", "conn", client.id, "panic", r)
		}
	}()

	// Hold the lock during the entire send operation so the channel cannot
	// be closed underneath us.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if current, exists := h.clients[client.id]; !exists || current != client || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// removeFailedClients removes clients that failed to receive messages and
// closes their channels. The write pump then closes the connection, and the
// read pump runs the disconnect path.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if current, exists := h.clients[client.id]; exists && current == client {
			h.detachLocked(client)
			channelsToClose = append(channelsToClose, client.send)
			h.log.Warn("Client removed due to full send buffer", "conn", client.id, "addr", client.addr)
		}
	}
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn("Error closing client connection", "conn", client.id, "addr", client.addr, "error", err)
			}
		}
	}

	h.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines
// to complete. It returns after all client connections are closed and pumps
// have finished, or with context.DeadlineExceeded when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
