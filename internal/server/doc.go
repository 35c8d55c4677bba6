// Package server implements the WebSocket transport and HTTP surface of the
// chat service.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, routing, and HTTP handlers. The Hub is the chat
// core's event sink: it resolves connection, room and broadcast targets to
// client send buffers.
package server
