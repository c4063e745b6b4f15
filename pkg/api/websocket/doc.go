// Package websocket provides real-time event streaming via WebSocket.
//
// Clients connect to /api/v1/runs/:id/ws and receive every run and node
// event of that run as a JSON text message. The stream closes after the
// run's terminal event.
package websocket
