// Package server is the chat echo/validation server.
//
// Each WebSocket connection is bound to a room at upgrade time and served by
// a Session: a read goroutine feeds inbound frames to a processing goroutine,
// which runs them through the connection's Responder and queues the response
// on a wsconn.Outbound. Responses are flushed once the inbox is drained, and
// reading pauses while the outbound queue is above its high watermark.
package server
