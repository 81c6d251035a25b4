// Package connection manages the load generator's WebSocket connections.
//
// A Client is one connection bound to a room. Writes go through a
// wsconn.Outbound queue and are only sent on Flush; every response is handed
// to a ResponseHandler on the client's read goroutine. Each client keeps a
// FIFO of send timestamps so a response can be matched to the oldest
// unanswered send.
//
// Pool maps (room, slot) keys to live connections:
//   - Slots round-robin per room over ConnectionsPerRoom connections
//   - Concurrent callers for the same key share one handshake (singleflight)
//   - A weighted semaphore caps concurrent handshakes across the whole pool
//   - Stale connections are replaced on lookup and counted as reconnections
package connection
