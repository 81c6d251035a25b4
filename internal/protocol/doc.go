// Package protocol defines the chat wire format shared by the load generator
// and the echo server.
//
// Every frame is a single JSON text message:
//
//	client -> server  {"userId","username","message","timestamp","messageType"}
//	server -> client  {"status","serverTimestamp","originalMessage"?,"error"?}
//
// Timestamps are ISO-8601 with an explicit offset. Validation is a pure
// function returning a ValidationResult; it never touches shared state.
package protocol
