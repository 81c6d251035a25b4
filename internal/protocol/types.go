package protocol

import (
	"encoding/json"
	"errors"
	"time"
)

// MessageType is the kind of a chat message.
type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeJoin  MessageType = "JOIN"
	MessageTypeLeave MessageType = "LEAVE"
)

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Status codes recorded by the client for each response.
const (
	StatusCodeOK       = 200
	StatusCodeRejected = 400
)

// ErrUnknownMessageType is returned when decoding a messageType outside TEXT, JOIN, LEAVE.
var ErrUnknownMessageType = errors.New("messageType must be one of TEXT, JOIN, or LEAVE")

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeJoin, MessageTypeLeave:
		return true
	default:
		return false
	}
}

// UnmarshalJSON rejects unknown message types. An empty string or null
// decodes to the zero value so that validation can report it as missing.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*t = ""
		return nil
	}
	mt := MessageType(*s)
	if !mt.Valid() {
		return ErrUnknownMessageType
	}
	*t = mt
	return nil
}

// ChatMessage is a client -> server frame.
type ChatMessage struct {
	UserID      string      `json:"userId"`
	Username    string      `json:"username"`
	Message     string      `json:"message"`
	Timestamp   string      `json:"timestamp"`
	MessageType MessageType `json:"messageType"`
}

// ServerResponse is a server -> client frame.
type ServerResponse struct {
	Status          string       `json:"status"`
	ServerTimestamp string       `json:"serverTimestamp"`
	OriginalMessage *ChatMessage `json:"originalMessage,omitempty"`
	Error           string       `json:"error,omitempty"`
}

// StatusCode maps the response status to the code recorded in metrics.
func (r ServerResponse) StatusCode() int {
	if r.Status == StatusSuccess {
		return StatusCodeOK
	}
	return StatusCodeRejected
}

// Success builds a success response echoing msg.
func Success(msg ChatMessage, now time.Time) ServerResponse {
	return ServerResponse{
		Status:          StatusSuccess,
		ServerTimestamp: FormatTimestamp(now),
		OriginalMessage: &msg,
	}
}

// Failure builds an error response.
func Failure(reason string, now time.Time) ServerResponse {
	return ServerResponse{
		Status:          StatusError,
		ServerTimestamp: FormatTimestamp(now),
		Error:           reason,
	}
}

// MessageTemplate is a pre-generated message waiting for a sender.
// The timestamp is stamped when the message is actually sent.
type MessageTemplate struct {
	UserID   string
	Username string
	Body     string
	Type     MessageType
	RoomID   string
}

// Message builds the wire message for t stamped with sentAt.
func (t MessageTemplate) Message(sentAt time.Time) ChatMessage {
	return ChatMessage{
		UserID:      t.UserID,
		Username:    t.Username,
		Message:     t.Body,
		Timestamp:   FormatTimestamp(sentAt),
		MessageType: t.Type,
	}
}
