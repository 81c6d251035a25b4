package protocol

import (
	"strings"
	"testing"
)

func validMessage() ChatMessage {
	return ChatMessage{
		UserID:      "42",
		Username:    "user42",
		Message:     "Hello everyone!",
		Timestamp:   "2024-01-15T10:30:00.123Z",
		MessageType: MessageTypeText,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ChatMessage)
		wantErr string
	}{
		{name: "valid message", mutate: func(m *ChatMessage) {}},
		{name: "userId zero", mutate: func(m *ChatMessage) { m.UserID = "0" }, wantErr: "userId must be between 1 and 100000"},
		{name: "userId above max", mutate: func(m *ChatMessage) { m.UserID = "100001" }, wantErr: "userId must be between 1 and 100000"},
		{name: "userId min", mutate: func(m *ChatMessage) { m.UserID = "1" }},
		{name: "userId max", mutate: func(m *ChatMessage) { m.UserID = "100000" }},
		{name: "userId not a number", mutate: func(m *ChatMessage) { m.UserID = "abc" }, wantErr: "userId must be a valid number"},
		{name: "userId missing", mutate: func(m *ChatMessage) { m.UserID = "" }, wantErr: "userId is required"},
		{name: "username length 2", mutate: func(m *ChatMessage) { m.Username = "ab" }, wantErr: "username must be 3-20 characters"},
		{name: "username length 3", mutate: func(m *ChatMessage) { m.Username = "abc" }},
		{name: "username length 20", mutate: func(m *ChatMessage) { m.Username = strings.Repeat("a", 20) }},
		{name: "username length 21", mutate: func(m *ChatMessage) { m.Username = strings.Repeat("a", 21) }, wantErr: "username must be 3-20 characters"},
		{name: "username not alphanumeric", mutate: func(m *ChatMessage) { m.Username = "user_42" }, wantErr: "username must be alphanumeric"},
		{name: "message empty", mutate: func(m *ChatMessage) { m.Message = "" }, wantErr: "message is required"},
		{name: "message blank", mutate: func(m *ChatMessage) { m.Message = "   " }, wantErr: "message is required"},
		{name: "message length 500", mutate: func(m *ChatMessage) { m.Message = strings.Repeat("x", 500) }},
		{name: "message length 501", mutate: func(m *ChatMessage) { m.Message = strings.Repeat("x", 501) }, wantErr: "message must be 1-500 characters"},
		{name: "timestamp invalid", mutate: func(m *ChatMessage) { m.Timestamp = "not-a-timestamp" }, wantErr: "timestamp must be valid ISO-8601 format"},
		{name: "timestamp with offset", mutate: func(m *ChatMessage) { m.Timestamp = "2024-01-15T10:30:00+02:00" }},
		{name: "timestamp without offset", mutate: func(m *ChatMessage) { m.Timestamp = "2024-01-15T10:30:00" }, wantErr: "timestamp must be valid ISO-8601 format"},
		{name: "messageType missing", mutate: func(m *ChatMessage) { m.MessageType = "" }, wantErr: "messageType is required (TEXT, JOIN, or LEAVE)"},
		{name: "first failing rule wins", mutate: func(m *ChatMessage) { m.UserID = "0"; m.Username = "x" }, wantErr: "userId must be between 1 and 100000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := validMessage()
			tt.mutate(&msg)
			got := Validate(msg)
			if tt.wantErr == "" {
				if !got.Valid {
					t.Errorf("Validate() = %q, want valid", got.Message)
				}
				return
			}
			if got.Valid {
				t.Fatalf("Validate() valid, want %q", tt.wantErr)
			}
			if got.Message != tt.wantErr {
				t.Errorf("Validate() message = %q, want %q", got.Message, tt.wantErr)
			}
		})
	}
}
