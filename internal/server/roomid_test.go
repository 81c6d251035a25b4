package server

import (
	"net/http/httptest"
	"testing"
)

func TestRoomID(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"/chat/room1", "room1"},
		{"/chat/room1?roomId=other", "room1"},
		{"/chat?roomId=room2", "room2"},
		{"/chat/?roomId=room3", "room3"},
		{"/chat?foo=bar&roomId=7", "7"},
		{"/chat", ""},
		{"/chat/", ""},
		{"/chat?roomId=", ""},
		{"/chat?roomId=%20", ""},
		{"/chatter?roomId=1", ""},
		{"/other/room1", ""},
		{"/chat/a%20b", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.target, nil)
			if got := RoomID(r, "/chat"); got != tt.want {
				t.Errorf("RoomID(%q) = %q, want %q", tt.target, got, tt.want)
			}
		})
	}
}

func TestRoomID_TrailingSlashBase(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/chat/lobby", nil)
	if got := RoomID(r, "/ws/chat/"); got != "lobby" {
		t.Errorf("RoomID() = %q, want lobby", got)
	}
}
