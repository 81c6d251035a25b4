package server

import (
	"net/http"
	"strings"
)

// RoomID returns the room a request binds to: the path remainder after
// chatPath+"/", or the roomId query parameter when the request is for
// chatPath itself. It returns "" when neither names a room.
func RoomID(r *http.Request, chatPath string) string {
	base := strings.TrimRight(chatPath, "/")
	path := r.URL.Path

	if rest, ok := strings.CutPrefix(path, base+"/"); ok && strings.TrimSpace(rest) != "" {
		return rest
	}
	if path != base && path != base+"/" {
		return ""
	}

	room := r.URL.Query().Get("roomId")
	if strings.TrimSpace(room) == "" {
		return ""
	}
	return room
}
