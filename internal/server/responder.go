package server

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/rickgao/chatflow/internal/protocol"
)

// Error responses that are not produced by validation.
const (
	ErrMsgJoinRequired = "User must JOIN before sending TEXT"
	ErrMsgRateLimited  = "rate limit exceeded"
	invalidJSONPrefix  = "Invalid JSON format: "
)

// Responder is the per-connection protocol state machine. TEXT messages are
// accepted only after a JOIN; JOIN and LEAVE are always accepted. Rejected
// messages never change the join state.
//
// A Responder is owned by one session and is not safe for concurrent use.
type Responder struct {
	joined  bool
	limiter *rate.Limiter
	now     func() time.Time
}

// NewResponder creates a responder in the not-joined state. A nil limiter
// disables rate limiting.
func NewResponder(limiter *rate.Limiter) *Responder {
	return &Responder{
		limiter: limiter,
		now:     time.Now,
	}
}

// Joined reports whether the connection has joined its room.
func (r *Responder) Joined() bool { return r.joined }

// Handle processes one inbound frame and returns the response to send.
func (r *Responder) Handle(data []byte) protocol.ServerResponse {
	now := r.now()

	if r.limiter != nil && !r.limiter.AllowN(now, 1) {
		return protocol.Failure(ErrMsgRateLimited, now)
	}

	msg, err := protocol.DecodeMessage(data)
	if err != nil {
		return protocol.Failure(invalidJSONPrefix+err.Error(), now)
	}

	if result := protocol.Validate(msg); !result.Valid {
		return protocol.Failure(result.Message, now)
	}

	switch msg.MessageType {
	case protocol.MessageTypeJoin:
		r.joined = true
	case protocol.MessageTypeLeave:
		r.joined = false
	case protocol.MessageTypeText:
		if !r.joined {
			return protocol.Failure(ErrMsgJoinRequired, now)
		}
	}

	return protocol.Success(msg, now)
}
