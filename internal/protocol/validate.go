package protocol

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	MinUserID         = 1
	MaxUserID         = 100000
	MinUsernameLength = 3
	MaxUsernameLength = 20
	MaxMessageLength  = 500
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// ValidationResult is the outcome of Validate. Message holds the first
// failing rule when Valid is false.
type ValidationResult struct {
	Valid   bool
	Message string
}

func valid() ValidationResult { return ValidationResult{Valid: true} }

func invalid(msg string) ValidationResult { return ValidationResult{Message: msg} }

// Validate checks msg against the structural rules in fixed order:
// userId, username, message, timestamp, messageType. It stops at the first
// failing rule.
func Validate(msg ChatMessage) ValidationResult {
	rules := []func(ChatMessage) ValidationResult{
		validateUserID,
		validateUsername,
		validateBody,
		validateTimestamp,
		validateMessageType,
	}
	for _, rule := range rules {
		if r := rule(msg); !r.Valid {
			return r
		}
	}
	return valid()
}

func validateUserID(msg ChatMessage) ValidationResult {
	if strings.TrimSpace(msg.UserID) == "" {
		return invalid("userId is required")
	}
	id, err := strconv.Atoi(msg.UserID)
	if err != nil {
		return invalid("userId must be a valid number")
	}
	if id < MinUserID || id > MaxUserID {
		return invalid("userId must be between 1 and 100000")
	}
	return valid()
}

func validateUsername(msg ChatMessage) ValidationResult {
	if strings.TrimSpace(msg.Username) == "" {
		return invalid("username is required")
	}
	n := utf8.RuneCountInString(msg.Username)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return invalid("username must be 3-20 characters")
	}
	if !usernamePattern.MatchString(msg.Username) {
		return invalid("username must be alphanumeric")
	}
	return valid()
}

func validateBody(msg ChatMessage) ValidationResult {
	if strings.TrimSpace(msg.Message) == "" {
		return invalid("message is required")
	}
	if utf8.RuneCountInString(msg.Message) > MaxMessageLength {
		return invalid("message must be 1-500 characters")
	}
	return valid()
}

func validateTimestamp(msg ChatMessage) ValidationResult {
	if strings.TrimSpace(msg.Timestamp) == "" {
		return invalid("timestamp is required")
	}
	if _, err := ParseTimestamp(msg.Timestamp); err != nil {
		return invalid("timestamp must be valid ISO-8601 format")
	}
	return valid()
}

func validateMessageType(msg ChatMessage) ValidationResult {
	if msg.MessageType == "" {
		return invalid("messageType is required (TEXT, JOIN, or LEAVE)")
	}
	if !msg.MessageType.Valid() {
		return invalid(ErrUnknownMessageType.Error())
	}
	return valid()
}
