package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errNotObject = errors.New("expected JSON object")

// DecodeMessage parses a client frame. The returned error describes why the
// frame is not a well-formed message; it does not apply validation rules.
func DecodeMessage(data []byte) (ChatMessage, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ChatMessage{}, errNotObject
	}

	var msg ChatMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return ChatMessage{}, err
	}
	return msg, nil
}

// EncodeMessage serializes a client frame.
func EncodeMessage(msg ChatMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeResponse parses a server frame.
func DecodeResponse(data []byte) (ServerResponse, error) {
	var resp ServerResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return ServerResponse{}, err
	}
	if resp.Status == "" {
		return ServerResponse{}, errors.New("response missing status")
	}
	return resp, nil
}

// EncodeResponse serializes a server frame.
func EncodeResponse(resp ServerResponse) ([]byte, error) {
	return json.Marshal(resp)
}
