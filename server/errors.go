package server

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC error codes used by the server.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
	CodeServerBusy     = -32001
)

// RPCError is an error a handler returns to control the code sent to the peer.
// Any other error is sent as CodeServerError with its text as the message.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ErrorCode is the code sent to the peer.
func (e *RPCError) ErrorCode() int { return e.Code }

// NewError builds an RPCError; data, if not nil, is marshalled into Data.
func NewError(code int, message string, data any) *RPCError {
	e := &RPCError{Code: code, Message: message}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			e.Data = raw
		}
	}
	return e
}
