// Package message defines the JSON-RPC shapes exchanged over a multiplexed socket.
//
// Outbound traffic is always a Request. Inbound traffic is decoded into an Inbound,
// a tagged union of three variants:
//
//	Reply         {"id": 7, "result": {...}}                 → completes call 7
//	ErrorReply    {"id": 7, "error": {"code": .., "message": ..}} → fails call 7
//	Notification  anything without an id                     → pushed to the subscriber
package message

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version most servers expect in the "jsonrpc" member.
const Version = "2.0"

// Request is one outbound call. ID is the correlation key allocated by the issuer.
type Request struct {
	ID     int64
	Method string
	Params any // nil is sent as JSON null
}

// ErrorObject is the body of an error reply.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ErrorObject) String() string {
	return fmt.Sprintf("code=%d message=%q", e.Code, e.Message)
}

// Notification is an inbound push message with no originating request.
//
// Subscription-style pushes ({"method":"subscription","params":{"channel":..,"data":..}})
// have Method, Channel and Params populated; any other shape only has Raw.
type Notification struct {
	Method  string          // e.g. "subscription", empty if absent
	Channel string          // params.channel or top-level channel, if present
	Params  json.RawMessage // params.data for subscriptions, else params
	Raw     json.RawMessage // the complete frame text
}

// Kind tags the variant held by an Inbound.
type Kind uint8

const (
	KindReply Kind = iota + 1
	KindError
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindReply:
		return "reply"
	case KindError:
		return "error"
	case KindNotification:
		return "notification"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Inbound is one decoded inbound message.
//
//   - KindReply:        ID and Result are set.
//   - KindError:        ID and Error are set.
//   - KindNotification: Notification is set.
type Inbound struct {
	Kind         Kind
	ID           int64
	Result       json.RawMessage
	Error        *ErrorObject
	Notification *Notification
}

// Correlated reports whether the message answers a request.
func (m *Inbound) Correlated() bool {
	return m.Kind == KindReply || m.Kind == KindError
}

// NewReply builds a success reply.
func NewReply(id int64, result json.RawMessage) *Inbound {
	return &Inbound{Kind: KindReply, ID: id, Result: result}
}

// NewErrorReply builds an error reply.
func NewErrorReply(id int64, code int, msg string) *Inbound {
	return &Inbound{Kind: KindError, ID: id, Error: &ErrorObject{Code: code, Message: msg}}
}

// NewNotification wraps a raw push message.
func NewNotification(n *Notification) *Inbound {
	return &Inbound{Kind: KindNotification, Notification: n}
}
