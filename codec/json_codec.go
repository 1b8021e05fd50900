package codec

import (
	"bytes"
	"encoding/json"
	"errors"

	"mini-wsrpc/message"
)

// JSONCodec speaks JSON-RPC over text frames using encoding/json.
//
// With Version set (normally "2.0") every request carries the "jsonrpc" member;
// left empty, requests are the bare {id, method, params} shape.
type JSONCodec struct {
	Version string
}

type wireRequest struct {
	JSONRPC string `json:"jsonrpc,omitempty"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type wireError struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type wireSubscription struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

var errEmptyMethod = errors.New("empty method name")

func (c *JSONCodec) Name() string {
	if c.Version == "" {
		return "json"
	}
	return "jsonrpc" + c.Version
}

func (c *JSONCodec) Encode(req *message.Request) ([]byte, error) {
	if req.Method == "" {
		return nil, errEmptyMethod
	}
	return json.Marshal(&wireRequest{
		JSONRPC: c.Version,
		ID:      req.ID,
		Method:  req.Method,
		Params:  req.Params,
	})
}

// Decode classifies a frame by its members: an "id" with "result" is a reply,
// an "id" with "error" is an error reply, and an object without an id is a
// notification. Anything else is a *DecodeError.
func (c *JSONCodec) Decode(data []byte) (*message.Inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, decodeErr(data, err)
	}
	if fields == nil {
		return nil, decodeErrf(data, "message is not a JSON object")
	}

	rawID, hasID := fields["id"]
	rawErr, hasErr := fields["error"]
	rawRes, hasRes := fields["result"]
	if hasID && isNull(rawID) {
		hasID = false
	}
	if hasErr && isNull(rawErr) {
		hasErr = false
	}

	if !hasID {
		if hasErr {
			return nil, decodeErrf(data, "uncorrelated error reply: %s", rawErr)
		}
		return message.NewNotification(decodeNotification(data, fields)), nil
	}

	var id int64
	if err := json.Unmarshal(rawID, &id); err != nil {
		return nil, decodeErrf(data, "id is not an integer: %s", rawID)
	}

	switch {
	case hasErr:
		var we wireError
		if err := json.Unmarshal(rawErr, &we); err != nil {
			return nil, decodeErr(data, err)
		}
		if we.Code == nil {
			return nil, decodeErrf(data, "error reply without code")
		}
		return &message.Inbound{
			Kind:  message.KindError,
			ID:    id,
			Error: &message.ErrorObject{Code: *we.Code, Message: we.Message, Data: we.Data},
		}, nil
	case hasRes:
		return message.NewReply(id, rawRes), nil
	default:
		return nil, decodeErrf(data, "message with id %d has neither result nor error", id)
	}
}

func decodeNotification(data []byte, fields map[string]json.RawMessage) *message.Notification {
	n := &message.Notification{Raw: json.RawMessage(data)}
	if raw, ok := fields["method"]; ok {
		_ = json.Unmarshal(raw, &n.Method)
	}
	if raw, ok := fields["channel"]; ok {
		_ = json.Unmarshal(raw, &n.Channel)
	}

	params, ok := fields["params"]
	if !ok {
		return n
	}
	n.Params = params

	var sub wireSubscription
	if err := json.Unmarshal(params, &sub); err == nil && sub.Channel != "" {
		n.Channel = sub.Channel
		n.Params = sub.Data
	}
	return n
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
