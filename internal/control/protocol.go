// Package control implements the control transport: a local UNIX-domain
// stream socket carrying newline-delimited JSON requests and replies, one
// per line, served sequentially per connection. Grounded on
// original_source/src/control/{api.rs,server.rs,handler.rs}'s request/reply
// shape, translated from tokio's async I/O to net + bufio.
package control

import (
	"encoding/json"
	"errors"

	"github.com/harmony-wg/agent/internal/agenterr"
)

// Action is one of the control transport's verbs.
type Action string

const (
	ActionConnect    Action = "connect"
	ActionDisconnect Action = "disconnect"
	ActionStatus     Action = "status"
	ActionReload     Action = "reload"
	ActionRotateKeys Action = "rotate_keys"
)

// Request is one line of client input.
type Request struct {
	ID      string          `json:"id"`
	Action  Action          `json:"action"`
	Network string          `json:"network"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// Response is one line of server output. Exactly one of Data or Error is
// set.
type Response struct {
	ID      string         `json:"id"`
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the wire shape of a failed reply's "error" object.
type ErrorResponse struct {
	Type    agenterr.Kind `json:"type"`
	Message string        `json:"message"`
}

func successResponse(id string, data any) Response {
	return Response{ID: id, Success: true, Data: data}
}

func errorResponse(id string, err error) Response {
	var ae *agenterr.Error
	if errors.As(err, &ae) {
		return Response{ID: id, Success: false, Error: &ErrorResponse{Type: ae.Kind, Message: ae.Message}}
	}
	return Response{ID: id, Success: false, Error: &ErrorResponse{Type: agenterr.KindInternalError, Message: err.Error()}}
}
