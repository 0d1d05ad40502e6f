// Package ipc carries call-control commands between resq processes over a
// unix socket, one JSON line per request and per response.
package ipc

import (
	"encoding/json"
	"errors"
)

// Commands understood by a call owner.
const (
	CommandStatus  = "status"
	CommandCapture = "capture"
	CommandEnd     = "end"
	CommandAck     = "ack"
)

// ErrNoOwner reports that nothing is listening on the call socket.
var ErrNoOwner = errors.New("no call owner")

// Request asks the call owner to act on its session.
type Request struct {
	Command string `json:"command"`
}

// Response carries the owner's phase after the command and, for status,
// the full session snapshot.
type Response struct {
	OK       bool            `json:"ok"`
	State    string          `json:"state,omitempty"`
	Message  string          `json:"message,omitempty"`
	Error    string          `json:"error,omitempty"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
}
