package types

import (
	"encoding/json"
	"fmt"
)

// Action is the top level routing key of every frame
type Action string

const (
	ActionHandshake Action = "handshake"
	ActionWorkOrder Action = "workorder"
)

// Method routes workorder frames
type Method string

const (
	MethodGet    Method = "get"
	MethodAccept Method = "accept"
)

// Status values carried on handshake replies and error frames.
const (
	StatusAccepted = "Accepted"
	StatusRefused  = "Refused"
	StatusErrored  = "Errored"
)

// AcceptStatus is the acknowledgement a Master returns for a work order accept.
type AcceptStatus string

const (
	AcceptStatusAccepted AcceptStatus = "accepted"
	AcceptStatusRejected AcceptStatus = "rejected"
	AcceptStatusError    AcceptStatus = "error"
)

// Frame is the single wire format exchanged between a Node and a Master.
// Every frame carries an action; workorder frames also carry a method. The
// remaining fields are populated depending on the message type:
//
//	handshake request:  identity, challenge, signature
//	handshake reply:    status, reason | identity, challenge, signature
//	workorder get:      jobPost              -> address
//	workorder accept:   workOrder, nonce, signature -> status
//	error reply:        original fields + status=Errored, reason, kind
type Frame struct {
	Action Action `json:"action"`
	Method Method `json:"method,omitempty"`
	ID     string `json:"id,omitempty"`

	Identity  string `json:"identity,omitempty"`
	Challenge string `json:"challenge,omitempty"`
	Signature string `json:"signature,omitempty"`

	Status string    `json:"status,omitempty"`
	Reason string    `json:"reason,omitempty"`
	Kind   ErrorKind `json:"kind,omitempty"`

	JobPost   string `json:"jobPost,omitempty"`
	Address   string `json:"address,omitempty"`
	WorkOrder string `json:"workOrder,omitempty"`
	Nonce     string `json:"nonce,omitempty"`
}

// RouteKey identifies the request/response pair a frame belongs to.
type RouteKey struct {
	Action Action
	Method Method
}

func (rk RouteKey) String() string {
	if rk.Method == "" {
		return string(rk.Action)
	}
	return fmt.Sprintf("%s/%s", rk.Action, rk.Method)
}

func (f *Frame) Route() RouteKey {
	return RouteKey{Action: f.Action, Method: f.Method}
}

// IsError reports whether the frame is an error reply
func (f *Frame) IsError() bool {
	return f.Status == StatusErrored
}

// ErrorReply echoes the frame back with the error fields set.
func (f *Frame) ErrorReply(kind ErrorKind, reason string) *Frame {
	reply := *f
	reply.Status = StatusErrored
	reply.Kind = kind
	reply.Reason = reason
	return &reply
}

// Validate checks the routing fields only; message specific fields are
// checked by the protocol that consumes the frame.
func (f *Frame) Validate() error {
	switch f.Action {
	case ActionHandshake:
		if f.Method != "" {
			return fmt.Errorf("%w: handshake frame must not carry a method", ErrProtocolFormat)
		}
	case ActionWorkOrder:
		switch f.Method {
		case MethodGet, MethodAccept:
		default:
			return fmt.Errorf("%w: unknown workorder method %q", ErrProtocolFormat, f.Method)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrProtocolFormat, f.Action)
	}
	return nil
}

// MarshalFrame serializes a frame to UTF-8 JSON.
func MarshalFrame(f *Frame) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("cannot marshal nil Frame")
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}
	return data, nil
}

// UnmarshalFrame parses and validates a frame.
func UnmarshalFrame(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrProtocolFormat)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolFormat, err)
	}
	if err := f.Validate(); err != nil {
		return &f, err
	}
	return &f, nil
}
