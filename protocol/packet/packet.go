// Package packet implements the framing and envelopes of the bulb control
// protocol: newline delimited JSON objects over a TCP connection.
//
// This package is not designed to be accessed by end users, all interaction
// should occur via a Bulb session or the Client in the goyeelight package.
package packet

import (
	"encoding/json"

	"github.com/pdf/goyeelight/common"
	"github.com/pdf/goyeelight/protocol/shared"
)

// Terminator ends every outbound frame
const Terminator = "\r\n"

// Request is an outbound command
type Request struct {
	ID     uint32        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// Encode returns the wire form of the request, including the terminator
func (r *Request) Encode() ([]byte, error) {
	if r.Params == nil {
		r.Params = []interface{}{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(data, Terminator...), nil
}

// Error is the error envelope of a failed command
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Result is the result list of a successful command
type Result []interface{}

// OK reports whether the result is the plain acknowledgement ["ok"]
func (r Result) OK() bool {
	return len(r) == 1 && r[0] == `ok`
}

// Strings returns the result values in string form, non-scalar values map
// to the empty string
func (r Result) Strings() []string {
	out := make([]string, len(r))
	for i, v := range r {
		out[i], _ = common.PropertyValue(v)
	}
	return out
}

// Message is any inbound frame: a response carries an ID, a notification
// carries a method and params
type Message struct {
	ID     *uint32         `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result Result          `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// IsResponse reports whether the message answers a request
func (m *Message) IsResponse() bool {
	return m.ID != nil
}

// IsNotification reports whether the message is a pushed state change
func (m *Message) IsNotification() bool {
	return m.ID == nil && m.Method == shared.MethodProps
}

// Err returns the device error carried by the message, if any
func (m *Message) Err() error {
	if m.Error == nil {
		return nil
	}
	return &common.DeviceError{Code: m.Error.Code, Message: m.Error.Message}
}

// Decode parses a single frame, without its terminator
func Decode(data []byte) (*Message, error) {
	msg := new(Message)
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
