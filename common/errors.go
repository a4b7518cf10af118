package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a requested device is not known
	ErrNotFound = errors.New(`Not found`)
	// ErrDuplicate is returned when adding a device that is already known
	ErrDuplicate = errors.New(`Already exists`)
	// ErrTimeout is matched by every TimeoutError
	ErrTimeout = errors.New(`Timed out`)
	// ErrClosed is returned when operating on a closed client, session or
	// subscription
	ErrClosed = errors.New(`Closed`)
	// ErrDeviceInvalidType is returned when a device is not a bulb session
	ErrDeviceInvalidType = errors.New(`Invalid device type`)
	// ErrConnectionClosed is wrapped by the ConnectionError returned when the
	// remote end goes away
	ErrConnectionClosed = errors.New(`Connection closed`)
	// ErrNotConnected is returned when a session has no live transport
	ErrNotConnected = errors.New(`Not connected`)
	// ErrSubscriberFull is returned when an event could not be queued for a
	// slow subscriber
	ErrSubscriberFull = errors.New(`Subscriber queue full`)
)

// ValidationError reports an argument outside of the device's documented
// domain.  It is always raised before any network I/O.
type ValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf(`invalid %s %v: %s`, e.Field, e.Value, e.Reason)
}

// ConnectionError reports a failure to establish or maintain a transport.
type ConnectionError struct {
	Address string
	Op      string
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf(`%s %s: connection error`, e.Op, e.Address)
	}
	return fmt.Sprintf(`%s %s: %v`, e.Op, e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a request that received no response within its bound.
type TimeoutError struct {
	RequestID uint32
	Method    string
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf(`request %d (%s) timed out after %v`, e.RequestID, e.Method, e.After)
}

// Is allows errors.Is(err, ErrTimeout)
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// DeviceError carries an error envelope returned verbatim by the device.
type DeviceError struct {
	Code    int
	Message string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf(`device error %d: %s`, e.Code, e.Message)
}

// ParseError reports a malformed inbound frame.  The frame is dropped, the
// connection stays up.
type ParseError struct {
	Data []byte
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf(`malformed frame %q: %v`, e.Data, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// InvalidStateError reports an operation that is not valid in the current
// session state.
type InvalidStateError struct {
	State string
	Op    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf(`%s not allowed while %s`, e.Op, e.State)
}

// IsFatal reports whether err invalidates the whole connection it came from.
func IsFatal(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
