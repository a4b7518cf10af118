// Package goyeelight provides a simple Go interface to the Yeelight LAN
// protocol.
//
// Bulbs are discovered with a multicast search and controlled over one TCP
// connection each.  Commands may be issued concurrently from many goroutines,
// state changes pushed by the bulbs are delivered through subscriptions, and
// a bulb may be switched to music mode for unthrottled streaming of commands.
//
// Also included in cmd/yeelight is a small CLI utility that allows interacting
// with your bulbs on the LAN.
package goyeelight

import (
	"context"
	"time"

	"github.com/pdf/goyeelight/common"
	"github.com/pdf/goyeelight/protocol"
)

const (
	// VERSION of this library
	VERSION = `0.1.0`
)

// NewClient returns a pointer to a new Client and any error that occurred
// initializing the client, using the protocol p.  It also performs a first
// discovery run.
func NewClient(p protocol.Protocol) (*Client, error) {
	c := &Client{
		protocol:              p,
		devices:               make(map[string]common.Device),
		timeout:               common.DefaultTimeout,
		internalRetryInterval: 10 * time.Millisecond,
	}
	p.SetClient(c)
	err := c.protocol.Discover(context.Background())
	return c, err
}

// SetLogger allows assigning a custom levelled logger that conforms to the
// common.Logger interface.  To capture logs generated during client creation,
// this should be called before creating a Client. Defaults to
// common.StubLogger, which does no logging at all.
func SetLogger(logger common.Logger) {
	common.SetLogger(logger)
}
