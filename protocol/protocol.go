// Package protocol ties bulb discovery to bulb sessions.
//
// This package is not designed to used directly by end users, other than to
// configure the LAN protocol when creating a new Client from the goyeelight
// package.
package protocol

import (
	"context"

	"github.com/pdf/goyeelight/common"
)

// Protocol defines the interface between the Client and a protocol
// implementation
type Protocol interface {
	// SetClient sets the client on the protocol for bi-directional
	// communication
	SetClient(client common.Client)
	// Discover searches for devices once, adding new devices to the client
	// and removing those that have gone away.  This is called immediately
	// when the client connects to the protocol.
	Discover(ctx context.Context) error
	// NewDevice adds a device at address without waiting for it to be
	// discovered
	NewDevice(address string) (common.Device, error)
	// Close closes the protocol driver and every device it created, no
	// further communication with the protocol is possible
	Close() error
}
