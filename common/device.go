package common

import (
	"fmt"
	"net"
	"strconv"
)

// Device represents a bulb known to a Client
type Device interface {
	// ID returns the device identifier advertised by the bulb
	ID() string
	// Descriptor returns the descriptor the device was created from
	Descriptor() DeviceDescriptor
	// CachedProperties returns a copy of the last known properties of the bulb
	CachedProperties() Properties
	// Close tears down the device's connections and subscriptions
	Close() error

	// Device is a SubscriptionTarget
	SubscriptionTarget
}

// DeviceDescriptor describes a bulb as advertised during discovery.  It is a
// read-only value: sessions and the discovery service share it but never
// modify it.
type DeviceDescriptor struct {
	// Address is the host the bulb accepts control connections on
	Address string
	// Port is the control port, usually 55443
	Port int
	// ID is the bulb's unique identifier, eg 0x000000000015243f
	ID string
	// Model is the model hint, eg color, mono, stripe
	Model string
	// FirmwareVersion as advertised
	FirmwareVersion int
	// Name is the user-assigned name, may be empty
	Name string
	// Support lists the methods the bulb claims to support
	Support []string
	// Properties holds the state fields carried by the advertisement
	Properties Properties
}

// Endpoint returns the host:port of the bulb's control service
func (d DeviceDescriptor) Endpoint() string {
	return net.JoinHostPort(d.Address, strconv.Itoa(d.Port))
}

// Supports reports whether the bulb advertised support for method.  An empty
// support list is treated as unknown, which supports everything.
func (d DeviceDescriptor) Supports(method string) bool {
	if len(d.Support) == 0 {
		return true
	}
	for _, m := range d.Support {
		if m == method {
			return true
		}
	}
	return false
}

func (d DeviceDescriptor) String() string {
	return fmt.Sprintf(`%s<%s, model=%s>`, d.ID, d.Endpoint(), d.Model)
}
