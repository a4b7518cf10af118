package common

import "time"

const (
	// DefaultTimeout is the default duration after which operations time out
	DefaultTimeout = 5 * time.Second
)

// Client defines the interface required by protocols
type Client interface {
	// AddDevice registers a newly found device
	AddDevice(Device) error
	// RemoveDeviceByID forgets a device that has gone away
	RemoveDeviceByID(string) error
	// GetTimeout returns the timeout applied to operations on this client
	GetTimeout() *time.Duration
}
