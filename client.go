package goyeelight

import (
	"context"
	"sync"
	"time"

	"github.com/pdf/goyeelight/common"
	"github.com/pdf/goyeelight/protocol"
	"github.com/pdf/goyeelight/protocol/device"
)

// Client provides a simple interface for interacting with bulbs.  Client can
// not be instantiated manually or it will not function - always use
// NewClient() to obtain a Client instance.
type Client struct {
	discoveryInterval     time.Duration
	stopDiscovery         context.CancelFunc
	protocol              protocol.Protocol
	timeout               time.Duration
	internalRetryInterval time.Duration
	devices               map[string]common.Device
	subscriptions         common.Subscriptions
	closed                bool
	sync.RWMutex
}

// NewSubscription returns a new *common.Subscription for receiving events
// from this client.
func (c *Client) NewSubscription() (*common.Subscription, error) {
	c.RLock()
	closed := c.closed
	c.RUnlock()
	if closed {
		return nil, common.ErrClosed
	}
	sub := common.NewSubscription(c)
	c.subscriptions.Add(sub)
	return sub, nil
}

// CloseSubscription is a callback for handling the closing of subscriptions.
func (c *Client) CloseSubscription(sub *common.Subscription) error {
	return c.subscriptions.Remove(sub)
}

// AddDevice is for use by protocols only.
// Adds dev to the client's known devices and publishes a
// common.EventNewDevice.  Returns common.ErrDuplicate if the device is
// already known.
func (c *Client) AddDevice(dev common.Device) error {
	id := dev.ID()
	c.Lock()
	if _, ok := c.devices[id]; ok {
		c.Unlock()
		return common.ErrDuplicate
	}
	c.devices[id] = dev
	c.Unlock()

	common.Log.Debugf("Added device %s", id)
	c.subscriptions.Publish(common.EventNewDevice{Device: dev})

	return nil
}

// RemoveDeviceByID is for use by protocols only.
// Looks up a device by it's id and removes it from the client's list of known
// devices, publishing a common.EventExpiredDevice, or returns
// common.ErrNotFound if the device is not known at this time.
func (c *Client) RemoveDeviceByID(id string) error {
	c.Lock()
	dev, ok := c.devices[id]
	if !ok {
		c.Unlock()
		return common.ErrNotFound
	}
	delete(c.devices, id)
	c.Unlock()

	common.Log.Debugf("Removed device %s", id)
	c.subscriptions.Publish(common.EventExpiredDevice{Device: dev})

	return nil
}

// GetDevices returns a slice of all devices known to the client, or
// common.ErrNotFound if no devices are currently known.
func (c *Client) GetDevices() ([]common.Device, error) {
	c.RLock()
	devices := make([]common.Device, 0, len(c.devices))
	for _, dev := range c.devices {
		devices = append(devices, dev)
	}
	c.RUnlock()
	if len(devices) == 0 {
		return devices, common.ErrNotFound
	}
	return devices, nil
}

// GetDeviceByID looks up a device by it's id and returns a common.Device.
// May return a common.ErrNotFound error if the lookup times out without finding
// the device.
func (c *Client) GetDeviceByID(id string) (common.Device, error) {
	return c.findDevice(func(dev common.Device) bool {
		return dev.ID() == id
	})
}

// GetDeviceByName looks up a device by the name stored on the bulb and
// returns a common.Device.  May return a common.ErrNotFound error if the
// lookup times out without finding the device.
func (c *Client) GetDeviceByName(name string) (common.Device, error) {
	return c.findDevice(func(dev common.Device) bool {
		return DeviceName(dev) == name
	})
}

// findDevice polls the known devices until match succeeds or the timeout
// expires.  A zero timeout waits forever.
func (c *Client) findDevice(match func(common.Device) bool) (common.Device, error) {
	c.RLock()
	timeout := c.timeout
	interval := c.internalRetryInterval
	c.RUnlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		devices, _ := c.GetDevices()
		for _, dev := range devices {
			if match(dev) {
				return dev, nil
			}
		}
		select {
		case <-ticker.C:
		case <-expired:
			return nil, common.ErrNotFound
		}
	}
}

// DeviceName returns the name reported by the bulb, or advertised when it
// was discovered
func DeviceName(dev common.Device) string {
	if name := dev.CachedProperties()[common.PropName]; name != `` {
		return name
	}
	return dev.Descriptor().Name
}

// GetBulbs returns a slice of all bulb sessions known to the client, or
// common.ErrNotFound if none are currently known.
func (c *Client) GetBulbs() ([]*device.Bulb, error) {
	devices, err := c.GetDevices()
	if err != nil {
		return nil, err
	}
	var bulbs []*device.Bulb
	for _, dev := range devices {
		if bulb, ok := dev.(*device.Bulb); ok {
			bulbs = append(bulbs, bulb)
		}
	}
	if len(bulbs) == 0 {
		return nil, common.ErrNotFound
	}
	return bulbs, nil
}

// GetBulbByID looks up a bulb by it's id.  May return a common.ErrNotFound
// error if the lookup times out without finding the bulb, or
// common.ErrDeviceInvalidType if the device exists but is not a bulb session.
func (c *Client) GetBulbByID(id string) (*device.Bulb, error) {
	dev, err := c.GetDeviceByID(id)
	if err != nil {
		return nil, err
	}
	return asBulb(dev)
}

// GetBulbByName looks up a bulb by it's name.  May return a
// common.ErrNotFound error if the lookup times out without finding the bulb,
// or common.ErrDeviceInvalidType if the device exists but is not a bulb
// session.
func (c *Client) GetBulbByName(name string) (*device.Bulb, error) {
	dev, err := c.GetDeviceByName(name)
	if err != nil {
		return nil, err
	}
	return asBulb(dev)
}

// NewBulb adds the bulb at address (host or host:port) without waiting for
// discovery, and returns its session.  Nothing is sent until the first
// command.
func (c *Client) NewBulb(address string) (*device.Bulb, error) {
	c.RLock()
	closed := c.closed
	c.RUnlock()
	if closed {
		return nil, common.ErrClosed
	}
	dev, err := c.protocol.NewDevice(address)
	if err != nil {
		return nil, err
	}
	return asBulb(dev)
}

func asBulb(dev common.Device) (*device.Bulb, error) {
	bulb, ok := dev.(*device.Bulb)
	if !ok {
		return nil, common.ErrDeviceInvalidType
	}
	return bulb, nil
}

// SetDiscoveryInterval causes the client to discover devices every interval.
// You should set this to a non-zero value for any long-running process,
// otherwise devices will only be discovered once, and will never expire.
func (c *Client) SetDiscoveryInterval(interval time.Duration) error {
	c.Lock()
	defer c.Unlock()
	if c.closed {
		return common.ErrClosed
	}
	if c.stopDiscovery != nil {
		c.stopDiscovery()
		c.stopDiscovery = nil
	}
	c.discoveryInterval = interval
	if interval == 0 {
		common.Log.Debugf("Discovery interval is zero, discovery will not be repeated")
		return nil
	}

	common.Log.Infof("Starting discovery with interval %v", interval)
	ctx, cancel := context.WithCancel(context.Background())
	c.stopDiscovery = cancel
	go c.discover(ctx, interval)

	return nil
}

func (c *Client) discover(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			common.Log.Debugf("Quitting discovery loop")
			return
		case <-ticker.C:
			common.Log.Debugf("Performing discovery")
			if err := c.protocol.Discover(ctx); err != nil && ctx.Err() == nil {
				common.Log.Warnf("Discovery failed: %v", err)
			}
		}
	}
}

// SetTimeout sets the time that client operations wait for results before
// returning an error.  Bulbs pick up the timeout when they are found.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.Lock()
	c.timeout = timeout
	c.Unlock()
}

// GetTimeout returns the currently configured timeout period for operations on
// this client
func (c *Client) GetTimeout() *time.Duration {
	c.RLock()
	defer c.RUnlock()
	timeout := c.timeout
	return &timeout
}

// Close signals the termination of this client, and cleans up resources
func (c *Client) Close() error {
	c.Lock()
	if c.closed {
		c.Unlock()
		return common.ErrClosed
	}
	c.closed = true
	if c.stopDiscovery != nil {
		c.stopDiscovery()
		c.stopDiscovery = nil
	}
	c.Unlock()

	c.subscriptions.CloseAll()
	return c.protocol.Close()
}
