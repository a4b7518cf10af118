package protocol

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pdf/goyeelight/common"
	"github.com/pdf/goyeelight/protocol/device"
	"github.com/pdf/goyeelight/protocol/shared"
	"github.com/pdf/goyeelight/protocol/ssdp"
)

// LAN implements the bulb LAN protocol: bulbs are found with a multicast
// search, and each gets its own *device.Bulb session.
type LAN struct {
	// DiscoveryTimeout is the collection window of each search, defaults to
	// shared.DefaultDiscoveryTimeout
	DiscoveryTimeout time.Duration
	// Address sends searches to a single host rather than the multicast group
	Address string
	// Interface names the network interface multicast searches leave from
	Interface string
	// Config is applied to every bulb session.  When nil, device.DefaultConfig
	// is used with the client's timeout.
	Config *device.Config

	client        common.Client
	devices       map[string]*device.Bulb
	seen          map[string]time.Time
	static        map[string]bool
	lastDiscovery time.Time
	closed        bool
	sync.RWMutex
}

// SetClient sets the client on the protocol for bi-directional communication
func (p *LAN) SetClient(client common.Client) {
	p.Lock()
	p.client = client
	p.Unlock()
}

func (p *LAN) init() {
	if p.devices == nil {
		p.devices = make(map[string]*device.Bulb)
		p.seen = make(map[string]time.Time)
		p.static = make(map[string]bool)
	}
}

func (p *LAN) config() device.Config {
	if p.Config != nil {
		return *p.Config
	}
	config := device.DefaultConfig()
	p.RLock()
	client := p.client
	p.RUnlock()
	if client != nil {
		if timeout := client.GetTimeout(); timeout != nil {
			config.Timeout = *timeout
		}
	}
	return config
}

func (p *LAN) searchOptions() ([]ssdp.Option, error) {
	var opts []ssdp.Option
	if p.Address != `` {
		opts = append(opts, ssdp.WithAddress(p.Address))
	}
	if p.Interface != `` {
		iface, err := net.InterfaceByName(p.Interface)
		if err != nil {
			return nil, &common.ConnectionError{Address: p.Interface, Op: `listen`, Err: err}
		}
		opts = append(opts, ssdp.WithInterface(iface))
	}
	return opts, nil
}

// Discover searches for bulbs once.  Bulbs seen for the first time are added
// to the client, bulbs that have not answered in twice the time since the
// previous discovery are removed from it and closed.
func (p *LAN) Discover(ctx context.Context) error {
	p.RLock()
	closed := p.closed
	p.RUnlock()
	if closed {
		return common.ErrClosed
	}

	opts, err := p.searchOptions()
	if err != nil {
		return err
	}
	found, err := ssdp.Search(ctx, p.DiscoveryTimeout, opts...)
	now := time.Now()
	for _, desc := range found {
		p.addDevice(desc, now)
	}
	if err != nil {
		return err
	}

	p.expire(now)
	p.Lock()
	p.lastDiscovery = now
	p.Unlock()

	return nil
}

func (p *LAN) addDevice(desc common.DeviceDescriptor, now time.Time) {
	p.Lock()
	if p.closed {
		p.Unlock()
		return
	}
	p.init()
	p.seen[desc.ID] = now
	existing, ok := p.devices[desc.ID]
	if ok {
		if existing.Descriptor().Endpoint() == desc.Endpoint() {
			p.Unlock()
			return
		}
		delete(p.devices, desc.ID)
	}
	p.Unlock()

	if ok {
		common.Log.Infof("Bulb %s moved from %s to %s", desc.ID, existing.Descriptor().Endpoint(), desc.Endpoint())
		p.removeDevice(desc.ID, existing)
	}

	bulb := device.New(desc, p.config())
	p.Lock()
	if p.closed {
		p.Unlock()
		_ = bulb.Close()
		return
	}
	p.devices[desc.ID] = bulb
	client := p.client
	p.Unlock()

	common.Log.Debugf("Discovered bulb %v", desc)
	if client == nil {
		return
	}
	if err := client.AddDevice(bulb); err != nil {
		common.Log.Warnf("Failed adding bulb %s to client: %v", desc.ID, err)
	}
}

func (p *LAN) expire(now time.Time) {
	p.RLock()
	if p.lastDiscovery.IsZero() {
		p.RUnlock()
		return
	}
	// Not seen in twice the time since the last discovery
	cutoff := now.Add(now.Sub(p.lastDiscovery) * -2)
	extinct := make(map[string]*device.Bulb)
	for id, bulb := range p.devices {
		if !p.static[id] && p.seen[id].Before(cutoff) {
			extinct[id] = bulb
		}
	}
	p.RUnlock()

	for id, bulb := range extinct {
		p.Lock()
		delete(p.devices, id)
		delete(p.seen, id)
		p.Unlock()
		common.Log.Infof("Bulb %s has gone away", id)
		p.removeDevice(id, bulb)
	}
}

func (p *LAN) removeDevice(id string, bulb *device.Bulb) {
	p.RLock()
	client := p.client
	p.RUnlock()
	if client != nil {
		if err := client.RemoveDeviceByID(id); err != nil {
			common.Log.Warnf("Failed removing bulb %s from client: %v", id, err)
		}
	}
	if err := bulb.Close(); err != nil {
		common.Log.Debugf("Failed closing bulb %s: %v", id, err)
	}
}

// NewDevice adds a bulb at address (host or host:port) without discovering
// it.  The bulb is identified by its endpoint, and is never expired.  A bulb
// already added at the same address is returned as is.
func (p *LAN) NewDevice(address string) (common.Device, error) {
	desc, err := descriptorFor(address)
	if err != nil {
		return nil, err
	}
	id := desc.Endpoint()

	p.Lock()
	if p.closed {
		p.Unlock()
		return nil, common.ErrClosed
	}
	p.init()
	if bulb, ok := p.devices[id]; ok {
		p.Unlock()
		return bulb, nil
	}
	p.Unlock()

	bulb := device.New(desc, p.config())

	p.Lock()
	if p.closed {
		p.Unlock()
		_ = bulb.Close()
		return nil, common.ErrClosed
	}
	if existing, ok := p.devices[id]; ok {
		p.Unlock()
		return existing, nil
	}
	p.devices[id] = bulb
	p.static[id] = true
	client := p.client
	p.Unlock()

	if client != nil {
		if err := client.AddDevice(bulb); err != nil && err != common.ErrDuplicate {
			return nil, err
		}
	}
	return bulb, nil
}

func descriptorFor(address string) (common.DeviceDescriptor, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		host, portStr = address, strconv.Itoa(shared.DefaultPort)
	}
	if host == `` {
		return common.DeviceDescriptor{}, &common.ValidationError{Field: `address`, Value: address, Reason: `no host`}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return common.DeviceDescriptor{}, &common.ValidationError{Field: `address`, Value: address, Reason: `port must be 1-65535`}
	}
	return common.DeviceDescriptor{Address: host, Port: port}, nil
}

// Close closes every bulb session, no further communication with the
// protocol is possible
func (p *LAN) Close() error {
	p.Lock()
	if p.closed {
		p.Unlock()
		return common.ErrClosed
	}
	p.closed = true
	devices := p.devices
	p.devices = nil
	p.Unlock()

	for id, bulb := range devices {
		if err := bulb.Close(); err != nil {
			common.Log.Errorf("Failed closing bulb %s: %v", id, err)
		}
	}
	return nil
}
