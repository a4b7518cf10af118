// Package ssdp finds bulbs on the local network.
//
// A single search request is sent to the bulbs' multicast group, and every
// advertisement that arrives within the collection window is parsed into a
// common.DeviceDescriptor.  Bulbs answer with an HTTP-like header block:
//
//	HTTP/1.1 200 OK
//	Cache-Control: max-age=3600
//	Location: yeelight://192.168.1.239:55443
//	id: 0x000000000015243f
//	model: color
//	fw_ver: 18
//	support: get_prop set_default set_power toggle set_bright ...
//	power: on
//	bright: 100
//	...
package ssdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/pdf/goyeelight/common"
	"github.com/pdf/goyeelight/protocol/shared"
)

const maxDatagramSize = 4096

var (
	// ErrNoLocation is returned for advertisements without a usable Location
	ErrNoLocation = errors.New(`advertisement has no yeelight location`)
	// ErrNoID is returned for advertisements without a device id
	ErrNoID = errors.New(`advertisement has no id`)
)

type options struct {
	address string
	iface   *net.Interface
	ttl     int
}

// Option configures a Search
type Option func(*options)

// WithAddress sends the search request to address (host or host:port)
// instead of the multicast group, to reach a single known bulb
func WithAddress(address string) Option {
	return func(o *options) {
		if address == `` {
			return
		}
		if _, _, err := net.SplitHostPort(address); err != nil {
			address = net.JoinHostPort(address, strconv.Itoa(shared.DiscoveryPort))
		}
		o.address = address
	}
}

// WithInterface sends multicast search requests out of iface rather than
// the system default
func WithInterface(iface *net.Interface) Option {
	return func(o *options) {
		o.iface = iface
	}
}

// WithTTL overrides the multicast TTL of the search request
func WithTTL(ttl int) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// SearchRequest returns the search datagram addressed to host:port
func SearchRequest(address string) []byte {
	return []byte(strings.Join([]string{
		`M-SEARCH * HTTP/1.1`,
		`HOST: ` + address,
		`MAN: "ssdp:discover"`,
		`ST: ` + shared.SearchTarget,
	}, "\r\n"))
}

// Search sends one search request and collects advertisements until timeout
// expires or ctx is done.  Advertisements are deduplicated by device id, a
// later advertisement replacing an earlier one in place.  Finding nothing is
// not an error.
func Search(ctx context.Context, timeout time.Duration, opts ...Option) ([]common.DeviceDescriptor, error) {
	o := &options{
		address: net.JoinHostPort(shared.MulticastAddress, strconv.Itoa(shared.DiscoveryPort)),
		ttl:     shared.MulticastTTL,
	}
	for _, opt := range opts {
		opt(o)
	}
	if timeout <= 0 {
		timeout = shared.DefaultDiscoveryTimeout
	}

	dst, err := net.ResolveUDPAddr(`udp4`, o.address)
	if err != nil {
		return nil, &common.ConnectionError{Address: o.address, Op: `resolve`, Err: err}
	}
	conn, err := net.ListenUDP(`udp4`, &net.UDPAddr{})
	if err != nil {
		return nil, &common.ConnectionError{Address: o.address, Op: `listen`, Err: err}
	}
	defer conn.Close()

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(o.ttl); err != nil {
		common.Log.Debugf("Failed setting multicast TTL: %v", err)
	}
	if o.iface != nil {
		if err := pc.SetMulticastInterface(o.iface); err != nil {
			return nil, &common.ConnectionError{Address: o.address, Op: `listen`, Err: fmt.Errorf(`interface %s: %w`, o.iface.Name, err)}
		}
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, &common.ConnectionError{Address: o.address, Op: `listen`, Err: err}
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.WriteTo(SearchRequest(o.address), dst); err != nil {
		return nil, &common.ConnectionError{Address: o.address, Op: `write`, Err: err}
	}
	common.Log.Debugf("Sent search request to %s", o.address)

	c := newCollector()
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			return c.results(), &common.ConnectionError{Address: o.address, Op: `read`, Err: err}
		}
		desc, err := ParseAdvertisement(buf[:n])
		if err != nil {
			common.Log.Debugf("Skipping advertisement from %v: %v", addr, err)
			continue
		}
		c.add(desc)
	}

	if err := ctx.Err(); err != nil {
		return c.results(), err
	}
	common.Log.Debugf("Search found %d bulbs", len(c.order))
	return c.results(), nil
}

// collector dedupes descriptors by id, keeping first-seen order
type collector struct {
	order []string
	byID  map[string]common.DeviceDescriptor
}

func newCollector() *collector {
	return &collector{byID: make(map[string]common.DeviceDescriptor)}
}

func (c *collector) add(desc common.DeviceDescriptor) {
	if _, ok := c.byID[desc.ID]; !ok {
		c.order = append(c.order, desc.ID)
	}
	c.byID[desc.ID] = desc
}

func (c *collector) results() []common.DeviceDescriptor {
	out := make([]common.DeviceDescriptor, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// ParseAdvertisement parses the header block of a search response or a
// multicast NOTIFY.  Parsing stops at the first blank line.
func ParseAdvertisement(data []byte) (common.DeviceDescriptor, error) {
	var (
		desc     = common.DeviceDescriptor{Properties: make(common.Properties)}
		location string
	)

	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == `` {
			if i == 0 {
				continue
			}
			break
		}
		key, value, ok := strings.Cut(line, `:`)
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch {
		case strings.EqualFold(key, `location`):
			location = value
		case key != strings.ToLower(key):
			// HTTP header, not a device field
		case key == `id`:
			desc.ID = value
		case key == `model`:
			desc.Model = value
		case key == `fw_ver`:
			if v, err := strconv.Atoi(value); err == nil {
				desc.FirmwareVersion = v
			}
		case key == `support`:
			desc.Support = strings.Fields(value)
		case key == `name`:
			desc.Name = value
			desc.Properties[key] = value
		case common.KnownProperty(key):
			desc.Properties[key] = value
		}
	}

	host, port, err := parseLocation(location)
	if err != nil {
		return common.DeviceDescriptor{}, err
	}
	if desc.ID == `` {
		return common.DeviceDescriptor{}, ErrNoID
	}
	desc.Address = host
	desc.Port = port

	return desc, nil
}

func parseLocation(location string) (string, int, error) {
	if !strings.HasPrefix(location, shared.LocationScheme) {
		return ``, 0, ErrNoLocation
	}
	hostport := strings.TrimSuffix(strings.TrimPrefix(location, shared.LocationScheme), `/`)
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return ``, 0, fmt.Errorf(`%w: %v`, ErrNoLocation, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 || host == `` {
		return ``, 0, fmt.Errorf(`%w: bad port %q`, ErrNoLocation, portStr)
	}
	return host, port, nil
}
