// Package shared holds constants of the bulb LAN protocol used across the
// protocol packages.
package shared

import "time"

const (
	// DefaultPort is the bulb's control port
	DefaultPort = 55443
	// DiscoveryPort is the port bulbs listen for search requests on
	DiscoveryPort = 1982
	// MulticastAddress is the group search requests are sent to
	MulticastAddress = `239.255.255.250`
	// SearchTarget identifies bulbs in a search request
	SearchTarget = `wifi_bulb`
	// LocationScheme prefixes the Location header of advertisements
	LocationScheme = `yeelight://`
	// MulticastTTL is applied to outgoing search requests
	MulticastTTL = 32

	// MaxRequestID bounds request identifiers before they wrap back to 1
	MaxRequestID = 1<<31 - 1

	// DefaultTimeout bounds the wait for a command response
	DefaultTimeout = 5 * time.Second
	// DefaultConnectTimeout bounds establishing a control connection
	DefaultConnectTimeout = 5 * time.Second
	// DefaultMusicTimeout bounds the wait for the bulb to connect back when
	// entering music mode
	DefaultMusicTimeout = 15 * time.Second
	// DefaultDiscoveryTimeout is the collection window of a search
	DefaultDiscoveryTimeout = 2 * time.Second

	// DefaultRateLimit is the sustained command rate allowed on a control
	// connection, bulbs refuse more than 60 commands a minute
	DefaultRateLimit = 1.0
	// DefaultRateBurst is the number of commands that may be sent back to
	// back before the rate limit applies
	DefaultRateBurst = 60

	// MethodProps is the method of state change notifications
	MethodProps = `props`
)

// Error messages after which bulbs stop serving a connection
var ReconnectErrors = []string{`client quota exceeded`, `invalid command`}
