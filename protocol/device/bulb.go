// Package device implements a session with a single bulb.
//
// A Bulb multiplexes request/response commands and pushed state
// notifications over one control connection, keeps the last known
// properties of the bulb, and can switch to music mode, where commands are
// streamed over a second connection without acknowledgement.
//
// This package is not designed to be accessed by end users, all interaction
// should occur via the Client in the goyeelight package, or a *Bulb obtained
// from it.
package device

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdf/goyeelight/common"
	"github.com/pdf/goyeelight/protocol/command"
	"github.com/pdf/goyeelight/protocol/flow"
	"github.com/pdf/goyeelight/protocol/packet"
	"github.com/pdf/goyeelight/protocol/shared"
)

// State is the connection state of a Bulb
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateMusicMode
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return `disconnected`
	case StateConnecting:
		return `connecting`
	case StateConnected:
		return `connected`
	case StateMusicMode:
		return `music mode`
	default:
		return `unknown`
	}
}

// DialFunc opens a control connection
type DialFunc func(ctx context.Context, address string, timeout time.Duration) (*packet.Conn, error)

// Config holds the tunables of a Bulb
type Config struct {
	// Timeout bounds the wait for each command response, 0 waits forever
	Timeout time.Duration
	// ConnectTimeout bounds establishing the control connection
	ConnectTimeout time.Duration
	// MusicTimeout bounds the wait for the bulb to connect back when
	// entering music mode
	MusicTimeout time.Duration
	// Effect and Duration are applied to commands that take a transition,
	// unless overridden per call
	Effect   command.Effect
	Duration time.Duration
	// PowerMode is applied when switching on, unless overridden per call
	PowerMode command.PowerMode
	// AutoOn switches the bulb on before commands that change its color,
	// brightness or flow, when it is known or found to be off
	AutoOn bool
	// RateLimit is the sustained commands per second allowed on the control
	// connection, 0 disables limiting.  RateBurst commands may be sent back
	// to back.
	RateLimit float64
	RateBurst int
	// MaxTransitions bounds the length of flows
	MaxTransitions int
	// Dial opens control connections, packet.Dial when nil
	Dial DialFunc
}

// DefaultConfig returns the configuration used for bulbs created without one
func DefaultConfig() Config {
	return Config{
		Timeout:        shared.DefaultTimeout,
		ConnectTimeout: shared.DefaultConnectTimeout,
		MusicTimeout:   shared.DefaultMusicTimeout,
		Effect:         command.EffectSmooth,
		Duration:       command.DefaultDuration,
		RateLimit:      shared.DefaultRateLimit,
		RateBurst:      shared.DefaultRateBurst,
		MaxTransitions: flow.DefaultMaxTransitions,
	}
}

// Bulb is a session with a single bulb.  It connects lazily on the first
// command, and may be used from many goroutines.
type Bulb struct {
	desc    common.DeviceDescriptor
	config  Config
	limiter *rate.Limiter
	props   *dispatcher

	state  State
	conn   *packet.Conn
	calls  *correlator
	music  *packet.Conn
	closed bool

	// cmdMu is read-held by every command for its duration, and write-held
	// while switching music mode on or off
	cmdMu  sync.RWMutex
	connMu sync.Mutex
	sync.RWMutex
}

// New returns a session for the bulb described by desc.  No connection is
// made until the first command, or Connect.
func New(desc common.DeviceDescriptor, config Config) *Bulb {
	if desc.Port == 0 {
		desc.Port = shared.DefaultPort
	}
	if config.Dial == nil {
		config.Dial = packet.Dial
	}
	if config.MusicTimeout <= 0 {
		config.MusicTimeout = shared.DefaultMusicTimeout
	}
	if config.MaxTransitions == 0 {
		config.MaxTransitions = DefaultConfig().MaxTransitions
	}

	b := &Bulb{
		desc:   desc,
		config: config,
	}
	b.props = newDispatcher(b.ID())
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}
	if len(desc.Properties) > 0 {
		b.props.Merge(desc.Properties)
	}

	return b
}

// ID returns the bulb's advertised id, or its endpoint when created without
// discovery
func (b *Bulb) ID() string {
	if b.desc.ID == `` {
		return b.desc.Endpoint()
	}
	return b.desc.ID
}

// Descriptor returns the descriptor the session was created from
func (b *Bulb) Descriptor() common.DeviceDescriptor {
	return b.desc
}

// State returns the current connection state
func (b *Bulb) State() State {
	b.RLock()
	defer b.RUnlock()
	return b.state
}

// CachedProperties returns a copy of the last known properties
func (b *Bulb) CachedProperties() common.Properties {
	return b.props.Snapshot()
}

// Properties is an alias of CachedProperties
func (b *Bulb) Properties() common.Properties {
	return b.CachedProperties()
}

// NewSubscription returns a new *common.Subscription for receiving events
// from this bulb
func (b *Bulb) NewSubscription() (*common.Subscription, error) {
	b.RLock()
	closed := b.closed
	b.RUnlock()
	if closed {
		return nil, common.ErrClosed
	}
	sub := common.NewSubscription(b)
	b.props.subscriptions.Add(sub)
	return sub, nil
}

// CloseSubscription is a callback for handling the closing of subscriptions
func (b *Bulb) CloseSubscription(sub *common.Subscription) error {
	return b.props.subscriptions.Remove(sub)
}

func (b *Bulb) publish(event interface{}) {
	b.props.subscriptions.Publish(event)
}

// Connect establishes the control connection if it is not already up
func (b *Bulb) Connect(ctx context.Context) error {
	_, err := b.connection(ctx)
	return err
}

func (b *Bulb) connection(ctx context.Context) (*correlator, error) {
	b.RLock()
	closed, calls := b.closed, b.calls
	b.RUnlock()
	if closed {
		return nil, common.ErrClosed
	}
	if calls != nil {
		return calls, nil
	}

	b.connMu.Lock()
	defer b.connMu.Unlock()

	b.Lock()
	if b.closed {
		b.Unlock()
		return nil, common.ErrClosed
	}
	if b.calls != nil {
		calls = b.calls
		b.Unlock()
		return calls, nil
	}
	b.state = StateConnecting
	b.Unlock()

	common.Log.Debugf("Connecting to %s at %s", b.ID(), b.desc.Endpoint())
	conn, err := b.config.Dial(ctx, b.desc.Endpoint(), b.config.ConnectTimeout)
	if err != nil {
		b.Lock()
		b.state = StateDisconnected
		b.Unlock()
		common.Log.Debugf("Failed connecting to %s: %v", b.ID(), err)
		return nil, err
	}

	calls = newCorrelator(conn, b.props.Handle)
	b.Lock()
	if b.closed {
		b.state = StateDisconnected
		b.Unlock()
		_ = conn.Close()
		return nil, common.ErrClosed
	}
	b.conn = conn
	b.calls = calls
	b.state = StateConnected
	b.Unlock()

	go b.readLoop(conn, calls)
	b.publish(common.EventConnected{ID: b.ID()})

	return calls, nil
}

func (b *Bulb) readLoop(conn *packet.Conn, calls *correlator) {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if common.IsFatal(err) {
				b.teardown(calls, err)
				return
			}
			common.Log.Warnf("Dropping frame from %s: %v", b.ID(), err)
			continue
		}
		calls.Handle(msg)
	}
}

// teardown drops the connection calls belongs to, failing every pending
// request with err.  It is a no-op if that connection is already gone.
func (b *Bulb) teardown(calls *correlator, err error) {
	b.Lock()
	if b.calls != calls || calls == nil {
		b.Unlock()
		return
	}
	conn, music := b.conn, b.music
	b.conn, b.calls, b.music = nil, nil, nil
	b.state = StateDisconnected
	b.Unlock()

	calls.Fail(err)
	_ = conn.Close()
	if music != nil {
		_ = music.Close()
		b.publish(common.EventMusicMode{ID: b.ID(), Enabled: false})
	}
	b.props.Clear()

	common.Log.Debugf("Disconnected from %s: %v", b.ID(), err)
	b.publish(common.EventDisconnected{ID: b.ID(), Err: err})
}

// Disconnect drops the connections to the bulb.  Pending requests fail with
// a *common.ConnectionError.  The session may be reconnected.
func (b *Bulb) Disconnect() error {
	b.RLock()
	calls := b.calls
	b.RUnlock()
	b.teardown(calls, b.connErr(`close`, common.ErrConnectionClosed))
	return nil
}

// Close disconnects and closes all subscriptions, the session can not be
// used afterwards
func (b *Bulb) Close() error {
	b.Lock()
	if b.closed {
		b.Unlock()
		return common.ErrClosed
	}
	b.closed = true
	b.Unlock()

	_ = b.Disconnect()
	b.props.subscriptions.CloseAll()
	return nil
}

func (b *Bulb) connErr(op string, err error) error {
	return &common.ConnectionError{Address: b.desc.Endpoint(), Op: op, Err: err}
}

// Send validates cmd, sends it and waits for the bulb's response.  In music
// mode commands are written without waiting and yield ["ok"], and queries
// fail with a *common.InvalidStateError.
func (b *Bulb) Send(ctx context.Context, cmd command.Command) (packet.Result, error) {
	method, params, err := command.Encode(cmd)
	if err != nil {
		return nil, err
	}
	if !b.desc.Supports(method) {
		return nil, &common.ValidationError{Field: `method`, Value: method, Reason: `not supported by ` + b.ID()}
	}

	b.cmdMu.RLock()
	defer b.cmdMu.RUnlock()

	b.RLock()
	closed, music, calls := b.closed, b.music, b.calls
	b.RUnlock()
	if closed {
		return nil, common.ErrClosed
	}

	if music != nil {
		if command.IsQuery(cmd) {
			return nil, &common.InvalidStateError{State: StateMusicMode.String(), Op: method}
		}
		return b.stream(music, calls, method, params)
	}

	return b.request(ctx, method, params)
}

// request sends on the control connection and waits for the response
func (b *Bulb) request(ctx context.Context, method string, params []interface{}) (packet.Result, error) {
	calls, err := b.connection(ctx)
	if err != nil {
		return nil, err
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	cl, err := calls.Issue(method, params)
	if err != nil {
		if common.IsFatal(err) {
			b.teardown(calls, err)
		}
		return nil, err
	}

	result, err := calls.Await(ctx, cl, b.config.Timeout)
	var devErr *common.DeviceError
	if errors.As(err, &devErr) && dropsConnection(devErr) {
		common.Log.Warnf("%s refused %s: %s, dropping connection", b.ID(), method, devErr.Message)
		b.teardown(calls, b.connErr(`read`, devErr))
	}

	return result, err
}

// stream writes a command on the music connection, nothing is returned
func (b *Bulb) stream(music *packet.Conn, calls *correlator, method string, params []interface{}) (packet.Result, error) {
	var id uint32 = 1
	if calls != nil {
		id = calls.NextID()
	}
	if err := music.WriteRequest(&packet.Request{ID: id, Method: method, Params: params}); err != nil {
		b.dropMusic(music, err)
		return nil, err
	}
	return packet.Result{`ok`}, nil
}

func dropsConnection(err *common.DeviceError) bool {
	for _, msg := range shared.ReconnectErrors {
		if strings.Contains(err.Message, msg) {
			return true
		}
	}
	return false
}

// Response is the outcome of SendAsync
type Response struct {
	Result packet.Result
	Err    error
}

// SendAsync sends cmd in the background, the returned channel receives
// exactly one Response
func (b *Bulb) SendAsync(ctx context.Context, cmd command.Command) <-chan Response {
	ch := make(chan Response, 1)
	go func() {
		result, err := b.Send(ctx, cmd)
		ch <- Response{Result: result, Err: err}
	}()
	return ch
}
