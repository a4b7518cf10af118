package packet

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pdf/goyeelight/common"
)

// DefaultMaxMessageSize bounds a single inbound frame
const DefaultMaxMessageSize = 64 * 1024

// ErrFrameTruncated is returned when the stream ends part way through a frame
var ErrFrameTruncated = errors.New(`frame truncated`)

// Conn is the transport to a single bulb.  Writes may come from many
// goroutines and are serialized; ReadMessage must only be called by a single
// reader.
type Conn struct {
	conn    net.Conn
	address string
	scanner *bufio.Scanner

	sendMu    sync.Mutex
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// Dial opens a control connection to address, failing with a
// *common.ConnectionError.
func Dial(ctx context.Context, address string, timeout time.Duration) (*Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, `tcp`, address)
	if err != nil {
		return nil, &common.ConnectionError{Address: address, Op: `dial`, Err: err}
	}
	common.Log.Debugf("Connected to %s", address)
	return NewConn(conn), nil
}

// NewConn wraps an established connection
func NewConn(conn net.Conn) *Conn {
	return NewConnWithMaxSize(conn, DefaultMaxMessageSize)
}

// NewConnWithMaxSize wraps an established connection, limiting inbound
// frames to maxSize bytes
func NewConnWithMaxSize(conn net.Conn, maxSize int) *Conn {
	initial := 4096
	if maxSize < initial {
		initial = maxSize
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, initial), maxSize)
	scanner.Split(splitLines)

	address := ``
	if addr := conn.RemoteAddr(); addr != nil {
		address = addr.String()
	}

	return &Conn{
		conn:    conn,
		address: address,
		scanner: scanner,
		closed:  make(chan struct{}),
	}
}

// Address returns the remote address of the connection
func (c *Conn) Address() string {
	return c.address
}

// LocalAddr returns the local end of the connection
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Send writes a complete frame
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.closed:
		return &common.ConnectionError{Address: c.address, Op: `write`, Err: common.ErrConnectionClosed}
	default:
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return &common.ConnectionError{Address: c.address, Op: `write`, Err: err}
	}
	common.Log.Debugf("%s > %s", c.address, bytes.TrimSpace(data))

	return nil
}

// WriteRequest encodes and sends req
func (c *Conn) WriteRequest(req *Request) error {
	data, err := req.Encode()
	if err != nil {
		return fmt.Errorf(`encoding %s: %w`, req.Method, err)
	}
	return c.Send(data)
}

// ReadMessage blocks until the next complete frame arrives.  A malformed
// frame yields a *common.ParseError, and the caller may keep reading.  Any
// other error is a *common.ConnectionError and ends the stream.
func (c *Conn) ReadMessage() (*Message, error) {
	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		common.Log.Debugf("%s < %s", c.address, line)
		msg, err := Decode(line)
		if err != nil {
			data := make([]byte, len(line))
			copy(data, line)
			return nil, &common.ParseError{Data: data, Err: err}
		}
		return msg, nil
	}

	err := c.scanner.Err()
	switch {
	case err == nil:
		err = common.ErrConnectionClosed
	case errors.Is(err, ErrFrameTruncated), errors.Is(err, bufio.ErrTooLong):
		err = fmt.Errorf(`%w: %v`, common.ErrConnectionClosed, err)
	default:
		select {
		case <-c.closed:
			err = fmt.Errorf(`%w: %v`, common.ErrConnectionClosed, err)
		default:
		}
	}

	return nil, &common.ConnectionError{Address: c.address, Op: `read`, Err: err}
}

// Closed returns a channel that is closed once Close has been called
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// Close releases the socket.  It is safe to call more than once, only the
// first call closes the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.conn.Close()
		common.Log.Debugf("Closed connection to %s", c.address)
	})
	return c.closeErr
}

// splitLines splits on \n, dropping a trailing \r.  Data left over when the
// stream ends is a truncated frame.
func splitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[:i], []byte{'\r'}), nil
	}
	if atEOF && len(data) > 0 {
		return 0, nil, ErrFrameTruncated
	}
	if atEOF {
		return 0, nil, io.EOF
	}
	return 0, nil, nil
}
