package device

import (
	"context"
	"sync"
	"time"

	"github.com/pdf/goyeelight/common"
	"github.com/pdf/goyeelight/protocol/packet"
	"github.com/pdf/goyeelight/protocol/shared"
)

type response struct {
	result packet.Result
	err    error
}

// call is a request awaiting its response.  done is buffered and receives
// exactly one response, from whichever of Handle, Fail or Await removes the
// call from the pending map.
type call struct {
	ID     uint32
	Method string
	issued time.Time
	done   chan response
}

type responseMap map[uint32]*call

type requestWriter interface {
	WriteRequest(*packet.Request) error
}

// correlator matches responses to requests by id over a single connection.
// Responses may arrive in any order.
type correlator struct {
	conn      requestWriter
	unmatched func(*packet.Message)
	sequence  uint32
	pending   responseMap
	failed    error
	sync.Mutex
}

func newCorrelator(conn requestWriter, unmatched func(*packet.Message)) *correlator {
	return &correlator{
		conn:      conn,
		unmatched: unmatched,
		pending:   make(responseMap),
	}
}

// NextID reserves a request id without registering a pending call, for
// writes that are never answered
func (c *correlator) NextID() uint32 {
	c.Lock()
	defer c.Unlock()
	return c.nextID()
}

func (c *correlator) nextID() uint32 {
	for {
		c.sequence++
		if c.sequence == 0 || c.sequence > shared.MaxRequestID {
			c.sequence = 1
		}
		if _, ok := c.pending[c.sequence]; !ok {
			return c.sequence
		}
	}
}

// Issue registers a pending call then writes the request.  If the write
// fails the call is dropped and the write error returned.
func (c *correlator) Issue(method string, params []interface{}) (*call, error) {
	c.Lock()
	if c.failed != nil {
		err := c.failed
		c.Unlock()
		return nil, err
	}
	cl := &call{
		ID:     c.nextID(),
		Method: method,
		issued: time.Now(),
		done:   make(chan response, 1),
	}
	c.pending[cl.ID] = cl
	c.Unlock()

	if err := c.conn.WriteRequest(&packet.Request{ID: cl.ID, Method: method, Params: params}); err != nil {
		c.remove(cl)
		return nil, err
	}

	return cl, nil
}

// Await blocks until cl is answered, the connection fails, timeout elapses
// or ctx is done.  Giving up removes the call, a late response is then
// treated as unmatched.
func (c *correlator) Await(ctx context.Context, cl *call, timeout time.Duration) (packet.Result, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case res := <-cl.done:
		return res.result, res.err
	case <-expired:
		if c.remove(cl) {
			common.Log.Debugf("Request %d (%s) timed out after %v", cl.ID, cl.Method, timeout)
			return nil, &common.TimeoutError{RequestID: cl.ID, Method: cl.Method, After: timeout}
		}
	case <-ctx.Done():
		if c.remove(cl) {
			return nil, ctx.Err()
		}
	}

	// Fulfilled while we were giving up, the response is already buffered
	res := <-cl.done
	return res.result, res.err
}

// Handle fulfils the call msg answers, anything else is passed on to the
// unmatched handler unchanged
func (c *correlator) Handle(msg *packet.Message) {
	if msg.IsResponse() {
		c.Lock()
		cl, ok := c.pending[*msg.ID]
		if ok {
			delete(c.pending, *msg.ID)
		}
		c.Unlock()
		if ok {
			common.Log.Debugf("Request %d (%s) answered after %v", cl.ID, cl.Method, time.Since(cl.issued))
			cl.done <- response{result: msg.Result, err: msg.Err()}
			return
		}
		common.Log.Debugf("Response to unknown request %d", *msg.ID)
	}
	if c.unmatched != nil {
		c.unmatched(msg)
	}
}

// Fail fulfils every pending call with err.  Any later Issue fails with err.
func (c *correlator) Fail(err error) {
	c.Lock()
	if c.failed == nil {
		c.failed = err
	}
	pending := c.pending
	c.pending = make(responseMap)
	c.Unlock()

	for _, cl := range pending {
		cl.done <- response{err: err}
	}
}

// Pending returns the number of calls awaiting a response
func (c *correlator) Pending() int {
	c.Lock()
	defer c.Unlock()
	return len(c.pending)
}

func (c *correlator) remove(cl *call) bool {
	c.Lock()
	defer c.Unlock()
	if c.pending[cl.ID] != cl {
		return false
	}
	delete(c.pending, cl.ID)
	return true
}
