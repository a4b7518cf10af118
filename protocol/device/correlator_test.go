package device

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pdf/goyeelight/common"
	"github.com/pdf/goyeelight/protocol/packet"
)

type recordingWriter struct {
	requests []*packet.Request
	err      error
	sync.Mutex
}

func (w *recordingWriter) WriteRequest(req *packet.Request) error {
	w.Lock()
	defer w.Unlock()
	if w.err != nil {
		return w.err
	}
	w.requests = append(w.requests, req)
	return nil
}

func (w *recordingWriter) sent() []*packet.Request {
	w.Lock()
	defer w.Unlock()
	return append([]*packet.Request(nil), w.requests...)
}

func responseTo(id uint32, result ...interface{}) *packet.Message {
	return &packet.Message{ID: &id, Result: result}
}

var _ = Describe("correlator", func() {
	var (
		writer    *recordingWriter
		unmatched chan *packet.Message
		calls     *correlator
		ctx       = context.Background()
	)

	BeforeEach(func() {
		writer = new(recordingWriter)
		unmatched = make(chan *packet.Message, 8)
		calls = newCorrelator(writer, func(msg *packet.Message) {
			unmatched <- msg
		})
	})

	It("resolves concurrent requests answered out of order", func() {
		const n = 20
		results := make([]packet.Result, n)
		errs := make([]error, n)

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				cl, err := calls.Issue(`get_prop`, []interface{}{i})
				if err != nil {
					errs[i] = err
					return
				}
				results[i], errs[i] = calls.Await(ctx, cl, time.Second)
			}(i)
		}

		Eventually(func() []*packet.Request { return writer.sent() }).Should(HaveLen(n))
		sent := writer.sent()
		for i := len(sent) - 1; i >= 0; i-- {
			calls.Handle(responseTo(sent[i].ID, sent[i].Params[0]))
		}
		wg.Wait()

		for i := 0; i < n; i++ {
			Expect(errs[i]).NotTo(HaveOccurred())
			Expect(results[i]).To(Equal(packet.Result{i}))
		}
		Expect(calls.Pending()).To(BeZero())
		Expect(unmatched).NotTo(Receive())
	})

	It("hands the device error to the caller", func() {
		cl, err := calls.Issue(`set_bright`, nil)
		Expect(err).NotTo(HaveOccurred())
		calls.Handle(&packet.Message{ID: &cl.ID, Error: &packet.Error{Code: -1, Message: `unsupported method`}})

		_, err = calls.Await(ctx, cl, time.Second)
		Expect(err).To(Equal(&common.DeviceError{Code: -1, Message: `unsupported method`}))
	})

	It("times out and forgets the request", func() {
		cl, err := calls.Issue(`toggle`, nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = calls.Await(ctx, cl, 20*time.Millisecond)
		Expect(errors.Is(err, common.ErrTimeout)).To(BeTrue())
		var timeoutErr *common.TimeoutError
		Expect(errors.As(err, &timeoutErr)).To(BeTrue())
		Expect(timeoutErr.RequestID).To(Equal(cl.ID))
		Expect(calls.Pending()).To(BeZero())

		late := responseTo(cl.ID, `ok`)
		calls.Handle(late)
		Expect(unmatched).To(Receive(Equal(late)))
	})

	It("forgets the request when the context is cancelled", func() {
		cl, err := calls.Issue(`toggle`, nil)
		Expect(err).NotTo(HaveOccurred())

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = calls.Await(cctx, cl, time.Second)
		Expect(err).To(MatchError(context.Canceled))
		Expect(calls.Pending()).To(BeZero())
	})

	It("fails every pending request", func() {
		const k = 5
		pending := make([]*call, k)
		for i := range pending {
			cl, err := calls.Issue(`toggle`, nil)
			Expect(err).NotTo(HaveOccurred())
			pending[i] = cl
		}
		Expect(calls.Pending()).To(Equal(k))

		failure := &common.ConnectionError{Address: `bulb`, Op: `read`, Err: common.ErrConnectionClosed}
		calls.Fail(failure)

		for _, cl := range pending {
			_, err := calls.Await(ctx, cl, time.Second)
			Expect(err).To(Equal(failure))
		}
		Expect(calls.Pending()).To(BeZero())

		_, err := calls.Issue(`toggle`, nil)
		Expect(err).To(Equal(failure))
	})

	It("drops the request when the write fails", func() {
		writer.err = errors.New(`broken pipe`)
		_, err := calls.Issue(`toggle`, nil)
		Expect(err).To(MatchError(`broken pipe`))
		Expect(calls.Pending()).To(BeZero())
	})

	It("passes notifications through", func() {
		msg := &packet.Message{Method: `props`}
		calls.Handle(msg)
		Expect(unmatched).To(Receive(BeIdenticalTo(msg)))
	})

	It("wraps request ids and never uses zero", func() {
		calls.sequence = 1<<31 - 2
		Expect(calls.NextID()).To(Equal(uint32(1<<31 - 1)))
		Expect(calls.NextID()).To(Equal(uint32(1)))
	})
})
