package device_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pdf/goyeelight/common"
	"github.com/pdf/goyeelight/protocol/command"
	. "github.com/pdf/goyeelight/protocol/device"
	"github.com/pdf/goyeelight/protocol/flow"
	"github.com/pdf/goyeelight/protocol/packet"
)

type request struct {
	ID     uint32        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
	conn   net.Conn
}

func (r *request) reply(result ...interface{}) {
	write(r.conn, map[string]interface{}{`id`: r.ID, `result`: result})
}

func (r *request) fail(code int, message string) {
	write(r.conn, map[string]interface{}{`id`: r.ID, `error`: map[string]interface{}{`code`: code, `message`: message}})
}

func write(conn net.Conn, v interface{}) {
	data, err := json.Marshal(v)
	Expect(err).NotTo(HaveOccurred())
	_, _ = conn.Write(append(data, "\r\n"...))
}

// fakeBulb accepts control connections on loopback and queues every request
// it reads
type fakeBulb struct {
	listener net.Listener
	conns    chan net.Conn
	requests chan *request
}

func newFakeBulb() *fakeBulb {
	listener, err := net.Listen(`tcp`, `127.0.0.1:0`)
	Expect(err).NotTo(HaveOccurred())
	f := &fakeBulb{
		listener: listener,
		conns:    make(chan net.Conn, 8),
		requests: make(chan *request, 64),
	}
	go f.serve()
	return f
}

func (f *fakeBulb) serve() {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			return
		}
		f.conns <- conn
		go f.read(conn)
	}
}

func (f *fakeBulb) read(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		req := &request{conn: conn}
		if err := json.Unmarshal(scanner.Bytes(), req); err == nil {
			f.requests <- req
		}
	}
}

func (f *fakeBulb) next() *request {
	var req *request
	EventuallyWithOffset(1, f.requests).Should(Receive(&req))
	return req
}

func (f *fakeBulb) conn() net.Conn {
	var conn net.Conn
	EventuallyWithOffset(1, f.conns).Should(Receive(&conn))
	return conn
}

func (f *fakeBulb) descriptor() common.DeviceDescriptor {
	addr := f.listener.Addr().(*net.TCPAddr)
	return common.DeviceDescriptor{Address: addr.IP.String(), Port: addr.Port, ID: `0x000000000015243f`, Model: `color`}
}

func (f *fakeBulb) close() {
	_ = f.listener.Close()
	for {
		select {
		case conn := <-f.conns:
			_ = conn.Close()
		default:
			return
		}
	}
}

var _ = Describe("Bulb", func() {
	var (
		fake   *fakeBulb
		bulb   *Bulb
		config Config
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		fake = newFakeBulb()
		config = DefaultConfig()
		config.Timeout = time.Second
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	})

	JustBeforeEach(func() {
		bulb = New(fake.descriptor(), config)
	})

	AfterEach(func() {
		_ = bulb.Close()
		fake.close()
		cancel()
	})

	It("connects lazily on the first command", func() {
		Expect(bulb.State()).To(Equal(StateDisconnected))

		errCh := make(chan error, 1)
		go func() { errCh <- bulb.TurnOn(ctx) }()

		req := fake.next()
		Expect(req.Method).To(Equal(`set_power`))
		Expect(req.Params).To(Equal([]interface{}{`on`, `smooth`, float64(300)}))
		req.reply(`ok`)

		Eventually(errCh).Should(Receive(BeNil()))
		Expect(bulb.State()).To(Equal(StateConnected))
	})

	It("applies per call options", func() {
		errCh := make(chan error, 1)
		go func() {
			errCh <- bulb.SetColorTemp(ctx, 2700,
				WithEffect(command.EffectSudden),
				WithDuration(time.Second),
				WithLight(command.LightAmbient),
			)
		}()

		req := fake.next()
		Expect(req.Method).To(Equal(`bg_set_ct_abx`))
		Expect(req.Params).To(Equal([]interface{}{float64(2700), `sudden`, float64(1000)}))
		req.reply(`ok`)
		Eventually(errCh).Should(Receive(BeNil()))
	})

	It("validates before any I/O", func() {
		err := bulb.SetBrightness(ctx, 0)
		Expect(err).To(BeAssignableToTypeOf(&common.ValidationError{}))

		err = bulb.StartFlow(ctx, flow.Flow{})
		Expect(err).To(BeAssignableToTypeOf(&common.ValidationError{}))

		Consistently(fake.conns, 100*time.Millisecond).ShouldNot(Receive())
		Expect(bulb.State()).To(Equal(StateDisconnected))
	})

	It("rejects methods the bulb does not support", func() {
		desc := fake.descriptor()
		desc.Support = []string{`get_prop`, `set_power`}
		bulb = New(desc, config)

		err := bulb.SetName(ctx, `desk`)
		var validationErr *common.ValidationError
		Expect(errors.As(err, &validationErr)).To(BeTrue())
		Expect(validationErr.Field).To(Equal(`method`))
		Consistently(fake.conns, 100*time.Millisecond).ShouldNot(Receive())
	})

	It("fails to connect with a connection error", func() {
		fake.close()
		err := bulb.Toggle(ctx)
		Expect(common.IsFatal(err)).To(BeTrue())
		Expect(bulb.State()).To(Equal(StateDisconnected))
	})

	It("correlates concurrent requests answered out of order", func() {
		const n = 10
		type result struct {
			index int
			props common.Properties
			err   error
		}
		results := make(chan result, n)
		for i := 0; i < n; i++ {
			go func(i int) {
				props, err := bulb.GetProperties(ctx, common.PropName)
				results <- result{index: i, props: props, err: err}
			}(i)
		}

		requests := make([]*request, n)
		for i := range requests {
			requests[i] = fake.next()
		}
		for i := n - 1; i >= 0; i-- {
			requests[i].reply(fmt.Sprintf(`bulb-%d`, requests[i].ID))
		}

		seen := map[string]bool{}
		for i := 0; i < n; i++ {
			var r result
			Eventually(results).Should(Receive(&r))
			Expect(r.err).NotTo(HaveOccurred())
			seen[r.props[common.PropName]] = true
		}
		for _, req := range requests {
			Expect(seen).To(HaveKey(`bulb-` + strconv.Itoa(int(req.ID))))
		}
	})

	It("fails every pending request when the connection closes", func() {
		const k = 5
		sub, err := bulb.NewSubscription()
		Expect(err).NotTo(HaveOccurred())

		responses := make([]<-chan Response, k)
		for i := range responses {
			responses[i] = bulb.SendAsync(ctx, command.Toggle{})
		}
		for i := 0; i < k; i++ {
			fake.next()
		}
		fake.conn().Close()

		for _, ch := range responses {
			var res Response
			Eventually(ch).Should(Receive(&res))
			Expect(common.IsFatal(res.Err)).To(BeTrue())
			Expect(errors.Is(res.Err, common.ErrConnectionClosed)).To(BeTrue())
		}
		Eventually(bulb.State).Should(Equal(StateDisconnected))
		Expect(bulb.CachedProperties()).To(BeEmpty())
		Eventually(sub.Events()).Should(Receive(BeAssignableToTypeOf(common.EventDisconnected{})))
	})

	It("times out when the bulb does not answer", func() {
		config.Timeout = 50 * time.Millisecond
		bulb = New(fake.descriptor(), config)

		err := bulb.Toggle(ctx)
		Expect(errors.Is(err, common.ErrTimeout)).To(BeTrue())
		Expect(bulb.State()).To(Equal(StateConnected))
	})

	It("returns device errors verbatim and stays connected", func() {
		errCh := make(chan error, 1)
		go func() { errCh <- bulb.SetDefault(ctx) }()
		fake.next().fail(-1, `unsupported method`)

		var err error
		Eventually(errCh).Should(Receive(&err))
		Expect(err).To(Equal(&common.DeviceError{Code: -1, Message: `unsupported method`}))
		Expect(bulb.State()).To(Equal(StateConnected))
	})

	It("drops the connection when the bulb refuses more commands", func() {
		errCh := make(chan error, 1)
		go func() { errCh <- bulb.SetDefault(ctx) }()
		fake.next().fail(-1, `client quota exceeded`)

		var err error
		Eventually(errCh).Should(Receive(&err))
		Expect(err).To(BeAssignableToTypeOf(&common.DeviceError{}))
		Eventually(bulb.State).Should(Equal(StateDisconnected))
	})

	It("folds notifications into the cache", func() {
		sub, err := bulb.NewSubscription()
		Expect(err).NotTo(HaveOccurred())
		Expect(bulb.Connect(ctx)).To(Succeed())
		conn := fake.conn()
		Eventually(sub.Events()).Should(Receive(Equal(common.EventConnected{ID: bulb.ID()})))

		write(conn, map[string]interface{}{`method`: `props`, `params`: map[string]interface{}{`power`: `on`, `bright`: `10`}})
		Eventually(sub.Events()).Should(Receive(Equal(common.EventUpdateProperties{
			ID:      bulb.ID(),
			Changes: common.Properties{`power`: `on`, `bright`: `10`},
		})))

		_, _ = conn.Write([]byte("{\"method\":\"props\",\"params\":{\"bright\":[1]}}\r\nnot json\r\n"))
		write(conn, map[string]interface{}{`method`: `props`, `params`: map[string]interface{}{`ct`: 2700}})
		Eventually(sub.Events()).Should(Receive(Equal(common.EventUpdateProperties{
			ID:      bulb.ID(),
			Changes: common.Properties{`ct`: `2700`},
		})))

		Expect(bulb.CachedProperties()).To(Equal(common.Properties{`power`: `on`, `bright`: `10`, `ct`: `2700`}))
		Expect(bulb.State()).To(Equal(StateConnected))
	})

	It("queries properties and caches the known ones", func() {
		propsCh := make(chan common.Properties, 1)
		go func() {
			defer GinkgoRecover()
			props, err := bulb.GetProperties(ctx, `power`, `bright`, `bg_power`, `lamp_color`)
			Expect(err).NotTo(HaveOccurred())
			propsCh <- props
		}()

		req := fake.next()
		Expect(req.Method).To(Equal(`get_prop`))
		Expect(req.Params).To(Equal([]interface{}{`power`, `bright`, `bg_power`, `lamp_color`}))
		req.reply(`on`, `80`, ``, `blue`)

		Eventually(propsCh).Should(Receive(Equal(common.Properties{`power`: `on`, `bright`: `80`, `bg_power`: ``, `lamp_color`: `blue`})))
		Expect(bulb.CachedProperties()).To(Equal(common.Properties{`power`: `on`, `bright`: `80`}))
	})

	It("reads scheduled power off", func() {
		minutes := make(chan int, 1)
		go func() {
			defer GinkgoRecover()
			m, err := bulb.CronGet(ctx)
			Expect(err).NotTo(HaveOccurred())
			minutes <- m
		}()

		req := fake.next()
		Expect(req.Method).To(Equal(`cron_get`))
		req.reply(map[string]interface{}{`type`: 0, `delay`: 15, `mix`: 0})
		Eventually(minutes).Should(Receive(Equal(15)))
	})

	Context("with AutoOn", func() {
		BeforeEach(func() {
			config.AutoOn = true
		})

		It("switches the bulb on before changing it", func() {
			errCh := make(chan error, 1)
			go func() { errCh <- bulb.SetBrightness(ctx, 50) }()

			req := fake.next()
			Expect(req.Method).To(Equal(`get_prop`))
			Expect(req.Params).To(Equal([]interface{}{`power`}))
			req.reply(`off`)

			req = fake.next()
			Expect(req.Method).To(Equal(`set_power`))
			req.reply(`ok`)

			req = fake.next()
			Expect(req.Method).To(Equal(`set_bright`))
			req.reply(`ok`)

			Eventually(errCh).Should(Receive(BeNil()))
		})
	})

	Describe("music mode", func() {
		startMusic := func() net.Conn {
			errCh := make(chan error, 1)
			go func() { errCh <- bulb.StartMusic(ctx, `127.0.0.1`, 0) }()

			req := fake.next()
			Expect(req.Method).To(Equal(`set_music`))
			Expect(req.Params).To(HaveLen(3))
			Expect(req.Params[0]).To(Equal(float64(1)))
			Expect(req.Params[1]).To(Equal(`127.0.0.1`))

			music, err := net.Dial(`tcp`, net.JoinHostPort(`127.0.0.1`, strconv.Itoa(int(req.Params[2].(float64)))))
			Expect(err).NotTo(HaveOccurred())
			go fake.read(music)
			req.reply(`ok`)

			Eventually(errCh).Should(Receive(BeNil()))
			Expect(bulb.State()).To(Equal(StateMusicMode))
			Expect(bulb.MusicMode()).To(BeTrue())
			return music
		}

		It("refuses to switch while a request is in flight", func() {
			pending := bulb.SendAsync(ctx, command.GetProp{Names: []string{`power`}})
			req := fake.next()

			err := bulb.StartMusic(ctx, `127.0.0.1`, 0)
			var stateErr *common.InvalidStateError
			Expect(errors.As(err, &stateErr)).To(BeTrue())
			Expect(bulb.MusicMode()).To(BeFalse())

			req.reply(`on`)
			Eventually(pending).Should(Receive(HaveField(`Err`, BeNil())))
		})

		It("streams commands without waiting", func() {
			music := startMusic()
			defer music.Close()

			Expect(bulb.SetBrightness(ctx, 42)).To(Succeed())
			req := fake.next()
			Expect(req.conn).To(Equal(music))
			Expect(req.Method).To(Equal(`set_bright`))
			Expect(req.Params[0]).To(Equal(float64(42)))

			result, err := bulb.Send(ctx, command.Toggle{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(packet.Result{`ok`}))
			fake.next()
		})

		It("rejects queries", func() {
			music := startMusic()
			defer music.Close()

			_, err := bulb.GetProperties(ctx, `power`)
			Expect(err).To(BeAssignableToTypeOf(&common.InvalidStateError{}))
			_, err = bulb.CronGet(ctx)
			Expect(err).To(BeAssignableToTypeOf(&common.InvalidStateError{}))
		})

		It("leaves music mode on request", func() {
			music := startMusic()
			defer music.Close()

			errCh := make(chan error, 1)
			go func() { errCh <- bulb.StopMusic(ctx) }()

			req := fake.next()
			Expect(req.Method).To(Equal(`set_music`))
			Expect(req.Params).To(Equal([]interface{}{float64(0)}))
			req.reply(`ok`)

			Eventually(errCh).Should(Receive(BeNil()))
			Expect(bulb.State()).To(Equal(StateConnected))
		})

		It("leaves music mode when the bulb hangs up", func() {
			music := startMusic()
			Expect(music.Close()).To(Succeed())

			Eventually(bulb.MusicMode).Should(BeFalse())
			Expect(bulb.State()).To(Equal(StateConnected))
		})

		It("reports leaving music mode on disconnect", func() {
			sub, err := bulb.NewSubscription()
			Expect(err).NotTo(HaveOccurred())
			music := startMusic()
			defer music.Close()

			Expect(bulb.Disconnect()).To(Succeed())
			Eventually(sub.Events()).Should(Receive(Equal(common.EventMusicMode{ID: bulb.ID(), Enabled: false})))
			Expect(bulb.MusicMode()).To(BeFalse())
		})

		Context("when the bulb never connects back", func() {
			BeforeEach(func() {
				config.MusicTimeout = 100 * time.Millisecond
			})

			It("tells the bulb to stop", func() {
				errCh := make(chan error, 1)
				go func() { errCh <- bulb.StartMusic(ctx, `127.0.0.1`, 0) }()

				req := fake.next()
				Expect(req.Method).To(Equal(`set_music`))
				Expect(req.Params[0]).To(Equal(float64(1)))
				req.reply(`ok`)

				req = fake.next()
				Expect(req.Method).To(Equal(`set_music`))
				Expect(req.Params).To(Equal([]interface{}{float64(0)}))
				req.reply(`ok`)

				var err error
				Eventually(errCh).Should(Receive(&err))
				var connErr *common.ConnectionError
				Expect(errors.As(err, &connErr)).To(BeTrue())
				Expect(connErr.Err).To(Equal(common.ErrTimeout))
				Expect(bulb.MusicMode()).To(BeFalse())
			})
		})
	})

	It("can reconnect after Disconnect", func() {
		Expect(bulb.Connect(ctx)).To(Succeed())
		fake.conn()
		Expect(bulb.Disconnect()).To(Succeed())
		Expect(bulb.State()).To(Equal(StateDisconnected))

		errCh := make(chan error, 1)
		go func() { errCh <- bulb.Toggle(ctx) }()
		fake.conn()
		fake.next().reply(`ok`)
		Eventually(errCh).Should(Receive(BeNil()))
	})

	It("can not be used once closed", func() {
		sub, err := bulb.NewSubscription()
		Expect(err).NotTo(HaveOccurred())

		Expect(bulb.Close()).To(Succeed())
		Expect(bulb.Close()).To(Equal(common.ErrClosed))
		Expect(bulb.Toggle(ctx)).To(Equal(common.ErrClosed))
		Eventually(sub.Events()).Should(BeClosed())

		_, err = bulb.NewSubscription()
		Expect(err).To(Equal(common.ErrClosed))
	})
})
