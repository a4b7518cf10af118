package protocol_test

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"

	"github.com/pdf/goyeelight/common"
	"github.com/pdf/goyeelight/mocks"
	. "github.com/pdf/goyeelight/protocol"
	"github.com/pdf/goyeelight/protocol/device"
)

func advertisement(id, address string) []byte {
	return []byte(strings.Join([]string{
		`HTTP/1.1 200 OK`,
		`Location: yeelight://` + address,
		`id: ` + id,
		`model: color`,
		`power: on`,
	}, "\r\n") + "\r\n\r\n")
}

// responder answers every search with the advertisements currently set
type responder struct {
	conn    *net.UDPConn
	replies [][]byte
	sync.Mutex
}

func newResponder() *responder {
	conn, err := net.ListenUDP(`udp4`, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	Expect(err).NotTo(HaveOccurred())
	r := &responder{conn: conn}
	go func() {
		buf := make([]byte, 1500)
		for {
			_, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			r.Lock()
			replies := r.replies
			r.Unlock()
			for _, reply := range replies {
				_, _ = conn.WriteToUDP(reply, addr)
			}
		}
	}()
	return r
}

func (r *responder) set(replies ...[]byte) {
	r.Lock()
	r.replies = replies
	r.Unlock()
}

var _ = Describe("LAN", func() {
	var (
		lan       *LAN
		client    *mocks.Client
		bulbs     *responder
		added     chan common.Device
		removed   chan string
		timeout   = time.Second
		discovery = 150 * time.Millisecond
	)

	BeforeEach(func() {
		bulbs = newResponder()
		added = make(chan common.Device, 10)
		removed = make(chan string, 10)

		client = new(mocks.Client)
		client.On(`GetTimeout`).Return(&timeout)
		client.On(`AddDevice`, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
			added <- args.Get(0).(common.Device)
		})
		client.On(`RemoveDeviceByID`, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
			removed <- args.String(0)
		})

		lan = &LAN{
			DiscoveryTimeout: discovery,
			Address:          bulbs.conn.LocalAddr().String(),
		}
		lan.SetClient(client)
	})

	AfterEach(func() {
		_ = lan.Close()
		_ = bulbs.conn.Close()
	})

	It("adds discovered bulbs to the client", func() {
		bulbs.set(advertisement(`0x1`, `10.0.0.1:55443`), advertisement(`0x2`, `10.0.0.2:55443`))
		Expect(lan.Discover(context.Background())).To(Succeed())

		Expect(added).To(HaveLen(2))
		first := (<-added).(*device.Bulb)
		Expect(first.ID()).To(Equal(`0x1`))
		Expect(first.Descriptor().Endpoint()).To(Equal(`10.0.0.1:55443`))
		Expect(first.CachedProperties()).To(HaveKeyWithValue(`power`, `on`))
		Expect((<-added).ID()).To(Equal(`0x2`))
	})

	It("does not add a known bulb again", func() {
		bulbs.set(advertisement(`0x1`, `10.0.0.1:55443`))
		Expect(lan.Discover(context.Background())).To(Succeed())
		Expect(lan.Discover(context.Background())).To(Succeed())
		Expect(added).To(HaveLen(1))
		Expect(removed).To(BeEmpty())
	})

	It("replaces a bulb that moved", func() {
		bulbs.set(advertisement(`0x1`, `10.0.0.1:55443`))
		Expect(lan.Discover(context.Background())).To(Succeed())
		old := <-added

		bulbs.set(advertisement(`0x1`, `10.0.0.7:55443`))
		Expect(lan.Discover(context.Background())).To(Succeed())
		Expect(removed).To(Receive(Equal(`0x1`)))
		moved := <-added
		Expect(moved.Descriptor().Endpoint()).To(Equal(`10.0.0.7:55443`))
		Expect(old.(*device.Bulb).Close()).To(Equal(common.ErrClosed))
	})

	It("expires bulbs that stop answering", func() {
		bulbs.set(advertisement(`0x1`, `10.0.0.1:55443`), advertisement(`0x2`, `10.0.0.2:55443`))
		Expect(lan.Discover(context.Background())).To(Succeed())
		Expect(added).To(HaveLen(2))

		time.Sleep(300 * time.Millisecond)
		bulbs.set(advertisement(`0x1`, `10.0.0.1:55443`))
		Expect(lan.Discover(context.Background())).To(Succeed())
		Expect(removed).To(BeEmpty())

		Expect(lan.Discover(context.Background())).To(Succeed())
		Expect(removed).To(Receive(Equal(`0x2`)))
		Expect(removed).To(BeEmpty())
	})

	It("returns the context error when cancelled", func() {
		lan.DiscoveryTimeout = 5 * time.Second
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(50*time.Millisecond, cancel)
		Expect(lan.Discover(ctx)).To(MatchError(context.Canceled))
	})

	It("fails on an unknown interface", func() {
		lan.Interface = `does-not-exist0`
		err := lan.Discover(context.Background())
		var connErr *common.ConnectionError
		Expect(err).To(BeAssignableToTypeOf(connErr))
	})

	Describe("NewDevice", func() {
		It("adds a bulb by address", func() {
			dev, err := lan.NewDevice(`10.0.0.9`)
			Expect(err).NotTo(HaveOccurred())
			Expect(dev.ID()).To(Equal(`10.0.0.9:55443`))
			Expect(added).To(Receive(Equal(dev)))
		})

		It("returns the existing bulb for the same address", func() {
			first, err := lan.NewDevice(`10.0.0.9:55443`)
			Expect(err).NotTo(HaveOccurred())
			second, err := lan.NewDevice(`10.0.0.9`)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(BeIdenticalTo(first))
			Expect(added).To(HaveLen(1))
		})

		It("rejects bad addresses", func() {
			for _, address := range []string{``, `:55443`, `10.0.0.9:0`, `10.0.0.9:port`} {
				_, err := lan.NewDevice(address)
				var validationErr *common.ValidationError
				Expect(err).To(BeAssignableToTypeOf(validationErr), address)
			}
		})

		It("never expires added bulbs", func() {
			_, err := lan.NewDevice(`10.0.0.9`)
			Expect(err).NotTo(HaveOccurred())
			Expect(lan.Discover(context.Background())).To(Succeed())
			time.Sleep(50 * time.Millisecond)
			Expect(lan.Discover(context.Background())).To(Succeed())
			Expect(removed).To(BeEmpty())
		})
	})

	Describe("Close", func() {
		It("closes the bulbs", func() {
			dev, err := lan.NewDevice(`10.0.0.9`)
			Expect(err).NotTo(HaveOccurred())
			Expect(lan.Close()).To(Succeed())
			_, err = dev.NewSubscription()
			Expect(err).To(Equal(common.ErrClosed))
		})

		It("refuses further use", func() {
			Expect(lan.Close()).To(Succeed())
			Expect(lan.Close()).To(Equal(common.ErrClosed))
			Expect(lan.Discover(context.Background())).To(Equal(common.ErrClosed))
			_, err := lan.NewDevice(`10.0.0.9`)
			Expect(err).To(Equal(common.ErrClosed))
		})

		It("is safe against concurrent NewDevice calls", func() {
			for round := 0; round < 200; round++ {
				p := new(LAN)
				var wg sync.WaitGroup
				for i := 0; i < 16; i++ {
					wg.Add(1)
					go func(i int) {
						defer GinkgoRecover()
						defer wg.Done()
						dev, err := p.NewDevice(fmt.Sprintf(`10.0.%d.%d`, round%256, i+1))
						if err != nil {
							Expect(err).To(Equal(common.ErrClosed))
							Expect(dev).To(BeNil())
						}
					}(i)
				}
				Expect(p.Close()).To(Succeed())
				wg.Wait()
				_, err := p.NewDevice(`10.0.0.1`)
				Expect(err).To(Equal(common.ErrClosed))
			}
		})
	})
})
