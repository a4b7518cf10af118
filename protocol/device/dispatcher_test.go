package device

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pdf/goyeelight/common"
	"github.com/pdf/goyeelight/protocol/packet"
)

func notification(params string) *packet.Message {
	return &packet.Message{Method: `props`, Params: json.RawMessage(params)}
}

var _ = Describe("dispatcher", func() {
	var (
		props *dispatcher
		sub   *common.Subscription
	)

	BeforeEach(func() {
		props = newDispatcher(`0x1`)
		props.Merge(common.Properties{`power`: `on`, `bright`: `100`, `ct`: `4000`})
		sub = common.NewSubscription(testTarget{props})
		props.subscriptions.Add(sub)
	})

	It("updates exactly the keys present", func() {
		props.Handle(notification(`{"power":"off","bright":10}`))
		Expect(props.Snapshot()).To(Equal(common.Properties{`power`: `off`, `bright`: `10`, `ct`: `4000`}))

		var event interface{}
		Expect(sub.Events()).To(Receive(&event))
		Expect(event).To(Equal(common.EventUpdateProperties{
			ID:      `0x1`,
			Changes: common.Properties{`power`: `off`, `bright`: `10`},
		}))
	})

	It("ignores unknown properties", func() {
		props.Handle(notification(`{"colour":"blue"}`))
		Expect(props.Snapshot()).To(Equal(common.Properties{`power`: `on`, `bright`: `100`, `ct`: `4000`}))
		Expect(sub.Events()).NotTo(Receive())
	})

	It("drops notifications with non-scalar values", func() {
		props.Handle(notification(`{"power":"off","bright":{"level":10}}`))
		Expect(props.Snapshot()).To(Equal(common.Properties{`power`: `on`, `bright`: `100`, `ct`: `4000`}))
		Expect(sub.Events()).NotTo(Receive())
	})

	It("drops malformed notifications", func() {
		props.Handle(notification(`["power","off"]`))
		props.Handle(notification(`null`))
		props.Handle(&packet.Message{Method: `props`})
		props.Handle(&packet.Message{Method: `other`, Params: json.RawMessage(`{"power":"off"}`)})
		Expect(props.Snapshot()).To(HaveKeyWithValue(`power`, `on`))
		Expect(sub.Events()).NotTo(Receive())
	})

	It("does not block on a full subscriber", func() {
		for i := 0; i < common.SubscriptionChanSize*2; i++ {
			props.Handle(notification(`{"bright":"50"}`))
		}
		Expect(sub.Events()).To(HaveLen(common.SubscriptionChanSize))
	})

	It("clears the cache", func() {
		props.Clear()
		Expect(props.Snapshot()).To(BeEmpty())
	})

	It("returns independent snapshots", func() {
		snapshot := props.Snapshot()
		snapshot[`power`] = `off`
		power, _ := props.Get(`power`)
		Expect(power).To(Equal(`on`))
	})
})

type testTarget struct {
	props *dispatcher
}

func (t testTarget) NewSubscription() (*common.Subscription, error) {
	sub := common.NewSubscription(t)
	t.props.subscriptions.Add(sub)
	return sub, nil
}

func (t testTarget) CloseSubscription(sub *common.Subscription) error {
	return t.props.subscriptions.Remove(sub)
}
