package cache_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sirupsen/logrus"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/cachemodel/timing/cache"
)

var _ = Describe("Access hooks", func() {
	var (
		mockCtrl *gomock.Controller
		hook     *MockHook
		sut      *cache.Cache
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		hook = NewMockHook(mockCtrl)
		sut = cache.MustNew(smallConfig(cache.PolicyLRU), cache.WithHook(hook))
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should invoke hooks once per access", func() {
		var events []cache.AccessEvent
		hook.EXPECT().
			Func(gomock.Any()).
			Do(func(ctx sim.HookCtx) {
				Expect(ctx.Pos).To(BeIdenticalTo(cache.HookPosAccess))
				Expect(ctx.Domain).To(BeIdenticalTo(sut))
				events = append(events, ctx.Item.(cache.AccessEvent))
			}).
			Times(2)

		mustRead(sut, 0x90)
		_, _ = sut.Write(0x90)

		Expect(events).To(HaveLen(2))
		Expect(events[0].Outcome).To(Equal(cache.CompulsoryMiss))
		Expect(events[0].Access.Kind).To(Equal(cache.Read))
		Expect(events[0].Set).To(Equal(1))
		Expect(events[1].Outcome).To(Equal(cache.Hit))
		Expect(events[1].Access.Kind).To(Equal(cache.Write))
		Expect(events[1].Way).To(Equal(events[0].Way))
	})

	It("should not invoke hooks for rejected addresses", func() {
		config := smallConfig(cache.PolicyLRU)
		config.AddressWidth = 12
		narrow := cache.MustNew(config, cache.WithHook(hook))

		_, err := narrow.Read(0x1000)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("AccessLogHook", func() {
	It("should log every access", func() {
		var buf bytes.Buffer
		logger := logrus.New()
		logger.SetOutput(&buf)
		logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

		sut := cache.MustNew(smallConfig(cache.PolicyFIFO),
			cache.WithLogger(logger),
			cache.WithHook(cache.NewAccessLogHook(logger)))

		mustRead(sut, 0x10)
		mustRead(sut, 0x10)

		out := buf.String()
		Expect(out).To(ContainSubstring("msg=compulsory"))
		Expect(out).To(ContainSubstring("msg=hit"))
		Expect(out).To(ContainSubstring("addr=0x10"))
		Expect(out).To(ContainSubstring("cache=small"))
	})

	It("should ignore other hook positions", func() {
		var buf bytes.Buffer
		logger := logrus.New()
		logger.SetOutput(&buf)

		cache.NewAccessLogHook(logger).Func(sim.HookCtx{Pos: sim.HookPosBeforeEvent})
		Expect(buf.Len()).To(BeZero())
	})
})
