package harness_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/l0csim/timing/cache"
	"github.com/sarchlab/l0csim/timing/harness"
	"github.com/sarchlab/l0csim/timing/tags"
)

// driftingStore returns a different word on every read.
type driftingStore struct {
	reads uint64
}

func (s *driftingStore) Read(addr uint64) uint64 {
	s.reads++
	return (addr + s.reads) * 0x1_0000_0001
}

var _ = Describe("Harness", func() {
	var (
		cacheConfig *cache.Config
		config      harness.Config
	)

	BeforeEach(func() {
		cacheConfig = cache.DefaultConfig()
		config = harness.DefaultConfig()
	})

	run := func(opts ...harness.Option) (harness.Result, error) {
		h, err := harness.New(cacheConfig, config, opts...)
		Expect(err).NotTo(HaveOccurred())

		return h.Run()
	}

	DescribeTable("randomized runs",
		func(mod func(c *cache.Config, h *harness.Config)) {
			mod(cacheConfig, &config)

			res, err := run()

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Passed).To(BeTrue())
			Expect(res.Issued).To(Equal(uint64(config.Requests)))
			Expect(res.Completed).To(Equal(res.Issued))
			Expect(res.Cache.Fills).To(Equal(res.Cache.MemFetches))
			Expect(res.Memory.Responses).To(Equal(res.Cache.MemFetches))
		},
		Entry("default", func(c *cache.Config, h *harness.Config) {}),
		Entry("another seed", func(c *cache.Config, h *harness.Config) {
			h.Seed = 42
			h.Memory.Seed = 43
		}),
		Entry("retry mode", func(c *cache.Config, h *harness.Config) {
			c.Coalesce = false
		}),
		Entry("one slot", func(c *cache.Config, h *harness.Config) {
			c.SlotCnt = 1
		}),
		Entry("eight slots, wide pool", func(c *cache.Config, h *harness.Config) {
			c.SlotCnt = 8
			h.AddrPool = 16
		}),
		Entry("single address", func(c *cache.Config, h *harness.Config) {
			h.AddrPool = 1
		}),
		Entry("two ports", func(c *cache.Config, h *harness.Config) {
			c.ReqCnt = 2
			c.SlotCnt = 4
		}),
		Entry("four ports, one reference each", func(c *cache.Config, h *harness.Config) {
			c.ReqCnt = 4
			c.SlotCnt = 3
			c.RefCntMax = 1
			c.ReqIDW = 4
		}),
		Entry("four lines per memory word", func(c *cache.Config, h *harness.Config) {
			c.LineW = 16
			c.AddrW = 31
		}),
		Entry("one line per memory word", func(c *cache.Config, h *harness.Config) {
			c.MemWordW = 32
		}),
		Entry("immediate memory", func(c *cache.Config, h *harness.Config) {
			h.Memory.MinLatency = 0
			h.Memory.MaxLatency = 0
			h.Memory.StallProb = 0
			h.BubbleProb = 0
		}),
		Entry("slow memory", func(c *cache.Config, h *harness.Config) {
			h.Memory.MinLatency = 20
			h.Memory.MaxLatency = 60
			h.Memory.StallProb = 0.8
		}),
		Entry("many requests", func(c *cache.Config, h *harness.Config) {
			h.Requests = 2000
		}),
	)

	It("should coalesce and hit under a small address pool", func() {
		config.AddrPool = 2
		config.Requests = 500

		res, err := run()

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Cache.Hits).To(BeNumerically(">", 0))
		Expect(res.Cache.Coalesced).To(BeNumerically(">", 0))
		Expect(res.Cache.MemFetches).To(BeNumerically("<", 500))
	})

	It("should finish at once with no requests", func() {
		config.Requests = 0

		res, err := run()

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Passed).To(BeTrue())
		Expect(res.Cycles).To(Equal(uint64(1)))
	})

	It("should time out", func() {
		config.MaxCycles = 5

		res, err := run()

		Expect(errors.Is(err, harness.ErrTimeout)).To(BeTrue())
		Expect(res.Passed).To(BeFalse())
	})

	It("should catch returned data that does not match memory", func() {
		res, err := run(harness.WithStore(&driftingStore{}))

		Expect(err).To(MatchError(ContainSubstring("unexpected data")))
		Expect(res.Passed).To(BeFalse())
	})

	It("should report a broken invariant as an error", func() {
		everything := tags.PolicyFunc(func(view tags.View, hits uint64) uint64 {
			return uint64(1)<<uint(view.SlotCnt()) - 1
		})
		config.AddrPool = 8

		_, err := run(harness.WithAvailabilityPolicy(everything))

		var v *tags.InvariantViolation
		Expect(errors.As(err, &v)).To(BeTrue())
	})

	It("should step a bounded number of cycles", func() {
		h, err := harness.New(cacheConfig, config)
		Expect(err).NotTo(HaveOccurred())

		Expect(h.RunCycles(10)).To(BeTrue())
		Expect(h.Result().Cycles).To(Equal(uint64(10)))
		Expect(h.Done()).To(BeFalse())
		Expect(h.Err()).NotTo(HaveOccurred())
	})

	It("should reject a bad config", func() {
		config.BubbleProb = 1
		_, err := harness.New(cacheConfig, config)
		Expect(err).To(MatchError(ContainSubstring("bubble_prob")))

		config = harness.DefaultConfig()
		config.Memory.StallProb = -1
		_, err = harness.New(cacheConfig, config)
		Expect(err).To(MatchError(ContainSubstring("stall_prob")))
	})
})
