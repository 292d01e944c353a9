package cache_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/l0csim/timing/cache"
)

var _ = Describe("Config", func() {
	It("should provide valid defaults", func() {
		config := cache.DefaultConfig()

		Expect(config.Validate()).To(Succeed())
		Expect(config.SlotCnt).To(Equal(2))
		Expect(config.LineW).To(Equal(32))
		Expect(config.MemWordW).To(Equal(64))
		Expect(config.Coalesce).To(BeTrue())
	})

	It("should derive the memory interface layout", func() {
		l := cache.DefaultConfig().Layout()

		Expect(l.SubwordCnt).To(Equal(2))
		Expect(l.SubwordW).To(Equal(1))
		Expect(l.SlotIDW).To(Equal(1))
		Expect(l.MemAddrW).To(Equal(29))
		Expect(l.TagW).To(Equal(5))
	})

	DescribeTable("slot index width",
		func(slots, width int) {
			config := cache.DefaultConfig()
			config.SlotCnt = slots
			Expect(config.Layout().SlotIDW).To(Equal(width))
		},
		Entry("one slot", 1, 1),
		Entry("two slots", 2, 1),
		Entry("three slots", 3, 2),
		Entry("four slots", 4, 2),
		Entry("five slots", 5, 3),
		Entry("sixty-four slots", 64, 6),
	)

	DescribeTable("rejecting bad parameters",
		func(mod func(c *cache.Config), msg string) {
			config := cache.DefaultConfig()
			mod(config)

			err := config.Validate()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring(msg))
		},
		Entry("no slots", func(c *cache.Config) { c.SlotCnt = 0 }, "slot_cnt"),
		Entry("too many slots", func(c *cache.Config) { c.SlotCnt = 65 }, "slot_cnt"),
		Entry("no ports", func(c *cache.Config) { c.ReqCnt = 0 }, "req_cnt"),
		Entry("zero ref count", func(c *cache.Config) { c.RefCntMax = 0 }, "ref_cnt_max"),
		Entry("no id", func(c *cache.Config) { c.ReqIDW = 0 }, "req_id_w"),
		Entry("wide line", func(c *cache.Config) { c.LineW = 65 }, "line_w"),
		Entry("narrow memory", func(c *cache.Config) { c.MemWordW = 16 }, "mem_word_w"),
		Entry("odd subword ratio", func(c *cache.Config) {
			c.LineW = 16
			c.MemWordW = 48
		}, "power of two"),
		Entry("address narrower than subword index", func(c *cache.Config) {
			c.AddrW = 1
		}, "addr_w"),
	)

	It("should clone without sharing", func() {
		config := cache.DefaultConfig()
		clone := config.Clone()
		clone.SlotCnt = 8

		Expect(config.SlotCnt).To(Equal(2))
	})

	It("should save and load", func() {
		path := filepath.Join(GinkgoT().TempDir(), "l0c.json")

		config := cache.DefaultConfig()
		config.SlotCnt = 8
		config.Coalesce = false
		Expect(config.SaveConfig(path)).To(Succeed())

		loaded, err := cache.LoadConfig(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(config))
	})

	It("should keep defaults for fields missing from the file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "partial.json")
		Expect(os.WriteFile(path, []byte(`{"slot_cnt": 4}`), 0644)).To(Succeed())

		loaded, err := cache.LoadConfig(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.SlotCnt).To(Equal(4))
		Expect(loaded.LineW).To(Equal(32))
	})

	It("should report unreadable files", func() {
		_, err := cache.LoadConfig(filepath.Join(GinkgoT().TempDir(), "missing.json"))
		Expect(err).To(MatchError(ContainSubstring("failed to read")))
	})

	It("should report malformed files", func() {
		path := filepath.Join(GinkgoT().TempDir(), "bad.json")
		Expect(os.WriteFile(path, []byte(`{`), 0644)).To(Succeed())

		_, err := cache.LoadConfig(path)
		Expect(err).To(MatchError(ContainSubstring("failed to parse")))
	})
})

var _ = Describe("Layout", func() {
	var l cache.Layout

	BeforeEach(func() {
		config := cache.DefaultConfig()
		config.SlotCnt = 4
		config.LineW = 16
		l = config.Layout()
	})

	It("should pack request id, subword and slot", func() {
		tag := cache.CompositeTag{ReqID: 5, Subword: 3, Slot: 2}

		Expect(l.Pack(tag)).To(Equal(uint64(5<<4 | 3<<2 | 2)))
		Expect(l.Unpack(l.Pack(tag))).To(Equal(tag))
	})

	It("should split a line address into word address and subword", func() {
		Expect(l.MemAddr(0x107)).To(Equal(uint64(0x41)))
		Expect(l.SubwordOf(0x107)).To(Equal(3))
	})

	It("should extract a line from a memory word", func() {
		word := uint64(0x4444_3333_2222_1111)

		Expect(l.Extract(word, 0)).To(Equal(uint64(0x1111)))
		Expect(l.Extract(word, 2)).To(Equal(uint64(0x3333)))
		Expect(l.Extract(word, 3)).To(Equal(uint64(0x4444)))
	})
})
