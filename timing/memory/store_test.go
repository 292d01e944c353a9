package memory_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/l0csim/timing/cache"
	"github.com/sarchlab/l0csim/timing/memory"
)

var _ = Describe("Stores", func() {
	var layout cache.Layout

	BeforeEach(func() {
		layout = cache.DefaultConfig().Layout()
	})

	It("should place each line's address in its subword", func() {
		store := memory.NewPatternStore(layout)

		Expect(store.Read(0x80)).To(Equal(uint64(0x101)<<32 | 0x100))
	})

	It("should truncate line addresses to the line width", func() {
		config := cache.DefaultConfig()
		config.LineW = 8
		config.MemWordW = 8
		store := memory.NewPatternStore(config.Layout())

		Expect(store.Read(0x1234)).To(Equal(uint64(0x34)))
	})

	It("should compute the expected line for any address", func() {
		store := memory.NewPatternStore(layout)

		Expect(memory.ExpectedLine(store, layout, 0x100)).To(Equal(uint64(0x100)))
		Expect(memory.ExpectedLine(store, layout, 0x101)).To(Equal(uint64(0x101)))
	})

	It("should overlay written words on a fallback", func() {
		store := memory.NewSparseStore(memory.NewPatternStore(layout))
		store.Write(0x80, 0xDEADBEEF)

		Expect(store.Read(0x80)).To(Equal(uint64(0xDEADBEEF)))
		Expect(store.Read(0x81)).To(Equal(uint64(0x103)<<32 | 0x102))
		Expect(memory.ExpectedLine(store, layout, 0x100)).
			To(Equal(uint64(0xDEADBEEF)))
	})

	It("should read zero without a fallback", func() {
		store := memory.NewSparseStore(nil)
		Expect(store.Read(5)).To(BeZero())
	})
})
