package harness_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/l0csim/timing/cache"
	"github.com/sarchlab/l0csim/timing/harness"
	"github.com/sarchlab/l0csim/timing/tags"
)

var _ = Describe("Scoreboard", func() {
	var board *harness.Scoreboard

	hit := cache.StatusResp{ID: 1, IsHit: true, Status: tags.Hit}
	miss := cache.StatusResp{ID: 1, IsMiss: true, Status: tags.Miss}
	retry := cache.StatusResp{ID: 1, MustRetry: true, Status: tags.MissCantAlloc}

	one := func(st cache.StatusResp) [][]cache.StatusResp {
		return [][]cache.StatusResp{{st}}
	}

	BeforeEach(func() {
		board = harness.NewScoreboard(4)
		board.Issue(1, 0, 0x100, 0xAA)
	})

	It("should track free ids", func() {
		Expect(board.FreeMask()).To(Equal(uint64(0b1101)))
		Expect(board.Outstanding()).To(Equal(1))
		Expect(board.Addr(1)).To(Equal(uint64(0x100)))
	})

	It("should complete a hit", func() {
		_, err := board.Observe(one(hit), []cache.DataResp{{ID: 1, Data: 0xAA}})

		Expect(err).NotTo(HaveOccurred())
		Expect(board.Outstanding()).To(BeZero())
	})

	It("should complete a miss on a later cycle", func() {
		_, err := board.Observe(one(miss), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(board.Outstanding()).To(Equal(1))

		_, err = board.Observe(nil, []cache.DataResp{{ID: 1, Data: 0xAA}})
		Expect(err).NotTo(HaveOccurred())
		Expect(board.Outstanding()).To(BeZero())
	})

	It("should hand back requests that must be retried", func() {
		resubmit, err := board.Observe(
			[][]cache.StatusResp{nil, {retry}}, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(resubmit).To(HaveKeyWithValue(1, []uint64{1}))

		_, err = board.Observe(one(miss), nil)
		Expect(err).NotTo(HaveOccurred())
	})

	DescribeTable("protocol violations",
		func(statuses [][]cache.StatusResp, data []cache.DataResp, msg string) {
			_, err := board.Observe(statuses, data)
			Expect(err).To(MatchError(ContainSubstring(msg)))
		},
		Entry("status for an idle id",
			one(cache.StatusResp{ID: 2, IsMiss: true}), nil, "not outstanding"),
		Entry("status for an id out of range",
			one(cache.StatusResp{ID: 9, IsMiss: true}), nil, "not outstanding"),
		Entry("hit without data", one(hit), nil, "is_hit with no data"),
		Entry("miss with data", one(miss),
			[]cache.DataResp{{ID: 1, Data: 0xAA}}, "is_miss with data"),
		Entry("retry with data", one(retry),
			[]cache.DataResp{{ID: 1, Data: 0xAA}}, "must_retry with data"),
		Entry("no flag", one(cache.StatusResp{ID: 1}), nil, "sets 0 flags"),
		Entry("data for an idle id", nil,
			[]cache.DataResp{{ID: 3}}, "not outstanding"),
		Entry("data twice", one(hit),
			[]cache.DataResp{{ID: 1, Data: 0xAA}, {ID: 1, Data: 0xAA}}, "twice"),
		Entry("data before status", nil,
			[]cache.DataResp{{ID: 1, Data: 0xAA}}, "before its status"),
		Entry("wrong data", one(hit),
			[]cache.DataResp{{ID: 1, Data: 0xAB}}, "unexpected data"),
	)

	It("should catch a second status", func() {
		_, err := board.Observe(one(miss), nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = board.Observe(one(miss), nil)
		Expect(err).To(MatchError(ContainSubstring("status received twice")))
	})
})
