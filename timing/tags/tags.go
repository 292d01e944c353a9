package tags

import (
	"fmt"
	"math/bits"

	"github.com/sarchlab/l0csim/timing/arbiter"
)

// Request is one request port's input in a cycle.
type Request struct {
	Valid bool
	Addr  uint64
}

// Lookup is the combinational result of classifying one cycle's requests.
type Lookup struct {
	// Statuses and Slots are indexed by request port and only meaningful
	// where the request is valid.
	Statuses []Status
	// Slots holds the hit slot for hits and the granted slot for Miss.
	Slots []int

	// Hits is the union of all hit targets.
	Hits uint64
	// NeedsAlloc has bit r set when request r is valid and missed.
	NeedsAlloc uint64
	// Avail is the availability mask the allocation arbiter saw.
	Avail uint64
	Alloc Grant

	allocAddr uint64
	hitMask   []uint64
}

// Fill commits a memory response into a slot.
type Fill struct {
	Valid bool
	Slot  int
	Data  uint64
}

// Update carries the events, besides the lookup, that touch the table at
// the next edge.
type Update struct {
	Fill       Fill
	Decrements []int
}

// Tags is the tag unit: table, hit classifier, allocator and the
// reference count tracker.
type Tags struct {
	table  *Table
	alloc  *Allocator
	policy AvailabilityPolicy
	reqCnt int

	delta []int
}

// New creates a tag unit. A nil policy selects RefCountPolicy.
func New(
	slotCnt, reqCnt int,
	refCntMax uint32,
	policy AvailabilityPolicy,
) *Tags {
	if reqCnt < 1 || reqCnt > arbiter.MaxCandidates {
		panic(fmt.Sprintf("tags: request count %d out of range [1,%d]",
			reqCnt, arbiter.MaxCandidates))
	}

	if policy == nil {
		policy = RefCountPolicy{}
	}

	return &Tags{
		table:  NewTable(slotCnt, refCntMax),
		alloc:  NewAllocator(slotCnt, reqCnt),
		policy: policy,
		reqCnt: reqCnt,
		delta:  make([]int, slotCnt),
	}
}

// Table returns the slot table.
func (t *Tags) Table() *Table {
	return t.table
}

// Allocator returns the allocation arbiter.
func (t *Tags) Allocator() *Allocator {
	return t.alloc
}

// ReqCnt returns the number of request ports.
func (t *Tags) ReqCnt() int {
	return t.reqCnt
}

// Classify compares every valid request against the table, arbitrates the
// cycle's allocation and assigns each request its status. It does not
// change any state.
func (t *Tags) Classify(reqs []Request) Lookup {
	if len(reqs) != t.reqCnt {
		panic(fmt.Sprintf("tags: %d requests for %d ports", len(reqs), t.reqCnt))
	}

	l := Lookup{
		Statuses: make([]Status, t.reqCnt),
		Slots:    make([]int, t.reqCnt),
		hitMask:  make([]uint64, t.reqCnt),
	}

	for r, req := range reqs {
		if !req.Valid {
			continue
		}

		l.hitMask[r] = t.hitOneHot(req.Addr)
		l.Hits |= l.hitMask[r]

		if l.hitMask[r] == 0 {
			l.NeedsAlloc |= uint64(1) << uint(r)
		}
	}

	if l.NeedsAlloc != 0 {
		l.Avail = t.policy.Available(t.table, l.Hits)
	}

	l.Alloc = t.alloc.Grant(l.Avail, l.NeedsAlloc)
	if l.Alloc.Valid {
		l.allocAddr = reqs[l.Alloc.Req].Addr
	}

	for r, req := range reqs {
		if !req.Valid {
			continue
		}

		l.Statuses[r], l.Slots[r] = t.status(&l, r)
	}

	return l
}

// hitOneHot returns the slot holding addr as a one-hot mask. Tags are unique
// across valid slots, which commit asserts, so at most one bit is set.
func (t *Tags) hitOneHot(addr uint64) uint64 {
	slot, ok := t.table.Lookup(addr)
	if !ok {
		return 0
	}

	return uint64(1) << uint(slot)
}

func (t *Tags) status(l *Lookup, r int) (Status, int) {
	hit := l.hitMask[r]
	if hit != 0 {
		slot := bits.TrailingZeros64(hit)
		if t.table.Slot(slot).Filled {
			return Hit, slot
		}

		return HitBeingFilled, slot
	}

	if l.Alloc.Valid && l.Alloc.Req == r {
		return Miss, l.Alloc.Slot
	}

	return MissCantAlloc, 0
}

// Commit applies a lookup and the cycle's other events at the clock edge.
// All reference count changes to a slot are merged into one delta.
func (t *Tags) Commit(l Lookup, u Update) {
	for i := range t.delta {
		t.delta[i] = 0
	}

	touched := uint64(0)

	for r := range l.hitMask {
		if l.hitMask[r] == 0 {
			continue
		}

		s := l.Slots[r]
		t.delta[s]++
		touched |= uint64(1) << uint(s)
	}

	for _, s := range u.Decrements {
		t.table.block(s)
		t.delta[s]--
		touched |= uint64(1) << uint(s)
	}

	t.checkDecrements(touched)

	if l.Alloc.Valid {
		s := l.Alloc.Slot
		bit := uint64(1) << uint(s)

		assert(l.Hits&bit == 0, CheckHitAndAlloc, "slot %d", s)
		assert(t.table.refCount(s) == 0, CheckAllocBusySlot,
			"slot %d has ref count %d", s, t.table.refCount(s))

		t.delta[s]++
		touched |= bit
	}

	t.commitRefCounts(touched)
	t.commitFilled(l, u.Fill)
	t.alloc.Commit(l.Alloc)
	t.table.checkDuplicateTags()
}

// checkDecrements asserts that no slot releases more references than it
// holds plus the ones its hits take this cycle. It runs before the
// allocation's increment is merged in, so a new allocation cannot mask a
// release of an unreferenced slot.
func (t *Tags) checkDecrements(touched uint64) {
	if !checksEnabled {
		return
	}

	for touched != 0 {
		s := bits.TrailingZeros64(touched)
		touched &= touched - 1

		n := t.table.refCount(s) + t.delta[s]
		assert(n >= 0, CheckDecrementZero,
			"slot %d with ref count %d released to %d",
			s, t.table.refCount(s), n)
	}
}

func (t *Tags) commitRefCounts(touched uint64) {
	limit := int(t.table.refCntMax)

	for touched != 0 {
		s := bits.TrailingZeros64(touched)
		touched &= touched - 1

		n := t.table.refCount(s) + t.delta[s]

		assert(n >= 0, CheckRefCntUnderflow, "slot %d would reach %d", s, n)
		assert(n <= limit, CheckRefCntOverflow,
			"slot %d would reach %d, max %d", s, n, limit)

		t.table.setRefCount(s, n)
	}
}

func (t *Tags) commitFilled(l Lookup, fill Fill) {
	if fill.Valid {
		slot := t.table.Slot(fill.Slot)

		assert(slot.Valid, CheckFillInvalid, "slot %d", fill.Slot)
		assert(!slot.Filled, CheckFillFilled, "slot %d", fill.Slot)
		assert(!l.Alloc.Valid || l.Alloc.Slot != fill.Slot, CheckFillFilled,
			"slot %d filled and allocated in one cycle", fill.Slot)

		t.table.fill(fill.Slot, fill.Data)
	}

	if l.Alloc.Valid {
		t.table.allocate(l.Alloc.Slot, l.allocAddr)
	}
}

// Idle reports whether the unit has nothing in flight: no fill pending, no
// live references and no valid request.
func (t *Tags) Idle(reqs []Request, fillPending bool) bool {
	if fillPending {
		return false
	}

	for _, r := range reqs {
		if r.Valid {
			return false
		}
	}

	for i := range t.table.blocks {
		if t.table.refCount(i) != 0 {
			return false
		}
	}

	return true
}

// Reset clears the table and the arbiters.
func (t *Tags) Reset() {
	t.table.Reset()
	t.alloc.Reset()
}
