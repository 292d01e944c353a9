package tags

import "github.com/sarchlab/l0csim/timing/arbiter"

// Grant is one cycle's allocation decision.
type Grant struct {
	Valid bool
	Slot  int
	Req   int
}

// Allocator grants at most one new allocation per cycle. One round-robin
// arbiter picks among available slots, another picks among requestors that
// need a slot.
type Allocator struct {
	slots *arbiter.RoundRobin
	reqs  *arbiter.RoundRobin
}

// NewAllocator creates an allocator for the given slot and requestor counts.
func NewAllocator(slotCnt, reqCnt int) *Allocator {
	return &Allocator{
		slots: arbiter.NewRoundRobin(slotCnt),
		reqs:  arbiter.NewRoundRobin(reqCnt),
	}
}

// Grant chooses a slot from avail and a requestor from needs.
func (a *Allocator) Grant(avail, needs uint64) Grant {
	slot, slotOK := a.slots.Choose(avail)
	req, reqOK := a.reqs.Choose(needs)

	if !slotOK || !reqOK {
		return Grant{}
	}

	return Grant{Valid: true, Slot: slot, Req: req}
}

// Commit advances both preference pointers past a valid grant. Without a
// grant both pointers hold.
func (a *Allocator) Commit(g Grant) {
	if !g.Valid {
		return
	}

	a.slots.Commit(g.Slot)
	a.reqs.Commit(g.Req)
}

// SlotPreferred returns the slot arbiter's preference pointer.
func (a *Allocator) SlotPreferred() int {
	return a.slots.Preferred()
}

// ReqPreferred returns the requestor arbiter's preference pointer.
func (a *Allocator) ReqPreferred() int {
	return a.reqs.Preferred()
}

// Reset returns both pointers to zero.
func (a *Allocator) Reset() {
	a.slots.Reset()
	a.reqs.Reset()
}
