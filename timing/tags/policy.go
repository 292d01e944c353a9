package tags

// AvailabilityPolicy decides which slots may take a new allocation in a
// cycle where at least one request needs one. hits is the union of this
// cycle's hit targets. A policy must never offer a hit target or a slot
// with a nonzero reference count; the table asserts both at commit.
type AvailabilityPolicy interface {
	Available(view View, hits uint64) uint64
}

// RefCountPolicy offers every slot that is not hit this cycle and whose
// reference count is zero. It is the default.
type RefCountPolicy struct{}

// Available implements AvailabilityPolicy.
func (RefCountPolicy) Available(view View, hits uint64) uint64 {
	var avail uint64

	for i := 0; i < view.SlotCnt(); i++ {
		bit := uint64(1) << uint(i)
		if hits&bit != 0 {
			continue
		}

		if view.Slot(i).RefCount == 0 {
			avail |= bit
		}
	}

	return avail
}

// MaskedPolicy restricts another policy to a fixed subset of slots, for
// example to keep some slots out of a requestor class's reach.
type MaskedPolicy struct {
	Base    AvailabilityPolicy
	Allowed uint64
}

// Available implements AvailabilityPolicy.
func (p MaskedPolicy) Available(view View, hits uint64) uint64 {
	base := p.Base
	if base == nil {
		base = RefCountPolicy{}
	}

	return base.Available(view, hits) & p.Allowed
}

// PolicyFunc adapts a function to AvailabilityPolicy.
type PolicyFunc func(view View, hits uint64) uint64

// Available implements AvailabilityPolicy.
func (f PolicyFunc) Available(view View, hits uint64) uint64 {
	return f(view, hits)
}
