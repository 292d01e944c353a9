package tags

import "fmt"

// InvariantViolation is the panic value raised when the tag state breaks a
// design invariant. It signals a bug in the design or in the caller, never a
// condition to recover from.
type InvariantViolation struct {
	Check  string
	Detail string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("tags: %s: %s", v.Check, v.Detail)
}

func assert(cond bool, check string, format string, args ...any) {
	if !checksEnabled || cond {
		return
	}

	panic(&InvariantViolation{
		Check:  check,
		Detail: fmt.Sprintf(format, args...),
	})
}

// Names of the checks carried by InvariantViolation.
const (
	CheckDuplicateTags   = "duplicate tags"
	CheckRefCntUnderflow = "ref count underflow"
	CheckDecrementZero   = "decrement of unreferenced slot"
	CheckRefCntOverflow  = "ref count overflow"
	CheckHitAndAlloc     = "hit and alloc to the same slot"
	CheckAllocBusySlot   = "alloc of slot with nonzero ref count"
	CheckFillFilled      = "fill of already filled slot"
	CheckFillInvalid     = "fill of unallocated slot"
	CheckSlotRange       = "slot index out of range"
)
