// Package tags models the tag side of a fully-associative, read-only,
// non-blocking cache: the slot table, per-request hit classification,
// allocation arbitration and the per-slot reference count merge.
package tags

// Status classifies one valid request in one cycle.
type Status int

// Request classifications.
const (
	// MissCantAlloc means the request missed and could not get a slot this
	// cycle. The requestor must retry.
	MissCantAlloc Status = iota
	// Miss means the request missed and was granted a slot; a memory fetch
	// follows.
	Miss
	// Hit means the slot holds filled data.
	Hit
	// HitBeingFilled means the slot is allocated for the address but its
	// fetch has not returned yet.
	HitBeingFilled
)

func (s Status) String() string {
	switch s {
	case MissCantAlloc:
		return "MissCantAlloc"
	case Miss:
		return "Miss"
	case Hit:
		return "Hit"
	case HitBeingFilled:
		return "HitBeingFilled"
	default:
		return "Unknown"
	}
}

// IsHit reports whether the request found its address in the table.
func (s Status) IsHit() bool {
	return s == Hit || s == HitBeingFilled
}
