// Package arbiter provides round-robin arbitration over eligibility masks.
package arbiter

import (
	"fmt"
	"math/bits"
)

// MaxCandidates is the widest eligibility mask an arbiter accepts.
const MaxCandidates = 64

// RoundRobin picks the first eligible candidate at or after a rotating
// preference pointer. The pointer is a register: Choose is combinational and
// only Commit moves the pointer.
type RoundRobin struct {
	n    int
	full uint64
	pref int
}

// NewRoundRobin creates an arbiter over n candidates with the preference
// pointer at candidate 0.
func NewRoundRobin(n int) *RoundRobin {
	if n < 1 || n > MaxCandidates {
		panic(fmt.Sprintf("arbiter: candidate count %d out of range [1,%d]",
			n, MaxCandidates))
	}

	full := ^uint64(0)
	if n < 64 {
		full = uint64(1)<<uint(n) - 1
	}

	return &RoundRobin{n: n, full: full}
}

// Candidates returns the number of candidates the arbiter chooses among.
func (a *RoundRobin) Candidates() int {
	return a.n
}

// Preferred returns the current preference pointer.
func (a *RoundRobin) Preferred() int {
	return a.pref
}

// Choose returns the first candidate whose bit is set in mask, scanning the
// ring from the preference pointer. anyValid is false when no bit is set, in
// which case chosen is 0 and carries no meaning.
func (a *RoundRobin) Choose(mask uint64) (chosen int, anyValid bool) {
	mask &= a.full
	if mask == 0 {
		return 0, false
	}

	if a.n == 1 {
		return 0, true
	}

	p := uint(a.pref)
	rotated := (mask>>p | mask<<(uint(a.n)-p)) & a.full
	k := bits.TrailingZeros64(rotated)

	return (a.pref + k) % a.n, true
}

// Commit advances the preference pointer past chosen. Callers invoke it at
// the clock edge of a cycle in which a grant was both valid and consumed.
func (a *RoundRobin) Commit(chosen int) {
	if chosen < 0 || chosen >= a.n {
		panic(fmt.Sprintf("arbiter: chosen %d out of range [0,%d)", chosen, a.n))
	}

	a.pref = (chosen + 1) % a.n
}

// Arbitrate is Choose followed by Commit when advance holds and a candidate
// was found. It is meant for callers that evaluate and commit in one step.
func (a *RoundRobin) Arbitrate(mask uint64, advance bool) (int, bool) {
	chosen, ok := a.Choose(mask)
	if ok && advance {
		a.Commit(chosen)
	}

	return chosen, ok
}

// Reset moves the preference pointer back to candidate 0.
func (a *RoundRobin) Reset() {
	a.pref = 0
}
