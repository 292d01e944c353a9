package handshake

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
)

// Latch is an output register without backpressure. Values pushed during a
// cycle are visible for exactly the following cycle and are then replaced.
// The receiver must sample it every cycle.
type Latch[T any] struct {
	sim.HookableBase

	name  string
	width int
	next  []T
	cur   []T
}

// NewLatch creates a latch that holds up to width values per cycle. A width
// of zero means unbounded.
func NewLatch[T any](name string, width int) *Latch[T] {
	sim.NameMustBeValid(name)

	return &Latch[T]{name: name, width: width}
}

// Name returns the latch name.
func (l *Latch[T]) Name() string {
	return l.name
}

// Push drives a value for the next cycle.
func (l *Latch[T]) Push(v T) {
	if l.width > 0 && len(l.next) >= l.width {
		panic(fmt.Sprintf("handshake: %s driven more than %d times in one cycle",
			l.name, l.width))
	}

	l.next = append(l.next, v)

	l.InvokeHook(sim.HookCtx{
		Domain: l,
		Pos:    sim.HookPosBufPush,
		Item:   v,
	})
}

// Values returns what the latch presents this cycle.
func (l *Latch[T]) Values() []T {
	return l.cur
}

// Valid reports whether the latch presents anything this cycle.
func (l *Latch[T]) Valid() bool {
	return len(l.cur) > 0
}

// Commit makes this cycle's pushes visible.
func (l *Latch[T]) Commit() {
	l.cur = l.next
	l.next = nil
}

// Clear drops presented and pending values.
func (l *Latch[T]) Clear() {
	l.cur = nil
	l.next = nil
}
