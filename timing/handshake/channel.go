// Package handshake provides valid/ready gated links between cycle-driven
// components.
//
// A producer pushes during a cycle only when CanPush reports ready. A
// consumer peeks and pops during a cycle. Pushed values become visible to the
// consumer only after the clock edge (Commit), so every link behaves like a
// register boundary. A value that is not accepted stays in place; nothing is
// ever dropped.
package handshake

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
)

// Committer is anything that latches its next state at a clock edge.
type Committer interface {
	Commit()
}

// Clock commits a set of registered elements together.
type Clock struct {
	members []Committer
	cycle   uint64
}

// NewClock creates a clock with no members.
func NewClock() *Clock {
	return &Clock{}
}

// Register adds elements that latch on every edge.
func (c *Clock) Register(members ...Committer) {
	c.members = append(c.members, members...)
}

// Edge commits all members in registration order and advances the cycle
// count.
func (c *Clock) Edge() {
	for _, m := range c.members {
		m.Commit()
	}

	c.cycle++
}

// Cycle returns the number of edges seen so far.
func (c *Clock) Cycle() uint64 {
	return c.cycle
}

// channel holds what both backpressured variants share. Occupancy lives in an
// Akita buffer so that buffer hooks observe every transfer.
type channel[T any] struct {
	buf     sim.Buffer
	pending []T
	popped  bool
}

func newChannel[T any](name string, capacity int) channel[T] {
	return channel[T]{buf: sim.NewBuffer(name, capacity)}
}

// Name returns the channel name.
func (c *channel[T]) Name() string {
	return c.buf.Name()
}

// AcceptHook registers a hook on the underlying buffer.
func (c *channel[T]) AcceptHook(hook sim.Hook) {
	c.buf.AcceptHook(hook)
}

// Valid reports whether the consumer sees a value this cycle.
func (c *channel[T]) Valid() bool {
	return !c.popped && c.buf.Size() > 0
}

// Peek returns the value presented to the consumer without accepting it.
func (c *channel[T]) Peek() (T, bool) {
	var zero T
	if !c.Valid() {
		return zero, false
	}

	return c.buf.Peek().(T), true
}

// Pop accepts the presented value. At most one value transfers per cycle.
func (c *channel[T]) Pop() (T, bool) {
	var zero T
	if c.popped {
		panic(fmt.Sprintf("handshake: %s popped twice in one cycle", c.Name()))
	}

	if c.buf.Size() == 0 {
		return zero, false
	}

	c.popped = true

	return c.buf.Pop().(T), true
}

// Size returns the number of values held, including ones pushed this cycle.
func (c *channel[T]) Size() int {
	return c.buf.Size() + len(c.pending)
}

// Commit latches pushed values and opens the next cycle.
func (c *channel[T]) Commit() {
	for _, v := range c.pending {
		c.buf.Push(v)
	}

	c.pending = c.pending[:0]
	c.popped = false
}

// Clear drops everything held. It is a reset, not a transfer.
func (c *channel[T]) Clear() {
	c.buf.Clear()
	c.pending = c.pending[:0]
	c.popped = false
}

func (c *channel[T]) push(v T, ready bool) {
	if !ready {
		panic(fmt.Sprintf("handshake: push to %s without ready", c.Name()))
	}

	c.pending = append(c.pending, v)
}

// Stage is a single-slot staging register. It is ready when it is empty or
// its value is accepted in the same cycle, so the consumer must act before
// the producer within a cycle to avoid a bubble.
type Stage[T any] struct {
	channel[T]
}

// NewStage creates a single-slot stage.
func NewStage[T any](name string) *Stage[T] {
	return &Stage[T]{channel: newChannel[T](name, 1)}
}

// CanPush reports the stage's ready signal.
func (s *Stage[T]) CanPush() bool {
	return s.buf.Size()+len(s.pending) < 1
}

// Push offers a value. Pushing without ready panics.
func (s *Stage[T]) Push(v T) {
	s.push(v, s.CanPush())
}

// FullStage is a two-slot skid buffer. Its ready depends only on registered
// state, so a stall on the consumer side reaches the producer one cycle
// later and never combinationally.
type FullStage[T any] struct {
	channel[T]
}

// NewFullStage creates a two-slot stage.
func NewFullStage[T any](name string) *FullStage[T] {
	return &FullStage[T]{channel: newChannel[T](name, 2)}
}

// CanPush reports the stage's ready signal, computed from the occupancy at
// the start of the cycle.
func (s *FullStage[T]) CanPush() bool {
	held := s.buf.Size()
	if s.popped {
		held++
	}

	return len(s.pending) == 0 && held < 2
}

// Push offers a value. Pushing without ready panics.
func (s *FullStage[T]) Push(v T) {
	s.push(v, s.CanPush())
}
