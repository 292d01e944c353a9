// Package cache models a non-blocking, fully-associative, read-only L0 cache
// controller cycle by cycle.
//
// Every boundary of the controller is a handshake link owned by the
// controller. A surrounding model drives the request ports and the memory
// response latch, calls Tick once per cycle and then commits every register
// returned by Registers at the clock edge.
package cache

import (
	"fmt"
	"log/slog"

	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/l0csim/timing/handshake"
	"github.com/sarchlab/l0csim/timing/tags"
)

// Hook positions invoked by the controller. Item is the record sent; Detail
// is an Event.
var (
	HookPosStatus  = &sim.HookPos{Name: "Status"}
	HookPosMemReq  = &sim.HookPos{Name: "MemReq"}
	HookPosFill    = &sim.HookPos{Name: "Fill"}
	HookPosDeliver = &sim.HookPos{Name: "Deliver"}
)

// Event locates a hook invocation.
type Event struct {
	Cycle uint64
	Port  int
	Slot  int
}

// Statistics holds controller statistics.
type Statistics struct {
	Cycles   uint64
	Requests uint64
	// Per-status counts. Coalesced counts the HitBeingFilled requests that
	// waited for the fill instead of retrying.
	Hits            uint64
	HitsBeingFilled uint64
	Coalesced       uint64
	Misses          uint64
	MissesCantAlloc uint64
	Retries         uint64

	MemFetches uint64
	Fills      uint64
	Deliveries uint64
	// StallCycles counts cycles where a presented request was held back.
	StallCycles uint64
}

// HitRate returns the share of accepted requests that found their line.
func (s Statistics) HitRate() float64 {
	if s.Requests == 0 {
		return 0
	}

	return float64(s.Hits+s.HitsBeingFilled) / float64(s.Requests)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Records are emitted at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithAvailabilityPolicy replaces the default slot availability policy.
func WithAvailabilityPolicy(p tags.AvailabilityPolicy) Option {
	return func(c *Controller) {
		c.policy = p
	}
}

// Controller is the L0 cache controller.
type Controller struct {
	sim.HookableBase

	name   string
	config Config
	layout Layout
	log    *slog.Logger
	policy tags.AvailabilityPolicy
	tags   *tags.Tags

	reqIn     []*handshake.FullStage[Request]
	statusOut []*handshake.Latch[StatusResp]
	dataOut   *handshake.Latch[DataResp]
	memReqOut *handshake.FullStage[MemReq]
	memRespIn *handshake.Latch[MemResp]

	// waiters holds, per slot, the ids of coalesced requests waiting for
	// the slot's fill.
	waiters [][]uint64

	reqs   []tags.Request
	noReqs []tags.Request
	joins  []uint32
	lookup tags.Lookup
	update tags.Update
	ticked bool
	cycle  uint64
	stats  Statistics
}

// New creates a controller. The configuration is validated once here.
func New(name string, config *Config, opts ...Option) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}

	c := &Controller{
		name:   name,
		config: *config.Clone(),
		layout: config.Layout(),
		log:    newNopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.tags = tags.New(config.SlotCnt, config.ReqCnt, config.RefCntMax, c.policy)

	c.reqIn = make([]*handshake.FullStage[Request], config.ReqCnt)
	c.statusOut = make([]*handshake.Latch[StatusResp], config.ReqCnt)
	for p := 0; p < config.ReqCnt; p++ {
		c.reqIn[p] = handshake.NewFullStage[Request](
			fmt.Sprintf("%s.ReqIn[%d]", name, p))
		c.statusOut[p] = handshake.NewLatch[StatusResp](
			fmt.Sprintf("%s.StatusOut[%d]", name, p), 1)
	}

	c.dataOut = handshake.NewLatch[DataResp](name+".DataOut", 0)
	c.memReqOut = handshake.NewFullStage[MemReq](name + ".MemReqOut")
	c.memRespIn = handshake.NewLatch[MemResp](name+".MemRespIn", 1)

	c.waiters = make([][]uint64, config.SlotCnt)
	c.reqs = make([]tags.Request, config.ReqCnt)
	c.noReqs = make([]tags.Request, config.ReqCnt)
	c.joins = make([]uint32, config.SlotCnt)

	return c, nil
}

// Name returns the controller name.
func (c *Controller) Name() string {
	return c.name
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.config
}

// Layout returns the memory interface layout.
func (c *Controller) Layout() Layout {
	return c.layout
}

// Tags exposes the tag unit for inspection.
func (c *Controller) Tags() *tags.Tags {
	return c.tags
}

// ReqIn returns the request link of a port.
func (c *Controller) ReqIn(port int) *handshake.FullStage[Request] {
	return c.reqIn[port]
}

// StatusOut returns the status latch of a port.
func (c *Controller) StatusOut(port int) *handshake.Latch[StatusResp] {
	return c.statusOut[port]
}

// DataOut returns the data latch shared by all ports.
func (c *Controller) DataOut() *handshake.Latch[DataResp] {
	return c.dataOut
}

// MemReqOut returns the memory request link.
func (c *Controller) MemReqOut() *handshake.FullStage[MemReq] {
	return c.memReqOut
}

// MemRespIn returns the memory response latch. Memory drives it without
// backpressure; the controller consumes whatever it presents.
func (c *Controller) MemRespIn() *handshake.Latch[MemResp] {
	return c.memRespIn
}

// Registers returns everything that latches at the clock edge, the
// controller itself included.
func (c *Controller) Registers() []handshake.Committer {
	regs := []handshake.Committer{c}

	for p := range c.reqIn {
		regs = append(regs, c.reqIn[p], c.statusOut[p])
	}

	return append(regs, c.dataOut, c.memReqOut, c.memRespIn)
}

// Cycle returns the number of committed cycles.
func (c *Controller) Cycle() uint64 {
	return c.cycle
}

// Tick evaluates one cycle. State changes take effect at Commit.
func (c *Controller) Tick() bool {
	c.update = tags.Update{Decrements: c.update.Decrements[:0]}
	c.ticked = true

	fillPending := c.memRespIn.Valid()
	if fillPending {
		c.fill()
	}

	// Memory responses cannot be pushed back, so request intake yields to
	// them. A Miss needs room for its fetch.
	accept := !fillPending && c.memReqOut.CanPush()
	presented := false

	for p, in := range c.reqIn {
		c.reqs[p] = tags.Request{}

		req, ok := in.Peek()
		if !ok {
			continue
		}

		presented = true
		if accept {
			c.reqs[p] = tags.Request{Valid: true, Addr: req.Addr}
		}
	}

	if presented && !accept {
		c.stats.StallCycles++
	}

	c.lookup = c.tags.Classify(c.reqs)

	for i := range c.joins {
		c.joins[i] = 0
	}

	for p := range c.reqs {
		if !c.reqs[p].Valid {
			continue
		}

		req, _ := c.reqIn[p].Pop()
		c.respond(p, req)
	}

	return fillPending || presented || !c.Idle()
}

func (c *Controller) respond(p int, req Request) {
	status := c.lookup.Statuses[p]
	slot := c.lookup.Slots[p]
	resp := StatusResp{ID: req.ID, Status: status}

	c.stats.Requests++

	switch status {
	case tags.Hit:
		c.stats.Hits++
		resp.IsHit = true
		c.deliver(req.ID, c.tags.Table().Data(slot), slot)
		c.update.Decrements = append(c.update.Decrements, slot)
	case tags.HitBeingFilled:
		c.stats.HitsBeingFilled++
		if c.canJoin(slot) {
			c.stats.Coalesced++
			c.joins[slot]++
			c.waiters[slot] = append(c.waiters[slot], req.ID)
			resp.IsMiss = true
		} else {
			c.stats.Retries++
			resp.MustRetry = true
			c.update.Decrements = append(c.update.Decrements, slot)
		}
	case tags.Miss:
		c.stats.Misses++
		resp.IsMiss = true
		c.fetch(p, req, slot)
	case tags.MissCantAlloc:
		c.stats.MissesCantAlloc++
		c.stats.Retries++
		resp.MustRetry = true
	}

	c.statusOut[p].Push(resp)
	c.log.Debug("status",
		"cycle", c.cycle, "port", p, "id", req.ID,
		"addr", req.Addr, "status", status.String(), "slot", slot)
	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosStatus,
		Item:   resp,
		Detail: Event{Cycle: c.cycle, Port: p, Slot: slot},
	})
}

// canJoin reports whether one more request may wait on slot without its
// reference count exceeding the maximum.
func (c *Controller) canJoin(slot int) bool {
	if !c.config.Coalesce {
		return false
	}

	held := c.tags.Table().Slot(slot).RefCount + c.joins[slot]

	return held+1 <= c.config.RefCntMax
}

func (c *Controller) fetch(p int, req Request, slot int) {
	mr := MemReq{
		TxnID: xid.New().String(),
		Tag: c.layout.Pack(CompositeTag{
			ReqID:   req.ID,
			Subword: c.layout.SubwordOf(req.Addr),
			Slot:    slot,
		}),
		Addr: c.layout.MemAddr(req.Addr),
	}

	c.memReqOut.Push(mr)
	c.stats.MemFetches++

	c.log.Debug("mem req",
		"cycle", c.cycle, "txn", mr.TxnID, "tag", mr.Tag, "addr", mr.Addr)
	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosMemReq,
		Item:   mr,
		Detail: Event{Cycle: c.cycle, Port: p, Slot: slot},
	})
}

// fill commits the presented memory response into its slot and hands the
// line to the request that fetched it and to every coalesced waiter. Each
// delivery releases one reference.
func (c *Controller) fill() {
	resp := c.memRespIn.Values()[0]
	tag := c.layout.Unpack(resp.Tag)
	data := c.layout.Extract(resp.Data, tag.Subword)

	c.update.Fill = tags.Fill{Valid: true, Slot: tag.Slot, Data: data}
	c.stats.Fills++

	c.log.Debug("fill",
		"cycle", c.cycle, "txn", resp.TxnID, "slot", tag.Slot,
		"subword", tag.Subword, "data", data)
	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosFill,
		Item:   resp,
		Detail: Event{Cycle: c.cycle, Slot: tag.Slot},
	})

	c.deliver(tag.ReqID, data, tag.Slot)
	c.update.Decrements = append(c.update.Decrements, tag.Slot)

	for _, id := range c.waiters[tag.Slot] {
		c.deliver(id, data, tag.Slot)
		c.update.Decrements = append(c.update.Decrements, tag.Slot)
	}

	c.waiters[tag.Slot] = c.waiters[tag.Slot][:0]
}

func (c *Controller) deliver(id, data uint64, slot int) {
	d := DataResp{ID: id, Data: data}

	c.dataOut.Push(d)
	c.stats.Deliveries++

	c.log.Debug("deliver", "cycle", c.cycle, "id", id, "data", data)
	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosDeliver,
		Item:   d,
		Detail: Event{Cycle: c.cycle, Slot: slot},
	})
}

// Commit applies the cycle evaluated by Tick to the tag state. A cycle that
// was never ticked changes nothing.
func (c *Controller) Commit() {
	if c.ticked {
		c.tags.Commit(c.lookup, c.update)
	}

	c.ticked = false
	c.cycle++
	c.stats.Cycles++
}

// Idle reports whether the controller has no work anywhere: no request
// waiting, no fetch waiting, no memory response presented and no line
// referenced.
func (c *Controller) Idle() bool {
	for _, in := range c.reqIn {
		if in.Size() > 0 {
			return false
		}
	}

	if c.memReqOut.Size() > 0 {
		return false
	}

	return c.tags.Idle(c.noReqs, c.memRespIn.Valid())
}

// Stats returns controller statistics.
func (c *Controller) Stats() Statistics {
	return c.stats
}

// ResetStats clears controller statistics.
func (c *Controller) ResetStats() {
	c.stats = Statistics{}
}

// Reset returns the controller to its power-on state and clears every link
// and statistic.
func (c *Controller) Reset() {
	c.tags.Reset()

	for p := range c.reqIn {
		c.reqIn[p].Clear()
		c.statusOut[p].Clear()
	}

	c.dataOut.Clear()
	c.memReqOut.Clear()
	c.memRespIn.Clear()

	for i := range c.waiters {
		c.waiters[i] = c.waiters[i][:0]
	}

	c.lookup = tags.Lookup{}
	c.update = tags.Update{}
	c.ticked = false
	c.cycle = 0
	c.stats = Statistics{}
}
