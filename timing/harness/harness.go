// Package harness runs an L0 cache against randomized request traffic and a
// randomized memory, checking every output with a scoreboard.
package harness

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/l0csim/timing/arbiter"
	"github.com/sarchlab/l0csim/timing/cache"
	"github.com/sarchlab/l0csim/timing/handshake"
	"github.com/sarchlab/l0csim/timing/memory"
	"github.com/sarchlab/l0csim/timing/tags"
)

// Config holds the traffic parameters.
type Config struct {
	// Requests is the number of distinct requests to issue. Default: 100.
	Requests int `json:"requests"`

	// AddrPool is the number of random addresses requests draw from. A
	// small pool induces hits. Zero selects half the request id count.
	AddrPool int `json:"addr_pool"`

	// BubbleProb is the chance that a port issues nothing in a cycle.
	// Default: 0.25.
	BubbleProb float64 `json:"bubble_prob"`

	// Seed feeds the traffic's random source. Default: 1.
	Seed int64 `json:"seed"`

	// MaxCycles bounds the run. Default: 100000.
	MaxCycles uint64 `json:"max_cycles"`

	Memory memory.Config `json:"memory"`
}

// DefaultConfig returns the default traffic.
func DefaultConfig() Config {
	return Config{
		Requests:   100,
		BubbleProb: 0.25,
		Seed:       1,
		MaxCycles:  100000,
		Memory:     memory.DefaultConfig(),
	}
}

// Validate checks the traffic parameters.
func (c Config) Validate() error {
	if c.Requests < 0 {
		return fmt.Errorf("requests must be >= 0")
	}
	if c.AddrPool < 0 {
		return fmt.Errorf("addr_pool must be >= 0")
	}
	if c.BubbleProb < 0 || c.BubbleProb >= 1 {
		return fmt.Errorf("bubble_prob must be in [0,1)")
	}
	if c.MaxCycles == 0 {
		return fmt.Errorf("max_cycles must be > 0")
	}
	return c.Memory.Validate()
}

// Result summarizes a run.
type Result struct {
	Passed    bool
	Cycles    uint64
	Issued    uint64
	Completed uint64
	Retries   uint64
	Cache     cache.Statistics
	Memory    memory.Statistics
}

// ErrTimeout is returned when a run does not finish within MaxCycles.
var ErrTimeout = errors.New("run did not finish")

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger shared by the harness and the cache.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.log = l
	}
}

// WithStore replaces the pattern store behind the memory.
func WithStore(s memory.Store) Option {
	return func(h *Harness) {
		h.store = s
	}
}

// WithHook registers a hook on the cache.
func WithHook(hook sim.Hook) Option {
	return func(h *Harness) {
		h.hooks = append(h.hooks, hook)
	}
}

// WithAvailabilityPolicy passes a slot availability policy to the cache.
func WithAvailabilityPolicy(p tags.AvailabilityPolicy) Option {
	return func(h *Harness) {
		h.policy = p
	}
}

// Harness is one requestor per cache port, a memory model, the cache and a
// scoreboard, all on one clock. Each requestor drives its port through a
// single-slot output stage. It implements sim.Ticker.
type Harness struct {
	config Config
	log    *slog.Logger
	store  memory.Store
	hooks  []sim.Hook
	policy tags.AvailabilityPolicy

	Cache  *cache.Controller
	Memory *memory.Model
	clock  *handshake.Clock
	rng    *rand.Rand

	board  *Scoreboard
	out    []*handshake.Stage[cache.Request]
	ids    *arbiter.RoundRobin
	pool   []uint64
	retry  [][]uint64
	issued uint64

	statuses [][]cache.StatusResp
	done     bool
	err      error
}

// New builds a harness around a new cache.
func New(cacheConfig *cache.Config, config Config, opts ...Option) (*Harness, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid harness config: %w", err)
	}

	h := &Harness{
		config: config,
		log:    slog.New(slog.DiscardHandler),
		clock:  handshake.NewClock(),
		rng:    rand.New(rand.NewSource(config.Seed)),
	}

	for _, opt := range opts {
		opt(h)
	}

	cacheOpts := []cache.Option{cache.WithLogger(h.log)}
	if h.policy != nil {
		cacheOpts = append(cacheOpts, cache.WithAvailabilityPolicy(h.policy))
	}

	c, err := cache.New("L0C", cacheConfig, cacheOpts...)
	if err != nil {
		return nil, err
	}

	for _, hook := range h.hooks {
		c.AcceptHook(hook)
	}

	if h.store == nil {
		h.store = memory.NewPatternStore(c.Layout())
	}

	m, err := memory.New(config.Memory, h.store, c.MemReqOut(), c.MemRespIn())
	if err != nil {
		return nil, err
	}

	h.Cache = c
	h.Memory = m
	h.clock.Register(c.Registers()...)
	h.clock.Register(m)

	h.out = make([]*handshake.Stage[cache.Request], cacheConfig.ReqCnt)
	for p := range h.out {
		h.out[p] = handshake.NewStage[cache.Request](
			fmt.Sprintf("Requestor[%d].Out", p))
		h.clock.Register(h.out[p])
	}

	idCnt := min(1<<uint(cacheConfig.ReqIDW), arbiter.MaxCandidates)
	h.board = NewScoreboard(idCnt)
	h.ids = arbiter.NewRoundRobin(idCnt)
	h.retry = make([][]uint64, cacheConfig.ReqCnt)
	h.statuses = make([][]cache.StatusResp, cacheConfig.ReqCnt)
	h.pool = h.makePool(cacheConfig, idCnt)

	return h, nil
}

func (h *Harness) makePool(cacheConfig *cache.Config, idCnt int) []uint64 {
	n := h.config.AddrPool
	if n == 0 {
		n = max(1, idCnt/2)
	}

	addrMask := ^uint64(0)
	if cacheConfig.AddrW < 64 {
		addrMask = uint64(1)<<uint(cacheConfig.AddrW) - 1
	}

	pool := make([]uint64, n)
	for i := range pool {
		pool[i] = h.rng.Uint64() & addrMask
	}

	return pool
}

// Tick runs one cycle. It returns false once the run has finished or
// failed.
//
// A broken cache invariant ends the run with an error instead of a panic.
func (h *Harness) Tick() (running bool) {
	if h.done {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			v, ok := r.(*tags.InvariantViolation)
			if !ok {
				panic(r)
			}

			h.fail(v)
			running = false
		}
	}()

	if err := h.observe(); err != nil {
		h.fail(err)
		return false
	}

	h.forward()
	h.drive()
	h.Memory.Tick()
	h.Cache.Tick()
	h.clock.Edge()

	if !h.Cache.Idle() && h.board.Outstanding() == 0 {
		h.fail(fmt.Errorf("cache busy with no request outstanding"))
		return false
	}

	if h.issued == uint64(h.config.Requests) &&
		h.board.Outstanding() == 0 &&
		h.Cache.Idle() {
		h.done = true
		h.log.Info("run finished", "cycles", h.clock.Cycle())

		return false
	}

	if h.clock.Cycle() >= h.config.MaxCycles {
		h.done = true
		h.err = fmt.Errorf("%w after %d cycles, %d requests outstanding",
			ErrTimeout, h.clock.Cycle(), h.board.Outstanding())
		h.log.Error("run failed", "err", h.err)

		return false
	}

	return true
}

func (h *Harness) fail(err error) {
	h.err = fmt.Errorf("cycle %d: %w", h.clock.Cycle(), err)
	h.done = true
	h.log.Error("run failed", "err", h.err)
}

func (h *Harness) observe() error {
	for p := range h.statuses {
		h.statuses[p] = h.Cache.StatusOut(p).Values()
	}

	retry, err := h.board.Observe(h.statuses, h.Cache.DataOut().Values())
	if err != nil {
		return err
	}

	for p, ids := range retry {
		h.retry[p] = append(h.retry[p], ids...)
	}

	return nil
}

// forward moves each staged request into its cache port once the port is
// ready.
func (h *Harness) forward() {
	for p, out := range h.out {
		in := h.Cache.ReqIn(p)
		if !out.Valid() || !in.CanPush() {
			continue
		}

		req, _ := out.Pop()
		in.Push(req)
	}
}

// drive stages at most one request per port: a pending retry first, then a
// new request under a free id.
func (h *Harness) drive() {
	for p := range h.retry {
		out := h.out[p]
		if !out.CanPush() || h.rng.Float64() < h.config.BubbleProb {
			continue
		}

		if len(h.retry[p]) > 0 {
			id := h.retry[p][0]
			h.retry[p] = h.retry[p][1:]
			out.Push(cache.Request{ID: id, Addr: h.board.Addr(id)})

			continue
		}

		if h.issued >= uint64(h.config.Requests) {
			continue
		}

		id, ok := h.ids.Choose(h.board.FreeMask())
		if !ok {
			continue
		}

		h.ids.Commit(id)

		addr := h.pool[h.rng.Intn(len(h.pool))]
		expected := memory.ExpectedLine(h.store, h.Cache.Layout(), addr)
		h.board.Issue(uint64(id), p, addr, expected)
		out.Push(cache.Request{ID: uint64(id), Addr: addr})
		h.issued++
	}
}

// Run ticks until the run finishes, fails or reaches MaxCycles.
func (h *Harness) Run() (Result, error) {
	for h.Tick() {
	}

	return h.Result(), h.err
}

// RunCycles ticks at most n cycles. It returns true if the run is still
// going.
func (h *Harness) RunCycles(n uint64) bool {
	for i := uint64(0); i < n; i++ {
		if !h.Tick() {
			return false
		}
	}

	return !h.done
}

// Err returns the failure that ended the run, if any.
func (h *Harness) Err() error {
	return h.err
}

// Done reports whether the run has ended.
func (h *Harness) Done() bool {
	return h.done
}

// Result summarizes the run so far.
func (h *Harness) Result() Result {
	return Result{
		Passed:    h.done && h.err == nil,
		Cycles:    h.clock.Cycle(),
		Issued:    h.issued,
		Completed: h.board.completed,
		Retries:   h.board.retries,
		Cache:     h.Cache.Stats(),
		Memory:    h.Memory.Stats(),
	}
}
