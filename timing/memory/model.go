package memory

import (
	"fmt"
	"math/rand"

	"github.com/sarchlab/l0csim/timing/cache"
	"github.com/sarchlab/l0csim/timing/handshake"
)

// Config holds the timing behavior of the memory model.
type Config struct {
	// MinLatency and MaxLatency bound the cycles between accepting a fetch
	// and presenting its response. Each fetch draws uniformly.
	MinLatency uint64 `json:"min_latency"`
	MaxLatency uint64 `json:"max_latency"`

	// StallProb is the chance that the model refuses a fetch in a cycle.
	StallProb float64 `json:"stall_prob"`

	// Seed feeds the model's random source.
	Seed int64 `json:"seed"`
}

// DefaultConfig returns a config with short, varied latencies.
func DefaultConfig() Config {
	return Config{
		MinLatency: 1,
		MaxLatency: 8,
		StallProb:  0.5,
		Seed:       1,
	}
}

// Validate checks the latency bounds and the stall probability.
func (c Config) Validate() error {
	if c.MinLatency > c.MaxLatency {
		return fmt.Errorf("min_latency must be <= max_latency")
	}
	if c.StallProb < 0 || c.StallProb >= 1 {
		return fmt.Errorf("stall_prob must be in [0,1)")
	}
	return nil
}

// Statistics holds memory model statistics.
type Statistics struct {
	Fetches     uint64
	Responses   uint64
	StallCycles uint64
	// Reordered counts responses that overtook an older fetch.
	Reordered   uint64
	MaxInFlight int
}

type inFlight struct {
	due  uint64
	seq  uint64
	resp cache.MemResp
}

// Model accepts at most one fetch and presents at most one response per
// cycle. Among the fetches whose latency has elapsed it answers a random
// one, so responses come back out of order.
type Model struct {
	config Config
	store  Store
	rng    *rand.Rand

	req  *handshake.FullStage[cache.MemReq]
	resp *handshake.Latch[cache.MemResp]

	pending []inFlight
	seq     uint64
	cycle   uint64
	stats   Statistics
}

// New connects a memory model to a cache's memory links.
func New(
	config Config,
	store Store,
	req *handshake.FullStage[cache.MemReq],
	resp *handshake.Latch[cache.MemResp],
) (*Model, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid memory config: %w", err)
	}

	return &Model{
		config: config,
		store:  store,
		rng:    rand.New(rand.NewSource(config.Seed)),
		req:    req,
		resp:   resp,
	}, nil
}

// Tick evaluates one cycle.
func (m *Model) Tick() bool {
	m.accept()
	m.respond()

	return len(m.pending) > 0 || m.req.Valid()
}

func (m *Model) accept() {
	if !m.req.Valid() {
		return
	}

	if m.rng.Float64() < m.config.StallProb {
		m.stats.StallCycles++
		return
	}

	req, _ := m.req.Pop()
	span := m.config.MaxLatency - m.config.MinLatency + 1
	latency := m.config.MinLatency + uint64(m.rng.Int63n(int64(span)))

	m.pending = append(m.pending, inFlight{
		due: m.cycle + latency,
		seq: m.seq,
		resp: cache.MemResp{
			TxnID: req.TxnID,
			Tag:   req.Tag,
			Data:  m.store.Read(req.Addr),
		},
	})
	m.seq++
	m.stats.Fetches++

	if len(m.pending) > m.stats.MaxInFlight {
		m.stats.MaxInFlight = len(m.pending)
	}
}

func (m *Model) respond() {
	var ready []int

	for i, p := range m.pending {
		if p.due <= m.cycle {
			ready = append(ready, i)
		}
	}

	if len(ready) == 0 {
		return
	}

	i := ready[m.rng.Intn(len(ready))]
	chosen := m.pending[i]

	for _, p := range m.pending {
		if p.seq < chosen.seq {
			m.stats.Reordered++
			break
		}
	}

	m.resp.Push(chosen.resp)
	m.pending = append(m.pending[:i], m.pending[i+1:]...)
	m.stats.Responses++
}

// Commit closes the cycle.
func (m *Model) Commit() {
	m.cycle++
}

// InFlight returns the number of accepted fetches not yet answered.
func (m *Model) InFlight() int {
	return len(m.pending)
}

// Stats returns memory model statistics.
func (m *Model) Stats() Statistics {
	return m.stats
}

// Reset drops every in-flight fetch and restarts the random source.
func (m *Model) Reset() {
	m.pending = nil
	m.seq = 0
	m.cycle = 0
	m.stats = Statistics{}
	m.rng = rand.New(rand.NewSource(m.config.Seed))
}
