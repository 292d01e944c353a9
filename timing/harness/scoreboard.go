package harness

import (
	"fmt"

	"github.com/sarchlab/l0csim/timing/cache"
)

type request struct {
	inUse     bool
	gotStatus bool
	port      int
	addr      uint64
	expected  uint64
}

// Scoreboard tracks every outstanding request id and checks the cache's
// status and data outputs against it.
type Scoreboard struct {
	reqs []request

	completed uint64
	retries   uint64
}

// NewScoreboard creates a scoreboard for idCnt request ids.
func NewScoreboard(idCnt int) *Scoreboard {
	return &Scoreboard{reqs: make([]request, idCnt)}
}

// FreeMask returns the ids that may be issued.
func (s *Scoreboard) FreeMask() uint64 {
	var mask uint64

	for id, r := range s.reqs {
		if !r.inUse {
			mask |= uint64(1) << uint(id)
		}
	}

	return mask
}

// Outstanding returns the number of ids in use.
func (s *Scoreboard) Outstanding() int {
	n := 0

	for _, r := range s.reqs {
		if r.inUse {
			n++
		}
	}

	return n
}

// Issue records a new request.
func (s *Scoreboard) Issue(id uint64, port int, addr, expected uint64) {
	s.reqs[id] = request{
		inUse:    true,
		port:     port,
		addr:     addr,
		expected: expected,
	}
}

// Addr returns the address of an outstanding request.
func (s *Scoreboard) Addr(id uint64) uint64 {
	return s.reqs[id].addr
}

// Observe checks one cycle of outputs. It returns the ids that must be
// resubmitted, per port.
func (s *Scoreboard) Observe(
	statuses [][]cache.StatusResp,
	data []cache.DataResp,
) (map[int][]uint64, error) {
	delivered := make(map[uint64]uint64, len(data))

	for _, d := range data {
		r := s.lookup(d.ID)
		if r == nil || !r.inUse {
			return nil, fmt.Errorf("data returned for request %d not outstanding", d.ID)
		}
		if _, dup := delivered[d.ID]; dup {
			return nil, fmt.Errorf("data returned twice for request %d", d.ID)
		}

		delivered[d.ID] = d.Data
	}

	retry := map[int][]uint64{}

	for port, ss := range statuses {
		for _, st := range ss {
			if err := s.status(st, delivered); err != nil {
				return nil, err
			}

			if st.MustRetry {
				retry[port] = append(retry[port], st.ID)
				s.retries++
			}
		}
	}

	for id, value := range delivered {
		r := &s.reqs[id]
		if !r.gotStatus {
			return nil, fmt.Errorf("data returned for request %d before its status", id)
		}
		if value != r.expected {
			return nil, fmt.Errorf(
				"unexpected data for request %d at 0x%x: got 0x%x, want 0x%x",
				id, r.addr, value, r.expected)
		}

		*r = request{}
		s.completed++
	}

	return retry, nil
}

func (s *Scoreboard) status(st cache.StatusResp, delivered map[uint64]uint64) error {
	r := s.lookup(st.ID)
	if r == nil || !r.inUse {
		return fmt.Errorf("status for request %d not outstanding", st.ID)
	}
	if r.gotStatus {
		return fmt.Errorf("status received twice for request %d", st.ID)
	}

	flags := 0
	for _, f := range []bool{st.IsHit, st.IsMiss, st.MustRetry} {
		if f {
			flags++
		}
	}
	if flags != 1 {
		return fmt.Errorf("status for request %d sets %d flags", st.ID, flags)
	}

	_, hasData := delivered[st.ID]

	switch {
	case st.IsHit && !hasData:
		return fmt.Errorf("is_hit with no data for request %d", st.ID)
	case st.IsMiss && hasData:
		return fmt.Errorf("is_miss with data at the same time for request %d", st.ID)
	case st.MustRetry && hasData:
		return fmt.Errorf("must_retry with data for request %d", st.ID)
	}

	r.gotStatus = !st.MustRetry

	return nil
}

func (s *Scoreboard) lookup(id uint64) *request {
	if id >= uint64(len(s.reqs)) {
		return nil
	}

	return &s.reqs[id]
}
