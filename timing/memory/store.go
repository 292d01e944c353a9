// Package memory models the memory behind an L0 cache: a backing store of
// memory words and a responder that answers fetches out of order after a
// random latency.
package memory

import "github.com/sarchlab/l0csim/timing/cache"

// Store supplies memory words by word address.
type Store interface {
	Read(addr uint64) uint64
}

// PatternStore returns words whose every line holds its own line address,
// truncated to the line width. Checking returned data then needs no copy of
// memory.
type PatternStore struct {
	layout cache.Layout
}

// NewPatternStore creates a pattern store for a cache layout.
func NewPatternStore(layout cache.Layout) *PatternStore {
	return &PatternStore{layout: layout}
}

// Read implements Store.
func (s *PatternStore) Read(addr uint64) uint64 {
	var word uint64

	for i := 0; i < s.layout.SubwordCnt; i++ {
		line := addr<<uint(s.layout.SubwordW) | uint64(i)
		word |= s.Line(line) << uint(i*s.layout.LineW)
	}

	return word
}

// Line returns the value the store holds for a line address.
func (s *PatternStore) Line(lineAddr uint64) uint64 {
	return s.layout.Extract(lineAddr, 0)
}

// SparseStore is a writable store. Words never written read as the
// fallback store's value, or zero without one.
type SparseStore struct {
	words    map[uint64]uint64
	fallback Store
}

// NewSparseStore creates an empty sparse store.
func NewSparseStore(fallback Store) *SparseStore {
	return &SparseStore{
		words:    make(map[uint64]uint64),
		fallback: fallback,
	}
}

// Read implements Store.
func (s *SparseStore) Read(addr uint64) uint64 {
	if w, ok := s.words[addr]; ok {
		return w
	}

	if s.fallback != nil {
		return s.fallback.Read(addr)
	}

	return 0
}

// Write sets a memory word.
func (s *SparseStore) Write(addr, word uint64) {
	s.words[addr] = word
}

// ExpectedLine returns the line a cache with the given layout should return
// for lineAddr when backed by store.
func ExpectedLine(store Store, layout cache.Layout, lineAddr uint64) uint64 {
	word := store.Read(layout.MemAddr(lineAddr))
	return layout.Extract(word, layout.SubwordOf(lineAddr))
}
