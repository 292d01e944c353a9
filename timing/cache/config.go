package cache

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"os"

	"github.com/sarchlab/l0csim/timing/tags"
)

// Config holds the construction-time parameters of an L0 cache. Widths are
// in bits. Request addresses are line granular: one address names one
// line_w-bit word.
type Config struct {
	// SlotCnt is the number of fully-associative lines. Default: 2.
	SlotCnt int `json:"slot_cnt"`

	// ReqIDW is the width of the request id returned with status and data.
	// Default: 3.
	ReqIDW int `json:"req_id_w"`

	// AddrW is the width of a request address. Default: 30, a 32-bit byte
	// address of 4-byte lines.
	AddrW int `json:"addr_w"`

	// LineW is the width of one line, which is also the width of returned
	// data. Default: 32.
	LineW int `json:"line_w"`

	// MemWordW is the width of a memory response. It must be line_w times a
	// power of two; each memory word carries that many lines (subwords).
	// Default: 64.
	MemWordW int `json:"mem_word_w"`

	// RefCntMax bounds the per-line reference count. Default: 4.
	RefCntMax uint32 `json:"ref_cnt_max"`

	// ReqCnt is the number of request ports. Default: 1.
	ReqCnt int `json:"req_cnt"`

	// Coalesce makes a request that hits a line still being filled wait for
	// the fill instead of being told to retry. Default: true.
	Coalesce bool `json:"coalesce"`
}

// DefaultConfig returns the configuration of the reference L0 cache.
func DefaultConfig() *Config {
	return &Config{
		SlotCnt:   2,
		ReqIDW:    3,
		AddrW:     30,
		LineW:     32,
		MemWordW:  64,
		RefCntMax: 4,
		ReqCnt:    1,
		Coalesce:  true,
	}
}

// LoadConfig loads a Config from a JSON file. Fields absent from the file
// keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse cache config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize cache config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache config file: %w", err)
	}

	return nil
}

// Validate checks that the parameters describe a buildable cache.
func (c *Config) Validate() error {
	if c.SlotCnt < 1 || c.SlotCnt > tags.MaxSlots {
		return fmt.Errorf("slot_cnt must be in [1,%d]", tags.MaxSlots)
	}
	if c.ReqCnt < 1 || c.ReqCnt > 64 {
		return fmt.Errorf("req_cnt must be in [1,64]")
	}
	if c.RefCntMax == 0 {
		return fmt.Errorf("ref_cnt_max must be > 0")
	}
	if c.ReqIDW < 1 || c.ReqIDW > 32 {
		return fmt.Errorf("req_id_w must be in [1,32]")
	}
	if c.LineW < 1 || c.LineW > 64 {
		return fmt.Errorf("line_w must be in [1,64]")
	}
	if c.MemWordW < c.LineW || c.MemWordW > 64 {
		return fmt.Errorf("mem_word_w must be in [line_w,64]")
	}
	if c.MemWordW%c.LineW != 0 || !isPow2(c.MemWordW/c.LineW) {
		return fmt.Errorf("mem_word_w must be line_w times a power of two")
	}

	l := c.Layout()
	if c.AddrW <= l.SubwordW || c.AddrW > 64 {
		return fmt.Errorf("addr_w must be in (%d,64]", l.SubwordW)
	}

	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Layout derives the field widths that follow from the configuration.
func (c *Config) Layout() Layout {
	l := Layout{
		LineW:   c.LineW,
		ReqIDW:  c.ReqIDW,
		SlotIDW: 1,
	}

	if c.LineW > 0 && c.MemWordW >= c.LineW {
		l.SubwordCnt = c.MemWordW / c.LineW
		l.SubwordW = bits.TrailingZeros(uint(l.SubwordCnt))
	}

	if c.SlotCnt > 1 {
		l.SlotIDW = max(1, bits.Len(uint(c.SlotCnt-1)))
	}

	l.MemAddrW = c.AddrW - l.SubwordW
	l.TagW = l.ReqIDW + l.SubwordW + l.SlotIDW

	return l
}

// Layout is the bit layout of the memory interface.
type Layout struct {
	LineW      int
	ReqIDW     int
	SubwordCnt int
	SubwordW   int
	SlotIDW    int
	MemAddrW   int
	TagW       int
}

// CompositeTag correlates a memory fetch with its response.
type CompositeTag struct {
	ReqID   uint64
	Subword int
	Slot    int
}

// Pack encodes a tag as {req_id, subword, slot}, slot in the low bits.
func (l Layout) Pack(t CompositeTag) uint64 {
	v := t.ReqID & mask(l.ReqIDW)
	v = v<<uint(l.SubwordW) | uint64(t.Subword)&mask(l.SubwordW)
	v = v<<uint(l.SlotIDW) | uint64(t.Slot)&mask(l.SlotIDW)

	return v
}

// Unpack decodes a tag produced by Pack.
func (l Layout) Unpack(v uint64) CompositeTag {
	slot := int(v & mask(l.SlotIDW))
	v >>= uint(l.SlotIDW)
	subword := int(v & mask(l.SubwordW))
	v >>= uint(l.SubwordW)

	return CompositeTag{
		ReqID:   v & mask(l.ReqIDW),
		Subword: subword,
		Slot:    slot,
	}
}

// MemAddr returns the memory word address holding a line.
func (l Layout) MemAddr(lineAddr uint64) uint64 {
	return lineAddr >> uint(l.SubwordW)
}

// SubwordOf returns the position of a line within its memory word.
func (l Layout) SubwordOf(lineAddr uint64) int {
	return int(lineAddr & mask(l.SubwordW))
}

// Extract selects one line out of a memory word.
func (l Layout) Extract(word uint64, subword int) uint64 {
	return (word >> uint(subword*l.LineW)) & mask(l.LineW)
}

func mask(w int) uint64 {
	if w >= 64 {
		return ^uint64(0)
	}

	return uint64(1)<<uint(w) - 1
}

func isPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}
