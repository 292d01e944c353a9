package tags

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// MaxSlots is the largest table supported. Slot masks are 64-bit words.
const MaxSlots = 64

// Slot is a snapshot of one table entry.
type Slot struct {
	Valid    bool
	Addr     uint64
	Filled   bool
	RefCount uint32
}

// View is read access to the table, as handed to availability policies.
type View interface {
	SlotCnt() int
	Slot(i int) Slot
}

// Table is the set of fully-associative slots. Tags live in an Akita cache
// directory with a single set, so every slot is a way of that set:
//
//   - Block.Tag holds the line address
//   - Block.IsValid is the valid bit
//   - Block.ReadCount is the reference count
//   - Block.IsLocked marks a slot allocated but not yet filled
//
// Line data lives beside the directory, indexed by way.
type Table struct {
	dir       *akitacache.DirectoryImpl
	blocks    []*akitacache.Block
	data      []uint64
	refCntMax uint32
}

// NewTable creates an empty table.
func NewTable(slotCnt int, refCntMax uint32) *Table {
	if slotCnt < 1 || slotCnt > MaxSlots {
		panic(fmt.Sprintf("tags: slot count %d out of range [1,%d]",
			slotCnt, MaxSlots))
	}

	if refCntMax < 1 {
		panic("tags: ref count max must be at least 1")
	}

	t := &Table{
		dir: akitacache.NewDirectory(
			1,
			slotCnt,
			1,
			akitacache.NewLRUVictimFinder(),
		),
		data:      make([]uint64, slotCnt),
		refCntMax: refCntMax,
	}
	t.bindBlocks()

	return t
}

func (t *Table) bindBlocks() {
	set := t.dir.GetSets()[0]
	t.blocks = make([]*akitacache.Block, len(set.Blocks))

	for _, b := range set.Blocks {
		t.blocks[b.WayID] = b
	}
}

// SlotCnt returns the number of slots.
func (t *Table) SlotCnt() int {
	return len(t.blocks)
}

// RefCntMax returns the largest legal reference count.
func (t *Table) RefCntMax() uint32 {
	return t.refCntMax
}

// Slot returns a snapshot of slot i.
func (t *Table) Slot(i int) Slot {
	b := t.block(i)

	return Slot{
		Valid:    b.IsValid,
		Addr:     b.Tag,
		Filled:   b.IsValid && !b.IsLocked,
		RefCount: uint32(b.ReadCount),
	}
}

// Data returns the line data stored in slot i.
func (t *Table) Data(i int) uint64 {
	t.block(i)
	return t.data[i]
}

// Lookup returns the slot holding addr, if any.
func (t *Table) Lookup(addr uint64) (int, bool) {
	b := t.dir.Lookup(0, addr)
	if b == nil {
		return 0, false
	}

	return b.WayID, true
}

// Reset invalidates every slot and clears all counts.
func (t *Table) Reset() {
	t.dir.Reset()
	t.bindBlocks()

	for i := range t.data {
		t.data[i] = 0
	}
}

func (t *Table) block(i int) *akitacache.Block {
	if i < 0 || i >= len(t.blocks) {
		panic(&InvariantViolation{
			Check:  CheckSlotRange,
			Detail: fmt.Sprintf("slot %d of %d", i, len(t.blocks)),
		})
	}

	return t.blocks[i]
}

func (t *Table) refCount(i int) int {
	return t.block(i).ReadCount
}

func (t *Table) setRefCount(i int, n int) {
	t.block(i).ReadCount = n
}

func (t *Table) allocate(i int, addr uint64) {
	b := t.block(i)
	b.IsValid = true
	b.Tag = addr
	b.IsLocked = true
}

func (t *Table) fill(i int, data uint64) {
	b := t.block(i)
	b.IsLocked = false
	t.data[i] = data
}

func (t *Table) checkDuplicateTags() {
	if !checksEnabled {
		return
	}

	for i := 0; i < len(t.blocks)-1; i++ {
		if !t.blocks[i].IsValid {
			continue
		}

		for j := i + 1; j < len(t.blocks); j++ {
			assert(!t.blocks[j].IsValid || t.blocks[j].Tag != t.blocks[i].Tag,
				CheckDuplicateTags, "slots %d and %d both hold 0x%x",
				i, j, t.blocks[i].Tag)
		}
	}
}
