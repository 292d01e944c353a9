package cache

import "github.com/sarchlab/l0csim/timing/tags"

// Request is what a unit presents on a request port.
type Request struct {
	ID   uint64
	Addr uint64
}

// StatusResp reports how a request was classified. Exactly one of IsHit,
// IsMiss and MustRetry is set.
type StatusResp struct {
	ID uint64
	// IsHit means data is delivered in the same cycle as this status.
	IsHit bool
	// IsMiss means data follows on a later cycle.
	IsMiss bool
	// MustRetry means the request was dropped and must be sent again.
	MustRetry bool

	Status tags.Status
}

// DataResp carries one line back to the unit.
type DataResp struct {
	ID   uint64
	Data uint64
}

// MemReq is a fetch of one memory word.
type MemReq struct {
	TxnID string
	Tag   uint64
	Addr  uint64
}

// MemResp is the memory word answering the MemReq with the same Tag.
type MemResp struct {
	TxnID string
	Tag   uint64
	Data  uint64
}
