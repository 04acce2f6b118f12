// Package xatomic provides cache-line padded atomic counters for the
// single-writer, multiple-reader cursors used across the ring, worker and
// timing wheel packages.
package xatomic

import "sync/atomic"

// PaddedInt64 is an atomic 64-bit counter padded to a full cache line to
// prevent false sharing between a hot producer/consumer cursor and
// neighboring fields.
type PaddedInt64 struct {
	atomic.Int64
	_ [56]byte // pad atomic.Int64 (8 bytes) out to 64 bytes
}

// Load reads the counter with acquire semantics.
func (p *PaddedInt64) Load() int64 { return p.Int64.Load() }

// Store writes the counter with release semantics.
func (p *PaddedInt64) Store(v int64) { p.Int64.Store(v) }

// Add atomically adds delta and returns the new value.
func (p *PaddedInt64) Add(delta int64) int64 { return p.Int64.Add(delta) }

// CompareAndSwap atomically compares and swaps the value.
func (p *PaddedInt64) CompareAndSwap(old, new int64) bool {
	return p.Int64.CompareAndSwap(old, new)
}

// PaddedBool is a cache-line padded sequentially-consistent flag.
type PaddedBool struct {
	atomic.Bool
	_ [63]byte
}
