// Package chunk defines the immutable Chunk value lent out by a chunk pool
// and held, possibly null, in a chunked stream's sparse chunk array.
package chunk

import (
	"github.com/mel2oo/go-chunkstream/memview"
)

// NullHandle is the sentinel handle carried by a heap-provenance chunk, and
// by the zero-value null Chunk.
const NullHandle int64 = -1

// Chunk is a fixed-size contiguous byte region plus a handle identifying its
// origin. The zero value is the null chunk: no region, handle NullHandle.
//
// A non-null chunk's region length equals its pool's configured chunk size,
// except for heap-fallback chunks which are sized the same way but carry no
// pool affiliation. Chunk values are cheap to copy (one int64, one slice
// header) and are immutable: nothing in this package ever mutates region's
// length or reslices it to a different backing array.
type Chunk struct {
	handle int64
	region []byte
}

// New wraps region as a pool-provenance chunk with the given handle. Callers
// outside this module's packages should not need this; it exists so
// chunkpool can construct chunks without an import cycle back into chunk.
func New(handle int64, region []byte) Chunk {
	return Chunk{handle: handle, region: region}
}

// NewHeap wraps region as a heap-provenance chunk (handle NullHandle).
func NewHeap(region []byte) Chunk {
	return Chunk{handle: NullHandle, region: region}
}

// IsNull reports whether c carries no region.
func (c Chunk) IsNull() bool {
	return c.region == nil
}

// IsFromPool reports whether c is non-null and was rented from a pool.
func (c Chunk) IsFromPool() bool {
	return !c.IsNull() && c.handle != NullHandle
}

// IsFromHeap reports whether c is non-null and is a heap-fallback chunk.
func (c Chunk) IsFromHeap() bool {
	return !c.IsNull() && c.handle == NullHandle
}

// Len returns the length of c's region, or 0 for a null chunk.
func (c Chunk) Len() int {
	return len(c.region)
}

// Handle returns c's provenance handle: a pool buffer offset, or NullHandle
// for a heap-provenance or null chunk.
func (c Chunk) Handle() int64 {
	if c.IsNull() {
		return NullHandle
	}
	return c.handle
}

// Bytes returns the chunk's full backing region. Panics if c is null.
func (c Chunk) Bytes() []byte {
	if c.IsNull() {
		panic("chunk: Bytes called on a null chunk")
	}
	return c.region
}

// Region returns the chunk's backing region like Bytes, but returns nil
// instead of panicking for a null chunk. Used by callers (e.g. chunkpool)
// that match a chunk against a pool's backing buffer by address.
func (c Chunk) Region() []byte {
	return c.region
}

// View returns a borrowed, zero-copy view over the chunk's whole region.
// Panics if c is null.
func (c Chunk) View() memview.MemView {
	return memview.New(c.Bytes())
}

// SubView returns a borrowed view over c.region[start:end). Panics if c is
// null; returns an empty view for an invalid range, matching memview.MemView
// semantics.
func (c Chunk) SubView(start, end int) memview.MemView {
	return c.View().SubView(int64(start), int64(end))
}
