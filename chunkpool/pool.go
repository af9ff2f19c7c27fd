// Package chunkpool implements a fixed-capacity, intrusive-free-list pool of
// equally sized byte chunks. Renting and returning a chunk is O(1) under a
// single short-held lock; when the pool is exhausted, Rent transparently
// falls back to a heap allocation.
package chunkpool

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mel2oo/go-chunkstream/chunk"
	"github.com/mel2oo/go-chunkstream/chunkerr"
	"github.com/mel2oo/go-chunkstream/optionals"
)

// maxBufferLen is the largest allowed chunk_size * chunk_count product.
// Chosen, as in the source, to leave headroom below the architecture's
// practical slice-length ceiling.
const maxBufferLen = 0x7FFFFFC7

// nilOffset is the intrusive free list's end-of-list sentinel: stored as an
// int32 in a free chunk's first four bytes.
const nilOffset int32 = -1

// CheckInvariants, when true, makes Return and Rent run extra consistency
// assertions and panic on violation. Off by default; tests that want to
// stress the free list can flip it.
var CheckInvariants = false

var (
	totalPoolAllocated   int64
	totalMemoryAllocated int64
)

// TotalPoolAllocated returns the number of bytes currently lent out across
// every Pool in the process.
func TotalPoolAllocated() int64 {
	return atomic.LoadInt64(&totalPoolAllocated)
}

// TotalMemoryAllocated returns the number of bytes currently outstanding in
// heap-fallback chunks across every Pool in the process.
func TotalMemoryAllocated() int64 {
	return atomic.LoadInt64(&totalMemoryAllocated)
}

// freeLink is a typed view over the first 4 bytes of a free chunk, used to
// thread the intrusive free list through the pool's shared buffer instead of
// doing raw pointer arithmetic.
type freeLink []byte

func (l freeLink) next() int32 {
	return int32(binary.LittleEndian.Uint32(l[:4]))
}

func (l freeLink) setNext(v int32) {
	binary.LittleEndian.PutUint32(l[:4], uint32(v))
}

// Pool carves a single contiguous buffer into chunkCount chunks of
// chunkSize bytes each, and lends/reclaims them through an intrusive free
// list threaded through the chunks themselves.
type Pool struct {
	id uuid.UUID

	chunkSize  int
	chunkCount int
	buffer     []byte

	mu   sync.Mutex
	next int32 // offset of the head of the free list, or nilOffset

	bytesLent      int64 // per-pool counter, mirrors totalPoolAllocated's delta for this pool
	bytesAllocated int64 // per-pool heap-fallback counter
}

// New constructs a Pool of chunkCount chunks, each chunkSize bytes.
// Fails with chunkerr.ErrInvalidArgument when chunkSize < 4, chunkCount < 1,
// or chunkSize*chunkCount exceeds the pool's maximum buffer length.
func New(chunkSize, chunkCount int) (*Pool, error) {
	if chunkSize < 4 {
		return nil, chunkerr.Wrapf(chunkerr.ErrInvalidArgument, "chunk size %d must be at least 4", chunkSize)
	}
	if chunkCount < 1 {
		return nil, chunkerr.Wrapf(chunkerr.ErrInvalidArgument, "chunk count %d must be at least 1", chunkCount)
	}
	if chunkSize > maxBufferLen/chunkCount {
		return nil, chunkerr.Wrapf(chunkerr.ErrInvalidArgument,
			"chunk_size * chunk_count = %d exceeds maximum buffer length %d", chunkSize*chunkCount, maxBufferLen)
	}

	p := &Pool{
		id:         uuid.New(),
		chunkSize:  chunkSize,
		chunkCount: chunkCount,
		buffer:     make([]byte, chunkSize*chunkCount),
	}
	p.initFreeList()
	return p, nil
}

func (p *Pool) initFreeList() {
	for i := 0; i < p.chunkCount; i++ {
		offset := i * p.chunkSize
		link := freeLink(p.buffer[offset : offset+4])
		if i == p.chunkCount-1 {
			link.setNext(nilOffset)
		} else {
			link.setNext(int32((i + 1) * p.chunkSize))
		}
	}
	p.next = 0
}

// ID identifies this pool instance, used in ForeignChunk error messages.
func (p *Pool) ID() uuid.UUID {
	return p.id
}

// ChunkSize returns the pool's fixed chunk size.
func (p *Pool) ChunkSize() int {
	return p.chunkSize
}

// ChunkCount returns the total number of chunks the pool was constructed
// with, free or lent.
func (p *Pool) ChunkCount() int {
	return p.chunkCount
}

// BytesLent returns the number of bytes currently lent from this pool's own
// buffer (a per-pool counterpart to TotalPoolAllocated).
func (p *Pool) BytesLent() int64 {
	return atomic.LoadInt64(&p.bytesLent)
}

// BytesAllocated returns the number of heap-fallback bytes currently
// outstanding for chunks that trace back to this Pool's Rent calls.
func (p *Pool) BytesAllocated() int64 {
	return atomic.LoadInt64(&p.bytesAllocated)
}

// TryRent pops the head of the free list and returns it as Some(chunk), or
// None if the pool is exhausted. If clear is true, the chunk's region is
// zeroed before it is handed back (undoing the free-list bytes living in its
// first four bytes).
func (p *Pool) TryRent(clear bool) optionals.Optional[chunk.Chunk] {
	p.mu.Lock()
	offset := p.next
	if offset == nilOffset {
		p.mu.Unlock()
		return optionals.None[chunk.Chunk]()
	}
	region := p.buffer[offset : int(offset)+p.chunkSize]
	p.next = freeLink(region[:4]).next()
	p.mu.Unlock()

	if clear {
		for i := range region {
			region[i] = 0
		}
	}

	atomic.AddInt64(&totalPoolAllocated, int64(p.chunkSize))
	atomic.AddInt64(&p.bytesLent, int64(p.chunkSize))

	if CheckInvariants {
		p.assertFreeListWellFormed()
	}

	return optionals.Some(chunk.New(int64(offset), region))
}

// Rent is like TryRent, but falls back to a freshly heap-allocated chunk
// (handle chunk.NullHandle) when the pool is exhausted.
func (p *Pool) Rent(clear bool) chunk.Chunk {
	if c, ok := p.TryRent(clear).Get(); ok {
		return c
	}

	region := make([]byte, p.chunkSize)
	atomic.AddInt64(&totalMemoryAllocated, int64(p.chunkSize))
	atomic.AddInt64(&p.bytesAllocated, int64(p.chunkSize))
	return chunk.NewHeap(region)
}

// IsFromPool reports whether c is a non-null chunk whose region is backed by
// this pool's buffer at the offset given by its own handle.
func (p *Pool) IsFromPool(c chunk.Chunk) bool {
	if c.IsNull() || !c.IsFromPool() {
		return false
	}
	offset := c.Handle()
	if offset < 0 || int(offset)+p.chunkSize > len(p.buffer) {
		return false
	}
	region := p.buffer[offset : int(offset)+p.chunkSize]
	return len(region) == len(c.Region()) && &region[0] == &c.Region()[0]
}

// Return gives c back to the pool, clearing the caller's slot to the null
// chunk on success. Fails with chunkerr.ErrInvalidArgument if c is null, and
// with chunkerr.ErrForeignChunk if c is pool-provenance but not from this
// pool's buffer.
func (p *Pool) Return(c *chunk.Chunk) error {
	if c.IsNull() {
		return chunkerr.Wrap(chunkerr.ErrInvalidArgument, "cannot return a null chunk")
	}

	if c.IsFromHeap() {
		atomic.AddInt64(&totalMemoryAllocated, -int64(c.Len()))
		atomic.AddInt64(&p.bytesAllocated, -int64(c.Len()))
		*c = chunk.Chunk{}
		return nil
	}

	offset := c.Handle()
	if offset < 0 || int(offset)+p.chunkSize > len(p.buffer) {
		return chunkerr.Wrapf(chunkerr.ErrForeignChunk, "chunk handle out of range for pool %s", p.id)
	}
	region := p.buffer[offset : int(offset)+p.chunkSize]
	if len(region) != len(c.Region()) || &region[0] != &c.Region()[0] {
		return chunkerr.Wrapf(chunkerr.ErrForeignChunk, "chunk does not belong to the buffer of pool %s", p.id)
	}

	p.mu.Lock()
	freeLink(region[:4]).setNext(p.next)
	p.next = int32(offset)
	p.mu.Unlock()

	atomic.AddInt64(&totalPoolAllocated, -int64(p.chunkSize))
	atomic.AddInt64(&p.bytesLent, -int64(p.chunkSize))

	if CheckInvariants {
		p.assertFreeListWellFormed()
	}

	*c = chunk.Chunk{}
	return nil
}

// assertFreeListWellFormed walks the free list and panics if it is cyclic or
// runs off the end of the buffer. Only called when CheckInvariants is set.
func (p *Pool) assertFreeListWellFormed() {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[int32]bool)
	for off := p.next; off != nilOffset; {
		if seen[off] {
			panic(errors.Errorf("chunkpool: cyclic free list at offset %d", off))
		}
		if off < 0 || int(off)+4 > len(p.buffer) {
			panic(errors.Errorf("chunkpool: free list offset %d out of range", off))
		}
		seen[off] = true
		off = freeLink(p.buffer[off : off+4]).next()
	}
}
