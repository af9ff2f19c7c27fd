// Package arraypool provides the rent/return strategy a chunked stream uses
// to grow its sparse chunk-index array. The default strategy is a plain heap
// allocation rounded up to the next power of two; callers may substitute a
// more sophisticated (e.g. bucketed) implementation behind the same
// interface.
package arraypool

import (
	"math/bits"

	"github.com/mel2oo/go-chunkstream/chunk"
	"github.com/mel2oo/go-chunkstream/chunkerr"
)

// maxPow2Request is the largest length for which Rent rounds up to a power
// of two; above this, Rent sizes the array exactly to the request instead of
// risking a much larger allocation for marginal gain.
const maxPow2Request = 1 << 30

// ArrayPool rents and returns the []chunk.Chunk backing a stream's sparse
// chunk array.
type ArrayPool interface {
	// Rent returns a slice of at least minLen null chunk.Chunk slots.
	// Fails with chunkerr.ErrInvalidArgument if minLen < 0.
	Rent(minLen int) ([]chunk.Chunk, error)

	// Return reclaims arr. If clear is true and the strategy reuses
	// storage, every slot must read back null on a later Rent.
	Return(arr []chunk.Chunk, clear bool)
}

type defaultArrayPool struct{}

// NewDefaultArrayPool returns the trivial heap-backed ArrayPool: every Rent
// is a fresh allocation, every Return is a no-op left to the garbage
// collector.
func NewDefaultArrayPool() ArrayPool {
	return defaultArrayPool{}
}

func (defaultArrayPool) Rent(minLen int) ([]chunk.Chunk, error) {
	if minLen < 0 {
		return nil, chunkerr.Wrapf(chunkerr.ErrInvalidArgument, "array length %d must not be negative", minLen)
	}
	if minLen == 0 {
		return []chunk.Chunk{}, nil
	}

	size := minLen
	if minLen <= maxPow2Request {
		size = nextPowerOfTwo(minLen)
	}
	return make([]chunk.Chunk, size), nil
}

func (defaultArrayPool) Return(arr []chunk.Chunk, clear bool) {
	if !clear {
		return
	}
	for i := range arr {
		arr[i] = chunk.Chunk{}
	}
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
