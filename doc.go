// Package chunkstream ties together the pieces of an in-memory,
// chunk-backed byte stream:
//
//   - chunkpool lends and reclaims fixed-size byte chunks from a shared
//     buffer via an intrusive free list, falling back to the heap when
//     exhausted.
//   - chunk is the immutable value handed out by a pool.
//   - arraypool grows the sparse array a stream uses to index its chunks.
//   - stream is the seekable, growable byte stream itself.
//   - bufwriter adapts a stream to a scatter/gather write protocol.
//
// Callers import the subpackages directly; this package carries no
// exported API of its own.
package chunkstream
