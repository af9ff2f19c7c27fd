// Package stream implements a seekable, growable in-memory byte stream whose
// backing storage is a sparse array of chunks drawn from a chunkpool.Pool,
// with holes read back as zero bytes.
package stream

import (
	"context"
	"io"
	"math"

	"github.com/google/uuid"

	"github.com/mel2oo/go-chunkstream/arraypool"
	"github.com/mel2oo/go-chunkstream/chunk"
	"github.com/mel2oo/go-chunkstream/chunkerr"
	"github.com/mel2oo/go-chunkstream/chunkpool"
	"github.com/mel2oo/go-chunkstream/memview"
)

type mode int

const (
	modeReadWrite mode = iota
	modeReadForward
	modeDisposed
)

// Stream is a seekable, growable byte stream whose storage is a sparse array
// of chunks. It is not safe for concurrent use.
type Stream struct {
	id uuid.UUID

	pool   *chunkpool.Pool
	arrays arraypool.ArrayPool

	chunks   []chunk.Chunk
	length   int64
	position int64

	mode mode

	// zeroChunk backs the hole segments handed to viewRange; grown lazily to
	// the largest span a single hole has needed so far.
	zeroChunk []byte
}

// New creates an empty Stream drawing chunks from pool and its sparse array
// from arrays.
func New(pool *chunkpool.Pool, arrays arraypool.ArrayPool) *Stream {
	return &Stream{
		id:     uuid.New(),
		pool:   pool,
		arrays: arrays,
	}
}

var (
	_ io.Reader     = (*Stream)(nil)
	_ io.Writer     = (*Stream)(nil)
	_ io.Seeker     = (*Stream)(nil)
	_ io.ByteWriter = (*Stream)(nil)
)

// ID identifies this stream instance.
func (s *Stream) ID() uuid.UUID {
	return s.id
}

// Length returns the stream's current logical byte length.
func (s *Stream) Length() int64 {
	return s.length
}

// Position returns the stream's current cursor.
func (s *Stream) Position() int64 {
	return s.position
}

func (s *Stream) chunkSize() int64 {
	return int64(s.pool.ChunkSize())
}

// chunkIndexOf returns (index, offset) for an absolute stream position.
func (s *Stream) chunkIndexOf(pos int64) (int64, int64) {
	cs := s.chunkSize()
	return pos / cs, pos % cs
}

// upperBound is the "end of range" convention: a position landing exactly on
// a chunk boundary is reported as the end of the preceding chunk, so that
// [from, to) ranges close uniformly.
func (s *Stream) upperBound(pos int64) (int64, int64) {
	cs := s.chunkSize()
	idx, off := s.chunkIndexOf(pos)
	if pos > 0 && off == 0 {
		return idx - 1, cs
	}
	return idx, off
}

func (s *Stream) checkNotDisposed() error {
	if s.mode == modeDisposed {
		return chunkerr.Wrap(chunkerr.ErrDisposed, "stream is disposed")
	}
	return nil
}

func (s *Stream) checkIndexInRange(idx int64) error {
	if idx > math.MaxInt32 {
		return chunkerr.Wrapf(chunkerr.ErrStreamTooLarge, "chunk index %d exceeds maximum", idx)
	}
	return nil
}

// ensureCapacity grows s.chunks, via the array pool, so that index idx is
// addressable.
func (s *Stream) ensureCapacity(idx int64) error {
	if err := s.checkIndexInRange(idx); err != nil {
		return err
	}
	need := int(idx) + 1
	if len(s.chunks) >= need {
		return nil
	}
	newArr, err := s.arrays.Rent(need)
	if err != nil {
		return err
	}
	copy(newArr, s.chunks)
	old := s.chunks
	s.chunks = newArr
	if old != nil {
		s.arrays.Return(old, false)
	}
	return nil
}

func (s *Stream) slotAt(idx int64) chunk.Chunk {
	if idx < 0 || idx >= int64(len(s.chunks)) {
		return chunk.Chunk{}
	}
	return s.chunks[idx]
}

// zeroSpan returns a shared, never-mutated all-zero slice of length n, used
// by viewRange to represent a hole without allocating one. n never exceeds a
// single chunk's size, since each hole segment spans at most one chunk.
func (s *Stream) zeroSpan(n int64) []byte {
	if int64(len(s.zeroChunk)) < n {
		s.zeroChunk = make([]byte, n)
	}
	return s.zeroChunk[:n]
}

// viewRange gathers [from, to) into a memview.MemView without copying: each
// chunk contributes a borrowed sub-view, and each hole contributes a shared
// zero-filled segment. Used by Read and ToArray to treat the stream's sparse
// chunk array as one contiguous sequence.
func (s *Stream) viewRange(from, to int64) memview.MemView {
	var mv memview.MemView
	pos := from
	for pos < to {
		idx, off := s.chunkIndexOf(pos)
		n := s.chunkSize() - off
		if remaining := to - pos; n > remaining {
			n = remaining
		}

		c := s.slotAt(idx)
		if c.IsNull() {
			mv.Append(memview.New(s.zeroSpan(n)))
		} else {
			mv.Append(c.SubView(int(off), int(off+n)))
		}
		pos += n
	}
	return mv
}

// releaseFullyConsumed returns to the pool every chunk from the one holding
// from up to the last one whose end is at or before to, used by Read in
// ReadForward mode once a chunk has been read in full.
func (s *Stream) releaseFullyConsumed(from, to int64) {
	cs := s.chunkSize()
	idx, _ := s.chunkIndexOf(from)
	for (idx+1)*cs <= to {
		if c := s.slotAt(idx); !c.IsNull() {
			s.releaseChunk(idx)
		}
		idx++
	}
}

// Read implements io.Reader. It reads up to min(len(p), Length()-Position())
// bytes, treating holes as zero, and advances Position by the count read.
func (s *Stream) Read(p []byte) (int, error) {
	if err := s.checkNotDisposed(); err != nil {
		return 0, err
	}

	avail := s.length - s.position
	if avail <= 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	toRead := int64(len(p))
	if toRead > avail {
		toRead = avail
	}

	from := s.position
	to := from + toRead
	view := s.viewRange(from, to)
	n, err := view.CreateReader().Read(p[:toRead])
	if err != nil {
		return n, err
	}

	s.position = to
	if s.mode == modeReadForward {
		s.releaseFullyConsumed(from, to)
	}
	return n, nil
}

// ReadByte reads a single byte, advancing Position. It returns -1 (not
// io.EOF) once Position reaches Length, matching the read_byte contract.
func (s *Stream) ReadByte() (int, error) {
	if err := s.checkNotDisposed(); err != nil {
		return 0, err
	}
	if s.position >= s.length {
		return -1, nil
	}

	idx, off := s.chunkIndexOf(s.position)
	c := s.slotAt(idx)
	var b byte
	if !c.IsNull() {
		b = c.Bytes()[off]
	}
	s.position++

	if s.mode == modeReadForward && off+1 == s.chunkSize() && !c.IsNull() {
		s.releaseChunk(idx)
	}

	return int(b), nil
}

// releaseChunk returns the chunk at idx to the pool and nulls the slot. Used
// by ReadForward mode as chunks are fully consumed.
func (s *Stream) releaseChunk(idx int64) {
	c := s.chunks[idx]
	if c.IsNull() {
		return
	}
	_ = s.pool.Return(&c)
	s.chunks[idx] = chunk.Chunk{}
}

// Write implements io.Writer. Writing past Length grows Length, zero-filling
// the gap; writing into an existing hole materializes a cleared chunk.
func (s *Stream) Write(p []byte) (int, error) {
	if err := s.checkNotDisposed(); err != nil {
		return 0, err
	}
	if s.mode == modeReadForward {
		return 0, chunkerr.Wrap(chunkerr.ErrInvalidOperation, "cannot write while in ReadForward mode")
	}
	if len(p) == 0 {
		return 0, nil
	}

	if s.position > s.length {
		s.zeroOldTail()
		s.length = s.position
	}

	endIdx, _ := s.upperBound(s.position + int64(len(p)))
	if err := s.ensureCapacity(endIdx); err != nil {
		return 0, err
	}

	var written int64
	n := int64(len(p))
	pos := s.position
	for written < n {
		idx, off := s.chunkIndexOf(pos)
		toCopy := s.chunkSize() - off
		if remaining := n - written; toCopy > remaining {
			toCopy = remaining
		}

		c := s.slotAt(idx)
		if c.IsNull() {
			clear := off != 0 || s.length > pos
			c = s.pool.Rent(clear)
			s.chunks[idx] = c
		}

		copy(c.Bytes()[off:off+toCopy], p[written:written+toCopy])

		written += toCopy
		pos += toCopy
		if pos > s.length {
			s.length = pos
		}
	}

	s.position = pos
	return int(written), nil
}

// WriteByte implements io.ByteWriter.
func (s *Stream) WriteByte(b byte) error {
	_, err := s.Write([]byte{b})
	return err
}

// SpanAtPosition returns a writable view into the chunk that would receive
// the next byte written at Position, renting it (and zero-filling any
// exposed gap) exactly as the first chunk of a Write would. It performs no
// copy and does not advance Position; it changes Length only to extend it to
// Position when Position lies past the end. Pair with a call to
// AdvanceInPlace once the caller has written into the returned slice. Used
// by bufwriter.Writer's scatter/gather protocol.
func (s *Stream) SpanAtPosition() ([]byte, error) {
	if err := s.checkNotDisposed(); err != nil {
		return nil, err
	}
	if s.mode == modeReadForward {
		return nil, chunkerr.Wrap(chunkerr.ErrInvalidOperation, "cannot write while in ReadForward mode")
	}

	if s.position > s.length {
		s.zeroOldTail()
		s.length = s.position
	}

	idx, off := s.chunkIndexOf(s.position)
	if err := s.ensureCapacity(idx); err != nil {
		return nil, err
	}

	c := s.slotAt(idx)
	if c.IsNull() {
		clear := off != 0 || s.length > s.position
		c = s.pool.Rent(clear)
		s.chunks[idx] = c
	}

	return c.Bytes()[off:], nil
}

// AdvanceInPlace moves Position forward by count bytes already written
// directly into the span SpanAtPosition most recently returned, growing
// Length as needed.
func (s *Stream) AdvanceInPlace(count int) error {
	if err := s.checkNotDisposed(); err != nil {
		return err
	}
	if count < 0 {
		return chunkerr.Wrap(chunkerr.ErrInvalidArgument, "advance count must not be negative")
	}
	s.position += int64(count)
	if s.position > s.length {
		s.length = s.position
	}
	return nil
}

// zeroOldTail is the gap-fill step Write takes before growing Length past
// its current value: it zeroes the unwritten tail of the chunk straddling
// the old length, leaving higher slots as holes (the "grow" case shared
// with SetLength, §4.4).
func (s *Stream) zeroOldTail() {
	if s.length == 0 {
		return
	}
	iOld, oOld := s.upperBound(s.length)
	if oOld >= s.chunkSize() {
		return
	}
	c := s.slotAt(iOld)
	if c.IsNull() {
		return
	}
	region := c.Bytes()
	for i := oOld; i < s.chunkSize(); i++ {
		region[i] = 0
	}
}

// Seek implements io.Seeker. Seeking never changes Length.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if err := s.checkNotDisposed(); err != nil {
		return 0, err
	}

	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = s.position
	case io.SeekEnd:
		base = s.length
	default:
		return 0, chunkerr.Wrap(chunkerr.ErrInvalidArgument, "invalid whence")
	}

	newPos := base + offset
	if newPos < 0 {
		return 0, chunkerr.Wrap(chunkerr.ErrInvalidArgument, "seek results in negative position")
	}
	if (offset > 0 && newPos < base) || (offset < 0 && newPos > base) {
		return 0, chunkerr.Wrap(chunkerr.ErrInvalidArgument, "seek arithmetic overflow")
	}

	if s.mode == modeReadForward && newPos < s.position {
		return 0, chunkerr.Wrap(chunkerr.ErrInvalidOperation, "cannot seek backward in ReadForward mode")
	}

	s.position = newPos
	return newPos, nil
}

// SetLength truncates or extends the stream's logical length, releasing
// chunks beyond the new length back to the pool and zero-filling any newly
// exposed tail or gap.
func (s *Stream) SetLength(newLength int64) error {
	if err := s.checkNotDisposed(); err != nil {
		return err
	}
	if s.mode == modeReadForward {
		return chunkerr.Wrap(chunkerr.ErrInvalidOperation, "cannot truncate while in ReadForward mode")
	}
	if newLength < 0 {
		return chunkerr.Wrap(chunkerr.ErrInvalidArgument, "length must not be negative")
	}

	iNew, oNew := s.upperBound(newLength)
	iOld, oOld := s.upperBound(s.length)
	if newLength == 0 {
		// upperBound(0) reports index 0 (its "pos > 0" guard doesn't apply
		// at the origin), but a zero length has no valid chunk at all.
		iNew = -1
	}

	if err := s.checkIndexInRange(iNew); err != nil {
		return err
	}

	switch {
	case iNew == iOld && oNew > oOld:
		if c := s.slotAt(iOld); !c.IsNull() {
			region := c.Bytes()
			for i := oOld; i < oNew; i++ {
				region[i] = 0
			}
		}

	case iNew > iOld:
		if c := s.slotAt(iOld); !c.IsNull() && oOld < s.chunkSize() {
			region := c.Bytes()
			for i := oOld; i < s.chunkSize(); i++ {
				region[i] = 0
			}
		}

	case iNew < iOld:
		lastValid := int64(len(s.chunks)) - 1
		upper := iOld
		if lastValid < upper {
			upper = lastValid
		}
		for i := upper; i > iNew; i-- {
			s.releaseChunk(i)
		}
	}

	s.length = newLength
	if s.position > s.length {
		s.position = s.length
	}
	return nil
}

// ByteRangeAction is the callback invoked per chunk by ForEach/ForEachContext.
// buf is a borrowed view bounded to the chunk's in-range sub-region; offset
// and count describe where that sub-region sits within [from, to).
type ByteRangeAction func(buf []byte, offset, count int) error

// ContextByteRangeAction is the cooperatively cancellable counterpart used by
// ForEachContext.
type ContextByteRangeAction func(ctx context.Context, buf []byte, offset, count int) error

// ForEach invokes action once per chunk touching [from, to), materializing
// holes into cleared chunks so every callback sees real memory. It does not
// itself alter Position or Length; if action does, iteration fails with
// chunkerr.ErrMutatedDuringIteration.
func (s *Stream) ForEach(from, to int64, action ByteRangeAction) error {
	return s.forEach(context.Background(), from, to, nil, func(_ context.Context, buf []byte, offset, count int) error {
		return action(buf, offset, count)
	})
}

// ForEachContext is ForEach with cooperative cancellation checked between
// chunk callbacks.
func (s *Stream) ForEachContext(ctx context.Context, from, to int64, action ContextByteRangeAction) error {
	return s.forEach(ctx, from, to, nil, action)
}

// releaseFunc decides, after a chunk's action has run, whether that chunk
// should be returned to the pool, given the in-chunk offset and count just
// fed to action, and whether this was the first chunk forEach visited (which
// may have started mid-chunk, at an offset it did not itself establish). A
// nil releaseFunc means no chunk is ever released.
type releaseFunc func(off, n int64, isFirst bool) bool

func (s *Stream) forEach(ctx context.Context, from, to int64, release releaseFunc, action ContextByteRangeAction) error {
	if err := s.checkNotDisposed(); err != nil {
		return err
	}
	if from < 0 || to < 0 || from > s.length || to > s.length {
		return chunkerr.Wrap(chunkerr.ErrInvalidArgument, "range out of bounds")
	}
	if from > to {
		return chunkerr.Wrap(chunkerr.ErrReversedRange, "from must not exceed to")
	}
	if release != nil && to != s.length {
		return chunkerr.Wrap(chunkerr.ErrInvalidArgument, "release traversal must run to the logical end")
	}

	savedPos, savedLen := s.position, s.length

	offset := 0
	pos := from
	for pos < to {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		idx, off := s.chunkIndexOf(pos)
		n := s.chunkSize() - off
		if remaining := to - pos; n > remaining {
			n = remaining
		}

		if err := s.ensureCapacity(idx); err != nil {
			return err
		}
		c := s.slotAt(idx)
		if c.IsNull() {
			c = s.pool.Rent(true)
			s.chunks[idx] = c
		}

		if err := action(ctx, c.Bytes()[off:off+n], offset, int(n)); err != nil {
			return err
		}
		if s.position != savedPos || s.length != savedLen {
			return chunkerr.Wrap(chunkerr.ErrMutatedDuringIteration, "callback mutated Position or Length")
		}

		if release != nil && release(off, n, pos == from) {
			s.releaseChunk(idx)
		}

		offset += int(n)
		pos += n
	}

	return nil
}

// MoveTo copies [Position, Length) to sink, then sets Length = Position. A
// chunk is returned to the pool as soon as it has been written up to its
// end, except a first chunk that still holds bytes before Position; once the
// move completes, every slot past the new Length is released as well.
func (s *Stream) MoveTo(sink io.Writer) (int64, error) {
	return s.moveTo(context.Background(), sink)
}

// MoveToContext is MoveTo with cooperative cancellation checked between
// chunks. On cancellation or a sink error, chunks already released stay
// released (their slots read back as zero) and Length keeps the value it had
// before the call.
func (s *Stream) MoveToContext(ctx context.Context, sink io.Writer) (int64, error) {
	return s.moveTo(ctx, sink)
}

func (s *Stream) moveTo(ctx context.Context, sink io.Writer) (int64, error) {
	if err := s.checkNotDisposed(); err != nil {
		return 0, err
	}

	from := s.position
	to := s.length
	var written int64

	// Chunks released along the way simply become holes; Length is only
	// advanced to from (the new logical end) once the whole range has been
	// moved, matching "length is left as on last successful chunk" for a
	// cancelled/failed traversal (already-released chunks stay released,
	// but Length itself is untouched until the range fully completes).
	//
	// A chunk is only released once it has been read in full (off+n reaches
	// its end). The first chunk visited is the one exception: when from
	// doesn't fall on a chunk boundary, that chunk also holds the surviving
	// prefix [idx*chunkSize, from), which this traversal never even looks
	// at, so it must never be released regardless of where this call's
	// slice of it ends.
	err := s.forEach(ctx, from, to, func(off, n int64, isFirst bool) bool {
		if isFirst && off != 0 {
			return false
		}
		return off+n == s.chunkSize()
	}, func(_ context.Context, buf []byte, _ int, count int) error {
		n, werr := sink.Write(buf)
		written += int64(n)
		if werr != nil {
			return werr
		}
		if n != count {
			return io.ErrShortWrite
		}
		return nil
	})
	if err != nil {
		return written, err
	}

	// The chunk holding the last byte is usually only partly filled, so the
	// rule above keeps it; release every slot past the new end now so none
	// of them outlives the truncation.
	keep, _ := s.upperBound(from)
	if from == 0 {
		keep = -1
	}
	for i := int64(len(s.chunks)) - 1; i > keep; i-- {
		s.releaseChunk(i)
	}

	s.length = from
	return written, nil
}

// ToArray returns a fresh copy of the whole stream's contents. It does not
// touch Position, and (unlike Read) never releases chunks in ReadForward
// mode.
func (s *Stream) ToArray() ([]byte, error) {
	if err := s.checkNotDisposed(); err != nil {
		return nil, err
	}
	return s.viewRange(0, s.length).Bytes(), nil
}

// Dispose returns every non-null chunk to the pool (descending index order)
// and the chunk array to its array pool, then resets the stream to empty.
// Idempotent; after Dispose every other operation fails with
// chunkerr.ErrDisposed.
func (s *Stream) Dispose() error {
	if s.mode == modeDisposed {
		return nil
	}

	for i := len(s.chunks) - 1; i >= 0; i-- {
		c := s.chunks[i]
		if !c.IsNull() {
			_ = s.pool.Return(&c)
		}
	}
	if s.chunks != nil {
		s.arrays.Return(s.chunks, false)
	}

	s.chunks = nil
	s.length = 0
	s.position = 0
	s.mode = modeDisposed
	return nil
}

// AsOutputStream switches the stream from ReadWrite into the ReadForward
// state, positioned at from: subsequent reads are monotonic and release each
// chunk as soon as it is fully consumed. Writes, backward seeks, and
// truncation then fail with chunkerr.ErrInvalidOperation.
func (s *Stream) AsOutputStream(from int64) error {
	if err := s.checkNotDisposed(); err != nil {
		return err
	}
	if s.mode != modeReadWrite {
		return chunkerr.Wrap(chunkerr.ErrInvalidOperation, "stream is not in the ReadWrite state")
	}
	if from < 0 || from > s.length {
		return chunkerr.Wrap(chunkerr.ErrInvalidArgument, "from out of range")
	}

	s.position = from
	s.mode = modeReadForward
	return nil
}
