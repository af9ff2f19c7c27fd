// Package bufwriter implements a scatter/gather write adapter over a
// stream.Stream: callers ask for a writable span, fill it in place, then
// advance the stream past what they wrote, avoiding an extra copy whenever
// the span falls entirely within one chunk.
package bufwriter

import (
	"github.com/mel2oo/go-chunkstream/chunkerr"
	"github.com/mel2oo/go-chunkstream/stream"
)

// Writer drives writes into a *stream.Stream through GetSpan/Advance pairs.
// Exactly one Advance must follow each GetSpan before the next GetSpan.
type Writer struct {
	s *stream.Stream

	pending  []byte // non-nil while the last GetSpan returned a temporary
	inChunk  bool   // true while the last GetSpan returned a view into the stream itself
	spanSize int
}

// New returns a Writer driving writes into s.
func New(s *stream.Stream) *Writer {
	return &Writer{s: s}
}

// GetSpan returns a writable region of at least sizeHint bytes (or of
// whatever remains in the current chunk, if sizeHint is 0 or fits there).
// The caller must write into the returned slice and then call Advance
// exactly once with the number of bytes actually written, before calling
// GetSpan again.
func (w *Writer) GetSpan(sizeHint int) ([]byte, error) {
	if w.pending != nil || w.inChunk {
		return nil, chunkerr.Wrap(chunkerr.ErrInvalidOperation, "Advance must be called before the next GetSpan")
	}

	remaining, err := w.currentChunkRemainder()
	if err != nil {
		return nil, err
	}

	if sizeHint == 0 || sizeHint <= len(remaining) {
		w.inChunk = true
		w.spanSize = len(remaining)
		return remaining, nil
	}

	w.pending = make([]byte, sizeHint)
	w.spanSize = sizeHint
	return w.pending, nil
}

func (w *Writer) currentChunkRemainder() ([]byte, error) {
	return w.s.SpanAtPosition()
}

// Advance completes the GetSpan/Advance pair. If the last span was a direct
// view into the stream, the stream's Position and Length are adjusted by
// count with no copy. If it was a temporary buffer, its first count bytes
// are written through the stream's normal write path and the temporary is
// discarded.
func (w *Writer) Advance(count int) error {
	switch {
	case w.inChunk:
		if count > w.spanSize {
			return chunkerr.Wrap(chunkerr.ErrInvalidArgument, "advance count exceeds the span returned by GetSpan")
		}
		w.inChunk = false
		w.spanSize = 0
		return w.s.AdvanceInPlace(count)

	case w.pending != nil:
		if count > len(w.pending) {
			return chunkerr.Wrap(chunkerr.ErrInvalidArgument, "advance count exceeds the span returned by GetSpan")
		}
		data := w.pending[:count]
		w.pending = nil
		w.spanSize = 0
		_, err := w.s.Write(data)
		return err

	default:
		return chunkerr.Wrap(chunkerr.ErrInvalidOperation, "Advance called without a matching GetSpan")
	}
}
