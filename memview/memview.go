// Package memview implements a borrowed, multi-segment view over one or
// more byte slices. It lets a reader treat several discontiguous buffers
// (for instance the chunks making up part of a sparse chunked stream) as
// one contiguous byte sequence without copying them together first.
package memview

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// MemView is a read-only "view" over a sequence of byte slices. Conceptually
// it is a [][]byte with helper methods that make it behave like a single
// []byte. Copying a MemView is cheap (it copies slice headers only); use
// DeepCopy for a version that is independent of future appends to the
// original's segment list.
//
// The zero value is an empty, ready to use MemView.
type MemView struct {
	segs   [][]byte
	length int64
}

// New creates a MemView over data without copying it. The caller must not
// mutate data for as long as the MemView (or any view derived from it) is in
// use.
func New(data []byte) MemView {
	if len(data) == 0 {
		return MemView{}
	}
	return MemView{segs: [][]byte{data}, length: int64(len(data))}
}

// Append adds src's segments to the end of dst.
func (dst *MemView) Append(src MemView) {
	dst.segs = append(dst.segs, src.segs...)
	dst.length += src.length
}

// DeepCopy returns a MemView whose segment list is independent of mv's: later
// appends to either do not affect the other. The underlying byte slices
// themselves are still shared.
func (mv MemView) DeepCopy() MemView {
	segs := make([][]byte, len(mv.segs))
	copy(segs, mv.segs)
	return MemView{segs: segs, length: mv.length}
}

// Len returns the total number of bytes in the view.
func (mv MemView) Len() int64 {
	return mv.length
}

// GetByte returns the byte at index, or 0 if index is out of bounds.
func (mv MemView) GetByte(index int64) byte {
	if index < 0 {
		return 0
	}
	n := index
	for _, seg := range mv.segs {
		l := int64(len(seg))
		if n < l {
			return seg[n]
		}
		n -= l
	}
	return 0
}

// SubView returns mv[start:end). Returns an empty MemView if the range is
// invalid (start >= end, or either bound is out of range).
func (mv MemView) SubView(start, end int64) MemView {
	if start < 0 || start >= end || end > mv.length {
		return MemView{}
	}

	startSeg, startOff := -1, 0
	endSeg, endOff := -1, 0
	var n int64
	for i, seg := range mv.segs {
		l := int64(len(seg))
		if startSeg == -1 && n+l > start {
			startSeg, startOff = i, int(start-n)
		}
		if endSeg == -1 && n+l >= end {
			endSeg, endOff = i, int(end-n)
			break
		}
		n += l
	}
	if startSeg == -1 || endSeg == -1 {
		return MemView{}
	}

	segs := make([][]byte, endSeg+1-startSeg)
	copy(segs, mv.segs[startSeg:endSeg+1])
	result := MemView{segs: segs, length: end - start}
	if len(result.segs) == 1 {
		result.segs[0] = result.segs[0][startOff:endOff]
	} else {
		result.segs[0] = result.segs[0][startOff:]
		result.segs[len(result.segs)-1] = result.segs[len(result.segs)-1][:endOff]
	}
	return result
}

// Bytes returns a copy of the view's contents as a single contiguous slice.
func (mv MemView) Bytes() []byte {
	out := make([]byte, mv.length)
	offset := 0
	for _, seg := range mv.segs {
		offset += copy(out[offset:], seg)
	}
	return out
}

// String returns a copy of the view's contents as a string.
func (mv MemView) String() string {
	var buf bytes.Buffer
	buf.Grow(int(mv.length))
	for _, seg := range mv.segs {
		buf.Write(seg)
	}
	return buf.String()
}

// Equal reports whether left and right reference byte-for-byte identical
// content (regardless of how each is segmented).
func (left MemView) Equal(right MemView) bool {
	if left.length != right.length {
		return false
	}

	li, lo, ri, ro := 0, 0, 0, 0
	for idx := int64(0); idx < left.length; idx++ {
		for lo >= len(left.segs[li]) {
			li, lo = li+1, 0
		}
		for ro >= len(right.segs[ri]) {
			ri, ro = ri+1, 0
		}
		if left.segs[li][lo] != right.segs[ri][ro] {
			return false
		}
		lo++
		ro++
	}
	return true
}

// CreateReader returns a fresh Reader positioned at the start of mv.
func (mv *MemView) CreateReader() *Reader {
	return &Reader{mv: mv}
}

// Reader reads sequentially through a MemView and supports seeking, matching
// io.ReadSeeker.
type Reader struct {
	mv *MemView

	segIdx int   // index into mv.segs for the next read
	segOff int   // offset into mv.segs[segIdx] for the next read
	pos    int64 // absolute offset into mv for the next read
}

var _ io.ReadSeeker = (*Reader)(nil)

// Read implements io.Reader. Per bytes.Buffer's convention, it returns
// io.EOF only when len(out) > 0 and there is nothing left to read.
func (r *Reader) Read(out []byte) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	if r.segIdx >= len(r.mv.segs) {
		return 0, io.EOF
	}

	n := 0
	for i := r.segIdx; i < len(r.mv.segs); i++ {
		seg := r.mv.segs[i][r.segOff:]
		cp := copy(out[n:], seg)
		n += cp
		if cp == len(seg) {
			r.segIdx++
			r.segOff = 0
			r.pos += int64(cp)
		} else {
			r.segOff += cp
			r.pos += int64(cp)
			return n, nil
		}
		if n == len(out) {
			return n, nil
		}
	}
	return n, nil
}

// ReadByte implements io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	for r.segIdx < len(r.mv.segs) {
		seg := r.mv.segs[r.segIdx]
		if r.segOff < len(seg) {
			b := seg[r.segOff]
			r.segOff++
			r.pos++
			return b, nil
		}
		r.segIdx++
		r.segOff = 0
	}
	return 0, io.EOF
}

// Seek implements io.Seeker.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	segIdx, segOff, pos := r.segIdx, r.segOff, r.pos
	var err error
	defer func() {
		if err != nil {
			r.segIdx, r.segOff, r.pos = segIdx, segOff, pos
		}
	}()

	switch whence {
	case io.SeekStart:
		r.segIdx, r.segOff, r.pos = 0, 0, 0
		return r.Seek(offset, io.SeekCurrent)
	case io.SeekEnd:
		r.segIdx, r.segOff, r.pos = len(r.mv.segs), 0, r.mv.length
		return r.Seek(offset, io.SeekCurrent)
	case io.SeekCurrent:
		for offset != 0 {
			if r.segIdx < len(r.mv.segs) {
				newOff := int64(r.segOff) + offset
				if 0 <= newOff && newOff < int64(len(r.mv.segs[r.segIdx])) {
					r.segOff += int(offset)
					r.pos += offset
					offset = 0
					break
				}
			}
			if offset < 0 {
				offset += int64(r.segOff)
				r.pos -= int64(r.segOff)
				r.segIdx--
				if r.segIdx < 0 {
					err = errors.New("memview: Reader.Seek: negative position")
					return 0, err
				}
				r.segOff = len(r.mv.segs[r.segIdx])
			} else if r.segIdx < len(r.mv.segs) {
				cur := r.mv.segs[r.segIdx]
				skipped := len(cur) - r.segOff
				offset -= int64(skipped)
				r.pos += int64(skipped)
				r.segIdx++
				r.segOff = 0
			} else {
				offset = 0
			}
		}
		return r.pos, nil
	default:
		err = errors.New("memview: Reader.Seek: invalid whence")
		return 0, err
	}
}

// WriteTo implements io.WriterTo, copying each underlying segment directly
// to dst without going through Read.
func (r *Reader) WriteTo(dst io.Writer) (int64, error) {
	var n int64
	for r.segIdx < len(r.mv.segs) {
		seg := r.mv.segs[r.segIdx][r.segOff:]
		written, err := dst.Write(seg)
		n += int64(written)
		r.pos += int64(written)
		if written == len(seg) {
			r.segIdx++
			r.segOff = 0
		} else {
			r.segOff += written
			return n, err
		}
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
