package bufwriter

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mel2oo/go-chunkstream/arraypool"
	"github.com/mel2oo/go-chunkstream/chunkpool"
	"github.com/mel2oo/go-chunkstream/stream"
)

func newTestStream(t *testing.T, chunkSize, chunkCount int) *stream.Stream {
	t.Helper()
	p, err := chunkpool.New(chunkSize, chunkCount)
	require.NoError(t, err)
	return stream.New(p, arraypool.NewDefaultArrayPool())
}

func TestGetSpanInChunkNoCopy(t *testing.T) {
	s := newTestStream(t, 8, 64)
	defer s.Dispose()
	w := New(s)

	span, err := w.GetSpan(0)
	require.NoError(t, err)
	require.Len(t, span, 8)

	n := copy(span, []byte("hello"))
	require.NoError(t, w.Advance(n))

	assert.Equal(t, int64(5), s.Length())
	assert.Equal(t, int64(5), s.Position())

	_, err = s.Seek(0, io.SeekStart)
	require.NoError(t, err)
	out := make([]byte, 5)
	_, err = io.ReadFull(s, out)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}

func TestGetSpanOversizeUsesTemporary(t *testing.T) {
	s := newTestStream(t, 4, 64)
	defer s.Dispose()
	w := New(s)

	payload := []byte("this payload is longer than one chunk")
	span, err := w.GetSpan(len(payload))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(span), len(payload))

	n := copy(span, payload)
	require.NoError(t, w.Advance(n))

	assert.Equal(t, int64(len(payload)), s.Length())

	out, err := s.ToArray()
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestAdvanceWithoutGetSpanFails(t *testing.T) {
	s := newTestStream(t, 4, 64)
	defer s.Dispose()
	w := New(s)

	err := w.Advance(1)
	require.Error(t, err)
}

func TestGetSpanWithoutAdvanceFails(t *testing.T) {
	s := newTestStream(t, 4, 64)
	defer s.Dispose()
	w := New(s)

	_, err := w.GetSpan(0)
	require.NoError(t, err)

	_, err = w.GetSpan(0)
	require.Error(t, err)
}

func TestMultipleSpansAccumulate(t *testing.T) {
	s := newTestStream(t, 4, 64)
	defer s.Dispose()
	w := New(s)

	parts := []string{"ab", "cdef", "ghi"}
	for _, part := range parts {
		span, err := w.GetSpan(len(part))
		require.NoError(t, err)
		n := copy(span, part)
		require.NoError(t, w.Advance(n))
	}

	out, err := s.ToArray()
	require.NoError(t, err)
	assert.Equal(t, "abcdefghi", string(out))
}
