package memview

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var errWriterErr = fmt.Errorf("errWriter: you've requested an error")

// errWriter returns an error on its targetCount'th write.
type errWriter struct {
	targetCount int
	writeCount  int
}

func (w *errWriter) Write(data []byte) (int, error) {
	w.writeCount++
	if w.writeCount == w.targetCount {
		return 0, errWriterErr
	}
	return len(data), nil
}

func TestAppend(t *testing.T) {
	var mv MemView
	mv.Append(New([]byte("hello ")))
	mv.Append(New([]byte("prince!")))
	if mv.String() != "hello prince!" {
		t.Errorf(`expected "hello prince!" got "%s"`, mv.String())
	} else if mv.Len() != int64(len("hello prince!")) {
		t.Errorf(`expected new length %d, got %d`, len("hello prince!"), mv.Len())
	}
}

// DeepCopy MemViews should operate independently.
func TestDeepCopy(t *testing.T) {
	mv1 := New([]byte("hello"))
	mv2 := mv1.DeepCopy()
	mv2.Append(New([]byte(" prince!")))
	mv1.Append(New([]byte(" pineapple!")))

	if mv1.String() != "hello pineapple!" {
		t.Errorf(`expected "hello pineapple!" got "%s"`, mv1.String())
	}
	if mv2.String() != "hello prince!" {
		t.Errorf(`expected "hello prince!" got "%s"`, mv2.String())
	}
}

func TestReaderReflectsAppend(t *testing.T) {
	mv := New([]byte("hello"))
	r := mv.CreateReader()
	mv.Append(New([]byte(" prince!")))

	actual, err := ioutil.ReadAll(r)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	} else if string(actual) != "hello prince!" {
		t.Errorf(`expected "hello prince!" got "%s"`, string(actual))
	}
}

func TestReaderVariousBufferSizes(t *testing.T) {
	mv := New([]byte("hello"))
	mv.Append(New([]byte(" prince!")))

	for bufSize := 1; bufSize < len("hello prince!")+10; bufSize++ {
		r := mv.CreateReader()
		buf := make([]byte, bufSize)
		var read []byte
		for {
			n, err := r.Read(buf)
			read = append(read, buf[:n]...)
			if err == io.EOF {
				break
			}
		}
		if diff := cmp.Diff("hello prince!", string(read)); diff != "" {
			t.Errorf("found diff with bufSize=%d: %s", bufSize, diff)
		}
	}
}

func TestReadByte(t *testing.T) {
	input := "abcdefghijklmnopqrst"
	var mv MemView
	mv.Append(New([]byte("abcdefg")))
	mv.Append(New([]byte("hijkl")))
	mv.Append(New([]byte("mnopq")))
	mv.Append(New([]byte("rst")))

	r := mv.CreateReader()
	for i := 0; i < len(input); i++ {
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("unexpected error reading byte %d: %v", i, err)
		}
		if b != input[i] {
			t.Errorf("byte %d: expected %q, got %q", i, input[i], b)
		}
	}
	if _, err := r.ReadByte(); err != io.EOF {
		t.Errorf("expected io.EOF at end, got %v", err)
	}
}

func TestSeek(t *testing.T) {
	input := "abcdefghijklmnopqrst"
	var mv MemView
	mv.Append(New([]byte("abcdefg")))
	mv.Append(New([]byte("hijkl")))
	mv.Append(New([]byte("mnopq")))
	mv.Append(New([]byte("rst")))

	r := mv.CreateReader()

	if pos, err := r.Seek(5, io.SeekStart); err != nil || pos != 5 {
		t.Fatalf("Seek(5, SeekStart): pos=%d err=%v", pos, err)
	}
	b, err := r.ReadByte()
	if err != nil || b != input[5] {
		t.Fatalf("expected %q at position 5, got %q (err=%v)", input[5], b, err)
	}

	if pos, err := r.Seek(-2, io.SeekEnd); err != nil || pos != int64(len(input))-2 {
		t.Fatalf("Seek(-2, SeekEnd): pos=%d err=%v", pos, err)
	}
	b, err = r.ReadByte()
	if err != nil || b != input[len(input)-2] {
		t.Fatalf("expected %q near end, got %q (err=%v)", input[len(input)-2], b, err)
	}

	if _, err := r.Seek(-1000, io.SeekStart); err == nil {
		t.Errorf("expected an error seeking before the start")
	}
}

func TestWriteTo(t *testing.T) {
	mv := New([]byte("hello"))
	mv.Append(New([]byte(" prince!")))

	var buf bytes.Buffer
	n, err := mv.CreateReader().WriteTo(&buf)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	} else if n != int64(len("hello prince!")) {
		t.Errorf("expected to write %d bytes, got %d", len("hello prince!"), n)
	} else if diff := cmp.Diff("hello prince!", buf.String()); diff != "" {
		t.Errorf("found diff: %s", diff)
	}
}

func TestWriteToWithError(t *testing.T) {
	mv := New([]byte("hello"))
	mv.Append(New([]byte(" prince!")))

	w := &errWriter{targetCount: 2}
	n, err := mv.CreateReader().WriteTo(w)
	if err != errWriterErr {
		t.Errorf("expected errWriter error, got %v", err)
	} else if n != int64(len("hello")) {
		t.Errorf("expected to write %d bytes before error, got %d", len("hello"), n)
	}
}

func TestGetByte(t *testing.T) {
	input := "prince is a good boy"
	var mv MemView
	mv.Append(New([]byte("prince ")))
	mv.Append(New([]byte("is a ")))
	mv.Append(New([]byte("good ")))
	mv.Append(New([]byte("boy")))

	for i := 0; i < len(input); i++ {
		if b := mv.GetByte(int64(i)); b != input[i] {
			t.Errorf(`GetByte(%d) expected %s, got %s`, i, strconv.Quote(string(input[i])), strconv.Quote(string(b)))
		}
	}
}

func TestGetByteOutOfBounds(t *testing.T) {
	mv := New([]byte("prince"))
	for _, i := range []int64{-1, 10000} {
		if b := mv.GetByte(i); b != 0 {
			t.Errorf("index=%d expected 0, got %d", i, b)
		}
	}
}

func TestSubView(t *testing.T) {
	input := "prince is a good boy"
	var mv MemView
	mv.Append(New([]byte("prince ")))
	mv.Append(New([]byte("is a ")))
	mv.Append(New([]byte("good ")))
	mv.Append(New([]byte("boy")))

	for i := 0; i < len(input); i++ {
		for j := i; j < len(input)+1; j++ {
			actual := mv.SubView(int64(i), int64(j))
			if diff := cmp.Diff(input[i:j], actual.String()); diff != "" {
				t.Errorf("found diff start=%d end=%d diff=%s", i, j, diff)
			} else if int64(len(input[i:j])) != actual.Len() {
				t.Errorf("subview length is wrong, expected=%d, got=%d", len(input[i:j]), actual.Len())
			}
		}
	}
}

func TestEqual(t *testing.T) {
	var a, b MemView
	a.Append(New([]byte("hello ")))
	a.Append(New([]byte("prince!")))
	b.Append(New([]byte("hello pr")))
	b.Append(New([]byte("ince!")))

	if !a.Equal(b) {
		t.Errorf("expected a and b to be equal despite different segmentation")
	}

	b.Append(New([]byte("!")))
	if a.Equal(b) {
		t.Errorf("expected a and b to differ once lengths diverge")
	}
}
