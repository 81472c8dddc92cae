package ringbuf

import (
	"bytes"
	"sync"
	"testing"
)

func TestNextPowerOfTwo(t *testing.T) {
	t.Parallel()

	specs := []struct{ in, want uint64 }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {1024, 1024}, {1025, 2048},
	}
	for i, spec := range specs {
		if got := nextPowerOfTwo(spec.in); got != spec.want {
			t.Errorf("%d: nextPowerOfTwo(%d): got %d, want %d", i, spec.in, got, spec.want)
		}
	}
}

func TestCapacityInvariant(t *testing.T) {
	t.Parallel()

	r := New(100)
	if r.Capacity() != 128 {
		t.Fatalf("wrong rounded capacity: got %d, want 128", r.Capacity())
	}

	r.Write(bytes.Repeat([]byte{1}, 50))
	if got, want := r.ReadSpace()+r.WriteSpace(), r.Capacity(); got != want {
		t.Errorf("read_space + write_space != capacity: got %d, want %d", got, want)
	}
}

func TestWriteOverflowTruncates(t *testing.T) {
	t.Parallel()

	r := New(8)
	n := r.Write(bytes.Repeat([]byte{0xAA}, 20))
	if n != 8 {
		t.Fatalf("wrong write count on overflow: got %d, want 8", n)
	}
	if r.WriteSpace() != 0 {
		t.Errorf("expected ring full after overflow write, got write space %d", r.WriteSpace())
	}
}

func TestWriteReadWraparound(t *testing.T) {
	t.Parallel()

	r := New(8)
	buf := make([]byte, 4)

	r.Write([]byte{1, 2, 3, 4, 5, 6})
	r.Read(buf)
	if !bytes.Equal(buf, []byte{1, 2, 3, 4}) {
		t.Fatalf("wrong first read: got %v", buf)
	}

	// This write wraps past the end of the underlying array.
	r.Write([]byte{7, 8, 9, 10})
	out := make([]byte, 6)
	n := r.Read(out)
	if n != 6 {
		t.Fatalf("wrong read count: got %d, want 6", n)
	}
	if !bytes.Equal(out, []byte{5, 6, 7, 8, 9, 10}) {
		t.Fatalf("wrong wrapped read: got %v", out)
	}
}

func TestPeekDoesNotAdvance(t *testing.T) {
	t.Parallel()

	r := New(8)
	r.Write([]byte{1, 2, 3})

	buf := make([]byte, 3)
	r.Peek(buf)
	if !bytes.Equal(buf, []byte{1, 2, 3}) {
		t.Fatalf("wrong peek: got %v", buf)
	}
	if r.ReadSpace() != 3 {
		t.Errorf("peek advanced read cursor: read space got %d, want 3", r.ReadSpace())
	}

	r.Advance(1)
	if r.ReadSpace() != 2 {
		t.Errorf("advance did not move read cursor: got %d, want 2", r.ReadSpace())
	}
}

// TestSPSCConcurrent verifies that for a concurrent writer/reader at
// any interleaving, the reader observes exactly the bytes written in
// FIFO order.
func TestSPSCConcurrent(t *testing.T) {
	const total = 1 << 20

	r := New(4096)
	data := make([]byte, total)
	for i := range data {
		data[i] = byte(i % 257)
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		written := 0
		for written < total {
			w := r.Write(data[written:])
			written += w
		}
	}()

	var (
		got     = make([]byte, 0, total)
		readBuf = make([]byte, 500)
	)
	go func() {
		defer wg.Done()
		for len(got) < total {
			n := r.Read(readBuf)
			got = append(got, readBuf[:n]...)
		}
	}()

	wg.Wait()

	for i, b := range got {
		if want := byte(i % 257); b != want {
			t.Fatalf("byte %d out of order: got %d, want %d", i, b, want)
		}
	}
}
