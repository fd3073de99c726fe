package ring

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestByteRing(t *testing.T) {
	t.Run("write then read", func(t *testing.T) {
		r := NewByteRing(16)
		if !r.Write([]byte("abcd")) {
			t.Fatal("Write should succeed")
		}
		dst := make([]byte, 4)
		if !r.Read(dst) {
			t.Fatal("Read should succeed")
		}
		if diff := cmp.Diff([]byte("abcd"), dst); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("write exactly filling the ring succeeds", func(t *testing.T) {
		r := NewByteRing(4)
		if !r.Write([]byte("abcd")) {
			t.Fatal("expected Write to succeed: free == len is allowed")
		}
		if r.FreeSpace() != 0 {
			t.Fatal("expected ring to be full")
		}
	})

	t.Run("write fails when free < len", func(t *testing.T) {
		r := NewByteRing(4)
		if r.Write([]byte("abcde")) {
			t.Fatal("expected Write to fail when len exceeds capacity")
		}
	})

	t.Run("read fails when size < len", func(t *testing.T) {
		r := NewByteRing(16)
		r.Write([]byte("ab"))
		dst := make([]byte, 4)
		if r.Read(dst) {
			t.Fatal("expected Read to fail")
		}
	})

	t.Run("wrap-around write and read", func(t *testing.T) {
		r := NewByteRing(8)
		r.Write([]byte("abcde")) // start=0 size=5
		out := make([]byte, 5)
		r.Read(out) // start=5 size=0
		r.Write([]byte("XYZW"))

		got := make([]byte, 4)
		if !r.Read(got) {
			t.Fatal("Read should succeed across the wrap boundary")
		}
		if diff := cmp.Diff([]byte("XYZW"), got); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("peek contiguous and advance", func(t *testing.T) {
		r := NewByteRing(16)
		r.Write([]byte("hello world"))

		view := r.PeekContiguous(5)
		if diff := cmp.Diff([]byte("hello"), view); diff != "" {
			t.Fatal(diff)
		}
		r.Advance(5)

		if r.Size() != 6 {
			t.Fatalf("expected 6 bytes remaining, got %d", r.Size())
		}
	})

	t.Run("clear empties the ring", func(t *testing.T) {
		r := NewByteRing(16)
		r.Write([]byte("abcd"))
		r.Clear()
		if r.Size() != 0 {
			t.Fatal("expected ring to be empty after Clear")
		}
		if r.FreeSpace() != 16 {
			t.Fatal("expected full free space after Clear")
		}
	})
}

// TestByteRingSPSC exercises one writer goroutine and one reader
// goroutine concurrently draining fixed-size chunks, matching the DVR
// fast-to-bulk hand-off pattern.
func TestByteRingSPSC(t *testing.T) {
	const chunks = 5000
	const chunkSize = 37
	r := NewByteRing(4096)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		buf := make([]byte, chunkSize)
		for i := 0; i < chunks; i++ {
			for j := range buf {
				buf[j] = byte(i + j)
			}
			for !r.Write(buf) {
				// spin: writer never blocks
			}
		}
	}()

	go func() {
		defer wg.Done()
		buf := make([]byte, chunkSize)
		for i := 0; i < chunks; i++ {
			for !r.Read(buf) {
			}
			for j := range buf {
				want := byte(i + j)
				if buf[j] != want {
					t.Errorf("chunk %d byte %d: got %d want %d", i, j, buf[j], want)
				}
			}
		}
	}()

	wg.Wait()

	if r.Size() != 0 {
		t.Fatalf("expected ring to be drained, got size %d", r.Size())
	}
}
