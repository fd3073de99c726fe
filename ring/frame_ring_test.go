package ring

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFrameRingSingleThreaded(t *testing.T) {
	t.Run("write then read one frame", func(t *testing.T) {
		r := NewFrameRing(64)

		slot, ok := r.BeginWrite(5)
		if !ok {
			t.Fatal("BeginWrite failed")
		}
		copy(slot, "hello")
		r.CommitWrite()

		if r.Count() != 1 {
			t.Fatalf("expected count 1, got %d", r.Count())
		}

		got, ok := r.BeginRead()
		if !ok {
			t.Fatal("BeginRead failed")
		}
		if diff := cmp.Diff([]byte("hello"), got); diff != "" {
			t.Fatal(diff)
		}
		r.CommitRead()

		if r.Count() != 0 {
			t.Fatalf("expected count 0, got %d", r.Count())
		}
	})

	t.Run("second begin_write before commit fails", func(t *testing.T) {
		r := NewFrameRing(64)
		if _, ok := r.BeginWrite(4); !ok {
			t.Fatal("first BeginWrite should succeed")
		}
		if _, ok := r.BeginWrite(4); ok {
			t.Fatal("second BeginWrite before commit/abort should fail")
		}
	})

	t.Run("abort_write discards the slot", func(t *testing.T) {
		r := NewFrameRing(64)
		slot, ok := r.BeginWrite(4)
		if !ok {
			t.Fatal("BeginWrite failed")
		}
		copy(slot, "oops")
		r.AbortWrite()

		if r.Count() != 0 {
			t.Fatal("aborted write should not be counted")
		}
		if _, ok := r.BeginRead(); ok {
			t.Fatal("aborted write should not be readable")
		}
	})

	t.Run("begin_read on empty ring fails", func(t *testing.T) {
		r := NewFrameRing(64)
		if _, ok := r.BeginRead(); ok {
			t.Fatal("expected BeginRead to fail on empty ring")
		}
	})

	t.Run("write that does not fit fails without blocking", func(t *testing.T) {
		r := NewFrameRing(16)
		if _, ok := r.BeginWrite(64); ok {
			t.Fatal("expected BeginWrite to fail for oversized frame")
		}
	})

	t.Run("wrap places payload at offset zero", func(t *testing.T) {
		r := NewFrameRing(32)

		// fill most of the ring so the next write must wrap.
		slot, ok := r.BeginWrite(20)
		if !ok {
			t.Fatal("BeginWrite failed")
		}
		copy(slot, make([]byte, 20))
		r.CommitWrite()
		got, ok := r.BeginRead()
		if !ok {
			t.Fatal("BeginRead failed")
		}
		r.CommitRead()
		if len(got) != 20 {
			t.Fatalf("unexpected length %d", len(got))
		}

		// writeStart is now at 24; a 6-byte frame needs 10 bytes and
		// does not fit in the remaining 8 bytes of tail, so it wraps.
		slot, ok = r.BeginWrite(6)
		if !ok {
			t.Fatal("expected wrapping BeginWrite to succeed")
		}
		copy(slot, "wrapok")
		r.CommitWrite()

		got, ok = r.BeginRead()
		if !ok {
			t.Fatal("BeginRead failed")
		}
		if diff := cmp.Diff([]byte("wrapok"), got); diff != "" {
			t.Fatal(diff)
		}
	})
}

// TestFrameRingSPSC drives one writer goroutine and one reader goroutine
// concurrently and checks invariant 5 from the specification: total
// bytes committed by the writer equal bytes observed by the reader plus
// bytes currently in the ring.
func TestFrameRingSPSC(t *testing.T) {
	const frames = 20000
	r := NewFrameRing(1024)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < frames; i++ {
			payload := []byte{byte(i), byte(i >> 8)}
			for {
				slot, ok := r.BeginWrite(uint32(len(payload)))
				if !ok {
					continue // no space yet, spin (never blocks)
				}
				copy(slot, payload)
				r.CommitWrite()
				break
			}
		}
	}()

	received := 0
	go func() {
		defer wg.Done()
		for received < frames {
			frame, ok := r.BeginRead()
			if !ok {
				continue
			}
			want := []byte{byte(received), byte(received >> 8)}
			if diff := cmp.Diff(want, frame); diff != "" {
				t.Error(diff)
			}
			r.CommitRead()
			received++
		}
	}()

	wg.Wait()

	if received != frames {
		t.Fatalf("expected to receive %d frames, got %d", frames, received)
	}
	if r.Count() != 0 {
		t.Fatalf("expected ring to be drained, got count %d", r.Count())
	}
}
