package fec

import (
	"sync"
	"testing"

	"github.com/jeanlemotan/esp32-cam-fpv/platform"
	"github.com/jeanlemotan/esp32-cam-fpv/wire"
)

func TestEncoderEmitsKDataThenParityInOrder(t *testing.T) {
	const k, n, mtu = 4, 6, 256
	enc, err := NewEncoder(Descriptor{K: k, N: n, MTU: mtu}, &platform.NullLogger{})
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	defer enc.Close()

	var mu sync.Mutex
	var frames []wire.FrameHeader
	done := make(chan struct{})
	enc.SetOnEncoded(func(frame []byte) {
		mu.Lock()
		frames = append(frames, wire.GetFrameHeader(frame))
		if len(frames) == n {
			close(done)
		}
		mu.Unlock()
	})

	payload := make([]byte, mtu*k)
	for i := range payload {
		payload[i] = byte(i)
	}
	if dropped := enc.EncodeStream(payload, true); dropped != 0 {
		t.Fatalf("unexpected drop: %d", dropped)
	}
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(frames) != n {
		t.Fatalf("got %d frames, want %d", len(frames), n)
	}
	for i, h := range frames {
		if h.BlockIndex != 0 {
			t.Errorf("frame %d: block_index = %d, want 0", i, h.BlockIndex)
		}
		if int(h.PacketIndex) != i {
			t.Errorf("frame %d: packet_index = %d, want %d", i, h.PacketIndex, i)
		}
	}
}

func TestEncoderAdvancesBlockIndexAcrossBlocks(t *testing.T) {
	const k, n, mtu = 2, 3, 32
	enc, err := NewEncoder(Descriptor{K: k, N: n, MTU: mtu}, &platform.NullLogger{})
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	defer enc.Close()

	var mu sync.Mutex
	seenBlocks := map[uint32]int{}
	count := 0
	done := make(chan struct{})
	enc.SetOnEncoded(func(frame []byte) {
		mu.Lock()
		defer mu.Unlock()
		h := wire.GetFrameHeader(frame)
		seenBlocks[h.BlockIndex]++
		count++
		if count == 2*n {
			close(done)
		}
	})

	enc.EncodeStream(make([]byte, mtu*k*2), true)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(seenBlocks) != 2 {
		t.Fatalf("got %d distinct block indices, want 2: %v", len(seenBlocks), seenBlocks)
	}
	if seenBlocks[0] != n || seenBlocks[1] != n {
		t.Fatalf("unexpected per-block frame counts: %v", seenBlocks)
	}
}

func TestEncoderPoolExhaustionDropsNonBlocking(t *testing.T) {
	const k, n, mtu = 2, 3, 16
	enc, err := NewEncoder(Descriptor{K: k, N: n, MTU: mtu}, &platform.NullLogger{})
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	defer enc.Close()

	// Drain the pool directly, without ever flushing, using the
	// non-blocking acquire that ReservePacket(false) relies on: it must
	// eventually report exhaustion instead of blocking.
	poolSize := int(n) * defaultPoolBlocks
	for i := 0; i < poolSize; i++ {
		if _, ok := enc.pool.acquire(false); !ok {
			t.Fatalf("pool exhausted early at slot %d", i)
		}
	}
	if _, ok := enc.pool.acquire(false); ok {
		t.Fatalf("expected pool exhaustion")
	}
}
