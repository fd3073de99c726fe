package airtx

import (
	"testing"
	"time"

	"github.com/jeanlemotan/esp32-cam-fpv/camera"
	"github.com/jeanlemotan/esp32-cam-fpv/platform"
	"github.com/jeanlemotan/esp32-cam-fpv/wire"
)

// fakeEncoder is a minimal in-memory [Encoder] that records every
// flushed frame's payload, for assertions without a real FEC pipeline.
type fakeEncoder struct {
	mtu     int
	buf     []byte
	filled  int
	flushed [][]byte
	exhausted bool
}

func newFakeEncoder(mtu int) *fakeEncoder {
	return &fakeEncoder{mtu: mtu}
}

func (f *fakeEncoder) ReservePacket(block bool) ([]byte, bool) {
	if f.exhausted {
		return nil, false
	}
	f.buf = make([]byte, f.mtu)
	f.filled = 0
	return f.buf, true
}

func (f *fakeEncoder) MarkWritten(n int) { f.filled = n }

func (f *fakeEncoder) FlushPacket() error {
	frame := append([]byte(nil), f.buf[:f.filled]...)
	f.flushed = append(f.flushed, frame)
	return nil
}

type fakeDVR struct {
	pushed [][]byte
}

func (d *fakeDVR) Push(chunk []byte) bool {
	d.pushed = append(d.pushed, append([]byte(nil), chunk...))
	return true
}

func TestTrimJPEGTruncatesAtEndMarker(t *testing.T) {
	frame := append([]byte("garbage-after-marker-should-go"), 0xFF, 0xD9)
	frame = append(frame, []byte("trailing junk DMA padding")...)
	out := trimJPEG(frame)
	if len(out) != len(frame)-len("trailing junk DMA padding") {
		t.Fatalf("expected truncation just past the end marker, got len=%d", len(out))
	}
	if out[len(out)-1] != 0xD9 || out[len(out)-2] != 0xFF {
		t.Fatalf("expected trimmed buffer to end with FF D9, got % x", out[len(out)-2:])
	}
}

func TestTrimJPEGPadsMultipleOf512(t *testing.T) {
	frame := make([]byte, 514)
	frame[510], frame[511] = 0xFF, 0xD9
	out := trimJPEG(frame)
	if len(out) != 513 {
		t.Fatalf("expected truncation to 512 then padding to 513 bytes, got %d", len(out))
	}
}

func TestTrimJPEGPadsMultipleOf100(t *testing.T) {
	frame := make([]byte, 104)
	frame[98], frame[99] = 0xFF, 0xD9
	out := trimJPEG(frame)
	if len(out) != 101 {
		t.Fatalf("expected truncation to 100 then padding to 101 bytes, got %d", len(out))
	}
}

func TestPipelinePacketizesFrameIntoHeaderedParts(t *testing.T) {
	jpeg := append([]byte{}, make([]byte, 40)...)
	jpeg[38], jpeg[39] = 0xFF, 0xD9

	sim := &camera.Simulator{Frame: jpeg, ChunkSize: 16}
	enc := newFakeEncoder(wire.VideoHeaderSize + 16)
	dvr := &fakeDVR{}

	p := NewPipeline(sim, enc, dvr, &platform.NullLogger{})
	if err := p.RunOnce(); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if len(enc.flushed) == 0 {
		t.Fatal("expected at least one flushed packet")
	}

	var reassembled []byte
	for i, frame := range enc.flushed {
		hdr, err := wire.GetVideoHeader(frame)
		if err != nil {
			t.Fatalf("GetVideoHeader: %v", err)
		}
		if hdr.FrameIndex != 0 {
			t.Fatalf("part %d: expected frame_index=0, got %d", i, hdr.FrameIndex)
		}
		if int(hdr.PartIndex) != i {
			t.Fatalf("part %d: expected part_index=%d, got %d", i, i, hdr.PartIndex)
		}
		wantLast := i == len(enc.flushed)-1
		if hdr.LastPart != wantLast {
			t.Fatalf("part %d: expected last_part=%v, got %v", i, wantLast, hdr.LastPart)
		}
		reassembled = append(reassembled, frame[wire.VideoHeaderSize:]...)
	}

	if len(dvr.pushed) != 1 {
		t.Fatalf("expected exactly one DVR push, got %d", len(dvr.pushed))
	}
	if len(dvr.pushed[0]) != 40 {
		t.Fatalf("expected DVR tap to carry the trimmed frame (40 bytes), got %d", len(dvr.pushed[0]))
	}
}

func TestPipelineSkipsFrameWhenFasterThanFPSLimit(t *testing.T) {
	jpeg := make([]byte, 20)
	jpeg[18], jpeg[19] = 0xFF, 0xD9

	sim := &camera.Simulator{Frame: jpeg, ChunkSize: 20, Loop: true}
	enc := newFakeEncoder(wire.VideoHeaderSize + 20)
	dvr := &fakeDVR{}

	fakeNow := time.Unix(0, 0)
	p := NewPipeline(sim, enc, dvr, &platform.NullLogger{})
	p.SetFPSLimit(1) // target_dt = 1s
	p.now = func() time.Time { return fakeNow }

	if err := p.RunOnce(); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
	if len(dvr.pushed) != 1 {
		t.Fatalf("expected first frame accepted, got %d pushes", len(dvr.pushed))
	}

	fakeNow = fakeNow.Add(10 * time.Millisecond) // well under the 1s target_dt
	if err := p.RunOnce(); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if len(dvr.pushed) != 1 {
		t.Fatalf("expected second frame to be paced away (skipped), got %d pushes", len(dvr.pushed))
	}

	fakeNow = fakeNow.Add(2 * time.Second) // well past target_dt
	if err := p.RunOnce(); err != nil {
		t.Fatalf("third RunOnce: %v", err)
	}
	if len(dvr.pushed) != 2 {
		t.Fatalf("expected third frame accepted after target_dt elapsed, got %d pushes", len(dvr.pushed))
	}
}

func TestPipelineStampsPongFromSetPong(t *testing.T) {
	jpeg := make([]byte, 10)
	jpeg[8], jpeg[9] = 0xFF, 0xD9
	sim := &camera.Simulator{Frame: jpeg, ChunkSize: 10}
	enc := newFakeEncoder(wire.VideoHeaderSize + 10)
	p := NewPipeline(sim, enc, &fakeDVR{}, &platform.NullLogger{})
	p.SetPong(42)

	if err := p.RunOnce(); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	hdr, err := wire.GetVideoHeader(enc.flushed[0])
	if err != nil {
		t.Fatalf("GetVideoHeader: %v", err)
	}
	if hdr.Pong != 42 {
		t.Fatalf("expected pong=42, got %d", hdr.Pong)
	}
}
