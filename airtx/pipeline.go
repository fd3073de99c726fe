// Package airtx implements the air-side video packetizer: it receives
// camera bytes in strided DMA-like chunks, trims the JPEG end marker,
// packetizes into FEC encoder slots, paces frames to a configurable fps
// limit, and pushes one copy of each accepted frame, after trimming, to
// the DVR recorder (the raw camera chunks themselves are not tapped).
// Grounded on the original firmware's camera_handler.cpp frame callback,
// translated from a hardware DMA callback into a goroutine loop pulling
// from [camera.FrameSource].
package airtx

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jeanlemotan/esp32-cam-fpv/camera"
	"github.com/jeanlemotan/esp32-cam-fpv/fec"
	"github.com/jeanlemotan/esp32-cam-fpv/platform"
	"github.com/jeanlemotan/esp32-cam-fpv/wire"
)

// jpegEndMarker is the two-byte JPEG end-of-image marker.
var jpegEndMarker = [2]byte{0xFF, 0xD9}

// DVRSink is the narrow interface airtx needs from the DVR recorder.
type DVRSink interface {
	Push(chunk []byte) bool
}

// Encoder is the narrow interface airtx needs from the FEC encoder.
type Encoder interface {
	ReservePacket(block bool) ([]byte, bool)
	MarkWritten(n int)
	FlushPacket() error
}

// Pipeline drives a [camera.FrameSource] into an [Encoder], stamping
// [wire.VideoHeader]s, pacing frames to FPSLimit, and pushing one trimmed
// copy of each accepted frame (not the raw chunks) to a DVR sink. One
// goroutine (Run) owns all of its state.
type Pipeline struct {
	Source  camera.FrameSource
	Encoder Encoder
	DVR     DVRSink
	Logger  platform.Logger

	// fpsLimit is the target frames-per-second; 0 disables pacing. Updated
	// by [Pipeline.SetFPSLimit] from the config dispatcher's goroutine
	// while RunOnce runs on its own, hence atomic.
	fpsLimit atomic.Uint32

	// pong is the most recent ping nonce received from the ground side
	// (via the config dispatcher), echoed in every VideoHeader so the
	// ground can measure round-trip time. Updated by [Pipeline.SetPong].
	pong atomic.Uint32

	// now is overridable for deterministic pacing tests.
	now func() time.Time

	frameIndex uint32
	partIndex  uint8

	lastDelivered time.Time
	haveLast      bool

	// frameBuf accumulates the current camera frame's bytes so the
	// backward JPEG end-marker scan can run once the last chunk arrives.
	frameBuf []byte
}

// NewPipeline constructs a [Pipeline] with pacing initially disabled;
// call [Pipeline.SetFPSLimit] to enable it.
func NewPipeline(source camera.FrameSource, enc Encoder, dvr DVRSink, logger platform.Logger) *Pipeline {
	if logger == nil {
		logger = platform.Default
	}
	return &Pipeline{
		Source:  source,
		Encoder: enc,
		DVR:     dvr,
		Logger:  logger,
		now:     time.Now,
	}
}

// Run repeatedly calls RunOnce until ctx is cancelled or Source is
// exhausted ([camera.ErrExhausted] is treated as a normal stop, not an
// error).
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := p.RunOnce(); err != nil {
			if errors.Is(err, camera.ErrExhausted) {
				return nil
			}
			return err
		}
	}
}

// SetPong records the ping nonce to echo in subsequent VideoHeaders;
// called by the config dispatcher whenever a ConfigPacket is applied.
func (p *Pipeline) SetPong(pong uint8) {
	p.pong.Store(uint32(pong))
}

// SetFPSLimit updates the target frame rate; 0 disables pacing. Called
// by the config dispatcher whenever a ConfigPacket changes fps_limit.
func (p *Pipeline) SetFPSLimit(fps uint8) {
	p.fpsLimit.Store(uint32(fps))
}

// targetDT returns the target inter-frame period, or 0 if pacing is
// disabled.
func (p *Pipeline) targetDT() time.Duration {
	fps := p.fpsLimit.Load()
	if fps == 0 {
		return 0
	}
	return time.Duration(1_000_000/fps) * time.Microsecond
}

// RunOnce drains exactly one camera frame's worth of chunks from Source.
// If the frame is skipped for pacing, its bytes are read and discarded
// without producing packets or touching the DVR tap.
func (p *Pipeline) RunOnce() error {
	skip := p.shouldSkipFrame()

	var measuredStart time.Time
	first := true

	for {
		chunk, _, _, isLast, err := p.Source.NextChunk()
		if err != nil {
			return err
		}
		if first {
			measuredStart = p.now()
			first = false
			p.frameBuf = p.frameBuf[:0]
		}

		if !skip {
			p.frameBuf = append(p.frameBuf, chunk...)
		}

		if isLast {
			break
		}
	}

	if skip {
		return nil
	}

	trimmed := trimJPEG(p.frameBuf)
	p.emitFrame(trimmed)

	measured := p.now().Sub(measuredStart)
	p.advanceDelivered(measured)
	p.frameIndex++
	p.partIndex = 0
	return nil
}

// shouldSkipFrame decides, per the frame-pacing rule, whether the next
// camera frame should be skipped in its entirety.
func (p *Pipeline) shouldSkipFrame() bool {
	dt := p.targetDT()
	if dt == 0 || !p.haveLast {
		return false
	}
	return p.now().Sub(p.lastDelivered) < dt
}

// advanceDelivered moves the "last delivered" timestamp forward by
// max(target_dt, measured), per the pacing rule.
func (p *Pipeline) advanceDelivered(measured time.Duration) {
	dt := p.targetDT()
	adv := measured
	if dt > adv {
		adv = dt
	}
	if !p.haveLast {
		p.lastDelivered = p.now()
		p.haveLast = true
		return
	}
	p.lastDelivered = p.lastDelivered.Add(adv)
}

// trimJPEG implements the end-marker trim: scan backward for 0xFF 0xD9,
// truncate just past it, then add one padding byte if the resulting
// length is a multiple of 512 or of 100 (radio-layer alignment
// avoidance, preserved verbatim from the original firmware).
func trimJPEG(frame []byte) []byte {
	end := len(frame)
	for i := len(frame) - 2; i >= 0; i-- {
		if frame[i] == jpegEndMarker[0] && frame[i+1] == jpegEndMarker[1] {
			end = i + 2
			break
		}
	}
	out := frame[:end]
	if len(out) != 0 && (len(out)%512 == 0 || len(out)%100 == 0) {
		if cap(out) > len(out) {
			out = out[:len(out)+1]
		} else {
			out = append(out, 0)
		}
	}
	return out
}

// emitFrame packetizes trimmed into successive encoder slots, stamping a
// VideoHeader per part, and pushes a copy of trimmed to the DVR tap.
func (p *Pipeline) emitFrame(trimmed []byte) {
	if p.DVR != nil {
		cp := append([]byte(nil), trimmed...)
		if !p.DVR.Push(cp) {
			p.Logger.Warnf("airtx: dvr push dropped %d bytes", len(cp))
		}
	}

	for len(trimmed) > 0 {
		payload, ok := p.Encoder.ReservePacket(false)
		if !ok {
			p.Logger.Warnf("airtx: encoder pool exhausted, dropping remainder of frame %d", p.frameIndex)
			return
		}

		headerSpace := wire.VideoHeaderSize
		capacity := len(payload) - headerSpace
		if capacity <= 0 {
			p.Logger.Errorf("airtx: encoder MTU too small for video header")
			return
		}

		n := capacity
		last := false
		if n >= len(trimmed) {
			n = len(trimmed)
			last = true
		}

		var hdr wire.VideoHeader
		hdr.FrameIndex = p.frameIndex
		hdr.PartIndex = p.partIndex
		hdr.LastPart = last
		hdr.TotalSize = uint32(headerSpace + n)
		hdr.Pong = uint8(p.pong.Load())

		if err := wire.PutVideoHeader(payload, hdr); err != nil {
			p.Logger.Errorf("airtx: PutVideoHeader: %s", err.Error())
			return
		}
		copy(payload[headerSpace:], trimmed[:n])

		p.Encoder.MarkWritten(headerSpace + n)
		if err := p.Encoder.FlushPacket(); err != nil {
			p.Logger.Warnf("airtx: FlushPacket: %s", err.Error())
			return
		}

		trimmed = trimmed[n:]
		p.partIndex++
	}
}

var _ Encoder = &fec.Encoder{}
