// Package groundrx implements the ground-side video frame reassembler:
// it consumes FEC-decoded payloads, validates the VideoPacket outer
// header, stitches parts back into complete frames, measures ping/pong
// round-trip time, and serializes admission of multiple radio capture
// interfaces into a single FEC decoder. Grounded on the reassembly loop
// in original_source/gs/src/main.cpp (video_frame_index /
// video_next_part_index bookkeeping).
package groundrx

import (
	"errors"
	"sync"
	"time"

	"github.com/jeanlemotan/esp32-cam-fpv/fec"
	"github.com/jeanlemotan/esp32-cam-fpv/platform"
	"github.com/jeanlemotan/esp32-cam-fpv/radio"
	"github.com/jeanlemotan/esp32-cam-fpv/wire"
)

var (
	errShortHeader = errors.New("groundrx: payload shorter than a video header")
	errShortBody   = errors.New("groundrx: total_size exceeds payload length")
	errCRCMismatch = errors.New("groundrx: crc mismatch")
)

// pastWindow is the original firmware's tolerance for a video frame_index
// that is behind the currently tracked one: strictly more than this many
// frames behind is treated as a TX restart, not an ordinary retained-state
// mismatch. Mirrors `frame_index + 200 < video_frame_index` verbatim.
const pastWindow = 200

// PingClock tracks the ping/pong round-trip measurement shared between
// [Reassembler] (which observes echoed pongs) and a ground transmit
// controller (which stamps outgoing ConfigPackets with the current
// nonce). The nonce only advances once its matching pong is observed.
type PingClock struct {
	mu          sync.Mutex
	nonce       uint8
	sentAt      time.Time
	haveSent    bool
	lastRTT     time.Duration
	haveRTT     bool
}

// Nonce returns the ping value a controller should stamp on its next
// outgoing ConfigPacket.
func (c *PingClock) Nonce() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonce
}

// Sent records that the current nonce was just transmitted at now.
func (c *PingClock) Sent(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sentAt = now
	c.haveSent = true
}

// Observe processes a pong value carried back on a video packet. If it
// matches the nonce most recently sent, the half-round-trip is recorded
// and the nonce advances (so the next ConfigPacket carries a fresh one).
func (c *PingClock) Observe(pong uint8, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.haveSent || pong != c.nonce {
		return
	}
	c.lastRTT = now.Sub(c.sentAt) / 2
	c.haveRTT = true
	c.nonce++
}

// LastRTT returns the most recently measured half-round-trip and whether
// one has been observed yet.
func (c *PingClock) LastRTT() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRTT, c.haveRTT
}

// Reassembler consumes [fec.Decoded] video payloads delivered by a
// single FEC decoder (itself fed by potentially several radio capture
// interfaces through an [Admission]) and reconstructs complete JPEG
// frames. Admit must be called from a single goroutine.
type Reassembler struct {
	logger platform.Logger
	ping   *PingClock

	onFrame func(frameIndex uint32, data []byte)

	frameIndex   uint32
	expectedPart uint8
	buf          []byte
}

// NewReassembler constructs a [Reassembler]. ping may be nil if RTT
// measurement is not needed (e.g. in isolated tests).
func NewReassembler(ping *PingClock, logger platform.Logger) *Reassembler {
	if logger == nil {
		logger = platform.Default
	}
	return &Reassembler{logger: logger, ping: ping}
}

// SetOnFrame installs the callback invoked with each fully reassembled
// frame's bytes, in frame_index order.
func (r *Reassembler) SetOnFrame(cb func(frameIndex uint32, data []byte)) {
	r.onFrame = cb
}

// Admit processes one FEC-decoded video payload.
func (r *Reassembler) Admit(d fec.Decoded) {
	hdr, body, err := r.validate(d.Payload)
	if err != nil {
		r.logger.Warnf("groundrx: dropping video packet: %s", err.Error())
		return
	}

	if r.ping != nil {
		r.ping.Observe(hdr.Pong, time.Now())
	}

	newIdx := int64(hdr.FrameIndex)
	cur := int64(r.frameIndex)
	if newIdx+pastWindow < cur || newIdx > cur {
		// Frame from the distant past (TX restarted) or from the future
		// while we still have an incomplete frame enqueued: abandon
		// whatever was in progress and adopt the new frame_index.
		r.frameIndex = hdr.FrameIndex
		r.expectedPart = 0
		r.buf = r.buf[:0]
	}

	if int64(hdr.FrameIndex) != int64(r.frameIndex) || hdr.PartIndex != r.expectedPart {
		return // gap: drop this part, current frame reassembly is lost
	}

	r.buf = append(r.buf, body...)
	r.expectedPart++

	if hdr.LastPart {
		completed := append([]byte(nil), r.buf...)
		r.buf = r.buf[:0]
		r.expectedPart = 0
		if r.onFrame != nil {
			r.onFrame(r.frameIndex, completed)
		}
	}
}

// validate checks the VideoHeader's size and CRC and returns the
// decoded header plus the payload body (trimmed to TotalSize, header
// excluded).
func (r *Reassembler) validate(payload []byte) (wire.VideoHeader, []byte, error) {
	if len(payload) < wire.VideoHeaderSize {
		return wire.VideoHeader{}, nil, errShortHeader
	}
	hdr, err := wire.GetVideoHeader(payload)
	if err != nil {
		return wire.VideoHeader{}, nil, err
	}
	if hdr.TotalSize > uint32(len(payload)) {
		return wire.VideoHeader{}, nil, errShortBody
	}
	if wire.VideoHeaderCRC(payload) != hdr.CRC {
		return wire.VideoHeader{}, nil, errCRCMismatch
	}
	return hdr, payload[wire.VideoHeaderSize:hdr.TotalSize], nil
}

// Admission serializes frame admission from any number of radio capture
// interfaces into a single [fec.Decoder], per the multi-radio policy:
// duplicates are suppressed at the decoder level (same block/packet
// discarded), so simultaneous admission from several interfaces is safe
// once serialized by mu. Also folds each frame's RSSI into a per-second
// maximum.
type Admission struct {
	mu      sync.Mutex
	decoder *fec.Decoder

	rssiMu  sync.Mutex
	rssiMax int8
	haveMax bool
}

// NewAdmission constructs an [Admission] feeding decoder.
func NewAdmission(decoder *fec.Decoder) *Admission {
	return &Admission{decoder: decoder}
}

// Admit feeds one captured radio frame into the decoder and folds its
// RSSI into the running per-second maximum. Bad-FCS frames and frames
// not carrying the air-to-ground MAC tail are dropped before reaching
// the decoder, per the malformed-wire-frame policy.
func (a *Admission) Admit(frame radio.Frame) {
	if frame.BadFCS {
		return
	}
	if len(frame.Payload) < wire.IEEE80211HeaderSize {
		return
	}
	if !wire.MatchDirection(frame.Payload, wire.AirToGround) {
		return
	}

	a.rssiMu.Lock()
	if !a.haveMax || frame.RSSI > a.rssiMax {
		a.rssiMax = frame.RSSI
		a.haveMax = true
	}
	a.rssiMu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.decoder.Admit(frame.Payload[wire.IEEE80211HeaderSize:])
}

// RSSIMax returns and resets the maximum RSSI observed since the last
// call, for a per-second link-quality publisher.
func (a *Admission) RSSIMax() (int8, bool) {
	a.rssiMu.Lock()
	defer a.rssiMu.Unlock()
	v, ok := a.rssiMax, a.haveMax
	a.rssiMax = -128
	a.haveMax = false
	return v, ok
}
