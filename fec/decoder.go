package fec

import (
	"sync"
	"time"

	"github.com/jeanlemotan/esp32-cam-fpv/platform"
	"github.com/jeanlemotan/esp32-cam-fpv/wire"
)

// Decoded is one reassembled data payload delivered by a [Decoder],
// either recovered verbatim (from a received data frame) or
// reconstructed via FEC recovery.
type Decoded struct {
	BlockIndex  uint32
	PacketIndex uint8
	Payload     []byte // length MTU; caller must copy before reuse
	Size        int    // sender-reported payload length, <= len(Payload)
	Recovered   bool
}

// Decoder reassembles the (k, n) coding blocks produced by an [Encoder].
// Admit must be called from a single goroutine per session (one
// reassembler per radio link); [Decoder.Reconfigure] may be called
// concurrently.
type Decoder struct {
	logger platform.Logger

	mu   sync.Mutex
	desc Descriptor

	onDecoded func(Decoded)

	currentBlock uint32
	haveBlock    bool
	slots        []blockSlot // len == desc.N, indexed by packet_index
	delivered    int         // count of data packet_index already emitted for currentBlock

	// ResetAfter, if nonzero, makes Admit reset currentBlock tracking
	// (as if this were the first frame of a new session) when the gap
	// since the previous admitted frame exceeds it. Grounded on the
	// original firmware's air-link watchdog
	// (components/common/fec_codec.cpp airRXReset pattern).
	ResetAfter   time.Duration
	lastAdmitted time.Time
	now          func() time.Time
}

// staleBlockWindow is the hardcoded "within 100 of current" stale
// threshold: closer than this, an already-passed block_index is stale
// and dropped; farther than this, it is treated as the sender having
// restarted its session. Kept as-is per the design notes' instruction
// not to generalize this constant.
const staleBlockWindow = 100

type blockSlot struct {
	present bool
	data    []byte // copy of the frame's payload, length desc.MTU
	size    int    // sender-reported payload length; unknown (MTU) for FEC-recovered slots
	recovered bool // reconstructed by FEC rather than received
}

// NewDecoder constructs a [Decoder] for the given shape.
func NewDecoder(desc Descriptor, logger platform.Logger) (*Decoder, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = platform.Default
	}
	d := &Decoder{
		logger: logger,
		desc:   desc,
		slots:  make([]blockSlot, desc.N),
		now:    time.Now,
	}
	return d, nil
}

// SetOnDecoded installs the callback invoked, in strictly increasing
// (block_index, packet_index) order, with each reassembled data payload.
func (d *Decoder) SetOnDecoded(cb func(Decoded)) {
	d.onDecoded = cb
}

// Reconfigure atomically swaps the descriptor and discards any
// in-progress block, since frames coded under the old (k, n) shape can
// no longer be combined with frames coded under the new one.
func (d *Decoder) Reconfigure(desc Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.desc = desc
	d.slots = make([]blockSlot, desc.N)
	d.haveBlock = false
	d.delivered = 0
	return nil
}

// Admit feeds one received transport frame (header+payload, as produced
// by an [Encoder]) into the decoder. It implements the admission,
// early-delivery, completion, recovery and abandonment rules: see the
// component design notes for the full state machine.
func (d *Decoder) Admit(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(frame) < wire.FrameHeaderSize {
		return
	}
	hdr := wire.GetFrameHeader(frame)
	if int(hdr.PacketIndex) >= int(d.desc.N) {
		return // malformed: packet_index out of range for current shape
	}

	now := d.now()
	if d.ResetAfter > 0 && !d.lastAdmitted.IsZero() && now.Sub(d.lastAdmitted) > d.ResetAfter {
		d.resetSession()
	}
	d.lastAdmitted = now

	if !d.haveBlock {
		d.beginBlock(hdr.BlockIndex)
	}

	dist := wire.BlockIndexDistance(d.currentBlock, hdr.BlockIndex)
	switch {
	case dist == 0:
		// frame belongs to the block in progress
	case dist < 0 && dist > -staleBlockWindow:
		return // stale: drop, retained per the hardcoded threshold in 4.D
	case dist < 0:
		// more than staleBlockWindow behind: treat as a TX session
		// restart rather than residual staleness.
		d.resetSession()
		d.beginBlock(hdr.BlockIndex)
	default:
		// frame belongs to a later block: abandon the in-progress one
		// (emitting whatever was received but not yet delivered; no gap synthesis)
		// and fast-forward.
		d.abandonBlock()
		d.beginBlock(hdr.BlockIndex)
	}

	slot := &d.slots[hdr.PacketIndex]
	if slot.present {
		return // duplicate
	}
	payload := frame[wire.FrameHeaderSize:]
	buf := make([]byte, d.desc.MTU)
	n := copy(buf, payload)
	for i := n; i < d.desc.MTU; i++ {
		buf[i] = 0
	}
	size := int(hdr.Size)
	if size > d.desc.MTU {
		size = d.desc.MTU
	}
	slot.present = true
	slot.data = buf
	slot.size = size

	d.tryDeliver()
}

// beginBlock resets per-block state to track blockIndex as current.
func (d *Decoder) beginBlock(blockIndex uint32) {
	d.currentBlock = blockIndex
	d.haveBlock = true
	d.delivered = 0
	for i := range d.slots {
		d.slots[i] = blockSlot{}
	}
}

// resetSession clears all block tracking, as if no frame had ever been
// admitted; the next admitted frame starts a fresh block regardless of
// its block_index.
func (d *Decoder) resetSession() {
	d.haveBlock = false
	d.delivered = 0
	for i := range d.slots {
		d.slots[i] = blockSlot{}
	}
}

// tryDeliver emits any newly-deliverable data payloads for the
// in-progress block: early delivery of a contiguous prefix, completion
// once all k data slots are present, or FEC recovery once k of the n
// slots (data or parity) are present.
func (d *Decoder) tryDeliver() {
	k := int(d.desc.K)

	// Early delivery: emit the contiguous run of data packets starting
	// at d.delivered that are already present.
	for d.delivered < k && d.slots[d.delivered].present {
		d.emit(d.delivered, d.slots[d.delivered].data, d.slots[d.delivered].size, false)
		d.delivered++
	}
	if d.delivered == k {
		d.finishBlock()
		return
	}

	present := 0
	for i := 0; i < int(d.desc.N); i++ {
		if d.slots[i].present {
			present++
		}
	}
	if present < k {
		return
	}

	d.recoverBlock()
	d.finishBlock()
}

// recoverBlock runs FEC recovery once k of the n slots are present,
// reconstructing any missing data slots before they are emitted in
// order.
func (d *Decoder) recoverBlock() {
	k := int(d.desc.K)

	var indices []int
	var src [][]byte
	for i := 0; i < int(d.desc.N) && len(src) < k; i++ {
		if d.slots[i].present {
			indices = append(indices, i)
			src = append(src, d.slots[i].data)
		}
	}

	var missing []int
	for i := d.delivered; i < k; i++ {
		if !d.slots[i].present {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return
	}

	dst := make([][]byte, len(missing))
	for i := range dst {
		dst[i] = make([]byte, d.desc.MTU)
	}
	if err := Decode(d.desc.K, d.desc.N, src, dst, indices, missing, d.desc.MTU); err != nil {
		d.logger.Errorf("fec: Decode: %s", err.Error())
		return
	}
	for i, pos := range missing {
		d.slots[pos].present = true
		d.slots[pos].recovered = true
		d.slots[pos].data = dst[i]
		// FEC recovery reconstructs the payload bytes only; the sender's
		// header (and thus the true size) for this position was never
		// received, so the full MTU is the best available size.
		d.slots[pos].size = d.desc.MTU
	}
}

// finishBlock emits whatever contiguous prefix of data slots is now
// present (after recovery, this is all of them) and advances to the next
// block_index, so late or duplicate frames of the finished block (such as
// its trailing parity) are then dropped as stale.
func (d *Decoder) finishBlock() {
	k := int(d.desc.K)
	for d.delivered < k && d.slots[d.delivered].present {
		d.emit(d.delivered, d.slots[d.delivered].data, d.slots[d.delivered].size, d.slots[d.delivered].recovered)
		d.delivered++
	}
	d.beginBlock((d.currentBlock + 1) & wire.BlockIndexMask)
}

// abandonBlock flushes whatever data positions of the in-progress block
// were actually received but not yet delivered, in index order, without
// attempting FEC recovery for the rest — used when a later block arrives
// before this one completed. Positions that never arrived are simply
// skipped (no gap is synthesized); this can still emit a
// non-contiguous tail such as position 3 after positions 0-2 were lost.
func (d *Decoder) abandonBlock() {
	k := int(d.desc.K)
	for i := d.delivered; i < k; i++ {
		if d.slots[i].present {
			d.emit(i, d.slots[i].data, d.slots[i].size, false)
		}
	}
	d.haveBlock = false
}

func (d *Decoder) emit(packetIndex int, payload []byte, size int, recovered bool) {
	if d.onDecoded == nil {
		return
	}
	d.onDecoded(Decoded{
		BlockIndex:  d.currentBlock,
		PacketIndex: uint8(packetIndex),
		Payload:     payload,
		Size:        size,
		Recovered:   recovered,
	})
}
