// Package fec implements the block-oriented (k, n) FEC packet transport
// layer: [Encoder] packetizes a byte stream into fixed-MTU blocks of k
// data plus n-k parity transport frames, and [Decoder] reassembles them
// with early delivery and recovery. Grounded on
// original_source/components/common/fec_codec.{h,cpp}, translated from
// FreeRTOS queues/tasks to goroutines and channels per the "callbacks ->
// channels" design note.
package fec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jeanlemotan/esp32-cam-fpv/platform"
	"github.com/jeanlemotan/esp32-cam-fpv/wire"
)

// Descriptor configures an [Encoder] or [Decoder].
type Descriptor struct {
	K   uint8
	N   uint8
	MTU int
}

// Validate checks the init invariants: 1<=k<=16, k<n<=32, mtu>0.
func (d Descriptor) Validate() error {
	if d.K < 1 || d.K > 16 {
		return fmt.Errorf("fec: k=%d out of range [1,16]", d.K)
	}
	if d.N <= d.K || d.N > 32 {
		return fmt.Errorf("fec: n=%d out of range (k,32]", d.N)
	}
	if d.MTU <= 0 {
		return errors.New("fec: mtu must be > 0")
	}
	return nil
}

const defaultPoolBlocks = 4 // slots held in flight across in-progress blocks

// Encoder packetizes a byte stream into (k, n) coding blocks. Exactly
// one goroutine may call [Encoder.ReservePacket]/[Encoder.FlushPacket]/
// [Encoder.EncodeStream]; [Encoder.Reconfigure] may be called from any
// goroutine.
type Encoder struct {
	logger platform.Logger

	cfgMu sync.Mutex
	desc  Descriptor

	pool *slotPool
	jobs chan encoderJob

	onEncoded func(frame []byte)

	// caller-owned state: touched only by the single encoding goroutine.
	blockIndex  uint32
	packetIndex uint8
	curSlot     []byte
	curFilled   int

	wg sync.WaitGroup
}

type encoderJob struct {
	frame   []byte // header+payload, nil if abandon
	abandon bool
}

// NewEncoder constructs an [Encoder] and starts its worker goroutine.
func NewEncoder(desc Descriptor, logger platform.Logger) (*Encoder, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = platform.Default
	}
	e := &Encoder{
		logger: logger,
		desc:   desc,
		pool:   newSlotPool(int(desc.N)*defaultPoolBlocks, wire.FrameHeaderSize+desc.MTU),
		jobs:   make(chan encoderJob, int(desc.N)*defaultPoolBlocks),
	}
	e.wg.Add(1)
	go e.run()
	return e, nil
}

// SetOnEncoded installs the callback invoked by the worker goroutine for
// every sealed transport frame (both data and parity), in strictly
// increasing (block_index, packet_index) order within a block. Must be
// called before any data is encoded.
func (e *Encoder) SetOnEncoded(cb func(frame []byte)) {
	e.onEncoded = cb
}

// Close stops the worker goroutine once the current job queue drains.
func (e *Encoder) Close() {
	close(e.jobs)
	e.wg.Wait()
}

func (e *Encoder) snapshotDesc() Descriptor {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	return e.desc
}

// Reconfigure atomically swaps the descriptor. The block in progress (if
// any) is abandoned: block_index is preserved if no data frame of it has
// been flushed yet, or advanced past it otherwise, so block_index keeps
// increasing monotonically across the reconfiguration.
func (e *Encoder) Reconfigure(desc Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	if e.packetIndex > 0 {
		e.jobs <- encoderJob{abandon: true}
		e.blockIndex++
		e.packetIndex = 0
	}
	if e.curSlot != nil {
		e.pool.release(e.curSlot)
		e.curSlot = nil
		e.curFilled = 0
	}
	e.desc = desc
	e.pool = newSlotPool(int(desc.N)*defaultPoolBlocks, wire.FrameHeaderSize+desc.MTU)
	return nil
}

// ReservePacket returns a writable MTU-byte payload region inside the
// next data frame for the caller to fill directly. If block is true,
// this call waits for a free pool slot; if false, it returns ok=false on
// pool exhaustion (the caller should count this as a drop).
func (e *Encoder) ReservePacket(block bool) (payload []byte, ok bool) {
	if e.curSlot != nil {
		return e.curSlot[wire.FrameHeaderSize : wire.FrameHeaderSize+e.curFilled+e.remainingInSlot()], true
	}
	desc := e.snapshotDesc()
	slot, ok := e.pool.acquire(block)
	if !ok {
		return nil, false
	}
	e.curSlot = slot
	e.curFilled = 0
	return slot[wire.FrameHeaderSize : wire.FrameHeaderSize+desc.MTU], true
}

func (e *Encoder) remainingInSlot() int {
	desc := e.snapshotDesc()
	return desc.MTU - e.curFilled
}

// MarkWritten tells the encoder how many bytes of the slot returned by
// ReservePacket the caller actually wrote (cumulative within the slot);
// used by EncodeStream and by direct callers who fill the slot partially
// across several calls before flushing.
func (e *Encoder) MarkWritten(n int) {
	e.curFilled = n
}

// FlushPacket marks the current slot sealed: any unwritten payload bytes
// are zero-padded, the frame's 6-byte header is stamped with
// (block_index, packet_index, size=bytes actually written), and the
// sealed frame is hung off to the encoder worker. Once the k-th data
// frame of a block has been flushed, block_index advances for the next
// block.
func (e *Encoder) FlushPacket() error {
	if e.curSlot == nil {
		return errors.New("fec: FlushPacket called with no reserved slot")
	}
	desc := e.snapshotDesc()

	for i := e.curFilled; i < desc.MTU; i++ {
		e.curSlot[wire.FrameHeaderSize+i] = 0
	}

	wire.PutFrameHeader(e.curSlot, wire.FrameHeader{
		BlockIndex:  e.blockIndex,
		PacketIndex: e.packetIndex,
		Size:        uint16(e.curFilled),
	})

	frame := e.curSlot
	e.curSlot = nil
	e.curFilled = 0

	e.jobs <- encoderJob{frame: frame}

	e.packetIndex++
	if e.packetIndex == desc.K {
		e.packetIndex = 0
		e.blockIndex++
	}
	return nil
}

// EncodeStream fills successive ReservePacket slots from data, flushing
// whenever a slot fills, and returns the number of bytes that could not
// be buffered because the pool was exhausted (block=false semantics).
func (e *Encoder) EncodeStream(data []byte, block bool) (dropped int) {
	for len(data) > 0 {
		payload, ok := e.ReservePacket(block)
		if !ok {
			return len(data)
		}
		free := len(payload) - e.curFilled
		n := free
		if n > len(data) {
			n = len(data)
		}
		copy(payload[e.curFilled:e.curFilled+n], data[:n])
		e.curFilled += n
		data = data[n:]

		if e.curFilled == len(payload) {
			if err := e.FlushPacket(); err != nil {
				e.logger.Warnf("fec: FlushPacket: %s", err.Error())
			}
		}
	}
	return 0
}

// run is the encoder worker goroutine: it forwards data frames to
// onEncoded immediately, accumulates the k payloads of the in-progress
// block, and computes + emits the n-k parity frames once the block is
// complete.
func (e *Encoder) run() {
	defer e.wg.Done()

	var blockPayloads [][]byte
	var blockFrames [][]byte

	reset := func() {
		for _, f := range blockFrames {
			e.pool.release(f)
		}
		blockPayloads = blockPayloads[:0]
		blockFrames = blockFrames[:0]
	}

	for job := range e.jobs {
		if job.abandon {
			reset()
			continue
		}

		if e.onEncoded != nil {
			e.onEncoded(job.frame)
		}

		hdr := wire.GetFrameHeader(job.frame)
		blockPayloads = append(blockPayloads, job.frame[wire.FrameHeaderSize:])
		blockFrames = append(blockFrames, job.frame)

		desc := e.snapshotDesc()
		if len(blockPayloads) == int(desc.K) {
			e.emitParity(hdr.BlockIndex, desc, blockPayloads)
			reset()
		}
	}
	reset()
}

func (e *Encoder) emitParity(blockIndex uint32, desc Descriptor, payloads [][]byte) {
	numParity := int(desc.N - desc.K)
	paritySlots := make([][]byte, numParity)
	parityBufs := make([][]byte, numParity)
	for i := range paritySlots {
		slot, _ := e.pool.acquire(true)
		parityBufs[i] = slot
		paritySlots[i] = slot[wire.FrameHeaderSize:]
	}

	if err := Encode(desc.K, desc.N, payloads, paritySlots, desc.MTU); err != nil {
		e.logger.Errorf("fec: Encode: %s", err.Error())
		for _, b := range parityBufs {
			e.pool.release(b)
		}
		return
	}

	for i, buf := range parityBufs {
		wire.PutFrameHeader(buf, wire.FrameHeader{
			BlockIndex:  blockIndex,
			PacketIndex: desc.K + uint8(i),
			Size:        uint16(desc.MTU),
		})
		if e.onEncoded != nil {
			e.onEncoded(buf)
		}
		e.pool.release(buf)
	}
}
