// Package wire implements the little-endian, no-padding packet formats
// carried over the FEC transport: the 6-byte transport frame header, the
// air-to-ground video packet header, the ground-to-air config packet,
// the CRC-8 used by both, and the fixed 802.11/radiotap framing
// constants the radio package builds on.
//
// All multi-byte integers are little-endian, packed, no padding,
// matching the original firmware's #pragma pack(push, 1) structures.
package wire

import "fmt"

// FrameHeaderSize is the size in bytes of [FrameHeader] on the wire.
const FrameHeaderSize = 6

// FrameHeader is the 6-byte header prefixed to every transport frame's
// MTU-byte payload: block_index:24, packet_index:8, size:16.
type FrameHeader struct {
	BlockIndex  uint32 // only the low 24 bits are significant
	PacketIndex uint8
	Size        uint16
}

// PutFrameHeader encodes h into the first [FrameHeaderSize] bytes of b.
// Panics if b is too short.
func PutFrameHeader(b []byte, h FrameHeader) {
	_ = b[FrameHeaderSize-1]
	b[0] = byte(h.BlockIndex)
	b[1] = byte(h.BlockIndex >> 8)
	b[2] = byte(h.BlockIndex >> 16)
	b[3] = h.PacketIndex
	b[4] = byte(h.Size)
	b[5] = byte(h.Size >> 8)
}

// GetFrameHeader decodes a [FrameHeader] from the first
// [FrameHeaderSize] bytes of b. Panics if b is too short.
func GetFrameHeader(b []byte) FrameHeader {
	_ = b[FrameHeaderSize-1]
	return FrameHeader{
		BlockIndex:  uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16,
		PacketIndex: b[3],
		Size:        uint16(b[4]) | uint16(b[5])<<8,
	}
}

// BlockIndexMask masks a block index to its 24 significant bits. The
// block index wraps modulo 2^24; see [BlockIndexDistance].
const BlockIndexMask = 1<<24 - 1

// blockIndexWindow is the tolerance window used when comparing block
// indices that may have wrapped modulo 2^24 (strictly smaller than
// 2^23, per the open question in the specification).
const blockIndexWindow = 1 << 22

// BlockIndexDistance returns b-a interpreted as a signed distance modulo
// 2^24: positive when b is "after" a, negative when "before", wrapping
// tolerated as long as the true distance is smaller than the wrap
// window.
func BlockIndexDistance(a, b uint32) int32 {
	a &= BlockIndexMask
	b &= BlockIndexMask
	d := int32(b) - int32(a)
	if d > blockIndexWindow {
		d -= 1 << 24
	} else if d < -blockIndexWindow {
		d += 1 << 24
	}
	return d
}

func (h FrameHeader) String() string {
	return fmt.Sprintf("block=%d packet=%d size=%d", h.BlockIndex&BlockIndexMask, h.PacketIndex, h.Size)
}
