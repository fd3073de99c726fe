package wire

// IEEE80211HeaderSize is the fixed size of the 802.11 MAC header wrapping
// every transport frame, matching WLAN_IEEE_HEADER_SIZE.
const IEEE80211HeaderSize = 24

// WLANMaxPacketSize is the maximum size of a radio-injected packet
// (header + payload), matching WLAN_MAX_PACKET_SIZE.
const WLANMaxPacketSize = 1500

// WLANMaxPayloadSize is the maximum transport-frame payload (header +
// MTU) that fits after the fixed 802.11 header.
const WLANMaxPayloadSize = WLANMaxPacketSize - IEEE80211HeaderSize

// Air2GroundMTU is the default MTU for the air-to-ground FEC stream:
// the max payload minus the 6-byte transport frame header.
const Air2GroundMTU = WLANMaxPayloadSize - FrameHeaderSize

// directionTail is the 6-byte MAC address tail used to discriminate
// air-to-ground frames from ground-to-air frames. Receivers match these
// bytes at offset 10 of the 802.11 payload (offset 10 of the header
// below).
var (
	directionTailAirToGround = [6]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	directionTailGroundToAir = [6]byte{0x66, 0x55, 0x44, 0x33, 0x22, 0x11}
)

// ieee80211HeaderTemplate is the fixed part of the 802.11 data-frame
// header (frame control, duration, broadcast receiver address) shared by
// both directions; addresses 2 and 3 carry the direction discriminator.
var ieee80211HeaderTemplate = [IEEE80211HeaderSize]byte{
	0x08, 0x01, 0x00, 0x00,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0, 0, 0, 0, 0, 0, // address 2, overwritten with the direction tail
	0, 0, 0, 0, 0, 0, // address 3, overwritten with the direction tail
	0x10, 0x86,
}

// Direction identifies which way a transport frame is flowing.
type Direction int

const (
	AirToGround Direction = iota
	GroundToAir
)

// DirectionTail returns the 6-byte MAC tail used to mark frames flowing
// in direction d.
func DirectionTail(d Direction) [6]byte {
	if d == AirToGround {
		return directionTailAirToGround
	}
	return directionTailGroundToAir
}

// BuildIEEE80211Header writes the fixed 802.11 header for direction d
// into the first [IEEE80211HeaderSize] bytes of b.
func BuildIEEE80211Header(b []byte, d Direction) {
	_ = b[IEEE80211HeaderSize-1]
	copy(b, ieee80211HeaderTemplate[:])
	tail := DirectionTail(d)
	copy(b[10:16], tail[:])
	copy(b[16:22], tail[:])
}

// MatchDirection reports whether the 6 bytes at offset 10 of an 802.11
// header identify direction d.
func MatchDirection(header []byte, d Direction) bool {
	if len(header) < 16 {
		return false
	}
	tail := DirectionTail(d)
	for i := 0; i < 6; i++ {
		if header[10+i] != tail[i] {
			return false
		}
	}
	return true
}
