package wire

// Ground2AirType is the type tag carried by every ground-to-air payload.
type Ground2AirType uint8

const (
	Ground2AirData Ground2AirType = iota
	Ground2AirConfig
)

// Ground2AirMaxSize is the hard ceiling on any ground-to-air payload,
// matching GROUND2AIR_DATA_MAX_SIZE in the original firmware.
const Ground2AirMaxSize = 64

// ConfigPacketSize is the fixed wire size of [ConfigPacket].
const ConfigPacketSize = 41

// Camera carries the tunable image-sensor parameters pushed from ground
// to air. Ranges noted in comments are enforced by [ClampCamera], not by
// the type system, matching "Clamp; apply best effort" in the error
// handling policy.
type Camera struct {
	Resolution    Resolution
	FPSLimit      uint8
	Quality       uint8 // 0-63
	Brightness    int8  // -2..2
	Contrast      int8  // -2..2
	Saturation    int8  // -2..2
	Sharpness     int8  // -1..6
	Denoise       uint8
	SpecialEffect uint8 // 0-6
	AWB           bool
	AWBGain       bool
	WBMode        uint8 // 0-4
	AEC           bool
	AEC2          bool
	AELevel       int8 // -2..2
	AECValue      uint16
	AGC           bool
	AGCGain       uint8 // 0-30
	GainCeiling   uint8 // 0-6
	BPC           bool
	WPC           bool
	RawGMA        bool
	LENC          bool
	HMirror       bool
	VFlip         bool
	DCW           bool
}

// DefaultCamera mirrors the original firmware's default-constructed
// Ground2Air_Config_Packet::Camera.
var DefaultCamera = Camera{
	Resolution: ResolutionVGA,
	FPSLimit:   30,
	Quality:    8,
	Sharpness:  -1,
	AWB:        true,
	AWBGain:    true,
	AEC:        true,
	AEC2:       true,
	AGC:        true,
	BPC:        true,
	WPC:        true,
	LENC:       true,
	DCW:        true,
}

func clampInt8(v, lo, hi int8) int8 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampUint8(v, lo, hi uint8) uint8 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampCamera clamps every ranged field of c into its documented bounds.
func ClampCamera(c Camera) Camera {
	c.Quality = clampUint8(c.Quality, 0, 63)
	c.Brightness = clampInt8(c.Brightness, -2, 2)
	c.Contrast = clampInt8(c.Contrast, -2, 2)
	c.Saturation = clampInt8(c.Saturation, -2, 2)
	c.Sharpness = clampInt8(c.Sharpness, -1, 6)
	c.SpecialEffect = clampUint8(c.SpecialEffect, 0, 6)
	c.WBMode = clampUint8(c.WBMode, 0, 4)
	c.AELevel = clampInt8(c.AELevel, -2, 2)
	if c.AECValue > 1200 {
		c.AECValue = 1200
	}
	c.AGCGain = clampUint8(c.AGCGain, 0, 30)
	c.GainCeiling = clampUint8(c.GainCeiling, 0, 6)
	return c
}

// ConfigPacket is the ground-to-air control packet: radio/FEC tuning,
// DVR toggle, and camera parameters, pushed periodically by
// groundtx.Controller and applied field-by-field by airrx.Dispatcher.
type ConfigPacket struct {
	Ping        uint8 // nonce, echoed back as VideoHeader.Pong
	WifiPowerDBm int8  // 2..20
	WifiRate    WifiRate
	FecK        uint8
	FecN        uint8
	FecMTU      uint16
	DVRRecord   bool
	Camera      Camera
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// PutConfigPacket encodes p, including the outer type/size/crc header,
// into the first [ConfigPacketSize] bytes of b.
func PutConfigPacket(b []byte, p ConfigPacket) error {
	if len(b) < ConfigPacketSize {
		return ErrShortBuffer
	}
	b[0] = byte(Ground2AirConfig)
	putUint32At(b, 1, ConfigPacketSize)
	b[5] = 0 // crc placeholder

	o := 6
	b[o] = p.Ping
	b[o+1] = byte(p.WifiPowerDBm)
	b[o+2] = byte(p.WifiRate)
	b[o+3] = p.FecK
	b[o+4] = p.FecN
	b[o+5] = byte(p.FecMTU)
	b[o+6] = byte(p.FecMTU >> 8)
	b[o+7] = boolByte(p.DVRRecord)
	o += 8

	c := p.Camera
	b[o+0] = byte(c.Resolution)
	b[o+1] = c.FPSLimit
	b[o+2] = c.Quality
	b[o+3] = byte(c.Brightness)
	b[o+4] = byte(c.Contrast)
	b[o+5] = byte(c.Saturation)
	b[o+6] = byte(c.Sharpness)
	b[o+7] = c.Denoise
	b[o+8] = c.SpecialEffect
	b[o+9] = boolByte(c.AWB)
	b[o+10] = boolByte(c.AWBGain)
	b[o+11] = c.WBMode
	b[o+12] = boolByte(c.AEC)
	b[o+13] = boolByte(c.AEC2)
	b[o+14] = byte(c.AELevel)
	b[o+15] = byte(c.AECValue)
	b[o+16] = byte(c.AECValue >> 8)
	b[o+17] = boolByte(c.AGC)
	b[o+18] = c.AGCGain
	b[o+19] = c.GainCeiling
	b[o+20] = boolByte(c.BPC)
	b[o+21] = boolByte(c.WPC)
	b[o+22] = boolByte(c.RawGMA)
	b[o+23] = boolByte(c.LENC)
	b[o+24] = boolByte(c.HMirror)
	b[o+25] = boolByte(c.VFlip)
	b[o+26] = boolByte(c.DCW)

	b[5] = CRC8(0, b[:ConfigPacketSize])
	return nil
}

// GetConfigPacket decodes a [ConfigPacket], including the outer header,
// from the first [ConfigPacketSize] bytes of b.
func GetConfigPacket(b []byte) (ConfigPacket, error) {
	if len(b) < ConfigPacketSize {
		return ConfigPacket{}, ErrShortBuffer
	}
	o := 6
	p := ConfigPacket{
		Ping:         b[o],
		WifiPowerDBm: int8(b[o+1]),
		WifiRate:     WifiRate(b[o+2]),
		FecK:         b[o+3],
		FecN:         b[o+4],
		FecMTU:       uint16(b[o+5]) | uint16(b[o+6])<<8,
		DVRRecord:    b[o+7] != 0,
	}
	o += 8
	p.Camera = Camera{
		Resolution:    Resolution(b[o+0]),
		FPSLimit:      b[o+1],
		Quality:       b[o+2],
		Brightness:    int8(b[o+3]),
		Contrast:      int8(b[o+4]),
		Saturation:    int8(b[o+5]),
		Sharpness:     int8(b[o+6]),
		Denoise:       b[o+7],
		SpecialEffect: b[o+8],
		AWB:           b[o+9] != 0,
		AWBGain:       b[o+10] != 0,
		WBMode:        b[o+11],
		AEC:           b[o+12] != 0,
		AEC2:          b[o+13] != 0,
		AELevel:       int8(b[o+14]),
		AECValue:      uint16(b[o+15]) | uint16(b[o+16])<<8,
		AGC:           b[o+17] != 0,
		AGCGain:       b[o+18],
		GainCeiling:   b[o+19],
		BPC:           b[o+20] != 0,
		WPC:           b[o+21] != 0,
		RawGMA:        b[o+22] != 0,
		LENC:          b[o+23] != 0,
		HMirror:       b[o+24] != 0,
		VFlip:         b[o+25] != 0,
		DCW:           b[o+26] != 0,
	}
	return p, nil
}

// ConfigPacketCRC returns the CRC-8 of b[:ConfigPacketSize] with the crc
// byte (offset 5) zeroed.
func ConfigPacketCRC(b []byte) uint8 {
	var tmp [ConfigPacketSize]byte
	copy(tmp[:], b[:ConfigPacketSize])
	tmp[5] = 0
	return CRC8(0, tmp[:])
}

func putUint32At(b []byte, o int, v uint32) {
	b[o] = byte(v)
	b[o+1] = byte(v >> 8)
	b[o+2] = byte(v >> 16)
	b[o+3] = byte(v >> 24)
}
