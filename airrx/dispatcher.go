// Package airrx implements the air-side control dispatcher: it receives
// FEC-decoded ground-to-air payloads, validates the outer type/size/crc
// header, and for a Config payload diffs it against the currently
// applied parameters, applying a side effect per changed field.
// Grounded on the original firmware's handle_ground2air_config_packet,
// translated from direct hardware register pokes into calls against the
// narrow controller interfaces below.
package airrx

import (
	"errors"

	"github.com/jeanlemotan/esp32-cam-fpv/fec"
	"github.com/jeanlemotan/esp32-cam-fpv/platform"
	"github.com/jeanlemotan/esp32-cam-fpv/wire"
)

// RadioController applies radio tuning changes.
type RadioController interface {
	SetRate(rate wire.WifiRate) error
	SetPower(dbm int8) error
}

// CameraController reprograms the image sensor.
type CameraController interface {
	Configure(c wire.Camera) error
}

// EncoderReconfigurer reconfigures the FEC encoder.
type EncoderReconfigurer interface {
	Reconfigure(desc fec.Descriptor) error
}

// DVRController toggles DVR recording.
type DVRController interface {
	SetRecording(on bool)
}

// VideoPacer receives the fps-derived pacing parameter and the ping
// nonce to echo, both carried by [wire.ConfigPacket].
type VideoPacer interface {
	SetFPSLimit(fps uint8)
	SetPong(pong uint8)
}

// Dispatcher validates and applies ground-to-air control payloads.
type Dispatcher struct {
	Radio   RadioController
	Camera  CameraController
	Encoder EncoderReconfigurer
	DVR     DVRController
	Pacer   VideoPacer
	Logger  platform.Logger

	current     wire.ConfigPacket
	haveCurrent bool
}

// NewDispatcher constructs a [Dispatcher].
func NewDispatcher(radio RadioController, camera CameraController, enc EncoderReconfigurer, dvr DVRController, pacer VideoPacer, logger platform.Logger) *Dispatcher {
	if logger == nil {
		logger = platform.Default
	}
	return &Dispatcher{
		Radio:   radio,
		Camera:  camera,
		Encoder: enc,
		DVR:     dvr,
		Pacer:   pacer,
		Logger:  logger,
	}
}

var (
	errShortPayload  = errors.New("airrx: size exceeds payload length")
	errCRCMismatch   = errors.New("airrx: crc mismatch")
	errShortForHeader = errors.New("airrx: payload shorter than the outer header")
)

// outerHeaderLen is the minimum payload length needed to read the
// type/size/crc outer header shared by every ground-to-air payload.
const outerHeaderLen = 6

// Handle validates payload's outer header and, for a Config payload,
// diffs it against the currently applied configuration and applies each
// changed field's side effect. Any other type is logged and dropped.
func (d *Dispatcher) Handle(payload []byte) error {
	if len(payload) < outerHeaderLen {
		return errShortForHeader
	}
	typ := wire.Ground2AirType(payload[0])
	size := uint32(payload[1]) | uint32(payload[2])<<8 | uint32(payload[3])<<16 | uint32(payload[4])<<24

	if size > uint32(len(payload)) {
		return errShortPayload
	}
	if !validOuterCRC(payload, size) {
		return errCRCMismatch
	}

	switch typ {
	case wire.Ground2AirConfig:
		return d.handleConfig(payload[:size])
	default:
		d.Logger.Warnf("airrx: dropping unknown ground2air type %d", typ)
		return nil
	}
}

// validOuterCRC recomputes the CRC-8 over payload[:size] with the crc
// byte (offset 5) zeroed and compares it against the carried value.
func validOuterCRC(payload []byte, size uint32) bool {
	buf := append([]byte(nil), payload[:size]...)
	want := payload[5]
	buf[5] = 0
	return wire.CRC8(0, buf) == want
}

func (d *Dispatcher) handleConfig(payload []byte) error {
	if len(payload) < wire.ConfigPacketSize {
		return errShortForHeader
	}
	next, err := wire.GetConfigPacket(payload)
	if err != nil {
		return err
	}
	next.Camera = wire.ClampCamera(next.Camera)
	next.WifiRate = wire.ClampWifiRate(next.WifiRate)

	d.apply(next)
	return nil
}

// apply diffs next against the last-applied configuration field by
// field and triggers the side effect for anything that changed. Config
// application is best-effort and non-atomic across fields, matching the
// ordering guarantee.
func (d *Dispatcher) apply(next wire.ConfigPacket) {
	prev := d.current
	first := !d.haveCurrent

	if first || prev.WifiRate != next.WifiRate {
		if d.Radio != nil {
			if err := d.Radio.SetRate(next.WifiRate); err != nil {
				d.Logger.Errorf("airrx: SetRate: %s", err.Error())
			}
		}
	}
	if first || prev.WifiPowerDBm != next.WifiPowerDBm {
		if d.Radio != nil {
			if err := d.Radio.SetPower(next.WifiPowerDBm); err != nil {
				d.Logger.Errorf("airrx: SetPower: %s", err.Error())
			}
		}
	}
	if first || prev.FecK != next.FecK || prev.FecN != next.FecN || prev.FecMTU != next.FecMTU {
		if d.Encoder != nil {
			desc := fec.Descriptor{K: next.FecK, N: next.FecN, MTU: int(next.FecMTU)}
			if err := d.Encoder.Reconfigure(desc); err != nil {
				d.Logger.Errorf("airrx: Reconfigure: %s", err.Error())
			}
		}
	}
	if first || prev.Camera != next.Camera {
		if d.Camera != nil {
			if err := d.Camera.Configure(next.Camera); err != nil {
				d.Logger.Errorf("airrx: Camera.Configure: %s", err.Error())
			}
		}
	}
	if first || prev.DVRRecord != next.DVRRecord {
		if d.DVR != nil {
			d.DVR.SetRecording(next.DVRRecord)
		}
	}
	if first || prev.Camera.FPSLimit != next.Camera.FPSLimit {
		if d.Pacer != nil {
			d.Pacer.SetFPSLimit(next.Camera.FPSLimit)
		}
	}
	if d.Pacer != nil {
		// Every received ping nonce is echoed, not only on change: the
		// ground side measures RTT by matching the nonce it last sent
		// against the pong carried back on video packets.
		d.Pacer.SetPong(next.Ping)
	}

	d.current = next
	d.haveCurrent = true
}
