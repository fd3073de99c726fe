// Package groundtx implements the ground-side periodic control
// transmitter: it emits a [wire.ConfigPacket] carrying the current ping
// nonce every 500ms (and immediately whenever a parameter changes),
// through a small FEC encoder for robustness of the command channel.
// Grounded on the comms_thread_proc 500ms send loop in
// original_source/gs/src/main.cpp.
package groundtx

import (
	"context"
	"sync"
	"time"

	"github.com/jeanlemotan/esp32-cam-fpv/fec"
	"github.com/jeanlemotan/esp32-cam-fpv/groundrx"
	"github.com/jeanlemotan/esp32-cam-fpv/platform"
	"github.com/jeanlemotan/esp32-cam-fpv/radio"
	"github.com/jeanlemotan/esp32-cam-fpv/wire"
)

// sendInterval is the periodic ConfigPacket cadence.
const sendInterval = 500 * time.Millisecond

// Encoder is the narrow interface Controller needs from the (typically
// k=2,n=6) FEC encoder wrapping the command channel.
type Encoder interface {
	SetOnEncoded(cb func(frame []byte))
	EncodeStream(data []byte, block bool) (dropped int)
}

// Injector is the narrow interface Controller needs from the radio
// driver to transmit command-channel transport frames.
type Injector interface {
	Inject(payload []byte, rate wire.WifiRate) error
}

// Controller periodically (and on demand) emits ConfigPackets.
type Controller struct {
	encoder  Encoder
	injector Injector
	ping     *groundrx.PingClock
	logger   platform.Logger

	// Rate is the PHY rate used to transmit the command channel.
	Rate wire.WifiRate

	mu      sync.Mutex
	current wire.ConfigPacket

	changed chan struct{}
	now     func() time.Time
}

// NewController constructs a [Controller]. The encoder's onEncoded
// callback is installed here; it must not already be in use by another
// consumer.
func NewController(encoder Encoder, injector Injector, ping *groundrx.PingClock, logger platform.Logger) *Controller {
	if logger == nil {
		logger = platform.Default
	}
	c := &Controller{
		encoder:  encoder,
		injector: injector,
		ping:     ping,
		logger:   logger,
		current:  defaultConfigPacket(),
		changed:  make(chan struct{}, 1),
		now:      time.Now,
	}
	encoder.SetOnEncoded(c.inject)
	return c
}

func defaultConfigPacket() wire.ConfigPacket {
	return wire.ConfigPacket{
		WifiPowerDBm: 14,
		WifiRate:     wire.RateG24MOFDM,
		FecK:         2,
		FecN:         6,
		FecMTU:       uint16(wire.Ground2AirMaxSize - 8),
		Camera:       wire.DefaultCamera,
	}
}

// SetParameters replaces the parameters sent on every subsequent
// ConfigPacket (everything except Ping, which Controller manages) and
// requests an immediate out-of-cycle send.
func (c *Controller) SetParameters(p wire.ConfigPacket) {
	c.mu.Lock()
	p.Ping = c.current.Ping
	c.current = p
	c.mu.Unlock()

	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// Parameters returns the parameters currently being sent.
func (c *Controller) Parameters() wire.ConfigPacket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Run sends ConfigPackets every 500ms, or immediately on a SetParameters
// call, until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	tckr := time.NewTicker(sendInterval)
	defer tckr.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tckr.C:
			c.send()
		case <-c.changed:
			c.send()
		}
	}
}

func (c *Controller) send() {
	c.mu.Lock()
	p := c.current
	if c.ping != nil {
		p.Ping = c.ping.Nonce()
	}
	c.current.Ping = p.Ping
	c.mu.Unlock()

	buf := make([]byte, wire.ConfigPacketSize)
	if err := wire.PutConfigPacket(buf, p); err != nil {
		c.logger.Errorf("groundtx: PutConfigPacket: %s", err.Error())
		return
	}

	if dropped := c.encoder.EncodeStream(buf, true); dropped > 0 {
		c.logger.Warnf("groundtx: encoder dropped %d bytes of a ConfigPacket", dropped)
	}

	if c.ping != nil {
		c.ping.Sent(c.now())
	}
}

// inject is the encoder's onEncoded sink: it wraps every emitted
// transport frame in the fixed 802.11 header and transmits it.
func (c *Controller) inject(frame []byte) {
	full := radio.BuildFrame(wire.GroundToAir, frame)
	if err := c.injector.Inject(full, c.Rate); err != nil {
		c.logger.Warnf("groundtx: Inject: %s", err.Error())
	}
}

var _ Encoder = &fec.Encoder{}
