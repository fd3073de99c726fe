// Package radio is the Go form of "the Wi-Fi radio driver" external
// collaborator: it injects and captures raw 802.11 frames carrying a
// radiotap header, and exposes RSSI and bad-FCS status to its caller.
// [PcapCapture] / [PcapInjector] realize it against pcap capture files
// using gopacket/pcapgo (grounded on the teacher's pcap.go dumper);
// [Loopback] realizes it in memory for tests (grounded on the teacher's
// MockableNIC pattern).
package radio

import "github.com/jeanlemotan/esp32-cam-fpv/wire"

// Frame is one captured 802.11 frame, post-radiotap-dissection: Payload
// is the 802.11 MAC frame (header + body), with the trailing FCS bytes
// already stripped.
type Frame struct {
	Payload []byte
	RSSI    int8 // dBm, from the radiotap dbm_antsignal field
	BadFCS  bool
}

// Injector transmits raw 802.11 frames at a given PHY rate.
type Injector interface {
	// Inject transmits payload (a complete 802.11 frame, header included)
	// at the given rate. The implementations in this package make a
	// single attempt and return its error; they do not retry.
	Inject(payload []byte, rate wire.WifiRate) error

	Close() error
}

// Capture receives raw 802.11 frames from a monitor-mode interface or
// replay source.
type Capture interface {
	// FrameAvailable yields when a new frame is ready to be read with
	// ReadFrameNonblocking.
	FrameAvailable() <-chan struct{}

	// ReadFrameNonblocking returns the next captured frame, or
	// ErrNoFrame if FrameAvailable fired spuriously. Bad-FCS frames are
	// returned like any other, with Frame.BadFCS set.
	ReadFrameNonblocking() (Frame, error)

	// Closed yields when the capture source has been closed, e.g. the
	// interface went away or the replay file reached EOF.
	Closed() <-chan struct{}

	Close() error
}

// ErrNoFrame indicates FrameAvailable fired but no frame is currently
// available to read.
type noFrameError struct{}

func (noFrameError) Error() string { return "radio: no frame available" }

// ErrNoFrame is returned by ReadFrameNonblocking when called without a
// frame actually pending.
var ErrNoFrame error = noFrameError{}

// BuildFrame prepends the fixed 24-byte 802.11 header (carrying
// direction d's MAC tail discriminator) to transportFrame, producing the
// complete frame an [Injector] transmits.
func BuildFrame(d wire.Direction, transportFrame []byte) []byte {
	out := make([]byte, wire.IEEE80211HeaderSize+len(transportFrame))
	wire.BuildIEEE80211Header(out, d)
	copy(out[wire.IEEE80211HeaderSize:], transportFrame)
	return out
}
