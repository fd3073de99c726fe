package radio

import (
	"sync"

	"github.com/jeanlemotan/esp32-cam-fpv/wire"
)

// Loopback is an in-memory Injector+Capture pair with no pcap file
// involved, used to drive end-to-end tests without a real or replayed
// radio interface.
type Loopback struct {
	frames    chan Frame
	avail     chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// NewLoopback creates a [Loopback] with the given frame backlog depth.
func NewLoopback(depth int) *Loopback {
	return &Loopback{
		frames: make(chan Frame, depth),
		avail:  make(chan struct{}, depth),
		closed: make(chan struct{}),
	}
}

var (
	_ Injector = &Loopback{}
	_ Capture  = &Loopback{}
)

// Inject implements [Injector]; rate is recorded nowhere (loopback has no
// PHY), but the signature matches real injectors so tests can swap them
// in transparently.
func (l *Loopback) Inject(payload []byte, rate wire.WifiRate) error {
	frame := Frame{Payload: append([]byte{}, payload...)}
	select {
	case l.frames <- frame:
		select {
		case l.avail <- struct{}{}:
		default:
		}
		return nil
	case <-l.closed:
		return noFrameError{}
	}
}

// InjectRSSI is a test convenience for asserting radiotap-derived link
// quality without a real capture path: it behaves like Inject but lets
// the test stamp an RSSI as if it had been read from the radiotap header.
func (l *Loopback) InjectRSSI(payload []byte, rssi int8) error {
	frame := Frame{Payload: append([]byte{}, payload...), RSSI: rssi}
	select {
	case l.frames <- frame:
		select {
		case l.avail <- struct{}{}:
		default:
		}
		return nil
	case <-l.closed:
		return noFrameError{}
	}
}

// FrameAvailable implements [Capture].
func (l *Loopback) FrameAvailable() <-chan struct{} {
	return l.avail
}

// ReadFrameNonblocking implements [Capture].
func (l *Loopback) ReadFrameNonblocking() (Frame, error) {
	select {
	case f := <-l.frames:
		return f, nil
	default:
		return Frame{}, ErrNoFrame
	}
}

// Closed implements [Capture].
func (l *Loopback) Closed() <-chan struct{} {
	return l.closed
}

// Close implements both [Injector] and [Capture].
func (l *Loopback) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}
