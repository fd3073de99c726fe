package radio

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/jeanlemotan/esp32-cam-fpv/platform"
	"github.com/jeanlemotan/esp32-cam-fpv/wire"
)

// radiotapSnapLen is generous enough for a full MTU transport frame plus
// the 802.11 and radiotap headers; grounded on the teacher's pcap.go
// "largeSnapLen" constant.
const radiotapSnapLen = 1 << 18

// PcapInjector writes synthesized radiotap+802.11+TransportFrame records
// to a pcap file: a debugging artifact an operator can open in
// Wireshark, and the replay fixture [PcapCapture] reads back in tests.
// Grounded on the teacher's PCAPDumper (pcap.go), adapted from
// intercepting an existing NIC to being the injector itself.
type PcapInjector struct {
	logger platform.Logger

	mu   sync.Mutex
	w    *pcapgo.Writer
	file *os.File
}

// NewPcapInjector creates a [PcapInjector] writing to filename, truncating
// any existing file.
func NewPcapInjector(filename string, logger platform.Logger) (*PcapInjector, error) {
	if logger == nil {
		logger = platform.Default
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(radiotapSnapLen, layers.LinkTypeIEEE802_11Radio); err != nil {
		f.Close()
		return nil, err
	}
	return &PcapInjector{logger: logger, w: w, file: f}, nil
}

var _ Injector = &PcapInjector{}

// Inject implements [Injector]: it prepends a minimal radiotap header
// carrying rate and writes the resulting record.
func (p *PcapInjector) Inject(payload []byte, rate wire.WifiRate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	record := buildRadiotapFrame(payload, rate)
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(record),
		Length:        len(record),
	}
	if err := p.w.WritePacket(ci, record); err != nil {
		p.logger.Warnf("radio: PcapInjector.Inject: %s", err.Error())
		return err
	}
	return nil
}

// Close implements [Injector].
func (p *PcapInjector) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.file.Close()
}

// radiotapHeaderLen is the size of the fixed minimal radiotap header
// this package emits: version/pad/length/present + one rate byte.
const radiotapHeaderLen = 9

// buildRadiotapFrame prepends a 9-byte radiotap header (present-flags:
// rate only) to an 802.11 frame and appends a zeroed 4-byte FCS
// placeholder, which [dissectRadiotapFrame] strips on read-back.
func buildRadiotapFrame(payload []byte, rate wire.WifiRate) []byte {
	buf := make([]byte, radiotapHeaderLen+len(payload)+4)
	buf[0] = 0 // version
	buf[1] = 0 // pad
	buf[2] = byte(radiotapHeaderLen)
	buf[3] = 0
	buf[4] = 0x04 // present: IEEE80211_RADIOTAP_RATE bit
	buf[5] = 0
	buf[6] = 0
	buf[7] = 0
	buf[8] = byte(rate)
	copy(buf[radiotapHeaderLen:], payload)
	return buf
}

// PcapCapture replays (or tails) a pcap file as a [Capture], dissecting
// each record's radiotap header for RSSI and bad-FCS status. Grounded on
// the teacher's pcapgo usage in pcap.go, generalized from write-only to
// read-back.
type PcapCapture struct {
	logger platform.Logger

	r      *pcapgo.Reader
	file   *os.File
	avail  chan struct{}
	frames chan Frame
	closed chan struct{}

	cancel    context.CancelFunc
	joined    chan struct{}
	closeOnce sync.Once
}

// NewPcapCapture opens filename and starts a background goroutine
// streaming its records as [Frame]s.
func NewPcapCapture(filename string, logger platform.Logger) (*PcapCapture, error) {
	if logger == nil {
		logger = platform.Default
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	const backlog = 256
	pc := &PcapCapture{
		logger: logger,
		r:      r,
		file:   f,
		avail:  make(chan struct{}, backlog),
		frames: make(chan Frame, backlog),
		closed: make(chan struct{}),
		cancel: cancel,
		joined: make(chan struct{}),
	}
	go pc.loop(ctx)
	return pc, nil
}

var _ Capture = &PcapCapture{}

func (pc *PcapCapture) loop(ctx context.Context) {
	defer close(pc.joined)
	defer close(pc.closed)

	for {
		data, _, err := pc.r.ReadPacketData()
		if err == io.EOF {
			return
		}
		if err != nil {
			pc.logger.Warnf("radio: PcapCapture: ReadPacketData: %s", err.Error())
			return
		}

		frame, ok := dissectRadiotapFrame(data)
		if !ok {
			continue
		}
		select {
		case pc.frames <- frame:
			select {
			case pc.avail <- struct{}{}:
			default:
			}
		case <-ctx.Done():
			return
		}
	}
}

// FrameAvailable implements [Capture].
func (pc *PcapCapture) FrameAvailable() <-chan struct{} {
	return pc.avail
}

// ReadFrameNonblocking implements [Capture].
func (pc *PcapCapture) ReadFrameNonblocking() (Frame, error) {
	select {
	case f := <-pc.frames:
		return f, nil
	default:
		return Frame{}, ErrNoFrame
	}
}

// Closed implements [Capture].
func (pc *PcapCapture) Closed() <-chan struct{} {
	return pc.closed
}

// Close implements [Capture].
func (pc *PcapCapture) Close() error {
	pc.closeOnce.Do(func() {
		pc.cancel()
		<-pc.joined
		pc.file.Close()
	})
	return nil
}

// radiotap present-flag bits this package understands; see the radiotap
// field-order spec for the canonical bit assignments.
const (
	radiotapPresentFlags  = 1 << 1
	radiotapPresentDbm    = 1 << 5
	flagBadFCS            = 1 << 6
	minRadiotapHeaderSize = 8
)

// dissectRadiotapFrame parses just enough of a radiotap header to pull
// out the header length, flags, and antenna signal, then returns the
// 802.11 payload (radiotap header stripped, trailing 4-byte FCS
// stripped) as a [Frame].
func dissectRadiotapFrame(data []byte) (Frame, bool) {
	if len(data) < minRadiotapHeaderSize {
		return Frame{}, false
	}
	headerLen := int(data[2]) | int(data[3])<<8
	if headerLen <= 0 || headerLen > len(data) {
		return Frame{}, false
	}
	present := uint32(data[4]) | uint32(data[5])<<8 | uint32(data[6])<<16 | uint32(data[7])<<24

	var rssi int8
	var badFCS bool
	cursor := minRadiotapHeaderSize
	if present&radiotapPresentFlags != 0 && cursor < headerLen {
		flags := data[cursor]
		badFCS = flags&flagBadFCS != 0
		cursor++
		if present&radiotapPresentDbm != 0 && cursor < headerLen {
			rssi = int8(data[cursor])
		}
	}

	body := data[headerLen:]
	if len(body) < 4 {
		return Frame{}, false
	}
	body = body[:len(body)-4] // strip trailing FCS

	return Frame{Payload: body, RSSI: rssi, BadFCS: badFCS}, true
}
