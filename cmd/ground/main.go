// Command ground runs the ground-station side of the link: it admits
// air-to-ground radio frames into the FEC decoder, reassembles complete
// video frames, records them, and periodically transmits the control
// channel back to the air side.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/apex/log"

	"github.com/jeanlemotan/esp32-cam-fpv/fec"
	"github.com/jeanlemotan/esp32-cam-fpv/groundrx"
	"github.com/jeanlemotan/esp32-cam-fpv/groundtx"
	"github.com/jeanlemotan/esp32-cam-fpv/internal/must"
	"github.com/jeanlemotan/esp32-cam-fpv/platform"
	"github.com/jeanlemotan/esp32-cam-fpv/radio"
	"github.com/jeanlemotan/esp32-cam-fpv/stats"
	"github.com/jeanlemotan/esp32-cam-fpv/wire"
)

func main() {
	capturePcap := flag.String("capture-pcap", "", "pcap file of air-to-ground frames to decode (required)")
	injectPcap := flag.String("inject-pcap", "ground-tx.pcap", "pcap file the control channel is injected into")
	dvrDir := flag.String("dvr-dir", "", "directory received video frames are written to as .jpg files (disabled if empty)")
	fecK := flag.Uint("fec-k", 2, "FEC data shards per block")
	fecN := flag.Uint("fec-n", 6, "FEC total shards per block (data+parity)")
	fecMTU := flag.Int("fec-mtu", int(wire.Air2GroundMTU), "FEC transport frame MTU (air-to-ground)")
	cmdRate := flag.Uint("cmd-rate", uint(wire.RateG24MOFDM), "PHY rate used for the control channel")
	resetAfter := flag.Duration("reset-after", 2*time.Second, "reset block tracking if no frame arrives for this long (0 disables)")
	statsInterval := flag.Duration("stats-interval", time.Second, "counter publish interval")
	flag.Parse()

	if *capturePcap == "" {
		log.Fatal("ground: -capture-pcap is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	counters := &stats.Counters{}
	sup := stats.NewSupervisor(counters, *statsInterval, platform.Default)
	go sup.Run()
	defer sup.Stop()

	decoder := must.Must1(fec.NewDecoder(fec.Descriptor{K: uint8(*fecK), N: uint8(*fecN), MTU: *fecMTU}, platform.Default))
	decoder.ResetAfter = *resetAfter

	ping := &groundrx.PingClock{}
	reassembler := groundrx.NewReassembler(ping, platform.Default)
	decoder.SetOnDecoded(func(d fec.Decoded) {
		counters.FramesDecoded.Add(1)
		if d.Recovered {
			counters.FECRecoveries.Add(1)
		}
		reassembler.Admit(d)
	})

	var writer frameWriter = noopFrameWriter{}
	if *dvrDir != "" {
		if err := os.MkdirAll(*dvrDir, 0o755); err != nil {
			log.WithError(err).Fatal("ground: creating dvr dir")
		}
		writer = dirFrameWriter{dir: *dvrDir}
	}
	reassembler.SetOnFrame(func(frameIndex uint32, data []byte) {
		counters.VideoFramesDelivered.Add(1)
		counters.DVRBytesWritten.Add(uint64(len(data)))
		if err := writer.WriteFrame(frameIndex, data); err != nil {
			counters.DVRDrops.Add(1)
			log.WithError(err).Warn("ground: writing frame")
		}
	})

	admission := groundrx.NewAdmission(decoder)

	cap := must.Must1(radio.NewPcapCapture(*capturePcap, platform.Default))
	defer cap.Close()

	injector := must.Must1(radio.NewPcapInjector(*injectPcap, platform.Default))
	defer injector.Close()

	cmdEncoder := must.Must1(fec.NewEncoder(fec.Descriptor{K: 2, N: 6, MTU: int(wire.Ground2AirMaxSize - 8)}, platform.Default))
	defer cmdEncoder.Close()

	controller := groundtx.NewController(cmdEncoder, injector, ping, platform.Default)
	controller.Rate = wire.ClampWifiRate(wire.WifiRate(*cmdRate))

	go func() {
		tckr := time.NewTicker(*statsInterval)
		defer tckr.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tckr.C:
				if max, ok := admission.RSSIMax(); ok {
					counters.RSSIMax.Store(int32(max))
				}
				if rtt, ok := ping.LastRTT(); ok {
					counters.PingRTT.Store(int64(rtt))
				}
			}
		}
	}()

	go controller.Run(ctx)
	runCaptureLoop(ctx, cap, admission, counters)
}

// runCaptureLoop reads frames from cap until ctx is done or the capture
// source closes, admitting each into admission.
func runCaptureLoop(ctx context.Context, cap radio.Capture, admission *groundrx.Admission, counters *stats.Counters) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-cap.Closed():
			return
		case <-cap.FrameAvailable():
			frame, err := cap.ReadFrameNonblocking()
			if err != nil {
				continue
			}
			counters.BytesReceived.Add(uint64(len(frame.Payload)))
			admission.Admit(frame)
		}
	}
}

// frameWriter persists one reassembled video frame, identified by its
// frame_index.
type frameWriter interface {
	WriteFrame(frameIndex uint32, data []byte) error
}

type noopFrameWriter struct{}

func (noopFrameWriter) WriteFrame(uint32, []byte) error { return nil }

// dirFrameWriter writes each delivered frame as a standalone .jpg file,
// the simplest possible ground-side DVR: unlike [dvr.Recorder]'s rolling
// segment stream (which belongs to the air-side raw chunk tap), the
// ground side already has frame boundaries for free.
type dirFrameWriter struct {
	dir string
}

func (w dirFrameWriter) WriteFrame(frameIndex uint32, data []byte) error {
	name := fmt.Sprintf("frame-%010d.jpg", frameIndex)
	return os.WriteFile(w.dir+string(os.PathSeparator)+name, data, 0o644)
}
