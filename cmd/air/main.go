// Command air runs the camera/air side of the link: it packetizes a
// replayed JPEG source through the FEC encoder and injects it as
// 802.11 frames, while dispatching ground-to-air control frames read
// back from a capture file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/apex/log"

	"github.com/jeanlemotan/esp32-cam-fpv/airrx"
	"github.com/jeanlemotan/esp32-cam-fpv/airtx"
	"github.com/jeanlemotan/esp32-cam-fpv/camera"
	"github.com/jeanlemotan/esp32-cam-fpv/dvr"
	"github.com/jeanlemotan/esp32-cam-fpv/fec"
	"github.com/jeanlemotan/esp32-cam-fpv/internal/must"
	"github.com/jeanlemotan/esp32-cam-fpv/platform"
	"github.com/jeanlemotan/esp32-cam-fpv/radio"
	"github.com/jeanlemotan/esp32-cam-fpv/stats"
	"github.com/jeanlemotan/esp32-cam-fpv/wire"
)

func main() {
	cameraFile := flag.String("camera-file", "", "JPEG file replayed as the camera source")
	chunkSize := flag.Int("chunk-size", 512, "simulated DMA chunk size")
	loop := flag.Bool("loop", true, "replay the camera file indefinitely")
	injectPcap := flag.String("inject-pcap", "air-tx.pcap", "pcap file video frames are injected into")
	capturePcap := flag.String("capture-pcap", "", "pcap file of ground-to-air frames to dispatch (optional)")
	dvrDir := flag.String("dvr-dir", "", "directory DVR segments are written to (disabled if empty)")
	fecK := flag.Uint("fec-k", 2, "FEC data shards per block")
	fecN := flag.Uint("fec-n", 6, "FEC total shards per block (data+parity)")
	fecMTU := flag.Int("fec-mtu", int(wire.Air2GroundMTU), "FEC transport frame MTU")
	rate := flag.Uint("rate", uint(wire.RateG24MOFDM), "initial Wi-Fi PHY rate (WifiRate enum value)")
	statsInterval := flag.Duration("stats-interval", time.Second, "counter publish interval")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if *cameraFile == "" {
		log.Fatal("air: -camera-file is required")
	}
	jpeg, err := os.ReadFile(*cameraFile)
	if err != nil {
		log.WithError(err).Fatal("air: reading camera file")
	}

	counters := &stats.Counters{}
	sup := stats.NewSupervisor(counters, *statsInterval, platform.Default)
	go sup.Run()
	defer sup.Stop()

	injector := must.Must1(radio.NewPcapInjector(*injectPcap, platform.Default))
	defer injector.Close()

	enc := must.Must1(fec.NewEncoder(fec.Descriptor{K: uint8(*fecK), N: uint8(*fecN), MTU: *fecMTU}, platform.Default))
	defer enc.Close()

	radioCtl := &loggingRadioController{}
	radioCtl.rate.Store(uint32(wire.ClampWifiRate(wire.WifiRate(*rate))))

	enc.SetOnEncoded(func(frame []byte) {
		full := radio.BuildFrame(wire.AirToGround, frame)
		rate := wire.WifiRate(radioCtl.rate.Load())
		if err := injector.Inject(full, rate); err != nil {
			counters.RadioInjectErrors.Add(1)
			log.WithError(err).Warn("air: inject")
			return
		}
		counters.BytesSent.Add(uint64(len(full)))
	})

	var dvrSink airtx.DVRSink
	var recorder *dvr.Recorder
	if *dvrDir != "" {
		if err := os.MkdirAll(*dvrDir, 0o755); err != nil {
			log.WithError(err).Fatal("air: creating dvr dir")
		}
		recorder = dvr.NewRecorder(&dvr.OSFileSink{Dir: *dvrDir}, platform.Default)
		defer recorder.Close()
		dvrSink = recorder
	} else {
		dvrSink = noopDVR{}
	}

	source := &camera.Simulator{Frame: jpeg, ChunkSize: *chunkSize, Stride: *chunkSize, Loop: *loop}
	pipeline := airtx.NewPipeline(source, enc, dvrSink, platform.Default)

	cameraCtl := &loggingCameraController{}
	dvrCtl := dvrControllerAdapter{recorder: recorder}

	dispatcher := airrx.NewDispatcher(radioCtl, cameraCtl, enc, dvrCtl, pipeline, platform.Default)

	if *capturePcap != "" {
		cmdDecoder := must.Must1(fec.NewDecoder(fec.Descriptor{K: 2, N: 6, MTU: int(wire.Ground2AirMaxSize - 8)}, platform.Default))
		cmdDecoder.SetOnDecoded(func(d fec.Decoded) {
			if err := dispatcher.Handle(d.Payload[:d.Size]); err != nil {
				counters.PacketsDroppedMalformed.Add(1)
				log.WithError(err).Warn("air: dispatcher.Handle")
			}
		})

		cap := must.Must1(radio.NewPcapCapture(*capturePcap, platform.Default))
		defer cap.Close()
		go runCaptureLoop(ctx, cap, cmdDecoder, counters)
	}

	if err := pipeline.Run(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("air: pipeline exited")
	}
}

// runCaptureLoop reads frames from cap until ctx is done or the capture
// source closes, admitting ground-to-air transport frames into decoder
// (which in turn hands reassembled config payloads to the dispatcher).
func runCaptureLoop(ctx context.Context, cap radio.Capture, decoder *fec.Decoder, counters *stats.Counters) {
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
			if frame.BadFCS || len(frame.Payload) < wire.IEEE80211HeaderSize {
				counters.PacketsDroppedMalformed.Add(1)
				continue
			}
			if !wire.MatchDirection(frame.Payload, wire.GroundToAir) {
				continue
			}
			counters.BytesReceived.Add(uint64(len(frame.Payload)))
			decoder.Admit(frame.Payload[wire.IEEE80211HeaderSize:])
		}
	}
}

type noopDVR struct{}

func (noopDVR) Push(chunk []byte) bool { return true }

// dvrControllerAdapter satisfies [airrx.DVRController] even when DVR
// recording is disabled (recorder == nil).
type dvrControllerAdapter struct {
	recorder *dvr.Recorder
}

func (d dvrControllerAdapter) SetRecording(on bool) {
	if d.recorder != nil {
		d.recorder.SetRecording(on)
	}
}

// loggingRadioController has no real host radio to reprogram in this
// simulation (frames are written to a pcap file, not transmitted by an
// actual Wi-Fi NIC): it holds the rate the injection closure reads on
// every frame, so a config-applied rate change actually takes effect,
// and logs the change for visibility.
type loggingRadioController struct {
	rate atomic.Uint32 // wire.WifiRate
}

func (l *loggingRadioController) SetRate(rate wire.WifiRate) error {
	rate = wire.ClampWifiRate(rate)
	l.rate.Store(uint32(rate))
	log.Infof("air: wifi rate set to %s", rate)
	return nil
}

func (l *loggingRadioController) SetPower(dbm int8) error {
	log.Infof("air: wifi power set to %ddBm", dbm)
	return nil
}

// loggingCameraController has no real image sensor to reprogram; it
// logs the parameters that would have been applied.
type loggingCameraController struct{}

func (loggingCameraController) Configure(c wire.Camera) error {
	log.Infof("air: camera reconfigured: resolution=%d quality=%d fps=%d", c.Resolution, c.Quality, c.FPSLimit)
	return nil
}
