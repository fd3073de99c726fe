// Package stats implements the error/counter surface from the error
// handling design: every counted condition is an atomic field, sampled
// once per second by [Supervisor] and logged as a structured apex/log
// entry, grounded on the teacher's use of `log.Fields` throughout
// link.go and dnsserver.go.
package stats

import (
	"sync/atomic"
	"time"

	apexlog "github.com/apex/log"

	"github.com/jeanlemotan/esp32-cam-fpv/platform"
)

// Counters is the full set of atomically-updated counters a running
// session publishes. All fields are safe for concurrent use from any
// goroutine.
type Counters struct {
	BytesSent     atomic.Uint64
	BytesReceived atomic.Uint64

	FramesEncoded atomic.Uint64
	FramesDecoded atomic.Uint64

	FECRecoveries    atomic.Uint64
	FECUnrecoverable atomic.Uint64

	PacketsDroppedMalformed atomic.Uint64
	PacketsDroppedPool      atomic.Uint64
	PacketsDroppedStale     atomic.Uint64

	VideoFramesDelivered atomic.Uint64

	DVRBytesWritten atomic.Uint64
	DVRDrops        atomic.Uint64

	RadioInjectErrors atomic.Uint64

	// PingRTT is the most recently measured ping/pong half-round-trip.
	PingRTT atomic.Int64 // nanoseconds

	// RSSIMax is the maximum radiotap antenna signal observed in the
	// current publish interval; Supervisor resets it after each tick.
	RSSIMax atomic.Int32
}

// Snapshot is a point-in-time copy of [Counters], suitable for logging
// or exposing over an introspection endpoint.
type Snapshot struct {
	BytesSent, BytesReceived                    uint64
	FramesEncoded, FramesDecoded                 uint64
	FECRecoveries, FECUnrecoverable              uint64
	PacketsDroppedMalformed, PacketsDroppedPool  uint64
	PacketsDroppedStale                          uint64
	VideoFramesDelivered                         uint64
	DVRBytesWritten, DVRDrops                    uint64
	RadioInjectErrors                            uint64
	PingRTT                                      time.Duration
	RSSIMax                                      int32
}

// Snapshot reads every counter into a [Snapshot] and resets the
// interval-scoped ones (RSSIMax).
func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		BytesSent:               c.BytesSent.Load(),
		BytesReceived:           c.BytesReceived.Load(),
		FramesEncoded:           c.FramesEncoded.Load(),
		FramesDecoded:           c.FramesDecoded.Load(),
		FECRecoveries:           c.FECRecoveries.Load(),
		FECUnrecoverable:        c.FECUnrecoverable.Load(),
		PacketsDroppedMalformed: c.PacketsDroppedMalformed.Load(),
		PacketsDroppedPool:      c.PacketsDroppedPool.Load(),
		PacketsDroppedStale:     c.PacketsDroppedStale.Load(),
		VideoFramesDelivered:    c.VideoFramesDelivered.Load(),
		DVRBytesWritten:         c.DVRBytesWritten.Load(),
		DVRDrops:                c.DVRDrops.Load(),
		RadioInjectErrors:       c.RadioInjectErrors.Load(),
		PingRTT:                 time.Duration(c.PingRTT.Load()),
		RSSIMax:                 c.RSSIMax.Swap(-128),
	}
	return s
}

// Fields renders s as apex/log structured fields for a single log line.
func (s Snapshot) Fields() apexlog.Fields {
	return apexlog.Fields{
		"bytes_sent":        s.BytesSent,
		"bytes_received":    s.BytesReceived,
		"frames_encoded":    s.FramesEncoded,
		"frames_decoded":    s.FramesDecoded,
		"fec_recoveries":    s.FECRecoveries,
		"fec_unrecoverable": s.FECUnrecoverable,
		"dropped_malformed": s.PacketsDroppedMalformed,
		"dropped_pool":      s.PacketsDroppedPool,
		"dropped_stale":     s.PacketsDroppedStale,
		"video_frames":      s.VideoFramesDelivered,
		"dvr_bytes":         s.DVRBytesWritten,
		"dvr_drops":         s.DVRDrops,
		"radio_errors":      s.RadioInjectErrors,
		"ping_rtt_ms":       float64(s.PingRTT) / float64(time.Millisecond),
		"rssi_max_dbm":      s.RSSIMax,
	}
}

// Supervisor publishes a [Snapshot] once per second as a structured log
// line, grounded on the periodic-ticker pattern in the teacher's
// linkForwardingState.
type Supervisor struct {
	counters *Counters
	logger   platform.Logger
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewSupervisor constructs a [Supervisor] sampling counters once per
// interval (typically one second).
func NewSupervisor(counters *Counters, interval time.Duration, logger platform.Logger) *Supervisor {
	if logger == nil {
		logger = platform.Default
	}
	return &Supervisor{
		counters: counters,
		logger:   logger,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run starts the publish loop; it blocks until Stop is called.
func (s *Supervisor) Run() {
	defer close(s.done)
	tckr := time.NewTicker(s.interval)
	defer tckr.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-tckr.C:
			snap := s.counters.Snapshot()
			apexlog.WithFields(snap.Fields()).Info("stats")
		}
	}
}

// Stop halts the publish loop and waits for it to exit.
func (s *Supervisor) Stop() {
	close(s.stop)
	<-s.done
}
