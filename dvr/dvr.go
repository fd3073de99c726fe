// Package dvr implements the DVR sink: a three-stage pipeline
// (cb -> ring[RAM] -> ring[bulk] -> file writes in fixed blocks) that
// absorbs SD-card latency spikes and rolls session/segment files.
package dvr

import (
	"fmt"
	"time"

	"github.com/jeanlemotan/esp32-cam-fpv/platform"
	"github.com/jeanlemotan/esp32-cam-fpv/ring"
)

// writerPollInterval is how often the writer stage wakes to check for
// new bulk-ring data when idle, matching the sleep-wait discipline of
// the original firmware's SD writer task rather than busy-polling.
const writerPollInterval = 20 * time.Millisecond

// FileSink is the Go form of "SD card filesystem writes": a byte-stream
// sink with variable throughput. [OSFileSink] backs it with os.File; an
// in-memory fake backs unit tests.
type FileSink interface {
	// Create opens a new segment file for writing, replacing any
	// previously open one.
	Create(name string) error

	// Exists reports whether a segment file with this name already
	// exists (used to probe for the next free session number).
	Exists(name string) bool

	// Write appends p to the currently open file.
	Write(p []byte) (int, error)

	// Size returns the number of bytes written to the currently open
	// file so far.
	Size() int64

	// Close closes the currently open file.
	Close() error
}

const (
	// ramRingSize is the small, fast first-stage ring (10 KiB).
	ramRingSize = 10 * 1024

	// bulkRingSize is the larger second-stage ring (3 MiB) that absorbs
	// SD-card write latency spikes.
	bulkRingSize = 3 * 1024 * 1024

	// writeBlockSize is the fixed block size the writer stage uses.
	writeBlockSize = 8 * 1024

	// segmentRollSize rolls to a new segment file once exceeded.
	segmentRollSize = 500 * 1024 * 1024
)

// Recorder is the DVR sink: Push feeds camera bytes in; a background
// goroutine drains them through the RAM ring, the bulk ring, and into
// segment files, rolling to a new segment when segmentRollSize is
// exceeded and to a new session when recording restarts.
type Recorder struct {
	logger platform.Logger
	sink   FileSink

	ramRing  *ring.ByteRing
	bulkRing *ring.ByteRing

	pump    chan struct{}
	done    chan struct{}
	stop    chan struct{}
	recording bool

	sessionID    int
	segmentID    int
	haveSession  bool
	openSegment  int // segmentID of the file currently open via sink, or -1
}

// NewRecorder constructs a [Recorder] writing through sink.
func NewRecorder(sink FileSink, logger platform.Logger) *Recorder {
	if logger == nil {
		logger = platform.Default
	}
	r := &Recorder{
		logger:   logger,
		sink:     sink,
		ramRing:  ring.NewByteRing(ramRingSize),
		bulkRing: ring.NewByteRing(bulkRingSize),
		pump:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		stop:        make(chan struct{}),
		openSegment: -1,
	}
	go r.bulkPump()
	go r.writer()
	return r
}

// Push accepts one chunk of raw bytes from the air-tx pipeline's DVR
// tap. It is non-blocking: on RAM-ring exhaustion the chunk is dropped
// and Push returns false.
func (r *Recorder) Push(chunk []byte) bool {
	if !r.recording {
		return true
	}
	if !r.ramRing.Write(chunk) {
		return false
	}
	r.kick()
	return true
}

func (r *Recorder) kick() {
	select {
	case r.pump <- struct{}{}:
	default:
	}
}

// SetRecording toggles recording. Turning it on starts a new session
// (advancing past any existing session%03d_segment000.mjpeg files); turning it off
// ends the current one after in-flight writes complete.
func (r *Recorder) SetRecording(on bool) {
	if on && !r.recording {
		r.sessionID = r.nextFreeSession()
		r.segmentID = 0
		r.haveSession = true
	}
	if !on && r.recording {
		r.sink.Close()
		r.openSegment = -1
		r.haveSession = false
	}
	r.recording = on
}

// nextFreeSession probes session%03d_segment000.mjpeg for the first
// identifier that does not already exist.
func (r *Recorder) nextFreeSession() int {
	for id := 0; ; id++ {
		if !r.sink.Exists(segmentName(id, 0)) {
			return id
		}
	}
}

func segmentName(session, segment int) string {
	return fmt.Sprintf("session%03d_segment%03d.mjpeg", session, segment)
}

// bulkPump drains the RAM ring into the bulk ring whenever Push kicks it.
func (r *Recorder) bulkPump() {
	buf := make([]byte, writeBlockSize)
	for {
		select {
		case <-r.stop:
			return
		case <-r.pump:
			for {
				n := r.ramRing.PeekContiguous(uint32(len(buf)))
				if len(n) == 0 {
					break
				}
				if !r.bulkRing.Write(n) {
					break // bulk ring full; back-pressure until writer drains it
				}
				r.ramRing.Advance(uint32(len(n)))
			}
		}
	}
}

// writer drains the bulk ring into writes of up to writeBlockSize to the
// current segment file, rolling segments by size. On a write error it
// closes the file and continues in the next segment of the same
// session; there is no mount step.
func (r *Recorder) writer() {
	defer close(r.done)
	buf := make([]byte, writeBlockSize)
	tckr := time.NewTicker(writerPollInterval)
	defer tckr.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-tckr.C:
			r.drainOnce(buf)
		}
	}
}

// drainOnce writes every currently-available full-or-partial block from
// the bulk ring until it runs dry.
func (r *Recorder) drainOnce(buf []byte) {
	for r.haveSession {
		chunk := r.bulkRing.PeekContiguous(uint32(len(buf)))
		if len(chunk) == 0 {
			return
		}
		if err := r.ensureOpen(); err != nil {
			r.logger.Warnf("dvr: ensureOpen: %s", err.Error())
			return
		}
		if _, err := r.sink.Write(chunk); err != nil {
			r.logger.Warnf("dvr: write failed, closing and retrying on next segment: %s", err.Error())
			r.sink.Close()
			r.openSegment = -1
			r.segmentID++
			return
		}
		r.bulkRing.Advance(uint32(len(chunk)))

		if r.sink.Size() >= segmentRollSize {
			r.sink.Close()
			r.openSegment = -1
			r.segmentID++
		}
	}
}

// ensureOpen opens the current segment file if it is not already the
// one held open by sink.
func (r *Recorder) ensureOpen() error {
	if r.openSegment == r.segmentID {
		return nil
	}
	if err := r.sink.Create(segmentName(r.sessionID, r.segmentID)); err != nil {
		return err
	}
	r.openSegment = r.segmentID
	return nil
}

// Close stops the background goroutines and closes any open segment.
func (r *Recorder) Close() {
	close(r.stop)
	<-r.done
	r.sink.Close()
}
