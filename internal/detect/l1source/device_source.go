package l1source

import (
	"io"
	"sync"
	"time"
)

// Capturer is the platform-specific capture backend a DeviceSource drives.
// The core owns no camera-device discovery beyond opening an index (per
// spec's explicit non-goal); a concrete Capturer is supplied by the
// deployment (v4l2, AVFoundation, a vendor SDK) and injected via
// NewDeviceSource.
type Capturer interface {
	// ReadFrame blocks until one frame is available, or returns
	// ErrDeviceLost / io.EOF.
	ReadFrame() (image []byte, width, height int, err error)
	// ReadAudio blocks until one chunk is available, or returns
	// ErrDeviceLost / io.EOF. Never called if audio is disabled.
	ReadAudio() (samples []float32, sampleRate int, err error)
	Close() error
}

// DeviceSource wraps a Capturer with the monotonic-timestamp and
// strictly-increasing-sequence guarantees §4.1 requires, and fans frame
// and audio reads across two goroutines into one ordered channel so a
// single Next() caller sees both without owning capture internals.
type DeviceSource struct {
	cap Capturer
	cfg Config

	mu       sync.Mutex
	sequence uint64
	lastTS   time.Time

	results chan sourceResult
	closeCh chan struct{}
	closeOk sync.Once
}

type sourceResult struct {
	frame *Frame
	chunk *AudioChunk
	err   error
}

// NewDeviceSource starts background goroutines pulling from cap according
// to cfg and returns a Source multiplexing both streams.
func NewDeviceSource(cap Capturer, cfg Config) *DeviceSource {
	s := &DeviceSource{
		cap:     cap,
		cfg:     cfg,
		results: make(chan sourceResult, 1),
		closeCh: make(chan struct{}),
	}
	go s.pumpFrames()
	if cfg.AudioEnabled {
		go s.pumpAudio()
	}
	return s
}

func (s *DeviceSource) pumpFrames() {
	for {
		img, w, h, err := s.cap.ReadFrame()
		if err != nil {
			s.emit(sourceResult{err: err})
			if err == io.EOF {
				return
			}
			continue
		}
		s.mu.Lock()
		now := s.nextTimestamp()
		s.sequence++
		seq := s.sequence
		s.mu.Unlock()

		s.emit(sourceResult{frame: &Frame{
			Timestamp: now,
			Sequence:  seq,
			Image:     img,
			Width:     w,
			Height:    h,
			Layout:    LayoutRGB,
		}})
	}
}

func (s *DeviceSource) pumpAudio() {
	for {
		samples, rate, err := s.cap.ReadAudio()
		if err != nil {
			if err == io.EOF {
				return
			}
			continue
		}
		s.emit(sourceResult{chunk: &AudioChunk{
			Timestamp:  time.Now(),
			SampleRate: rate,
			Samples:    samples,
		}})
	}
}

// nextTimestamp returns a monotonically increasing timestamp; caller holds s.mu.
func (s *DeviceSource) nextTimestamp() time.Time {
	now := time.Now()
	if !s.lastTS.IsZero() && !now.After(s.lastTS) {
		now = s.lastTS.Add(time.Microsecond)
	}
	s.lastTS = now
	return now
}

func (s *DeviceSource) emit(r sourceResult) {
	select {
	case s.results <- r:
	case <-s.closeCh:
	}
}

// Next returns the next available frame or audio chunk.
func (s *DeviceSource) Next() (*Frame, *AudioChunk, error) {
	select {
	case r := <-s.results:
		return r.frame, r.chunk, r.err
	case <-s.closeCh:
		return nil, nil, io.EOF
	}
}

// Close stops the source; in-flight Capturer reads are expected to unblock
// via the Capturer's own Close.
func (s *DeviceSource) Close() error {
	s.closeOk.Do(func() { close(s.closeCh) })
	return s.cap.Close()
}

var _ Source = (*DeviceSource)(nil)
