// Package l1source yields timestamped Frames and AudioChunks from a device
// or a replayed capture file. It owns no detection logic: callers pull with
// Next until the source reports io.EOF or a retryable device-loss error.
package l1source

import (
	"errors"
	"time"
)

// ErrDeviceLost is returned by Next when the underlying device disappears
// mid-stream (USB unplug, driver reset). It is retryable: callers may
// reopen the source.
var ErrDeviceLost = errors.New("l1source: device lost")

// PixelLayout names the channel order of a Frame's image bytes.
type PixelLayout string

const (
	LayoutRGB PixelLayout = "rgb"
	LayoutBGR PixelLayout = "bgr"
)

// Frame is one timestamped, immutable video frame. Owned by the source,
// borrowed by detectors; nothing downstream retains a Frame past one
// pipeline traversal.
type Frame struct {
	Timestamp time.Time // monotonic capture time
	Sequence  uint64    // strictly increasing per source
	Image     []byte    // HWC, 8-bit, Layout channel order
	Width     int
	Height    int
	Layout    PixelLayout
}

// AudioChunk is one timestamped, immutable block of mono audio.
type AudioChunk struct {
	Timestamp  time.Time
	SampleRate int
	Samples    []float32 // mono, values in [-1.0, 1.0]
}

// Config configures a Source. CameraIndex and FilePath are mutually
// exclusive: a non-empty FilePath selects file/replay sourcing.
type Config struct {
	CameraIndex    int
	FilePath       string
	TargetFrameFPS float64
	TargetWidth    int
	TargetHeight   int
	AudioEnabled   bool
	AudioSampleHz  int
}

// Source yields Frames and AudioChunks in capture order. Next blocks until
// data is available; no internal queue buffers ahead of the caller.
// Implementations guarantee monotonic Frame.Timestamp and strictly
// increasing Frame.Sequence.
type Source interface {
	// Next returns exactly one of frame or chunk non-nil, or an error.
	// io.EOF signals a clean end of stream (e.g. replay file exhausted).
	// ErrDeviceLost signals a retryable device failure.
	Next() (*Frame, *AudioChunk, error)
	Close() error
}
