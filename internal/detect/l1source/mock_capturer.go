package l1source

import (
	"io"
	"sync"
)

// MockCapturer implements Capturer for tests. It replays a fixed list of
// frames/audio chunks and then reports io.EOF.
type MockCapturer struct {
	mu sync.Mutex

	Frames      [][3]int // width, height, unused; paired with FrameImages by index
	FrameImages [][]byte
	frameIdx    int

	AudioSamples [][]float32
	AudioRate    int
	audioIdx     int

	FrameErr error
	Closed   bool
}

// NewMockCapturer builds a MockCapturer that will yield the given images at
// the given width/height before reporting io.EOF.
func NewMockCapturer(images [][]byte, width, height int) *MockCapturer {
	frames := make([][3]int, len(images))
	for i := range frames {
		frames[i] = [3]int{width, height, 0}
	}
	return &MockCapturer{Frames: frames, FrameImages: images}
}

func (m *MockCapturer) ReadFrame() ([]byte, int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FrameErr != nil {
		return nil, 0, 0, m.FrameErr
	}
	if m.frameIdx >= len(m.FrameImages) {
		return nil, 0, 0, io.EOF
	}
	img := m.FrameImages[m.frameIdx]
	dims := m.Frames[m.frameIdx]
	m.frameIdx++
	return img, dims[0], dims[1], nil
}

func (m *MockCapturer) ReadAudio() ([]float32, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.audioIdx >= len(m.AudioSamples) {
		return nil, 0, io.EOF
	}
	s := m.AudioSamples[m.audioIdx]
	m.audioIdx++
	return s, m.AudioRate, nil
}

func (m *MockCapturer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}
