package backend

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/dragonx/sentinel/internal/detect/l1source"
)

// NPUSerialBackend is a platform-native NPU accelerator whose control
// plane — capability negotiation and health telemetry — runs over a UART
// side channel distinct from the inference path itself, the way several
// Snapdragon-class dev boards expose a serial debug/control port
// alongside their accelerator API. Detect is answered by infer (the
// vendor SDK binding); the serial link only gates whether the backend
// reports itself ready.
type NPUSerialBackend struct {
	port   serial.Port
	reader *bufio.Scanner
	caps   Capabilities
	infer  func(frame *l1source.Frame, kind DetectorKind) (DetectionResult, error)
}

// DefaultNPUSerialMode is the control-channel configuration used unless a
// caller overrides it.
func DefaultNPUSerialMode() *serial.Mode {
	return &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// OpenNPUSerialBackend opens path, negotiates capabilities over the
// control channel, and wraps infer as the Detect implementation.
func OpenNPUSerialBackend(path string, mode *serial.Mode, infer func(frame *l1source.Frame, kind DetectorKind) (DetectionResult, error)) (*NPUSerialBackend, error) {
	if mode == nil {
		mode = DefaultNPUSerialMode()
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("backend: open npu serial port %s: %w", path, err)
	}

	b := &NPUSerialBackend{
		port:   port,
		reader: bufio.NewScanner(port),
		infer:  infer,
	}
	caps, err := b.negotiateCapabilities()
	if err != nil {
		port.Close()
		return nil, err
	}
	b.caps = caps
	return b, nil
}

func (b *NPUSerialBackend) negotiateCapabilities() (Capabilities, error) {
	if _, err := b.port.Write([]byte("CAPS\n")); err != nil {
		return Capabilities{}, fmt.Errorf("backend: npu caps query: %w", err)
	}
	if !b.reader.Scan() {
		return Capabilities{}, fmt.Errorf("backend: npu caps query: %w", b.reader.Err())
	}
	return parseCapsLine(b.reader.Text()), nil
}

// parseCapsLine parses a "pose,face,hand,fp16,int8 realtime" response into
// Capabilities. Unknown tokens are ignored; an empty line yields the zero
// Capabilities.
func parseCapsLine(line string) Capabilities {
	var caps Capabilities
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return caps
	}
	for _, tok := range strings.Split(fields[0], ",") {
		switch tok {
		case "pose":
			caps.SupportsPose = true
		case "face":
			caps.SupportsFace = true
		case "hand":
			caps.SupportsHand = true
		case "fp16":
			caps.SupportsFP16 = true
		case "int8":
			caps.SupportsInt8 = true
		}
	}
	if len(fields) > 1 && fields[1] == "batch" {
		caps.Latency = LatencyBatch
	} else {
		caps.Latency = LatencyRealtime
	}
	return caps
}

// Ping sends a health-check over the control channel and reports whether
// the device answered within timeout.
func (b *NPUSerialBackend) Ping(timeout time.Duration) error {
	if setter, ok := b.port.(interface{ SetReadTimeout(time.Duration) error }); ok {
		_ = setter.SetReadTimeout(timeout)
	}
	if _, err := b.port.Write([]byte("PING\n")); err != nil {
		return fmt.Errorf("backend: npu ping write: %w", err)
	}
	if !b.reader.Scan() {
		return fmt.Errorf("backend: npu ping: no response")
	}
	if strings.TrimSpace(b.reader.Text()) != "PONG" {
		return fmt.Errorf("backend: npu ping: unexpected response %q", b.reader.Text())
	}
	return nil
}

func (b *NPUSerialBackend) Name() string { return "platform-native-npu" }

func (b *NPUSerialBackend) Describe() Capabilities { return b.caps }

func (b *NPUSerialBackend) Detect(frame *l1source.Frame, kind DetectorKind) (DetectionResult, error) {
	if b.infer == nil {
		return DetectionResult{Kind: kind, MethodTag: b.Name()}, nil
	}
	res, err := b.infer(frame, kind)
	if err != nil {
		return DetectionResult{}, err
	}
	res.Kind = kind
	res.MethodTag = b.Name()
	return res, nil
}

func (b *NPUSerialBackend) Close() error { return b.port.Close() }

var _ Detector = (*NPUSerialBackend)(nil)
