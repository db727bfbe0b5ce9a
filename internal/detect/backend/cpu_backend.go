package backend

import "github.com/dragonx/sentinel/internal/detect/l1source"

// CPUBackend is the universal fallback: a pure software inference path
// that is always registered as "generic-cpu" so Select never returns
// ErrNoBackend on a platform with no accelerator at all. Real deployments
// wire infer through a model runtime; this struct carries only the
// capability surface and a pluggable inference function so tests can
// substitute a synthetic detector.
type CPUBackend struct {
	infer func(frame *l1source.Frame, kind DetectorKind) (DetectionResult, error)
}

// NewCPUBackend builds a generic-cpu backend around infer. Passing a nil
// infer yields a backend that always returns zero subjects (useful for
// registry/fallback tests that don't exercise inference itself).
func NewCPUBackend(infer func(frame *l1source.Frame, kind DetectorKind) (DetectionResult, error)) *CPUBackend {
	return &CPUBackend{infer: infer}
}

func (b *CPUBackend) Name() string { return "generic-cpu" }

func (b *CPUBackend) Describe() Capabilities {
	return Capabilities{
		SupportsPose: true,
		SupportsFace: true,
		SupportsHand: true,
		SupportsFP16: false,
		SupportsInt8: true,
		Latency:      LatencyBatch,
	}
}

func (b *CPUBackend) Detect(frame *l1source.Frame, kind DetectorKind) (DetectionResult, error) {
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

func (b *CPUBackend) Close() error { return nil }

var _ Detector = (*CPUBackend)(nil)
