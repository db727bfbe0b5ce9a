package backend

import (
	"testing"

	"github.com/dragonx/sentinel/internal/detect/l1source"
)

type fakeBackend struct {
	name string
	caps Capabilities
}

func (f *fakeBackend) Name() string           { return f.name }
func (f *fakeBackend) Describe() Capabilities { return f.caps }
func (f *fakeBackend) Close() error           { return nil }
func (f *fakeBackend) Detect(_ *l1source.Frame, _ DetectorKind) (DetectionResult, error) {
	return DetectionResult{MethodTag: f.name}, nil
}

func TestSelectPrefersLowerLatencyAmongSupersets(t *testing.T) {
	r := NewRegistry(PlatformSnapdragonNPU, []string{"platform-native-npu", "gpu", "optimized-cpu", "generic-cpu"})
	r.Register("gpu", func() (Detector, error) {
		return &fakeBackend{name: "gpu", caps: Capabilities{SupportsPose: true, Latency: LatencyBatch}}, nil
	})
	r.Register("platform-native-npu", func() (Detector, error) {
		return &fakeBackend{name: "platform-native-npu", caps: Capabilities{SupportsPose: true, Latency: LatencyRealtime}}, nil
	})

	d, err := r.Select(Capabilities{SupportsPose: true})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Name() != "platform-native-npu" {
		t.Fatalf("Select() = %s, want platform-native-npu (lower latency class)", d.Name())
	}
}

func TestSelectFallsBackToGenericCPU(t *testing.T) {
	r := NewRegistry(PlatformGenericCPU, []string{"platform-native-npu", "generic-cpu"})
	r.Register("platform-native-npu", func() (Detector, error) {
		return &fakeBackend{name: "platform-native-npu", caps: Capabilities{SupportsFace: true}}, nil
	})
	r.Register("generic-cpu", func() (Detector, error) {
		return &fakeBackend{name: "generic-cpu", caps: Capabilities{SupportsPose: true, SupportsFace: true, SupportsHand: true}}, nil
	})

	d, err := r.Select(Capabilities{SupportsPose: true})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Name() != "generic-cpu" {
		t.Fatalf("Select() = %s, want generic-cpu fallback", d.Name())
	}
}

func TestSelectReturnsErrNoBackend(t *testing.T) {
	r := NewRegistry(PlatformGenericCPU, nil)
	if _, err := r.Select(Capabilities{SupportsPose: true}); err != ErrNoBackend {
		t.Fatalf("Select() err = %v, want ErrNoBackend", err)
	}
}
