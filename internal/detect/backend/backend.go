// Package backend enumerates inference backends and selects the best one
// for a platform and a required capability set. A backend is a
// tagged-variant implementing the Detector capability (Detect, Describe,
// Close); the registry holds only that capability, never the concrete
// type, so new backends are added purely by registering a factory keyed
// by name — no class hierarchy.
package backend

import (
	"errors"

	"github.com/dragonx/sentinel/internal/detect/l1source"
)

// ErrNoBackend is returned by Select when no registered backend satisfies
// the request and no generic-cpu fallback is registered either.
var ErrNoBackend = errors.New("backend: no backend satisfies required capabilities")

// PlatformTag identifies the host platform a registry is selecting for.
type PlatformTag string

const (
	PlatformGenericCPU    PlatformTag = "generic-cpu"
	PlatformAppleSilicon  PlatformTag = "apple-silicon"
	PlatformNvidiaCUDA    PlatformTag = "nvidia-cuda"
	PlatformSnapdragonNPU PlatformTag = "snapdragon-npu"
	PlatformARM64Linux    PlatformTag = "arm64-linux"
	PlatformWindowsARM64  PlatformTag = "windows-arm64"
)

// LatencyClass ranks a backend's throughput/latency tradeoff.
type LatencyClass int

const (
	LatencyRealtime LatencyClass = iota
	LatencyBatch
)

// Capabilities declares what a backend can do. AvailableBackends and
// Select match on this struct.
type Capabilities struct {
	SupportsPose bool
	SupportsFace bool
	SupportsHand bool
	SupportsFP16 bool
	SupportsInt8 bool
	Latency      LatencyClass
}

// satisfies reports whether c is a superset of required.
func (c Capabilities) satisfies(required Capabilities) bool {
	if required.SupportsPose && !c.SupportsPose {
		return false
	}
	if required.SupportsFace && !c.SupportsFace {
		return false
	}
	if required.SupportsHand && !c.SupportsHand {
		return false
	}
	if required.SupportsFP16 && !c.SupportsFP16 {
		return false
	}
	if required.SupportsInt8 && !c.SupportsInt8 {
		return false
	}
	return true
}

// DetectorKind names the landmark topology a Detect call asks for.
type DetectorKind string

const (
	KindPose DetectorKind = "pose"
	KindFace DetectorKind = "face"
	KindHand DetectorKind = "hand"
)

// LandmarkCount returns the fixed vector length for kind, per spec's
// detector families (pose 33, face mesh 468, hand 21).
func (k DetectorKind) LandmarkCount() int {
	switch k {
	case KindPose:
		return 33
	case KindFace:
		return 468
	case KindHand:
		return 21
	default:
		return 0
	}
}

// Landmark is one keypoint at absolute image-pixel coordinates.
type Landmark struct {
	X, Y       float32
	Z          float32
	HasZ       bool
	Visibility float32
}

// DetectedSubject is one subject's output within a DetectionResult.
type DetectedSubject struct {
	BoundingBox [4]float32 // x_min, y_min, x_max, y_max in pixels
	Landmarks   []Landmark
	Confidence  float32
}

// DetectionResult is the output of one Detect call. Normalized reports
// whether Landmarks are in [0,1] relative coordinates (true) or already in
// absolute image pixels (false); callers convert accordingly rather than
// guessing from magnitude, since a legitimate absolute coordinate can also
// fall within [0,1] for a small frame.
type DetectionResult struct {
	Subjects   []DetectedSubject
	Kind       DetectorKind
	MethodTag  string
	Normalized bool
}

// Detector is the capability every backend implements. The registry and
// the higher-level l3detector package depend only on this interface.
type Detector interface {
	Name() string
	Describe() Capabilities
	Detect(frame *l1source.Frame, kind DetectorKind) (DetectionResult, error)
	Close() error
}

// Factory constructs a Detector instance. Registered keyed by backend name.
type Factory func() (Detector, error)

// Registry enumerates registered backend factories and selects among them.
type Registry struct {
	platform PlatformTag
	priority []string // fixed tie-break order, most to least preferred
	entries  map[string]Factory
}

// NewRegistry builds a Registry for platform with the given backend
// priority order (spec default: platform-native-npu, gpu, optimized-cpu,
// generic-cpu).
func NewRegistry(platform PlatformTag, priority []string) *Registry {
	return &Registry{
		platform: platform,
		priority: priority,
		entries:  make(map[string]Factory),
	}
}

// Register adds a backend factory under name. Re-registering a name
// replaces its factory.
func (r *Registry) Register(name string, f Factory) {
	r.entries[name] = f
}

// DetectPlatform returns the platform tag this registry was constructed for.
func (r *Registry) DetectPlatform() PlatformTag {
	return r.platform
}

// AvailableBackends constructs and returns every registered backend,
// in priority order, for informational/listing purposes.
func (r *Registry) AvailableBackends() ([]Detector, error) {
	out := make([]Detector, 0, len(r.entries))
	for _, name := range r.orderedNames() {
		d, err := r.entries[name]()
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Select returns the best backend satisfying required, per the priority
// list; ties among supersets are broken by lowest declared latency class,
// then by priority order. Falls back to "generic-cpu" if nothing else
// satisfies; returns ErrNoBackend if even that is unavailable.
func (r *Registry) Select(required Capabilities) (Detector, error) {
	return r.selectExcluding(required, "")
}

// SelectFallback behaves like Select but never returns the backend named
// exclude, even if it would otherwise be the best match. Used by
// l3detector to step down the priority list on a zero-detection downgrade
// rather than re-selecting the backend that is currently failing.
func (r *Registry) SelectFallback(required Capabilities, exclude string) (Detector, error) {
	return r.selectExcluding(required, exclude)
}

func (r *Registry) selectExcluding(required Capabilities, exclude string) (Detector, error) {
	var best Detector
	var bestCaps Capabilities
	haveBest := false

	for _, name := range r.orderedNames() {
		if name == exclude {
			continue
		}
		d, err := r.entries[name]()
		if err != nil {
			continue
		}
		caps := d.Describe()
		if !caps.satisfies(required) {
			continue
		}
		if !haveBest || caps.Latency < bestCaps.Latency {
			best, bestCaps, haveBest = d, caps, true
		}
	}
	if haveBest {
		return best, nil
	}

	if exclude != "generic-cpu" {
		if f, ok := r.entries["generic-cpu"]; ok {
			d, err := f()
			if err == nil {
				return d, nil
			}
		}
	}
	return nil, ErrNoBackend
}

// orderedNames returns registered backend names following the configured
// priority list, with any unlisted names appended afterward.
func (r *Registry) orderedNames() []string {
	seen := make(map[string]bool, len(r.entries))
	ordered := make([]string, 0, len(r.entries))
	for _, name := range r.priority {
		if _, ok := r.entries[name]; ok && !seen[name] {
			ordered = append(ordered, name)
			seen[name] = true
		}
	}
	for name := range r.entries {
		if !seen[name] {
			ordered = append(ordered, name)
			seen[name] = true
		}
	}
	return ordered
}
