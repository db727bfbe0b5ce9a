// Package l3detector exposes the single public Detect contract over the
// backend registry, applying the coordinate normalization, visibility
// floor, and backend-downgrade policy spec.md §4.3 assigns to this layer.
// The registry (internal/detect/backend) only knows how to select a
// capability; this package owns what happens across consecutive calls.
package l3detector

import (
	"sync"

	"github.com/dragonx/sentinel/internal/detect/backend"
	"github.com/dragonx/sentinel/internal/detect/l1source"
	"github.com/dragonx/sentinel/internal/platform/logging"
)

// Config tunes the detector's failure-handling policy.
type Config struct {
	VisibilityFloor         float32
	ZeroDetectionDowngradeN int
	ReupgradeSuccessCount   int
	Required                backend.Capabilities
}

// Detector wraps a backend.Registry with the zero-detection downgrade
// policy: if the primary backend returns zero subjects on N consecutive
// frames it downgrades to the next backend in priority order; it does not
// re-upgrade until M consecutive successful (non-zero-subject) detections
// on the fallback.
type Detector struct {
	registry *backend.Registry
	cfg      Config
	log      *logging.Tiers

	mu                sync.Mutex
	current           backend.Detector
	consecutiveZero   int
	consecutiveOnFallback int
	downgraded        bool
}

// New builds a Detector selecting an initial backend from registry per
// cfg.Required.
func New(registry *backend.Registry, cfg Config, log *logging.Tiers) (*Detector, error) {
	if log == nil {
		log = logging.Discard()
	}
	d := &Detector{registry: registry, cfg: cfg, log: log}
	b, err := registry.Select(cfg.Required)
	if err != nil {
		return nil, err
	}
	d.current = b
	return d, nil
}

// Detect runs one inference call against the current backend, applying
// coordinate clamping and the visibility floor, and evaluates the
// downgrade/re-upgrade policy based on the result.
func (d *Detector) Detect(frame *l1source.Frame, kind backend.DetectorKind) (backend.DetectionResult, error) {
	d.mu.Lock()
	current := d.current
	d.mu.Unlock()

	res, err := current.Detect(frame, kind)
	if err != nil {
		return backend.DetectionResult{}, err
	}
	normalize(&res, frame, d.cfg.VisibilityFloor)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.evaluatePolicy(len(res.Subjects))
	return res, nil
}

// evaluatePolicy updates downgrade/re-upgrade state given the subject
// count of the most recent detection. Caller holds d.mu.
func (d *Detector) evaluatePolicy(subjectCount int) {
	if subjectCount == 0 {
		d.consecutiveZero++
		d.consecutiveOnFallback = 0
		if !d.downgraded && d.consecutiveZero >= d.cfg.ZeroDetectionDowngradeN {
			d.downgradeLocked()
		}
		return
	}

	d.consecutiveZero = 0
	if d.downgraded {
		d.consecutiveOnFallback++
		if d.consecutiveOnFallback >= d.cfg.ReupgradeSuccessCount {
			d.reupgradeLocked()
		}
	}
}

func (d *Detector) downgradeLocked() {
	fallback, err := d.registry.SelectFallback(weakenedCapabilities(d.cfg.Required), d.current.Name())
	if err != nil || fallback.Name() == d.current.Name() {
		return
	}
	d.log.Opsf("l3detector: downgrading from %s to %s after %d consecutive zero-detection frames",
		d.current.Name(), fallback.Name(), d.consecutiveZero)
	d.current = fallback
	d.downgraded = true
	d.consecutiveZero = 0
	d.consecutiveOnFallback = 0
}

func (d *Detector) reupgradeLocked() {
	primary, err := d.registry.Select(d.cfg.Required)
	if err != nil || primary.Name() == d.current.Name() {
		return
	}
	d.log.Diagf("l3detector: re-upgrading from %s to %s after %d consecutive successful detections",
		d.current.Name(), primary.Name(), d.consecutiveOnFallback)
	d.current = primary
	d.downgraded = false
	d.consecutiveOnFallback = 0
}

// weakenedCapabilities drops the strictest optional requirements so
// Select can find a lower-tier fallback instead of re-selecting the
// backend currently failing.
func weakenedCapabilities(required backend.Capabilities) backend.Capabilities {
	weak := required
	weak.SupportsFP16 = false
	weak.SupportsInt8 = false
	return weak
}

// normalize clips landmark coordinates to the frame bounds, converts
// normalized [0,1] coordinates to absolute pixels where a backend
// reports them that way, and treats sub-floor visibility as
// present-but-low-confidence rather than dropping the landmark.
func normalize(res *backend.DetectionResult, frame *l1source.Frame, floor float32) {
	w, h := float32(frame.Width), float32(frame.Height)
	for si := range res.Subjects {
		for li := range res.Subjects[si].Landmarks {
			lm := &res.Subjects[si].Landmarks[li]
			if res.Normalized {
				lm.X *= w - 1
				lm.Y *= h - 1
			}
			lm.X = clip(lm.X, 0, w-1)
			lm.Y = clip(lm.Y, 0, h-1)
			if lm.Visibility < floor {
				lm.Visibility = floor
			}
		}
	}
	res.Normalized = false
}

func clip(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
