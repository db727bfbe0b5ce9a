// Package l4risk maintains a per-subject sliding history of PoseSamples
// and derives the fall-risk scores and alert level spec.md §4.4 defines.
// One goroutine owns one subject's ring; cross-subject access only ever
// sees a Snapshot copy.
package l4risk

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/dragonx/sentinel/internal/detect/backend"
)

// MediaPipe BlazePose's fixed 33-point topology; indices used by the
// joint-angle and balance/posture computations below.
const (
	LandmarkLeftShoulder  = 11
	LandmarkRightShoulder = 12
	LandmarkLeftHip       = 23
	LandmarkRightHip      = 24
	LandmarkLeftKnee      = 25
	LandmarkRightKnee     = 26
	LandmarkLeftAnkle     = 27
	LandmarkRightAnkle    = 28
)

// AlertLevel ranks the severity spec.md §3/§4.4 assigns a RiskAssessment.
type AlertLevel string

const (
	AlertNone     AlertLevel = "none"
	AlertLow      AlertLevel = "low"
	AlertMedium   AlertLevel = "medium"
	AlertHigh     AlertLevel = "high"
	AlertCritical AlertLevel = "critical"
)

func (a AlertLevel) rank() int {
	switch a {
	case AlertNone:
		return 0
	case AlertLow:
		return 1
	case AlertMedium:
		return 2
	case AlertHigh:
		return 3
	case AlertCritical:
		return 4
	default:
		return 0
	}
}

// promote returns the next level up, capped at critical.
func (a AlertLevel) promote() AlertLevel {
	switch a {
	case AlertNone, AlertLow:
		return AlertMedium
	case AlertMedium:
		return AlertHigh
	default:
		return AlertCritical
	}
}

// StabilityTrend summarizes recent stability_score movement.
type StabilityTrend string

const (
	TrendImproving StabilityTrend = "improving"
	TrendStable    StabilityTrend = "stable"
	TrendDeclining StabilityTrend = "declining"
)

// PoseSample is one timestamped detection result after joint-angle and
// risk-component derivation. Landmark count matches the detector family
// exactly (invariant 1); FuseSample rejects otherwise.
type PoseSample struct {
	Timestamp        time.Time
	SubjectID        string
	Kind             backend.DetectorKind
	Landmarks        []backend.Landmark
	BoundingBox      [4]float32
	JointAngles      map[string]float64
	BalanceScore     float64
	StabilityScore   float64
	PostureDeviation float64
	ActivityLevel    float64
}

// RiskAssessment is the output of fusing one PoseSample into a subject's
// history.
type RiskAssessment struct {
	SubjectID       string
	Timestamp       time.Time
	FallRiskScore   float64
	AlertLevel      AlertLevel
	StabilityTrend  StabilityTrend
	Recommendations []string
	CauseFall       bool
	CauseAudioHelp  bool
}

// AudioEvent is a keyword spot ("help") fed in from the audio stream.
type AudioEvent struct {
	Timestamp time.Time
	Keyword   string
}

// Config tunes risk computation. Zero-value Config is invalid (all weights
// and thresholds are zero) and this package has no default constructor;
// callers set every field.
type Config struct {
	WeightPosture        float64
	WeightBalance        float64
	WeightStability      float64
	WeightFatigue        float64
	StabilityWindow      int
	FatigueWindow        time.Duration
	AudioFusionWindow    time.Duration
	OutOfOrderTolerance  time.Duration
	MaxHistorySamples    int
	HistoryTTL           time.Duration
	AlertLowThreshold      float64
	AlertMediumThreshold   float64
	AlertHighThreshold     float64
	AlertCriticalThreshold float64
}

// JointTriples names the (a, vertex, c) landmark index triples whose
// interior angle at the vertex is computed per sample.
var JointTriples = map[string][3]int{
	"left_knee":  {LandmarkLeftHip, LandmarkLeftKnee, LandmarkLeftAnkle},
	"right_knee": {LandmarkRightHip, LandmarkRightKnee, LandmarkRightAnkle},
}

type historyEntry struct {
	sample PoseSample
}

// Subject owns one subject's ring buffer and fatigue accumulator. Only
// the worker goroutine that owns a Subject mutates it; Snapshot is the
// only way other goroutines observe it.
type Subject struct {
	id      string
	cfg     Config
	history []historyEntry
	fatigue float64
	lastEMA time.Time

	activeLevel    AlertLevel
	lastAlertAt    time.Time
	hasActiveAlert bool
}

// NewSubject builds a Subject ring owner.
func NewSubject(id string, cfg Config) *Subject {
	return &Subject{id: id, cfg: cfg}
}

// FuseSample validates, derives, and appends one detection into the
// subject's history, returning the resulting RiskAssessment. audio, if
// non-nil, is folded in as a same-window keyword event.
func (s *Subject) FuseSample(kind backend.DetectorKind, landmarks []backend.Landmark, bbox [4]float32, ts time.Time, audio *AudioEvent) (RiskAssessment, error) {
	if len(landmarks) != kind.LandmarkCount() {
		return RiskAssessment{}, ErrLandmarkCountMismatch
	}
	if len(s.history) > 0 {
		newest := s.history[len(s.history)-1].sample.Timestamp
		if ts.Before(newest.Add(-s.cfg.OutOfOrderTolerance)) {
			return RiskAssessment{}, ErrOutOfOrder
		}
	}

	sample := PoseSample{
		Timestamp:   ts,
		SubjectID:   s.id,
		Kind:        kind,
		Landmarks:   landmarks,
		BoundingBox: bbox,
	}
	sample.JointAngles = computeJointAngles(landmarks)
	sample.BalanceScore = balanceScore(landmarks, bbox)
	sample.PostureDeviation = postureDeviation(landmarks)
	sample.StabilityScore = s.stabilityScore(sample.PostureDeviation)
	sample.ActivityLevel = activityLevel(s.history, sample)

	s.appendHistory(sample)
	s.updateFatigue(sample, ts)

	risk := s.weightedRisk(sample)
	level := s.levelForScore(risk)

	causeFall := level.rank() >= AlertMedium.rank()
	causeAudio := false
	if audio != nil && withinWindow(ts, audio.Timestamp, s.cfg.AudioFusionWindow) {
		causeAudio = true
		level = level.promote()
	}

	return RiskAssessment{
		SubjectID:      s.id,
		Timestamp:      ts,
		FallRiskScore:  risk,
		AlertLevel:     level,
		StabilityTrend: s.trend(),
		CauseFall:      causeFall,
		CauseAudioHelp: causeAudio,
	}, nil
}

func (s *Subject) appendHistory(sample PoseSample) {
	s.history = append(s.history, historyEntry{sample: sample})
	cutoff := sample.Timestamp.Add(-s.cfg.HistoryTTL)
	start := 0
	for start < len(s.history) && s.history[start].sample.Timestamp.Before(cutoff) {
		start++
	}
	if start > 0 {
		s.history = append([]historyEntry{}, s.history[start:]...)
	}
	if max := s.cfg.MaxHistorySamples; max > 0 && len(s.history) > max {
		s.history = append([]historyEntry{}, s.history[len(s.history)-max:]...)
	}
}

// stabilityScore scores the variance of the torso angle from vertical, in
// degrees (PostureDeviation * 90), over the last StabilityWindow samples
// including the current one.
func (s *Subject) stabilityScore(postureDeviation float64) float64 {
	window := s.cfg.StabilityWindow
	if window <= 0 {
		window = 15
	}
	n := len(s.history)
	lo := n - window + 1
	if lo < 0 {
		lo = 0
	}
	samples := make([]float64, 0, window)
	for _, e := range s.history[lo:] {
		samples = append(samples, e.sample.PostureDeviation*90)
	}
	samples = append(samples, postureDeviation*90)
	if len(samples) < 2 {
		return 1.0
	}
	variance := stat.Variance(samples, nil)
	// Normalize: variance of 0 degrees^2 -> score 1.0; variance >= 900
	// (30-degree stddev) -> score floors at 0.
	score := 1.0 - variance/900.0
	return clip01(score)
}

func (s *Subject) updateFatigue(sample PoseSample, ts time.Time) {
	if s.lastEMA.IsZero() {
		s.lastEMA = ts
		s.fatigue = 1.0 - sample.StabilityScore
		return
	}
	elapsed := ts.Sub(s.lastEMA).Seconds()
	window := s.cfg.FatigueWindow.Seconds()
	if window <= 0 {
		window = 60
	}
	alpha := 1.0 - math.Exp(-elapsed/window)
	s.fatigue = s.fatigue + alpha*((1.0-sample.StabilityScore)-s.fatigue)
	s.lastEMA = ts
}

func (s *Subject) weightedRisk(sample PoseSample) float64 {
	score := s.cfg.WeightPosture*sample.PostureDeviation +
		s.cfg.WeightBalance*(1-sample.BalanceScore) +
		s.cfg.WeightStability*(1-sample.StabilityScore) +
		s.cfg.WeightFatigue*s.fatigue
	return clip01(score)
}

func (s *Subject) levelForScore(score float64) AlertLevel {
	switch {
	case score < s.cfg.AlertLowThreshold:
		return AlertNone
	case score < s.cfg.AlertMediumThreshold:
		return AlertLow
	case score < s.cfg.AlertHighThreshold:
		return AlertMedium
	case score < s.cfg.AlertCriticalThreshold:
		return AlertHigh
	default:
		return AlertCritical
	}
}

func (s *Subject) trend() StabilityTrend {
	n := len(s.history)
	if n < 2 {
		return TrendStable
	}
	recent := s.history[n-1].sample.StabilityScore
	prior := s.history[n-2].sample.StabilityScore
	const epsilon = 0.02
	switch {
	case recent-prior > epsilon:
		return TrendImproving
	case prior-recent > epsilon:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// Snapshot returns a defensive copy of the subject's current history, safe
// to read from another goroutine.
func (s *Subject) Snapshot() []PoseSample {
	out := make([]PoseSample, len(s.history))
	for i, e := range s.history {
		out[i] = e.sample
	}
	return out
}

func withinWindow(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
