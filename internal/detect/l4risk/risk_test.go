package l4risk

import (
	"testing"
	"time"

	"github.com/dragonx/sentinel/internal/detect/backend"
)

func defaultConfig() Config {
	return Config{
		WeightPosture:        0.4,
		WeightBalance:        0.3,
		WeightStability:      0.2,
		WeightFatigue:        0.1,
		StabilityWindow:      15,
		FatigueWindow:        60 * time.Second,
		AudioFusionWindow:    5 * time.Second,
		OutOfOrderTolerance:  200 * time.Millisecond,
		MaxHistorySamples:    1000,
		HistoryTTL:           300 * time.Second,
		AlertLowThreshold:      0.3,
		AlertMediumThreshold:   0.7,
		AlertHighThreshold:     0.9,
		AlertCriticalThreshold: 0.95,
	}
}

// standingLandmarks returns a synthetic upright-standing 33-point pose:
// shoulders above hips above knees above ankles, all vertically aligned.
func standingLandmarks() []backend.Landmark {
	lm := make([]backend.Landmark, 33)
	for i := range lm {
		lm[i] = backend.Landmark{X: 100, Y: 100, Visibility: 0.9}
	}
	lm[LandmarkLeftShoulder] = backend.Landmark{X: 90, Y: 50, Visibility: 0.9}
	lm[LandmarkRightShoulder] = backend.Landmark{X: 110, Y: 50, Visibility: 0.9}
	lm[LandmarkLeftHip] = backend.Landmark{X: 90, Y: 100, Visibility: 0.9}
	lm[LandmarkRightHip] = backend.Landmark{X: 110, Y: 100, Visibility: 0.9}
	lm[LandmarkLeftKnee] = backend.Landmark{X: 90, Y: 150, Visibility: 0.9}
	lm[LandmarkRightKnee] = backend.Landmark{X: 110, Y: 150, Visibility: 0.9}
	lm[LandmarkLeftAnkle] = backend.Landmark{X: 90, Y: 200, Visibility: 0.9}
	lm[LandmarkRightAnkle] = backend.Landmark{X: 110, Y: 200, Visibility: 0.9}
	return lm
}

// fallenLandmarks returns a synthetic prone pose: shoulders and hips at
// the same height, far from any ankle midpoint alignment.
func fallenLandmarks() []backend.Landmark {
	lm := make([]backend.Landmark, 33)
	for i := range lm {
		lm[i] = backend.Landmark{X: 100, Y: 180, Visibility: 0.9}
	}
	lm[LandmarkLeftShoulder] = backend.Landmark{X: 40, Y: 180, Visibility: 0.9}
	lm[LandmarkRightShoulder] = backend.Landmark{X: 60, Y: 182, Visibility: 0.9}
	lm[LandmarkLeftHip] = backend.Landmark{X: 140, Y: 181, Visibility: 0.9}
	lm[LandmarkRightHip] = backend.Landmark{X: 160, Y: 183, Visibility: 0.9}
	lm[LandmarkLeftKnee] = backend.Landmark{X: 190, Y: 182, Visibility: 0.9}
	lm[LandmarkRightKnee] = backend.Landmark{X: 210, Y: 184, Visibility: 0.9}
	lm[LandmarkLeftAnkle] = backend.Landmark{X: 230, Y: 183, Visibility: 0.9}
	lm[LandmarkRightAnkle] = backend.Landmark{X: 250, Y: 185, Visibility: 0.9}
	return lm
}

// The high bucket sits strictly between AlertHighThreshold and
// AlertCriticalThreshold; it must be reachable under the default config.
func TestLevelForScoreReachesHighBucket(t *testing.T) {
	s := NewSubject("alice", defaultConfig())
	if got := s.levelForScore(0.92); got != AlertHigh {
		t.Fatalf("levelForScore(0.92) = %s, want high", got)
	}
	if got := s.levelForScore(0.97); got != AlertCritical {
		t.Fatalf("levelForScore(0.97) = %s, want critical", got)
	}
}

func TestFuseSampleRejectsWrongLandmarkCount(t *testing.T) {
	s := NewSubject("alice", defaultConfig())
	short := make([]backend.Landmark, 10)
	_, err := s.FuseSample(backend.KindPose, short, [4]float32{0, 0, 200, 200}, time.Now(), nil)
	if err != ErrLandmarkCountMismatch {
		t.Fatalf("err = %v, want ErrLandmarkCountMismatch", err)
	}
}

func TestFuseSampleRejectsOutOfOrder(t *testing.T) {
	s := NewSubject("alice", defaultConfig())
	base := time.Now()
	if _, err := s.FuseSample(backend.KindPose, standingLandmarks(), [4]float32{0, 0, 200, 200}, base, nil); err != nil {
		t.Fatalf("first FuseSample: %v", err)
	}
	_, err := s.FuseSample(backend.KindPose, standingLandmarks(), [4]float32{0, 0, 200, 200}, base.Add(-500*time.Millisecond), nil)
	if err != ErrOutOfOrder {
		t.Fatalf("err = %v, want ErrOutOfOrder", err)
	}
}

// S1: 30 frames of standing posture never exceed a low risk score.
func TestStandingStaysLowRisk(t *testing.T) {
	s := NewSubject("alice", defaultConfig())
	base := time.Now()
	for i := 0; i < 30; i++ {
		ts := base.Add(time.Duration(i) * 33 * time.Millisecond)
		risk, err := s.FuseSample(backend.KindPose, standingLandmarks(), [4]float32{0, 0, 200, 250}, ts, nil)
		if err != nil {
			t.Fatalf("FuseSample #%d: %v", i, err)
		}
		if risk.FallRiskScore >= 0.3 {
			t.Fatalf("frame %d: fall_risk_score = %f, want < 0.3", i, risk.FallRiskScore)
		}
		if risk.AlertLevel != AlertNone {
			t.Fatalf("frame %d: alert_level = %s, want none", i, risk.AlertLevel)
		}
	}
}

// Invariant 2: the ring never exceeds max_history_samples.
func TestHistoryBoundedByMaxSamples(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxHistorySamples = 5
	cfg.HistoryTTL = time.Hour
	s := NewSubject("alice", cfg)
	base := time.Now()
	for i := 0; i < 20; i++ {
		ts := base.Add(time.Duration(i) * 33 * time.Millisecond)
		if _, err := s.FuseSample(backend.KindPose, standingLandmarks(), [4]float32{0, 0, 200, 250}, ts, nil); err != nil {
			t.Fatalf("FuseSample #%d: %v", i, err)
		}
	}
	if got := len(s.Snapshot()); got > 5 {
		t.Fatalf("history length = %d, want <= 5", got)
	}
}

// S3: an isolated audio "help" event during otherwise normal posture
// promotes the level to medium and sets the audio-help cause flag (the
// 0.60 confidence is assigned by l5alert and checked there).
func TestAudioOnlyHelpPromotesToMedium(t *testing.T) {
	s := NewSubject("alice", defaultConfig())
	base := time.Now()
	var last RiskAssessment
	for i := 0; i < 30; i++ {
		ts := base.Add(time.Duration(i) * 33 * time.Millisecond)
		var audio *AudioEvent
		if i == 29 {
			audio = &AudioEvent{Timestamp: ts, Keyword: "help"}
		}
		risk, err := s.FuseSample(backend.KindPose, standingLandmarks(), [4]float32{0, 0, 200, 250}, ts, audio)
		if err != nil {
			t.Fatalf("FuseSample #%d: %v", i, err)
		}
		last = risk
	}
	if last.AlertLevel != AlertMedium {
		t.Fatalf("AlertLevel = %s, want medium", last.AlertLevel)
	}
	if !last.CauseAudioHelp {
		t.Fatalf("expected CauseAudioHelp flag set")
	}
}
