package l4risk

import (
	"math"
	"testing"

	"github.com/dragonx/sentinel/internal/detect/backend"
)

func TestComputeJointAnglesSkipsTripleWithMissingLandmark(t *testing.T) {
	lm := standingLandmarks()
	lm[LandmarkLeftKnee].Visibility = float32(math.NaN())

	angles := computeJointAngles(lm)
	if _, ok := angles["left_knee"]; ok {
		t.Fatalf("left_knee angle present, want skipped for a missing (NaN-visibility) landmark")
	}
	if _, ok := angles["right_knee"]; !ok {
		t.Fatalf("right_knee angle absent, want present — unrelated triple must be unaffected")
	}
}

func TestComputeJointAnglesKeepsTripleWithLowVisibilityLandmark(t *testing.T) {
	lm := standingLandmarks()
	lm[LandmarkLeftKnee].Visibility = 0.0001 // low but numeric, not missing

	angles := computeJointAngles(lm)
	if _, ok := angles["left_knee"]; !ok {
		t.Fatalf("left_knee angle absent, want present — low visibility must not be treated as missing")
	}
}

func TestWeightedMidpointFavorsHigherVisibilityLandmark(t *testing.T) {
	a := backend.Landmark{X: 0, Y: 0, Visibility: 1.0}
	b := backend.Landmark{X: 100, Y: 0, Visibility: 0.01}

	x, _ := weightedMidpoint(a, b)
	if x >= 50 {
		t.Fatalf("weightedMidpoint x = %f, want < 50 (pulled toward the confidently-seen landmark)", x)
	}
}

func TestWeightedMidpointFallsBackToPlainAverageWhenBothUnweighted(t *testing.T) {
	a := backend.Landmark{X: 0, Y: 0, Visibility: 0}
	b := backend.Landmark{X: 100, Y: 0, Visibility: float32(math.NaN())}

	x, _ := weightedMidpoint(a, b)
	if x != 50 {
		t.Fatalf("weightedMidpoint x = %f, want 50 (plain average fallback)", x)
	}
}
