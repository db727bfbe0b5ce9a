package l4risk

import (
	"math"

	"github.com/dragonx/sentinel/internal/detect/backend"
)

// computeJointAngles evaluates the interior angle at the vertex of every
// triple in JointTriples, in degrees, in [0, 180]. A triple is skipped
// (absent from the result) when any of its three landmarks is missing —
// out of range, or reporting its visibility as NaN, which is how a
// detector backend signals "this landmark was not produced at all." Low
// but numeric visibility is never grounds to skip; it is kept with its
// reported weight per spec.md §9 (see balanceScore/postureDeviation).
func computeJointAngles(landmarks []backend.Landmark) map[string]float64 {
	angles := make(map[string]float64, len(JointTriples))
	for name, idx := range JointTriples {
		a, vertex, c := idx[0], idx[1], idx[2]
		if a >= len(landmarks) || vertex >= len(landmarks) || c >= len(landmarks) {
			continue
		}
		if landmarkMissing(landmarks[a]) || landmarkMissing(landmarks[vertex]) || landmarkMissing(landmarks[c]) {
			continue
		}
		angles[name] = interiorAngleDegrees(landmarks[a], landmarks[vertex], landmarks[c])
	}
	return angles
}

// landmarkMissing reports whether a backend failed to produce this
// landmark at all, as opposed to reporting it with low confidence.
func landmarkMissing(l backend.Landmark) bool {
	return math.IsNaN(float64(l.Visibility))
}

func interiorAngleDegrees(p1, vertex, p3 backend.Landmark) float64 {
	v1x, v1y := float64(p1.X-vertex.X), float64(p1.Y-vertex.Y)
	v2x, v2y := float64(p3.X-vertex.X), float64(p3.Y-vertex.Y)

	dot := v1x*v2x + v1y*v2y
	n1 := math.Hypot(v1x, v1y)
	n2 := math.Hypot(v2x, v2y)
	if n1 == 0 || n2 == 0 {
		return 0
	}
	cos := dot / (n1 * n2)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

// weightedMidpoint averages two landmarks' coordinates, weighting each by
// its own reported Visibility so a low-confidence landmark (kept, per
// spec.md §9, rather than dropped) pulls the midpoint toward it less than
// a confidently-seen one. Falls back to a plain average when both report
// zero (or NaN) visibility.
func weightedMidpoint(a, b backend.Landmark) (x, y float64) {
	wa, wb := float64(a.Visibility), float64(b.Visibility)
	if math.IsNaN(wa) {
		wa = 0
	}
	if math.IsNaN(wb) {
		wb = 0
	}
	sum := wa + wb
	if sum <= 0 {
		return (float64(a.X) + float64(b.X)) / 2, (float64(a.Y) + float64(b.Y)) / 2
	}
	return (float64(a.X)*wa + float64(b.X)*wb) / sum, (float64(a.Y)*wa + float64(b.Y)*wb) / sum
}

// weightedMidpointX is weightedMidpoint's X component, for callers that
// only need the horizontal midpoint.
func weightedMidpointX(a, b backend.Landmark) float64 {
	x, _ := weightedMidpoint(a, b)
	return x
}

// balanceScore derives balance from the horizontal deviation of the hip
// midpoint from the ankle midpoint, normalized by stance width (the
// horizontal distance between the ankles). A hip directly over the
// ankles scores 1.0 (perfectly balanced); deviation of a full stance
// width or more scores 0.
func balanceScore(landmarks []backend.Landmark, bbox [4]float32) float64 {
	if LandmarkLeftHip >= len(landmarks) || LandmarkRightHip >= len(landmarks) ||
		LandmarkLeftAnkle >= len(landmarks) || LandmarkRightAnkle >= len(landmarks) {
		return 1.0
	}
	hipMidX := weightedMidpointX(landmarks[LandmarkLeftHip], landmarks[LandmarkRightHip])
	ankleMidX := weightedMidpointX(landmarks[LandmarkLeftAnkle], landmarks[LandmarkRightAnkle])
	stanceWidth := math.Abs(float64(landmarks[LandmarkLeftAnkle].X) - float64(landmarks[LandmarkRightAnkle].X))
	if stanceWidth < 1 {
		bw := float64(bbox[2] - bbox[0])
		if bw > 1 {
			stanceWidth = bw * 0.2
		} else {
			stanceWidth = 1
		}
	}
	deviation := math.Abs(hipMidX-ankleMidX) / stanceWidth
	return clip01(1.0 - deviation)
}

// postureDeviation is the angle between the shoulder-hip line and
// vertical, mapped to [0,1]: 0 at vertical (upright), 1 at horizontal
// (prone).
func postureDeviation(landmarks []backend.Landmark) float64 {
	if LandmarkLeftShoulder >= len(landmarks) || LandmarkRightShoulder >= len(landmarks) ||
		LandmarkLeftHip >= len(landmarks) || LandmarkRightHip >= len(landmarks) {
		return 0
	}
	shoulderMidX, shoulderMidY := weightedMidpoint(landmarks[LandmarkLeftShoulder], landmarks[LandmarkRightShoulder])
	hipMidX, hipMidY := weightedMidpoint(landmarks[LandmarkLeftHip], landmarks[LandmarkRightHip])

	dx := shoulderMidX - hipMidX
	dy := shoulderMidY - hipMidY
	lineLen := math.Hypot(dx, dy)
	if lineLen == 0 {
		return 0
	}
	// Angle between the torso line and the vertical (0, -1) axis.
	cos := (-dy) / lineLen
	cos = math.Max(-1, math.Min(1, cos))
	angleFromVertical := math.Acos(cos) // 0 = vertical, pi/2 = horizontal
	return clip01(angleFromVertical / (math.Pi / 2))
}

// activityLevel is a coarse motion estimate: the mean landmark
// displacement since the previous sample, normalized by bounding box
// diagonal. Zero for the first sample.
func activityLevel(history []historyEntry, sample PoseSample) float64 {
	if len(history) == 0 {
		return 0
	}
	prev := history[len(history)-1].sample
	if len(prev.Landmarks) != len(sample.Landmarks) {
		return 0
	}
	var total float64
	for i := range sample.Landmarks {
		dx := float64(sample.Landmarks[i].X - prev.Landmarks[i].X)
		dy := float64(sample.Landmarks[i].Y - prev.Landmarks[i].Y)
		total += math.Hypot(dx, dy)
	}
	mean := total / float64(len(sample.Landmarks))

	diag := math.Hypot(float64(sample.BoundingBox[2]-sample.BoundingBox[0]), float64(sample.BoundingBox[3]-sample.BoundingBox[1]))
	if diag < 1 {
		return 0
	}
	return clip01(mean / diag)
}
