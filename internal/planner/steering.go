package planner

import "sort"

// steeringBand maps slopes in one band to a steering class. For positive bands
// the interval is (lower, upper]; for negative bands it is [lower, upper).
type steeringBand struct {
	lower, upper float64
	steering     int
}

// These bands are tuned calibration, not a formula: the positive side tops out
// at 6 while the negative side saturates at -7, and several bands share a
// value.
var (
	positiveBands = []steeringBand{
		{0, 10, 0},
		{10, 20, 0},
		{20, 30, 1},
		{30, 40, 2},
		{40, 50, 4},
		{50, 60, 5},
		{60, 70, 6},
	}
	negativeBands = []steeringBand{
		{-10, 0, -1},
		{-20, -10, -2},
		{-30, -20, -3},
		{-40, -30, -5},
		{-50, -40, -7},
		{-60, -50, -7},
		{-70, -60, -7},
	}
)

// SteeringForSlope quantizes a target slope in degrees into a steering class.
// A slope of exactly 0, beyond +/-70, or NaN maps to 0.
func SteeringForSlope(slope float64) int {
	switch {
	case slope > 0:
		for _, b := range positiveBands {
			if slope > b.lower && slope <= b.upper {
				return b.steering
			}
		}
	case slope < 0:
		for _, b := range negativeBands {
			if slope >= b.lower && slope < b.upper {
				return b.steering
			}
		}
	}
	return 0
}

// SteeringClasses returns every value SteeringForSlope can produce, sorted.
func SteeringClasses() []int {
	seen := map[int]bool{0: true}
	for _, b := range positiveBands {
		seen[b.steering] = true
	}
	for _, b := range negativeBands {
		seen[b.steering] = true
	}
	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// ValidSteering reports whether s is one of SteeringClasses.
func ValidSteering(s int) bool {
	for _, v := range SteeringClasses() {
		if v == s {
			return true
		}
	}
	return false
}
