package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlopeDegrees(t *testing.T) {
	ref := Point{X: 320, Y: 179}

	tests := []struct {
		name   string
		target Point
		want   float64
	}{
		{"straight ahead", Point{X: 320, Y: 129}, 0},
		{"right diagonal", Point{X: 370, Y: 129}, 45},
		{"left diagonal", Point{X: 270, Y: 129}, -45},
		{"due right", Point{X: 400, Y: 179}, 90},
		{"due left", Point{X: 240, Y: 179}, -90},
		{"behind", Point{X: 320, Y: 229}, 180},
		{"coincident", ref, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SlopeDegrees(tt.target, ref), 1e-9)
		})
	}
}

func TestSlopeDegrees_NonFinite(t *testing.T) {
	ref := Point{X: 320, Y: 179}
	assert.Equal(t, 0.0, SlopeDegrees(Point{X: math.NaN(), Y: 10}, ref))
	assert.Equal(t, 0.0, SlopeDegrees(Point{X: 10, Y: math.Inf(1)}, ref))
}

func TestSlopeDegrees_Deterministic(t *testing.T) {
	ref := Point{X: 320, Y: 179}
	target := Point{X: 351.5, Y: 101.25}
	first := SlopeDegrees(target, ref)
	for i := 0; i < 100; i++ {
		if got := SlopeDegrees(target, ref); got != first {
			t.Fatalf("iteration %d: got %v, want %v", i, got, first)
		}
	}
}

func TestPointAtSlope_RoundTrip(t *testing.T) {
	ref := Point{X: 320, Y: 179}
	for _, deg := range []float64{-65, -35, -5, 15, 25, 55, 69} {
		p := PointAtSlope(ref, deg, 100)
		assert.InDelta(t, deg, SlopeDegrees(p, ref), 1e-9, "deg=%v", deg)
	}
}
