// Package geometry holds the small amount of image-plane geometry the planner
// needs. Coordinates are image pixels: x grows to the right, y grows downward.
package geometry

import "math"

// Point is a 2D point in image pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SlopeDegrees returns the heading angle, in degrees, of the line from ref to
// target. Zero means the target is straight ahead of ref (smaller y), positive
// angles lean right (larger x) and negative angles lean left. A target behind
// ref yields an angle beyond +/-90.
//
// Coincident points, and any non-finite coordinate, return 0.
func SlopeDegrees(target, ref Point) float64 {
	dx := target.X - ref.X
	dy := ref.Y - target.Y
	if dx == 0 && dy == 0 {
		return 0
	}
	if !finite(dx) || !finite(dy) {
		return 0
	}
	return math.Atan2(dx, dy) * 180 / math.Pi
}

// PointAtSlope returns the point at distance dist from ref whose heading from
// ref is deg degrees. It is the inverse of SlopeDegrees and is mostly useful
// for building fixtures.
func PointAtSlope(ref Point, deg, dist float64) Point {
	rad := deg * math.Pi / 180
	return Point{
		X: ref.X + dist*math.Sin(rad),
		Y: ref.Y - dist*math.Cos(rad),
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
