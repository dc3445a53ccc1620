// internal/browser/humanoid/vector.go
package humanoid

import (
	"math"

	"github.com/xkilldash9x/hurdle/api/schemas"
)

// Vector2D is a point or displacement in viewport pixels.
type Vector2D struct {
	X float64
	Y float64
}

// FromPoint converts a schema point.
func FromPoint(p schemas.Point) Vector2D { return Vector2D{X: p.X, Y: p.Y} }

// Point converts back to the schema type used by the pointer capability.
func (v Vector2D) Point() schemas.Point { return schemas.Point{X: v.X, Y: v.Y} }

func (v Vector2D) Add(other Vector2D) Vector2D {
	return Vector2D{X: v.X + other.X, Y: v.Y + other.Y}
}

func (v Vector2D) Sub(other Vector2D) Vector2D {
	return Vector2D{X: v.X - other.X, Y: v.Y - other.Y}
}

func (v Vector2D) Mul(scalar float64) Vector2D {
	return Vector2D{X: v.X * scalar, Y: v.Y * scalar}
}

// Mag is the Euclidean length.
func (v Vector2D) Mag() float64 {
	return math.Hypot(v.X, v.Y)
}

// Normalize returns the unit vector in the direction of v, or the zero vector.
func (v Vector2D) Normalize() Vector2D {
	mag := v.Mag()
	if mag < 1e-9 {
		return Vector2D{}
	}
	return v.Mul(1.0 / mag)
}

// Perp returns v rotated by 90 degrees counter-clockwise.
func (v Vector2D) Perp() Vector2D {
	return Vector2D{X: -v.Y, Y: v.X}
}

func (v Vector2D) Dist(other Vector2D) float64 {
	return math.Hypot(v.X-other.X, v.Y-other.Y)
}

// Limit caps the magnitude of v at max.
func (v Vector2D) Limit(max float64) Vector2D {
	if mag := v.Mag(); mag > max && mag > 0 {
		return v.Mul(max / mag)
	}
	return v
}
