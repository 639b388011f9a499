// Package geom provides the small amount of 3D vector math the headset needs.
//
// Coordinates are left-handed with +Y up and +Z forward, so a positive yaw
// turns a vector to the right when seen from above.
package geom

import "math"

// Vec3 is a point or direction in world space (meters).
type Vec3 struct {
	X float64 `json:"x" toml:"x"`
	Y float64 `json:"y" toml:"y"`
	Z float64 `json:"z" toml:"z"`
}

var (
	Zero    = Vec3{}
	Up      = Vec3{0, 1, 0}
	Forward = Vec3{0, 0, 1}
	Right   = Vec3{1, 0, 0}
)

// epsilon below which a length is treated as zero
const epsilon = 1e-12

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product.
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Len returns the Euclidean length.
func (v Vec3) Len() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalize returns the unit vector in the direction of v.
// The zero vector normalizes to itself.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l < epsilon {
		return Zero
	}
	return v.Scale(1 / l)
}

// Distance returns the distance between two points.
func Distance(a, b Vec3) float64 {
	return a.Sub(b).Len()
}

// Angle returns the unsigned angle between a and b in degrees (0-180).
// If either vector is zero the angle is 0.
func Angle(a, b Vec3) float64 {
	denom := a.Len() * b.Len()
	if denom < epsilon {
		return 0
	}
	cos := clamp(a.Dot(b)/denom, -1, 1)
	return Degrees(math.Acos(cos))
}

// Yaw rotates v about the world up axis by deg degrees.
func Yaw(v Vec3, deg float64) Vec3 {
	sin, cos := math.Sincos(Radians(deg))
	return Vec3{
		X: v.X*cos + v.Z*sin,
		Y: v.Y,
		Z: -v.X*sin + v.Z*cos,
	}
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
