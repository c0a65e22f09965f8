// Package geom has the small amount of 3D math the engine needs: vectors,
// rays and sphere colliders.
package geom

import "math"

// Vec3 is a point or direction in world space. Y is up, Z is forward.
type Vec3 struct {
	X, Y, Z float64
}

func V(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

func (a Vec3) Add(b Vec3) Vec3         { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3         { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vec3) Scale(s float64) Vec3    { return Vec3{a.X * s, a.Y * s, a.Z * s} }
func (a Vec3) Dot(b Vec3) float64      { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }
func (a Vec3) Length() float64         { return math.Sqrt(a.Dot(a)) }
func (a Vec3) Neg() Vec3               { return Vec3{-a.X, -a.Y, -a.Z} }
func (a Vec3) IsZero() bool            { return a.X == 0 && a.Y == 0 && a.Z == 0 }
func (a Vec3) Distance(b Vec3) float64 { return a.Sub(b).Length() }

// Normalize returns a unit vector, or the zero vector for zero input.
func (a Vec3) Normalize() Vec3 {
	l := a.Length()
	if l == 0 {
		return Vec3{}
	}
	return a.Scale(1 / l)
}

// Direction converts yaw and pitch in degrees to a unit direction. Yaw 0 looks
// down +Z and grows clockwise when seen from above, pitch grows upwards.
func Direction(yaw, pitch float64) Vec3 {
	y := yaw * math.Pi / 180
	p := pitch * math.Pi / 180
	return Vec3{
		X: math.Sin(y) * math.Cos(p),
		Y: math.Sin(p),
		Z: math.Cos(y) * math.Cos(p),
	}
}

// Ray is a half-line. Dir does not have to be normalized on construction;
// NewRay normalizes it.
type Ray struct {
	Origin Vec3
	Dir    Vec3
}

func NewRay(origin, dir Vec3) Ray {
	return Ray{Origin: origin, Dir: dir.Normalize()}
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float64) Vec3 {
	return r.Origin.Add(r.Dir.Scale(t))
}

// Valid reports whether the ray has a direction.
func (r Ray) Valid() bool { return !r.Dir.IsZero() }

// Sphere is a collider used both for interaction points and for UI elements.
type Sphere struct {
	Center Vec3
	Radius float64
}

// Intersect returns the distance to the first surface crossing of r in front
// of its origin. A ray starting inside the sphere reports the exit point.
func (s Sphere) Intersect(r Ray) (float64, bool) {
	if !r.Valid() || s.Radius <= 0 {
		return 0, false
	}
	dir := r.Dir.Normalize()
	oc := r.Origin.Sub(s.Center)
	b := oc.Dot(dir)
	c := oc.Dot(oc) - s.Radius*s.Radius
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	t0 := -b - sq
	t1 := -b + sq
	switch {
	case t0 >= 0:
		return t0, true
	case t1 >= 0:
		return t1, true
	default:
		return 0, false
	}
}
