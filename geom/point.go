package geom

import "math"

// PointF is a 2D float point.
type PointF struct {
	X, Y float64
}

// Add returns p + q.
func (p PointF) Add(q PointF) PointF { return PointF{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p - q.
func (p PointF) Sub(q PointF) PointF { return PointF{X: p.X - q.X, Y: p.Y - q.Y} }

// Scale returns p scaled by s.
func (p PointF) Scale(s float64) PointF { return PointF{X: p.X * s, Y: p.Y * s} }

// Cross returns the z component of the 3D cross product of p and q.
func (p PointF) Cross(q PointF) float64 { return p.X*q.Y - p.Y*q.X }

// Point3F is a 3D float point or vector.
type Point3F struct {
	X, Y, Z float64
}

// Add returns p + q.
func (p Point3F) Add(q Point3F) Point3F { return Point3F{p.X + q.X, p.Y + q.Y, p.Z + q.Z} }

// Sub returns p - q.
func (p Point3F) Sub(q Point3F) Point3F { return Point3F{p.X - q.X, p.Y - q.Y, p.Z - q.Z} }

// Scale returns p scaled by s.
func (p Point3F) Scale(s float64) Point3F { return Point3F{p.X * s, p.Y * s, p.Z * s} }

// Dot returns the dot product of p and q.
func (p Point3F) Dot(q Point3F) float64 { return p.X*q.X + p.Y*q.Y + p.Z*q.Z }

// Cross returns the cross product p x q.
func (p Point3F) Cross(q Point3F) Point3F {
	return Point3F{
		X: p.Y*q.Z - p.Z*q.Y,
		Y: p.Z*q.X - p.X*q.Z,
		Z: p.X*q.Y - p.Y*q.X,
	}
}

// Length returns the Euclidean length of p.
func (p Point3F) Length() float64 { return math.Sqrt(p.Dot(p)) }

// Normalize returns p scaled to unit length. The zero vector is returned
// unchanged.
func (p Point3F) Normalize() Point3F {
	l := p.Length()
	if l == 0 {
		return p
	}
	return p.Scale(1 / l)
}

// XY drops the Z coordinate.
func (p Point3F) XY() PointF { return PointF{X: p.X, Y: p.Y} }

// Lerp returns the point a fraction t of the way from p to q.
func (p Point3F) Lerp(q Point3F, t float64) Point3F {
	return Point3F{
		X: p.X + (q.X-p.X)*t,
		Y: p.Y + (q.Y-p.Y)*t,
		Z: p.Z + (q.Z-p.Z)*t,
	}
}
