package geom

import "math"

// QuadF is a float quadrilateral given by its corners in order:
// P1 top-left, P2 top-right, P3 bottom-right, P4 bottom-left for a
// rectangle in its own space.
type QuadF struct {
	P1, P2, P3, P4 PointF
}

// QuadFromRect returns the quad with the corners of r.
func QuadFromRect(r RectF) QuadF {
	return QuadF{
		P1: PointF{X: r.X, Y: r.Y},
		P2: PointF{X: r.Right(), Y: r.Y},
		P3: PointF{X: r.Right(), Y: r.Bottom()},
		P4: PointF{X: r.X, Y: r.Bottom()},
	}
}

// Points returns the corners as an array.
func (q QuadF) Points() [4]PointF { return [4]PointF{q.P1, q.P2, q.P3, q.P4} }

// BoundingBox returns the smallest rectangle containing the quad.
func (q QuadF) BoundingBox() RectF {
	x0 := math.Min(math.Min(q.P1.X, q.P2.X), math.Min(q.P3.X, q.P4.X))
	y0 := math.Min(math.Min(q.P1.Y, q.P2.Y), math.Min(q.P3.Y, q.P4.Y))
	x1 := math.Max(math.Max(q.P1.X, q.P2.X), math.Max(q.P3.X, q.P4.X))
	y1 := math.Max(math.Max(q.P1.Y, q.P2.Y), math.Max(q.P3.Y, q.P4.Y))
	return RectF{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// IsRectilinear reports whether every edge is axis-aligned within epsilon.
func (q QuadF) IsRectilinear(epsilon float64) bool {
	near := func(a, b float64) bool { return math.Abs(a-b) < epsilon }
	return (near(q.P1.X, q.P2.X) && near(q.P2.Y, q.P3.Y) && near(q.P3.X, q.P4.X) && near(q.P4.Y, q.P1.Y)) ||
		(near(q.P1.Y, q.P2.Y) && near(q.P2.X, q.P3.X) && near(q.P3.Y, q.P4.Y) && near(q.P4.X, q.P1.X))
}

// Contains reports whether p lies inside the quad. The quad must be convex;
// either winding is accepted.
func (q QuadF) Contains(p PointF) bool {
	pts := q.Points()
	var pos, neg bool
	for i := range 4 {
		a := pts[i]
		b := pts[(i+1)%4]
		c := b.Sub(a).Cross(p.Sub(a))
		if c > 0 {
			pos = true
		} else if c < 0 {
			neg = true
		}
		if pos && neg {
			return false
		}
	}
	return true
}

// IsCounterClockwise reports whether the corners wind counter-clockwise in
// a Y-down coordinate system.
func (q QuadF) IsCounterClockwise() bool {
	pts := q.Points()
	area := 0.0
	for i := range 4 {
		a := pts[i]
		b := pts[(i+1)%4]
		area += a.X*b.Y - b.X*a.Y
	}
	return area < 0
}

// Offset returns q translated by d.
func (q QuadF) Offset(d PointF) QuadF {
	return QuadF{P1: q.P1.Add(d), P2: q.P2.Add(d), P3: q.P3.Add(d), P4: q.P4.Add(d)}
}
