package geom

import (
	"fmt"
	"math"
)

// Point is an integer point.
type Point struct {
	X, Y int
}

// Size is an integer size.
type Size struct {
	Width, Height int
}

// IsEmpty reports whether either dimension is non-positive.
func (s Size) IsEmpty() bool { return s.Width <= 0 || s.Height <= 0 }

// Area returns Width*Height, or 0 for an empty size.
func (s Size) Area() int {
	if s.IsEmpty() {
		return 0
	}
	return s.Width * s.Height
}

// Contains reports whether s is at least as large as o in both dimensions.
func (s Size) Contains(o Size) bool {
	return s.Width >= o.Width && s.Height >= o.Height
}

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// Rect is an integer rectangle in physical pixels.
type Rect struct {
	X, Y          int
	Width, Height int
}

// XYWH returns the rectangle with the given origin and size.
func XYWH(x, y, w, h int) Rect {
	return Rect{X: x, Y: y, Width: w, Height: h}
}

// RectFromSize returns a rectangle at the origin with the given size.
func RectFromSize(s Size) Rect {
	return Rect{Width: s.Width, Height: s.Height}
}

// Right returns X + Width.
func (r Rect) Right() int { return r.X + r.Width }

// Bottom returns Y + Height.
func (r Rect) Bottom() int { return r.Y + r.Height }

// Origin returns the top-left corner.
func (r Rect) Origin() Point { return Point{X: r.X, Y: r.Y} }

// Size returns the rectangle size.
func (r Rect) Size() Size { return Size{Width: r.Width, Height: r.Height} }

// IsEmpty reports whether the rectangle covers no pixels.
func (r Rect) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Contains reports whether o lies entirely inside r.
// An empty o is contained in any non-empty r.
func (r Rect) Contains(o Rect) bool {
	if o.IsEmpty() {
		return !r.IsEmpty() || r == o
	}
	return o.X >= r.X && o.Y >= r.Y && o.Right() <= r.Right() && o.Bottom() <= r.Bottom()
}

// ContainsPoint reports whether (x, y) lies inside r.
func (r Rect) ContainsPoint(x, y int) bool {
	return x >= r.X && x < r.Right() && y >= r.Y && y < r.Bottom()
}

// Intersects reports whether r and o share at least one pixel.
func (r Rect) Intersects(o Rect) bool {
	return !r.IsEmpty() && !o.IsEmpty() &&
		r.X < o.Right() && o.X < r.Right() && r.Y < o.Bottom() && o.Y < r.Bottom()
}

// Intersect returns the intersection of r and o. Disjoint rectangles
// produce the zero Rect.
func (r Rect) Intersect(o Rect) Rect {
	x0 := max(r.X, o.X)
	y0 := max(r.Y, o.Y)
	x1 := min(r.Right(), o.Right())
	y1 := min(r.Bottom(), o.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Union returns the smallest rectangle containing r and o.
// Empty rectangles do not contribute.
func (r Rect) Union(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	x0 := min(r.X, o.X)
	y0 := min(r.Y, o.Y)
	x1 := max(r.Right(), o.Right())
	y1 := max(r.Bottom(), o.Bottom())
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Offset returns r translated by (dx, dy).
func (r Rect) Offset(dx, dy int) Rect {
	r.X += dx
	r.Y += dy
	return r
}

// ToRectF converts r to a float rectangle.
func (r Rect) ToRectF() RectF {
	return RectF{X: float64(r.X), Y: float64(r.Y), Width: float64(r.Width), Height: float64(r.Height)}
}

func (r Rect) String() string {
	return fmt.Sprintf("%d,%d %dx%d", r.X, r.Y, r.Width, r.Height)
}

// RectF is a float rectangle.
type RectF struct {
	X, Y          float64
	Width, Height float64
}

// XYWHF returns the float rectangle with the given origin and size.
func XYWHF(x, y, w, h float64) RectF {
	return RectF{X: x, Y: y, Width: w, Height: h}
}

// Right returns X + Width.
func (r RectF) Right() float64 { return r.X + r.Width }

// Bottom returns Y + Height.
func (r RectF) Bottom() float64 { return r.Y + r.Height }

// IsEmpty reports whether the rectangle has no area.
func (r RectF) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// ContainsPoint reports whether p lies inside r.
func (r RectF) ContainsPoint(p PointF) bool {
	return p.X >= r.X && p.X < r.Right() && p.Y >= r.Y && p.Y < r.Bottom()
}

// Intersect returns the intersection of r and o.
func (r RectF) Intersect(o RectF) RectF {
	x0 := math.Max(r.X, o.X)
	y0 := math.Max(r.Y, o.Y)
	x1 := math.Min(r.Right(), o.Right())
	y1 := math.Min(r.Bottom(), o.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return RectF{}
	}
	return RectF{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Union returns the smallest rectangle containing r and o.
func (r RectF) Union(o RectF) RectF {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	x0 := math.Min(r.X, o.X)
	y0 := math.Min(r.Y, o.Y)
	x1 := math.Max(r.Right(), o.Right())
	y1 := math.Max(r.Bottom(), o.Bottom())
	return RectF{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Scale returns r with every coordinate multiplied by (sx, sy).
func (r RectF) Scale(sx, sy float64) RectF {
	return RectF{X: r.X * sx, Y: r.Y * sy, Width: r.Width * sx, Height: r.Height * sy}
}

// Offset returns r translated by (dx, dy).
func (r RectF) Offset(dx, dy float64) RectF {
	r.X += dx
	r.Y += dy
	return r
}

// ToEnclosingRect returns the smallest integer rectangle containing r.
func (r RectF) ToEnclosingRect() Rect {
	if r.IsEmpty() {
		return Rect{}
	}
	x0 := int(math.Floor(r.X))
	y0 := int(math.Floor(r.Y))
	x1 := int(math.Ceil(r.Right()))
	y1 := int(math.Ceil(r.Bottom()))
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// ToEnclosedRect returns the largest integer rectangle inside r.
func (r RectF) ToEnclosedRect() Rect {
	x0 := int(math.Ceil(r.X))
	y0 := int(math.Ceil(r.Y))
	x1 := int(math.Floor(r.Right()))
	y1 := int(math.Floor(r.Bottom()))
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// IsExpressibleAsRect reports whether every edge lies on an integer.
func (r RectF) IsExpressibleAsRect() bool {
	return r.X == math.Trunc(r.X) && r.Y == math.Trunc(r.Y) &&
		r.Width == math.Trunc(r.Width) && r.Height == math.Trunc(r.Height)
}

func (r RectF) String() string {
	return fmt.Sprintf("%g,%g %gx%g", r.X, r.Y, r.Width, r.Height)
}
