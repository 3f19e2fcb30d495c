package renderer

import (
	"math"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
)

// antialiasingEpsilon is how far from a pixel boundary an axis-aligned edge
// may lie and still be drawn without antialiasing.
const antialiasingEpsilon = 1.0 / 1024

// aaInflation is how far antialiased edges are pushed out, in window
// pixels, so the ramp has room to fade.
const aaInflation = 1.0

// interiorEdgeExtension is how far edges shared with neighboring quads are
// pushed out before the clip region cuts them back sharply.
const interiorEdgeExtension = 2.0

// flatten drops the z output of t, turning a 3D transform into the 2D
// projection the rasterizer needs.
func flatten(t geom.Transform) geom.Transform {
	t.M[2][0] = 0
	t.M[2][1] = 0
	t.M[2][3] = 0
	t.M[0][2] = 0
	t.M[1][2] = 0
	t.M[3][2] = 0
	t.M[2][2] = 1
	return t
}

// rectTransform maps the unit square onto r.
func rectTransform(r geom.RectF) geom.Transform {
	return geom.Translate(r.X, r.Y, 0).Mul(geom.Scale(r.Width, r.Height, 1))
}

func isNearInteger(v, eps float64) bool {
	return math.Abs(v-math.Round(v)) < eps
}

// isNearestRectWithinDistance reports whether every edge of r is within
// eps of a pixel boundary.
func isNearestRectWithinDistance(r geom.RectF, eps float64) bool {
	return isNearInteger(r.X, eps) && isNearInteger(r.Y, eps) &&
		isNearInteger(r.Right(), eps) && isNearInteger(r.Bottom(), eps)
}

// shouldAntialias decides whether a quad at device position q needs
// antialiased edges. Quads clipped by the viewer plane are drawn without.
func shouldAntialias(q geom.QuadF, clipped, force bool) bool {
	if clipped {
		return false
	}
	bbox := q.BoundingBox()
	if bbox.IsEmpty() {
		return false
	}
	if force {
		return true
	}
	return !(q.IsRectilinear(antialiasingEpsilon) && isNearestRectWithinDistance(bbox, antialiasingEpsilon))
}

// inflateEdges pushes the selected edges of the convex quad q outward by d.
// Edges are numbered from P1: top, right, bottom, left for a rectangle.
func inflateEdges(q geom.QuadF, edges [4]bool, d float64) geom.QuadF {
	pts := q.Points()
	var c geom.PointF
	for _, p := range pts {
		c = c.Add(p)
	}
	c = c.Scale(0.25)

	type line struct{ p, dir geom.PointF }
	var lines [4]line
	for i := range 4 {
		a, b := pts[i], pts[(i+1)%4]
		dir := b.Sub(a)
		n := geom.PointF{X: dir.Y, Y: -dir.X}
		if l := math.Hypot(n.X, n.Y); l > 0 {
			n = n.Scale(1 / l)
		}
		if n.X*(c.X-a.X)+n.Y*(c.Y-a.Y) > 0 {
			n = n.Scale(-1)
		}
		if edges[i] {
			a = a.Add(n.Scale(d))
		}
		lines[i] = line{p: a, dir: dir}
	}

	var out [4]geom.PointF
	for i := range 4 {
		prev, cur := lines[(i+3)%4], lines[i]
		denom := prev.dir.Cross(cur.dir)
		if math.Abs(denom) < 1e-9 {
			out[i] = cur.p
			continue
		}
		t := cur.p.Sub(prev.p).Cross(cur.dir) / denom
		out[i] = prev.p.Add(prev.dir.Scale(t))
	}
	return geom.QuadF{P1: out[0], P2: out[1], P3: out[2], P4: out[3]}
}

// layerEdges reports which edges of rect lie on the boundary of a layer of
// the given bounds. An unknown layer size puts every edge on the boundary.
func layerEdges(rect geom.RectF, bounds geom.Size) [4]bool {
	if bounds.IsEmpty() {
		return [4]bool{true, true, true, true}
	}
	return [4]bool{
		rect.Y <= 0,
		rect.Right() >= float64(bounds.Width),
		rect.Bottom() >= float64(bounds.Height),
		rect.X <= 0,
	}
}

// quadLayout is where and how one quad is rasterized.
type quadLayout struct {
	// rect is the part of the quad that is drawn, in quad space. It may
	// extend past the quad when interior edges are pushed out.
	rect geom.RectF

	// matrix maps the local unit square of rect to window space.
	matrix geom.Transform

	// clip restricts drawing in window space.
	clip *geom.QuadF

	aa bool
}

// layoutParams are the inputs of layoutQuad.
type layoutParams struct {
	// toWindow maps quad space to window space.
	toWindow geom.Transform

	rect        geom.RectF
	layerBounds geom.Size

	// clipRegion is a target-space region the quad is restricted to, used
	// for fragments of split polygons.
	clipRegion *geom.QuadF

	// targetToWindow maps clipRegion to window space.
	targetToWindow geom.Transform

	allowAA bool
	forceAA bool

	// wholeLayer antialiases every edge regardless of the layer bounds.
	wholeLayer bool
}

// layoutQuad computes the draw geometry of a quad. ok is false when the
// quad collapses to nothing in window space.
func layoutQuad(p layoutParams) (quadLayout, bool) {
	toWindow := flatten(p.toWindow)
	if !toWindow.IsInvertible() {
		return quadLayout{}, false
	}
	l := quadLayout{rect: p.rect}

	if p.clipRegion != nil {
		clip, _ := flatten(p.targetToWindow).MapQuad(*p.clipRegion)
		l.clip = &clip
		l.matrix = toWindow.Mul(rectTransform(l.rect))
		return l, true
	}

	device, clipped := toWindow.MapQuad(geom.QuadFromRect(p.rect))
	l.aa = p.allowAA && shouldAntialias(device, clipped, p.forceAA)
	if l.aa && !p.wholeLayer {
		edges := layerEdges(p.rect, p.layerBounds)
		if edges != [4]bool{true, true, true, true} {
			l.rect = extendInteriorEdges(p.rect, device, edges)
			clip := inflateEdges(device, edges, aaInflation)
			l.clip = &clip
		}
	}
	l.matrix = toWindow.Mul(rectTransform(l.rect))
	return l, true
}

// extendInteriorEdges grows rect on the sides that are not layer edges by
// interiorEdgeExtension device pixels.
func extendInteriorEdges(rect geom.RectF, device geom.QuadF, edges [4]bool) geom.RectF {
	top := device.P2.Sub(device.P1)
	left := device.P4.Sub(device.P1)
	var dx, dy float64
	if l := math.Hypot(top.X, top.Y); l > 0 {
		dx = interiorEdgeExtension * rect.Width / l
	}
	if l := math.Hypot(left.X, left.Y); l > 0 {
		dy = interiorEdgeExtension * rect.Height / l
	}
	if !edges[0] {
		rect.Y -= dy
		rect.Height += dy
	}
	if !edges[1] {
		rect.Width += dx
	}
	if !edges[2] {
		rect.Height += dy
	}
	if !edges[3] {
		rect.X -= dx
		rect.Width += dx
	}
	return rect
}

// texRectFor maps the drawn rect d onto texture coordinates, given that
// rect r maps to the texture rect t.
func texRectFor(t [4]float32, r, d geom.RectF) [4]float32 {
	if r.Width == 0 || r.Height == 0 {
		return t
	}
	sx := float64(t[2]) / r.Width
	sy := float64(t[3]) / r.Height
	return [4]float32{
		t[0] + float32((d.X-r.X)*sx),
		t[1] + float32((d.Y-r.Y)*sy),
		float32(d.Width * sx),
		float32(d.Height * sy),
	}
}

// geometry returns the gpu geometry of a laid out quad.
func (l quadLayout) geometry(texRect [4]float32, opacity [4]float32) gpu.QuadGeometry {
	return gpu.QuadGeometry{Matrix: l.matrix, TexRect: texRect, VertexOpacity: opacity}
}

func uniformOpacity(a float32) [4]float32 {
	return [4]float32{a, a, a, a}
}

func rectToArray(r geom.RectF) [4]float32 {
	return [4]float32{float32(r.X), float32(r.Y), float32(r.Width), float32(r.Height)}
}
