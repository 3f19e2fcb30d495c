// Package bsp orders intersecting 3D-transformed quads for drawing.
//
// Quads that share a sorting context are converted to [DrawPolygon]s in
// target space. A [Tree] built from them splits polygons that straddle
// another polygon's plane, and [Tree.Walk] visits the resulting fragments
// back-to-front for a viewer looking down the -z axis.
package bsp

import (
	"math"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/quads"
)

// Epsilon is the plane distance under which points count as on the plane.
const Epsilon = 0.05

// minW keeps points strictly in front of the viewer when clipping.
const minW = 1e-6

// DrawPolygon is a convex polygon in target space produced from a quad.
type DrawPolygon struct {
	Points []geom.Point3F
	Normal geom.Point3F

	// Original is the quad the polygon was made from.
	Original *quads.DrawQuad

	// ID orders polygons of the same sorting context. Fragments of a split
	// polygon keep the ID of the polygon they came from.
	ID int

	// IsSplit is set on fragments produced by splitting.
	IsSplit bool
}

// NewDrawPolygon maps the corners of rect, in quad space, through transform.
// Parts of the quad behind the viewer are clipped away, so the polygon may
// have fewer than three points; such polygons are not drawable.
func NewDrawPolygon(q *quads.DrawQuad, rect geom.RectF, transform geom.Transform, id int) *DrawPolygon {
	corners := [4]geom.Point3F{
		{X: rect.X, Y: rect.Y},
		{X: rect.Right(), Y: rect.Y},
		{X: rect.Right(), Y: rect.Bottom()},
		{X: rect.X, Y: rect.Bottom()},
	}
	var h [4]homogeneous
	for i, c := range corners {
		p, w := transform.MapPoint3H(c)
		h[i] = homogeneous{p: p, w: w}
	}
	p := &DrawPolygon{Original: q, ID: id, Points: clipToViewer(h[:])}
	p.Normal = newellNormal(p.Points)
	return p
}

// NewDrawPolygonFromPoints builds a polygon from target-space points.
func NewDrawPolygonFromPoints(q *quads.DrawQuad, points []geom.Point3F, id int) *DrawPolygon {
	return &DrawPolygon{Original: q, ID: id, Points: points, Normal: newellNormal(points)}
}

type homogeneous struct {
	p geom.Point3F
	w float64
}

// clipToViewer clips a homogeneous polygon to w > minW and divides.
func clipToViewer(in []homogeneous) []geom.Point3F {
	out := make([]geom.Point3F, 0, len(in)+1)
	for i := range in {
		a, b := in[i], in[(i+1)%len(in)]
		if a.w > minW {
			out = append(out, a.p.Scale(1/a.w))
		}
		if (a.w > minW) != (b.w > minW) {
			t := (minW - a.w) / (b.w - a.w)
			p := a.p.Lerp(b.p, t)
			w := a.w + (b.w-a.w)*t
			out = append(out, p.Scale(1/w))
		}
	}
	return out
}

// newellNormal returns the unit normal of a planar polygon. Degenerate
// polygons get +z.
func newellNormal(pts []geom.Point3F) geom.Point3F {
	var n geom.Point3F
	for i := range pts {
		a, b := pts[i], pts[(i+1)%len(pts)]
		n.X += (a.Y - b.Y) * (a.Z + b.Z)
		n.Y += (a.Z - b.Z) * (a.X + b.X)
		n.Z += (a.X - b.X) * (a.Y + b.Y)
	}
	l := n.Length()
	if l < 1e-12 {
		return geom.Point3F{Z: 1}
	}
	return geom.Point3F{X: n.X / l, Y: n.Y / l, Z: n.Z / l}
}

// SignedDistance returns the distance of p from the polygon's plane,
// positive on the side the normal points to.
func (p *DrawPolygon) SignedDistance(pt geom.Point3F) float64 {
	return pt.Sub(p.Points[0]).Dot(p.Normal)
}

// Drawable reports whether the polygon has an area to draw.
func (p *DrawPolygon) Drawable() bool {
	return len(p.Points) > 2
}

// ToQuads2D fans the polygon into quads in the target's xy plane. Odd
// triangles become quads with a repeated last corner.
func (p *DrawPolygon) ToQuads2D() []geom.QuadF {
	if !p.Drawable() {
		return nil
	}
	first := p.Points[0].XY()
	var out []geom.QuadF
	for offset := 1; offset < len(p.Points)-1; {
		op1 := offset + 1
		op2 := offset + 2
		if op2 >= len(p.Points) {
			op2 = op1
		}
		out = append(out, geom.QuadF{
			P1: first,
			P2: p.Points[offset].XY(),
			P3: p.Points[op1].XY(),
			P4: p.Points[op2].XY(),
		})
		offset = op2
	}
	return out
}

// Side is where a polygon lies relative to a splitting plane.
type Side uint8

// Polygon classifications.
const (
	SideFront Side = iota
	SideBack
	SideCoplanarFront
	SideCoplanarBack
	SideSplit
)

// String returns the classification name.
func (s Side) String() string {
	switch s {
	case SideFront:
		return "Front"
	case SideBack:
		return "Back"
	case SideCoplanarFront:
		return "CoplanarFront"
	case SideCoplanarBack:
		return "CoplanarBack"
	case SideSplit:
		return "Split"
	}
	return "Side(?)"
}

// Split classifies poly against splitter's plane. For SideSplit, front and
// back hold the fragments on either side; otherwise both are nil. A
// fragment with fewer than three points is returned as nil.
func Split(splitter, poly *DrawPolygon) (side Side, front, back *DrawPolygon) {
	dist := make([]float64, len(poly.Points))
	var pos, neg bool
	for i, pt := range poly.Points {
		d := splitter.SignedDistance(pt)
		dist[i] = d
		if d > Epsilon {
			pos = true
		} else if d < -Epsilon {
			neg = true
		}
	}

	switch {
	case !pos && !neg:
		if splitter.Normal.Dot(poly.Normal) > 0 {
			return SideCoplanarFront, nil, nil
		}
		return SideCoplanarBack, nil, nil
	case !neg:
		return SideFront, nil, nil
	case !pos:
		return SideBack, nil, nil
	}

	var fpts, bpts []geom.Point3F
	n := len(poly.Points)
	for i := range n {
		a, b := poly.Points[i], poly.Points[(i+1)%n]
		da, db := dist[i], dist[(i+1)%n]
		if da >= -Epsilon {
			fpts = append(fpts, a)
		}
		if da <= Epsilon {
			bpts = append(bpts, a)
		}
		if (da > Epsilon && db < -Epsilon) || (da < -Epsilon && db > Epsilon) {
			x := a.Lerp(b, da/(da-db))
			fpts = append(fpts, x)
			bpts = append(bpts, x)
		}
	}
	fragment := func(pts []geom.Point3F) *DrawPolygon {
		if len(pts) < 3 {
			return nil
		}
		return &DrawPolygon{Points: pts, Normal: poly.Normal, Original: poly.Original, ID: poly.ID, IsSplit: true}
	}
	return SideSplit, fragment(fpts), fragment(bpts)
}

// facesViewer reports whether the viewer, looking down -z from +z, is on
// the normal's side of the polygon.
func (p *DrawPolygon) facesViewer() bool {
	return p.Normal.Z > 0 && !math.IsNaN(p.Normal.Z)
}
