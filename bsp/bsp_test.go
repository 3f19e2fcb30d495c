package bsp

import (
	"math"
	"testing"

	"github.com/gogpu/compositor/geom"
)

func pts(p ...float64) []geom.Point3F {
	out := make([]geom.Point3F, 0, len(p)/3)
	for i := 0; i+2 < len(p); i += 3 {
		out = append(out, geom.Point3F{X: p[i], Y: p[i+1], Z: p[i+2]})
	}
	return out
}

// square returns a 10x10 polygon facing +z at depth z.
func square(z float64, id int) *DrawPolygon {
	return NewDrawPolygonFromPoints(nil, pts(0, 0, z, 10, 0, z, 10, 10, z, 0, 10, z), id)
}

func visitIDs(tree *Tree) []*DrawPolygon {
	var out []*DrawPolygon
	tree.Walk(func(p *DrawPolygon) { out = append(out, p) })
	return out
}

func TestNormal(t *testing.T) {
	p := square(0, 1)
	if p.Normal != (geom.Point3F{Z: 1}) {
		t.Errorf("Normal = %v, want +z", p.Normal)
	}
	rev := NewDrawPolygonFromPoints(nil, pts(0, 0, 0, 0, 10, 0, 10, 10, 0, 10, 0, 0), 2)
	if rev.Normal != (geom.Point3F{Z: -1}) {
		t.Errorf("reversed Normal = %v, want -z", rev.Normal)
	}
}

func TestSplitClassification(t *testing.T) {
	splitter := square(0, 0)
	tests := []struct {
		name string
		poly *DrawPolygon
		want Side
	}{
		{"in front", square(5, 1), SideFront},
		{"behind", square(-5, 1), SideBack},
		{"coplanar same facing", square(0.01, 1), SideCoplanarFront},
		{"coplanar opposite", NewDrawPolygonFromPoints(nil, pts(0, 0, 0, 0, 10, 0, 10, 10, 0), 1), SideCoplanarBack},
		{"touching from front", NewDrawPolygonFromPoints(nil, pts(5, 0, 0, 5, 10, 0, 5, 10, 5), 1), SideFront},
		{"crossing", NewDrawPolygonFromPoints(nil, pts(5, 0, -5, 5, 0, 5, 5, 10, 5, 5, 10, -5), 1), SideSplit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			side, _, _ := Split(splitter, tt.poly)
			if side != tt.want {
				t.Errorf("Split() = %v, want %v", side, tt.want)
			}
		})
	}
}

func TestSplitFragments(t *testing.T) {
	splitter := square(0, 0)
	poly := NewDrawPolygonFromPoints(nil, pts(5, 0, -5, 5, 0, 5, 5, 10, 5, 5, 10, -5), 7)
	_, front, back := Split(splitter, poly)
	if front == nil || back == nil {
		t.Fatal("expected two fragments")
	}
	for _, p := range front.Points {
		if p.Z < -Epsilon {
			t.Errorf("front fragment point %v behind plane", p)
		}
	}
	for _, p := range back.Points {
		if p.Z > Epsilon {
			t.Errorf("back fragment point %v in front of plane", p)
		}
	}
	if len(front.Points) != 4 || len(back.Points) != 4 {
		t.Errorf("fragment sizes = %d, %d, want 4, 4", len(front.Points), len(back.Points))
	}
	if !front.IsSplit || front.ID != 7 || front.Normal != poly.Normal {
		t.Errorf("front fragment = %+v", front)
	}
}

func TestWalkParallelPlanes(t *testing.T) {
	near := square(10, 1)
	far := square(0, 2)
	list := []*DrawPolygon{near, far}
	tree := NewTree(&list)
	if len(list) != 0 {
		t.Errorf("list not consumed: %d left", len(list))
	}

	got := visitIDs(tree)
	if len(got) != 2 || got[0] != far || got[1] != near {
		t.Errorf("walk order = %v, want far then near", ids(got))
	}
}

func TestWalkBackFacingRoot(t *testing.T) {
	// The root faces away from the viewer, so its front side is far.
	root := NewDrawPolygonFromPoints(nil, pts(0, 0, 0, 0, 10, 0, 10, 10, 0, 10, 0, 0), 1)
	near := square(5, 2)
	far := square(-5, 3)
	list := []*DrawPolygon{root, near, far}
	got := visitIDs(NewTree(&list))
	if want := []int{3, 1, 2}; !equalIDs(got, want) {
		t.Errorf("walk order = %v, want %v", ids(got), want)
	}
}

func TestWalkIntersecting(t *testing.T) {
	flat := square(0, 1)
	upright := NewDrawPolygonFromPoints(nil, pts(5, 0, -5, 5, 0, 5, 5, 10, 5, 5, 10, -5), 2)
	list := []*DrawPolygon{flat, upright}
	tree := NewTree(&list)
	if tree.Splits != 1 {
		t.Errorf("Splits = %d, want 1", tree.Splits)
	}

	got := visitIDs(tree)
	if len(got) != 3 {
		t.Fatalf("visited %d polygons, want 3", len(got))
	}
	if got[1] != flat {
		t.Errorf("flat polygon should be drawn between the fragments")
	}
	for _, p := range got[0].Points {
		if p.Z > Epsilon {
			t.Errorf("first fragment should be behind the flat polygon, has %v", p)
		}
	}
	for _, p := range got[2].Points {
		if p.Z < -Epsilon {
			t.Errorf("last fragment should be in front of the flat polygon, has %v", p)
		}
	}
}

func TestWalkCoplanarKeepsOrder(t *testing.T) {
	a, b, c := square(0, 1), square(0, 2), square(0, 3)
	list := []*DrawPolygon{a, b, c}
	got := visitIDs(NewTree(&list))
	if want := []int{1, 2, 3}; !equalIDs(got, want) {
		t.Errorf("walk order = %v, want %v", ids(got), want)
	}
}

func TestNewDrawPolygonTransforms(t *testing.T) {
	m := geom.Translate(1, 2, 3)
	p := NewDrawPolygon(nil, geom.XYWHF(0, 0, 4, 2), m, 5)
	if len(p.Points) != 4 {
		t.Fatalf("points = %d, want 4", len(p.Points))
	}
	if want := (geom.Point3F{X: 5, Y: 4, Z: 3}); p.Points[2] != want {
		t.Errorf("Points[2] = %v, want %v", p.Points[2], want)
	}
	if p.ID != 5 || p.Normal != (geom.Point3F{Z: 1}) {
		t.Errorf("polygon = %+v", p)
	}
}

func TestNewDrawPolygonClipsBehindViewer(t *testing.T) {
	// Half of the quad swings behind a viewer at depth 10.
	m := geom.Perspective(10).Mul(geom.RotateY(math.Pi / 2.5))
	p := NewDrawPolygon(nil, geom.XYWHF(-50, -5, 100, 10), m, 1)
	if !p.Drawable() {
		t.Fatalf("clipped polygon should stay drawable, got %v", p.Points)
	}
	for _, pt := range p.Points {
		if math.IsInf(pt.X, 0) || math.IsNaN(pt.X) {
			t.Errorf("non-finite point %v", pt)
		}
	}

	behind := NewDrawPolygon(nil, geom.XYWHF(0, 0, 10, 10), geom.Perspective(10).Mul(geom.Translate(0, 0, 20)), 2)
	if behind.Drawable() {
		t.Errorf("quad behind the viewer kept points %v", behind.Points)
	}
}

func TestToQuads2D(t *testing.T) {
	tests := []struct {
		name   string
		points int
		quads  int
	}{
		{"triangle", 3, 1},
		{"quad", 4, 1},
		{"pentagon", 5, 2},
		{"hexagon", 6, 3},
		{"line", 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p []geom.Point3F
			for i := range tt.points {
				a := 2 * math.Pi * float64(i) / float64(tt.points)
				p = append(p, geom.Point3F{X: math.Cos(a), Y: math.Sin(a)})
			}
			got := NewDrawPolygonFromPoints(nil, p, 1).ToQuads2D()
			if len(got) != tt.quads {
				t.Errorf("len(ToQuads2D()) = %d, want %d", len(got), tt.quads)
			}
		})
	}

	tri := NewDrawPolygonFromPoints(nil, pts(0, 0, 0, 1, 0, 0, 0, 1, 0), 1).ToQuads2D()
	if tri[0].P3 != tri[0].P4 {
		t.Errorf("triangle quad should repeat its last corner: %v", tri[0])
	}
}

func ids(ps []*DrawPolygon) []int {
	out := make([]int, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func equalIDs(ps []*DrawPolygon, want []int) bool {
	got := ids(ps)
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
