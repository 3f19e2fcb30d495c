package geom

import "math"

// Transform is a 4x4 matrix acting on column vectors, stored row-major:
//
//	| m00 m01 m02 m03 |   | x |
//	| m10 m11 m12 m13 | * | y |
//	| m20 m21 m22 m23 |   | z |
//	| m30 m31 m32 m33 |   | 1 |
//
// The zero value is not the identity; use Identity.
type Transform struct {
	M [4][4]float64
}

// Identity returns the identity transform.
func Identity() Transform {
	var t Transform
	for i := range 4 {
		t.M[i][i] = 1
	}
	return t
}

// Translate returns a translation by (x, y, z).
func Translate(x, y, z float64) Transform {
	t := Identity()
	t.M[0][3] = x
	t.M[1][3] = y
	t.M[2][3] = z
	return t
}

// Scale returns a scale by (x, y, z).
func Scale(x, y, z float64) Transform {
	t := Identity()
	t.M[0][0] = x
	t.M[1][1] = y
	t.M[2][2] = z
	return t
}

// RotateZ returns a rotation about the Z axis (angle in radians).
func RotateZ(angle float64) Transform {
	c, s := math.Cos(angle), math.Sin(angle)
	t := Identity()
	t.M[0][0], t.M[0][1] = c, -s
	t.M[1][0], t.M[1][1] = s, c
	return t
}

// RotateX returns a rotation about the X axis (angle in radians).
func RotateX(angle float64) Transform {
	c, s := math.Cos(angle), math.Sin(angle)
	t := Identity()
	t.M[1][1], t.M[1][2] = c, -s
	t.M[2][1], t.M[2][2] = s, c
	return t
}

// RotateY returns a rotation about the Y axis (angle in radians).
func RotateY(angle float64) Transform {
	c, s := math.Cos(angle), math.Sin(angle)
	t := Identity()
	t.M[0][0], t.M[0][2] = c, s
	t.M[2][0], t.M[2][2] = -s, c
	return t
}

// Perspective returns the CSS perspective(depth) transform.
// A non-positive depth yields the identity.
func Perspective(depth float64) Transform {
	t := Identity()
	if depth > 0 {
		t.M[3][2] = -1 / depth
	}
	return t
}

// Mul returns t * o: o is applied first, then t.
func (t Transform) Mul(o Transform) Transform {
	var r Transform
	for i := range 4 {
		for j := range 4 {
			var sum float64
			for k := range 4 {
				sum += t.M[i][k] * o.M[k][j]
			}
			r.M[i][j] = sum
		}
	}
	return r
}

// IsIdentity reports whether t is exactly the identity.
func (t Transform) IsIdentity() bool { return t == Identity() }

// IsIdentityOrTranslation reports whether t only translates.
func (t Transform) IsIdentityOrTranslation() bool {
	u := t
	u.M[0][3], u.M[1][3], u.M[2][3] = 0, 0, 0
	return u.IsIdentity()
}

// IsIdentityOrIntegerTranslation reports whether t only translates by
// whole pixels.
func (t Transform) IsIdentityOrIntegerTranslation() bool {
	if !t.IsIdentityOrTranslation() {
		return false
	}
	return t.M[0][3] == math.Trunc(t.M[0][3]) && t.M[1][3] == math.Trunc(t.M[1][3])
}

// IsFlat reports whether t keeps z = 0 points on z = 0 and ignores their z.
func (t Transform) IsFlat() bool {
	return t.M[2][0] == 0 && t.M[2][1] == 0 && t.M[2][3] == 0 &&
		t.M[0][2] == 0 && t.M[1][2] == 0 && t.M[3][2] == 0 && t.M[2][2] == 1
}

// HasPerspective reports whether the bottom row is not (0, 0, 0, 1).
func (t Transform) HasPerspective() bool {
	return t.M[3][0] != 0 || t.M[3][1] != 0 || t.M[3][2] != 0 || t.M[3][3] != 1
}

// Preserves2DAxisAlignment reports whether t maps axis-aligned rectangles
// in the z = 0 plane to axis-aligned rectangles.
func (t Transform) Preserves2DAxisAlignment() bool {
	if t.M[3][0] != 0 || t.M[3][1] != 0 {
		return false
	}
	// Each of x and y must feed exactly one output axis.
	var xOut, yOut int
	if t.M[0][0] != 0 {
		xOut++
	}
	if t.M[1][0] != 0 {
		xOut++
	}
	if t.M[0][1] != 0 {
		yOut++
	}
	if t.M[1][1] != 0 {
		yOut++
	}
	if xOut > 1 || yOut > 1 {
		return false
	}
	return (t.M[0][0] != 0 && t.M[1][1] != 0) || (t.M[0][1] != 0 && t.M[1][0] != 0)
}

// Determinant returns the 4x4 determinant.
func (t Transform) Determinant() float64 {
	_, det := t.adjugate()
	return det
}

// IsInvertible reports whether t has a non-zero determinant.
func (t Transform) IsInvertible() bool {
	det := t.Determinant()
	return det != 0 && !math.IsNaN(det) && !math.IsInf(det, 0)
}

// Invert returns the inverse of t and whether it exists.
func (t Transform) Invert() (Transform, bool) {
	adj, det := t.adjugate()
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return Identity(), false
	}
	inv := 1 / det
	for i := range 4 {
		for j := range 4 {
			adj.M[i][j] *= inv
		}
	}
	return adj, true
}

// adjugate returns the adjugate matrix and the determinant using the
// 2x2 sub-determinant expansion.
func (t Transform) adjugate() (Transform, float64) {
	m := t.M
	s0 := m[0][0]*m[1][1] - m[1][0]*m[0][1]
	s1 := m[0][0]*m[1][2] - m[1][0]*m[0][2]
	s2 := m[0][0]*m[1][3] - m[1][0]*m[0][3]
	s3 := m[0][1]*m[1][2] - m[1][1]*m[0][2]
	s4 := m[0][1]*m[1][3] - m[1][1]*m[0][3]
	s5 := m[0][2]*m[1][3] - m[1][2]*m[0][3]

	c5 := m[2][2]*m[3][3] - m[3][2]*m[2][3]
	c4 := m[2][1]*m[3][3] - m[3][1]*m[2][3]
	c3 := m[2][1]*m[3][2] - m[3][1]*m[2][2]
	c2 := m[2][0]*m[3][3] - m[3][0]*m[2][3]
	c1 := m[2][0]*m[3][2] - m[3][0]*m[2][2]
	c0 := m[2][0]*m[3][1] - m[3][0]*m[2][1]

	det := s0*c5 - s1*c4 + s2*c3 + s3*c2 - s4*c1 + s5*c0

	var a Transform
	a.M[0][0] = m[1][1]*c5 - m[1][2]*c4 + m[1][3]*c3
	a.M[0][1] = -m[0][1]*c5 + m[0][2]*c4 - m[0][3]*c3
	a.M[0][2] = m[3][1]*s5 - m[3][2]*s4 + m[3][3]*s3
	a.M[0][3] = -m[2][1]*s5 + m[2][2]*s4 - m[2][3]*s3

	a.M[1][0] = -m[1][0]*c5 + m[1][2]*c2 - m[1][3]*c1
	a.M[1][1] = m[0][0]*c5 - m[0][2]*c2 + m[0][3]*c1
	a.M[1][2] = -m[3][0]*s5 + m[3][2]*s2 - m[3][3]*s1
	a.M[1][3] = m[2][0]*s5 - m[2][2]*s2 + m[2][3]*s1

	a.M[2][0] = m[1][0]*c4 - m[1][1]*c2 + m[1][3]*c0
	a.M[2][1] = -m[0][0]*c4 + m[0][1]*c2 - m[0][3]*c0
	a.M[2][2] = m[3][0]*s4 - m[3][1]*s2 + m[3][3]*s0
	a.M[2][3] = -m[2][0]*s4 + m[2][1]*s2 - m[2][3]*s0

	a.M[3][0] = -m[1][0]*c3 + m[1][1]*c1 - m[1][2]*c0
	a.M[3][1] = m[0][0]*c3 - m[0][1]*c1 + m[0][2]*c0
	a.M[3][2] = -m[3][0]*s3 + m[3][1]*s1 - m[3][2]*s0
	a.M[3][3] = m[2][0]*s3 - m[2][1]*s1 + m[2][2]*s0

	return a, det
}

// MapPoint3H maps p and returns the homogeneous result before division.
func (t Transform) MapPoint3H(p Point3F) (Point3F, float64) {
	m := &t.M
	x := m[0][0]*p.X + m[0][1]*p.Y + m[0][2]*p.Z + m[0][3]
	y := m[1][0]*p.X + m[1][1]*p.Y + m[1][2]*p.Z + m[1][3]
	z := m[2][0]*p.X + m[2][1]*p.Y + m[2][2]*p.Z + m[2][3]
	w := m[3][0]*p.X + m[3][1]*p.Y + m[3][2]*p.Z + m[3][3]
	return Point3F{X: x, Y: y, Z: z}, w
}

// MapPoint3 maps p and divides by w. A zero w returns the undivided point.
func (t Transform) MapPoint3(p Point3F) Point3F {
	q, w := t.MapPoint3H(p)
	if w == 0 || w == 1 {
		return q
	}
	return q.Scale(1 / w)
}

// MapPoint maps a point in the z = 0 plane and drops z.
func (t Transform) MapPoint(p PointF) PointF {
	return t.MapPoint3(Point3F{X: p.X, Y: p.Y}).XY()
}

// MapQuad maps each corner of q. clipped is true when any corner lands
// behind the viewer (w <= 0), in which case the result is not meaningful.
func (t Transform) MapQuad(q QuadF) (out QuadF, clipped bool) {
	pts := q.Points()
	var res [4]PointF
	for i, p := range pts {
		h, w := t.MapPoint3H(Point3F{X: p.X, Y: p.Y})
		if w <= 0 {
			clipped = true
			w = 1
		}
		res[i] = PointF{X: h.X / w, Y: h.Y / w}
	}
	return QuadF{P1: res[0], P2: res[1], P3: res[2], P4: res[3]}, clipped
}

// MapRect returns the bounding box of r mapped through t.
func (t Transform) MapRect(r RectF) RectF {
	if t.IsIdentityOrTranslation() {
		return r.Offset(t.M[0][3], t.M[1][3])
	}
	q, _ := t.MapQuad(QuadFromRect(r))
	return q.BoundingBox()
}

// ProjectPoint casts a ray along z through p in t's output space and
// returns where it meets the z = 0 plane of t's input space, given t is the
// inverse of the layer-to-target transform. clipped is true when the plane
// is edge-on or the hit lies behind the viewer.
func (t Transform) ProjectPoint(p PointF) (PointF, bool) {
	m := &t.M
	if m[2][2] == 0 {
		return PointF{}, true
	}
	z := -(m[2][0]*p.X + m[2][1]*p.Y + m[2][3]) / m[2][2]
	h, w := t.MapPoint3H(Point3F{X: p.X, Y: p.Y, Z: z})
	if w <= 0 {
		return PointF{}, true
	}
	return PointF{X: h.X / w, Y: h.Y / w}, false
}

// Float32ColumnMajor returns the matrix in the column-major float32 layout
// used by shader uniforms.
func (t Transform) Float32ColumnMajor() [16]float32 {
	var out [16]float32
	for col := range 4 {
		for row := range 4 {
			out[col*4+row] = float32(t.M[row][col])
		}
	}
	return out
}

// IsBackFaceVisible reports whether the back of the z = 0 plane faces the
// viewer after t is applied.
func (t Transform) IsBackFaceVisible() bool {
	inv, ok := t.Invert()
	if !ok {
		return false
	}
	// The plane normal transforms by the inverse transpose.
	return inv.M[2][2] < 0
}
