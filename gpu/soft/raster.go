package soft

import (
	"fmt"
	"math"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
)

// parallelThreshold is the pixel count above which draws are split into
// row bands.
const parallelThreshold = 64 * 64

// projection maps window pixels back to quad-local coordinates.
type projection struct {
	inv [3][3]float64

	// corners are the window-space quad corners, valid when !clipped.
	corners [4]geom.PointF
	normals [4]geom.PointF
	clipped bool
}

// newProjection builds the inverse of the homography from the unit square to
// window space. It returns false for degenerate quads.
func newProjection(m geom.Transform) (projection, bool) {
	// Local z is 0, so only columns 0, 1 and 3 and rows 0, 1 and 3 matter.
	h := [3][3]float64{
		{m.M[0][0], m.M[0][1], m.M[0][3]},
		{m.M[1][0], m.M[1][1], m.M[1][3]},
		{m.M[3][0], m.M[3][1], m.M[3][3]},
	}
	det := h[0][0]*(h[1][1]*h[2][2]-h[1][2]*h[2][1]) -
		h[0][1]*(h[1][0]*h[2][2]-h[1][2]*h[2][0]) +
		h[0][2]*(h[1][0]*h[2][1]-h[1][1]*h[2][0])
	if math.Abs(det) < 1e-12 {
		return projection{}, false
	}
	var p projection
	p.inv = [3][3]float64{
		{(h[1][1]*h[2][2] - h[1][2]*h[2][1]) / det, (h[0][2]*h[2][1] - h[0][1]*h[2][2]) / det, (h[0][1]*h[1][2] - h[0][2]*h[1][1]) / det},
		{(h[1][2]*h[2][0] - h[1][0]*h[2][2]) / det, (h[0][0]*h[2][2] - h[0][2]*h[2][0]) / det, (h[0][2]*h[1][0] - h[0][0]*h[1][2]) / det},
		{(h[1][0]*h[2][1] - h[1][1]*h[2][0]) / det, (h[0][1]*h[2][0] - h[0][0]*h[2][1]) / det, (h[0][0]*h[1][1] - h[0][1]*h[1][0]) / det},
	}

	local := [4][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	for i, c := range local {
		x := h[0][0]*c[0] + h[0][1]*c[1] + h[0][2]
		y := h[1][0]*c[0] + h[1][1]*c[1] + h[1][2]
		w := h[2][0]*c[0] + h[2][1]*c[1] + h[2][2]
		if w <= 1e-9 {
			p.clipped = true
			return p, true
		}
		p.corners[i] = geom.PointF{X: x / w, Y: y / w}
	}

	q := geom.QuadF{P1: p.corners[0], P2: p.corners[1], P3: p.corners[2], P4: p.corners[3]}
	// Positive shoelace area (y-up counter-clockwise) puts the inside on the
	// left of each edge.
	sign := 1.0
	if q.IsCounterClockwise() {
		sign = -1
	}
	for i := range 4 {
		a, b := p.corners[i], p.corners[(i+1)%4]
		e := b.Sub(a)
		l := math.Hypot(e.X, e.Y)
		if l == 0 {
			continue
		}
		p.normals[i] = geom.PointF{X: -e.Y / l * sign, Y: e.X / l * sign}
	}
	return p, true
}

// local returns the quad-local coordinates of window point (x, y).
func (p *projection) local(x, y float64) (u, v float64, ok bool) {
	a := p.inv[0][0]*x + p.inv[0][1]*y + p.inv[0][2]
	b := p.inv[1][0]*x + p.inv[1][1]*y + p.inv[1][2]
	c := p.inv[2][0]*x + p.inv[2][1]*y + p.inv[2][2]
	if c <= 0 {
		return 0, 0, false
	}
	return a / c, b / c, true
}

// edgeDistance returns the signed window-space distance from (x, y) to the
// nearest quad edge, positive inside.
func (p *projection) edgeDistance(x, y float64) float64 {
	d := math.Inf(1)
	pt := geom.PointF{X: x, Y: y}
	for i := range 4 {
		n := p.normals[i]
		if n == (geom.PointF{}) {
			continue
		}
		r := pt.Sub(p.corners[i])
		d = math.Min(d, r.X*n.X+r.Y*n.Y)
	}
	return d
}

func (p *projection) bounds() geom.Rect {
	q := geom.QuadF{P1: p.corners[0], P2: p.corners[1], P3: p.corners[2], P4: p.corners[3]}
	b := q.BoundingBox()
	// One extra pixel for antialiased edges.
	return geom.XYWHF(b.X-1, b.Y-1, b.Width+2, b.Height+2).ToEnclosingRect()
}

// Draw implements gpu.Context.
func (c *Context) Draw(call *gpu.DrawCall) error {
	if c.lost {
		return gpu.ErrContextLost
	}
	if call.Program != c.program {
		return fmt.Errorf("soft: draw with %s while %s is in use", call.Program, c.program)
	}
	if _, ok := c.programs[call.Program]; !ok {
		return fmt.Errorf("%w: program %s not created", gpu.ErrInvalidID, call.Program)
	}
	if len(call.Quads) == 0 || len(call.Quads) > gpu.MaxQuadsPerDraw {
		return fmt.Errorf("soft: draw with %d quads", len(call.Quads))
	}
	target, err := c.target()
	if err != nil {
		return err
	}

	var units [gpu.MaxTextureUnits]*texture
	for i, id := range call.Textures {
		if id == gpu.InvalidID {
			continue
		}
		t, ok := c.textures[id]
		if !ok {
			return fmt.Errorf("%w: texture %d on unit %d", gpu.ErrInvalidID, id, i)
		}
		if t == target {
			return fmt.Errorf("soft: texture %d is both sampled and rendered to", id)
		}
		units[i] = t
	}
	if err := checkUnits(call.Program, &units); err != nil {
		return err
	}

	bounds := c.drawBounds(target)
	for i := range call.Quads {
		c.rasterQuad(target, bounds, call, &call.Quads[i], &units)
	}
	c.stats.DrawCalls++
	c.stats.QuadsDrawn += len(call.Quads)
	return nil
}

// checkUnits verifies a texture is bound on every unit the program samples.
func checkUnits(key gpu.ProgramKey, units *[gpu.MaxTextureUnits]*texture) error {
	need := func(unit int) error {
		if units[unit] == nil {
			return fmt.Errorf("soft: %s needs a texture on unit %d", key, unit)
		}
		return nil
	}
	switch key.Kind {
	case gpu.ProgramTile, gpu.ProgramTexture, gpu.ProgramStreamVideo:
		return need(gpu.UnitSource)
	case gpu.ProgramRenderPass:
		if err := need(gpu.UnitSource); err != nil {
			return err
		}
		if key.Mask {
			if err := need(gpu.UnitMask); err != nil {
				return err
			}
		}
		if key.Backdrop {
			return need(gpu.UnitBackdrop)
		}
	case gpu.ProgramYUVVideo:
		for _, u := range []int{gpu.UnitSource, gpu.UnitMask, gpu.UnitBackdrop} {
			if err := need(u); err != nil {
				return err
			}
		}
		if key.Alpha {
			return need(gpu.UnitAlpha)
		}
	}
	return nil
}

func (c *Context) rasterQuad(target *texture, bounds geom.Rect, call *gpu.DrawCall, q *gpu.QuadGeometry, units *[gpu.MaxTextureUnits]*texture) {
	proj, ok := newProjection(q.Matrix)
	if !ok {
		return
	}
	area := bounds
	if !proj.clipped {
		area = area.Intersect(proj.bounds())
	}
	if area.IsEmpty() {
		return
	}

	key := call.Program
	border := key.Kind == gpu.ProgramDebugBorder
	aa := key.AA && !proj.clipped
	frag := fragmentShader{call: call, quad: q, units: units}

	rows := func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			py := float64(y) + 0.5
			for x := area.X; x < area.Right(); x++ {
				px := float64(x) + 0.5
				if call.Clip != nil && !call.Clip.Contains(geom.PointF{X: px, Y: py}) {
					continue
				}
				u, v, ok := proj.local(px, py)
				if !ok {
					continue
				}

				coverage := float32(1)
				switch {
				case border:
					if proj.clipped {
						continue
					}
					d := proj.edgeDistance(px, py)
					if d < 0 || d >= float64(call.Uniforms.BorderWidth) {
						continue
					}
				case aa:
					coverage = float32(math.Min(math.Max(proj.edgeDistance(px, py)+0.5, 0), 1))
					if coverage == 0 {
						continue
					}
				default:
					if u < 0 || u >= 1 || v < 0 || v >= 1 {
						continue
					}
				}

				src := frag.shade(float32(clampUnit(u)), float32(clampUnit(v)))
				for i := range src {
					src[i] *= coverage
				}

				var out [4]float32
				switch {
				case key.Backdrop:
					backdrop := frag.backdrop(float32(px), float32(py))
					out = blendAdvanced(key.BlendMode, src, backdrop)
				case c.blendOn:
					out = blendFixed(c.blendState, src, target.at(x, y))
				default:
					out = src
				}
				target.set(x, y, out)
			}
		}
	}

	if c.pool != nil && area.Width*area.Height >= parallelThreshold {
		c.pool.ForEachBand(area.Y, area.Bottom(), rows)
		return
	}
	rows(area.Y, area.Bottom())
}

func clampUnit(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

// fragmentShader evaluates one program at quad-local coordinates.
type fragmentShader struct {
	call  *gpu.DrawCall
	quad  *gpu.QuadGeometry
	units *[gpu.MaxTextureUnits]*texture
}

func (f *fragmentShader) texCoord(u, v float32) (float32, float32) {
	r := f.quad.TexRect
	return r[0] + u*r[2], r[1] + v*r[3]
}

func (f *fragmentShader) opacity(u, v float32) float32 {
	o := f.quad.VertexOpacity
	top := o[0] + (o[1]-o[0])*u
	bottom := o[3] + (o[2]-o[3])*u
	return top + (bottom-top)*v
}

// shade returns the premultiplied source color before coverage.
func (f *fragmentShader) shade(u, v float32) [4]float32 {
	key := f.call.Program
	uni := &f.call.Uniforms
	var c [4]float32

	switch key.Kind {
	case gpu.ProgramSolidColor, gpu.ProgramDebugBorder:
		c = uni.Color

	case gpu.ProgramTile:
		tu, tv := f.texCoord(u, v)
		c = f.units[gpu.UnitSource].sample(tu, tv, f.call.Filters[gpu.UnitSource])
		if key.Swizzle {
			c[0], c[2] = c[2], c[0]
		}

	case gpu.ProgramTexture:
		tu, tv := f.texCoord(u, v)
		c = f.units[gpu.UnitSource].sample(tu, tv, f.call.Filters[gpu.UnitSource])
		if !key.Premultiplied {
			c[0], c[1], c[2] = c[0]*c[3], c[1]*c[3], c[2]*c[3]
		}
		if key.Background {
			for i := range c {
				c[i] += uni.Color[i] * (1 - c[3])
			}
		}
		op := f.opacity(u, v)
		for i := range c {
			c[i] *= op
		}

	case gpu.ProgramRenderPass:
		tu, tv := f.texCoord(u, v)
		c = f.units[gpu.UnitSource].sample(tu, tv, f.call.Filters[gpu.UnitSource])
		if key.ColorMatrix {
			c = applyColorMatrix(uni, c)
		}
		if key.Mask {
			m := uni.MaskRect
			mask := f.units[gpu.UnitMask].sample(m[0]+u*m[2], m[1]+v*m[3], gpu.FilterLinear)
			for i := range c {
				c[i] *= mask[3]
			}
		}

	case gpu.ProgramYUVVideo:
		tu, tv := f.texCoord(u, v)
		filter := f.call.Filters[gpu.UnitSource]
		y := f.units[gpu.UnitSource].sample(tu, tv, filter)[0]
		cb := f.units[gpu.UnitMask].sample(tu, tv, filter)[0]
		cr := f.units[gpu.UnitBackdrop].sample(tu, tv, filter)[0]
		m := &uni.ColorMatrix
		a := float32(1)
		if key.Alpha {
			a = f.units[gpu.UnitAlpha].sample(tu, tv, filter)[0]
		}
		c = [4]float32{
			clamp01(m[0]*y + m[4]*cb + m[8]*cr + uni.ColorOffset[0]),
			clamp01(m[1]*y + m[5]*cb + m[9]*cr + uni.ColorOffset[1]),
			clamp01(m[2]*y + m[6]*cb + m[10]*cr + uni.ColorOffset[2]),
			a,
		}
		c[0], c[1], c[2] = c[0]*a, c[1]*a, c[2]*a

	case gpu.ProgramStreamVideo:
		tu, tv := f.texCoord(u, v)
		t := &uni.TexTransform
		w := t[3]*tu + t[7]*tv + t[15]
		if w == 0 {
			w = 1
		}
		su := (t[0]*tu + t[4]*tv + t[12]) / w
		sv := (t[1]*tu + t[5]*tv + t[13]) / w
		c = f.units[gpu.UnitSource].sample(su, sv, f.call.Filters[gpu.UnitSource])
	}

	for i := range c {
		c[i] *= uni.Alpha
	}
	return c
}

// backdrop samples the backdrop texture under window point (x, y).
func (f *fragmentShader) backdrop(x, y float32) [4]float32 {
	r := f.call.Uniforms.BackdropRect
	if r[2] <= 0 || r[3] <= 0 {
		return [4]float32{}
	}
	return f.units[gpu.UnitBackdrop].sample((x-r[0])/r[2], (y-r[1])/r[3], gpu.FilterLinear)
}

// applyColorMatrix transforms a premultiplied color through the uniform
// color matrix, which works on unpremultiplied color.
func applyColorMatrix(uni *gpu.Uniforms, c [4]float32) [4]float32 {
	if c[3] > 0 {
		c[0], c[1], c[2] = c[0]/c[3], c[1]/c[3], c[2]/c[3]
	}
	m := &uni.ColorMatrix
	var out [4]float32
	for row := range 4 {
		out[row] = clamp01(m[row]*c[0] + m[4+row]*c[1] + m[8+row]*c[2] + m[12+row]*c[3] + uni.ColorOffset[row])
	}
	out[0], out[1], out[2] = out[0]*out[3], out[1]*out[3], out[2]*out[3]
	return out
}
