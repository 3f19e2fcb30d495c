package renderer

import (
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/quads"
	"github.com/gogpu/compositor/resource"
)

// alphaEpsilon is the opacity below which blended quads are not drawn.
const alphaEpsilon = 1.0 / 1024

// doDrawQuad draws one quad into the current target. clipRegion, when set,
// restricts the quad to a target-space fragment of a split polygon.
func (r *Renderer) doDrawQuad(q *quads.DrawQuad, clipRegion *geom.QuadF) {
	if q.VisibleRect.IsEmpty() {
		r.stats.QuadsSkipped++
		return
	}
	switch p := q.Payload.(type) {
	case *quads.TextureQuad:
		r.enqueueTextureQuad(q, p, clipRegion)
		return
	case nil:
		r.contractViolation("quad without payload")
		return
	}

	r.flushTextureBatch()
	switch p := q.Payload.(type) {
	case *quads.SolidColorQuad:
		r.drawSolidColorQuad(q, p, clipRegion)
	case *quads.TileQuad:
		r.drawTileQuad(q, p, clipRegion)
	case *quads.RenderPassQuad:
		r.drawRenderPassQuad(q, p, clipRegion)
	case *quads.YUVVideoQuad:
		r.drawYUVVideoQuad(q, p, clipRegion)
	case *quads.StreamVideoQuad:
		r.drawStreamVideoQuad(q, p, clipRegion)
	case *quads.IOSurfaceQuad:
		r.drawIOSurfaceQuad(q, p, clipRegion)
	case *quads.DebugBorderQuad:
		r.drawDebugBorderQuad(q, p)
	case *quads.PictureQuad, *quads.SurfaceQuad:
		// Pictures are rasterized into tiles and surfaces are resolved into
		// render passes before they reach the renderer.
		r.contractViolation("undrawable material", "material", q.Material().String())
	case *quads.TextureQuad:
		// Batched above.
	}
}

// baseLayout returns the layout parameters common to every material.
func (r *Renderer) baseLayout(q *quads.DrawQuad, rect geom.RectF, clipRegion *geom.QuadF) layoutParams {
	sqs := q.SharedState
	return layoutParams{
		toWindow:       r.frame.windowMatrix.Mul(sqs.QuadToTargetTransform),
		rect:           rect,
		layerBounds:    sqs.QuadLayerBounds,
		clipRegion:     clipRegion,
		targetToWindow: r.frame.windowMatrix,
	}
}

func premultiply(c gputypes.Color) [4]float32 {
	a := float32(c.A)
	return [4]float32{float32(c.R) * a, float32(c.G) * a, float32(c.B) * a, a}
}

// lockTextures takes read locks on ids and returns their textures. On
// failure nothing stays locked.
func (r *Renderer) lockTextures(ids ...resource.ID) ([]gpu.TextureID, func(), bool) {
	textures := make([]gpu.TextureID, 0, len(ids))
	locked := make([]resource.ID, 0, len(ids))
	unlock := func() {
		for _, id := range locked {
			r.provider.UnlockForRead(id)
		}
	}
	for _, id := range ids {
		tex, err := r.provider.LockForRead(id)
		if err != nil {
			unlock()
			r.contractViolation("quad samples an unusable resource", "resource", id, "err", err)
			return nil, func() {}, false
		}
		locked = append(locked, id)
		textures = append(textures, tex)
	}
	return textures, unlock, true
}

func (r *Renderer) drawSolidColorQuad(q *quads.DrawQuad, p *quads.SolidColorQuad, clipRegion *geom.QuadF) {
	sqs := q.SharedState
	alpha := float32(p.Color.A) * sqs.Opacity
	if alpha < alphaEpsilon && q.ShouldDrawWithBlending() {
		return
	}
	params := r.baseLayout(q, q.VisibleRect.ToRectF(), clipRegion)
	params.allowAA = r.settings.AllowAntialiasing && !p.ForceAntiAliasingOff
	l, ok := layoutQuad(params)
	if !ok {
		return
	}
	r.state.setBlend(q.ShouldDrawWithBlending() || l.aa, gputypes.BlendStatePremultiplied())
	call := &gpu.DrawCall{
		Program: gpu.ProgramKey{Kind: gpu.ProgramSolidColor, AA: l.aa},
		Quads:   []gpu.QuadGeometry{l.geometry(gpu.UnitTexRect, gpu.OpaqueVertices)},
		Clip:    l.clip,
	}
	call.Uniforms.Color = premultiply(p.Color)
	call.Uniforms.Alpha = sqs.Opacity
	r.draw(call)
}

func (r *Renderer) drawTileQuad(q *quads.DrawQuad, p *quads.TileQuad, clipRegion *geom.QuadF) {
	sqs := q.SharedState
	if p.TextureSize.IsEmpty() || p.TexCoordRect.IsEmpty() {
		r.contractViolation("tile quad without texture coordinates")
		return
	}
	params := r.baseLayout(q, q.VisibleRect.ToRectF(), clipRegion)
	params.allowAA = r.settings.AllowAntialiasing
	params.forceAA = r.settings.ForceAntialiasing
	l, ok := layoutQuad(params)
	if !ok {
		return
	}
	textures, unlock, ok := r.lockTextures(p.ResourceID)
	if !ok {
		return
	}
	defer unlock()

	tc := p.TexCoordRect
	w, h := float64(p.TextureSize.Width), float64(p.TextureSize.Height)
	texRect := texRectFor([4]float32{float32(tc.X / w), float32(tc.Y / h), float32(tc.Width / w), float32(tc.Height / h)}, q.Rect.ToRectF(), l.rect)

	rect := q.Rect.ToRectF()
	scaled := math.Abs(rect.Width-tc.Width) > antialiasingEpsilon || math.Abs(rect.Height-tc.Height) > antialiasingEpsilon
	nearest := (!scaled && sqs.QuadToTargetTransform.IsIdentityOrIntegerTranslation()) || p.Nearest || r.frame.disableImageFiltering
	filter := gpu.FilterLinear
	if nearest {
		filter = gpu.FilterNearest
	}

	r.state.setBlend(q.ShouldDrawWithBlending() || l.aa, gputypes.BlendStatePremultiplied())
	call := &gpu.DrawCall{
		Program: gpu.ProgramKey{Kind: gpu.ProgramTile, AA: l.aa, Swizzle: p.Swizzle},
		Quads:   []gpu.QuadGeometry{l.geometry(texRect, gpu.OpaqueVertices)},
		Clip:    l.clip,
	}
	call.Textures[gpu.UnitSource] = textures[0]
	call.Filters[gpu.UnitSource] = filter
	call.Uniforms.Alpha = sqs.Opacity
	r.draw(call)
}

// YUV to RGB conversion matrices, column-major, and the offsets added to
// YUV before conversion.
var (
	yuvBT601 = [9]float32{1.164, 1.164, 1.164, 0, -.391, 2.018, 1.596, -.813, 0}
	yuvJPEG  = [9]float32{1, 1, 1, 0, -.34414, 1.772, 1.402, -.71414, 0}
	yuvBT709 = [9]float32{1.164, 1.164, 1.164, 0, -0.213, 2.112, 1.793, -0.533, 0}

	yuvAdjustConstrained = [3]float32{-0.0625, -0.5, -0.5}
	yuvAdjustFull        = [3]float32{0, -0.5, -0.5}
)

// yuvUniforms returns the conversion for space as a 4x4 color matrix with
// the range adjustment folded into the offset.
func yuvUniforms(space quads.ColorSpace) (m16 [16]float32, offset [4]float32) {
	m, adjust := yuvBT601, yuvAdjustConstrained
	switch space {
	case quads.ColorSpaceJPEG:
		m, adjust = yuvJPEG, yuvAdjustFull
	case quads.ColorSpaceBT709:
		m = yuvBT709
	}
	for col := range 3 {
		for row := range 3 {
			m16[col*4+row] = m[col*3+row]
			offset[row] += m[col*3+row] * adjust[col]
		}
	}
	m16[15] = 1
	offset[3] = 0
	return m16, offset
}

func (r *Renderer) drawYUVVideoQuad(q *quads.DrawQuad, p *quads.YUVVideoQuad, clipRegion *geom.QuadF) {
	sqs := q.SharedState
	params := r.baseLayout(q, q.VisibleRect.ToRectF(), clipRegion)
	params.allowAA = r.settings.AllowAntialiasing
	l, ok := layoutQuad(params)
	if !ok {
		return
	}
	planes := []resource.ID{p.YPlane, p.UPlane, p.VPlane}
	hasAlpha := p.APlane != resource.InvalidID
	if hasAlpha {
		planes = append(planes, p.APlane)
	}
	textures, unlock, ok := r.lockTextures(planes...)
	if !ok {
		return
	}
	defer unlock()

	r.state.setBlend(q.ShouldDrawWithBlending() || l.aa, gputypes.BlendStatePremultiplied())
	texRect := texRectFor(rectToArray(p.TexCoordRect), q.Rect.ToRectF(), l.rect)
	call := &gpu.DrawCall{
		Program: gpu.ProgramKey{Kind: gpu.ProgramYUVVideo, AA: l.aa, Alpha: hasAlpha},
		Quads:   []gpu.QuadGeometry{l.geometry(texRect, gpu.OpaqueVertices)},
		Clip:    l.clip,
	}
	for i, tex := range textures {
		call.Textures[i] = tex
	}
	call.Uniforms.ColorMatrix, call.Uniforms.ColorOffset = yuvUniforms(p.ColorSpace)
	call.Uniforms.Alpha = sqs.Opacity
	r.draw(call)
}

func (r *Renderer) drawStreamVideoQuad(q *quads.DrawQuad, p *quads.StreamVideoQuad, clipRegion *geom.QuadF) {
	sqs := q.SharedState
	params := r.baseLayout(q, q.VisibleRect.ToRectF(), clipRegion)
	params.allowAA = r.settings.AllowAntialiasing
	l, ok := layoutQuad(params)
	if !ok {
		return
	}
	textures, unlock, ok := r.lockTextures(p.ResourceID)
	if !ok {
		return
	}
	defer unlock()

	r.state.setBlend(q.ShouldDrawWithBlending() || l.aa, gputypes.BlendStatePremultiplied())
	call := &gpu.DrawCall{
		Program: gpu.ProgramKey{Kind: gpu.ProgramStreamVideo, AA: l.aa},
		Quads:   []gpu.QuadGeometry{l.geometry(texRectFor(gpu.UnitTexRect, q.Rect.ToRectF(), l.rect), gpu.OpaqueVertices)},
		Clip:    l.clip,
	}
	call.Textures[gpu.UnitSource] = textures[0]
	call.Uniforms.TexTransform = p.Matrix.Float32ColumnMajor()
	call.Uniforms.Alpha = sqs.Opacity
	r.draw(call)
}

func (r *Renderer) drawIOSurfaceQuad(q *quads.DrawQuad, p *quads.IOSurfaceQuad, clipRegion *geom.QuadF) {
	sqs := q.SharedState
	l, ok := layoutQuad(r.baseLayout(q, q.VisibleRect.ToRectF(), clipRegion))
	if !ok {
		return
	}
	textures, unlock, ok := r.lockTextures(p.ResourceID)
	if !ok {
		return
	}
	defer unlock()

	uv := gpu.UnitTexRect
	if p.Orientation == quads.OrientationFlipped {
		uv = [4]float32{0, 1, 1, -1}
	}
	r.state.setBlend(q.ShouldDrawWithBlending(), gputypes.BlendStatePremultiplied())
	call := &gpu.DrawCall{
		Program: gpu.ProgramKey{Kind: gpu.ProgramTexture, Premultiplied: true},
		Quads:   []gpu.QuadGeometry{l.geometry(texRectFor(uv, q.Rect.ToRectF(), l.rect), gpu.OpaqueVertices)},
		Clip:    l.clip,
	}
	call.Textures[gpu.UnitSource] = textures[0]
	call.Uniforms.Alpha = sqs.Opacity
	r.draw(call)
}

// drawDebugBorderQuad outlines the quad rect. Opacity does not apply to
// debug borders.
func (r *Renderer) drawDebugBorderQuad(q *quads.DrawQuad, p *quads.DebugBorderQuad) {
	l, ok := layoutQuad(r.baseLayout(q, q.Rect.ToRectF(), nil))
	if !ok {
		return
	}
	r.state.setBlend(q.ShouldDrawWithBlending(), gputypes.BlendStatePremultiplied())
	call := &gpu.DrawCall{
		Program: gpu.ProgramKey{Kind: gpu.ProgramDebugBorder},
		Quads:   []gpu.QuadGeometry{l.geometry(gpu.UnitTexRect, gpu.OpaqueVertices)},
	}
	call.Uniforms.Color = premultiply(p.Color)
	call.Uniforms.Alpha = 1
	call.Uniforms.BorderWidth = float32(p.Width)
	if !r.draw(call) {
		compositor.Logger().Debug("renderer: debug border dropped")
	}
}
