package renderer

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/quads"
	"github.com/gogpu/compositor/resource"
)

// textureBatchKey is what texture quads must share to be drawn together.
type textureBatchKey struct {
	program       gpu.ProgramKey
	resource      resource.ID
	needsBlending bool
	nearest       bool
	background    [4]float32
}

// textureBatch collects consecutive texture quads into one draw call.
type textureBatch struct {
	key   textureBatchKey
	quads []gpu.QuadGeometry
	clip  *geom.QuadF
}

func (b *textureBatch) reset() {
	b.key = textureBatchKey{}
	b.quads = nil
	b.clip = nil
}

func (b *textureBatch) empty() bool { return len(b.quads) == 0 }

// uvTexRect returns the texture rect of a texture quad over its full rect.
func uvTexRect(p *quads.TextureQuad) [4]float32 {
	tl, br := p.UVTopLeft, p.UVBottomRight
	t := [4]float32{float32(tl.X), float32(tl.Y), float32(br.X - tl.X), float32(br.Y - tl.Y)}
	if p.Flipped {
		t[1] = 1 - t[1]
		t[3] = -t[3]
	}
	return t
}

// subrectOpacity interpolates corner opacities o of rect r at the corners
// of d.
func subrectOpacity(o [4]float32, r, d geom.RectF) [4]float32 {
	if r == d || r.Width == 0 || r.Height == 0 {
		return o
	}
	at := func(x, y float64) float32 {
		u := float32((x - r.X) / r.Width)
		v := float32((y - r.Y) / r.Height)
		top := o[0] + (o[1]-o[0])*u
		bottom := o[3] + (o[2]-o[3])*u
		return top + (bottom-top)*v
	}
	return [4]float32{
		at(d.X, d.Y),
		at(d.Right(), d.Y),
		at(d.Right(), d.Bottom()),
		at(d.X, d.Bottom()),
	}
}

// enqueueTextureQuad adds a texture quad to the pending batch, drawing the
// batch first when the quad cannot join it.
func (r *Renderer) enqueueTextureQuad(q *quads.DrawQuad, p *quads.TextureQuad, clipRegion *geom.QuadF) {
	sqs := q.SharedState
	l, ok := layoutQuad(r.baseLayout(q, q.VisibleRect.ToRectF(), clipRegion))
	if !ok {
		return
	}

	var background [4]float32
	if p.BackgroundColor.A > 0 {
		background = premultiply(p.BackgroundColor)
	}
	key := textureBatchKey{
		program: gpu.ProgramKey{
			Kind:          gpu.ProgramTexture,
			Premultiplied: p.PremultipliedAlpha,
			Background:    p.BackgroundColor.A > 0,
		},
		resource:      p.ResourceID,
		needsBlending: q.ShouldDrawWithBlending(),
		nearest:       p.Nearest,
		background:    background,
	}

	b := &r.batch
	if !b.empty() && (b.key != key || len(b.quads) >= r.settings.TextureBatchCap || b.clip != nil || l.clip != nil) {
		r.flushTextureBatch()
	}
	b.key = key

	rect := q.Rect.ToRectF()
	opacity := p.VertexOpacity
	for i := range opacity {
		opacity[i] *= sqs.Opacity
	}
	b.quads = append(b.quads, l.geometry(texRectFor(uvTexRect(p), rect, l.rect), subrectOpacity(opacity, rect, l.rect)))
	if l.clip != nil {
		b.clip = l.clip
		r.flushTextureBatch()
	}
}

// flushTextureBatch draws the pending texture quads.
func (r *Renderer) flushTextureBatch() {
	b := &r.batch
	if b.empty() {
		return
	}
	defer b.reset()

	textures, unlock, ok := r.lockTextures(b.key.resource)
	if !ok {
		return
	}
	defer unlock()

	r.state.setBlend(b.key.needsBlending, gputypes.BlendStatePremultiplied())
	call := &gpu.DrawCall{
		Program: b.key.program,
		Quads:   b.quads,
		Clip:    b.clip,
	}
	call.Textures[gpu.UnitSource] = textures[0]
	if b.key.nearest {
		call.Filters[gpu.UnitSource] = gpu.FilterNearest
	}
	call.Uniforms.Color = b.key.background
	call.Uniforms.Alpha = 1
	if r.draw(call) {
		r.stats.TextureBatches++
	}
}
