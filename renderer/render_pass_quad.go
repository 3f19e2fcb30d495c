package renderer

import (
	"image"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/filter"
	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/quads"
	"github.com/gogpu/compositor/resource"
)

// filteredCopy is a pass's contents with its filters applied. It covers
// the pass output rect grown by the filter outsets.
type filteredCopy struct {
	id     resource.ID
	origin geom.Point
	size   geom.Size
}

func (r *Renderer) freeFilteredCopies() {
	for id, fc := range r.frame.filtered {
		r.provider.DeleteResource(fc.id)
		delete(r.frame.filtered, id)
	}
}

// pixelsToImage wraps read back pixels of the given size, converting to
// RGBA and flipping the row order when flip is set.
func pixelsToImage(pix []byte, size geom.Size, format gpu.Format, flip bool) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	row := size.Width * 4
	for y := range size.Height {
		src := y
		if flip {
			src = size.Height - 1 - y
		}
		if (src+1)*row > len(pix) {
			continue
		}
		copy(img.Pix[y*img.Stride:y*img.Stride+row], pix[src*row:(src+1)*row])
	}
	if format == gpu.FormatBGRA8 {
		gpu.SwizzleRB(img.Pix)
	}
	return img
}

// imageToPixels packs img tightly in the given format, flipping the row
// order when flip is set.
func imageToPixels(img *image.RGBA, format gpu.Format, flip bool) []byte {
	b := img.Bounds()
	row := b.Dx() * 4
	out := make([]byte, row*b.Dy())
	for y := range b.Dy() {
		dst := y
		if flip {
			dst = b.Dy() - 1 - y
		}
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(out[dst*row:(dst+1)*row], img.Pix[off:off+row])
	}
	if format == gpu.FormatBGRA8 {
		gpu.SwizzleRB(out)
	}
	return out
}

// applyFilteredCopy returns the filtered contents of a child pass, making
// them on first use in the frame.
func (r *Renderer) applyFilteredCopy(p *quads.RenderPassQuad, child *quads.RenderPass, tex *resource.ScopedResource) *filteredCopy {
	f := r.frame
	if fc, ok := f.filtered[p.PassID]; ok {
		return fc
	}
	fb, err := r.provider.LockForWrite(tex.ID())
	if err != nil {
		compositor.Logger().Warn("renderer: filter source unavailable", "pass", p.PassID, "err", err)
		return nil
	}
	r.state.bindFramebuffer(fb)
	// A reused texture may be larger than the pass. Only the pass area is
	// current.
	size := r.targetSize(child.OutputRect.Size())
	size.Width = min(size.Width, tex.Size().Width)
	size.Height = min(size.Height, tex.Size().Height)
	pix, err := r.ctx.ReadPixels(geom.RectFromSize(size))
	r.provider.UnlockForWrite(tex.ID())
	r.rebindCurrentTarget()
	if err != nil {
		compositor.Logger().Warn("renderer: read filter source", "pass", p.PassID, "err", err)
		return nil
	}

	src := pixelsToImage(pix, size, r.caps.ReadbackFormat, false)
	out := filter.Apply(p.Filters, src, p.FiltersScale)
	if out == nil {
		return nil
	}
	b := out.Bounds()
	id, err := r.provider.CreateResource(geom.Size{Width: b.Dx(), Height: b.Dy()}, r.provider.BestTextureFormat())
	if err != nil {
		compositor.Logger().Warn("renderer: allocate filtered copy", "pass", p.PassID, "err", err)
		return nil
	}
	if err := r.provider.Upload(id, out, geom.Point{}); err != nil {
		r.provider.DeleteResource(id)
		compositor.Logger().Warn("renderer: upload filtered copy", "pass", p.PassID, "err", err)
		return nil
	}
	fc := &filteredCopy{
		id:     id,
		origin: geom.Point{X: child.OutputRect.X + b.Min.X, Y: child.OutputRect.Y + b.Min.Y},
		size:   geom.Size{Width: b.Dx(), Height: b.Dy()},
	}
	f.filtered[p.PassID] = fc
	r.stats.FilteredCopies++
	return fc
}

// backdrop is a copy of the target under a render pass quad.
type backdrop struct {
	texture gpu.TextureID
	rect    geom.Rect // window space
}

// backdropBoundingBox is the window-space area a blended render pass quad
// reads from.
func (r *Renderer) backdropBoundingBox(l quadLayout, toWindow geom.Transform, drawRect geom.RectF, clipRegion *geom.QuadF, bg filter.Operations, scale float64) geom.Rect {
	var bounds geom.RectF
	if clipRegion != nil && l.clip != nil {
		bounds = l.clip.BoundingBox()
	} else {
		q, _ := flatten(toWindow).MapQuad(geom.QuadFromRect(drawRect))
		bounds = q.BoundingBox()
	}
	box := bounds.ToEnclosingRect()
	if !bg.IsEmpty() {
		top, right, bottom, left := bg.Outsets(scale)
		if r.frame.flipped {
			top, bottom = bottom, top
		}
		box = geom.XYWH(box.X-left, box.Y-top, box.Width+left+right, box.Height+top+bottom)
	}
	if l.aa {
		box = geom.XYWH(box.X-1, box.Y-1, box.Width+2, box.Height+2)
	}
	return box.Intersect(r.moveToWindow(r.frame.currentPass.OutputRect))
}

// captureBackdrop copies box of the current target into a new texture,
// filtering it with bg.
func (r *Renderer) captureBackdrop(box geom.Rect, bg filter.Operations, scale float64) (backdrop, bool) {
	if box.IsEmpty() {
		return backdrop{}, false
	}
	format := r.provider.BestTextureFormat()
	tex, err := r.ctx.CreateTexture(box.Size(), format)
	if err != nil {
		compositor.Logger().Warn("renderer: allocate backdrop", "size", box.Size(), "err", err)
		return backdrop{}, false
	}

	if bg.IsEmpty() {
		if err := r.ctx.CopyTexSubImage(tex, geom.Point{}, box); err != nil {
			r.ctx.DeleteTexture(tex)
			compositor.Logger().Warn("renderer: copy backdrop", "rect", box, "err", err)
			return backdrop{}, false
		}
		r.stats.BackdropCaptures++
		return backdrop{texture: tex, rect: box}, true
	}

	pix, err := r.ctx.ReadPixels(box)
	if err != nil {
		r.ctx.DeleteTexture(tex)
		compositor.Logger().Warn("renderer: read backdrop", "rect", box, "err", err)
		return backdrop{}, false
	}
	flip := r.frame.flipped
	img := pixelsToImage(pix, box.Size(), r.caps.ReadbackFormat, flip)
	filtered := filter.Apply(bg, img, scale)
	if filtered == nil {
		r.ctx.DeleteTexture(tex)
		return backdrop{}, false
	}
	cropped, ok := filtered.SubImage(img.Bounds()).(*image.RGBA)
	if !ok {
		r.ctx.DeleteTexture(tex)
		return backdrop{}, false
	}
	upload := imageToPixels(cropped, format, flip)
	if err := r.ctx.UploadTexture(tex, geom.RectFromSize(box.Size()), upload, box.Width*4); err != nil {
		r.ctx.DeleteTexture(tex)
		compositor.Logger().Warn("renderer: upload backdrop", "err", err)
		return backdrop{}, false
	}
	r.stats.BackdropCaptures++
	return backdrop{texture: tex, rect: box}, true
}

// drawRenderPassQuad composites the output of a child pass.
func (r *Renderer) drawRenderPassQuad(q *quads.DrawQuad, p *quads.RenderPassQuad, clipRegion *geom.QuadF) {
	f := r.frame
	sqs := q.SharedState
	tex, ok := r.passTextures[p.PassID]
	child, found := f.passes[p.PassID]
	if !ok || !found || !tex.Allocated() {
		return
	}
	scale := p.FiltersScale
	if scale == 0 {
		scale = 1
	}

	srcID := tex.ID()
	srcOrigin := child.OutputRect.Origin()
	srcSize := tex.Size()
	rect := q.Rect.ToRectF()
	drawRect := rect

	var colorMatrix *filter.ColorMatrix
	if !p.Filters.IsEmpty() {
		if m, ok := p.Filters.ToColorMatrix(); ok {
			colorMatrix = &m
		} else if fc := r.applyFilteredCopy(p, child, tex); fc != nil {
			srcID, srcOrigin, srcSize = fc.id, fc.origin, fc.size
			top, right, bottom, left := p.Filters.Outsets(scale)
			drawRect = geom.XYWHF(rect.X-float64(left), rect.Y-float64(top),
				rect.Width+float64(left+right), rect.Height+float64(top+bottom))
		}
	}

	params := r.baseLayout(q, drawRect, clipRegion)
	params.allowAA = r.settings.AllowAntialiasing
	params.forceAA = r.settings.ForceAntialiasing
	params.wholeLayer = true
	l, ok := layoutQuad(params)
	if !ok {
		return
	}

	fixed, fixedOK := sqs.BlendMode.FixedFunction()
	useShaders := !fixedOK || !p.BackgroundFilters.IsEmpty() || r.settings.ForceBlendingWithShaders
	var bd backdrop
	if useShaders {
		box := r.backdropBoundingBox(l, params.toWindow, drawRect, clipRegion, p.BackgroundFilters, scale)
		var captured bool
		bd, captured = r.captureBackdrop(box, p.BackgroundFilters, scale)
		if !captured {
			compositor.Logger().Warn("renderer: backdrop unavailable, blending without it",
				"pass", p.PassID, "mode", sqs.BlendMode.String())
			useShaders = false
			if !fixedOK {
				fixed = gputypes.BlendStatePremultiplied()
			}
		}
	}
	if bd.texture != gpu.InvalidID {
		defer r.ctx.DeleteTexture(bd.texture)
	}

	if useShaders {
		r.state.setBlend(false, gputypes.BlendState{})
	} else {
		needsBlend := q.ShouldDrawWithBlending() || sqs.BlendMode != gpu.BlendSrcOver || l.aa
		r.state.setBlend(needsBlend, fixed)
	}

	ids := []resource.ID{srcID}
	hasMask := p.MaskResourceID != resource.InvalidID
	if hasMask {
		ids = append(ids, p.MaskResourceID)
	}
	textures, unlock, ok := r.lockTextures(ids...)
	if !ok {
		return
	}
	defer unlock()

	srcRect := geom.XYWHF(float64(srcOrigin.X), float64(srcOrigin.Y), float64(srcSize.Width), float64(srcSize.Height))
	key := gpu.ProgramKey{
		Kind:        gpu.ProgramRenderPass,
		AA:          l.aa,
		Mask:        hasMask,
		ColorMatrix: colorMatrix != nil,
		Backdrop:    useShaders,
	}
	if useShaders {
		key.BlendMode = sqs.BlendMode
	}
	call := &gpu.DrawCall{
		Program: key,
		Quads:   []gpu.QuadGeometry{l.geometry(texRectFor(gpu.UnitTexRect, srcRect, l.rect), gpu.OpaqueVertices)},
		Clip:    l.clip,
	}
	call.Textures[gpu.UnitSource] = textures[0]
	if hasMask {
		call.Textures[gpu.UnitMask] = textures[1]
		call.Uniforms.MaskRect = texRectFor(rectToArray(p.MaskUVRect), rect, l.rect)
	}
	if useShaders {
		call.Textures[gpu.UnitBackdrop] = bd.texture
		call.Uniforms.BackdropRect = rectToArray(bd.rect.ToRectF())
	}
	if colorMatrix != nil {
		call.Uniforms.ColorMatrix, call.Uniforms.ColorOffset = colorMatrix.Uniforms()
	}
	call.Uniforms.Alpha = sqs.Opacity
	r.draw(call)
}
