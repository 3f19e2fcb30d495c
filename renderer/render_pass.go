package renderer

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/bsp"
	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/quads"
	"github.com/gogpu/compositor/resource"
)

// drawingFrame is the state of the frame being drawn.
type drawingFrame struct {
	id     uint64
	passes map[quads.RenderPassID]*quads.RenderPass
	root   *quads.RenderPass

	// rootDamage is the part of the root pass redrawn this frame, in root
	// target space.
	rootDamage geom.Rect

	// viewport and clip are the device rectangles of the root pass.
	viewport geom.Rect
	clip     geom.Rect

	disableImageFiltering bool

	filtered map[quads.RenderPassID]*filteredCopy

	// Current render target.
	currentPass        *quads.RenderPass
	currentFramebuffer gpu.FramebufferID
	writeLocked        resource.ID
	freshTarget        bool
	surfaceSize        geom.Size
	drawViewport       geom.Rect
	flipped            bool

	// windowMatrix maps the current pass's target space to window space.
	windowMatrix geom.Transform

	// passScissor is the scissor of the current pass in target space.
	passScissor geom.Rect
	passClipped bool
}

func newDrawingFrame(passes quads.RenderPassList, viewport, clip geom.Rect, disableImageFiltering bool) *drawingFrame {
	f := &drawingFrame{
		passes:                make(map[quads.RenderPassID]*quads.RenderPass, len(passes)),
		root:                  passes.Root(),
		viewport:              viewport,
		clip:                  clip,
		disableImageFiltering: disableImageFiltering,
		filtered:              make(map[quads.RenderPassID]*filteredCopy),
		windowMatrix:          geom.Identity(),
	}
	for _, p := range passes {
		f.passes[p.ID] = p
	}
	return f
}

// useRenderPass binds the target of pass and sets up the window mapping.
// It reports false when the target cannot be drawn to.
func (r *Renderer) useRenderPass(pass *quads.RenderPass) bool {
	f := r.frame
	r.releaseCurrentTarget()
	f.currentPass = pass
	f.freshTarget = false

	if pass == f.root {
		r.surface.BindFramebuffer()
		r.state.framebuffer = gpu.DefaultFramebuffer
		f.currentFramebuffer = gpu.DefaultFramebuffer
		f.flipped = !r.surface.Capabilities().FlippedOutput
		f.surfaceSize = r.surface.SurfaceSize()
		r.setDrawViewport(f.viewport)
		return true
	}

	tex, ok := r.passTextures[pass.ID]
	if !ok {
		tex = resource.NewScopedResource(r.provider)
		r.passTextures[pass.ID] = tex
	}
	if !tex.Allocated() {
		size := r.targetSize(pass.OutputRect.Size())
		if err := tex.Allocate(size, r.provider.BestTextureFormat()); err != nil {
			compositor.Logger().Warn("renderer: allocate render pass texture", "pass", pass.ID, "size", size, "err", err)
			return false
		}
		r.stats.TexturesAllocated++
		f.freshTarget = true
	}
	fb, err := r.provider.LockForWrite(tex.ID())
	if err != nil {
		r.contractViolation("render pass target unavailable", "pass", pass.ID, "err", err)
		return false
	}
	f.writeLocked = tex.ID()
	f.currentFramebuffer = fb
	r.state.bindFramebuffer(fb)
	f.flipped = false
	f.surfaceSize = tex.Size()
	r.setDrawViewport(geom.RectFromSize(pass.OutputRect.Size()))
	return true
}

// rebindCurrentTarget binds the current target again after another
// framebuffer was used.
func (r *Renderer) rebindCurrentTarget() {
	f := r.frame
	if f.currentPass == f.root {
		r.surface.BindFramebuffer()
		r.state.framebuffer = gpu.DefaultFramebuffer
		return
	}
	r.state.bindFramebuffer(f.currentFramebuffer)
}

func (r *Renderer) releaseCurrentTarget() {
	f := r.frame
	if f == nil || f.writeLocked == resource.InvalidID {
		return
	}
	r.provider.UnlockForWrite(f.writeLocked)
	f.writeLocked = resource.InvalidID
}

// setDrawViewport sets the viewport, in window space before flipping, the
// current pass's output rect is drawn into.
func (r *Renderer) setDrawViewport(vp geom.Rect) {
	f := r.frame
	out := f.currentPass.OutputRect
	f.drawViewport = vp
	toViewport := geom.Translate(float64(vp.X-out.X), float64(vp.Y-out.Y), 0)
	if f.flipped {
		flip := geom.Translate(0, float64(f.surfaceSize.Height), 0).Mul(geom.Scale(1, -1, 1))
		f.windowMatrix = flip.Mul(toViewport)
	} else {
		f.windowMatrix = toViewport
	}
	window := vp
	if f.flipped {
		window.Y = f.surfaceSize.Height - vp.Bottom()
	}
	r.state.setViewport(window)
}

// moveToWindow maps a rect in the current target space to window space.
func (r *Renderer) moveToWindow(rect geom.Rect) geom.Rect {
	f := r.frame
	out := f.currentPass.OutputRect
	w := rect.Offset(f.drawViewport.X-out.X, f.drawViewport.Y-out.Y)
	if f.flipped {
		w.Y = f.surfaceSize.Height - w.Bottom()
	}
	return w
}

// surfaceRectInDrawSpace is the whole current target in target space.
func (r *Renderer) surfaceRectInDrawSpace() geom.Rect {
	f := r.frame
	out := f.currentPass.OutputRect
	if f.currentPass == f.root {
		return geom.RectFromSize(f.surfaceSize).Offset(out.X-f.drawViewport.X, out.Y-f.drawViewport.Y)
	}
	return geom.XYWH(out.X, out.Y, f.surfaceSize.Width, f.surfaceSize.Height)
}

func (r *Renderer) needDeviceClip() bool {
	f := r.frame
	return f.currentPass == f.root && !f.clip.Contains(f.viewport)
}

// computeScissorRectForRenderPass returns the part of pass that can affect
// the root damage, or all of it when the pass has copy requests.
func (r *Renderer) computeScissorRectForRenderPass(pass *quads.RenderPass) geom.Rect {
	f := r.frame
	if len(pass.CopyRequests) > 0 {
		// The copy delivers the whole pass, so all of it must be current.
		return pass.OutputRect
	}
	if pass == f.root {
		return f.rootDamage
	}
	if f.freshTarget || f.rootDamage.Contains(f.root.OutputRect) {
		return pass.OutputRect
	}
	inv, ok := pass.TransformToRootTarget.Invert()
	if !ok {
		return pass.OutputRect
	}
	d := f.rootDamage.ToRectF()
	corners := geom.QuadFromRect(d).Points()
	var bounds geom.RectF
	for i, c := range corners {
		p, clipped := inv.ProjectPoint(c)
		if clipped {
			return pass.OutputRect
		}
		pr := geom.RectF{X: p.X, Y: p.Y}
		if i == 0 {
			bounds = pr
			continue
		}
		bounds = unionPoint(bounds, p)
	}
	return bounds.ToEnclosingRect().Intersect(pass.OutputRect)
}

func unionPoint(r geom.RectF, p geom.PointF) geom.RectF {
	x0, y0 := min(r.X, p.X), min(r.Y, p.Y)
	x1, y1 := max(r.Right(), p.X), max(r.Bottom(), p.Y)
	return geom.RectF{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// drawRenderPass draws the quads of pass into its target.
func (r *Renderer) drawRenderPass(pass *quads.RenderPass) {
	f := r.frame
	if !r.useRenderPass(pass) {
		return
	}
	r.stats.PassesDrawn++
	isRoot := pass == f.root

	surfaceRect := r.surfaceRectInDrawSpace()
	scissor := surfaceRect
	if isRoot {
		out := pass.OutputRect
		scissor = scissor.Intersect(geom.XYWH(out.X, out.Y, f.viewport.Width, f.viewport.Height))
	}
	if r.usingPartialSwap() {
		scissor = scissor.Intersect(r.computeScissorRectForRenderPass(pass))
	}
	if isRoot && r.needDeviceClip() {
		out := pass.OutputRect
		scissor = scissor.Intersect(f.clip.Offset(out.X-f.viewport.X, out.Y-f.viewport.Y))
	}
	f.passScissor = scissor
	f.passClipped = !scissor.Contains(surfaceRect)

	mode := r.initializationMode(isRoot, f.passClipped)
	if isRoot {
		r.stats.RootInitialization = mode
	}
	r.prepareSurfaceForPass(pass, mode)

	var polygons []*bsp.DrawPolygon
	sortingContext := 0
	nextPolygonID := 0
	for q := range pass.BackToFront() {
		sqs := q.SharedState
		if sqs == nil {
			r.contractViolation("quad without shared state", "pass", pass.ID)
			continue
		}
		if f.passClipped && shouldSkipQuad(q, scissor) {
			r.stats.QuadsSkipped++
			continue
		}
		if sqs.SortingContextID != sortingContext {
			r.flushPolygons(&polygons)
			sortingContext = sqs.SortingContextID
		}
		if sortingContext != 0 {
			p := bsp.NewDrawPolygon(q, q.VisibleRect.ToRectF(), sqs.QuadToTargetTransform, nextPolygonID)
			nextPolygonID++
			if p.Drawable() {
				polygons = append(polygons, p)
			}
			continue
		}
		r.setScissorStateForQuad(q)
		r.doDrawQuad(q, nil)
	}
	r.flushPolygons(&polygons)
	r.flushTextureBatch()
}

func (r *Renderer) initializationMode(isRoot, clipped bool) SurfaceInitializationMode {
	externalStencil := isRoot && r.surface.HasExternalStencilTest()
	shouldClear := !externalStencil && (!isRoot || r.settings.ShouldClearRootRenderPass)
	switch {
	case shouldClear && clipped:
		return SurfaceScissoredClear
	case shouldClear:
		return SurfaceFullClear
	default:
		return SurfacePreserve
	}
}

func (r *Renderer) prepareSurfaceForPass(pass *quads.RenderPass, mode SurfaceInitializationMode) {
	switch mode {
	case SurfacePreserve:
		r.state.setScissor(false, geom.Rect{})
	case SurfaceFullClear:
		r.state.setScissor(false, geom.Rect{})
		r.clearFramebuffer(pass)
	case SurfaceScissoredClear:
		r.state.setScissor(true, r.moveToWindow(r.frame.passScissor))
		r.clearFramebuffer(pass)
	}
}

// clearFramebuffer clears transparent passes. Opaque passes are cleared to
// blue under strict checks so undrawn areas show.
func (r *Renderer) clearFramebuffer(pass *quads.RenderPass) {
	switch {
	case pass.HasTransparentBackground:
		r.ctx.Clear(gputypes.Color{})
	case r.settings.StrictChecks:
		r.ctx.Clear(gputypes.Color{B: 1, A: 1})
	}
}

// shouldSkipQuad reports quads entirely outside the pass scissor.
func shouldSkipQuad(q *quads.DrawQuad, scissor geom.Rect) bool {
	if scissor.IsEmpty() {
		return true
	}
	if sqs := q.SharedState; sqs.IsClipped {
		return sqs.ClipRect.Intersect(scissor).IsEmpty()
	}
	return false
}

// setScissorStateForQuad applies the pass scissor and the quad's clip.
func (r *Renderer) setScissorStateForQuad(q *quads.DrawQuad) {
	f := r.frame
	sqs := q.SharedState
	switch {
	case f.passClipped:
		rect := f.passScissor
		if sqs.IsClipped {
			rect = rect.Intersect(sqs.ClipRect)
		}
		r.state.setScissor(true, r.moveToWindow(rect))
	case sqs.IsClipped:
		r.state.setScissor(true, r.moveToWindow(sqs.ClipRect))
	default:
		r.state.setScissor(false, geom.Rect{})
	}
}

// flushPolygons sorts the collected 3D polygons and draws them back to
// front. Split fragments are drawn as their original quad clipped to the
// fragment.
func (r *Renderer) flushPolygons(polygons *[]*bsp.DrawPolygon) {
	if len(*polygons) == 0 {
		return
	}
	tree := bsp.NewTree(polygons)
	tree.Walk(func(p *bsp.DrawPolygon) {
		q := p.Original
		r.setScissorStateForQuad(q)
		if !p.IsSplit {
			r.doDrawQuad(q, nil)
			return
		}
		for _, region := range p.ToQuads2D() {
			r.doDrawQuad(q, &region)
		}
	})
}
