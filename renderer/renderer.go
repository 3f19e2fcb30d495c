package renderer

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/output"
	"github.com/gogpu/compositor/quads"
	"github.com/gogpu/compositor/resource"
)

var (
	// ErrDestroyed is returned by methods called after Destroy.
	ErrDestroyed = errors.New("renderer: destroyed")

	// ErrContextMismatch is returned by New when the resource provider and
	// the surface use different contexts.
	ErrContextMismatch = errors.New("renderer: provider and surface use different contexts")
)

// SurfaceInitializationMode is how a render target is prepared before its
// quads are drawn.
type SurfaceInitializationMode uint8

const (
	// SurfacePreserve keeps the previous contents.
	SurfacePreserve SurfaceInitializationMode = iota

	// SurfaceFullClear clears the whole target.
	SurfaceFullClear

	// SurfaceScissoredClear clears only the pass scissor.
	SurfaceScissoredClear
)

// String returns the mode name.
func (m SurfaceInitializationMode) String() string {
	switch m {
	case SurfacePreserve:
		return "Preserve"
	case SurfaceFullClear:
		return "FullSurfaceClear"
	case SurfaceScissoredClear:
		return "ScissoredClear"
	default:
		return "Unknown"
	}
}

// Stats counts renderer work since creation or the last ResetStats.
type Stats struct {
	Frames       int
	PassesDrawn  int
	QuadsSkipped int

	DrawCalls      int
	QuadsDrawn     int
	TextureBatches int

	TexturesAllocated int
	BackdropCaptures  int
	FilteredCopies    int
	Readbacks         int
	OverlaysPromoted  int

	// SyncQueryStalls counts frames that waited for the GPU because too
	// many frames were in flight.
	SyncQueryStalls int

	ContractViolations int

	// RootInitialization is how the root pass of the last frame was
	// prepared.
	RootInitialization SurfaceInitializationMode
}

// Renderer draws frames of render passes to an output surface.
//
// A Renderer is not safe for concurrent use. All methods must be called
// from the goroutine that owns the surface's context.
type Renderer struct {
	settings Settings
	surface  output.Surface
	ctx      gpu.Context
	caps     gpu.Capabilities
	provider *resource.Provider

	state    *stateCache
	programs *programCache

	// passTextures holds the render targets of non-root passes across
	// frames.
	passTextures map[quads.RenderPassID]*resource.ScopedResource

	frame       *drawingFrame
	batch       textureBatch
	readbacks   []*pendingRead
	syncQueries *syncQueryPool
	overlays    overlayState

	// swapBufferRect accumulates the device-space damage of frames drawn
	// since the last swap, before any flip to window space.
	swapBufferRect geom.Rect

	// fullDamage forces the next frame to redraw the whole root pass.
	fullDamage bool

	lastViewport geom.Rect
	lastScale    float64
	frameID      uint64
	visible      bool
	destroyed    bool

	stats Stats
}

// New creates a renderer drawing to surface with textures from provider.
// The provider must allocate from the surface's context.
func New(surface output.Surface, provider *resource.Provider, opts ...Option) (*Renderer, error) {
	settings := DefaultSettings().Apply(opts...)
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	ctx := surface.Context()
	if provider.Context() != ctx {
		return nil, ErrContextMismatch
	}
	r := &Renderer{
		settings:     settings,
		surface:      surface,
		ctx:          ctx,
		caps:         ctx.Capabilities(),
		provider:     provider,
		state:        newStateCache(ctx),
		programs:     newProgramCache(ctx),
		passTextures: make(map[quads.RenderPassID]*resource.ScopedResource),
		syncQueries:  newSyncQueryPool(ctx, settings.MaxPendingSyncQueries),
		visible:      true,
		fullDamage:   true,
	}
	r.state.onScissorChange = r.flushTextureBatch
	compositor.Logger().Info("renderer: created",
		"max_texture_size", r.caps.MaxTextureSize,
		"async_readback", r.caps.AsyncReadback,
		"partial_swap", r.usingPartialSwap())
	return r, nil
}

// WithSettings replaces all settings.
func WithSettings(s Settings) Option {
	return func(dst *Settings) {
		*dst = s
	}
}

// Settings returns the renderer's settings.
func (r *Renderer) Settings() Settings { return r.settings }

// Stats returns the work counters.
func (r *Renderer) Stats() Stats { return r.stats }

// ResetStats zeroes the work counters.
func (r *Renderer) ResetStats() { r.stats = Stats{} }

// ProgramCount returns the number of programs compiled so far.
func (r *Renderer) ProgramCount() int { return r.programs.count() }

func (r *Renderer) usingPartialSwap() bool {
	return r.settings.PartialSwapEnabled && r.surface.Capabilities().PartialSwap
}

// DecideRenderPassAllocationsForFrame releases the textures of passes that
// are gone or outgrew them, and reserves entries for new passes. Textures
// are allocated lazily when a pass is first drawn.
func (r *Renderer) DecideRenderPassAllocationsForFrame(passes quads.RenderPassList) {
	root := passes.Root()
	needed := make(map[quads.RenderPassID]geom.Size, len(passes))
	for _, p := range passes {
		if p == root {
			continue
		}
		needed[p.ID] = r.targetSize(p.OutputRect.Size())
	}
	for id, tex := range r.passTextures {
		size, ok := needed[id]
		if !ok {
			tex.Free()
			delete(r.passTextures, id)
			continue
		}
		if tex.Allocated() && !fits(size, tex.Size()) {
			tex.Free()
		}
	}
	for id := range needed {
		if _, ok := r.passTextures[id]; !ok {
			r.passTextures[id] = resource.NewScopedResource(r.provider)
		}
	}
}

// fits reports whether a texture of size have can hold a pass of size want.
func fits(want, have geom.Size) bool {
	return have.Width >= want.Width && have.Height >= want.Height
}

// HasAllocatedResources reports whether the pass owns a render target
// texture.
func (r *Renderer) HasAllocatedResources(id quads.RenderPassID) bool {
	tex, ok := r.passTextures[id]
	return ok && tex.Allocated()
}

// targetSize clamps a pass size to what the context can allocate.
func (r *Renderer) targetSize(s geom.Size) geom.Size {
	if m := r.provider.MaxTextureSize(); m > 0 {
		s.Width = min(s.Width, m)
		s.Height = min(s.Height, m)
	}
	return s
}

// ReleaseRenderPassTextures frees every render pass texture.
func (r *Renderer) ReleaseRenderPassTextures() {
	for _, tex := range r.passTextures {
		tex.Free()
	}
}

// DrawFrame draws passes, root last, into the surface. viewport is the
// device rectangle the root pass covers and clip restricts drawing in
// device space. The pass list is emptied, and copy requests still pending
// afterwards receive empty results.
func (r *Renderer) DrawFrame(passes *quads.RenderPassList, scale float64, viewport, clip geom.Rect, disablePictureQuadImageFiltering bool) error {
	defer passes.Clear()
	if r.destroyed {
		return ErrDestroyed
	}
	if len(*passes) == 0 {
		return quads.ErrEmptyPassList
	}
	if r.ctx.IsContextLost() {
		return gpu.ErrContextLost
	}
	if r.settings.StrictChecks {
		if err := passes.Validate(); err != nil {
			return err
		}
	}

	root := passes.Root()
	r.DecideRenderPassAllocationsForFrame(*passes)

	r.surface.EnsureBackbuffer()
	size := geom.Size{Width: viewport.Right(), Height: viewport.Bottom()}
	if size != r.surface.SurfaceSize() {
		r.fullDamage = true
	}
	if err := r.surface.Reshape(size, scale); err != nil {
		return fmt.Errorf("renderer: %w", err)
	}

	f := newDrawingFrame(*passes, viewport, clip, disablePictureQuadImageFiltering)
	damage := root.OutputRect
	if r.usingPartialSwap() && !r.fullDamage {
		damage = root.DamageRect
	}
	f.rootDamage = damage.Intersect(geom.RectFromSize(viewport.Size()))
	r.fullDamage = false
	r.frame = f
	defer func() { r.frame = nil }()
	r.lastViewport = viewport
	r.lastScale = scale

	r.beginDrawingFrame()
	r.processOverlays(root)
	for _, pass := range *passes {
		r.drawRenderPass(pass)
		for i, req := range pass.TakeCopyRequests() {
			if i > 0 {
				r.rebindCurrentTarget()
			}
			r.copyCurrentRenderPass(req)
		}
	}
	r.finishDrawingFrame()
	return nil
}

func (r *Renderer) beginDrawingFrame() {
	r.frameID++
	r.frame.id = r.frameID
	fence, stalled := r.syncQueries.beginFrame()
	if stalled {
		r.stats.SyncQueryStalls++
	}
	r.provider.SetReadLockFence(fence)
	r.state.reset()
	r.batch.reset()
	compositor.Logger().Debug("renderer: begin frame", "frame", r.frameID, "passes", len(r.frame.passes))
}

func (r *Renderer) finishDrawingFrame() {
	r.flushTextureBatch()
	r.syncQueries.endFrame()
	r.releaseCurrentTarget()

	f := r.frame
	root := f.root
	damage := f.rootDamage.Offset(f.viewport.X-root.OutputRect.X, f.viewport.Y-root.OutputRect.Y)
	r.swapBufferRect = r.swapBufferRect.Union(damage)

	r.state.setBlend(false, gputypes.BlendState{})
	r.freeFilteredCopies()
	r.scheduleOverlays()

	r.ctx.Flush()
	r.processReadbacks()
	r.provider.CollectGarbage()
	r.stats.Frames++
}

// SwapBufferRect returns the damage accumulated for the next swap, in
// device space with the root pass's y axis.
func (r *Renderer) SwapBufferRect() geom.Rect { return r.swapBufferRect }

// SwapBuffers presents the frames drawn since the last swap.
func (r *Renderer) SwapBuffers(metadata output.FrameMetadata) error {
	if r.destroyed {
		return ErrDestroyed
	}
	size := r.surface.SurfaceSize()
	full := geom.RectFromSize(size)
	sub := full
	if r.usingPartialSwap() {
		sub = r.swapBufferRect.Intersect(full)
		if !r.surface.Capabilities().FlippedOutput {
			sub.Y = size.Height - sub.Bottom()
		}
	}
	if metadata.FrameID == 0 {
		metadata.FrameID = r.frameID
	}
	if metadata.DeviceScaleFactor == 0 {
		metadata.DeviceScaleFactor = r.lastScale
	}
	if metadata.Viewport.IsEmpty() {
		metadata.Viewport = r.lastViewport
	}
	frame := &output.Frame{
		Metadata:      metadata,
		Size:          size,
		SubBufferRect: sub,
		Overlays:      r.overlays.planes,
	}
	err := r.surface.SwapBuffers(frame)
	r.overlays.swapped(r.provider, r.settings.DelayReleasingOverlayResources)
	r.swapBufferRect = geom.Rect{}
	if err != nil {
		return fmt.Errorf("renderer: swap: %w", err)
	}
	return nil
}

// SetVisible releases memory while the output is hidden. The next frame
// after becoming visible again redraws everything.
func (r *Renderer) SetVisible(visible bool) {
	if r.visible == visible || r.destroyed {
		return
	}
	r.visible = visible
	if visible {
		r.provider.EnforceMemoryPolicy(true)
		return
	}
	r.ReleaseRenderPassTextures()
	r.surface.DiscardBackbuffer()
	r.provider.EnforceMemoryPolicy(false)
	r.fullDamage = true
	r.ctx.Flush()
	compositor.Logger().Info("renderer: hidden, resources released")
}

// IsVisible reports the last visibility set.
func (r *Renderer) IsVisible() bool { return r.visible }

// Finish blocks until the GPU is idle and delivers finished readbacks.
func (r *Renderer) Finish() {
	if r.destroyed {
		return
	}
	r.ctx.Finish()
	r.processReadbacks()
	r.provider.CollectGarbage()
}

// Destroy releases everything the renderer owns. Pending readbacks receive
// empty results. The surface and provider stay with the caller.
func (r *Renderer) Destroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true
	r.cancelReadbacks()
	r.overlays.releaseAll(r.provider)
	r.syncQueries.destroy()
	r.programs.destroy()
	for id, tex := range r.passTextures {
		tex.Free()
		delete(r.passTextures, id)
	}
	r.provider.CollectGarbage()
}

// contractViolation reports input the renderer cannot draw. With strict
// checks it panics.
func (r *Renderer) contractViolation(msg string, args ...any) {
	r.stats.ContractViolations++
	compositor.Logger().Error("renderer: "+msg, args...)
	if r.settings.StrictChecks {
		panic(fmt.Sprintf("renderer: %s %v", msg, args))
	}
}

// draw issues call with its program, compiling it on first use.
func (r *Renderer) draw(call *gpu.DrawCall) bool {
	if err := r.programs.get(call.Program); err != nil {
		compositor.Logger().Warn("renderer: program unavailable", "program", call.Program.String(), "err", err)
		return false
	}
	r.state.useProgram(call.Program)
	if err := r.ctx.Draw(call); err != nil {
		compositor.Logger().Warn("renderer: draw failed", "program", call.Program.String(), "err", err)
		return false
	}
	r.stats.DrawCalls++
	r.stats.QuadsDrawn += len(call.Quads)
	return true
}
