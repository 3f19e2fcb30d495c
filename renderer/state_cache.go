package renderer

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
)

// stateCache shadows the pipeline state of the context so redundant
// commands are dropped. It is reset at the start of every frame, since
// other users of the context may have changed anything in between.
type stateCache struct {
	ctx gpu.Context

	program      gpu.ProgramKey
	programKnown bool

	blendOn    bool
	blendState gputypes.BlendState
	blendKnown bool

	scissorOn    bool
	scissorRect  geom.Rect
	scissorKnown bool

	framebuffer gpu.FramebufferID
	viewport    geom.Rect

	// onScissorChange runs before the scissor changes, so a pending batch
	// is drawn with the scissor it was collected under.
	onScissorChange func()

	skipped int
}

func newStateCache(ctx gpu.Context) *stateCache {
	return &stateCache{ctx: ctx}
}

// reset forgets every shadowed value. The next command of each kind is
// always issued.
func (s *stateCache) reset() {
	*s = stateCache{ctx: s.ctx, onScissorChange: s.onScissorChange}
}

func (s *stateCache) useProgram(key gpu.ProgramKey) {
	if s.programKnown && s.program == key {
		s.skipped++
		return
	}
	s.ctx.UseProgram(key)
	s.program = key
	s.programKnown = true
}

func (s *stateCache) setBlend(enabled bool, state gputypes.BlendState) {
	if s.blendKnown && s.blendOn == enabled && (!enabled || s.blendState == state) {
		s.skipped++
		return
	}
	s.ctx.Blend(enabled, state)
	s.blendOn = enabled
	s.blendState = state
	s.blendKnown = true
}

func (s *stateCache) setScissor(enabled bool, rect geom.Rect) {
	if s.scissorKnown && s.scissorOn == enabled && (!enabled || s.scissorRect == rect) {
		s.skipped++
		return
	}
	if s.onScissorChange != nil {
		s.onScissorChange()
	}
	s.ctx.Scissor(enabled, rect)
	s.scissorOn = enabled
	s.scissorRect = rect
	s.scissorKnown = true
}

// bindFramebuffer is not elided: surfaces and render pass textures may
// rebind behind the cache.
func (s *stateCache) bindFramebuffer(fb gpu.FramebufferID) {
	s.ctx.BindFramebuffer(fb)
	s.framebuffer = fb
}

func (s *stateCache) setViewport(rect geom.Rect) {
	s.ctx.Viewport(rect)
	s.viewport = rect
}
