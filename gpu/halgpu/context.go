package halgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/shader"
)

// Stats counts the work done by a Context.
type Stats struct {
	DrawCalls         int
	Clears            int
	RenderPasses      int
	Submissions       int
	PipelinesCreated  int
	TextureUploads    int
	Readbacks         int
	TextureCopies     int
	DeferredReleases  int
	PendingSubmission int
}

// Option configures a Context.
type Option func(*config)

type config struct {
	size   geom.Size
	format gpu.Format
	limits gputypes.Limits

	compile func(gpu.ProgramKey) ([]uint32, error)
}

// WithSize sets the initial backbuffer size.
func WithSize(width, height int) Option {
	return func(c *config) {
		c.size = geom.Size{Width: width, Height: height}
	}
}

// WithFormat sets the format of the backbuffer and of render targets.
func WithFormat(f gpu.Format) Option {
	return func(c *config) {
		c.format = f
	}
}

func withLimits(l gputypes.Limits) Option {
	return func(c *config) {
		c.limits = l
	}
}

// Context is the hal gpu.Context. It is not safe for concurrent use.
type Context struct {
	cfg    config
	device hal.Device
	queue  hal.Queue
	owned  *ownedDevice

	shared *sharedObjects

	nextID       uint64
	textures     map[gpu.TextureID]*texture
	framebuffers map[gpu.FramebufferID]gpu.TextureID
	backbuffer   *texture
	programs     map[gpu.ProgramKey]hal.ShaderModule
	pipelines    map[pipelineKey]hal.RenderPipeline
	buffers      map[gpu.BufferID]*readBuffer
	queries      map[gpu.QueryID]*query

	bound      gpu.FramebufferID
	viewport   geom.Rect
	scissorOn  bool
	scissor    geom.Rect
	blendOn    bool
	blendState gputypes.BlendState
	program    gpu.ProgramKey

	// Command recording. pass is open on passTarget while non-nil.
	encoder    hal.CommandEncoder
	pass       hal.RenderPassEncoder
	passTarget *texture
	recorded   bool

	submitted uint64
	ended     []gpu.QueryID
	garbage   []deferred

	syncToken uint64
	lost      bool
	destroyed bool
	stats     Stats
}

// New creates a context on device and queue.
func New(device hal.Device, queue hal.Queue, opts ...Option) (*Context, error) {
	cfg := config{
		size:    geom.Size{Width: 1, Height: 1},
		format:  gpu.FormatBGRA8,
		limits:  gputypes.DefaultLimits(),
		compile: shader.Compile,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Context{
		cfg:          cfg,
		device:       device,
		queue:        queue,
		textures:     make(map[gpu.TextureID]*texture),
		framebuffers: make(map[gpu.FramebufferID]gpu.TextureID),
		programs:     make(map[gpu.ProgramKey]hal.ShaderModule),
		pipelines:    make(map[pipelineKey]hal.RenderPipeline),
		buffers:      make(map[gpu.BufferID]*readBuffer),
		queries:      make(map[gpu.QueryID]*query),
		blendState:   gputypes.BlendStateReplace(),
	}
	shared, err := newSharedObjects(device, queue)
	if err != nil {
		return nil, err
	}
	c.shared = shared
	if err := c.ResizeDefaultFramebuffer(cfg.size); err != nil {
		shared.destroy(device)
		return nil, err
	}
	c.viewport = geom.RectFromSize(cfg.size)
	return c, nil
}

func (c *Context) newID() uint64 {
	c.nextID++
	return c.nextID
}

// Device returns the hal device the context records on.
func (c *Context) Device() hal.Device { return c.device }

// Capabilities implements gpu.Context.
func (c *Context) Capabilities() gpu.Capabilities {
	return gpu.Capabilities{
		MaxTextureSize:    int(c.cfg.limits.MaxTextureDimension2D),
		BestTextureFormat: c.cfg.format,
		ReadbackFormat:    c.cfg.format,
		AsyncReadback:     true,
	}
}

// IsContextLost implements gpu.Context.
func (c *Context) IsContextLost() bool { return c.lost }

// Stats returns the work counters.
func (c *Context) Stats() Stats {
	s := c.stats
	s.PendingSubmission = len(c.garbage)
	return s
}

// Viewport implements gpu.Context.
func (c *Context) Viewport(rect geom.Rect) { c.viewport = rect }

// Scissor implements gpu.Context.
func (c *Context) Scissor(enabled bool, rect geom.Rect) {
	c.scissorOn = enabled
	c.scissor = rect
}

// Blend implements gpu.Context.
func (c *Context) Blend(enabled bool, state gputypes.BlendState) {
	c.blendOn = enabled
	c.blendState = state
}

// UseProgram implements gpu.Context.
func (c *Context) UseProgram(key gpu.ProgramKey) { c.program = key }

// BindFramebuffer implements gpu.Context.
func (c *Context) BindFramebuffer(id gpu.FramebufferID) { c.bound = id }

// BoundFramebuffer returns the current framebuffer.
func (c *Context) BoundFramebuffer() gpu.FramebufferID { return c.bound }

// target returns the texture backing the bound framebuffer.
func (c *Context) target() (*texture, error) {
	if c.bound == gpu.DefaultFramebuffer {
		if c.backbuffer == nil {
			return nil, fmt.Errorf("%w: backbuffer discarded", gpu.ErrInvalidID)
		}
		return c.backbuffer, nil
	}
	texID, ok := c.framebuffers[c.bound]
	if !ok {
		return nil, fmt.Errorf("%w: framebuffer %d", gpu.ErrInvalidID, c.bound)
	}
	t, ok := c.textures[texID]
	if !ok {
		return nil, fmt.Errorf("%w: framebuffer %d texture deleted", gpu.ErrInvalidID, c.bound)
	}
	return t, nil
}

// drawBounds is the part of t the current state allows writing to.
func (c *Context) drawBounds(t *texture) geom.Rect {
	r := geom.RectFromSize(t.size).Intersect(c.viewport)
	if c.scissorOn {
		r = r.Intersect(c.scissor)
	}
	return r
}

// InsertSyncToken implements gpu.Context.
func (c *Context) InsertSyncToken() uint64 {
	c.syncToken++
	return c.syncToken
}

// Destroy implements gpu.Context. A device opened by Open is destroyed
// with the context; a shared device is left alone.
func (c *Context) Destroy() {
	if c.destroyed {
		return
	}
	if !c.lost {
		c.Finish()
	}
	c.destroyed = true
	c.discardRecording()
	c.collectGarbage(true)

	for _, b := range c.buffers {
		b.release(c.device)
	}
	for _, t := range c.textures {
		t.release(c.device)
	}
	if c.backbuffer != nil {
		c.backbuffer.release(c.device)
		c.backbuffer = nil
	}
	for _, p := range c.pipelines {
		c.device.DestroyRenderPipeline(p)
	}
	for _, m := range c.programs {
		c.device.DestroyShaderModule(m)
	}
	clear(c.textures)
	clear(c.framebuffers)
	clear(c.buffers)
	clear(c.pipelines)
	clear(c.programs)
	clear(c.queries)
	c.shared.destroy(c.device)

	if c.owned != nil {
		c.owned.destroy()
		c.owned = nil
	}
}

var _ gpu.Context = (*Context)(nil)
