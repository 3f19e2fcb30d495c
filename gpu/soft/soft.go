// Package soft implements gpu.Context on the CPU.
//
// The software context is the reference backend of the compositor: it
// rasterizes every program with per-pixel inverse projection, edge
// antialiasing and fixed-function or shader blending. It is used by tests to
// check pixels and by the demo to render scene files without a GPU.
//
// Commands execute immediately, but queries model asynchronous completion:
// a query ended by EndQuery completes on the next Flush. With
// WithManualCompletion, queries complete only through Finish, WaitQuery or
// CompleteQuery, which lets tests deliver completions in any order.
//
// Pixels are stored as premultiplied RGBA bytes. Row 0 of every texture is
// window row 0, the bottom row in GL terms.
package soft

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/internal/parallel"
	"github.com/gogpu/compositor/shader"
)

// DefaultMaxTextureSize is the texture size limit unless configured.
const DefaultMaxTextureSize = 8192

// Stats counts the work done by a Context.
type Stats struct {
	DrawCalls       int
	QuadsDrawn      int
	Clears          int
	ProgramsCreated int
	TextureUploads  int
	Readbacks       int
	TextureCopies   int
}

// Option configures a Context.
type Option func(*config)

type config struct {
	size           geom.Size
	maxTextureSize int
	readback       gpu.Format
	noAsync        bool
	manual         bool
	workers        int
	validate       bool
}

// WithSize sets the initial backbuffer size.
func WithSize(width, height int) Option {
	return func(c *config) {
		c.size = geom.Size{Width: width, Height: height}
	}
}

// WithMaxTextureSize sets the largest texture dimension.
func WithMaxTextureSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxTextureSize = n
		}
	}
}

// WithReadbackFormat sets the channel order of ReadPixels and mapped buffers.
func WithReadbackFormat(f gpu.Format) Option {
	return func(c *config) {
		c.readback = f
	}
}

// WithoutAsyncReadback reports no support for async reads and queries.
func WithoutAsyncReadback() Option {
	return func(c *config) {
		c.noAsync = true
	}
}

// WithManualCompletion stops Flush from completing queries.
func WithManualCompletion() Option {
	return func(c *config) {
		c.manual = true
	}
}

// WithWorkers rasterizes large draws in row bands on n goroutines.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithShaderValidation compiles the WGSL of every created program with naga.
func WithShaderValidation() Option {
	return func(c *config) {
		c.validate = true
	}
}

type framebuffer struct {
	texture gpu.TextureID
}

// Context is the software gpu.Context. It is not safe for concurrent use.
type Context struct {
	cfg  config
	pool *parallel.WorkerPool

	nextID       uint64
	textures     map[gpu.TextureID]*texture
	framebuffers map[gpu.FramebufferID]*framebuffer
	backbuffer   *texture
	programs     map[gpu.ProgramKey]struct{}
	buffers      map[gpu.BufferID]*pixelBuffer
	queries      map[gpu.QueryID]*query

	bound      gpu.FramebufferID
	viewport   geom.Rect
	scissorOn  bool
	scissor    geom.Rect
	blendOn    bool
	blendState gputypes.BlendState
	program    gpu.ProgramKey

	submitted uint64
	completed uint64
	syncToken uint64

	lost      bool
	destroyed bool
	stats     Stats
}

// New creates a software context.
func New(opts ...Option) *Context {
	cfg := config{
		size:           geom.Size{Width: 1, Height: 1},
		maxTextureSize: DefaultMaxTextureSize,
		readback:       gpu.FormatRGBA8,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Context{
		cfg:          cfg,
		textures:     make(map[gpu.TextureID]*texture),
		framebuffers: make(map[gpu.FramebufferID]*framebuffer),
		programs:     make(map[gpu.ProgramKey]struct{}),
		buffers:      make(map[gpu.BufferID]*pixelBuffer),
		queries:      make(map[gpu.QueryID]*query),
		blendState:   gputypes.BlendStateReplace(),
	}
	if cfg.workers > 1 {
		c.pool = parallel.NewWorkerPool(cfg.workers)
	}
	c.backbuffer = newTexture(cfg.size, gpu.FormatRGBA8)
	c.viewport = geom.RectFromSize(cfg.size)
	return c
}

func (c *Context) newID() uint64 {
	c.nextID++
	return c.nextID
}

// Capabilities implements gpu.Context.
func (c *Context) Capabilities() gpu.Capabilities {
	return gpu.Capabilities{
		MaxTextureSize:    c.cfg.maxTextureSize,
		BestTextureFormat: gpu.FormatRGBA8,
		ReadbackFormat:    c.cfg.readback,
		AsyncReadback:     !c.cfg.noAsync,
	}
}

// IsContextLost implements gpu.Context.
func (c *Context) IsContextLost() bool { return c.lost }

// LoseContext simulates a GPU reset. Every later command fails or is ignored.
func (c *Context) LoseContext() {
	c.lost = true
	slogger().Warn("soft: context lost")
}

// Stats returns the work counters.
func (c *Context) Stats() Stats { return c.stats }

// ResetStats zeroes the work counters.
func (c *Context) ResetStats() { c.stats = Stats{} }

// CreateTexture implements gpu.Context.
func (c *Context) CreateTexture(size geom.Size, format gpu.Format) (gpu.TextureID, error) {
	if c.lost {
		return gpu.InvalidID, gpu.ErrContextLost
	}
	if size.IsEmpty() || size.Width > c.cfg.maxTextureSize || size.Height > c.cfg.maxTextureSize {
		return gpu.InvalidID, fmt.Errorf("%w: %v", gpu.ErrInvalidSize, size)
	}
	id := gpu.TextureID(c.newID())
	c.textures[id] = newTexture(size, format)
	return id, nil
}

// UploadTexture implements gpu.Context.
func (c *Context) UploadTexture(id gpu.TextureID, rect geom.Rect, pixels []byte, stride int) error {
	if c.lost {
		return gpu.ErrContextLost
	}
	t, ok := c.textures[id]
	if !ok {
		return fmt.Errorf("%w: texture %d", gpu.ErrInvalidID, id)
	}
	if !geom.RectFromSize(t.size).Contains(rect) {
		return fmt.Errorf("%w: upload %v outside %v", gpu.ErrInvalidSize, rect, t.size)
	}
	for y := range rect.Height {
		src := pixels[y*stride : y*stride+rect.Width*4]
		off := t.offset(rect.X, rect.Y+y)
		dst := t.pix[off : off+rect.Width*4]
		copy(dst, src)
		if t.format == gpu.FormatBGRA8 {
			gpu.SwizzleRB(dst)
		}
	}
	c.stats.TextureUploads++
	return nil
}

// DeleteTexture implements gpu.Context.
func (c *Context) DeleteTexture(id gpu.TextureID) {
	delete(c.textures, id)
}

// TextureSize implements gpu.Context.
func (c *Context) TextureSize(id gpu.TextureID) geom.Size {
	if t, ok := c.textures[id]; ok {
		return t.size
	}
	return geom.Size{}
}

// TexturePixels returns a copy of a texture as a top-down RGBA image, for
// tests.
func (c *Context) TexturePixels(id gpu.TextureID) ([]byte, geom.Size, bool) {
	t, ok := c.textures[id]
	if !ok {
		return nil, geom.Size{}, false
	}
	return t.topDown(), t.size, true
}

// CreateFramebuffer implements gpu.Context.
func (c *Context) CreateFramebuffer(tex gpu.TextureID) (gpu.FramebufferID, error) {
	if c.lost {
		return gpu.DefaultFramebuffer, gpu.ErrContextLost
	}
	if _, ok := c.textures[tex]; !ok {
		return gpu.DefaultFramebuffer, fmt.Errorf("%w: texture %d", gpu.ErrInvalidID, tex)
	}
	id := gpu.FramebufferID(c.newID())
	c.framebuffers[id] = &framebuffer{texture: tex}
	return id, nil
}

// DeleteFramebuffer implements gpu.Context.
func (c *Context) DeleteFramebuffer(id gpu.FramebufferID) {
	delete(c.framebuffers, id)
	if c.bound == id {
		c.bound = gpu.DefaultFramebuffer
	}
}

// BindFramebuffer implements gpu.Context.
func (c *Context) BindFramebuffer(id gpu.FramebufferID) {
	c.bound = id
}

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
	fb, ok := c.framebuffers[c.bound]
	if !ok {
		return nil, fmt.Errorf("%w: framebuffer %d", gpu.ErrInvalidID, c.bound)
	}
	t, ok := c.textures[fb.texture]
	if !ok {
		return nil, fmt.Errorf("%w: framebuffer %d texture deleted", gpu.ErrInvalidID, c.bound)
	}
	return t, nil
}

// ResizeDefaultFramebuffer implements gpu.Context. Contents are preserved
// where the old and new sizes overlap.
func (c *Context) ResizeDefaultFramebuffer(size geom.Size) error {
	if c.lost {
		return gpu.ErrContextLost
	}
	if size.IsEmpty() {
		return fmt.Errorf("%w: %v", gpu.ErrInvalidSize, size)
	}
	if c.backbuffer != nil && c.backbuffer.size == size {
		return nil
	}
	next := newTexture(size, gpu.FormatRGBA8)
	if c.backbuffer != nil {
		next.copyFrom(c.backbuffer, geom.RectFromSize(c.backbuffer.size), geom.Point{})
	}
	c.backbuffer = next
	c.cfg.size = size
	return nil
}

// DiscardDefaultFramebuffer implements gpu.Context.
func (c *Context) DiscardDefaultFramebuffer() {
	c.backbuffer = nil
}

// HasBackbuffer reports whether the backbuffer is allocated.
func (c *Context) HasBackbuffer() bool { return c.backbuffer != nil }

// DefaultFramebufferSize returns the backbuffer size.
func (c *Context) DefaultFramebufferSize() geom.Size { return c.cfg.size }

// BackbufferPixels returns a copy of the backbuffer as a top-down RGBA
// image, matching what a display would show.
func (c *Context) BackbufferPixels() []byte {
	if c.backbuffer == nil {
		return nil
	}
	return c.backbuffer.topDown()
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

// drawBounds is the part of target the current state allows writing to.
func (c *Context) drawBounds(t *texture) geom.Rect {
	r := geom.RectFromSize(t.size).Intersect(c.viewport)
	if c.scissorOn {
		r = r.Intersect(c.scissor)
	}
	return r
}

// Clear implements gpu.Context.
func (c *Context) Clear(color gputypes.Color) {
	if c.lost {
		return
	}
	t, err := c.target()
	if err != nil {
		slogger().Warn("soft: clear without target", "err", err)
		return
	}
	px := [4]float32{float32(color.R), float32(color.G), float32(color.B), float32(color.A)}
	t.fill(c.drawBounds(t), px)
	c.stats.Clears++
}

// CreateProgram implements gpu.Context.
func (c *Context) CreateProgram(key gpu.ProgramKey) error {
	if c.lost {
		return gpu.ErrContextLost
	}
	if err := key.Validate(); err != nil {
		return err
	}
	if _, ok := c.programs[key]; ok {
		return nil
	}
	if c.cfg.validate {
		if _, err := shader.Compile(key); err != nil {
			return fmt.Errorf("soft: program %s: %w", key, err)
		}
	}
	c.programs[key] = struct{}{}
	c.stats.ProgramsCreated++
	slogger().Debug("soft: program created", "program", key.String())
	return nil
}

// DeleteProgram implements gpu.Context.
func (c *Context) DeleteProgram(key gpu.ProgramKey) {
	delete(c.programs, key)
}

// UseProgram implements gpu.Context.
func (c *Context) UseProgram(key gpu.ProgramKey) { c.program = key }

// HasProgram reports whether key was created.
func (c *Context) HasProgram(key gpu.ProgramKey) bool {
	_, ok := c.programs[key]
	return ok
}

// Destroy implements gpu.Context.
func (c *Context) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	clear(c.textures)
	clear(c.framebuffers)
	clear(c.programs)
	clear(c.buffers)
	clear(c.queries)
	c.backbuffer = nil
	if c.pool != nil {
		c.pool.Close()
	}
}

var _ gpu.Context = (*Context)(nil)
