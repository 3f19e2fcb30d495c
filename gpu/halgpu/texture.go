package halgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
)

// textureUsage lets every texture be sampled, rendered to and copied.
const textureUsage = gputypes.TextureUsageTextureBinding |
	gputypes.TextureUsageRenderAttachment |
	gputypes.TextureUsageCopySrc |
	gputypes.TextureUsageCopyDst

// texture is a hal texture with the single view used for sampling and
// rendering.
type texture struct {
	tex    hal.Texture
	view   hal.TextureView
	size   geom.Size
	format gpu.Format
}

func newTexture(device hal.Device, label string, width, height int, format gpu.Format) (*texture, error) {
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          extent(width, height),
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format.TextureFormat(),
		Usage:         textureUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create texture %dx%d: %w", width, height, err)
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: label + "_view",
	})
	if err != nil {
		device.DestroyTexture(tex)
		return nil, fmt.Errorf("halgpu: create texture view: %w", err)
	}
	return &texture{
		tex:    tex,
		view:   view,
		size:   geom.Size{Width: width, Height: height},
		format: format,
	}, nil
}

// write uploads rows of pixels in the texture's format. Row 0 lands on
// texture row y.
func (t *texture) write(queue hal.Queue, x, y, width, height int, pixels []byte, stride int) error {
	err := queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture: t.tex,
			Origin:  hal.Origin3D{X: uint32(x), Y: uint32(y)}, //nolint:gosec // validated against the texture size
			Aspect:  gputypes.TextureAspectAll,
		},
		pixels,
		&hal.ImageDataLayout{BytesPerRow: uint32(stride), RowsPerImage: uint32(height)}, //nolint:gosec // positive
		&hal.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1}, //nolint:gosec // positive
	)
	if err != nil {
		return fmt.Errorf("halgpu: write texture: %w", err)
	}
	return nil
}

func (t *texture) release(device hal.Device) {
	if t.view != nil {
		device.DestroyTextureView(t.view)
		t.view = nil
	}
	if t.tex != nil {
		device.DestroyTexture(t.tex)
		t.tex = nil
	}
}

func extent(width, height int) hal.Extent3D {
	return hal.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1} //nolint:gosec // sizes are validated positive
}

// CreateTexture implements gpu.Context.
func (c *Context) CreateTexture(size geom.Size, format gpu.Format) (gpu.TextureID, error) {
	if c.lost {
		return gpu.InvalidID, gpu.ErrContextLost
	}
	limit := int(c.cfg.limits.MaxTextureDimension2D)
	if size.IsEmpty() || size.Width > limit || size.Height > limit {
		return gpu.InvalidID, fmt.Errorf("%w: %v", gpu.ErrInvalidSize, size)
	}
	id := gpu.TextureID(c.newID())
	t, err := newTexture(c.device, fmt.Sprintf("texture_%d", id), size.Width, size.Height, format)
	if err != nil {
		return gpu.InvalidID, err
	}
	c.textures[id] = t
	return id, nil
}

// UploadTexture implements gpu.Context. Commands recorded so far are
// submitted first so they observe the previous contents.
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
	if rect.IsEmpty() {
		return nil
	}
	if c.recorded {
		c.submit()
	}
	if err := t.write(c.queue, rect.X, rect.Y, rect.Width, rect.Height, pixels, stride); err != nil {
		return err
	}
	c.stats.TextureUploads++
	return nil
}

// DeleteTexture implements gpu.Context.
func (c *Context) DeleteTexture(id gpu.TextureID) {
	t, ok := c.textures[id]
	if !ok {
		return
	}
	delete(c.textures, id)
	if c.passTarget == t {
		c.endPass()
	}
	c.retire(func() { t.release(c.device) })
}

// TextureSize implements gpu.Context.
func (c *Context) TextureSize(id gpu.TextureID) geom.Size {
	if t, ok := c.textures[id]; ok {
		return t.size
	}
	return geom.Size{}
}

// TextureFormat returns the format of a texture.
func (c *Context) TextureFormat(id gpu.TextureID) (gpu.Format, bool) {
	t, ok := c.textures[id]
	if !ok {
		return 0, false
	}
	return t.format, true
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
	c.framebuffers[id] = tex
	return id, nil
}

// DeleteFramebuffer implements gpu.Context.
func (c *Context) DeleteFramebuffer(id gpu.FramebufferID) {
	delete(c.framebuffers, id)
	if c.bound == id {
		c.bound = gpu.DefaultFramebuffer
	}
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
	next, err := newTexture(c.device, "backbuffer", size.Width, size.Height, c.cfg.format)
	if err != nil {
		return err
	}
	if old := c.backbuffer; old != nil {
		overlap := geom.RectFromSize(old.size).Intersect(geom.RectFromSize(size))
		c.copyTexture(old, next, overlap, geom.Point{})
		c.discardBackbuffer()
	}
	c.backbuffer = next
	c.cfg.size = size
	return nil
}

// DiscardDefaultFramebuffer implements gpu.Context.
func (c *Context) DiscardDefaultFramebuffer() {
	c.discardBackbuffer()
}

func (c *Context) discardBackbuffer() {
	old := c.backbuffer
	if old == nil {
		return
	}
	c.backbuffer = nil
	if c.passTarget == old {
		c.endPass()
	}
	c.retire(func() { old.release(c.device) })
}

// HasBackbuffer reports whether the backbuffer is allocated.
func (c *Context) HasBackbuffer() bool { return c.backbuffer != nil }

// DefaultFramebufferSize returns the backbuffer size.
func (c *Context) DefaultFramebufferSize() geom.Size { return c.cfg.size }

// CopyTexSubImage implements gpu.Context.
func (c *Context) CopyTexSubImage(dst gpu.TextureID, dstOrigin geom.Point, src geom.Rect) error {
	if c.lost {
		return gpu.ErrContextLost
	}
	from, err := c.target()
	if err != nil {
		return err
	}
	to, ok := c.textures[dst]
	if !ok {
		return fmt.Errorf("%w: texture %d", gpu.ErrInvalidID, dst)
	}
	if !geom.RectFromSize(from.size).Contains(src) {
		return fmt.Errorf("%w: copy %v outside %v", gpu.ErrInvalidSize, src, from.size)
	}
	dstRect := geom.Rect{X: dstOrigin.X, Y: dstOrigin.Y, Width: src.Width, Height: src.Height}
	if !geom.RectFromSize(to.size).Contains(dstRect) {
		return fmt.Errorf("%w: copy to %v outside %v", gpu.ErrInvalidSize, dstRect, to.size)
	}
	c.copyTexture(from, to, src, dstOrigin)
	c.stats.TextureCopies++
	return nil
}

// copyTexture records a copy of src in from to dstOrigin in to.
func (c *Context) copyTexture(from, to *texture, src geom.Rect, dstOrigin geom.Point) {
	if src.IsEmpty() {
		return
	}
	enc, err := c.copyEncoder()
	if err != nil {
		slogger().Warn("halgpu: texture copy dropped", "err", err)
		return
	}
	enc.TransitionTextures([]hal.TextureBarrier{
		transition(from.tex, gputypes.TextureUsageRenderAttachment, gputypes.TextureUsageCopySrc),
		transition(to.tex, gputypes.TextureUsageTextureBinding, gputypes.TextureUsageCopyDst),
	})
	enc.CopyTextureToTexture(from.tex, to.tex, []hal.TextureCopy{{
		SrcBase: hal.ImageCopyTexture{
			Texture: from.tex,
			Origin:  hal.Origin3D{X: uint32(src.X), Y: uint32(src.Y)}, //nolint:gosec // validated inside the texture
			Aspect:  gputypes.TextureAspectAll,
		},
		DstBase: hal.ImageCopyTexture{
			Texture: to.tex,
			Origin:  hal.Origin3D{X: uint32(dstOrigin.X), Y: uint32(dstOrigin.Y)}, //nolint:gosec // validated inside the texture
			Aspect:  gputypes.TextureAspectAll,
		},
		Size: extent(src.Width, src.Height),
	}})
	enc.TransitionTextures([]hal.TextureBarrier{
		transition(from.tex, gputypes.TextureUsageCopySrc, gputypes.TextureUsageRenderAttachment),
		transition(to.tex, gputypes.TextureUsageCopyDst, gputypes.TextureUsageTextureBinding),
	})
}

func transition(tex hal.Texture, from, to gputypes.TextureUsage) hal.TextureBarrier {
	return hal.TextureBarrier{
		Texture: tex,
		Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll, MipLevelCount: 1, ArrayLayerCount: 1},
		Usage:   hal.TextureUsageTransition{OldUsage: from, NewUsage: to},
	}
}
