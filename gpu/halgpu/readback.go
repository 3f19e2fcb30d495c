package halgpu

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
)

// copyPitchAlignment is the row pitch alignment of texture to buffer copies.
const copyPitchAlignment = 256

// readBuffer is a pixel pack buffer. The hal buffer is allocated by the
// first read and grown when a larger read needs it.
type readBuffer struct {
	buf    hal.Buffer
	size   uint64
	pitch  int
	width  int
	height int
	format gpu.Format
	mapped bool
}

func (b *readBuffer) release(device hal.Device) {
	if b.buf == nil {
		return
	}
	device.DestroyBuffer(b.buf)
	b.buf = nil
	b.size = 0
}

func alignedPitch(width int, format gpu.Format) int {
	row := width * format.BytesPerPixel()
	return (row + copyPitchAlignment - 1) / copyPitchAlignment * copyPitchAlignment
}

// CreateBuffer implements gpu.Context.
func (c *Context) CreateBuffer() (gpu.BufferID, error) {
	if c.lost {
		return gpu.InvalidID, gpu.ErrContextLost
	}
	id := gpu.BufferID(c.newID())
	c.buffers[id] = &readBuffer{}
	return id, nil
}

// DeleteBuffer implements gpu.Context.
func (c *Context) DeleteBuffer(id gpu.BufferID) {
	b, ok := c.buffers[id]
	if !ok {
		return
	}
	delete(c.buffers, id)
	c.retire(func() { b.release(c.device) })
}

// ReadPixelsAsync implements gpu.Context. The copy is recorded; the data is
// valid once the commands recorded so far have completed.
func (c *Context) ReadPixelsAsync(id gpu.BufferID, rect geom.Rect) error {
	if c.lost {
		return gpu.ErrContextLost
	}
	b, ok := c.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpu.ErrInvalidID, id)
	}
	if b.mapped {
		return gpu.ErrBufferMapped
	}
	t, err := c.target()
	if err != nil {
		return err
	}
	if !geom.RectFromSize(t.size).Contains(rect) {
		return fmt.Errorf("%w: read %v outside %v", gpu.ErrInvalidSize, rect, t.size)
	}
	if err := c.readInto(b, t, rect); err != nil {
		return err
	}
	c.stats.Readbacks++
	return nil
}

// readInto records a copy of rect of t into b.
func (c *Context) readInto(b *readBuffer, t *texture, rect geom.Rect) error {
	pitch := alignedPitch(rect.Width, t.format)
	need := uint64(pitch) * uint64(rect.Height) //nolint:gosec // positive
	if need == 0 {
		need = copyPitchAlignment
	}
	if b.buf == nil || b.size < need {
		if b.buf != nil {
			old := b.buf
			c.retire(func() { c.device.DestroyBuffer(old) })
		}
		buf, err := c.device.CreateBuffer(&hal.BufferDescriptor{
			Label: "compositor_readback",
			Size:  need,
			Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			b.buf = nil
			b.size = 0
			return fmt.Errorf("halgpu: create readback buffer: %w", err)
		}
		b.buf = buf
		b.size = need
	}
	b.pitch = pitch
	b.width = rect.Width
	b.height = rect.Height
	b.format = t.format
	if rect.IsEmpty() {
		return nil
	}

	enc, err := c.copyEncoder()
	if err != nil {
		return err
	}
	enc.TransitionTextures([]hal.TextureBarrier{
		transition(t.tex, gputypes.TextureUsageRenderAttachment, gputypes.TextureUsageCopySrc),
	})
	enc.CopyTextureToBuffer(t.tex, b.buf, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{
			BytesPerRow:  uint32(pitch),       //nolint:gosec // positive
			RowsPerImage: uint32(rect.Height), //nolint:gosec // positive
		},
		TextureBase: hal.ImageCopyTexture{
			Texture: t.tex,
			Origin:  hal.Origin3D{X: uint32(rect.X), Y: uint32(rect.Y)}, //nolint:gosec // validated inside the texture
			Aspect:  gputypes.TextureAspectAll,
		},
		Size: extent(rect.Width, rect.Height),
	}})
	enc.TransitionTextures([]hal.TextureBarrier{
		transition(t.tex, gputypes.TextureUsageCopySrc, gputypes.TextureUsageRenderAttachment),
	})
	return nil
}

// MapBuffer implements gpu.Context. The returned rows are tightly packed in
// the readback format and stay valid until the next read into the buffer.
func (c *Context) MapBuffer(id gpu.BufferID) ([]byte, error) {
	if c.lost {
		return nil, gpu.ErrContextLost
	}
	b, ok := c.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", gpu.ErrInvalidID, id)
	}
	pix, err := c.unpack(b)
	if err != nil {
		return nil, err
	}
	b.mapped = true
	return pix, nil
}

// unpack maps b and copies its rows out without the copy padding.
func (c *Context) unpack(b *readBuffer) ([]byte, error) {
	row := b.width * b.format.BytesPerPixel()
	out := make([]byte, row*b.height)
	if b.buf == nil || len(out) == 0 {
		return out, nil
	}
	used := uint64(b.pitch) * uint64(b.height) //nolint:gosec // positive
	mapping, err := c.device.MapBuffer(b.buf, 0, used)
	if err != nil {
		return nil, fmt.Errorf("halgpu: map readback buffer: %w", err)
	}
	src := unsafe.Slice((*byte)(mapping.Ptr), used)
	for y := range b.height {
		copy(out[y*row:(y+1)*row], src[y*b.pitch:])
	}
	if err := c.device.UnmapBuffer(b.buf); err != nil {
		slogger().Warn("halgpu: unmap readback buffer", "err", err)
	}
	if b.format != c.cfg.format {
		gpu.SwizzleRB(out)
	}
	return out, nil
}

// UnmapBuffer implements gpu.Context.
func (c *Context) UnmapBuffer(id gpu.BufferID) {
	if b, ok := c.buffers[id]; ok {
		b.mapped = false
	}
}

// ReadPixels implements gpu.Context. It waits for the device.
func (c *Context) ReadPixels(rect geom.Rect) ([]byte, error) {
	if c.lost {
		return nil, gpu.ErrContextLost
	}
	t, err := c.target()
	if err != nil {
		return nil, err
	}
	if !geom.RectFromSize(t.size).Contains(rect) {
		return nil, fmt.Errorf("%w: read %v outside %v", gpu.ErrInvalidSize, rect, t.size)
	}
	b := &readBuffer{}
	defer c.retire(func() { b.release(c.device) })
	if err := c.readInto(b, t, rect); err != nil {
		return nil, err
	}
	c.Finish()
	if c.lost {
		return nil, gpu.ErrContextLost
	}
	c.stats.Readbacks++
	return c.unpack(b)
}
