package halgpu

import (
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/output"
)

func init() {
	Silence()
}

// fakeCompiler skips WGSL compilation; the noop device accepts any module.
func fakeCompiler() Option {
	return func(c *config) {
		c.compile = func(gpu.ProgramKey) ([]uint32, error) {
			return []uint32{0x07230203}, nil
		}
	}
}

func newTestContext(t *testing.T, w, h int) *Context {
	t.Helper()
	c, err := Open(gputypes.BackendEmpty, WithSize(w, h), fakeCompiler())
	require.NoError(t, err)
	t.Cleanup(c.Destroy)
	return c
}

func quadAt(x, y, w, h float64) gpu.QuadGeometry {
	return gpu.QuadGeometry{
		Matrix:        geom.Translate(x, y, 0).Mul(geom.Scale(w, h, 1)),
		TexRect:       gpu.UnitTexRect,
		VertexOpacity: gpu.OpaqueVertices,
	}
}

func useProgram(t *testing.T, c *Context, key gpu.ProgramKey) {
	t.Helper()
	require.NoError(t, c.CreateProgram(key))
	c.UseProgram(key)
}

func solidCall(quads ...gpu.QuadGeometry) *gpu.DrawCall {
	call := &gpu.DrawCall{Program: gpu.ProgramKey{Kind: gpu.ProgramSolidColor}, Quads: quads}
	call.Uniforms.Color = [4]float32{1, 0, 0, 1}
	call.Uniforms.Alpha = 1
	return call
}

func TestOpenEmptyBackend(t *testing.T) {
	c := newTestContext(t, 16, 8)

	caps := c.Capabilities()
	assert.Equal(t, int(gputypes.DefaultLimits().MaxTextureDimension2D), caps.MaxTextureSize)
	assert.Equal(t, gpu.FormatBGRA8, caps.BestTextureFormat)
	assert.True(t, caps.AsyncReadback)
	assert.True(t, c.HasBackbuffer())
	assert.Equal(t, geom.Size{Width: 16, Height: 8}, c.DefaultFramebufferSize())
	assert.False(t, c.IsContextLost())
}

func TestOpenUnregisteredBackend(t *testing.T) {
	_, err := Open(gputypes.BackendDX12)
	require.ErrorIs(t, err, hal.ErrBackendNotFound)
}

type fakeProvider struct {
	device hal.Device
	queue  hal.Queue
	format gputypes.TextureFormat
}

func (p *fakeProvider) Device() gpucontext.Device             { return p.device }
func (p *fakeProvider) Queue() gpucontext.Queue               { return p.queue }
func (p *fakeProvider) SurfaceFormat() gputypes.TextureFormat { return p.format }
func (p *fakeProvider) Adapter() gpucontext.Adapter           { return nil }
func (p *fakeProvider) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{Name: "noop"} }
func (p *fakeProvider) HalDevice() any                        { return p.device }
func (p *fakeProvider) HalQueue() any                         { return p.queue }

type opaqueProvider struct{ fakeProvider }

func (p *opaqueProvider) HalDevice() any { return "not a device" }

func openNoop(t *testing.T) hal.OpenDevice {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	require.NoError(t, err)
	adapters := instance.EnumerateAdapters(nil)
	require.NotEmpty(t, adapters)
	dev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	require.NoError(t, err)
	return dev
}

func TestNewFromProvider(t *testing.T) {
	dev := openNoop(t)

	tests := []struct {
		name       string
		provider   gpucontext.DeviceProvider
		wantFormat gpu.Format
		wantErr    bool
	}{
		{"rgba surface", &fakeProvider{device: dev.Device, queue: dev.Queue, format: gputypes.TextureFormatRGBA8Unorm}, gpu.FormatRGBA8, false},
		{"bgra surface", &fakeProvider{device: dev.Device, queue: dev.Queue, format: gputypes.TextureFormatBGRA8Unorm}, gpu.FormatBGRA8, false},
		{"headless", &fakeProvider{device: dev.Device, queue: dev.Queue}, gpu.FormatBGRA8, false},
		{"nil", nil, 0, true},
		{"wrong hal types", &opaqueProvider{fakeProvider{device: dev.Device, queue: dev.Queue}}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewFromProvider(tt.provider, fakeCompiler())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer c.Destroy()
			assert.Equal(t, tt.wantFormat, c.Capabilities().ReadbackFormat)
			assert.Nil(t, c.owned)
		})
	}
}

func TestTextureLifecycle(t *testing.T) {
	c := newTestContext(t, 8, 8)

	_, err := c.CreateTexture(geom.Size{}, gpu.FormatRGBA8)
	require.ErrorIs(t, err, gpu.ErrInvalidSize)
	_, err = c.CreateTexture(geom.Size{Width: 1 << 20, Height: 1}, gpu.FormatRGBA8)
	require.ErrorIs(t, err, gpu.ErrInvalidSize)

	id, err := c.CreateTexture(geom.Size{Width: 4, Height: 2}, gpu.FormatRGBA8)
	require.NoError(t, err)
	assert.Equal(t, geom.Size{Width: 4, Height: 2}, c.TextureSize(id))
	f, ok := c.TextureFormat(id)
	require.True(t, ok)
	assert.Equal(t, gpu.FormatRGBA8, f)

	require.NoError(t, c.UploadTexture(id, geom.XYWH(0, 0, 4, 2), make([]byte, 32), 16))
	require.ErrorIs(t, c.UploadTexture(id, geom.XYWH(2, 0, 4, 2), make([]byte, 32), 16), gpu.ErrInvalidSize)
	require.ErrorIs(t, c.UploadTexture(gpu.TextureID(999), geom.XYWH(0, 0, 1, 1), make([]byte, 4), 4), gpu.ErrInvalidID)
	assert.Equal(t, 1, c.Stats().TextureUploads)

	_, err = c.CreateFramebuffer(gpu.TextureID(999))
	require.ErrorIs(t, err, gpu.ErrInvalidID)
	fb, err := c.CreateFramebuffer(id)
	require.NoError(t, err)
	c.BindFramebuffer(fb)
	assert.Equal(t, fb, c.BoundFramebuffer())

	c.DeleteTexture(id)
	assert.Equal(t, geom.Size{}, c.TextureSize(id))
	_, err = c.ReadPixels(geom.XYWH(0, 0, 1, 1))
	require.ErrorIs(t, err, gpu.ErrInvalidID)

	c.DeleteFramebuffer(fb)
	assert.Equal(t, gpu.DefaultFramebuffer, c.BoundFramebuffer())
}

func TestDrawValidation(t *testing.T) {
	c := newTestContext(t, 8, 8)
	solid := gpu.ProgramKey{Kind: gpu.ProgramSolidColor}

	c.UseProgram(solid)
	require.ErrorIs(t, c.Draw(solidCall(quadAt(0, 0, 1, 1))), gpu.ErrInvalidID)

	useProgram(t, c, solid)
	require.Error(t, c.Draw(solidCall()))

	tex := gpu.ProgramKey{Kind: gpu.ProgramTexture}
	require.Error(t, c.Draw(&gpu.DrawCall{Program: tex, Quads: []gpu.QuadGeometry{quadAt(0, 0, 1, 1)}}))

	useProgram(t, c, tex)
	id, err := c.CreateTexture(geom.Size{Width: 8, Height: 8}, gpu.FormatRGBA8)
	require.NoError(t, err)
	fb, err := c.CreateFramebuffer(id)
	require.NoError(t, err)
	c.BindFramebuffer(fb)
	call := &gpu.DrawCall{Program: tex, Quads: []gpu.QuadGeometry{quadAt(0, 0, 8, 8)}}
	call.Textures[gpu.UnitSource] = id
	require.Error(t, c.Draw(call))

	call.Textures[gpu.UnitSource] = gpu.TextureID(999)
	require.ErrorIs(t, c.Draw(call), gpu.ErrInvalidID)
	assert.Zero(t, c.Stats().DrawCalls)
}

func TestDrawsShareRenderPass(t *testing.T) {
	c := newTestContext(t, 8, 8)
	useProgram(t, c, gpu.ProgramKey{Kind: gpu.ProgramSolidColor})

	require.NoError(t, c.Draw(solidCall(quadAt(0, 0, 4, 4))))
	require.NoError(t, c.Draw(solidCall(quadAt(4, 4, 4, 4), quadAt(0, 4, 4, 4))))
	c.Blend(true, gputypes.BlendStatePremultiplied())
	require.NoError(t, c.Draw(solidCall(quadAt(2, 2, 4, 4))))

	s := c.Stats()
	assert.Equal(t, 3, s.DrawCalls)
	assert.Equal(t, 1, s.RenderPasses)
	assert.Equal(t, 2, s.PipelinesCreated)
	assert.Zero(t, s.Submissions)

	c.Flush()
	s = c.Stats()
	assert.Equal(t, 1, s.Submissions)
	assert.Zero(t, s.PendingSubmission)
}

func TestFramebufferSwitchEndsPass(t *testing.T) {
	c := newTestContext(t, 8, 8)
	useProgram(t, c, gpu.ProgramKey{Kind: gpu.ProgramSolidColor})
	id, err := c.CreateTexture(geom.Size{Width: 4, Height: 4}, gpu.FormatBGRA8)
	require.NoError(t, err)
	fb, err := c.CreateFramebuffer(id)
	require.NoError(t, err)

	require.NoError(t, c.Draw(solidCall(quadAt(0, 0, 4, 4))))
	c.BindFramebuffer(fb)
	require.NoError(t, c.Draw(solidCall(quadAt(0, 0, 4, 4))))
	c.BindFramebuffer(gpu.DefaultFramebuffer)
	require.NoError(t, c.Draw(solidCall(quadAt(0, 0, 4, 4))))

	assert.Equal(t, 3, c.Stats().RenderPasses)
}

func TestClearAndEmptyScissor(t *testing.T) {
	c := newTestContext(t, 8, 8)

	c.Clear(gputypes.Color{A: 1})
	assert.Equal(t, 1, c.Stats().Clears)
	assert.True(t, c.HasProgram(gpu.ProgramKey{Kind: gpu.ProgramSolidColor}))

	c.Scissor(true, geom.XYWH(20, 20, 4, 4))
	c.Clear(gputypes.Color{A: 1})
	useProgram(t, c, gpu.ProgramKey{Kind: gpu.ProgramSolidColor})
	require.NoError(t, c.Draw(solidCall(quadAt(0, 0, 8, 8))))

	s := c.Stats()
	assert.Equal(t, 1, s.Clears)
	assert.Zero(t, s.DrawCalls)
}

func TestDeferredRelease(t *testing.T) {
	c := newTestContext(t, 8, 8)
	useProgram(t, c, gpu.ProgramKey{Kind: gpu.ProgramTexture})
	id, err := c.CreateTexture(geom.Size{Width: 2, Height: 2}, gpu.FormatRGBA8)
	require.NoError(t, err)

	call := &gpu.DrawCall{Program: gpu.ProgramKey{Kind: gpu.ProgramTexture}, Quads: []gpu.QuadGeometry{quadAt(0, 0, 2, 2)}}
	call.Textures[gpu.UnitSource] = id
	call.Uniforms.Alpha = 1
	require.NoError(t, c.Draw(call))
	c.DeleteTexture(id)

	// The bind group and the texture wait for the submission.
	assert.Equal(t, 2, c.Stats().PendingSubmission)
	c.Flush()
	assert.Zero(t, c.Stats().PendingSubmission)

	c.DeleteProgram(gpu.ProgramKey{Kind: gpu.ProgramTexture})
	assert.False(t, c.HasProgram(gpu.ProgramKey{Kind: gpu.ProgramTexture}))
}

func TestQueriesCompleteOnFlush(t *testing.T) {
	c := newTestContext(t, 8, 8)
	useProgram(t, c, gpu.ProgramKey{Kind: gpu.ProgramSolidColor})

	q, err := c.CreateQuery()
	require.NoError(t, err)
	c.BeginQuery(q)
	require.NoError(t, c.Draw(solidCall(quadAt(0, 0, 8, 8))))
	c.EndQuery(q)

	var fired []string
	c.SignalQuery(q, func() { fired = append(fired, "first") })
	c.SignalQuery(q, func() { fired = append(fired, "second") })

	assert.False(t, c.QueryAvailable(q))
	assert.Equal(t, []gpu.QueryID{q}, c.PendingQueries())

	c.Flush()
	assert.True(t, c.QueryAvailable(q))
	assert.Equal(t, []string{"first", "second"}, fired)
	assert.Empty(t, c.PendingQueries())

	c.Flush()
	assert.Len(t, fired, 2)
}

func TestWaitQuery(t *testing.T) {
	c := newTestContext(t, 8, 8)
	q, err := c.CreateQuery()
	require.NoError(t, err)

	// Waiting on a query that never ended returns at once.
	c.WaitQuery(q)
	assert.False(t, c.QueryAvailable(q))

	fired := false
	c.BeginQuery(q)
	c.Clear(gputypes.Color{A: 1})
	c.EndQuery(q)
	c.SignalQuery(q, func() { fired = true })
	c.WaitQuery(q)

	assert.True(t, fired)
	assert.True(t, c.QueryAvailable(q))

	c.DeleteQuery(q)
	assert.False(t, c.QueryAvailable(q))
}

func TestReadPixelsAsync(t *testing.T) {
	c := newTestContext(t, 8, 8)
	buf, err := c.CreateBuffer()
	require.NoError(t, err)

	require.NoError(t, c.ReadPixelsAsync(buf, geom.XYWH(1, 1, 3, 2)))
	require.ErrorIs(t, c.ReadPixelsAsync(buf, geom.XYWH(6, 6, 4, 4)), gpu.ErrInvalidSize)
	c.Flush()

	pix, err := c.MapBuffer(buf)
	require.NoError(t, err)
	assert.Len(t, pix, 3*2*4)

	require.ErrorIs(t, c.ReadPixelsAsync(buf, geom.XYWH(0, 0, 1, 1)), gpu.ErrBufferMapped)
	c.UnmapBuffer(buf)
	require.NoError(t, c.ReadPixelsAsync(buf, geom.XYWH(0, 0, 8, 8)))
	c.Flush()
	pix, err = c.MapBuffer(buf)
	require.NoError(t, err)
	assert.Len(t, pix, 8*8*4)
	c.UnmapBuffer(buf)

	c.DeleteBuffer(buf)
	_, err = c.MapBuffer(buf)
	require.ErrorIs(t, err, gpu.ErrInvalidID)
	assert.Equal(t, 2, c.Stats().Readbacks)
}

func TestReadPixels(t *testing.T) {
	c := newTestContext(t, 8, 8)
	c.Clear(gputypes.Color{R: 1, A: 1})

	pix, err := c.ReadPixels(geom.XYWH(0, 0, 5, 3))
	require.NoError(t, err)
	assert.Len(t, pix, 5*3*4)
	assert.Equal(t, 1, c.Stats().Submissions)

	_, err = c.ReadPixels(geom.XYWH(0, 0, 9, 1))
	require.ErrorIs(t, err, gpu.ErrInvalidSize)
}

func TestAlignedPitch(t *testing.T) {
	tests := []struct {
		width int
		want  int
	}{
		{1, 256},
		{64, 256},
		{65, 512},
		{128, 512},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, alignedPitch(tt.width, gpu.FormatRGBA8), "width %d", tt.width)
	}
}

func TestCopyTexSubImage(t *testing.T) {
	c := newTestContext(t, 8, 8)
	id, err := c.CreateTexture(geom.Size{Width: 4, Height: 4}, gpu.FormatBGRA8)
	require.NoError(t, err)

	require.NoError(t, c.CopyTexSubImage(id, geom.Point{}, geom.XYWH(2, 2, 4, 4)))
	require.ErrorIs(t, c.CopyTexSubImage(id, geom.Point{X: 1}, geom.XYWH(0, 0, 4, 4)), gpu.ErrInvalidSize)
	require.ErrorIs(t, c.CopyTexSubImage(id, geom.Point{}, geom.XYWH(6, 6, 4, 4)), gpu.ErrInvalidSize)
	require.ErrorIs(t, c.CopyTexSubImage(gpu.TextureID(999), geom.Point{}, geom.XYWH(0, 0, 1, 1)), gpu.ErrInvalidID)
	assert.Equal(t, 1, c.Stats().TextureCopies)
}

func TestResizeAndDiscardBackbuffer(t *testing.T) {
	c := newTestContext(t, 8, 8)

	require.NoError(t, c.ResizeDefaultFramebuffer(geom.Size{Width: 12, Height: 4}))
	assert.Equal(t, geom.Size{Width: 12, Height: 4}, c.DefaultFramebufferSize())
	require.ErrorIs(t, c.ResizeDefaultFramebuffer(geom.Size{}), gpu.ErrInvalidSize)

	c.DiscardDefaultFramebuffer()
	assert.False(t, c.HasBackbuffer())
	_, err := c.ReadPixels(geom.XYWH(0, 0, 1, 1))
	require.ErrorIs(t, err, gpu.ErrInvalidID)

	require.NoError(t, c.ResizeDefaultFramebuffer(geom.Size{Width: 4, Height: 4}))
	assert.True(t, c.HasBackbuffer())
}

func TestDestroyTwice(t *testing.T) {
	c, err := Open(gputypes.BackendEmpty, fakeCompiler())
	require.NoError(t, err)
	useProgram(t, c, gpu.ProgramKey{Kind: gpu.ProgramSolidColor})
	require.NoError(t, c.Draw(solidCall(quadAt(0, 0, 1, 1))))

	c.Destroy()
	c.Destroy()
	assert.Equal(t, 1, c.Stats().Submissions)
}

func TestOutputBackendRegistered(t *testing.T) {
	assert.Contains(t, output.List(), BackendName)
	// Only the empty backend is linked into this test binary.
	assert.False(t, hardwareAvailable())
	assert.NotContains(t, output.Available(), BackendName)
}
