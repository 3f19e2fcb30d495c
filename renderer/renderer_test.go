package renderer

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/compositor/filter"
	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/gpu/soft"
	"github.com/gogpu/compositor/output"
	"github.com/gogpu/compositor/quads"
	"github.com/gogpu/compositor/resource"
)

var (
	red   = gputypes.Color{R: 1, A: 1}
	green = gputypes.Color{G: 1, A: 1}
	blue  = gputypes.Color{B: 1, A: 1}

	rgbaRed    = color.RGBA{R: 255, A: 255}
	rgbaGreen  = color.RGBA{G: 255, A: 255}
	rgbaBlue   = color.RGBA{B: 255, A: 255}
	rgbaYellow = color.RGBA{R: 255, G: 255, A: 255}
	rgbaBlack  = color.RGBA{A: 255}
)

var (
	rootID  = quads.RenderPassID{LayerID: 1}
	childID = quads.RenderPassID{LayerID: 2}
)

const frameSize = 4

type harness struct {
	t        *testing.T
	ctx      *soft.Context
	surface  *output.Offscreen
	provider *resource.Provider
	r        *Renderer
}

type harnessConfig struct {
	ctx      []soft.Option
	surface  []output.OffscreenOption
	renderer []Option
}

func newHarness(t *testing.T, cfg harnessConfig) *harness {
	t.Helper()
	ctx := soft.New(append([]soft.Option{soft.WithSize(frameSize, frameSize)}, cfg.ctx...)...)
	surface := output.NewOffscreen(ctx, cfg.surface...)
	provider := resource.NewProvider(ctx)
	r, err := New(surface, provider, cfg.renderer...)
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Destroy()
		provider.Destroy()
		surface.Destroy()
	})
	return &harness{t: t, ctx: ctx, surface: surface, provider: provider, r: r}
}

func (h *harness) draw(passes ...*quads.RenderPass) {
	h.t.Helper()
	list := quads.RenderPassList(passes)
	full := geom.XYWH(0, 0, frameSize, frameSize)
	require.NoError(h.t, h.r.DrawFrame(&list, 1, full, full, false))
}

func (h *harness) pixel(x, y int) color.RGBA {
	h.t.Helper()
	img, err := h.surface.Snapshot()
	require.NoError(h.t, err)
	return img.RGBAAt(x, y)
}

func rootPass() *quads.RenderPass {
	return quads.NewRenderPass(rootID, geom.XYWH(0, 0, frameSize, frameSize))
}

func addSolid(p *quads.RenderPass, rect geom.Rect, c gputypes.Color) *quads.DrawQuad {
	q := quads.NewSolidColorQuad(p.CreateAndAppendSharedQuadState(), rect, c)
	p.AppendQuad(q)
	return q
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestNewRejectsForeignProvider(t *testing.T) {
	surface := output.NewOffscreen(soft.New())
	provider := resource.NewProvider(soft.New())
	_, err := New(surface, provider)
	assert.ErrorIs(t, err, ErrContextMismatch)

	_, err = New(output.NewOffscreen(provider.Context()), provider, WithTextureBatchCap(0))
	assert.Error(t, err)
}

func TestDrawFrameBackToFront(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	root := rootPass()
	addSolid(root, geom.XYWH(0, 0, 2, 2), red)
	addSolid(root, geom.XYWH(0, 0, frameSize, frameSize), green)
	h.draw(root)

	assert.Equal(t, rgbaRed, h.pixel(0, 0))
	assert.Equal(t, rgbaRed, h.pixel(1, 1))
	assert.Equal(t, rgbaGreen, h.pixel(2, 2))
	assert.Equal(t, rgbaGreen, h.pixel(3, 0))

	st := h.r.Stats()
	assert.Equal(t, 1, st.Frames)
	assert.Equal(t, 2, st.DrawCalls)
	assert.Equal(t, SurfaceFullClear, st.RootInitialization)
	assert.Equal(t, 1, h.ctx.Stats().Clears)
	assert.Empty(t, root.QuadList, "pass list is cleared after drawing")
}

func TestDrawFrameErrors(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	full := geom.XYWH(0, 0, frameSize, frameSize)

	var empty quads.RenderPassList
	assert.ErrorIs(t, h.r.DrawFrame(&empty, 1, full, full, false), quads.ErrEmptyPassList)

	h.ctx.LoseContext()
	list := quads.RenderPassList{rootPass()}
	assert.ErrorIs(t, h.r.DrawFrame(&list, 1, full, full, false), gpu.ErrContextLost)

	h.r.Destroy()
	list = quads.RenderPassList{rootPass()}
	assert.ErrorIs(t, h.r.DrawFrame(&list, 1, full, full, false), ErrDestroyed)
	assert.ErrorIs(t, h.r.SwapBuffers(output.FrameMetadata{}), ErrDestroyed)
}

func TestRootInitialization(t *testing.T) {
	tests := []struct {
		name  string
		cfg   harnessConfig
		want  SurfaceInitializationMode
		clear int
	}{
		{"default", harnessConfig{}, SurfaceFullClear, 1},
		{"no root clear", harnessConfig{renderer: []Option{WithClearRootRenderPass(false)}}, SurfacePreserve, 0},
		{"external stencil", harnessConfig{surface: []output.OffscreenOption{output.WithExternalStencilTest()}}, SurfacePreserve, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.cfg)
			root := rootPass()
			addSolid(root, geom.XYWH(0, 0, frameSize, frameSize), green)
			h.draw(root)
			assert.Equal(t, tt.want, h.r.Stats().RootInitialization)
			assert.Equal(t, tt.clear, h.ctx.Stats().Clears)
			assert.Equal(t, 1, h.r.Stats().DrawCalls)
		})
	}
}

func TestFullSwapRect(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	root := rootPass()
	root.DamageRect = geom.XYWH(0, 0, 1, 1)
	addSolid(root, geom.XYWH(0, 0, frameSize, frameSize), green)
	h.draw(root)
	require.NoError(t, h.r.SwapBuffers(output.FrameMetadata{}))

	frame, ok := h.surface.LastFrame()
	require.True(t, ok)
	assert.Equal(t, geom.XYWH(0, 0, frameSize, frameSize), frame.SubBufferRect)
	assert.Equal(t, uint64(1), frame.Metadata.FrameID)
	assert.Equal(t, 1.0, frame.Metadata.DeviceScaleFactor)
	assert.True(t, h.r.SwapBufferRect().IsEmpty())
}

func TestPartialSwapDrawsOnlyDamage(t *testing.T) {
	h := newHarness(t, harnessConfig{
		surface:  []output.OffscreenOption{output.WithPartialSwap(true)},
		renderer: []Option{WithPartialSwap(true)},
	})

	first := rootPass()
	addSolid(first, geom.XYWH(0, 0, frameSize, frameSize), red)
	h.draw(first)
	require.NoError(t, h.r.SwapBuffers(output.FrameMetadata{}))
	assert.Equal(t, SurfaceFullClear, h.r.Stats().RootInitialization)

	second := rootPass()
	second.DamageRect = geom.XYWH(0, 0, 2, 2)
	addSolid(second, geom.XYWH(0, 0, frameSize, frameSize), green)
	h.draw(second)

	assert.Equal(t, SurfaceScissoredClear, h.r.Stats().RootInitialization)
	assert.Equal(t, geom.XYWH(0, 0, 2, 2), h.r.SwapBufferRect())
	assert.Equal(t, rgbaGreen, h.pixel(0, 0))
	assert.Equal(t, rgbaGreen, h.pixel(1, 1))
	assert.Equal(t, rgbaRed, h.pixel(3, 3))
	assert.Equal(t, rgbaRed, h.pixel(2, 0))

	require.NoError(t, h.r.SwapBuffers(output.FrameMetadata{}))
	frame, _ := h.surface.LastFrame()
	// The surface's row 0 is the bottom row, so the damage moves down.
	assert.Equal(t, geom.XYWH(0, 2, 2, 2), frame.SubBufferRect)
}

func TestPartialSwapSkipsClippedQuads(t *testing.T) {
	h := newHarness(t, harnessConfig{
		surface:  []output.OffscreenOption{output.WithPartialSwap(true)},
		renderer: []Option{WithPartialSwap(true)},
	})
	h.draw(rootPass())

	root := rootPass()
	root.DamageRect = geom.XYWH(0, 0, 1, 1)
	q := addSolid(root, geom.XYWH(2, 2, 2, 2), red)
	q.SharedState.IsClipped = true
	q.SharedState.ClipRect = geom.XYWH(2, 2, 2, 2)
	h.r.ResetStats()
	h.draw(root)

	assert.Equal(t, 1, h.r.Stats().QuadsSkipped)
	assert.Zero(t, h.r.Stats().DrawCalls)
}

func TestQuadClipRect(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	root := rootPass()
	q := addSolid(root, geom.XYWH(0, 0, frameSize, frameSize), blue)
	q.SharedState.IsClipped = true
	q.SharedState.ClipRect = geom.XYWH(1, 1, 2, 2)
	h.draw(root)

	assert.Equal(t, rgbaBlue, h.pixel(1, 1))
	assert.Equal(t, rgbaBlue, h.pixel(2, 2))
	assert.Equal(t, color.RGBA{}, h.pixel(0, 0))
	assert.Equal(t, color.RGBA{}, h.pixel(3, 3))
}

func childPass(c gputypes.Color) *quads.RenderPass {
	child := quads.NewRenderPass(childID, geom.XYWH(0, 0, 2, 2))
	addSolid(child, geom.XYWH(0, 0, 2, 2), c)
	return child
}

func addPassQuad(root *quads.RenderPass, at geom.Point) (*quads.DrawQuad, *quads.RenderPassQuad) {
	sqs := root.CreateAndAppendSharedQuadState()
	sqs.QuadToTargetTransform = geom.Translate(float64(at.X), float64(at.Y), 0)
	sqs.QuadLayerBounds = geom.Size{Width: 2, Height: 2}
	q := quads.NewRenderPassQuad(sqs, geom.XYWH(0, 0, 2, 2), childID)
	root.AppendQuad(q)
	return q, q.Payload.(*quads.RenderPassQuad)
}

func TestRenderPassQuad(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	root := rootPass()
	addPassQuad(root, geom.Point{X: 1, Y: 1})
	h.draw(childPass(blue), root)

	assert.Equal(t, rgbaBlue, h.pixel(1, 1))
	assert.Equal(t, rgbaBlue, h.pixel(2, 2))
	assert.Equal(t, color.RGBA{}, h.pixel(0, 0))
	assert.Equal(t, color.RGBA{}, h.pixel(3, 3))
	assert.True(t, h.r.HasAllocatedResources(childID))
	assert.False(t, h.r.HasAllocatedResources(rootID), "the root draws to the surface")
	assert.Equal(t, 2, h.r.Stats().PassesDrawn)
}

func TestRenderPassTexturesPersistAcrossFrames(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	for range 3 {
		root := rootPass()
		addPassQuad(root, geom.Point{})
		h.draw(childPass(blue), root)
	}
	assert.Equal(t, 1, h.r.Stats().TexturesAllocated)

	list := quads.RenderPassList{childPass(blue), rootPass()}
	h.r.DecideRenderPassAllocationsForFrame(list)
	h.r.DecideRenderPassAllocationsForFrame(list)
	assert.True(t, h.r.HasAllocatedResources(childID))

	grown := quads.NewRenderPass(childID, geom.XYWH(0, 0, 3, 3))
	h.r.DecideRenderPassAllocationsForFrame(quads.RenderPassList{grown, rootPass()})
	assert.False(t, h.r.HasAllocatedResources(childID), "grown pass drops its texture")

	big := quads.NewRenderPass(childID, geom.XYWH(0, 0, 3, 3))
	addSolid(big, geom.XYWH(0, 0, 3, 3), red)
	root := rootPass()
	addPassQuad(root, geom.Point{})
	h.draw(big, root)
	assert.Equal(t, 2, h.r.Stats().TexturesAllocated)

	h.r.DecideRenderPassAllocationsForFrame(quads.RenderPassList{childPass(blue), rootPass()})
	assert.True(t, h.r.HasAllocatedResources(childID), "shrunk pass keeps its larger texture")

	root = rootPass()
	addPassQuad(root, geom.Point{X: 1, Y: 1})
	h.draw(childPass(blue), root)
	assert.Equal(t, 2, h.r.Stats().TexturesAllocated)
	assert.Equal(t, rgbaBlue, h.pixel(1, 1))
	assert.Equal(t, rgbaBlue, h.pixel(2, 2))
	assert.Equal(t, color.RGBA{}, h.pixel(3, 3))

	h.draw(rootPass())
	assert.False(t, h.r.HasAllocatedResources(childID))
}

func TestRenderPassQuadColorMatrix(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	root := rootPass()
	_, p := addPassQuad(root, geom.Point{})
	p.Filters = filter.Operations{filter.NewColorOperation(filter.Invert, 1)}
	h.draw(childPass(blue), root)

	assert.Equal(t, rgbaYellow, h.pixel(0, 0))
	assert.Equal(t, rgbaYellow, h.pixel(1, 1))
	assert.Zero(t, h.r.Stats().FilteredCopies, "color matrices are applied while drawing")
}

func TestRenderPassQuadBlendMode(t *testing.T) {
	tests := []struct {
		name     string
		mode     gpu.BlendMode
		opts     []Option
		want     color.RGBA
		captures int
	}{
		{"src over", gpu.BlendSrcOver, nil, rgbaBlue, 0},
		{"src over in shader", gpu.BlendSrcOver, []Option{WithShaderBlending()}, rgbaBlue, 1},
		{"screen", gpu.BlendScreen, nil, color.RGBA{R: 255, B: 255, A: 255}, 0},
		{"multiply", gpu.BlendMultiply, nil, rgbaBlack, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, harnessConfig{renderer: tt.opts})
			root := rootPass()
			q, _ := addPassQuad(root, geom.Point{})
			q.SharedState.BlendMode = tt.mode
			addSolid(root, geom.XYWH(0, 0, frameSize, frameSize), red)
			h.draw(childPass(blue), root)

			assert.Equal(t, tt.want, h.pixel(0, 0))
			assert.Equal(t, rgbaRed, h.pixel(3, 3))
			assert.Equal(t, tt.captures, h.r.Stats().BackdropCaptures)
		})
	}
}

func TestTextureBatching(t *testing.T) {
	draw := func(t *testing.T, limit int) (*harness, Stats) {
		h := newHarness(t, harnessConfig{renderer: []Option{WithTextureBatchCap(limit)}})
		id, err := h.provider.CreateFromImage(solidImage(2, 2, rgbaGreen))
		require.NoError(t, err)
		root := rootPass()
		sqs := root.CreateAndAppendSharedQuadState()
		for _, at := range []geom.Point{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 0, Y: 2}, {X: 2, Y: 2}} {
			root.AppendQuad(quads.NewTextureQuad(sqs, geom.XYWH(at.X, at.Y, 2, 2), id, true))
		}
		h.draw(root)
		return h, h.r.Stats()
	}

	batched, st := draw(t, 8)
	assert.Equal(t, 1, st.DrawCalls)
	assert.Equal(t, 1, st.TextureBatches)
	assert.Equal(t, 4, st.QuadsDrawn)

	single, st := draw(t, 1)
	assert.Equal(t, 4, st.DrawCalls)
	assert.Equal(t, 4, st.TextureBatches)

	a, err := batched.surface.Snapshot()
	require.NoError(t, err)
	b, err := single.surface.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, a.Pix, b.Pix)
	assert.Equal(t, rgbaGreen, a.RGBAAt(3, 3))
}

func TestTextureBatchBreaksOnResourceChange(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	a, err := h.provider.CreateFromImage(solidImage(2, 2, rgbaGreen))
	require.NoError(t, err)
	b, err := h.provider.CreateFromImage(solidImage(2, 2, rgbaBlue))
	require.NoError(t, err)

	root := rootPass()
	sqs := root.CreateAndAppendSharedQuadState()
	root.AppendQuad(quads.NewTextureQuad(sqs, geom.XYWH(0, 0, 2, 2), a, true))
	root.AppendQuad(quads.NewTextureQuad(sqs, geom.XYWH(2, 0, 2, 2), b, true))
	root.AppendQuad(quads.NewTextureQuad(sqs, geom.XYWH(0, 2, 2, 2), a, true))
	h.draw(root)

	assert.Equal(t, 3, h.r.Stats().TextureBatches)
	assert.Equal(t, rgbaGreen, h.pixel(0, 0))
	assert.Equal(t, rgbaBlue, h.pixel(3, 0))
	assert.Equal(t, rgbaGreen, h.pixel(0, 3))
	assert.False(t, h.provider.IsLocked(a))
	assert.False(t, h.provider.IsLocked(b))
}

func TestSortingContextDrawsNearestLast(t *testing.T) {
	tests := []struct {
		name    string
		context int
		want    color.RGBA
	}{
		{"list order", 0, rgbaGreen},
		{"depth sorted", 1, rgbaRed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, harnessConfig{})
			root := rootPass()
			front := addSolid(root, geom.XYWH(0, 0, frameSize, frameSize), green)
			front.SharedState.SortingContextID = tt.context
			near := addSolid(root, geom.XYWH(0, 0, frameSize, frameSize), red)
			near.SharedState.SortingContextID = tt.context
			near.SharedState.QuadToTargetTransform = geom.Translate(0, 0, 10)
			h.draw(root)

			assert.Equal(t, tt.want, h.pixel(1, 1))
			assert.Equal(t, 2, h.r.Stats().DrawCalls)
			assert.Zero(t, h.r.Stats().ContractViolations)
		})
	}
}

// rotatedAboutCenter turns a full-frame quad about the vertical line
// x = frameSize/2.
func rotatedAboutCenter(degrees float64) geom.Transform {
	c := float64(frameSize) / 2
	return geom.Translate(c, 0, 0).Mul(geom.RotateY(degrees * math.Pi / 180)).Mul(geom.Translate(-c, 0, 0))
}

func TestSortingContextSplitsIntersectingQuads(t *testing.T) {
	// Turned +30 degrees, red is nearer left of the center line. Green,
	// turned -30 degrees, is nearer right of it.
	tests := []struct {
		name     string
		redFirst bool
	}{
		{"red listed first", true},
		{"green listed first", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, harnessConfig{})
			root := rootPass()
			add := func(c gputypes.Color, degrees float64) {
				q := addSolid(root, geom.XYWH(0, 0, frameSize, frameSize), c)
				q.SharedState.SortingContextID = 1
				q.SharedState.QuadToTargetTransform = rotatedAboutCenter(degrees)
			}
			if tt.redFirst {
				add(red, 30)
				add(green, -30)
			} else {
				add(green, -30)
				add(red, 30)
			}
			h.draw(root)

			assert.Equal(t, rgbaRed, h.pixel(1, 1))
			assert.Equal(t, rgbaGreen, h.pixel(2, 1))
			// One quad is split along the intersection.
			assert.Equal(t, 3, h.r.Stats().DrawCalls)
			assert.Zero(t, h.r.Stats().ContractViolations)
		})
	}
}

func TestContractViolations(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	root := rootPass()
	sqs := root.CreateAndAppendSharedQuadState()
	root.AppendQuad(quads.NewDrawQuad(sqs, geom.XYWH(0, 0, 1, 1), nil))
	root.AppendQuad(quads.NewDrawQuad(sqs, geom.XYWH(0, 0, 1, 1), &quads.PictureQuad{}))
	root.AppendQuad(quads.NewTextureQuad(sqs, geom.XYWH(0, 0, 1, 1), resource.ID(99), true))
	h.draw(root)
	assert.Equal(t, 3, h.r.Stats().ContractViolations)

	strict := newHarness(t, harnessConfig{renderer: []Option{WithStrictChecks()}})
	bad := rootPass()
	bad.AppendQuad(quads.NewDrawQuad(bad.CreateAndAppendSharedQuadState(), geom.XYWH(0, 0, 1, 1), nil))
	list := quads.RenderPassList{bad}
	full := geom.XYWH(0, 0, frameSize, frameSize)
	assert.Error(t, strict.r.DrawFrame(&list, 1, full, full, false))
}

func TestSetVisibleReleasesResources(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	root := rootPass()
	addPassQuad(root, geom.Point{})
	h.draw(childPass(blue), root)
	require.True(t, h.r.HasAllocatedResources(childID))

	h.r.SetVisible(false)
	assert.False(t, h.r.IsVisible())
	assert.False(t, h.r.HasAllocatedResources(childID))
	assert.False(t, h.ctx.HasBackbuffer())

	h.r.SetVisible(true)
	root = rootPass()
	addPassQuad(root, geom.Point{})
	h.draw(childPass(green), root)
	assert.True(t, h.ctx.HasBackbuffer())
	assert.Equal(t, rgbaGreen, h.pixel(0, 0))
	assert.Equal(t, 2, h.r.Stats().TexturesAllocated)
}

func TestStateCacheResetEachFrame(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	for range 2 {
		root := rootPass()
		addSolid(root, geom.XYWH(0, 0, 2, 2), red)
		addSolid(root, geom.XYWH(2, 2, 2, 2), red)
		h.draw(root)
	}
	assert.Equal(t, 1, h.r.ProgramCount())
	assert.Equal(t, 4, h.r.Stats().DrawCalls)
	assert.Equal(t, rgbaRed, h.pixel(3, 3))
}

func TestDestroyIsIdempotent(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	root := rootPass()
	addPassQuad(root, geom.Point{})
	h.draw(childPass(blue), root)
	h.r.Destroy()
	h.r.Destroy()
	assert.False(t, h.r.HasAllocatedResources(childID))
	assert.True(t, errors.Is(h.r.SwapBuffers(output.FrameMetadata{}), ErrDestroyed))
}
