package output

import (
	"fmt"
	"image"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
)

// OffscreenOption configures an Offscreen surface.
type OffscreenOption func(*Offscreen)

// WithPartialSwap enables partial swap support.
func WithPartialSwap(enabled bool) OffscreenOption {
	return func(s *Offscreen) {
		s.caps.PartialSwap = enabled
	}
}

// WithFlippedOutput marks the context's window row 0 as the top row.
func WithFlippedOutput() OffscreenOption {
	return func(s *Offscreen) {
		s.caps.FlippedOutput = true
	}
}

// WithExternalStencilTest reports an embedder stencil test.
func WithExternalStencilTest() OffscreenOption {
	return func(s *Offscreen) {
		s.externalStencil = true
	}
}

// WithOverlayPlane makes the surface report itself as an overlay plane.
func WithOverlayPlane() OffscreenOption {
	return func(s *Offscreen) {
		s.overlayPlane = true
	}
}

// WithOverlayPlanes advertises n hardware overlay planes.
func WithOverlayPlanes(n int) OffscreenOption {
	return func(s *Offscreen) {
		s.caps.MaxOverlayPlanes = n
	}
}

// WithSwapHandler calls fn with every swapped frame.
func WithSwapHandler(fn func(*Frame)) OffscreenOption {
	return func(s *Offscreen) {
		s.onSwap = fn
	}
}

// Offscreen is a Surface backed by the default framebuffer of a context
// that is never shown on screen. It records the frames swapped into it.
type Offscreen struct {
	ctx   gpu.Context
	caps  Capabilities
	size  geom.Size
	scale float64

	externalStencil bool
	overlayPlane    bool
	discarded       bool

	onSwap    func(*Frame)
	lastFrame Frame
	swapCount int
	destroyed bool
}

// NewOffscreen wraps ctx. The surface takes ownership of the context.
func NewOffscreen(ctx gpu.Context, opts ...OffscreenOption) *Offscreen {
	s := &Offscreen{
		ctx:   ctx,
		caps:  Capabilities{MaxFramesPending: 1},
		scale: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Context implements Surface.
func (s *Offscreen) Context() gpu.Context { return s.ctx }

// Capabilities implements Surface.
func (s *Offscreen) Capabilities() Capabilities { return s.caps }

// EnsureBackbuffer implements Surface.
func (s *Offscreen) EnsureBackbuffer() {
	if !s.discarded {
		return
	}
	s.discarded = false
	if s.size.IsEmpty() {
		return
	}
	if err := s.ctx.ResizeDefaultFramebuffer(s.size); err != nil {
		compositor.Logger().Warn("output: restore backbuffer", "err", err)
	}
}

// DiscardBackbuffer implements Surface.
func (s *Offscreen) DiscardBackbuffer() {
	if s.discarded {
		return
	}
	s.discarded = true
	s.ctx.DiscardDefaultFramebuffer()
}

// Reshape implements Surface.
func (s *Offscreen) Reshape(size geom.Size, scaleFactor float64) error {
	if size == s.size && scaleFactor == s.scale {
		return nil
	}
	if err := s.ctx.ResizeDefaultFramebuffer(size); err != nil {
		return fmt.Errorf("output: reshape to %v: %w", size, err)
	}
	compositor.Logger().Info("output: reshape", "size", size, "scale", scaleFactor)
	s.size = size
	s.scale = scaleFactor
	s.discarded = false
	return nil
}

// SurfaceSize implements Surface.
func (s *Offscreen) SurfaceSize() geom.Size { return s.size }

// ScaleFactor returns the scale of the last Reshape.
func (s *Offscreen) ScaleFactor() float64 { return s.scale }

// BindFramebuffer implements Surface.
func (s *Offscreen) BindFramebuffer() {
	s.ctx.BindFramebuffer(gpu.DefaultFramebuffer)
}

// SwapBuffers implements Surface.
func (s *Offscreen) SwapBuffers(frame *Frame) error {
	if s.discarded {
		return ErrNoBackbuffer
	}
	s.ctx.Flush()
	s.lastFrame = *frame
	s.lastFrame.Overlays = append([]OverlayPlane(nil), frame.Overlays...)
	s.swapCount++
	if s.onSwap != nil {
		s.onSwap(frame)
	}
	return nil
}

// HasExternalStencilTest implements Surface.
func (s *Offscreen) HasExternalStencilTest() bool { return s.externalStencil }

// IsDisplayedAsOverlayPlane implements Surface.
func (s *Offscreen) IsDisplayedAsOverlayPlane() bool { return s.overlayPlane }

// LastFrame returns the most recently swapped frame.
func (s *Offscreen) LastFrame() (Frame, bool) {
	return s.lastFrame, s.swapCount > 0
}

// SwapCount returns the number of frames swapped.
func (s *Offscreen) SwapCount() int { return s.swapCount }

// Snapshot reads the backbuffer as it would be presented, top row first.
func (s *Offscreen) Snapshot() (*image.RGBA, error) {
	if s.discarded {
		return nil, ErrNoBackbuffer
	}
	s.BindFramebuffer()
	pix, err := s.ctx.ReadPixels(geom.RectFromSize(s.size))
	if err != nil {
		return nil, fmt.Errorf("output: snapshot: %w", err)
	}
	if s.ctx.Capabilities().ReadbackFormat == gpu.FormatBGRA8 {
		gpu.SwizzleRB(pix)
	}
	img := image.NewRGBA(image.Rect(0, 0, s.size.Width, s.size.Height))
	row := s.size.Width * 4
	for y := range s.size.Height {
		src := y
		if !s.caps.FlippedOutput {
			src = s.size.Height - 1 - y
		}
		copy(img.Pix[y*img.Stride:y*img.Stride+row], pix[src*row:(src+1)*row])
	}
	return img, nil
}

// Destroy implements Surface.
func (s *Offscreen) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.ctx.Destroy()
}

var _ Surface = (*Offscreen)(nil)
