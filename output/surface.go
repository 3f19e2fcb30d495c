// Package output defines the surfaces the compositor presents frames to.
//
// A [Surface] owns the default framebuffer of a gpu.Context. The renderer
// reshapes it at the start of a frame, draws the root render pass into it
// and hands the finished frame to [Surface.SwapBuffers].
//
// Backends register surface factories with [Register]; [New] picks the
// highest priority backend that is available:
//
//	import _ "github.com/gogpu/compositor/gpu/soft"
//
//	s, err := output.New(output.Options{Size: geom.Size{Width: 800, Height: 600}})
//	if err != nil {
//		return err
//	}
//	defer s.Destroy()
package output

import (
	"errors"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
)

// ErrNoBackbuffer is returned when swapping a surface whose backbuffer was
// discarded.
var ErrNoBackbuffer = errors.New("output: backbuffer discarded")

// Capabilities describes what a surface supports.
type Capabilities struct {
	// PartialSwap reports that SwapBuffers can present a sub-rectangle.
	PartialSwap bool

	// FlippedOutput reports that window row 0 is presented at the top of
	// the screen. Otherwise row 0 is the bottom row, as in GL.
	FlippedOutput bool

	// MaxFramesPending bounds the frames swapped but not yet presented.
	MaxFramesPending int

	// MaxOverlayPlanes is the number of quads the display can scan out
	// directly, above the primary plane.
	MaxOverlayPlanes int
}

// OverlayPlane is a texture presented by the display controller instead of
// being composited into the backbuffer.
type OverlayPlane struct {
	// ZOrder is the plane's stacking position. The primary plane is 0 and
	// larger values are closer to the viewer.
	ZOrder int

	// DisplayRect is the window-space area the plane covers.
	DisplayRect geom.RectF

	// UVRect is the normalized part of Texture that is shown.
	UVRect geom.RectF

	Texture gpu.TextureID

	// UseOutputSurface marks the plane that shows the backbuffer itself.
	UseOutputSurface bool
}

// FrameMetadata describes a drawn frame.
type FrameMetadata struct {
	// FrameID increases by one for every frame the renderer draws.
	FrameID uint64

	DeviceScaleFactor float64

	// Viewport is the device viewport the root pass was drawn into.
	Viewport geom.Rect
}

// Frame is handed to SwapBuffers.
type Frame struct {
	Metadata FrameMetadata

	// Size is the surface size the frame was drawn at.
	Size geom.Size

	// SubBufferRect is the window-space area that changed. It covers the
	// whole surface unless partial swap is in use.
	SubBufferRect geom.Rect

	// Overlays are scanned out on top of the backbuffer, lowest ZOrder
	// first.
	Overlays []OverlayPlane
}

// Surface is the output of the compositor.
//
// Surfaces are not safe for concurrent use.
type Surface interface {
	// Context returns the context whose default framebuffer is the surface.
	Context() gpu.Context

	Capabilities() Capabilities

	// EnsureBackbuffer reallocates a discarded backbuffer.
	EnsureBackbuffer()

	// DiscardBackbuffer releases the backbuffer memory while invisible.
	DiscardBackbuffer()

	// Reshape resizes the surface. Reshaping to the current size and scale
	// is a no-op.
	Reshape(size geom.Size, scaleFactor float64) error
	SurfaceSize() geom.Size

	// BindFramebuffer makes the surface the current draw target.
	BindFramebuffer()

	// SwapBuffers presents frame.
	SwapBuffers(frame *Frame) error

	// HasExternalStencilTest reports that an embedder installed a stencil
	// test the renderer must not clear.
	HasExternalStencilTest() bool

	// IsDisplayedAsOverlayPlane reports that the surface itself is scanned
	// out as an overlay plane.
	IsDisplayedAsOverlayPlane() bool

	// Destroy releases the surface and the context it owns.
	Destroy()
}
