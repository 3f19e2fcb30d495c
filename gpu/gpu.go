// Package gpu defines the immediate-mode graphics context the compositor
// draws through.
//
// The [Context] interface is deliberately close to the GL model the
// compositor was designed around: textures and framebuffers are addressed by
// opaque IDs, the context holds bound state (framebuffer, viewport, scissor,
// blend, program) and draw calls consume that state. Two implementations
// exist:
//
//   - gpu/soft: a CPU reference context used by tests and the demo
//   - gpu/halgpu: a context backed by github.com/gogpu/wgpu/hal
//
// # Coordinate System
//
// Window coordinates have their origin at the bottom-left corner of the bound
// framebuffer and y grows upward. Texture row 0 holds window row 0, so a
// texture rendered through a framebuffer and sampled at v=0 returns the row
// drawn at window y=0. [Context.ReadPixels] returns rows in increasing window
// y order.
//
// # Resource IDs
//
// IDs are opaque handles. The zero value of every ID type is invalid, except
// [DefaultFramebuffer] which names the output surface's backbuffer.
package gpu

import "errors"

// TextureID is an opaque handle to a texture.
type TextureID uint64

// FramebufferID is an opaque handle to a framebuffer.
type FramebufferID uint64

// BufferID is an opaque handle to a pixel pack buffer.
type BufferID uint64

// QueryID is an opaque handle to a commands-completed query.
type QueryID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// DefaultFramebuffer names the output surface's backbuffer.
const DefaultFramebuffer FramebufferID = 0

// Errors returned by Context implementations.
var (
	// ErrInvalidID is returned when an operation references an unknown resource.
	ErrInvalidID = errors.New("gpu: invalid resource id")

	// ErrInvalidSize is returned for empty or oversized texture dimensions.
	ErrInvalidSize = errors.New("gpu: invalid size")

	// ErrContextLost is returned when the underlying device is gone.
	ErrContextLost = errors.New("gpu: context lost")

	// ErrUnsupported is returned when the context lacks a capability.
	ErrUnsupported = errors.New("gpu: operation not supported")

	// ErrBufferMapped is returned when a mapped buffer is used as a read target.
	ErrBufferMapped = errors.New("gpu: buffer is mapped")
)
