package gpu

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/compositor/geom"
)

// Capabilities describes what a Context supports.
type Capabilities struct {
	// MaxTextureSize is the largest texture width or height.
	MaxTextureSize int

	// BestTextureFormat is the preferred format for render targets.
	BestTextureFormat Format

	// ReadbackFormat is the channel order of ReadPixels and mapped buffers.
	ReadbackFormat Format

	// AsyncReadback reports support for ReadPixelsAsync and queries.
	AsyncReadback bool
}

// Context is an immediate-mode graphics context.
//
// A Context is not safe for concurrent use. Completion callbacks registered
// with SignalQuery are invoked from Flush, Finish or WaitQuery on the calling
// goroutine, never from inside SignalQuery itself.
type Context interface {
	Capabilities() Capabilities
	IsContextLost() bool

	// CreateTexture allocates a texture with undefined contents.
	CreateTexture(size geom.Size, format Format) (TextureID, error)

	// UploadTexture writes premultiplied pixels in the texture's format
	// into rect. Row 0 of pixels lands on texture row rect.Y.
	UploadTexture(id TextureID, rect geom.Rect, pixels []byte, stride int) error
	DeleteTexture(id TextureID)
	TextureSize(id TextureID) geom.Size

	// CreateFramebuffer makes tex renderable.
	CreateFramebuffer(tex TextureID) (FramebufferID, error)
	DeleteFramebuffer(id FramebufferID)
	BindFramebuffer(id FramebufferID)

	// ResizeDefaultFramebuffer (re)allocates the backbuffer.
	ResizeDefaultFramebuffer(size geom.Size) error

	// DiscardDefaultFramebuffer releases the backbuffer until the next resize.
	DiscardDefaultFramebuffer()

	// Viewport restricts drawing to rect of the bound framebuffer.
	Viewport(rect geom.Rect)
	Scissor(enabled bool, rect geom.Rect)
	Blend(enabled bool, state gputypes.BlendState)

	// Clear fills the scissored viewport with a premultiplied color.
	Clear(color gputypes.Color)

	CreateProgram(key ProgramKey) error
	DeleteProgram(key ProgramKey)
	UseProgram(key ProgramKey)

	// Draw renders call with the current program and bound state.
	Draw(call *DrawCall) error

	// CopyTexSubImage copies src of the bound framebuffer into dst at
	// dstOrigin.
	CopyTexSubImage(dst TextureID, dstOrigin geom.Point, src geom.Rect) error

	// ReadPixels synchronously reads rect of the bound framebuffer.
	ReadPixels(rect geom.Rect) ([]byte, error)

	CreateBuffer() (BufferID, error)
	DeleteBuffer(id BufferID)

	// ReadPixelsAsync starts a read of rect of the bound framebuffer into buf.
	// The contents become visible to MapBuffer after the commands submitted
	// so far complete.
	ReadPixelsAsync(buf BufferID, rect geom.Rect) error
	MapBuffer(buf BufferID) ([]byte, error)
	UnmapBuffer(buf BufferID)

	// Queries track completion of the commands issued between BeginQuery
	// and EndQuery.
	CreateQuery() (QueryID, error)
	DeleteQuery(id QueryID)
	BeginQuery(id QueryID)
	EndQuery(id QueryID)
	QueryAvailable(id QueryID) bool
	WaitQuery(id QueryID)

	// SignalQuery registers callback to run once the query completes.
	SignalQuery(id QueryID, callback func())

	// InsertSyncToken returns a token ordering later consumers of shared
	// textures after the commands issued so far.
	InsertSyncToken() uint64

	// Flush submits pending commands and delivers completed signals.
	Flush()

	// Finish blocks until every submitted command has completed.
	Finish()

	// Destroy releases every resource owned by the context.
	Destroy()
}
