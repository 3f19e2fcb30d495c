package quads

import (
	"image"
	"sync"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/resource"
)

// TextureResult is a copy delivered as a texture.
type TextureResult struct {
	Mailbox   resource.Mailbox
	Size      geom.Size
	SyncToken uint64

	// Release returns the texture to its producer. It must be called
	// exactly once; lost reports that the texture contents are no longer
	// usable.
	Release func(syncToken uint64, lost bool)
}

// CopyOutputResult is the answer to a CopyOutputRequest. At most one of
// Bitmap and Texture is set; neither means the copy failed.
type CopyOutputResult struct {
	// Bitmap is top-down premultiplied RGBA.
	Bitmap  *image.RGBA
	Texture *TextureResult
}

// IsEmpty reports whether the copy produced nothing.
func (r *CopyOutputResult) IsEmpty() bool {
	return r == nil || (r.Bitmap == nil && r.Texture == nil)
}

// Size returns the size of the copied area.
func (r *CopyOutputResult) Size() geom.Size {
	switch {
	case r.IsEmpty():
		return geom.Size{}
	case r.Bitmap != nil:
		b := r.Bitmap.Bounds()
		return geom.Size{Width: b.Dx(), Height: b.Dy()}
	default:
		return r.Texture.Size
	}
}

// TextureMailbox is a caller-provided texture to copy into.
type TextureMailbox struct {
	Mailbox   resource.Mailbox
	SyncToken uint64
}

// CopyOutputRequest asks for the contents of a render pass. It is resolved
// exactly once: later Send calls are ignored.
type CopyOutputRequest struct {
	// ForceBitmapResult requests a bitmap even when a texture would do.
	ForceBitmapResult bool

	// TextureMailbox, when set, receives the copy instead of a new
	// texture.
	TextureMailbox *TextureMailbox

	area    geom.Rect
	hasArea bool

	mu       sync.Mutex
	callback func(*CopyOutputResult)
	sent     bool
}

// NewCopyOutputRequest returns a request resolved through callback. A nil
// callback makes an empty request.
func NewCopyOutputRequest(callback func(*CopyOutputResult)) *CopyOutputRequest {
	return &CopyOutputRequest{callback: callback}
}

// NewCopyOutputRequestChan returns a request whose result is delivered on
// the returned channel.
func NewCopyOutputRequestChan() (*CopyOutputRequest, <-chan *CopyOutputResult) {
	ch := make(chan *CopyOutputResult, 1)
	return NewCopyOutputRequest(func(r *CopyOutputResult) { ch <- r }), ch
}

// IsEmpty reports whether the request has no callback.
func (r *CopyOutputRequest) IsEmpty() bool {
	return r.callback == nil
}

// SetArea limits the copy to area, in render pass space.
func (r *CopyOutputRequest) SetArea(area geom.Rect) {
	r.area = area
	r.hasArea = true
}

// Area returns the requested area and whether one was set.
func (r *CopyOutputRequest) Area() (geom.Rect, bool) {
	return r.area, r.hasArea
}

// IsResolved reports whether a result has been sent.
func (r *CopyOutputRequest) IsResolved() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}

// SendResult delivers result. Only the first call has an effect; a texture
// in a duplicate result is released as lost.
func (r *CopyOutputRequest) SendResult(result *CopyOutputResult) {
	r.mu.Lock()
	if r.sent {
		r.mu.Unlock()
		compositor.Logger().Error("quads: copy output request resolved twice")
		if result != nil && result.Texture != nil && result.Texture.Release != nil {
			result.Texture.Release(0, true)
		}
		return
	}
	r.sent = true
	cb := r.callback
	r.mu.Unlock()

	if cb != nil {
		cb(result)
		return
	}
	if result != nil && result.Texture != nil && result.Texture.Release != nil {
		result.Texture.Release(result.Texture.SyncToken, false)
	}
}

// SendEmptyResult resolves the request with no contents.
func (r *CopyOutputRequest) SendEmptyResult() {
	r.SendResult(&CopyOutputResult{})
}

// SendBitmapResult resolves the request with a bitmap.
func (r *CopyOutputRequest) SendBitmapResult(bitmap *image.RGBA) {
	r.SendResult(&CopyOutputResult{Bitmap: bitmap})
}

// SendTextureResult resolves the request with a texture.
func (r *CopyOutputRequest) SendTextureResult(size geom.Size, mailbox resource.Mailbox, syncToken uint64, release func(syncToken uint64, lost bool)) {
	r.SendResult(&CopyOutputResult{Texture: &TextureResult{
		Mailbox:   mailbox,
		Size:      size,
		SyncToken: syncToken,
		Release:   release,
	}})
}

// Discard resolves the request with an empty result unless it has already
// been resolved.
func (r *CopyOutputRequest) Discard() {
	r.mu.Lock()
	sent := r.sent
	r.mu.Unlock()
	if !sent {
		r.SendEmptyResult()
	}
}
