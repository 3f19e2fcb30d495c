package renderer

import (
	"sync/atomic"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/quads"
	"github.com/gogpu/compositor/resource"
)

// pendingRead is an asynchronous readback waiting for the GPU. Reads finish
// in the order they were issued, whatever order their queries complete in.
type pendingRead struct {
	request *quads.CopyOutputRequest
	buffer  gpu.BufferID
	query   gpu.QueryID
	size    geom.Size
	flip    bool

	ready    atomic.Bool
	canceled atomic.Bool
}

// PendingReadbacks returns the number of readbacks still waiting for the
// GPU.
func (r *Renderer) PendingReadbacks() int { return len(r.readbacks) }

// copyCurrentRenderPass services a copy request of the pass just drawn.
func (r *Renderer) copyCurrentRenderPass(req *quads.CopyOutputRequest) {
	f := r.frame
	if req.IsResolved() {
		return
	}
	if f.currentPass == nil || (f.currentPass != f.root && f.writeLocked == resource.InvalidID) {
		req.SendEmptyResult()
		return
	}
	rect := f.currentPass.OutputRect
	if area, ok := req.Area(); ok {
		rect = rect.Intersect(area)
	}
	if rect.IsEmpty() {
		req.SendEmptyResult()
		return
	}
	if req.IsEmpty() {
		return
	}
	windowRect := r.moveToWindow(rect)
	r.stats.Readbacks++

	if !req.ForceBitmapResult {
		r.copyToTexture(req, windowRect)
		return
	}
	r.copyToBitmap(req, windowRect)
}

// copyToTexture answers req with a texture holding windowRect of the
// current target.
func (r *Renderer) copyToTexture(req *quads.CopyOutputRequest, windowRect geom.Rect) {
	size := windowRect.Size()
	if mb := req.TextureMailbox; mb != nil {
		id, err := r.provider.ConsumeMailbox(mb.Mailbox)
		if err != nil {
			compositor.Logger().Warn("renderer: copy request mailbox", "err", err)
			req.SendEmptyResult()
			return
		}
		defer r.provider.DeleteResource(id)
		tex, err := r.provider.LockForRead(id)
		if err != nil {
			req.SendEmptyResult()
			return
		}
		err = r.ctx.CopyTexSubImage(tex, geom.Point{}, windowRect)
		r.provider.UnlockForRead(id)
		if err != nil {
			compositor.Logger().Warn("renderer: copy into mailbox", "err", err)
			req.SendEmptyResult()
			return
		}
		req.SendTextureResult(size, mb.Mailbox, r.ctx.InsertSyncToken(), func(uint64, bool) {})
		return
	}

	format := r.provider.BestTextureFormat()
	tex, err := r.ctx.CreateTexture(size, format)
	if err != nil {
		compositor.Logger().Warn("renderer: allocate copy texture", "size", size, "err", err)
		req.SendEmptyResult()
		return
	}
	if err := r.ctx.CopyTexSubImage(tex, geom.Point{}, windowRect); err != nil {
		r.ctx.DeleteTexture(tex)
		compositor.Logger().Warn("renderer: copy to texture", "err", err)
		req.SendEmptyResult()
		return
	}
	mailbox, token := r.provider.ProduceTexture(tex, size, format)
	provider := r.provider
	req.SendTextureResult(size, mailbox, token, func(_ uint64, lost bool) {
		provider.ReleaseMailbox(mailbox, lost)
	})
}

// copyToBitmap answers req with pixels of windowRect, asynchronously when
// the context supports it.
func (r *Renderer) copyToBitmap(req *quads.CopyOutputRequest, windowRect geom.Rect) {
	flip := r.frame.flipped
	size := windowRect.Size()
	if !r.caps.AsyncReadback {
		pix, err := r.ctx.ReadPixels(windowRect)
		if err != nil {
			compositor.Logger().Warn("renderer: read pixels", "err", err)
			req.SendEmptyResult()
			return
		}
		req.SendBitmapResult(pixelsToImage(pix, size, r.caps.ReadbackFormat, flip))
		return
	}

	read := &pendingRead{request: req, size: size, flip: flip}
	if err := r.startReadback(read, windowRect); err != nil {
		compositor.Logger().Warn("renderer: start readback", "err", err)
		r.deleteReadback(read)
		req.SendEmptyResult()
		return
	}
	r.readbacks = append(r.readbacks, read)
	r.ctx.SignalQuery(read.query, func() {
		if read.canceled.Load() {
			return
		}
		read.ready.Store(true)
		r.processReadbacks()
	})
}

func (r *Renderer) startReadback(read *pendingRead, windowRect geom.Rect) error {
	buf, err := r.ctx.CreateBuffer()
	if err != nil {
		return err
	}
	read.buffer = buf
	query, err := r.ctx.CreateQuery()
	if err != nil {
		return err
	}
	read.query = query

	src := windowRect
	if r.settings.ReadbackWorkaround {
		tex, fb, err := r.copyForReadback(windowRect)
		if err != nil {
			return err
		}
		defer func() {
			r.rebindCurrentTarget()
			r.ctx.DeleteFramebuffer(fb)
			r.ctx.DeleteTexture(tex)
		}()
		src = geom.RectFromSize(windowRect.Size())
	}

	r.ctx.BeginQuery(query)
	err = r.ctx.ReadPixelsAsync(buf, src)
	r.ctx.EndQuery(query)
	return err
}

// copyForReadback copies windowRect into a temporary framebuffer and binds
// it.
func (r *Renderer) copyForReadback(windowRect geom.Rect) (gpu.TextureID, gpu.FramebufferID, error) {
	tex, err := r.ctx.CreateTexture(windowRect.Size(), r.provider.BestTextureFormat())
	if err != nil {
		return gpu.InvalidID, gpu.InvalidID, err
	}
	if err := r.ctx.CopyTexSubImage(tex, geom.Point{}, windowRect); err != nil {
		r.ctx.DeleteTexture(tex)
		return gpu.InvalidID, gpu.InvalidID, err
	}
	fb, err := r.ctx.CreateFramebuffer(tex)
	if err != nil {
		r.ctx.DeleteTexture(tex)
		return gpu.InvalidID, gpu.InvalidID, err
	}
	r.ctx.BindFramebuffer(fb)
	return tex, fb, nil
}

// processReadbacks delivers finished readbacks from the front of the queue.
func (r *Renderer) processReadbacks() {
	for len(r.readbacks) > 0 && r.readbacks[0].ready.Load() {
		read := r.readbacks[0]
		r.readbacks[0] = nil
		r.readbacks = r.readbacks[1:]
		r.finishReadback(read)
	}
}

func (r *Renderer) finishReadback(read *pendingRead) {
	defer r.deleteReadback(read)
	pix, err := r.ctx.MapBuffer(read.buffer)
	if err != nil {
		compositor.Logger().Warn("renderer: map readback buffer", "err", err)
		read.request.SendEmptyResult()
		return
	}
	img := pixelsToImage(pix, read.size, r.caps.ReadbackFormat, read.flip)
	r.ctx.UnmapBuffer(read.buffer)
	read.request.SendBitmapResult(img)
}

func (r *Renderer) deleteReadback(read *pendingRead) {
	if read.buffer != gpu.InvalidID {
		r.ctx.DeleteBuffer(read.buffer)
		read.buffer = gpu.InvalidID
	}
	if read.query != gpu.InvalidID {
		r.ctx.DeleteQuery(read.query)
		read.query = gpu.InvalidID
	}
}

// cancelReadbacks abandons every pending readback. Their requests receive
// empty results.
func (r *Renderer) cancelReadbacks() {
	reads := r.readbacks
	r.readbacks = nil
	for _, read := range reads {
		read.canceled.Store(true)
		r.deleteReadback(read)
		read.request.SendEmptyResult()
	}
}
